// Package source models the provenance tag every note carries, recorded
// at note_source[commitment] for wallets to reconcile. It is its own
// package, rather than living in shieldedpool, so that pkg/quarantine can
// record a note's source immediately at scheduling time without
// importing the controller package that will eventually import
// quarantine.
package source

// Kind enumerates the provenance kinds a note's source tag can carry.
type Kind string

const (
	// Genesis marks a note minted from a genesis allocation.
	Genesis Kind = "genesis"
	// Transaction marks a note produced by a transaction output, or a
	// DEX swap-claim output attributed back to the claiming transaction.
	Transaction Kind = "transaction"
	// FundingStreamReward marks a note minted as a validator funding
	// stream reward for a given epoch.
	FundingStreamReward Kind = "funding_stream_reward"
	// ProposalDepositRefund marks a note minted to refund a governance
	// proposal deposit.
	ProposalDepositRefund Kind = "proposal_deposit_refund"
)

// Source is the provenance tag recorded for every note the chain mints
// or accepts as a transaction output.
type Source struct {
	Kind Kind `json:"kind"`

	// TransactionID is set for Kind == Transaction.
	TransactionID string `json:"transactionId,omitempty"`
	// EpochIndex is set for Kind == FundingStreamReward.
	EpochIndex uint64 `json:"epochIndex,omitempty"`
	// ProposalID is set for Kind == ProposalDepositRefund.
	ProposalID uint64 `json:"proposalId,omitempty"`
}

// FromGenesis returns the Source for a genesis allocation.
func FromGenesis() Source { return Source{Kind: Genesis} }

// FromTransaction returns the Source for a transaction output.
func FromTransaction(txID string) Source { return Source{Kind: Transaction, TransactionID: txID} }

// FromFundingStreamReward returns the Source for a validator funding
// stream reward minted at epoch.
func FromFundingStreamReward(epoch uint64) Source {
	return Source{Kind: FundingStreamReward, EpochIndex: epoch}
}

// FromProposalDepositRefund returns the Source for a governance proposal
// deposit refund.
func FromProposalDepositRefund(proposalID uint64) Source {
	return Source{Kind: ProposalDepositRefund, ProposalID: proposalID}
}
