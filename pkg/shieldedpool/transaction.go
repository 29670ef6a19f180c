package shieldedpool

import (
	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

// Spend reveals a nullifier and proves ownership of the note it spends,
// without revealing which note.
type Spend struct {
	BalanceCommitment field.Element
	Nullifier         field.Element
	Rk                field.Element // randomised spend-authorisation verification key
	AuthSig           []byte
	Proof             []byte
}

// Output creates a new note, encrypted to its recipient.
type Output struct {
	BalanceCommitment field.Element
	Payload           compactblock.NotePayload
	Proof             []byte
}

// Undelegate unbonds a delegation, routing its outputs through quarantine.
// An undelegation whose target validator is already fully unbonded is
// rejected.
type Undelegate struct {
	ValidatorIdentity string
}

// ProposalSubmit submits a governance proposal; its deposit is refunded
// by a later mint once the proposal resolves.
type ProposalSubmit struct {
	ProposalID uint64
}

// Action is a tagged sum over the action kinds the core consumes. Exactly
// one field is non-nil.
type Action struct {
	Spend          *Spend
	Output         *Output
	Undelegate     *Undelegate
	ProposalSubmit *ProposalSubmit
}

// NumOutputs reports how many Output actions appear in actions.
func NumOutputs(actions []Action) int {
	n := 0
	for _, a := range actions {
		if a.Output != nil {
			n++
		}
	}
	return n
}

// Transaction is the unit of execution the controller processes.
type Transaction struct {
	ID      string
	Anchor  field.Element
	Actions []Action

	BindingSignature           []byte
	BindingVerificationKey     []byte
	AuthHash                   []byte

	// NumClues is the transaction's declared fuzzy-message-detection clue
	// count; it must equal the number of outputs.
	NumClues int
	// Memo is the (possibly encrypted) memo payload; its presence must
	// imply at least one output.
	Memo []byte

	FMDPrecisionBits uint32
}

// Spends returns every Spend action in tx, in action order.
func (tx Transaction) Spends() []Spend {
	var out []Spend
	for _, a := range tx.Actions {
		if a.Spend != nil {
			out = append(out, *a.Spend)
		}
	}
	return out
}

// Outputs returns every Output action in tx, in action order.
func (tx Transaction) Outputs() []Output {
	var out []Output
	for _, a := range tx.Actions {
		if a.Output != nil {
			out = append(out, *a.Output)
		}
	}
	return out
}

// Undelegations returns every Undelegate action in tx, in action order.
func (tx Transaction) Undelegations() []Undelegate {
	var out []Undelegate
	for _, a := range tx.Actions {
		if a.Undelegate != nil {
			out = append(out, *a.Undelegate)
		}
	}
	return out
}

// ProposalSubmissions returns every ProposalSubmit action in tx.
func (tx Transaction) ProposalSubmissions() []ProposalSubmit {
	var out []ProposalSubmit
	for _, a := range tx.Actions {
		if a.ProposalSubmit != nil {
			out = append(out, *a.ProposalSubmit)
		}
	}
	return out
}
