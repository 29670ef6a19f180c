package shieldedpool

import "github.com/penumbra-zone/penumbra-sub011/pkg/field"

// LedgerReader is the narrow read capability the controller's pure
// functions are parameterised over, in place of the extension-trait
// accessors a more dynamically-typed implementation would use. Both
// storage.Snapshot and *storage.Delta satisfy it structurally.
type LedgerReader interface {
	Get(key []byte) ([]byte, bool)
}

// LedgerWriter extends LedgerReader with the staged-write operations the
// controller needs during execute_tx/end_block. *storage.Delta satisfies
// it structurally.
type LedgerWriter interface {
	LedgerReader
	PutRaw(key, value []byte)
	Delete(key []byte)
}

// ActionVerifier checks a zero-knowledge proof against its action's
// declared public inputs. Signature verification and proof verification
// are explicitly out of scope for this core; this interface is the seam
// production code wires to a real groth16 verifier and tests wire to a
// stub.
type ActionVerifier interface {
	VerifySpendProof(proof []byte, anchor, balanceCommitment, nullifier, rk field.Element) error
	VerifyOutputProof(proof []byte, balanceCommitment, commitment, ephemeralKey field.Element) error
}

// BindingVerifier checks a transaction's binding signature over its
// authorisation hash, and a spend's individual authorisation signature.
type BindingVerifier interface {
	VerifyBindingSignature(authHash, signature []byte, bindingVerificationKey []byte) error
	VerifySpendAuthSignature(authHash, signature []byte, rk []byte) error
}

// ValidatorBondingState enumerates a validator's staking lifecycle state,
// as reported by the external staking component.
type ValidatorBondingState int

const (
	Bonded ValidatorBondingState = iota
	Unbonding
	Unbonded
)

// ValidatorInfoSource is the narrow read capability onto the external
// staking component's validator bonding state, used by CheckTxStateful's
// undelegation check and by quarantine routing in ExecuteTx.
type ValidatorInfoSource interface {
	// ValidatorInfo reports v's current bonding state and (if Unbonding)
	// its already-scheduled unbonding epoch. ok is false if v is unknown.
	ValidatorInfo(v string) (state ValidatorBondingState, unbondingEpoch uint64, ok bool)
}
