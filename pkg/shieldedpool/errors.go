package shieldedpool

import "errors"

// Stateless validation errors (reject from mempool, before check_tx_stateful
// ever runs).
var (
	ErrBadBindingSignature  = errors.New("shieldedpool: bad binding signature")
	ErrBadProof             = errors.New("shieldedpool: bad action proof")
	ErrBadAuthSignature     = errors.New("shieldedpool: bad spend authorisation signature")
	ErrDuplicateNullifierTx = errors.New("shieldedpool: duplicate nullifier within transaction")
	ErrOutputArityMismatch  = errors.New("shieldedpool: memo presence does not match output presence")
	ErrClueCountMismatch    = errors.New("shieldedpool: clue count does not match output count")
)

// Stateful validation errors (reject from the block, after having passed
// stateless checks).
var (
	ErrUnknownAnchor          = errors.New("shieldedpool: unknown anchor")
	ErrNullifierAlreadySpent  = errors.New("shieldedpool: nullifier already spent")
	ErrFMDParametersOutOfGrace = errors.New("shieldedpool: FMD parameters outside grace period")
	ErrValidatorNotBonded     = errors.New("shieldedpool: undelegation target validator is not bonded or unbonding")
)

// Execution errors (abort the block: the delta is discarded, prior state
// is unaffected).
var (
	ErrNCTFull                = errors.New("shieldedpool: note-commitment tree full")
	ErrMissingValidatorInfo   = errors.New("shieldedpool: missing validator bonding-state entry for known identity key")
	ErrWitnessingUnknownCommitment = errors.New("shieldedpool: witnessing a commitment never inserted")
)
