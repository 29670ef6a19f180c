// Package compactblock assembles the per-height diff light clients
// consume: an ordered sequence of state payloads mirroring the
// note-commitment tree's insertion order, the block's revealed
// nullifiers, its roots, and the quarantine/parameter/gas-price metadata
// that rides along with it.
package compactblock

import (
	"encoding/json"
	"errors"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

// ErrDuplicateNullifier is returned by Builder.RevealNullifier for a
// nullifier already revealed in this block.
var ErrDuplicateNullifier = errors.New("compactblock: nullifier already revealed this block")

// NotePayload is a commitment the client can decrypt: a transaction
// output, or a chain mint that encrypts a public note.
type NotePayload struct {
	Commitment    field.Element `json:"commitment"`
	EphemeralKey  [32]byte      `json:"ephemeralKey"`
	EncryptedNote []byte        `json:"encryptedNote"`
}

// MarshalJSON renders EphemeralKey as a JSON array of its 32 bytes,
// matching encoding/json's default handling of fixed-size byte arrays.
func (p NotePayload) MarshalJSON() ([]byte, error) {
	type alias struct {
		Commitment    field.Element `json:"commitment"`
		EphemeralKey  [32]byte      `json:"ephemeralKey"`
		EncryptedNote []byte        `json:"encryptedNote"`
	}
	return json.Marshal(alias{p.Commitment, p.EphemeralKey, p.EncryptedNote})
}

// StatePayload is exactly one of a full NotePayload (the client can
// decrypt it) or a bare RolledUp commitment (the chain knows it but the
// client cannot decrypt it).
type StatePayload struct {
	Note     *NotePayload   `json:"note,omitempty"`
	RolledUp *field.Element `json:"rolledUp,omitempty"`
}

// NewNoteStatePayload wraps a decryptable note payload.
func NewNoteStatePayload(p NotePayload) StatePayload { return StatePayload{Note: &p} }

// NewRolledUpStatePayload wraps a commitment the client cannot decrypt.
func NewRolledUpStatePayload(c field.Element) StatePayload { return StatePayload{RolledUp: &c} }

// Commitment returns the commitment carried by this payload, regardless
// of which variant it is.
func (p StatePayload) Commitment() field.Element {
	if p.Note != nil {
		return p.Note.Commitment
	}
	if p.RolledUp != nil {
		return *p.RolledUp
	}
	return field.Zero()
}

// SwapOutput is a claimed swap output an external DEX component hands
// the shielded pool for inclusion in its compact block.
type SwapOutput struct {
	SwapCommitment    field.Element `json:"swapCommitment"`
	Output1Commitment field.Element `json:"output1Commitment"`
	Output2Commitment field.Element `json:"output2Commitment"`
}

// FMDParameters is the fuzzy-message-detection precision the chain
// currently advertises.
type FMDParameters struct {
	PrecisionBits   uint32 `json:"precisionBits"`
	AsOfBlockHeight uint64 `json:"asOfBlockHeight"`
}

// GasPrices is the gas-price snapshot for one height.
type GasPrices struct {
	BlockSpacePrice        uint64 `json:"blockSpacePrice"`
	CompactBlockSpacePrice uint64 `json:"compactBlockSpacePrice"`
	VerificationPrice      uint64 `json:"verificationPrice"`
	ExecutionPrice         uint64 `json:"executionPrice"`
}

// CompactBlock is the finalised per-height diff, persisted at
// compact_block/{height} and handed to light clients.
type CompactBlock struct {
	Height        uint64         `json:"height"`
	EpochIndex    uint64         `json:"epochIndex"`
	StatePayloads []StatePayload `json:"statePayloads"`
	Nullifiers    []field.Element `json:"nullifiers"`

	BlockRoot field.Element  `json:"blockRoot"`
	EpochRoot *field.Element `json:"epochRoot,omitempty"`

	FMDParameters *FMDParameters `json:"fmdParameters,omitempty"`

	ProposalStarted      bool `json:"proposalStarted"`
	AppParametersUpdated bool `json:"appParametersUpdated"`

	GasPrices   GasPrices    `json:"gasPrices"`
	SwapOutputs []SwapOutput `json:"swapOutputs,omitempty"`

	// Slashed lists validators slashed this block, so wallets can
	// reconcile optimistic UI for quarantined outputs that were erased.
	Slashed []string `json:"slashed,omitempty"`
}

// Builder accumulates one block's compact-block content in insertion
// order: state payload order must equal note-commitment-tree insertion
// order. The caller is responsible for calling Append* in lockstep with
// its own note-commitment-tree insertions; Builder itself never
// reorders.
type Builder struct {
	height     uint64
	epochIndex uint64

	statePayloads []StatePayload
	nullifierSeen map[string]bool
	nullifiers    []field.Element

	proposalStarted      bool
	appParametersUpdated bool
	gasPrices            GasPrices
	swapOutputs          []SwapOutput
	slashed              []string

	fmdParameters *FMDParameters
}

// NewBuilder starts a fresh builder for height, within epochIndex.
func NewBuilder(height, epochIndex uint64) *Builder {
	return &Builder{
		height:        height,
		epochIndex:    epochIndex,
		nullifierSeen: make(map[string]bool),
	}
}

// AppendNote records a decryptable note payload, in NCT insertion order.
func (b *Builder) AppendNote(p NotePayload) {
	b.statePayloads = append(b.statePayloads, NewNoteStatePayload(p))
}

// AppendRolledUp records a commitment the client cannot decrypt, in NCT
// insertion order.
func (b *Builder) AppendRolledUp(c field.Element) {
	b.statePayloads = append(b.statePayloads, NewRolledUpStatePayload(c))
}

// RevealNullifier records a nullifier revealed this block. Fails with
// ErrDuplicateNullifier if already revealed.
func (b *Builder) RevealNullifier(n field.Element) error {
	key := string(n.Bytes())
	if b.nullifierSeen[key] {
		return ErrDuplicateNullifier
	}
	b.nullifierSeen[key] = true
	b.nullifiers = append(b.nullifiers, n)
	return nil
}

// AddSwapOutput records a DEX-supplied claimed swap output.
func (b *Builder) AddSwapOutput(o SwapOutput) { b.swapOutputs = append(b.swapOutputs, o) }

// SetProposalStarted marks that a governance proposal was submitted this
// block.
func (b *Builder) SetProposalStarted() { b.proposalStarted = true }

// SetAppParametersUpdated marks that application parameters changed this
// block.
func (b *Builder) SetAppParametersUpdated() { b.appParametersUpdated = true }

// SetGasPrices records this height's gas-price snapshot.
func (b *Builder) SetGasPrices(g GasPrices) { b.gasPrices = g }

// SetFMDParameters records an FMD-parameter update to surface in the
// finished compact block. Callers must never invoke this from the
// epoch-end path of EndBlock: FMD parameter changes are block-scoped
// only.
func (b *Builder) SetFMDParameters(p FMDParameters) { b.fmdParameters = &p }

// AddSlashed appends validator to the slashed list for this block.
func (b *Builder) AddSlashed(validator string) { b.slashed = append(b.slashed, validator) }

// StatePayloadCount reports how many state payloads have been appended so
// far, letting the caller correlate NCT positions with builder state.
func (b *Builder) StatePayloadCount() int { return len(b.statePayloads) }

// Finish seals the compact block with its roots, computed by the caller
// from the note-commitment tree at EndBlock.
func (b *Builder) Finish(blockRoot field.Element, epochRoot *field.Element) CompactBlock {
	return CompactBlock{
		Height:               b.height,
		EpochIndex:           b.epochIndex,
		StatePayloads:        b.statePayloads,
		Nullifiers:           b.nullifiers,
		BlockRoot:            blockRoot,
		EpochRoot:            epochRoot,
		FMDParameters:        b.fmdParameters,
		ProposalStarted:      b.proposalStarted,
		AppParametersUpdated: b.appParametersUpdated,
		GasPrices:            b.gasPrices,
		SwapOutputs:          b.swapOutputs,
		Slashed:              b.slashed,
	}
}
