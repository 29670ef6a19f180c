// Package nct implements the tiered commitment tree: a three-level
// (commitment / block / epoch) sparse radix-4 merkle accumulator with
// selective witnessing.
package nct

import (
	"errors"
	"sync"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

const (
	commitmentTag = "nct-commitment"
	blockTag      = "nct-block"
	epochTag      = "nct-epoch"
)

// WitnessMode controls whether a commitment's authentication path remains
// retrievable after insertion.
type WitnessMode int

const (
	// Forget discards the ability to witness this commitment; it still
	// contributes to every root computed afterward.
	Forget WitnessMode = iota
	// Keep retains enough state to produce an authentication path for
	// this commitment via Witness, until a later Forget call.
	Keep
)

var (
	// ErrTreeFull is returned when a tier (commitment, block, or epoch) is
	// already at its 65536-leaf capacity. Callers should treat this as a
	// protocol-level fatal error that halts block production.
	ErrTreeFull = errors.New("nct: tier at capacity")
	// ErrNotWitnessed is returned by Witness for a commitment that was
	// never inserted with Keep, or that has since been Forgotten.
	ErrNotWitnessed = errors.New("nct: commitment not witnessed")
	// ErrInvalidAuthPath is returned by VerifyAuthPath when the supplied
	// path does not chain to the claimed root.
	ErrInvalidAuthPath = errors.New("nct: authentication path does not verify against claimed root")
)

// AuthPath is the three-tier authentication path for one commitment.
type AuthPath struct {
	Commitment [TierDepth][TierArity - 1]field.Element
	Block      [TierDepth][TierArity - 1]field.Element
	Epoch      [TierDepth][TierArity - 1]field.Element
}

// Proof bundles a commitment's position with its authentication path.
type Proof struct {
	Position Position
	Path     AuthPath
}

func commitmentKey(epoch, block uint16) uint32 {
	return uint32(epoch)<<16 | uint32(block)
}

// Tree is the tiered commitment tree. The zero value is not usable; use
// New.
type Tree struct {
	mu sync.Mutex

	commitment        *tier
	sealedCommitments map[uint32]*tier

	block        *tier
	sealedBlocks map[uint16]*tier

	epoch *tier

	epochIndex uint16
	blockIndex uint16

	witnessed map[Position]struct{}
}

// New returns an empty tiered commitment tree at epoch 0, block 0.
func New() *Tree {
	return &Tree{
		commitment:        newTier(commitmentTag),
		sealedCommitments: make(map[uint32]*tier),
		block:             newTier(blockTag),
		sealedBlocks:      make(map[uint16]*tier),
		epoch:             newTier(epochTag),
		witnessed:         make(map[Position]struct{}),
	}
}

// CurrentPosition returns the position the next Insert would receive.
func (t *Tree) CurrentPosition() Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return NewPosition(t.epochIndex, t.blockIndex, uint16(t.commitment.len()))
}

// EpochIndex returns the index of the in-progress epoch.
func (t *Tree) EpochIndex() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epochIndex
}

// BlockIndex returns the index, within the in-progress epoch, of the
// in-progress block.
func (t *Tree) BlockIndex() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockIndex
}

// Insert appends a commitment to the current commitment tier, returning
// its position. Fails with ErrTreeFull if the current block is saturated.
func (t *Tree) Insert(mode WitnessMode, c field.Element) (Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.commitment.insert(c)
	if err != nil {
		return 0, err
	}
	pos := NewPosition(t.epochIndex, t.blockIndex, uint16(idx))
	if mode == Keep {
		t.witnessed[pos] = struct{}{}
	}
	return pos, nil
}

// EndBlock seals the current commitment tier, appends its root to the
// block tier, and starts a fresh commitment tier. Ending an empty block
// yields the fixed empty-tier constant, since an empty tier's root is
// always the same precomputed value.
func (t *Tree) EndBlock() (field.Element, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endBlockLocked()
}

func (t *Tree) endBlockLocked() (field.Element, error) {
	if t.block.full() {
		return field.Element{}, ErrTreeFull
	}
	blockRoot := t.commitment.root()
	if _, err := t.block.insert(blockRoot); err != nil {
		return field.Element{}, err
	}
	t.sealedCommitments[commitmentKey(t.epochIndex, t.blockIndex)] = t.commitment
	t.blockIndex++
	t.commitment = newTier(commitmentTag)
	return blockRoot, nil
}

// EndEpoch implicitly ends the current block (padding with the empty-block
// root if nothing was inserted), seals the block tier, appends its root to
// the epoch tier, and starts a fresh block tier.
func (t *Tree) EndEpoch() (field.Element, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.epoch.full() {
		return field.Element{}, ErrTreeFull
	}
	if _, err := t.endBlockLocked(); err != nil {
		return field.Element{}, err
	}
	epochRoot := t.block.root()
	if _, err := t.epoch.insert(epochRoot); err != nil {
		return field.Element{}, err
	}
	t.sealedBlocks[t.epochIndex] = t.block
	t.epochIndex++
	t.blockIndex = 0
	t.block = newTier(blockTag)
	return epochRoot, nil
}

// Root hashes the current epoch-tier accumulator, including the
// in-progress block and commitment tiers in their current partial state,
// yielding a deterministic global root at any moment.
func (t *Tree) Root() field.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootLocked()
}

func (t *Tree) rootLocked() field.Element {
	commitmentRoot := t.commitment.root()
	blockRoot := t.block.rootOverlay(int(t.blockIndex), commitmentRoot)
	return t.epoch.rootOverlay(int(t.epochIndex), blockRoot)
}

// Forget discards the retained authentication-path state for pos. It does
// not change the root: the commitment stays part of every root computed
// from now on; only the ability to witness it is lost.
func (t *Tree) Forget(pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.witnessed, pos)
}

// Witness returns the three-tier authentication path and position for a
// previously Keep-inserted commitment. Fails with ErrNotWitnessed
// otherwise (including after a Forget call).
func (t *Tree) Witness(pos Position) (Proof, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.witnessed[pos]; !ok {
		return Proof{}, ErrNotWitnessed
	}
	e, b, c := pos.Epoch(), pos.Block(), pos.Commitment()

	ctier := t.commitmentTierFor(e, b)
	if ctier == nil {
		return Proof{}, ErrNotWitnessed
	}
	commitmentPath := ctier.authPath(int(c))

	btier := t.blockTierFor(e)
	if btier == nil {
		return Proof{}, ErrNotWitnessed
	}
	// Sibling hashes include the in-progress block and epoch exactly as
	// rootLocked overlays them, so the path verifies against Root().
	liveCommitmentRoot := t.commitment.root()
	liveBlockRoot := t.block.rootOverlay(int(t.blockIndex), liveCommitmentRoot)
	var blockPath [TierDepth][TierArity - 1]field.Element
	if e == t.epochIndex {
		blockPath = btier.authPathOverlay(int(t.blockIndex), liveCommitmentRoot, int(b))
	} else {
		blockPath = btier.authPath(int(b))
	}
	epochPath := t.epoch.authPathOverlay(int(t.epochIndex), liveBlockRoot, int(e))

	return Proof{
		Position: pos,
		Path: AuthPath{
			Commitment: commitmentPath,
			Block:      blockPath,
			Epoch:      epochPath,
		},
	}, nil
}

func (t *Tree) commitmentTierFor(epoch, block uint16) *tier {
	if epoch == t.epochIndex && block == t.blockIndex {
		return t.commitment
	}
	return t.sealedCommitments[commitmentKey(epoch, block)]
}

func (t *Tree) blockTierFor(epoch uint16) *tier {
	if epoch == t.epochIndex {
		return t.block
	}
	return t.sealedBlocks[epoch]
}

// VerifyAuthPath computes the tier-wise hash chain for commitment at pos
// along path and reports whether it reaches root. Callers (the ZK circuit
// and client-visible proof verification) must additionally check that
// root appears in the anchor index before trusting it.
func VerifyAuthPath(commitment field.Element, pos Position, path AuthPath, root field.Element) bool {
	commitmentRoot := verifyChain(commitmentTag, commitment, int(pos.Commitment()), path.Commitment)
	blockRoot := verifyChain(blockTag, commitmentRoot, int(pos.Block()), path.Block)
	epochRoot := verifyChain(epochTag, blockRoot, int(pos.Epoch()), path.Epoch)
	return epochRoot.Equal(root)
}
