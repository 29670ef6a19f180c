package nct

import (
	"fmt"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

const (
	// TierDepth is the number of levels in a single tier's radix-4 tree.
	TierDepth = 8
	// TierArity is the branching factor of a single tier's tree.
	TierArity = 4
	// TierCapacity is the maximum number of leaves (commitments, block
	// roots, or epoch roots) a single tier can hold: 4^8 = 65536.
	TierCapacity = 1 << (2 * TierDepth)
)

func pow4(level int) int {
	n := 1
	for i := 0; i < level; i++ {
		n *= TierArity
	}
	return n
}

func domainTag(tag string, level int) string {
	return fmt.Sprintf("%s-%d", tag, level)
}

// tier is one level of the tiered commitment tree: a fixed-depth,
// radix-4 sparse merkle accumulator over field.Element leaves. The same
// type backs all three tiers (commitment, block, epoch); only the domain
// tag differs, keeping their hash domains separate.
type tier struct {
	tag        string
	leaves     []field.Element
	emptyAtLvl []field.Element // emptyAtLvl[l] = root of an all-empty subtree of height l
}

func newTier(tag string) *tier {
	t := &tier{tag: tag}
	t.emptyAtLvl = make([]field.Element, TierDepth+1)
	t.emptyAtLvl[0] = field.Zero()
	for l := 1; l <= TierDepth; l++ {
		e := t.emptyAtLvl[l-1]
		t.emptyAtLvl[l] = field.Domain(domainTag(tag, l), e, e, e, e)
	}
	return t
}

func (t *tier) len() int  { return len(t.leaves) }
func (t *tier) full() bool { return len(t.leaves) >= TierCapacity }

// insert appends a leaf, returning its index.
func (t *tier) insert(e field.Element) (int, error) {
	if t.full() {
		return 0, ErrTreeFull
	}
	idx := len(t.leaves)
	t.leaves = append(t.leaves, e)
	return idx, nil
}

// nodeAt returns the hash of the subtree rooted at (level, index), level 0
// being the leaves themselves.
func (t *tier) nodeAt(level, index int) field.Element {
	return t.nodeOverlay(level, index, -1, field.Zero())
}

// nodeOverlay is nodeAt but pretends leaf overlayIdx has value overlayVal,
// whether or not that leaf has actually been inserted yet. This lets the
// tree compute a live root (and live auth paths) through a tier whose
// relevant leaf hasn't been sealed into it yet — the in-progress block's
// contribution to the block tier, or the in-progress epoch's contribution
// to the epoch tier: the live root always includes the in-progress block
// and commitment tiers in their current partial state. When the leaf has
// already been sealed, overlaying it with its own value is a no-op, so
// one code path serves both cases.
func (t *tier) nodeOverlay(level, index, overlayIdx int, overlayVal field.Element) field.Element {
	span := pow4(level)
	start := index * span
	inOverlay := overlayIdx >= start && overlayIdx < start+span
	if !inOverlay && start >= len(t.leaves) {
		return t.emptyAtLvl[level]
	}
	if level == 0 {
		if inOverlay {
			return overlayVal
		}
		if index < len(t.leaves) {
			return t.leaves[index]
		}
		return t.emptyAtLvl[0]
	}
	c0 := t.nodeOverlay(level-1, index*4, overlayIdx, overlayVal)
	c1 := t.nodeOverlay(level-1, index*4+1, overlayIdx, overlayVal)
	c2 := t.nodeOverlay(level-1, index*4+2, overlayIdx, overlayVal)
	c3 := t.nodeOverlay(level-1, index*4+3, overlayIdx, overlayVal)
	return field.Domain(domainTag(t.tag, level), c0, c1, c2, c3)
}

func (t *tier) root() field.Element {
	return t.nodeAt(TierDepth, 0)
}

func (t *tier) rootOverlay(overlayIdx int, overlayVal field.Element) field.Element {
	return t.nodeOverlay(TierDepth, 0, overlayIdx, overlayVal)
}

// authPath returns the sibling hashes at each of the eight levels on the
// way from leaf index up to the tier root.
func (t *tier) authPath(index int) [TierDepth][TierArity - 1]field.Element {
	return t.authPathOverlay(-1, field.Zero(), index)
}

func (t *tier) authPathOverlay(overlayIdx int, overlayVal field.Element, queryIdx int) [TierDepth][TierArity - 1]field.Element {
	var path [TierDepth][TierArity - 1]field.Element
	idx := queryIdx
	for level := 0; level < TierDepth; level++ {
		parent := idx / 4
		childPos := idx % 4
		si := 0
		for c := 0; c < TierArity; c++ {
			if c == childPos {
				continue
			}
			path[level][si] = t.nodeOverlay(level, parent*4+c, overlayIdx, overlayVal)
			si++
		}
		idx = parent
	}
	return path
}

// verifyChain walks leaf up through path, using the same domain-tag
// convention as nodeOverlay, and returns the resulting tier root.
func verifyChain(tag string, leaf field.Element, index int, path [TierDepth][TierArity - 1]field.Element) field.Element {
	cur := leaf
	idx := index
	for level := 0; level < TierDepth; level++ {
		childPos := idx % 4
		var children [TierArity]field.Element
		si := 0
		for c := 0; c < TierArity; c++ {
			if c == childPos {
				children[c] = cur
			} else {
				children[c] = path[level][si]
				si++
			}
		}
		cur = field.Domain(domainTag(tag, level+1), children[0], children[1], children[2], children[3])
		idx /= 4
	}
	return cur
}
