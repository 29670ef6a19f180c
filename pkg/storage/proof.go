package storage

import ics23 "github.com/bnb-chain/ics23/go"

// leafSpec and innerSpec describe this package's tree to ics23 so that a
// real ICS23 verifier can check membership proofs generated by probe: a
// SHA256 leaf hashed as 0x00||keyHash||value, and SHA256 inner nodes
// hashed as 0x01||left||right with a one-byte prefix tagging which side
// carries the sibling.
var (
	leafSpec = &ics23.LeafOp{
		Hash:         ics23.HashOp_SHA256,
		PrehashKey:   ics23.HashOp_SHA256,
		PrehashValue: ics23.HashOp_NO_HASH,
		Length:       ics23.LengthOp_NO_PREFIX,
		Prefix:       []byte{0x00},
	}

	innerSpec = &ics23.InnerSpec{
		ChildOrder:      []int32{0, 1},
		ChildSize:       32,
		MinPrefixLength: 1,
		MaxPrefixLength: 33,
		Hash:            ics23.HashOp_SHA256,
	}

	// ProofSpec is this store's ICS23 proof spec, exported so callers can
	// hand a membership proof to a general-purpose ICS23 verifier instead
	// of this package's own; KeyProof.Verify uses it.
	ProofSpec = &ics23.ProofSpec{
		LeafSpec:  leafSpec,
		InnerSpec: innerSpec,
		MaxDepth:  maxDepth,
		MinDepth:  0,
	}
)

func rightSiblingOp(sibling [32]byte) *ics23.InnerOp {
	// The probed node is the left child; sibling is the right child.
	return &ics23.InnerOp{Hash: ics23.HashOp_SHA256, Prefix: []byte{0x01}, Suffix: append([]byte(nil), sibling[:]...)}
}

func leftSiblingOp(sibling [32]byte) *ics23.InnerOp {
	// The probed node is the right child; sibling is the left child.
	prefix := make([]byte, 0, 33)
	prefix = append(prefix, 0x01)
	prefix = append(prefix, sibling[:]...)
	return &ics23.InnerOp{Hash: ics23.HashOp_SHA256, Prefix: prefix, Suffix: nil}
}

// probeResult is the outcome of walking the tree toward a key.
type probeResult struct {
	found           bool
	value           []byte
	conflictingLeaf *smtLeaf
	emptyAtDepth    int // -1 unless the walk hit a nil child
	path            []*ics23.InnerOp
}

func probe(n smtNode, depth int, keyHash [32]byte) probeResult {
	if n == nil {
		return probeResult{found: false, emptyAtDepth: depth}
	}
	if leaf, ok := n.(*smtLeaf); ok {
		if leaf.keyHash == keyHash {
			return probeResult{found: true, value: leaf.value, emptyAtDepth: -1}
		}
		return probeResult{found: false, conflictingLeaf: leaf, emptyAtDepth: -1}
	}
	branch := n.(*smtBranch)
	var sub probeResult
	if bitAt(keyHash, depth) == 0 {
		sub = probe(branch.left, depth+1, keyHash)
		sub.path = append(sub.path, rightSiblingOp(childHash(branch.right, depth+1)))
	} else {
		sub = probe(branch.right, depth+1, keyHash)
		sub.path = append(sub.path, leftSiblingOp(childHash(branch.left, depth+1)))
	}
	return sub
}

// defaultChainOps bridges the canonical empty hash at depth 256 down to the
// depth at which probe found a genuinely empty subtree, so a non-membership
// proof always starts its hash chain from the same fixed leaf value
// regardless of where the empty subtree was encountered.
func defaultChainOps(fromDepth int) []*ics23.InnerOp {
	ops := make([]*ics23.InnerOp, 0, maxDepth-fromDepth)
	for d := maxDepth; d > fromDepth; d-- {
		ops = append(ops, rightSiblingOp(defaultHashAtDepth[d]))
	}
	return ops
}

// buildExistenceProof constructs an ics23 ExistenceProof for (key, value)
// against the root of n. The caller ensures key is present in n.
func buildExistenceProof(n smtNode, key, value []byte) *ics23.ExistenceProof {
	keyHash := hashKey(key)
	return &ics23.ExistenceProof{
		Key:   key,
		Value: value,
		Leaf:  leafSpec,
		Path:  probeReconstructPath(n, keyHash),
	}
}

func probeReconstructPath(n smtNode, keyHash [32]byte) []*ics23.InnerOp {
	res := probe(n, 0, keyHash)
	return res.path
}

// buildMembershipProof returns an ics23.CommitmentProof proving (key,
// value) is present in n.
func buildMembershipProof(n smtNode, key, value []byte) *ics23.CommitmentProof {
	return &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Exist{Exist: buildExistenceProof(n, key, value)},
	}
}

// NonMembershipWitness is this package's own representation of a
// non-membership proof: either a sibling leaf that occupies the
// compressed position the target key would have taken, or the depth at
// which the walk found a genuinely empty subtree. ics23's generic
// VerifyNonMembership assumes an ordered (IAVL-style) tree where absence
// is proven via lexicographic left/right neighbors; this tree's patricia
// layout instead proves absence by exhibiting what, if anything, occupies
// the key's compressed position, so non-membership is verified with this
// package's own chain walk (Verify) rather than ics23's.
type NonMembershipWitness struct {
	Key             []byte
	ConflictingLeaf *ics23.ExistenceProof // set if a different key occupies the slot
	EmptyDepth      int                   // set (>=0) if the slot is simply empty; -1 otherwise
	Path            []*ics23.InnerOp      // path from the empty/conflicting slot to the root
}

func buildNonMembershipWitness(n smtNode, key []byte) NonMembershipWitness {
	keyHash := hashKey(key)
	res := probe(n, 0, keyHash)
	if res.found {
		panic("storage: buildNonMembershipWitness called for a present key")
	}
	if res.conflictingLeaf != nil {
		return NonMembershipWitness{
			Key: key,
			ConflictingLeaf: &ics23.ExistenceProof{
				Key:   res.conflictingLeaf.key,
				Value: res.conflictingLeaf.value,
				Leaf:  leafSpec,
				Path:  res.path,
			},
			EmptyDepth: -1,
		}
	}
	return NonMembershipWitness{Key: key, EmptyDepth: res.emptyAtDepth, Path: res.path}
}

// Verify reports whether w proves key's absence from the tree with the
// given root.
func (w NonMembershipWitness) Verify(root [32]byte) bool {
	if w.ConflictingLeaf != nil {
		if string(w.ConflictingLeaf.Key) == string(w.Key) {
			return false
		}
		return walkPath(leafHash(hashKey(w.ConflictingLeaf.Key), w.ConflictingLeaf.Value), w.ConflictingLeaf.Path) == root
	}
	fullPath := append(defaultChainOps(w.EmptyDepth), w.Path...)
	return walkPath(defaultHashAtDepth[maxDepth], fullPath) == root
}

// KeyProof is a single tree's proof for one key: exactly one of Exist or
// Nonexist is set.
type KeyProof struct {
	Exist    *ics23.ExistenceProof
	Nonexist *NonMembershipWitness
}

// Verify reports whether p proves Exist/Nonexist for its key against root.
// Membership proofs are checked with the real ics23 verifier against
// ProofSpec; non-membership proofs use this package's own chain walk.
func (p KeyProof) Verify(root [32]byte) bool {
	if p.Exist != nil {
		wrapped := &ics23.CommitmentProof{Proof: &ics23.CommitmentProof_Exist{Exist: p.Exist}}
		return ics23.VerifyMembership(ProofSpec, root[:], wrapped, p.Exist.Key, p.Exist.Value)
	}
	if p.Nonexist != nil {
		return p.Nonexist.Verify(root)
	}
	return false
}

// Proof is a chained proof of a key's presence or absence in one named
// substore: a proof within the substore's own tree, chained to a proof
// that the substore's root is the one recorded in the main store. A
// main-store key carries only the Main proof; a substore key chains
// Substore through Main.
type Proof struct {
	Substore *KeyProof // nil when Key belongs to the main store directly
	Main     KeyProof
}

func walkPath(leaf [32]byte, path []*ics23.InnerOp) [32]byte {
	cur := leaf
	for _, op := range path {
		data := make([]byte, 0, len(op.Prefix)+32+len(op.Suffix))
		data = append(data, op.Prefix...)
		data = append(data, cur[:]...)
		data = append(data, op.Suffix...)
		cur = sha256Sum(data)
	}
	return cur
}
