package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	ics23 "github.com/bnb-chain/ics23/go"
)

// RootHash is a 32-byte merkle root.
type RootHash [32]byte

func (r RootHash) String() string { return hex.EncodeToString(r[:]) }

// substoreVersion pins the tree a substore held as of some system version,
// plus the version at which that tree last changed — so an untouched
// substore can report "my root hasn't moved since version N" even while
// the system version keeps advancing around it
type substoreVersion struct {
	tree       smtNode
	lastWrite  uint64
}

// snapshotState is the immutable content of one system version: every
// substore's tree as of that version, plus the main tree (which holds
// direct main-store keys and a reserved leaf per substore recording that
// substore's root).
type snapshotState struct {
	version   uint64
	main      smtNode
	substores map[string]substoreVersion
}

// Storage is the substore-aware versioned merkle key-value store.
// The zero value is not usable; use Load.
type Storage struct {
	mu      sync.RWMutex
	backend Backend

	substoreNames map[string]bool
	history       []snapshotState // committed states in ascending version order; the last is the latest
	closed        bool
}

// Load opens (or creates) a Storage backed by backend and registers
// substoreNames. Idempotent: calling Load again with the same backend
// resumes from whatever was last persisted. This is a deliberate simplification:
// no on-disk layout is prescribed; this package keeps the full multi-
// version tree in memory and write-throughs raw values to backend for
// durability of the latest committed state, matching the
// kvdb.Adapter/ledger.Store split between an in-memory index and a
// dbm.DB-backed byte store.
func Load(backend Backend, substoreNames []string) (*Storage, error) {
	s := &Storage{
		backend:       backend,
		substoreNames: make(map[string]bool, len(substoreNames)),
	}
	for _, n := range substoreNames {
		if n == "" {
			return nil, fmt.Errorf("storage: substore name must not be empty")
		}
		s.substoreNames[n] = true
	}

	genesis := snapshotState{version: 0, substores: make(map[string]substoreVersion)}
	for _, n := range substoreNames {
		genesis.substores[n] = substoreVersion{}
	}
	s.history = []snapshotState{genesis}

	if err := s.restoreFromBackend(); err != nil {
		return nil, err
	}
	return s, nil
}

// restoreFromBackend rebuilds the latest in-memory version from whatever
// per-substore metadata rows a prior process persisted, if any.
// Historical versions (anything before the latest) are not reconstructed
// across a process restart: this package rebuilds trees from flat
// key/value dumps rather than persisting an on-disk node format, and
// within a single process SnapshotAt serves every version this package
// itself has committed since Load.
func (s *Storage) restoreFromBackend() error {
	if s.backend == nil {
		return nil
	}
	rawVersion, err := s.backend.Get(metaLatestVersionKey)
	if err != nil {
		return fmt.Errorf("storage: reading latest version: %w", err)
	}
	if rawVersion == nil {
		return nil
	}
	latest := snapshotState{version: bytesToVersion(rawVersion), substores: make(map[string]substoreVersion)}

	rawMain, err := s.backend.Get(metaMainKey())
	if err != nil {
		return fmt.Errorf("storage: reading main store: %w", err)
	}
	var mainValues map[string][]byte
	if rawMain != nil {
		if err := json.Unmarshal(rawMain, &mainValues); err != nil {
			return fmt.Errorf("storage: decoding main store: %w", err)
		}
	}
	var mainTree smtNode
	for k, v := range mainValues {
		mainTree = smtInsert(mainTree, 0, hashKey([]byte(k)), []byte(k), v)
	}
	latest.main = mainTree

	for name := range s.substoreNames {
		rawEntry, err := s.backend.Get(metaSubstoreKey(name))
		if err != nil {
			return fmt.Errorf("storage: reading substore %q: %w", name, err)
		}
		var entry substoreDump
		if rawEntry != nil {
			if err := json.Unmarshal(rawEntry, &entry); err != nil {
				return fmt.Errorf("storage: decoding substore %q: %w", name, err)
			}
		}
		var tree smtNode
		for k, v := range entry.Values {
			tree = smtInsert(tree, 0, hashKey([]byte(k)), []byte(k), v)
		}
		latest.substores[name] = substoreVersion{tree: tree, lastWrite: entry.LastWrite}
	}
	s.history = append(s.history, latest)
	return nil
}

type substoreDump struct {
	LastWrite uint64            `json:"lastWrite"`
	Values    map[string][]byte `json:"values"`
}

func (s *Storage) persist(state snapshotState) error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Set(metaLatestVersionKey, versionBytes(state.version)); err != nil {
		return fmt.Errorf("storage: persisting latest version: %w", err)
	}
	mainRaw, err := json.Marshal(collectLeaves(state.main))
	if err != nil {
		return fmt.Errorf("storage: encoding main store: %w", err)
	}
	if err := s.backend.Set(metaMainKey(), mainRaw); err != nil {
		return fmt.Errorf("storage: persisting main store: %w", err)
	}
	for name, sv := range state.substores {
		dump := substoreDump{LastWrite: sv.lastWrite, Values: collectLeaves(sv.tree)}
		raw, err := json.Marshal(dump)
		if err != nil {
			return fmt.Errorf("storage: encoding substore %q: %w", name, err)
		}
		if err := s.backend.Set(metaSubstoreKey(name), raw); err != nil {
			return fmt.Errorf("storage: persisting substore %q: %w", name, err)
		}
	}
	return nil
}

func collectLeaves(n smtNode) map[string][]byte {
	out := make(map[string][]byte)
	var walk func(smtNode)
	walk = func(n smtNode) {
		switch t := n.(type) {
		case nil:
			return
		case *smtLeaf:
			out[string(t.key)] = t.value
		case *smtBranch:
			walk(t.left)
			walk(t.right)
		}
	}
	walk(n)
	return out
}

// Snapshot is a cheap, immutable, cloneable handle to a committed version
// of Storage.
type Snapshot struct {
	storage *Storage
	state   snapshotState
}

// LatestSnapshot returns a handle to the most recently committed version.
func (s *Storage) LatestSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{storage: s, state: s.history[len(s.history)-1]}
}

// SnapshotAt returns a handle to a specific past version (spec_full.md
// §5's "per-height historical ledger queries" supplement).
func (s *Storage) SnapshotAt(version uint64) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.history {
		if st.version == version {
			return Snapshot{storage: s, state: st}, nil
		}
	}
	return Snapshot{}, fmt.Errorf("storage: no snapshot at version %d", version)
}

// Version reports the system version this snapshot was taken at.
func (sn Snapshot) Version() uint64 { return sn.state.version }

// routeKey splits key into (substore, rest) if its prefix ("prefix/rest")
// names a registered substore, or reports isMain if not.
func (s *Storage) routeKey(key []byte) (substore string, rest []byte, isMain bool) {
	ks := string(key)
	if i := strings.IndexByte(ks, '/'); i >= 0 {
		prefix := ks[:i]
		if s.substoreNames[prefix] {
			return prefix, key[i+1:], false
		}
	}
	return "", key, true
}

func substoreRootLeafKey(name string) []byte {
	return []byte("substore-root/" + name)
}

// Get routes key to the correct substore (or the main store) and returns
// its value, or found=false if absent.
func (sn Snapshot) Get(key []byte) ([]byte, bool) {
	substore, rest, isMain := sn.storage.routeKey(key)
	if isMain {
		return smtGet(sn.state.main, 0, hashKey(key))
	}
	sv, ok := sn.state.substores[substore]
	if !ok {
		return nil, false
	}
	return smtGet(sv.tree, 0, hashKey(rest))
}

// KeysWithPrefix returns every key routed to the same store as prefix
// (main store, or the substore named by prefix's own "substore/" segment)
// whose routed key starts with prefix, in no particular order. It walks
// the in-memory tree directly rather than a backend range scan, since
// Storage keeps the full tree resident; callers needing a stable order
// should sort the result themselves.
func (sn Snapshot) KeysWithPrefix(prefix string) []string {
	substore, rest, isMain := sn.storage.routeKey([]byte(prefix))
	var tree smtNode
	if isMain {
		tree = sn.state.main
	} else {
		tree = sn.state.substores[substore].tree
	}
	var out []string
	for k := range collectLeaves(tree) {
		if strings.HasPrefix(k, string(rest)) {
			out = append(out, k)
		}
	}
	return out
}

// RootHash returns the main-store root at this version.
func (sn Snapshot) RootHash() RootHash {
	return RootHash(rootHash(sn.state.main))
}

// PrefixRootHash returns substore's own root at this version.
func (sn Snapshot) PrefixRootHash(substore string) (RootHash, error) {
	sv, ok := sn.state.substores[substore]
	if !ok {
		return RootHash{}, ErrUnknownSubstore
	}
	return RootHash(rootHash(sv.tree)), nil
}

// GetWithProof returns the value for key (if present) along with a chained
// ICS23-style MerkleProof against this snapshot's RootHash: a two-element
// chain for substore keys (substore inclusion/absence, then main-store
// inclusion of the substore root), a one-element chain for main-store
// keys.
func (sn Snapshot) GetWithProof(key []byte) ([]byte, *Proof, error) {
	substore, rest, isMain := sn.storage.routeKey(key)
	if isMain {
		kp := keyProofFor(sn.state.main, key)
		val, _ := smtGet(sn.state.main, 0, hashKey(key))
		return val, &Proof{Main: kp}, nil
	}
	sv, ok := sn.state.substores[substore]
	if !ok {
		return nil, nil, ErrUnknownSubstore
	}
	subProof := keyProofFor(sv.tree, rest)
	val, _ := smtGet(sv.tree, 0, hashKey(rest))

	rootLeafKey := substoreRootLeafKey(substore)
	mainProof := keyProofFor(sn.state.main, rootLeafKey)
	return val, &Proof{Substore: &subProof, Main: mainProof}, nil
}

func keyProofFor(n smtNode, key []byte) KeyProof {
	keyHash := hashKey(key)
	if v, ok := smtGet(n, 0, keyHash); ok {
		return KeyProof{Exist: buildExistenceProof(n, key, v)}
	}
	w := buildNonMembershipWitness(n, key)
	return KeyProof{Nonexist: &w}
}

// splitKey mirrors Storage.routeKey but needs no live registration: the
// verifier only has the proof and the key the prover claims to have used,
// so a two-element Proof is taken as self-asserting that key is
// substore-prefixed.
func splitKey(key []byte) (substore string, rest []byte, hasPrefix bool) {
	ks := string(key)
	if i := strings.IndexByte(ks, '/'); i >= 0 {
		return ks[:i], key[i+1:], true
	}
	return "", key, false
}

// existenceChainRoot reconstructs the root an ICS23 existence proof
// chains to, by re-hashing its leaf and walking its inner-op path — the
// same chain walkPath uses for non-membership, reused here so membership
// verification at each level shares one code path.
func existenceChainRoot(e *ics23.ExistenceProof) [32]byte {
	leaf := leafHash(hashKey(e.Key), e.Value)
	return walkPath(leaf, e.Path)
}

// VerifyMembership reports whether proof proves key maps to value against
// root, chaining through the substore level (if present) to the main
// level.
func VerifyMembership(root RootHash, proof *Proof, key, value []byte) bool {
	if proof.Substore != nil {
		se := proof.Substore.Exist
		if se == nil || string(se.Value) != string(value) {
			return false
		}
		substoreName, rest, ok := splitKey(key)
		if !ok || string(se.Key) != string(rest) {
			return false
		}
		subRoot := existenceChainRoot(se)

		me := proof.Main.Exist
		if me == nil || string(me.Key) != string(substoreRootLeafKey(substoreName)) {
			return false
		}
		if string(me.Value) != string(subRoot[:]) {
			return false
		}
		return existenceChainRoot(me) == [32]byte(root)
	}
	me := proof.Main.Exist
	if me == nil || string(me.Key) != string(key) || string(me.Value) != string(value) {
		return false
	}
	return existenceChainRoot(me) == [32]byte(root)
}

// VerifyNonMembership reports whether proof proves key is absent from the
// tree committed to by root. For a substore-prefixed key, the substore
// itself must still exist in the main tree (only the key within it is
// absent), so the main-level half of the chain is an existence proof of
// the substore's root leaf.
func VerifyNonMembership(root RootHash, proof *Proof, key []byte) bool {
	if proof.Substore != nil {
		if proof.Substore.Nonexist == nil {
			return false
		}
		substoreName, rest, ok := splitKey(key)
		if !ok || string(proof.Substore.Nonexist.Key) != string(rest) {
			return false
		}
		me := proof.Main.Exist
		if me == nil || string(me.Key) != string(substoreRootLeafKey(substoreName)) {
			return false
		}
		if len(me.Value) != 32 {
			return false
		}
		var subRoot [32]byte
		copy(subRoot[:], me.Value)
		if !proof.Substore.Nonexist.Verify(subRoot) {
			return false
		}
		return existenceChainRoot(me) == [32]byte(root)
	}
	if proof.Main.Nonexist == nil || string(proof.Main.Nonexist.Key) != string(key) {
		return false
	}
	return proof.Main.Nonexist.Verify([32]byte(root))
}
