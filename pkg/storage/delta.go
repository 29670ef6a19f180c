package storage

import "fmt"

type writeOp struct {
	deleted bool
	value   []byte
}

// Delta is a staged write-set layered over a Snapshot
// Reads are delta-first, falling back through any parent delta and
// finally to the base snapshot. Deltas are single-owner: callers must not
// share one across goroutines without external synchronisation.
type Delta struct {
	storage *Storage
	base    Snapshot
	parent  *Delta

	// writes maps substore name ("" for main) -> key -> writeOp. Only
	// consensus writes participate in Commit/CommitInPlace.
	writes map[string]map[string]writeOp
	// ephemeral mirrors writes but never reaches the merkle tree: it is
	// visible to Get within this delta's lifetime and dropped at commit.
	ephemeral map[string]map[string][]byte
}

// NewDelta stages a fresh write-set over snapshot.
func (s *Storage) NewDelta(snapshot Snapshot) *Delta {
	return &Delta{
		storage:   s,
		base:      snapshot,
		writes:    make(map[string]map[string]writeOp),
		ephemeral: make(map[string]map[string][]byte),
	}
}

// Fork returns a nested delta layered over d: d's writes are visible to
// reads on the child, but the child's own writes stay local until the
// caller folds them back with Absorb.
func (d *Delta) Fork() *Delta {
	return &Delta{
		storage:   d.storage,
		base:      d.base,
		parent:    d,
		writes:    make(map[string]map[string]writeOp),
		ephemeral: make(map[string]map[string][]byte),
	}
}

// Absorb folds child's staged writes into d, as if they had been made
// directly against d. child must not be used afterward.
func (d *Delta) Absorb(child *Delta) {
	for substore, m := range child.writes {
		if d.writes[substore] == nil {
			d.writes[substore] = make(map[string]writeOp, len(m))
		}
		for k, v := range m {
			d.writes[substore][k] = v
		}
	}
	for substore, m := range child.ephemeral {
		if d.ephemeral[substore] == nil {
			d.ephemeral[substore] = make(map[string][]byte, len(m))
		}
		for k, v := range m {
			d.ephemeral[substore][k] = v
		}
	}
}

func (d *Delta) route(key []byte) (substore string, rest []byte, isMain bool) {
	return d.storage.routeKey(key)
}

// PutRaw stages key=value for the next commit, routed to the correct
// substore (or the main store) by key's prefix.
func (d *Delta) PutRaw(key, value []byte) {
	substore, rest, isMain := d.route(key)
	k := rest
	if isMain {
		substore, k = "", key
	}
	if d.writes[substore] == nil {
		d.writes[substore] = make(map[string]writeOp)
	}
	d.writes[substore][string(k)] = writeOp{value: cloneBytes(value)}
}

// Delete stages key's removal for the next commit. A key written then
// deleted in the same delta behaves as absent
func (d *Delta) Delete(key []byte) {
	substore, rest, isMain := d.route(key)
	k := rest
	if isMain {
		substore, k = "", key
	}
	if d.writes[substore] == nil {
		d.writes[substore] = make(map[string]writeOp)
	}
	d.writes[substore][string(k)] = writeOp{deleted: true}
}

// PutEphemeral stages a non-consensus write: visible to Get within this
// delta's lifetime, but never persisted by Commit/CommitInPlace.
func (d *Delta) PutEphemeral(key, value []byte) {
	substore, rest, isMain := d.route(key)
	k := rest
	if isMain {
		substore, k = "", key
	}
	if d.ephemeral[substore] == nil {
		d.ephemeral[substore] = make(map[string][]byte)
	}
	d.ephemeral[substore][string(k)] = cloneBytes(value)
}

// Get reads key, delta-first (including ephemeral writes), falling back
// through any parent delta and finally to the base snapshot.
func (d *Delta) Get(key []byte) ([]byte, bool) {
	substore, rest, isMain := d.route(key)
	k := rest
	if isMain {
		substore, k = "", key
	}
	return d.getRouted(substore, k, key)
}

func (d *Delta) getRouted(substore, k string, originalKey []byte) ([]byte, bool) {
	if op, ok := d.writes[substore][k]; ok {
		if op.deleted {
			return nil, false
		}
		return op.value, true
	}
	if v, ok := d.ephemeral[substore][k]; ok {
		return v, true
	}
	if d.parent != nil {
		return d.parent.getRouted(substore, k, originalKey)
	}
	return d.base.Get(originalKey)
}

// touchedSubstores returns the set of substores (excluding main, tracked
// separately) this delta stages consensus writes for.
func (d *Delta) touchedSubstores() map[string]bool {
	touched := make(map[string]bool)
	for substore := range d.writes {
		if substore != "" {
			touched[substore] = true
		}
	}
	return touched
}

func applyWrites(tree smtNode, writes map[string]writeOp) smtNode {
	for k, op := range writes {
		keyBytes := []byte(k)
		kh := hashKey(keyBytes)
		if op.deleted {
			tree = smtDelete(tree, 0, kh)
		} else {
			tree = smtInsert(tree, 0, kh, keyBytes, op.value)
		}
	}
	return tree
}

// commit materialises delta's staged writes into a new snapshotState.
// inPlace controls whether the new version number advances.
func (s *Storage) commit(delta *Delta, inPlace bool) (RootHash, error) {
	if delta.storage != s {
		return RootHash{}, fmt.Errorf("storage: delta belongs to a different Storage")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RootHash{}, ErrClosed
	}

	prev := s.history[len(s.history)-1]
	newVersion := prev.version
	if !inPlace {
		newVersion = prev.version + 1
	}

	next := snapshotState{version: newVersion, substores: make(map[string]substoreVersion, len(prev.substores))}

	touched := delta.touchedSubstores()
	for name, sv := range prev.substores {
		if touched[name] {
			newTree := applyWrites(sv.tree, delta.writes[name])
			next.substores[name] = substoreVersion{tree: newTree, lastWrite: newVersion}
		} else {
			// Untouched substores keep their prior root and version.
			next.substores[name] = sv
		}
	}
	for name := range touched {
		if _, ok := prev.substores[name]; !ok {
			return RootHash{}, fmt.Errorf("%w: %q", ErrUnknownSubstore, name)
		}
	}

	mainTree := prev.main
	if mainWrites, ok := delta.writes[""]; ok {
		mainTree = applyWrites(mainTree, mainWrites)
	}
	for name := range touched {
		root := rootHash(next.substores[name].tree)
		leafKey := substoreRootLeafKey(name)
		mainTree = smtInsert(mainTree, 0, hashKey(leafKey), leafKey, root[:])
	}
	next.main = mainTree

	if inPlace {
		s.history[len(s.history)-1] = next
	} else {
		s.history = append(s.history, next)
	}

	if err := s.persist(next); err != nil {
		return RootHash{}, err
	}

	return RootHash(rootHash(next.main)), nil
}

// Commit atomically materialises delta as a new version v+1 of every
// substore it touches; untouched substores keep their prior root and
// version
func (s *Storage) Commit(delta *Delta) (RootHash, error) {
	return s.commit(delta, false)
}

// CommitInPlace is the migration commit: it has the same effect on state
// content as Commit, but the system version counter and every substore's
// version counter are left unchanged — only root hashes change. It must
// never be reachable from the regular transaction path; gate it behind a
// distinct upgrade-only entry point (the migration path).
func (s *Storage) CommitInPlace(delta *Delta) (RootHash, error) {
	return s.commit(delta, true)
}

// LatestVersion returns the current system version.
func (s *Storage) LatestVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[len(s.history)-1].version
}

// Release marks the Storage closed, so later commits fail with ErrClosed.
// It does not close or flush the backing store; every commit has already
// written its state to the backend. Snapshot handles obtained before
// Release remain valid to read from, since they hold an immutable value
// copy rather than a live reference.
func (s *Storage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
