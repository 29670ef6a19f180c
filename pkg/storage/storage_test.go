package storage

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Load(NewBackend(dbm.NewMemDB()), []string{"ibc", "dex", "misc"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestCommitAdvancesVersionAndTouchedRoots(t *testing.T) {
	s := newTestStorage(t)
	snap := s.LatestSnapshot()
	if snap.Version() != 0 {
		t.Fatalf("genesis version = %d, want 0", snap.Version())
	}

	d := s.NewDelta(snap)
	d.PutRaw([]byte("ibc/alpha"), []byte("one"))
	d.PutRaw([]byte("plain"), []byte("two"))

	before, err := snap.PrefixRootHash("dex")
	if err != nil {
		t.Fatalf("PrefixRootHash: %v", err)
	}

	if _, err := s.Commit(d); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	next := s.LatestSnapshot()
	if next.Version() != 1 {
		t.Fatalf("version after commit = %d, want 1", next.Version())
	}
	after, err := next.PrefixRootHash("dex")
	if err != nil {
		t.Fatalf("PrefixRootHash: %v", err)
	}
	if after != before {
		t.Fatalf("untouched substore dex root changed across commit")
	}

	v, ok := next.Get([]byte("ibc/alpha"))
	if !ok || string(v) != "one" {
		t.Fatalf("Get(ibc/alpha) = %q, %v", v, ok)
	}
	v, ok = next.Get([]byte("plain"))
	if !ok || string(v) != "two" {
		t.Fatalf("Get(plain) = %q, %v", v, ok)
	}
}

func TestDeleteThenGetIsAbsent(t *testing.T) {
	s := newTestStorage(t)
	d := s.NewDelta(s.LatestSnapshot())
	d.PutRaw([]byte("misc/k"), []byte("v"))
	d.Delete([]byte("misc/k"))
	if _, ok := d.Get([]byte("misc/k")); ok {
		t.Fatalf("expected key absent after put-then-delete in same delta")
	}
	if _, err := s.Commit(d); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snap := s.LatestSnapshot()
	if _, ok := snap.Get([]byte("misc/k")); ok {
		t.Fatalf("expected key absent after commit")
	}
	_, proof, err := snap.GetWithProof([]byte("misc/k"))
	if err != nil {
		t.Fatalf("GetWithProof: %v", err)
	}
	if !VerifyNonMembership(snap.RootHash(), proof, []byte("misc/k")) {
		t.Fatalf("non-membership proof did not verify")
	}
}

func TestGetWithProofMembershipRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	d := s.NewDelta(s.LatestSnapshot())
	d.PutRaw([]byte("ibc/hello"), []byte("world"))
	if _, err := s.Commit(d); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snap := s.LatestSnapshot()
	val, proof, err := snap.GetWithProof([]byte("ibc/hello"))
	if err != nil {
		t.Fatalf("GetWithProof: %v", err)
	}
	if string(val) != "world" {
		t.Fatalf("value = %q, want world", val)
	}
	if !VerifyMembership(snap.RootHash(), proof, []byte("ibc/hello"), []byte("world")) {
		t.Fatalf("membership proof did not verify")
	}
}

// TestMigrationCommit verifies that a migration commit writing a new
// main-store key plus one key in each of three substores leaves
// latest_version unchanged and changes every touched root.
func TestMigrationCommit(t *testing.T) {
	s := newTestStorage(t)

	// Seed ten keys per substore so the scenario's starting shape matches.
	seed := s.NewDelta(s.LatestSnapshot())
	for _, name := range []string{"ibc", "dex", "misc"} {
		for i := 0; i < 10; i++ {
			seed.PutRaw([]byte(name+"/k"+string(rune('a'+i))), []byte("v"))
		}
	}
	if _, err := s.Commit(seed); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	before := s.LatestSnapshot()
	beforeVersion := before.Version()
	beforeIbc, _ := before.PrefixRootHash("ibc")
	beforeDex, _ := before.PrefixRootHash("dex")
	beforeMisc, _ := before.PrefixRootHash("misc")

	if _, ok := before.Get([]byte("banana")); ok {
		t.Fatalf("banana should be absent before migration")
	}

	migration := s.NewDelta(before)
	migration.PutRaw([]byte("banana"), []byte("a good fruit"))
	migration.PutRaw([]byte("ibc/new"), []byte("x"))
	migration.PutRaw([]byte("dex/new"), []byte("x"))
	migration.PutRaw([]byte("misc/new"), []byte("x"))

	newRoot, err := s.CommitInPlace(migration)
	if err != nil {
		t.Fatalf("CommitInPlace: %v", err)
	}

	after := s.LatestSnapshot()
	if after.Version() != beforeVersion {
		t.Fatalf("version changed across migration commit: %d -> %d", beforeVersion, after.Version())
	}
	afterIbc, _ := after.PrefixRootHash("ibc")
	afterDex, _ := after.PrefixRootHash("dex")
	afterMisc, _ := after.PrefixRootHash("misc")
	if afterIbc == beforeIbc || afterDex == beforeDex || afterMisc == beforeMisc {
		t.Fatalf("expected every touched substore root to change")
	}
	if after.RootHash() != newRoot {
		t.Fatalf("latest snapshot root does not match CommitInPlace's returned root")
	}

	val, proof, err := after.GetWithProof([]byte("banana"))
	if err != nil {
		t.Fatalf("GetWithProof: %v", err)
	}
	if string(val) != "a good fruit" {
		t.Fatalf("banana = %q", val)
	}
	if !VerifyMembership(after.RootHash(), proof, []byte("banana"), []byte("a good fruit")) {
		t.Fatalf("banana membership proof did not verify against post-migration root")
	}

	// The pre-migration snapshot handle is unaffected: it still reads the
	// old roots, since it holds a value copy rather than a live pointer.
	stillBeforeIbc, _ := before.PrefixRootHash("ibc")
	if stillBeforeIbc != beforeIbc {
		t.Fatalf("pre-migration snapshot mutated in place")
	}
}

func TestUnregisteredPrefixRoutesToMainStore(t *testing.T) {
	s := newTestStorage(t)
	d := s.NewDelta(s.LatestSnapshot())
	d.PutRaw([]byte("nosuch/key"), []byte("v"))
	if _, err := s.Commit(d); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	v, ok := s.LatestSnapshot().Get([]byte("nosuch/key"))
	if !ok || string(v) != "v" {
		t.Fatalf("expected nosuch/key to be stored verbatim in the main store")
	}
}
