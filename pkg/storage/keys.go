package storage

import "encoding/binary"

// Key namespacing: a metadata area tracking the latest version, plus one
// metadata row per substore recording its latest version and the live
// key/value set needed to rebuild its tree on Load. Internal tree nodes
// are not separately persisted; a substore's tree is rebuilt from its
// metadata row. This is an explicit simplification: only the latest
// version of each substore survives a process restart (see
// restoreFromBackend); older versions live only in the in-memory
// history built up since Load.
var metaLatestVersionKey = []byte("meta/latest_version")

func metaSubstoreKey(name string) []byte {
	return append([]byte("meta/substore/"), []byte(name)...)
}

func metaMainKey() []byte {
	return []byte("meta/main")
}

func versionBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToVersion(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
