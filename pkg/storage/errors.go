package storage

import "errors"

var (
	// ErrUnknownSubstore is returned when a delta or snapshot operation
	// names a substore that was not registered with Load.
	ErrUnknownSubstore = errors.New("storage: unknown substore")
	// ErrClosed is returned by Commit and CommitInPlace on a Storage after
	// Release.
	ErrClosed = errors.New("storage: already released")
	// ErrKeyNotFound names an absent key. Snapshot.Get and Delta.Get do not
	// return it: they report absence with found=false, and GetWithProof
	// returns a non-membership proof.
	ErrKeyNotFound = errors.New("storage: key not found")
)
