package storage

import (
	dbm "github.com/cometbft/cometbft-db"
)

// Backend is the durable byte store Storage persists metadata and values
// to. It is satisfied directly by github.com/cometbft/cometbft-db's DB,
// the same backend CometBFT itself uses for application state.
type Backend interface {
	Get([]byte) ([]byte, error)
	Set([]byte, []byte) error
	Delete([]byte) error
}

// dbmBackend adapts a cometbft-db DB to Backend, persisting writes
// synchronously so a commit is durable before Storage.Commit returns.
type dbmBackend struct {
	db dbm.DB
}

// NewBackend wraps db for use as a Storage backend.
func NewBackend(db dbm.DB) Backend {
	return &dbmBackend{db: db}
}

func (b *dbmBackend) Get(key []byte) ([]byte, error) {
	if b.db == nil {
		return nil, nil
	}
	return b.db.Get(key)
}

func (b *dbmBackend) Set(key, value []byte) error {
	if b.db == nil {
		return nil
	}
	return b.db.SetSync(key, value)
}

func (b *dbmBackend) Delete(key []byte) error {
	if b.db == nil {
		return nil
	}
	return b.db.DeleteSync(key)
}
