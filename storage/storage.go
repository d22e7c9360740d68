// storage package contains the artifacts the voting node keeps in its local
// key-value database. The following prefixes are used:
//   - 'u/' for passkey users
//   - 'c/' for the credential ID to user ID index
//   - 'w/' for pending WebAuthn ceremonies
//   - 'm/' for the mirror of the Semaphore group members
//   - 's/' for the last block synced per group
package storage

import (
	"errors"
	"fmt"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	userPrefix       = []byte("u/")
	credentialPrefix = []byte("c/")
	ceremonyPrefix   = []byte("w/")
	memberPrefix     = []byte("m/")
	syncPrefix       = []byte("s/")
)

// ErrNotFound is returned when an artifact is not in the storage.
var ErrNotFound = errors.New("not found")

// Storage wraps the database with typed accessors for every artifact.
type Storage struct {
	db db.Database
	// membersLock serializes the read-check-write of member inserts
	membersLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// getArtifact reads and decodes the artifact stored at prefix/key into out.
// It returns ErrNotFound if there is none.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := decodeArtifact(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}

// setArtifact encodes and stores the artifact at prefix/key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes the artifact at prefix/key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := rTx.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}

// iterateArtifacts calls fn with every key (without prefix) and raw value
// under prefix, in key order, until fn returns false.
func (s *Storage) iterateArtifacts(prefix []byte, fn func(key, value []byte) bool) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	return rTx.Iterate(nil, func(k, v []byte) bool {
		// the database reuses the buffers between iterations
		key := append([]byte{}, k...)
		value := append([]byte{}, v...)
		return fn(key, value)
	})
}
