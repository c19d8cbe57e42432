// Package boltstore persists player accounts and engine snapshots in a
// bbolt database. The engine itself never touches this package; the
// transport layer saves a snapshot when a session ends and restores it at
// login.
package boltstore

import (
	"fmt"
	"os"

	bbolt "go.etcd.io/bbolt"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta      = []byte("meta")
	bucketAccounts  = []byte("accounts")
	bucketSnapshots = []byte("snapshots")
)

// Meta key constants.
var (
	keyFormat = []byte("format")
)

// formatVersion is bumped when the snapshot encoding changes shape.
const formatVersion = "1"

// Store wraps a bbolt database holding accounts and snapshots.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketAccounts, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyFormat, []byte(formatVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Snapshot writes a consistent copy of the database to destPath using a
// read transaction, so it is safe while the server is live.
func (s *Store) Snapshot(destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("boltstore: create snapshot %s: %w", destPath, err)
	}
	defer f.Close()

	err = s.bolt.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return fmt.Errorf("boltstore: snapshot: %w", err)
	}
	return f.Sync()
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt == nil {
		return ""
	}
	return s.bolt.Path()
}
