// Package store wraps BadgerDB as the persisted key-value collaborator for
// the catalog and the background-download side-table. Values are whole JSON
// collections written atomically under fixed keys, so a crash can never leave
// a partially updated record behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Fixed storage keys. Consumers always replace the entire collection.
const (
	KeyCatalog   = "catalog/models"
	KeySideTable = "background/side-table"
	KeyJobs      = "background/jobs"
)

// Store is a thin JSON-over-Badger layer.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Directory for the database files. Ignored when InMemory is set.
	Dir string
	// InMemory disables persistence; used by tests.
	InMemory bool
}

// Open creates or opens the database.
func Open(o Options) (*Store, error) {
	opts := badger.DefaultOptions(o.Dir)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logging is noisy at Info; the daemon has its own logger.
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// GetJSON unmarshals the value at key into v. The second return is false when
// the key has never been written.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON replaces the value at key with the JSON encoding of v.
func (s *Store) PutJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
