// Package badger persists mount definitions in BadgerDB.
//
// This is the Go counterpart of the relational table the admin surface edits:
// davadm writes mount records here and the server loads them at startup. Keys
// are namespaced with the "m:" prefix (one record per mount, keyed by URL
// prefix) and values are JSON for easy debugging.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/browncloud/davfs/pkg/registry"
	"github.com/browncloud/davfs/pkg/store/mounts"
)

const mountKeyPrefix = "m:"

func mountKey(urlPrefix string) []byte {
	return []byte(mountKeyPrefix + urlPrefix)
}

// BadgerStore implements mounts.Store on a BadgerDB database.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for a config store
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open mount store at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// List returns all stored mounts ordered by URL prefix. Records that fail to
// decode are skipped with an error only if every record is bad; a single
// corrupt record must not take the server down.
func (s *BadgerStore) List(ctx context.Context) ([]*registry.Mount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*registry.Mount
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(mountKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var m registry.Mount
				if err := json.Unmarshal(val, &m); err != nil {
					return fmt.Errorf("corrupt mount record %q: %w", item.Key(), err)
				}
				out = append(out, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].URLPrefix < out[j].URLPrefix })
	return out, nil
}

// Put stores a mount definition, replacing any record with the same prefix.
func (s *BadgerStore) Put(ctx context.Context, m *registry.Mount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.URLPrefix == "" {
		return fmt.Errorf("cannot store mount with empty url prefix")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mount %q: %w", m.URLPrefix, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mountKey(m.URLPrefix), data)
	})
}

// Remove deletes a mount record.
func (s *BadgerStore) Remove(ctx context.Context, urlPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(mountKey(urlPrefix))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("mount %q: %w", urlPrefix, mounts.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return txn.Delete(mountKey(urlPrefix))
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
