package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerCache implements Cache on an embedded Badger key-value store. Each
// page is kept as two records under the same key: the full Entry and its
// EntryInfo, written in one transaction so List never decodes vectors.
type BadgerCache struct {
	store *badgerhold.Store
	path  string
}

// NewBadgerCache opens (creating if needed) the Badger database in dir.
// An empty dir keeps the database in memory.
func NewBadgerCache(dir string) (*BadgerCache, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil
	if dir == "" {
		options.InMemory = true
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageError("open badger", fmt.Errorf("failed to create database directory: %w", err))
		}
		options.Dir = dir
		options.ValueDir = dir
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, storageError("open badger", err)
	}

	return &BadgerCache{store: store, path: dir}, nil
}

// Path returns the database directory
func (b *BadgerCache) Path() string {
	return b.path
}

// Close closes the database
func (b *BadgerCache) Close() error {
	if err := b.store.Close(); err != nil {
		return storageError("close", err)
	}
	return nil
}

// maxConflictRetries bounds re-runs of a transaction that lost a write race
const maxConflictRetries = 10

// update runs fn in a read-write transaction, re-running it when a
// concurrent writer committed first
func (b *BadgerCache) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Load returns the entry for pageKey
func (b *BadgerCache) Load(ctx context.Context, pageKey string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, storageError("load "+pageKey, err)
	}

	var entry Entry
	if err := b.store.Get(pageKey, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, storageError("load "+pageKey, err)
	}

	return &entry, true, nil
}

// Save replaces the entry for entry.PageKey in a single transaction.
// FormatVersion, CreatedAt and SavedAt are filled in on entry.
func (b *BadgerCache) Save(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return storageError("save "+entry.PageKey, err)
	}
	if err := entry.Validate(); err != nil {
		return storageError("save", err)
	}
	stamp(entry)
	info := entry.Info()

	err := b.update(func(txn *badger.Txn) error {
		if err := b.store.TxUpsert(txn, entry.PageKey, entry); err != nil {
			return err
		}
		return b.store.TxUpsert(txn, entry.PageKey, &info)
	})
	if err != nil {
		return storageError("save "+entry.PageKey, err)
	}

	return nil
}

// Delete removes one entry
func (b *BadgerCache) Delete(ctx context.Context, pageKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageError("delete "+pageKey, err)
	}

	existed := false
	err := b.update(func(txn *badger.Txn) error {
		existed = false
		var info EntryInfo
		if err := b.store.TxGet(txn, pageKey, &info); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil
			}
			return err
		}
		existed = true

		if err := b.store.TxDelete(txn, pageKey, &Entry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		return b.store.TxDelete(txn, pageKey, &EntryInfo{})
	})
	if err != nil {
		return false, storageError("delete "+pageKey, err)
	}

	return existed, nil
}

// Clear removes every entry
func (b *BadgerCache) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageError("clear", err)
	}

	var removed int
	err := b.update(func(txn *badger.Txn) error {
		n, err := b.store.TxCount(txn, &EntryInfo{}, nil)
		if err != nil {
			return err
		}
		removed = int(n)

		if err := b.store.TxDeleteMatching(txn, &Entry{}, nil); err != nil {
			return err
		}
		return b.store.TxDeleteMatching(txn, &EntryInfo{}, nil)
	})
	if err != nil {
		return 0, storageError("clear", err)
	}

	return removed, nil
}

// List returns metadata for every entry
func (b *BadgerCache) List(ctx context.Context) ([]EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("list", err)
	}

	infos := make([]EntryInfo, 0)
	if err := b.store.Find(&infos, nil); err != nil {
		return nil, storageError("list", err)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SavedAt.After(infos[j].SavedAt)
		}
		return infos[i].PageKey < infos[j].PageKey
	})

	return infos, nil
}
