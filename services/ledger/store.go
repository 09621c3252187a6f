// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	storage "github.com/AleutianAI/conscience/services/storage/badger"
)

// RecordStore is the current-state index over the journal: one entry per
// genesis id, overwritten in place on every change.
//
// Implementations must store copies; a record passed to Put must not be
// retained, and Get must return a record the caller may modify.
type RecordStore interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *Record) error

	// Len returns the number of records.
	Len(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// MemoryStore is an in-process RecordStore.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get implements RecordStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Put implements RecordStore.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Len implements RecordStore.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close implements RecordStore.
func (s *MemoryStore) Close() error { return nil }

// badgerKeyPrefix namespaces genesis snapshots in the index.
const badgerKeyPrefix = "genesis/"

// BadgerStore is a RecordStore persisted in BadgerDB.
//
// Values are the same JSON snapshots written to the journal.
type BadgerStore struct {
	db *storage.DB
}

// NewBadgerStore wraps an open database. The store owns db and closes it.
func NewBadgerStore(db *storage.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a BadgerDB with cfg and wraps it.
func OpenBadgerStore(cfg storage.Config) (*BadgerStore, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: open index: %w", err)
	}
	return NewBadgerStore(db), nil
}

func badgerKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

// Get implements RecordStore.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: index get %s: %w", id, err)
	}
	return &rec, nil
}

// Put implements RecordStore.
func (s *BadgerStore) Put(ctx context.Context, rec *Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode index entry %s: %w", rec.ID, err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.ID), val)
	})
	if err != nil {
		return fmt.Errorf("ledger: index put %s: %w", rec.ID, err)
	}
	return nil
}

// Len implements RecordStore.
func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	count := 0
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: index len: %w", err)
	}
	return count, nil
}

// Close implements RecordStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
