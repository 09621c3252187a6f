// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger implements the Responsibility Ledger: provenance records
// ("genesis") for every action, parent/child linkage, and reconstruction
// of responsibility chains.
//
// # Storage Model
//
// The ledger is a write-ahead log plus index:
//
//	Create/Confirm ──► Journal (JSONL, append-only, source of truth)
//	               └─► RecordStore (current state per id, O(1) reads)
//
// Every Create appends the new record's snapshot; every successful Confirm
// appends the updated snapshot again. On Open the journal is replayed into
// the store, taking the last snapshot per id.
//
// # Thread Safety
//
// Ledger is safe for concurrent use. Mutations are serialized so the
// journal order matches the order in which state changed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// idLength is the number of hex characters in a genesis id.
const idLength = 8

// maxIDAttempts bounds regeneration on short-id collisions.
const maxIDAttempts = 16

// Options configures a Ledger.
type Options struct {
	// JournalPath is the JSONL journal file. Required.
	JournalPath string

	// SyncWrites fsyncs the journal after every append.
	SyncWrites bool

	// Store is the current-state index. Default: NewMemoryStore().
	// The ledger takes ownership and closes it.
	Store RecordStore

	// Logger for ledger events. Default: slog.Default().
	Logger *slog.Logger
}

// Ledger tracks genesis records.
type Ledger struct {
	mu      sync.Mutex
	journal *Journal
	store   RecordStore
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// Open opens the journal, replays it into the store, and returns a ready
// ledger.
//
// Outputs:
//
//	*Ledger - The ledger. Caller must Close it.
//	error - Non-nil if the journal cannot be opened or replayed.
func Open(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	replay, err := ReplayJournalFile(opts.JournalPath)
	if err != nil {
		return nil, err
	}
	for _, id := range replay.Order {
		if err := opts.Store.Put(ctx, replay.Records[id]); err != nil {
			return nil, fmt.Errorf("ledger: rebuild index: %w", err)
		}
	}

	journal, err := OpenJournal(opts.JournalPath, opts.SyncWrites)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("ledger opened",
		"journal", opts.JournalPath,
		"records", len(replay.Order),
		"events", replay.Events,
	)

	return &Ledger{
		journal: journal,
		store:   opts.Store,
		logger:  opts.Logger,
		newID:   func() string { return uuid.NewString()[:idLength] },
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the journal and the store.
func (l *Ledger) Close() error {
	return errors.Join(l.journal.Close(), l.store.Close())
}

// JournalPath returns the path of the backing journal.
func (l *Ledger) JournalPath() string {
	return l.journal.Path()
}

// Create allocates a new genesis record and durably appends it.
//
// If req.ParentID resolves to an existing record, the new id is appended to
// that parent's child list before Create returns. An unknown parent id is
// kept on the record but not linked. The only failure is a storage error;
// the journal is written before the index so a failed append leaves the
// ledger unchanged.
//
// An index failure after the append returns the record together with an
// error wrapping ErrIndexUpdate. The record is already in the journal and
// reappears on the next Open, so callers must not retry the create.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.Create", trace.WithAttributes(
		attribute.String("tier", req.Tier.String()),
		attribute.Bool("is_mine", req.IsMine),
		attribute.Bool("has_parent", req.ParentID != ""),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.allocateID(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rec := &Record{
		ID:              id,
		Timestamp:       l.now(),
		Initiator:       req.Initiator,
		Tier:            req.Tier,
		OriginalRequest: req.Request,
		ParentID:        req.ParentID,
		ChildrenIDs:     []string{},
		IsMine:          req.IsMine,
	}

	var parent *Record
	if req.ParentID != "" {
		parent, err = l.store.Get(ctx, req.ParentID)
		switch {
		case errors.Is(err, ErrNotFound):
			parent = nil
			l.logger.Warn("genesis parent not found, leaving unlinked",
				"genesis_id", id, "parent_id", req.ParentID)
		case err != nil:
			span.RecordError(err)
			return nil, err
		}
	}

	if err := l.journal.Append(rec); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := l.store.Put(ctx, rec); err != nil {
		return l.indexFailed(span, rec, err)
	}
	if parent != nil && !parent.hasChild(id) {
		parent.ChildrenIDs = append(parent.ChildrenIDs, id)
		if err := l.store.Put(ctx, parent); err != nil {
			return l.indexFailed(span, rec, err)
		}
	}

	span.SetAttributes(attribute.String("genesis_id", id))
	recordCreated(ctx, rec.Tier)
	l.logger.Debug("genesis created",
		"genesis_id", id,
		"tier", rec.Tier.String(),
		"initiator", rec.Initiator,
		"parent_id", rec.ParentID,
	)
	return rec.Clone(), nil
}

func (l *Ledger) allocateID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := l.newID()
		_, err := l.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("ledger: could not allocate a unique id after %d attempts", maxIDAttempts)
}

// Confirm marks a record as confirmed with reason and re-appends it.
//
// Unknown ids return false with a nil error. Confirming twice keeps
// Confirmed true and replaces the reason; both events stay in the journal.
// An index failure after the append returns true with an error wrapping
// ErrIndexUpdate.
func (l *Ledger) Confirm(ctx context.Context, id, reason string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ledger.Confirm", trace.WithAttributes(
		attribute.String("genesis_id", id),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		recordConfirmation(ctx, false)
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	rec.Confirmed = true
	rec.ConfirmationReason = &reason

	if err := l.journal.Append(rec); err != nil {
		span.RecordError(err)
		return false, err
	}
	if err := l.store.Put(ctx, rec); err != nil {
		_, err = l.indexFailed(span, rec, err)
		return true, err
	}

	recordConfirmation(ctx, true)
	l.logger.Info("genesis confirmed", "genesis_id", id)
	return true, nil
}

func (l *Ledger) indexFailed(span trace.Span, rec *Record, err error) (*Record, error) {
	err = fmt.Errorf("ledger: %w: %s: %w", ErrIndexUpdate, rec.ID, err)
	span.RecordError(err)
	l.logger.Error("genesis journaled but not indexed", "genesis_id", rec.ID, "error", err)
	return rec.Clone(), err
}

// Get returns a copy of the record for id, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	return l.store.Get(ctx, id)
}

// Len returns the number of records in the ledger.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	return l.store.Len(ctx)
}

// GetChain returns the responsibility chain ending at id, root first.
//
// The walk follows parent links upward and stops at a record without a
// parent, at the first unknown id, or on revisiting an id. An unknown id
// yields an empty chain.
func (l *Ledger) GetChain(ctx context.Context, id string) ([]*Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.GetChain", trace.WithAttributes(
		attribute.String("genesis_id", id),
	))
	defer span.End()

	var chain []*Record
	seen := make(map[string]bool)
	for current := id; current != "" && !seen[current]; {
		rec, err := l.store.Get(ctx, current)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		seen[current] = true
		chain = append(chain, rec)
		current = rec.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	span.SetAttributes(attribute.Int("depth", len(chain)))
	recordChain(ctx, len(chain))
	return chain, nil
}
