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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxJournalLine bounds a single snapshot line during replay.
const maxJournalLine = 4 * 1024 * 1024

// Journal is the append-only JSONL event stream backing the ledger.
//
// Each line is one complete record snapshot. A record appears once when
// created and once more per confirmation, so readers must take the last
// snapshot per id (see ReplayJournal).
//
// Thread Safety: Appends are serialized; a line is written with a single
// Write call so concurrent appenders never interleave partial lines.
type Journal struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	syncWrites bool
}

// OpenJournal opens (or creates) the journal at path for appending.
//
// Inputs:
//
//	path - Journal file path. Parent directories are created.
//	syncWrites - fsync after every append.
//
// Outputs:
//
//	*Journal - The journal. Caller must Close it.
//	error - Non-nil if the file cannot be opened.
func OpenJournal(path string, syncWrites bool) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ledger: create journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ledger: open journal: %w", err)
	}
	return &Journal{file: file, path: path, syncWrites: syncWrites}, nil
}

// Path returns the file backing the journal.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one snapshot line for rec.
func (j *Journal) Append(rec *Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode snapshot %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("ledger: journal closed")
	}
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("ledger: append snapshot %s: %w", rec.ID, err)
	}
	if j.syncWrites {
		if err := j.file.Sync(); err != nil {
			return fmt.Errorf("ledger: sync journal: %w", err)
		}
	}
	return nil
}

// Close closes the journal file. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReplayResult is the current state reconstructed from a journal.
type ReplayResult struct {
	// Records maps id to the latest snapshot for that id.
	Records map[string]*Record

	// Order lists ids by first appearance in the journal.
	Order []string

	// Events is the number of snapshot lines read.
	Events int
}

// ReplayJournal reconstructs current ledger state from a snapshot stream.
//
// The last snapshot per id wins. Because a parent is not re-appended when
// a child is created, child links are re-derived from each record's
// parent_id in creation order and merged into the parent's child list.
// Blank lines are skipped; any other undecodable line is an error.
func ReplayJournal(r io.Reader) (*ReplayResult, error) {
	result := &ReplayResult{Records: make(map[string]*Record)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("ledger: journal line %d: %w", lineNo, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("ledger: journal line %d: snapshot without id", lineNo)
		}
		if _, seen := result.Records[rec.ID]; !seen {
			result.Order = append(result.Order, rec.ID)
		}
		result.Records[rec.ID] = &rec
		result.Events++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read journal: %w", err)
	}

	for _, id := range result.Order {
		rec := result.Records[id]
		if rec.ParentID == "" {
			continue
		}
		if parent, ok := result.Records[rec.ParentID]; ok && !parent.hasChild(id) {
			parent.ChildrenIDs = append(parent.ChildrenIDs, id)
		}
	}
	return result, nil
}

// ReplayJournalFile replays the journal at path. A missing file yields an
// empty result.
func ReplayJournalFile(path string) (*ReplayResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ReplayResult{Records: make(map[string]*Record)}, nil
		}
		return nil, fmt.Errorf("ledger: open journal for replay: %w", err)
	}
	defer file.Close()
	return ReplayJournal(file)
}
