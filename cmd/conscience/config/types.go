// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/conscience/services/llm"
	"github.com/AleutianAI/conscience/services/telemetry"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

// Index backends for the ledger.
const (
	IndexMemory = "memory"
	IndexBadger = "badger"
)

type ConscienceConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// Ledger: where genesis records are journaled
	Ledger LedgerConfig `yaml:"ledger"`

	// Gate: extra risk lexicon terms
	Gate GateConfig `yaml:"gate"`

	// Council: deliberation settings and the advisor model
	Council CouncilConfig `yaml:"council"`

	// Audit: benevolence filter protocol
	Audit AuditConfig `yaml:"audit"`

	// Server: HTTP gateway
	Server ServerConfig `yaml:"server"`

	// Logging: level and optional JSON log directory
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry: OpenTelemetry exporters
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type LedgerConfig struct {
	JournalPath string `yaml:"journal_path" validate:"required"`
	SyncWrites  bool   `yaml:"sync_writes"`
	// Index is "memory" or "badger"; badger keeps a rebuildable index on disk.
	Index     string `yaml:"index" validate:"oneof=memory badger"`
	BadgerDir string `yaml:"badger_dir" validate:"required_if=Index badger"`
}

type GateConfig struct {
	// LexiconPath is an optional YAML file adding terms to the built-in ones.
	LexiconPath string `yaml:"lexicon_path,omitempty"`
	// Watch reloads LexiconPath when it changes (serve only).
	Watch bool `yaml:"watch"`
}

type CouncilConfig struct {
	// Offline replaces the model with a deterministic local advisor.
	Offline      bool              `yaml:"offline"`
	HistoryLimit int               `yaml:"history_limit" validate:"gte=0"`
	LLM          llm.BackendConfig `yaml:"llm"`
}

type AuditConfig struct {
	Protocol string `yaml:"protocol"`
}

type ServerConfig struct {
	Address   string  `yaml:"address" validate:"required"`
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	LogDir string `yaml:"log_dir,omitempty"`
	JSON   bool   `yaml:"json"`
}

var configValidate = validator.New()

// Validate checks field constraints.
func (c *ConscienceConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch strings.ToLower(c.Council.LLM.Backend) {
	case llm.BackendAnthropic, llm.BackendOpenAI, llm.BackendOllama:
	default:
		if !c.Council.Offline {
			return fmt.Errorf("invalid config: unknown llm backend %q", c.Council.LLM.Backend)
		}
	}
	return nil
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ConscienceConfig {
	return ConscienceConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Ledger: LedgerConfig{
			JournalPath: "~/.conscience/ledger.jsonl",
			SyncWrites:  true,
			Index:       IndexMemory,
			BadgerDir:   "~/.conscience/index",
		},
		Council: CouncilConfig{
			LLM: llm.BackendConfig{
				Backend:   llm.BackendOllama,
				Timeout:   2 * time.Minute,
				MaxTokens: 512,
			},
		},
		Server: ServerConfig{
			Address:   "127.0.0.1:12240",
			RateLimit: 20,
			Burst:     40,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
