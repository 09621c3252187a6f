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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.conscience/conscience.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".conscience", "conscience.yaml"), nil
}

// Load reads the config at path, creating it with defaults on first
// run, then applies environment overrides and validates the result.
// notice receives the first-run message and may be nil.
func Load(path string, notice io.Writer) (ConscienceConfig, error) {
	if path == "" {
		// An empty path means the per-user default location.
		var err error
		if path, err = DefaultPath(); err != nil {
			return ConscienceConfig{}, err
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, " First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return ConscienceConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ConscienceConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	// Start from defaults so a partial file keeps sensible values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ConscienceConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return ConscienceConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ConscienceConfig{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from CONSCIENCE_* environment variables. API keys
// (ANTHROPIC_API_KEY, OPENAI_API_KEY) and OLLAMA_HOST are read by the llm
// backends themselves and never stored in the file.
func ApplyEnv(cfg *ConscienceConfig) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = b
		return nil
	}

	setString("CONSCIENCE_JOURNAL", &cfg.Ledger.JournalPath)
	setString("CONSCIENCE_INDEX", &cfg.Ledger.Index)
	setString("CONSCIENCE_BADGER_DIR", &cfg.Ledger.BadgerDir)
	setString("CONSCIENCE_LEXICON", &cfg.Gate.LexiconPath)
	setString("CONSCIENCE_LLM_BACKEND", &cfg.Council.LLM.Backend)
	setString("CONSCIENCE_LLM_MODEL", &cfg.Council.LLM.Model)
	setString("CONSCIENCE_LLM_BASE_URL", &cfg.Council.LLM.BaseURL)
	setString("CONSCIENCE_ADDR", &cfg.Server.Address)
	setString("CONSCIENCE_LOG_LEVEL", &cfg.Logging.Level)
	setString("CONSCIENCE_LOG_DIR", &cfg.Logging.LogDir)

	if err := setBool("CONSCIENCE_OFFLINE", &cfg.Council.Offline); err != nil {
		return err
	}
	if err := setBool("CONSCIENCE_SYNC_WRITES", &cfg.Ledger.SyncWrites); err != nil {
		return err
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
