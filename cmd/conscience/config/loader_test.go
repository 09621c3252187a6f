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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// clearEnv blanks every variable ApplyEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONSCIENCE_JOURNAL", "CONSCIENCE_INDEX", "CONSCIENCE_BADGER_DIR", "CONSCIENCE_LEXICON",
		"CONSCIENCE_LLM_BACKEND", "CONSCIENCE_LLM_MODEL", "CONSCIENCE_LLM_BASE_URL",
		"CONSCIENCE_ADDR", "CONSCIENCE_LOG_LEVEL", "CONSCIENCE_LOG_DIR",
		"CONSCIENCE_OFFLINE", "CONSCIENCE_SYNC_WRITES",
	} {
		t.Setenv(key, "")
	}
}

func TestCreateDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deep", "nested", "conscience.yaml")

	require.NoError(t, createDefault(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var cfg ConscienceConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, CurrentConfigVersion, cfg.Meta.Version)
	assert.Equal(t, "ollama", cfg.Council.LLM.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Council.LLM.Timeout)
	assert.Equal(t, IndexMemory, cfg.Ledger.Index)
	assert.NotContains(t, string(data), "api_key")
}

func TestLoad_FirstRunCreatesFile(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "conscience.yaml")

	var notice bytes.Buffer
	cfg, err := Load(configPath, &notice)
	require.NoError(t, err)

	assert.Contains(t, notice.String(), "First run detected")
	assert.FileExists(t, configPath)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "conscience.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
ledger:
  journal_path: /var/lib/conscience/ledger.jsonl
council:
  history_limit: 100
  llm:
    backend: anthropic
    timeout: 30s
`), 0o644))

	cfg, err := Load(configPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/conscience/ledger.jsonl", cfg.Ledger.JournalPath)
	assert.Equal(t, IndexMemory, cfg.Ledger.Index)
	assert.Equal(t, 100, cfg.Council.HistoryLimit)
	assert.Equal(t, "anthropic", cfg.Council.LLM.Backend)
	assert.Equal(t, 30*time.Second, cfg.Council.LLM.Timeout)
	assert.Equal(t, "127.0.0.1:12240", cfg.Server.Address)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "conscience.yaml")
	t.Setenv("CONSCIENCE_JOURNAL", "/tmp/j.jsonl")
	t.Setenv("CONSCIENCE_LLM_BACKEND", "openai")
	t.Setenv("CONSCIENCE_OFFLINE", "true")
	t.Setenv("CONSCIENCE_ADDR", ":9999")

	cfg, err := Load(configPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/j.jsonl", cfg.Ledger.JournalPath)
	assert.Equal(t, "openai", cfg.Council.LLM.Backend)
	assert.True(t, cfg.Council.Offline)
	assert.Equal(t, ":9999", cfg.Server.Address)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown index", body: "ledger:\n  index: sqlite\n"},
		{name: "badger without dir", body: "ledger:\n  index: badger\n  badger_dir: \"\"\n"},
		{name: "negative history", body: "council:\n  history_limit: -1\n"},
		{name: "unknown backend", body: "council:\n  llm:\n    backend: gemini\n"},
		{name: "bad log level", body: "logging:\n  level: loud\n"},
		{name: "not yaml", body: "ledger: [\n"},
		{name: "bad bool env", body: "", env: map[string]string{"CONSCIENCE_OFFLINE": "maybe"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			configPath := filepath.Join(t.TempDir(), "conscience.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tc.body), 0o644))

			_, err := Load(configPath, nil)
			assert.Error(t, err)
		})
	}
}

func TestValidate_OfflineAllowsAnyBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Council.LLM.Backend = ""
	assert.Error(t, cfg.Validate())

	cfg.Council.Offline = true
	assert.NoError(t, cfg.Validate())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".conscience", "ledger.jsonl"), ExpandPath("~/.conscience/ledger.jsonl"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}
