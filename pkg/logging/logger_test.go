// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

func TestNew_WritesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "ledger", Output: &buf})

	logger.Info("genesis created", "genesis_id", "ab12cd34")

	out := buf.String()
	assert.Contains(t, out, "genesis created")
	assert.Contains(t, out, "service=ledger")
	assert.Contains(t, out, "genesis_id=ab12cd34")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})

	logger.Error("advisor failed", "perspective", "guardian")

	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"perspective":"guardian"`)
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "gateway", Quiet: true})

	logger.Info("to file")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "gateway_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).With("genesis_id", "root0001")

	logger.Info("chain walked")

	assert.Contains(t, buf.String(), "genesis_id=root0001")
}

func TestLogger_CloseIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "relative", expandPath("relative"))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.Equal(t, filepath.Join(home, ".conscience"), expandPath("~/.conscience"))
	}
}
