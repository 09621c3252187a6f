// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conscience/pkg/ux"
	"github.com/AleutianAI/conscience/pkg/validation"
	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/pipeline"
)

type cli struct {
	t          *testing.T
	configPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	for _, key := range []string{"CONSCIENCE_JOURNAL", "CONSCIENCE_INDEX", "CONSCIENCE_LEXICON", "CONSCIENCE_LOG_LEVEL", "CONSCIENCE_OFFLINE"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "conscience.yaml")
	body := "ledger:\n" +
		"  journal_path: " + filepath.Join(dir, "ledger.jsonl") + "\n" +
		"  sync_writes: false\n" +
		"logging:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	return &cli{t: t, configPath: configPath}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", c.configPath, "--offline", "--output", "plain"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON[T any](c *cli, args ...string) T {
	c.t.Helper()
	out, err := c.run("", append([]string{"--json"}, args...)...)
	require.NoError(c.t, err, out)
	var v T
	require.NoError(c.t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestGenesisCommands(t *testing.T) {
	c := newCLI(t)

	parent := runJSON[ledger.Record](c, "genesis", "create", "--initiator", "demo_user", "Refactor", "auth")
	assert.Equal(t, "Refactor auth", parent.OriginalRequest)
	assert.Equal(t, ledger.TierUser, parent.Tier)

	child := runJSON[ledger.Record](c, "genesis", "create", "--tier", "AI", "--mine", "--parent", parent.ID, "Rename helper")
	assert.Equal(t, parent.ID, child.ParentID)

	// Each invocation reopens the ledger from the journal.
	shown := runJSON[ledger.Record](c, "genesis", "show", parent.ID)
	assert.Equal(t, []string{child.ID}, shown.ChildrenIDs)

	chain := runJSON[[]ledger.Record](c, "genesis", "chain", child.ID)
	require.Len(t, chain, 2)
	assert.Equal(t, parent.ID, chain[0].ID)

	confirmed := runJSON[ledger.Record](c, "genesis", "confirm", child.ID, "--reason", "reviewed")
	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, "reviewed", confirmed.Reason())

	out, err := c.run("", "genesis", "show", parent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Genesis "+parent.ID)
	assert.Contains(t, out, "Children: "+child.ID)

	_, err = c.run("", "genesis", "show", "deadbeef")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = c.run("", "genesis", "confirm", "deadbeef")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = c.run("", "genesis", "create", "--tier", "ROOT", "x")
	assert.Error(t, err)

	_, err = c.run("", "genesis", "chain", "../x")
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, err = c.run("", "genesis", "create", "--initiator", " ", "x")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestGateCheckCommand(t *testing.T) {
	c := newCLI(t)

	res := runJSON[gateCheckResult](c, "gate", "check", "Delete", "the", "logs")
	assert.True(t, res.Required)
	assert.Equal(t, []string{"delete"}, res.MatchedTerms)
	require.NotNil(t, res.Confirmation)

	out, err := c.run("", "gate", "check", "Add a helper")
	require.NoError(t, err)
	assert.Equal(t, "OK: no confirmation needed\n", out)

	terms := runJSON[[]string](c, "gate", "terms")
	assert.Contains(t, terms, "betray")
}

func TestCouncilDeliberateCommand(t *testing.T) {
	c := newCLI(t)

	v := runJSON[council.Verdict](c, "council", "deliberate", "--context", "dir=/backups", "remove the old backups")
	assert.True(t, v.Approved)
	assert.True(t, v.RequiresConfirmation)
	assert.Len(t, v.Votes, 3)

	out, err := c.run("", "council", "deliberate", "summarize notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Council approved")
	assert.Contains(t, out, "philosopher:")
	assert.Contains(t, out, "Consensus: 100%")

	_, err = c.run("", "council", "deliberate", "--context", "novalue", "x")
	assert.Error(t, err)
}

func TestAuditCommand(t *testing.T) {
	c := newCLI(t)

	a := runJSON[audit.Audit](c, "audit", "--fragment", "help request", "Absolutely! Great question! I'd be happy to help!")
	assert.Equal(t, audit.ResultIntercept, a.FinalResult)

	out, err := c.run("", "audit", "--layer", "metaphor", "the report is ready")
	require.NoError(t, err)
	assert.Contains(t, out, "Audit FLAG")
	assert.Contains(t, out, audit.ReasonCrossLayerInference)

	_, err = c.run("", "audit", "--layer", "astral", "x")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("no\n", "run", "Delete", "temp", "files")
	require.NoError(t, err)
	assert.Contains(t, out, "Do you approve? (yes/no)")
	assert.Contains(t, out, "WARN: cancelled")

	out, err = c.run("yes\n", "run", "Delete", "temp", "files")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: approved")

	out, err = c.run("", "run", "--yes", "--output-text", "Absolutely! Great question! I'd be happy to help!",
		"--fragment", "help request", "answer the user")
	require.NoError(t, err)
	assert.Contains(t, out, "ERROR: blocked")
	assert.Contains(t, out, audit.ReasonFlattery)

	o := runJSON[pipeline.Outcome](c, "run", "--yes", "--no-council", "Remove the cache")
	assert.Equal(t, pipeline.StatusApproved, o.Status)
	assert.Nil(t, o.Verdict)
	assert.True(t, o.Genesis.Confirmed)
	assert.Equal(t, "approved by cli user with --yes", o.Genesis.Reason())
}

func TestParseContext(t *testing.T) {
	got, err := parseContext([]string{"file=auth.py", " dir =/tmp", "expr=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"file": "auth.py", "dir": "/tmp", "expr": "a=b"}, got)

	got, err = parseContext(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseContext([]string{"=x"})
	assert.Error(t, err)
}

func TestSelectConfirmer(t *testing.T) {
	p := ux.NewPrinter(&bytes.Buffer{}, ux.ModePlain)

	_, ok := selectConfirmer(true, strings.NewReader(""), &bytes.Buffer{}, p).(pipeline.ApproveAll)
	assert.True(t, ok)

	_, ok = selectConfirmer(false, strings.NewReader(""), &bytes.Buffer{}, p).(*pipeline.PromptConfirmer)
	assert.True(t, ok)
}
