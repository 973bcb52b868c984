// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuktathapliyal/serix/internal/config"
	"github.com/yuktathapliyal/serix/internal/intercept"
	"github.com/yuktathapliyal/serix/internal/provider"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// cannedClient stands in for a real provider while recording fixtures.
type cannedClient struct {
	content string
}

func (c cannedClient) Name() string { return "canned" }
func (c cannedClient) Close() error { return nil }

func (c cannedClient) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	return &provider.Response{Content: c.content, Model: req.Model}, nil
}

// recordSession captures one judge call and saves it the way a recorded
// run would, under <dir>/<runID>.<role>.json.
func recordSession(t *testing.T, dir, runID string, r role, req provider.Request, content string) {
	t.Helper()
	session := intercept.NewSession(fmt.Sprintf("%s/%s", runID, r), intercept.ModeRecord)
	ic := intercept.New(cannedClient{content: content}, session)
	_, err := ic.Complete(context.Background(), req)
	require.NoError(t, err)
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.json", runID, r))
	require.NoError(t, session.Save(path))
}

func TestWireClientReplaysRecordedRun(t *testing.T) {
	dir := t.TempDir()
	const runID = "rec-20260826"
	req := provider.Request{
		Model:    "gpt-4.1-mini",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "judge this"}},
	}
	recordSession(t, dir, runID, roleJudge, req, "recorded verdict")

	// Replay wiring needs no credentials and no network client; naming
	// the recorded run ID is enough to find the session file.
	cfg := &config.Config{Sessions: config.SessionsConfig{Mode: "replay", Dir: dir}}
	wired, err := wireClient(cfg, "openai/gpt-4.1-mini", roleJudge, runID, slog.Default())
	require.NoError(t, err)

	resp, err := wired.client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "recorded verdict", resp.Content)
}

func TestWireClientReplayFailsForUnknownRunID(t *testing.T) {
	cfg := &config.Config{Sessions: config.SessionsConfig{Mode: "replay", Dir: t.TempDir()}}
	_, err := wireClient(cfg, "openai/gpt-4.1-mini", roleJudge, "never-recorded", slog.Default())
	require.Error(t, err)
	assert.True(t, serixerr.HasCode(err, serixerr.CodeSessionLoadFailure))
}

func TestResolveRunIDRequiredInReplayMode(t *testing.T) {
	cmd := newRunCmd()
	cfg := &config.Config{Sessions: config.SessionsConfig{Mode: "replay"}}

	_, err := resolveRunID(cmd, cfg)
	require.Error(t, err)
	assert.True(t, serixerr.HasCode(err, serixerr.CodeCLISetupFailure))
	assert.Contains(t, err.Error(), "--run-id")

	require.NoError(t, cmd.Flags().Set("run-id", "rec-20260826"))
	runID, err := resolveRunID(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, "rec-20260826", runID)
}

func TestResolveRunIDMintsFreshIDWhenRecording(t *testing.T) {
	cmd := newRunCmd()
	cfg := &config.Config{Sessions: config.SessionsConfig{Mode: "record"}}

	first, err := resolveRunID(cmd, cfg)
	require.NoError(t, err)
	second, err := resolveRunID(cmd, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
