// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/config"
	"github.com/yuktathapliyal/serix/internal/intercept"
	"github.com/yuktathapliyal/serix/internal/provider"
	anthropicprov "github.com/yuktathapliyal/serix/internal/provider/anthropic"
	openaiprov "github.com/yuktathapliyal/serix/internal/provider/openai"
	"github.com/yuktathapliyal/serix/internal/secrets"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// role names one interception session per caller, so agent, attacker, and
// judge calls never share a fingerprint stream.
type role string

const (
	roleAgent    role = "agent"
	roleAttacker role = "attacker"
	roleJudge    role = "judge"
)

// wiredClient is one role's provider client plus the session recording it.
type wiredClient struct {
	client  provider.Client
	session *intercept.Session
	path    string
}

// save persists the session after a recorded run. Replay and passthrough
// sessions are never written back.
func (w *wiredClient) save() error {
	if w.session.Mode() != intercept.ModeRecord {
		return nil
	}
	return w.session.Save(w.path)
}

// resolveRunID returns the --run-id flag value when set, otherwise a fresh
// identifier. Replay mode has no fallback: session files are keyed by run ID,
// so the flag must name the recorded run to load.
func resolveRunID(cmd *cobra.Command, cfg *config.Config) (string, error) {
	runID, _ := cmd.Flags().GetString("run-id")
	if runID != "" {
		return runID, nil
	}
	if intercept.Mode(cfg.Sessions.Mode) == intercept.ModeReplay {
		return "", serixerr.New(serixerr.CodeCLISetupFailure,
			"replay mode requires --run-id naming a previously recorded run")
	}
	return uuid.NewString(), nil
}

// wireClient builds the intercepted provider client for one role. In
// replay mode no credential is required and no network client is built;
// the session file is the only data source.
func wireClient(cfg *config.Config, modelRef string, r role, runID string, logger *slog.Logger) (*wiredClient, error) {
	mode := intercept.Mode(cfg.Sessions.Mode)
	path := filepath.Join(cfg.Sessions.Dir, fmt.Sprintf("%s.%s.json", runID, r))

	if mode == intercept.ModeReplay {
		session, err := intercept.Load(path)
		if err != nil {
			return nil, err
		}
		return &wiredClient{
			client:  intercept.New(offlineClient{role: r}, session),
			session: session,
			path:    path,
		}, nil
	}

	upstream, err := newUpstreamClient(cfg, modelRef)
	if err != nil {
		return nil, err
	}

	session := intercept.NewSession(fmt.Sprintf("%s/%s", runID, r), mode)
	if mode == intercept.ModeRecord {
		if err := os.MkdirAll(cfg.Sessions.Dir, 0o755); err != nil {
			return nil, serixerr.Errorf(serixerr.CodeCLISetupFailure, "creating session directory: %w", err)
		}
		logger.Debug("recording session", "role", string(r), "path", path)
	}

	return &wiredClient{
		client:  intercept.New(upstream, session),
		session: session,
		path:    path,
	}, nil
}

// newUpstreamClient resolves credentials and builds the real provider
// client for a "provider/model" ref.
func newUpstreamClient(cfg *config.Config, modelRef string) (provider.Client, error) {
	name := config.ProviderFromModel(modelRef)
	pc := cfg.Providers[name]

	apiKey, err := secrets.ResolveAPIKey(secrets.KeyringStore{}, name, pc.APIKey)
	if err != nil {
		return nil, err
	}

	switch name {
	case "openai":
		return openaiprov.New(openaiprov.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
	case "anthropic":
		return anthropicprov.New(anthropicprov.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
	default:
		return nil, serixerr.Errorf(serixerr.CodeCLISetupFailure,
			"unsupported provider %q (supported: openai, anthropic)", name)
	}
}

// offlineClient backs replay sessions. Replay never forwards, so any call
// reaching this client means the cursor ran past the recording.
type offlineClient struct {
	role role
}

var _ provider.Client = offlineClient{}

func (c offlineClient) Name() string { return "offline/" + string(c.role) }

func (c offlineClient) Complete(context.Context, provider.Request) (*provider.Response, error) {
	return nil, serixerr.New(serixerr.CodeProviderFailure, "no network client in replay mode",
		serixerr.FieldProvider(c.Name()))
}

func (c offlineClient) Close() error { return nil }
