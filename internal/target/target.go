// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package target defines the contract for the system under test: a
// message-in/message-out callable. In-process functions and remote HTTP
// endpoints satisfy the same interface, so the run loop treats them
// uniformly.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/yuktathapliyal/serix/internal/provider"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Target is the system under test.
type Target interface {
	// ID identifies the target for attack-library keys and reports.
	ID() string
	Send(ctx context.Context, message string) (string, error)
}

// Func adapts an in-process callable to the Target interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, message string) (string, error)
}

var _ Target = Func{}

func (f Func) ID() string { return f.Name }

func (f Func) Send(ctx context.Context, message string) (string, error) {
	resp, err := f.Fn(ctx, message)
	if err != nil {
		return "", classify(err, f.Name)
	}
	return resp, nil
}

// HTTPTarget talks to a remote agent endpoint. One POST per message:
// {"message": ...} in, {"response": ...} out.
type HTTPTarget struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

var _ Target = (*HTTPTarget)(nil)

// NewHTTPTarget builds an HTTP target. A zero timeout disables the
// per-call deadline; the caller's context still applies.
func NewHTTPTarget(url string, timeout time.Duration) *HTTPTarget {
	return &HTTPTarget{url: url, client: &http.Client{}, timeout: timeout}
}

func (t *HTTPTarget) ID() string { return t.url }

func (t *HTTPTarget) Send(ctx context.Context, message string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", serixerr.Wrap(err, serixerr.CodeTargetFailure, "encoding target request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", serixerr.Wrap(err, serixerr.CodeTargetFailure, "building target request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", classify(err, t.url)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", serixerr.Wrap(err, serixerr.CodeTargetFailure, "reading target response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", serixerr.Errorf(serixerr.CodeTargetFailure,
			"target returned status %d", resp.StatusCode)
	}

	var payload struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", serixerr.Wrap(err, serixerr.CodeTargetFailure, "decoding target response")
	}
	return payload.Response, nil
}

// AgentTarget is a provider-backed agent: a system prompt plus growing
// conversation history over an injected provider.Client. Wrapping that
// client with an Interceptor is what makes the agent's own calls
// recordable and replayable without touching this code.
type AgentTarget struct {
	name         string
	client       provider.Client
	model        string
	systemPrompt string
	history      []provider.Message
}

var _ Target = (*AgentTarget)(nil)

// NewAgentTarget builds an in-process conversational agent.
func NewAgentTarget(name string, client provider.Client, model, systemPrompt string) *AgentTarget {
	return &AgentTarget{name: name, client: client, model: model, systemPrompt: systemPrompt}
}

func (a *AgentTarget) ID() string { return a.name }

func (a *AgentTarget) Send(ctx context.Context, message string) (string, error) {
	messages := append(append([]provider.Message{}, a.history...),
		provider.Message{Role: provider.RoleUser, Content: message})

	resp, err := a.client.Complete(ctx, provider.Request{
		Model:        a.model,
		SystemPrompt: a.systemPrompt,
		Messages:     messages,
	})
	if err != nil {
		// Determinism violations keep their code; everything else is a
		// target-boundary failure.
		if serixerr.IsReplayViolation(err) {
			return "", err
		}
		return "", classify(err, a.name)
	}

	a.history = append(messages, provider.Message{Role: provider.RoleAssistant, Content: resp.Content})
	return resp.Content, nil
}

// classify wraps a target error, distinguishing timeouts so the run loop
// can apply its first-turn-fatal rule.
func classify(err error, id string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return serixerr.Wrap(err, serixerr.CodeTargetTimeout, "target call timed out",
			serixerr.Field("target", id))
	}
	return serixerr.Wrap(err, serixerr.CodeTargetFailure, "target call failed",
		serixerr.Field("target", id))
}
