// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package target_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuktathapliyal/serix/internal/provider"
	"github.com/yuktathapliyal/serix/internal/target"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

func TestFuncTarget(t *testing.T) {
	tgt := target.Func{
		Name: "echo",
		Fn: func(_ context.Context, message string) (string, error) {
			return "echo: " + message, nil
		},
	}

	resp, err := tgt.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", resp)
	assert.Equal(t, "echo", tgt.ID())
}

func TestHTTPTargetRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "attack probe", in.Message)

		json.NewEncoder(w).Encode(map[string]string{"response": "I cannot help with that."})
	}))
	defer srv.Close()

	tgt := target.NewHTTPTarget(srv.URL, 5*time.Second)
	resp, err := tgt.Send(context.Background(), "attack probe")
	require.NoError(t, err)
	assert.Equal(t, "I cannot help with that.", resp)
}

func TestHTTPTargetNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tgt := target.NewHTTPTarget(srv.URL, 5*time.Second)
	_, err := tgt.Send(context.Background(), "probe")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeTargetFailure, serixerr.CodeOf(err))
}

func TestHTTPTargetTimeout(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and cancel r.Context(); otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tgt := target.NewHTTPTarget(srv.URL, 50*time.Millisecond)
	_, err := tgt.Send(context.Background(), "probe")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeTargetTimeout, serixerr.CodeOf(err))
	<-started
}

type scriptedClient struct {
	reqs    []provider.Request
	replies []string
	errs    []error
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &provider.Response{Content: s.replies[i]}, nil
}

func (s *scriptedClient) Close() error { return nil }

func TestAgentTargetAccumulatesHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{"first reply", "second reply"}}
	tgt := target.NewAgentTarget("support-bot", client, "gpt-4o-mini", "You are a support agent.")

	resp, err := tgt.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "first reply", resp)

	_, err = tgt.Send(context.Background(), "second message")
	require.NoError(t, err)

	require.Len(t, client.reqs, 2)
	second := client.reqs[1]
	assert.Equal(t, "You are a support agent.", second.SystemPrompt)
	require.Len(t, second.Messages, 3, "prior user and assistant turns carried forward")
	assert.Equal(t, provider.RoleUser, second.Messages[0].Role)
	assert.Equal(t, "hello", second.Messages[0].Content)
	assert.Equal(t, provider.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, "first reply", second.Messages[1].Content)
}

func TestAgentTargetPreservesReplayViolations(t *testing.T) {
	client := &scriptedClient{
		replies: []string{""},
		errs:    []error{serixerr.New(serixerr.CodeReplayExhausted, "no recordings left")},
	}
	tgt := target.NewAgentTarget("bot", client, "m", "")

	_, err := tgt.Send(context.Background(), "probe")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeReplayExhausted, serixerr.CodeOf(err))
}

func TestAgentTargetFailedCallLeavesHistoryClean(t *testing.T) {
	client := &scriptedClient{
		replies: []string{"", "ok"},
		errs:    []error{serixerr.New(serixerr.CodeProviderFailure, "down")},
	}
	tgt := target.NewAgentTarget("bot", client, "m", "")

	_, err := tgt.Send(context.Background(), "first")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeTargetFailure, serixerr.CodeOf(err))

	_, err = tgt.Send(context.Background(), "second")
	require.NoError(t, err)
	require.Len(t, client.reqs, 2)
	assert.Len(t, client.reqs[1].Messages, 1, "failed turn not retained in history")
}
