// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package intercept sits between any provider.Client consumer and the
// provider itself, transparently recording request/response pairs or
// substituting pre-recorded ones. The consumer's code is unmodified; it
// depends on the provider.Client interface and receives one of the three
// interception modes per run.
package intercept

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yuktathapliyal/serix/internal/provider"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

// Interceptor implements provider.Client over an upstream client plus a
// Session. Record and passthrough modes perform real network I/O; replay
// performs none, which is what lets the rest of the pipeline run
// deterministically and for free once a Session exists.
type Interceptor struct {
	upstream provider.Client // nil is allowed in replay mode
	session  *Session

	maxAttempts    int
	initialBackoff time.Duration
	sleep          func(time.Duration) // test seam
}

// Compile-time interface check.
var _ provider.Client = (*Interceptor)(nil)

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithRetry overrides the retry bound and initial backoff used for
// transient failures while forwarding.
func WithRetry(maxAttempts int, initialBackoff time.Duration) Option {
	return func(i *Interceptor) {
		if maxAttempts > 0 {
			i.maxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			i.initialBackoff = initialBackoff
		}
	}
}

func withSleep(fn func(time.Duration)) Option {
	return func(i *Interceptor) { i.sleep = fn }
}

// New wraps upstream with the given session. In replay mode upstream may
// be nil; record and passthrough modes require one.
func New(upstream provider.Client, session *Session, opts ...Option) *Interceptor {
	i := &Interceptor{
		upstream:       upstream,
		session:        session,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Name() string {
	if i.upstream != nil {
		return i.upstream.Name()
	}
	return "replay"
}

func (i *Interceptor) Close() error {
	if i.upstream != nil {
		return i.upstream.Close()
	}
	return nil
}

// Session returns the session the interceptor records into or replays from.
func (i *Interceptor) Session() *Session { return i.session }

// Complete is the single interception seam. The caller cannot tell which
// mode is active except by observing latency and cost.
func (i *Interceptor) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	switch i.session.Mode() {
	case ModeReplay:
		return i.replay(req)
	case ModeRecord:
		return i.record(ctx, req)
	case ModePassthrough:
		return i.forward(ctx, req)
	default:
		return nil, serixerr.Errorf(serixerr.CodeSessionModeInvalid,
			"unknown interception mode %q", i.session.Mode())
	}
}

func (i *Interceptor) replay(req provider.Request) (*provider.Response, error) {
	rec, err := i.session.Next(Fingerprint(req))
	if err != nil {
		return nil, err
	}

	var resp provider.Response
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return nil, serixerr.Wrapf(err, serixerr.CodeSessionLoadFailure,
			"decoding recorded response at index %d", rec.SequenceIndex)
	}
	return &resp, nil
}

func (i *Interceptor) record(ctx context.Context, req provider.Request) (*provider.Response, error) {
	start := time.Now()
	resp, err := i.forward(ctx, req)
	if err != nil {
		return nil, err
	}
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	reqRaw, err := json.Marshal(req)
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeSessionSaveFailure, "encoding request for recording")
	}
	respRaw, err := json.Marshal(resp)
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeSessionSaveFailure, "encoding response for recording")
	}

	if _, err := i.session.Append(Fingerprint(req), reqRaw, respRaw, latencyMS); err != nil {
		return nil, err
	}
	return resp, nil
}

// forward calls the upstream provider, retrying transient failures with
// bounded exponential backoff. Replay never reaches this path: a mismatch
// or exhaustion is deterministic and retry cannot fix it.
func (i *Interceptor) forward(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if i.upstream == nil {
		return nil, serixerr.New(serixerr.CodeSessionModeInvalid,
			"no upstream provider configured for forwarding mode")
	}

	backoff := i.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		resp, err := i.upstream.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !serixerr.IsTransient(err) {
			return nil, err
		}
		if attempt == i.maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, serixerr.Wrap(ctx.Err(), serixerr.CodeProviderFailure, "forwarding cancelled")
		}

		slog.Warn("transient provider failure, backing off",
			"provider", i.upstream.Name(),
			"attempt", attempt,
			"backoff", backoff,
		)
		i.sleep(backoff)
		backoff *= 2
	}

	return nil, serixerr.Wrapf(lastErr, serixerr.CodeProviderFailure,
		"provider call failed after %d attempts", i.maxAttempts)
}
