// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package intercept

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Mode selects how the interceptor treats provider calls.
type Mode string

const (
	// ModeRecord forwards to the real provider and captures the exchange.
	ModeRecord Mode = "record"
	// ModeReplay serves recorded responses and performs no network I/O.
	ModeReplay Mode = "replay"
	// ModePassthrough forwards without recording.
	ModePassthrough Mode = "passthrough"
)

// sessionFormatVersion guards the on-disk layout.
const sessionFormatVersion = "1"

// Recording is a single captured provider call. Immutable once appended
// to a Session.
type Recording struct {
	SequenceIndex int             `json:"sequence_index"`
	Fingerprint   string          `json:"fingerprint"`
	Request       json.RawMessage `json:"request"`
	Response      json.RawMessage `json:"response"`
	Timestamp     time.Time       `json:"timestamp"`
	LatencyMS     float64         `json:"latency_ms"`
}

// Session is an ordered sequence of Recordings owned by exactly one run.
// In replay mode the cursor tracks the next unconsumed Recording; recordings
// are consumed strictly in sequence-index order.
type Session struct {
	mu         sync.Mutex
	label      string
	mode       Mode
	createdAt  time.Time
	recordings []Recording
	cursor     int
}

// sessionFile is the durable JSON representation of a Session.
type sessionFile struct {
	Version    string      `json:"version"`
	Label      string      `json:"label"`
	CreatedAt  time.Time   `json:"created_at"`
	Recordings []Recording `json:"recordings"`
}

// NewSession creates an empty Session. Label distinguishes the role whose
// calls the session captures (e.g. "agent" vs "judge"); agent and judge
// calls live in separate sessions so their fingerprint shapes never collide.
func NewSession(label string, mode Mode) *Session {
	return &Session{
		label:     label,
		mode:      mode,
		createdAt: time.Now().UTC(),
	}
}

// Load reads a previously saved Session from path and returns it in
// replay mode with the cursor at the first recording.
func Load(path string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serixerr.Wrapf(err, serixerr.CodeSessionLoadFailure, "reading session %s", path)
	}

	var file sessionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, serixerr.Wrapf(err, serixerr.CodeSessionLoadFailure, "parsing session %s", path)
	}

	if file.Version != sessionFormatVersion {
		return nil, serixerr.Errorf(serixerr.CodeSessionLoadFailure,
			"session %s has format version %q, want %q", path, file.Version, sessionFormatVersion)
	}

	return &Session{
		label:      file.Label,
		mode:       ModeReplay,
		createdAt:  file.CreatedAt,
		recordings: file.Recordings,
	}, nil
}

// Save writes the Session to path. Fingerprints and response bytes are
// preserved exactly so a reloaded session replays bit-for-bit.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	file := sessionFile{
		Version:    sessionFormatVersion,
		Label:      s.label,
		CreatedAt:  s.createdAt,
		Recordings: s.recordings,
	}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return serixerr.Wrapf(err, serixerr.CodeSessionSaveFailure, "encoding session %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return serixerr.Wrapf(err, serixerr.CodeSessionSaveFailure, "creating session dir for %s", path)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return serixerr.Wrapf(err, serixerr.CodeSessionSaveFailure, "writing session %s", path)
	}
	return nil
}

func (s *Session) Label() string { return s.label }

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Len returns the number of recordings in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordings)
}

// Cursor returns the index of the next unconsumed recording (replay only).
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Recordings returns a copy of the recorded calls in sequence order.
func (s *Session) Recordings() []Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recording, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// Append adds a recording with the next sequence index. Only valid while
// the session is in record mode.
func (s *Session) Append(fingerprint string, request, response json.RawMessage, latencyMS float64) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeRecord {
		return Recording{}, serixerr.Errorf(serixerr.CodeSessionModeInvalid,
			"cannot append in %s mode", s.mode)
	}

	rec := Recording{
		SequenceIndex: len(s.recordings),
		Fingerprint:   fingerprint,
		Request:       request,
		Response:      response,
		Timestamp:     time.Now().UTC(),
		LatencyMS:     latencyMS,
	}
	s.recordings = append(s.recordings, rec)
	return rec, nil
}

// Next consumes the recording at the cursor when its fingerprint matches.
// A mismatch means the recorded fixture no longer corresponds to the code
// path being replayed; it is reported, never tolerated. Running past the
// last recording reports exhaustion, never wraps around.
func (s *Session) Next(fingerprint string) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeReplay {
		return Recording{}, serixerr.Errorf(serixerr.CodeSessionModeInvalid,
			"cannot consume recordings in %s mode", s.mode)
	}

	if s.cursor >= len(s.recordings) {
		return Recording{}, serixerr.New(serixerr.CodeReplayExhausted,
			"no recordings left to replay",
			serixerr.Field("cursor", s.cursor),
			serixerr.Field("recordings", len(s.recordings)),
		)
	}

	rec := s.recordings[s.cursor]
	if rec.Fingerprint != fingerprint {
		return Recording{}, serixerr.New(serixerr.CodeReplayMismatch,
			"request fingerprint diverged from recording",
			serixerr.Field("sequence_index", rec.SequenceIndex),
			serixerr.Field("expected", rec.Fingerprint),
			serixerr.Field("got", fingerprint),
		)
	}

	s.cursor++
	return rec, nil
}
