// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package store persists the attack library and per-run campaign results
// in SQLite. The attack library feeds the regression phase: payloads that
// exploited a target once are replayed against it on later runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Attack is one stored exploit payload: the message that produced a
// finding against a target, keyed so the same exploit is kept once.
type Attack struct {
	ID         string
	TargetID   string
	Goal       string
	Scenario   string
	Payload    string
	Category   transcript.Category
	Severity   transcript.Severity
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Campaign is one finished run's result row.
type Campaign struct {
	RunID     string
	TargetID  string
	Goal      string
	Mode      transcript.Mode
	Status    transcript.Status
	Passed    bool
	Grade     string
	Overall   int
	Result    score.EvaluationResult
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS attacks (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	goal       TEXT NOT NULL,
	scenario   TEXT NOT NULL,
	payload    TEXT NOT NULL,
	category   TEXT NOT NULL,
	severity   TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (target_id, goal, scenario)
);

CREATE INDEX IF NOT EXISTS idx_attacks_target ON attacks(target_id);

CREATE TABLE IF NOT EXISTS campaigns (
	run_id     TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	goal       TEXT NOT NULL,
	mode       TEXT NOT NULL,
	status     TEXT NOT NULL,
	passed     INTEGER NOT NULL DEFAULT 0,
	grade      TEXT NOT NULL DEFAULT '?',
	overall    INTEGER NOT NULL DEFAULT 0,
	result     TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_target ON campaigns(target_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAttack upserts an exploit payload. A later attack on the same
// (target, goal, scenario) key replaces the stored one only when its
// confidence is at least as high.
func (s *Store) SaveAttack(ctx context.Context, a Attack) error {
	if a.ID == "" || a.TargetID == "" || a.Payload == "" {
		return serixerr.New(serixerr.CodeStoreInvalidInput, "attack requires id, target_id, and payload")
	}

	const q = `INSERT INTO attacks (id, target_id, goal, scenario, payload, category, severity, confidence, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (target_id, goal, scenario) DO UPDATE SET
	payload = excluded.payload,
	category = excluded.category,
	severity = excluded.severity,
	confidence = excluded.confidence,
	updated_at = excluded.updated_at
WHERE excluded.confidence >= attacks.confidence`

	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.TargetID, a.Goal, a.Scenario, a.Payload,
		string(a.Category), string(a.Severity), a.Confidence, now, now,
	)
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "saving attack",
			serixerr.Field("target", a.TargetID))
	}
	return nil
}

// AttacksFor returns the stored exploits for a target, most severe first.
func (s *Store) AttacksFor(ctx context.Context, targetID string) ([]Attack, error) {
	const q = `SELECT id, target_id, goal, scenario, payload, category, severity, confidence, created_at, updated_at
FROM attacks WHERE target_id = ?
ORDER BY CASE severity
	WHEN 'critical' THEN 0
	WHEN 'high' THEN 1
	WHEN 'medium' THEN 2
	ELSE 3
END, created_at`

	rows, err := s.db.QueryContext(ctx, q, targetID)
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "listing attacks",
			serixerr.Field("target", targetID))
	}
	defer rows.Close()

	var out []Attack
	for rows.Next() {
		var a Attack
		var category, severity, createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.TargetID, &a.Goal, &a.Scenario, &a.Payload,
			&category, &severity, &a.Confidence, &createdAt, &updatedAt); err != nil {
			return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "scanning attack row")
		}
		a.Category = transcript.Category(category)
		a.Severity = transcript.Severity(severity)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCampaign persists one finished run.
func (s *Store) SaveCampaign(ctx context.Context, c Campaign) error {
	if c.RunID == "" {
		return serixerr.New(serixerr.CodeStoreInvalidInput, "campaign requires run_id")
	}

	resultJSON, err := json.Marshal(c.Result)
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeStoreInvalidInput, "encoding campaign result")
	}

	const q = `INSERT INTO campaigns (run_id, target_id, goal, mode, status, passed, grade, overall, result, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		c.RunID, c.TargetID, c.Goal, string(c.Mode), string(c.Status),
		boolToInt(c.Passed), c.Grade, c.Overall, string(resultJSON), formatTime(time.Now()),
	)
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "saving campaign",
			serixerr.FieldRunID(c.RunID))
	}
	return nil
}

// GetCampaign loads one run's result by ID.
func (s *Store) GetCampaign(ctx context.Context, runID string) (*Campaign, error) {
	const q = `SELECT run_id, target_id, goal, mode, status, passed, grade, overall, result, created_at
FROM campaigns WHERE run_id = ?`

	var c Campaign
	var mode, status, result, createdAt string
	var passed int
	err := s.db.QueryRowContext(ctx, q, runID).Scan(
		&c.RunID, &c.TargetID, &c.Goal, &mode, &status,
		&passed, &c.Grade, &c.Overall, &result, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, serixerr.New(serixerr.CodeStoreNotFound, "campaign not found",
			serixerr.FieldRunID(runID))
	}
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "getting campaign",
			serixerr.FieldRunID(runID))
	}

	c.Mode = transcript.Mode(mode)
	c.Status = transcript.Status(status)
	c.Passed = passed != 0
	c.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(result), &c.Result); err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "decoding campaign result",
			serixerr.FieldRunID(runID))
	}
	return &c, nil
}

// ListCampaigns returns the most recent runs for a target.
func (s *Store) ListCampaigns(ctx context.Context, targetID string, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `SELECT run_id, target_id, goal, mode, status, passed, grade, overall, result, created_at
FROM campaigns WHERE target_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, targetID, limit)
	if err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "listing campaigns",
			serixerr.Field("target", targetID))
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		var mode, status, result, createdAt string
		var passed int
		if err := rows.Scan(&c.RunID, &c.TargetID, &c.Goal, &mode, &status,
			&passed, &c.Grade, &c.Overall, &result, &createdAt); err != nil {
			return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "scanning campaign row")
		}
		c.Mode = transcript.Mode(mode)
		c.Status = transcript.Status(status)
		c.Passed = passed != 0
		c.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(result), &c.Result); err != nil {
			return nil, serixerr.Wrap(err, serixerr.CodeStoreDatabaseFailure, "decoding campaign result")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
