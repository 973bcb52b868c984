// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package run drives one red-team conversation as a finite-state
// controller: attacker message out, agent response in, judge verdict,
// decide, repeat. All run state lives in explicit structs passed through
// the pipeline, so concurrent runs share nothing.
package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/yuktathapliyal/serix/internal/attack"
	"github.com/yuktathapliyal/serix/internal/intercept"
	"github.com/yuktathapliyal/serix/internal/judge"
	"github.com/yuktathapliyal/serix/internal/target"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Options bound a run.
type Options struct {
	// MaxTurns caps adaptive runs. Static runs are bounded by their
	// template library instead.
	MaxTurns int
	// TurnTimeout is the per-turn deadline on the target call.
	TurnTimeout time.Duration
	// FlatlineWindow is how many consecutive judged turns must show no
	// movement before an adaptive run stops early. Zero disables it.
	FlatlineWindow int
	// ScoreEpsilon and ConfidenceEpsilon define "no movement".
	ScoreEpsilon      int
	ConfidenceEpsilon float64
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 10
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 60 * time.Second
	}
	if o.ScoreEpsilon <= 0 {
		o.ScoreEpsilon = 5
	}
	if o.ConfidenceEpsilon <= 0 {
		o.ConfidenceEpsilon = 0.1
	}
	return o
}

// Runner executes runs against one target.
type Runner struct {
	target   target.Target
	attacker attack.Attacker
	judge    judge.Judge
	mode     transcript.Mode
	opts     Options
	logger   *slog.Logger

	// agentSession, when set, lets each turn capture the recordings its
	// agent calls produced. Judge sessions are kept separate and never
	// attached to turns.
	agentSession *intercept.Session
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithAgentSession attaches the agent-side interception session so each
// turn carries its own recordings.
func WithAgentSession(s *intercept.Session) RunnerOption {
	return func(r *Runner) { r.agentSession = s }
}

// NewRunner builds a Runner.
func NewRunner(tgt target.Target, att attack.Attacker, j judge.Judge, mode transcript.Mode, opts Options, logger *slog.Logger, rOpts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		target:   tgt,
		attacker: att,
		judge:    j,
		mode:     mode,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
	for _, opt := range rOpts {
		opt(r)
	}
	return r
}

// Run executes one red-team conversation. It always returns a transcript
// marked completed or aborted, even alongside a non-nil error, so partial
// evidence stays reportable. Cancellation is honored between turns only;
// a turn in flight runs to completion.
func (r *Runner) Run(ctx context.Context, runID, goal string, scenarioSet []string) (*transcript.Transcript, error) {
	tr := transcript.New(runID, goal, r.mode, scenarioSet)
	state := r.transition(runID, StateInitializing, StateInitializing)

	msg, err := r.attacker.Next(ctx, goal, nil, nil)
	if err != nil {
		if serixerr.HasCode(err, serixerr.CodeAttackExhausted) {
			// Empty scenario set: a completed run with zero turns.
			tr.Complete()
			return tr, nil
		}
		tr.Abort()
		return tr, serixerr.Wrap(err, serixerr.CodeRunAborted, "producing opening probe",
			serixerr.FieldRunID(runID))
	}

	var lastFeedback *transcript.TurnScore
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			tr.Abort()
			return tr, serixerr.Wrap(ctxErr, serixerr.CodeRunAborted, "run cancelled between turns",
				serixerr.FieldRunID(runID))
		}

		state = r.transition(runID, state, StateAwaitingAgentResponse)
		turn, err := r.executeTurn(ctx, msg)
		if err != nil {
			if serixerr.IsReplayViolation(err) {
				tr.Abort()
				return tr, err
			}
			if serixerr.HasCode(err, serixerr.CodeTargetTimeout) && tr.Len() > 0 {
				// Recoverable: the turn failed, the run continues.
				turn.FailureCode = string(serixerr.CodeTargetTimeout)
				idx := tr.Append(turn)
				r.logger.Warn("turn timed out, continuing", "run_id", runID, "turn", idx)
			} else {
				tr.Abort()
				r.transition(runID, state, StateAborted)
				return tr, serixerr.Wrap(err, serixerr.CodeRunAborted, "target call unrecoverable",
					serixerr.FieldRunID(runID), serixerr.FieldTurn(tr.Len()))
			}
		} else {
			idx := tr.Append(turn)
			turn.Index = idx

			state = r.transition(runID, state, StateAwaitingJudgment)
			score, err := r.judge.Score(ctx, goal, turn)
			if err != nil {
				// Only determinism violations and cancellation escape the
				// judge; both abort.
				tr.Abort()
				r.transition(runID, state, StateAborted)
				return tr, err
			}
			if err := tr.AttachScore(idx, score); err != nil {
				tr.Abort()
				return tr, err
			}
			if !score.JudgeFailed {
				lastFeedback = score
			}
		}

		state = r.transition(runID, state, StateDeciding)
		if r.mode == transcript.ModeAdaptive {
			d := decide(tr.Turns(), tr.HasCriticalFinding(), r.opts)
			if !d.Continue {
				r.logger.Info("run complete", "run_id", runID, "reason", d.Reason, "turns", tr.Len())
				tr.Complete()
				r.transition(runID, state, StateCompleted)
				return tr, nil
			}
		}

		msg, err = r.attacker.Next(ctx, goal, tr.Turns(), lastFeedback)
		if err != nil {
			if serixerr.HasCode(err, serixerr.CodeAttackExhausted) {
				// Static mode ends exactly here: one pass over the library.
				tr.Complete()
				r.transition(runID, state, StateCompleted)
				return tr, nil
			}
			tr.Abort()
			r.transition(runID, state, StateAborted)
			return tr, serixerr.Wrap(err, serixerr.CodeRunAborted, "producing next probe",
				serixerr.FieldRunID(runID))
		}
	}
}

// executeTurn sends one attacker message to the target under the per-turn
// deadline and captures the exchange, including any recordings the agent's
// own provider calls produced during it.
func (r *Runner) executeTurn(ctx context.Context, msg string) (transcript.Turn, error) {
	turnCtx, cancel := context.WithTimeout(ctx, r.opts.TurnTimeout)
	defer cancel()

	turn := transcript.Turn{
		AttackerMessage: msg,
		StartedAt:       time.Now(),
	}

	recStart := r.sessionMark()
	response, err := r.target.Send(turnCtx, msg)
	turn.LatencyMS = float64(time.Since(turn.StartedAt).Microseconds()) / 1000.0
	turn.Recordings = r.sessionSlice(recStart)
	if err != nil {
		return turn, err
	}

	turn.AgentResponse = response
	return turn, nil
}

// sessionMark notes the agent session's position before a turn. Replay
// advances the cursor; record appends, so length moves instead.
func (r *Runner) sessionMark() int {
	if r.agentSession == nil {
		return 0
	}
	if r.agentSession.Mode() == intercept.ModeReplay {
		return r.agentSession.Cursor()
	}
	return r.agentSession.Len()
}

func (r *Runner) sessionSlice(start int) []intercept.Recording {
	if r.agentSession == nil {
		return nil
	}
	end := r.sessionMark()
	if end <= start {
		return nil
	}
	recordings := r.agentSession.Recordings()
	return recordings[start:end]
}

func (r *Runner) transition(runID string, from, to State) State {
	if from != to {
		r.logger.Debug("state transition", "run_id", runID, "from", string(from), "to", string(to))
	}
	return to
}
