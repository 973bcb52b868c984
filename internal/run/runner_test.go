// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package run_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuktathapliyal/serix/internal/attack"
	"github.com/yuktathapliyal/serix/internal/run"
	"github.com/yuktathapliyal/serix/internal/scenario"
	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/target"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// scriptedJudge returns pre-built scores in turn order.
type scriptedJudge struct {
	scores []*transcript.TurnScore
	errs   []error
	calls  int
}

func (j *scriptedJudge) Score(_ context.Context, _ string, _ transcript.Turn) (*transcript.TurnScore, error) {
	i := j.calls
	j.calls++
	if i < len(j.errs) && j.errs[i] != nil {
		return nil, j.errs[i]
	}
	if i < len(j.scores) {
		return j.scores[i], nil
	}
	return cleanScore(90), nil
}

func cleanScore(v int) *transcript.TurnScore {
	return &transcript.TurnScore{
		Axes: map[transcript.Axis]int{
			transcript.AxisSafety:        v,
			transcript.AxisCompliance:    v,
			transcript.AxisInfoLeakage:   v,
			transcript.AxisRoleAdherence: v,
		},
		Confidence: 0.9,
	}
}

func criticalScore(v int) *transcript.TurnScore {
	s := cleanScore(v)
	s.Findings = []transcript.Finding{{
		Category:   transcript.CategoryDataLeak,
		Severity:   transcript.SeverityCritical,
		Evidence:   "leaked the key",
		Confidence: 0.95,
	}}
	return s
}

// countingAttacker yields numbered probes forever.
type countingAttacker struct{ calls int }

func (a *countingAttacker) Next(_ context.Context, _ string, _ []transcript.Turn, _ *transcript.TurnScore) (string, error) {
	a.calls++
	return fmt.Sprintf("probe %d", a.calls), nil
}

func refusingTarget() target.Func {
	return target.Func{
		Name: "refuser",
		Fn: func(_ context.Context, _ string) (string, error) {
			return "I cannot help with that.", nil
		},
	}
}

func staticAttacker(t *testing.T, names ...string) (*attack.TemplateAttacker, int) {
	t.Helper()
	reg, err := scenario.Builtin()
	require.NoError(t, err)
	scenarios, err := reg.Resolve(names)
	require.NoError(t, err)
	return attack.NewTemplateAttacker(scenarios), scenario.TemplateCount(scenarios)
}

func TestStaticRunTurnCountEqualsTemplateCount(t *testing.T) {
	attacker, total := staticAttacker(t, "jailbreak", "data_leak")
	// A critical finding on the very first turn must not cut static
	// coverage short.
	j := &scriptedJudge{scores: []*transcript.TurnScore{criticalScore(10)}}
	r := run.NewRunner(refusingTarget(), attacker, j, transcript.ModeStatic, run.Options{}, nil)

	tr, err := r.Run(context.Background(), "run-1", "leak data", []string{"jailbreak", "data_leak"})
	require.NoError(t, err)

	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Equal(t, total, tr.Len())
	assert.Equal(t, total, j.calls, "every turn judged")
}

func TestStaticRunSingleTemplate(t *testing.T) {
	reg, err := scenario.Builtin()
	require.NoError(t, err)
	sc, err := reg.Get("jailbreak")
	require.NoError(t, err)
	sc.Templates = sc.Templates[:1]

	attacker := attack.NewTemplateAttacker([]scenario.Scenario{sc})
	r := run.NewRunner(refusingTarget(), attacker, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", []string{"jailbreak"})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, transcript.StatusCompleted, tr.Status())
}

func TestAdaptiveRunHaltsOnCriticalFinding(t *testing.T) {
	attacker := &countingAttacker{}
	j := &scriptedJudge{scores: []*transcript.TurnScore{
		cleanScore(80),
		criticalScore(10),
	}}
	r := run.NewRunner(refusingTarget(), attacker, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 10}, nil)

	tr, err := r.Run(context.Background(), "run-1", "leak data", nil)
	require.NoError(t, err)

	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Equal(t, 2, tr.Len(), "run halts the instant a critical finding lands")
	assert.Equal(t, 2, attacker.calls, "a third probe is never requested")
	assert.True(t, tr.HasCriticalFinding())
}

func TestAdaptiveRunStopsAtMaxTurns(t *testing.T) {
	attacker := &countingAttacker{}
	scores := make([]*transcript.TurnScore, 10)
	for i := range scores {
		// Keep the signal moving so flatline detection stays quiet.
		scores[i] = cleanScore(50 + i*5)
	}
	j := &scriptedJudge{scores: scores}
	r := run.NewRunner(refusingTarget(), attacker, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 4, FlatlineWindow: 3}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, transcript.StatusCompleted, tr.Status())
}

func TestAdaptiveRunStopsOnFlatline(t *testing.T) {
	attacker := &countingAttacker{}
	j := &scriptedJudge{scores: []*transcript.TurnScore{
		cleanScore(80), cleanScore(80), cleanScore(80),
	}}
	r := run.NewRunner(refusingTarget(), attacker, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 20, FlatlineWindow: 3}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len(), "three identical verdicts flatline the run")
	assert.Equal(t, transcript.StatusCompleted, tr.Status())
}

func TestFirstTurnTimeoutAborts(t *testing.T) {
	hanging := target.Func{
		Name: "hanging",
		Fn: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	r := run.NewRunner(hanging, &countingAttacker{}, &scriptedJudge{}, transcript.ModeAdaptive,
		run.Options{MaxTurns: 5, TurnTimeout: 20 * time.Millisecond}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.Error(t, err)

	assert.Equal(t, transcript.StatusAborted, tr.Status())
	assert.Empty(t, tr.JudgedTurns())

	result := score.Assemble(tr, score.DefaultPolicy())
	assert.Empty(t, result.Findings)
	assert.False(t, result.Passed)
	assert.Equal(t, "?", result.Grade)
}

func TestLaterTurnTimeoutIsRecoverable(t *testing.T) {
	calls := 0
	flaky := target.Func{
		Name: "flaky",
		Fn: func(ctx context.Context, _ string) (string, error) {
			calls++
			if calls == 2 {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "refused", nil
		},
	}
	attacker, total := staticAttacker(t, "jailbreak")
	r := run.NewRunner(flaky, attacker, &scriptedJudge{}, transcript.ModeStatic,
		run.Options{TurnTimeout: 20 * time.Millisecond}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", []string{"jailbreak"})
	require.NoError(t, err)

	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Equal(t, total, tr.Len(), "timed-out turn still counts")

	turns := tr.Turns()
	assert.True(t, turns[1].Failed())
	assert.Equal(t, string(serixerr.CodeTargetTimeout), turns[1].FailureCode)
	assert.Nil(t, turns[1].Score, "failed turns are never judged")
	assert.Len(t, tr.JudgedTurns(), total-1)
}

func TestReplayViolationAbortsUnconditionally(t *testing.T) {
	calls := 0
	tgt := target.Func{
		Name: "replayed",
		Fn: func(_ context.Context, _ string) (string, error) {
			calls++
			if calls == 3 {
				return "", serixerr.New(serixerr.CodeReplayMismatch, "fingerprint mismatch")
			}
			return "refused", nil
		},
	}
	r := run.NewRunner(tgt, &countingAttacker{}, &scriptedJudge{}, transcript.ModeAdaptive,
		run.Options{MaxTurns: 10}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.Error(t, err)
	assert.True(t, serixerr.IsReplayViolation(err))
	assert.Equal(t, transcript.StatusAborted, tr.Status())
	assert.Equal(t, 2, tr.Len(), "turns before the violation are preserved")
}

func TestJudgeReplayViolationAborts(t *testing.T) {
	j := &scriptedJudge{errs: []error{
		serixerr.New(serixerr.CodeReplayExhausted, "no recordings left"),
	}}
	r := run.NewRunner(refusingTarget(), &countingAttacker{}, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 5}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeReplayExhausted, serixerr.CodeOf(err))
	assert.Equal(t, transcript.StatusAborted, tr.Status())
}

func TestCancellationBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	tgt := target.Func{
		Name: "bot",
		Fn: func(_ context.Context, _ string) (string, error) {
			calls++
			if calls == 1 {
				cancel()
			}
			return "refused", nil
		},
	}
	j := &scriptedJudge{scores: []*transcript.TurnScore{cleanScore(50)}}
	r := run.NewRunner(tgt, &countingAttacker{}, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 10}, nil)

	tr, err := r.Run(ctx, "run-1", "goal", nil)
	require.Error(t, err)
	assert.Equal(t, transcript.StatusAborted, tr.Status())
	assert.Equal(t, 1, tr.Len(), "the in-flight turn completed before cancellation took effect")
	assert.Len(t, tr.JudgedTurns(), 1, "completed turns keep their scores")
}

func TestDegradedJudgeScoreDoesNotFeedBack(t *testing.T) {
	var feedbacks []*transcript.TurnScore
	recording := &feedbackRecorder{inner: &countingAttacker{}, sink: &feedbacks}

	j := &scriptedJudge{scores: []*transcript.TurnScore{
		cleanScore(70),
		{JudgeFailed: true},
		cleanScore(40),
	}}
	r := run.NewRunner(refusingTarget(), recording, j, transcript.ModeAdaptive,
		run.Options{MaxTurns: 3}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())
	assert.Len(t, tr.JudgedTurns(), 2, "degraded turn carries no usable score")

	// Probe 3 is generated after the degraded verdict; its feedback must
	// still be the turn-1 score, not the failed one.
	require.Len(t, feedbacks, 3)
	assert.Nil(t, feedbacks[0])
	require.NotNil(t, feedbacks[2])
	assert.False(t, feedbacks[2].JudgeFailed)
	assert.Equal(t, 70, feedbacks[2].Axes[transcript.AxisSafety])
}

type feedbackRecorder struct {
	inner attack.Attacker
	sink  *[]*transcript.TurnScore
}

func (f *feedbackRecorder) Next(ctx context.Context, goal string, prior []transcript.Turn, feedback *transcript.TurnScore) (string, error) {
	*f.sink = append(*f.sink, feedback)
	return f.inner.Next(ctx, goal, prior, feedback)
}

func TestEmptyScenarioSetCompletesWithZeroTurns(t *testing.T) {
	attacker := attack.NewTemplateAttacker(nil)
	r := run.NewRunner(refusingTarget(), attacker, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)

	tr, err := r.Run(context.Background(), "run-1", "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Zero(t, tr.Len())
}
