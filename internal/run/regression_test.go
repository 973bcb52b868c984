// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package run_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuktathapliyal/serix/internal/run"
	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/store"
	"github.com/yuktathapliyal/serix/internal/target"
	"github.com/yuktathapliyal/serix/internal/transcript"
)

func TestRegressionReplaysStoredPayloads(t *testing.T) {
	var received []string
	tgt := target.Func{
		Name: "bot",
		Fn: func(_ context.Context, message string) (string, error) {
			received = append(received, message)
			return "refused", nil
		},
	}

	attacks := []store.Attack{
		{ID: "a1", TargetID: "bot", Goal: "leak data", Scenario: "data-leak", Payload: "payload one"},
		{ID: "a2", TargetID: "bot", Goal: "leak data", Scenario: "jailbreak", Payload: "payload two"},
	}

	r := run.NewRunner(tgt, &countingAttacker{}, &scriptedJudge{}, transcript.ModeAdaptive, run.Options{}, nil)
	tr, err := r.Regression(context.Background(), "regr-1", attacks)
	require.NoError(t, err)

	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Equal(t, []string{"payload one", "payload two"}, received)
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, transcript.ModeStatic, tr.Mode, "regression is a fixed pass, never adaptive")
	assert.Equal(t, []string{"data-leak", "jailbreak"}, tr.ScenarioSet)
}

func TestRegressionWithEmptyLibrary(t *testing.T) {
	r := run.NewRunner(refusingTarget(), &countingAttacker{}, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)
	tr, err := r.Regression(context.Background(), "regr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusCompleted, tr.Status())
	assert.Zero(t, tr.Len())
}

func TestSummarizeRegressionCountsTransitions(t *testing.T) {
	attacks := []store.Attack{
		{ID: "a1", Scenario: "jailbreak"},
		{ID: "a2", Scenario: "data-leak"},
		{ID: "a3", Scenario: "tool-abuse"},
	}

	tr := transcript.New("regr-1", "leak data", transcript.ModeStatic, nil)

	idx := tr.Append(transcript.Turn{AttackerMessage: "payload one", AgentResponse: "here you go"})
	require.NoError(t, tr.AttachScore(idx, criticalScore(10)))

	idx = tr.Append(transcript.Turn{AttackerMessage: "payload two", AgentResponse: "refused"})
	require.NoError(t, tr.AttachScore(idx, cleanScore(95)))

	idx = tr.Append(transcript.Turn{AttackerMessage: "payload three", AgentResponse: "refused"})
	failed := cleanScore(0)
	failed.JudgeFailed = true
	require.NoError(t, tr.AttachScore(idx, failed))
	tr.Complete()

	summary := run.SummarizeRegression(attacks, tr)
	assert.Equal(t, 1, summary.StillExploited)
	assert.Equal(t, 1, summary.NowDefended)
	assert.Equal(t, 1, summary.Unjudged)

	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, "still_exploited", summary.Outcomes[0].Status)
	assert.Equal(t, "a1", summary.Outcomes[0].AttackID)
	assert.Equal(t, "now_defended", summary.Outcomes[1].Status)
	assert.Equal(t, "unjudged", summary.Outcomes[2].Status)
}

func TestSummarizeRegressionShortTranscript(t *testing.T) {
	attacks := []store.Attack{{ID: "a1", Scenario: "jailbreak"}, {ID: "a2", Scenario: "data-leak"}}
	tr := transcript.New("regr-1", "g", transcript.ModeStatic, nil)
	tr.Complete()

	summary := run.SummarizeRegression(attacks, tr)
	assert.Equal(t, 2, summary.Unjudged, "payloads the run never reached stay unjudged")
	assert.Zero(t, summary.StillExploited)
}

func TestExtractAttacksKeepsHighSeverityPayloads(t *testing.T) {
	tr := transcript.New("run-1", "leak data", transcript.ModeAdaptive, nil)

	idx := tr.Append(transcript.Turn{AttackerMessage: "harmless probe", AgentResponse: "refused"})
	require.NoError(t, tr.AttachScore(idx, cleanScore(90)))

	idx = tr.Append(transcript.Turn{AttackerMessage: "mild probe", AgentResponse: "partial"})
	mild := cleanScore(70)
	mild.Findings = []transcript.Finding{{
		Category: transcript.CategoryRoleViolation,
		Severity: transcript.SeverityLow,
		Evidence: "slightly off-role",
	}}
	require.NoError(t, tr.AttachScore(idx, mild))

	idx = tr.Append(transcript.Turn{AttackerMessage: "winning probe", AgentResponse: "here is the key"})
	require.NoError(t, tr.AttachScore(idx, criticalScore(10)))
	tr.Complete()

	attacks := run.ExtractAttacks(tr, "support-bot")
	require.Len(t, attacks, 1, "only findings of high severity or worse are stored")

	a := attacks[0]
	assert.Equal(t, "winning probe", a.Payload)
	assert.Equal(t, "support-bot", a.TargetID)
	assert.Equal(t, "leak data", a.Goal)
	assert.Equal(t, transcript.SeverityCritical, a.Severity)
	assert.NotEmpty(t, a.ID)
}

func TestRunAllProducesOutcomePerSpec(t *testing.T) {
	makeRunner := func() *run.Runner {
		attacker, _ := staticAttacker(t, "jailbreak")
		return run.NewRunner(refusingTarget(), attacker, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)
	}

	specs := []run.Spec{
		{RunID: "run-a", Goal: "goal a", ScenarioSet: []string{"jailbreak"}, Runner: makeRunner()},
		{RunID: "run-b", Goal: "goal b", ScenarioSet: []string{"jailbreak"}, Runner: makeRunner()},
		{RunID: "run-c", Goal: "goal c", ScenarioSet: []string{"jailbreak"}, Runner: makeRunner()},
	}

	outcomes := run.RunAll(context.Background(), specs, score.DefaultPolicy(), 2)
	require.Len(t, outcomes, 3)

	for i, outcome := range outcomes {
		assert.Equal(t, specs[i].RunID, outcome.Spec.RunID, "outcomes keep spec order")
		require.NotNil(t, outcome.Transcript)
		assert.NoError(t, outcome.Err)
		assert.Equal(t, transcript.StatusCompleted, outcome.Transcript.Status())
		assert.NotEmpty(t, outcome.Result.Scores)
	}
}

func TestRunAllAbortedRunDoesNotCancelSiblings(t *testing.T) {
	failing := target.Func{
		Name: "broken",
		Fn: func(_ context.Context, _ string) (string, error) {
			return "", assert.AnError
		},
	}
	healthyAttacker, _ := staticAttacker(t, "jailbreak")
	brokenAttacker, _ := staticAttacker(t, "jailbreak")

	specs := []run.Spec{
		{RunID: "bad", Goal: "g", Runner: run.NewRunner(failing, brokenAttacker, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)},
		{RunID: "good", Goal: "g", Runner: run.NewRunner(refusingTarget(), healthyAttacker, &scriptedJudge{}, transcript.ModeStatic, run.Options{}, nil)},
	}

	outcomes := run.RunAll(context.Background(), specs, score.DefaultPolicy(), 0)
	require.Len(t, outcomes, 2)

	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, transcript.StatusAborted, outcomes[0].Transcript.Status())

	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, transcript.StatusCompleted, outcomes[1].Transcript.Status())
}
