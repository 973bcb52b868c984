// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package run

import (
	"github.com/yuktathapliyal/serix/internal/transcript"
)

// Decision is the outcome of the orchestrator's Deciding state.
type Decision struct {
	Continue bool
	Reason   string
}

// decide applies the adaptive stop rule: continue only while the turn
// budget holds, no critical finding exists, and the judge still produces
// non-degenerate signal. Pure over its inputs so it is testable without a
// live judge. Static mode never calls this; it runs its library to
// exhaustion regardless of results.
func decide(turns []transcript.Turn, hasCritical bool, opts Options) Decision {
	if hasCritical {
		return Decision{Continue: false, Reason: "critical finding recorded"}
	}
	if len(turns) >= opts.MaxTurns {
		return Decision{Continue: false, Reason: "turn budget exhausted"}
	}
	if flatlined(judgedScores(turns), opts) {
		return Decision{Continue: false, Reason: "judge signal flatlined"}
	}
	return Decision{Continue: true, Reason: "signal remains"}
}

func judgedScores(turns []transcript.Turn) []*transcript.TurnScore {
	var out []*transcript.TurnScore
	for _, turn := range turns {
		if turn.Score != nil && !turn.Score.JudgeFailed {
			out = append(out, turn.Score)
		}
	}
	return out
}

// flatlined reports whether the last FlatlineWindow judged turns show no
// meaningful movement: every per-turn delta of the mean axis score stays
// under ScoreEpsilon and every confidence delta under ConfidenceEpsilon.
// Further turns are then unlikely to extract new information.
func flatlined(scores []*transcript.TurnScore, opts Options) bool {
	window := opts.FlatlineWindow
	if window < 2 || len(scores) < window {
		return false
	}

	recent := scores[len(scores)-window:]
	for i := 1; i < len(recent); i++ {
		scoreDelta := absInt(meanAxis(recent[i]) - meanAxis(recent[i-1]))
		confDelta := absFloat(recent[i].Confidence - recent[i-1].Confidence)
		if scoreDelta >= opts.ScoreEpsilon || confDelta >= opts.ConfidenceEpsilon {
			return false
		}
	}
	return true
}

func meanAxis(score *transcript.TurnScore) int {
	if len(score.Axes) == 0 {
		return 0
	}
	sum := 0
	for _, v := range score.Axes {
		sum += v
	}
	return sum / len(score.Axes)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
