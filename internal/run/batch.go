// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package run

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/transcript"
)

// Spec names one run inside a batch.
type Spec struct {
	RunID       string
	Goal        string
	ScenarioSet []string
	Runner      *Runner
}

// Outcome pairs a finished run with its assembled result. Err is set when
// the run aborted; the transcript and result are still populated.
type Outcome struct {
	Spec       Spec
	Transcript *transcript.Transcript
	Result     score.EvaluationResult
	Err        error
}

// RunAll executes runs concurrently, bounded by limit (<=0 means all at
// once). Each run owns its Runner, transcript, and sessions, so runs never
// share mutable state. Aborted runs do not cancel their siblings; every
// spec yields an outcome.
func RunAll(ctx context.Context, specs []Spec, policy score.Policy, limit int) []Outcome {
	outcomes := make([]Outcome, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, spec := range specs {
		g.Go(func() error {
			tr, err := spec.Runner.Run(gctx, spec.RunID, spec.Goal, spec.ScenarioSet)
			// Each goroutine owns its own slice element.
			outcomes[i] = Outcome{
				Spec:       spec,
				Transcript: tr,
				Result:     score.Assemble(tr, policy),
				Err:        err,
			}
			return nil
		})
	}

	// Workers always return nil; Wait here is a join.
	_ = g.Wait()
	return outcomes
}
