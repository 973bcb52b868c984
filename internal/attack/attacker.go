// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package attack generates attacker messages. Static mode draws from the
// fixed scenario template library; adaptive mode asks an attacker model to
// specialize the next probe on the weakest point the judge has found so far.
package attack

import (
	"context"

	"github.com/yuktathapliyal/serix/internal/transcript"
)

// Attacker produces the next attacker message for a run.
type Attacker interface {
	// Next returns the next message given the goal, the prior turns, and
	// the judge's feedback on the most recent judged turn (nil before the
	// first verdict). Returns an attack.templates.exhausted error when the
	// attacker has nothing further to send.
	Next(ctx context.Context, goal string, prior []transcript.Turn, feedback *transcript.TurnScore) (string, error)
}
