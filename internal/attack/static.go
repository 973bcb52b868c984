// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package attack

import (
	"context"

	"github.com/yuktathapliyal/serix/internal/scenario"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// probe is one template bound to the scenario it came from.
type probe struct {
	scenario scenario.Scenario
	template string
}

// TemplateAttacker walks the resolved scenario set exactly once, one
// template per turn, in library order. It ignores judge feedback; static
// mode trades adaptivity for full, deterministic coverage.
type TemplateAttacker struct {
	probes []probe
	cursor int
}

var _ Attacker = (*TemplateAttacker)(nil)

// NewTemplateAttacker flattens the scenario set into an ordered probe list.
func NewTemplateAttacker(scenarios []scenario.Scenario) *TemplateAttacker {
	var probes []probe
	for _, sc := range scenarios {
		for _, tmpl := range sc.Templates {
			probes = append(probes, probe{scenario: sc, template: tmpl})
		}
	}
	return &TemplateAttacker{probes: probes}
}

// Len returns the total number of probes; a completed static run has
// exactly this many turns.
func (a *TemplateAttacker) Len() int { return len(a.probes) }

// Remaining returns the number of probes not yet issued.
func (a *TemplateAttacker) Remaining() int { return len(a.probes) - a.cursor }

// CurrentScenario returns the scenario of the most recently issued probe.
// Zero value before the first call to Next.
func (a *TemplateAttacker) CurrentScenario() scenario.Scenario {
	if a.cursor == 0 {
		return scenario.Scenario{}
	}
	return a.probes[a.cursor-1].scenario
}

func (a *TemplateAttacker) Next(_ context.Context, goal string, _ []transcript.Turn, _ *transcript.TurnScore) (string, error) {
	if a.cursor >= len(a.probes) {
		return "", serixerr.New(serixerr.CodeAttackExhausted, "probe library exhausted",
			serixerr.Field("probes", len(a.probes)))
	}

	p := a.probes[a.cursor]
	a.cursor++

	if goal == "" {
		goal = p.scenario.DefaultGoal
	}
	return scenario.Interpolate(p.template, goal), nil
}
