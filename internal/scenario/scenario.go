// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package scenario holds the fixed, category-tagged probe library used in
// static mode and the persona definitions shared with the adaptive attacker.
package scenario

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var builtinLibrary []byte

// Persona names an attacker style.
type Persona string

const (
	PersonaJailbreaker Persona = "jailbreaker"
	PersonaExtractor   Persona = "extractor"
	PersonaConfuser    Persona = "confuser"
	PersonaManipulator Persona = "manipulator"
)

// Scenario is one security testing scenario: a category, a persona, and
// one or more probe templates containing a {goal} placeholder.
type Scenario struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Persona     Persona             `yaml:"persona"`
	Category    transcript.Category `yaml:"category"`
	Severity    transcript.Severity `yaml:"severity"`
	DefaultGoal string              `yaml:"default_goal"`
	Templates   []string            `yaml:"templates"`
}

// Interpolate substitutes goal into a probe template.
func Interpolate(template, goal string) string {
	return strings.ReplaceAll(template, "{goal}", goal)
}

// Registry maps scenario names to definitions.
type Registry struct {
	scenarios map[string]Scenario
}

type libraryFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Builtin loads the embedded scenario library.
func Builtin() (*Registry, error) {
	return Parse(builtinLibrary)
}

// Parse builds a Registry from YAML bytes.
func Parse(raw []byte) (*Registry, error) {
	var file libraryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, serixerr.Wrap(err, serixerr.CodeConfigParseInvalidFormat, "parsing scenario library")
	}

	reg := &Registry{scenarios: make(map[string]Scenario, len(file.Scenarios))}
	for _, sc := range file.Scenarios {
		if sc.Name == "" {
			return nil, serixerr.New(serixerr.CodeConfigInvalidValue, "scenario with empty name")
		}
		if len(sc.Templates) == 0 {
			return nil, serixerr.Errorf(serixerr.CodeConfigInvalidValue,
				"scenario %q has no templates", sc.Name)
		}
		reg.scenarios[sc.Name] = sc
	}
	return reg, nil
}

// Get looks up a scenario by name.
func (r *Registry) Get(name string) (Scenario, error) {
	sc, ok := r.scenarios[name]
	if !ok {
		return Scenario{}, serixerr.New(serixerr.CodeScenarioNotFound, "unknown scenario",
			serixerr.FieldScenario(name))
	}
	return sc, nil
}

// Names returns all scenario names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve expands a scenario set into definitions, in the order given.
// An empty set resolves to the whole library in name order.
func (r *Registry) Resolve(set []string) ([]Scenario, error) {
	if len(set) == 0 {
		set = r.Names()
	}

	out := make([]Scenario, 0, len(set))
	for _, name := range set {
		sc, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// TemplateCount sums the probe templates across a resolved scenario set;
// in static mode this is exactly the number of turns a run will take.
func TemplateCount(scenarios []Scenario) int {
	total := 0
	for _, sc := range scenarios {
		total += len(sc.Templates)
	}
	return total
}
