// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package transcript holds the ordered conversation history of one
// red-team run and the per-turn scoring types shared by the judge,
// orchestrator, and assembler.
package transcript

import (
	"sync"
	"time"

	"github.com/yuktathapliyal/serix/internal/intercept"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Status is the lifecycle state of a Transcript.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Mode selects how attacker messages are generated.
type Mode string

const (
	// ModeStatic runs one pass over a fixed, category-tagged probe library;
	// comprehensive coverage, fast and deterministic.
	ModeStatic Mode = "static"
	// ModeAdaptive specializes each probe on judge feedback; best-effort
	// deepest exploit in fewer turns.
	ModeAdaptive Mode = "adaptive"
)

// Category tags the kind of vulnerability a finding evidences.
type Category string

const (
	CategoryPromptInjection Category = "prompt-injection"
	CategoryJailbreak       Category = "jailbreak"
	CategoryDataLeak        Category = "data-leak"
	CategoryRoleViolation   Category = "role-violation"
	CategoryToolAbuse       Category = "tool-abuse"
	CategoryHallucination   Category = "hallucination"
)

// OWASPCode identifies an entry of the OWASP Top 10 for LLM Applications.
type OWASPCode string

const (
	OWASPPromptInjection     OWASPCode = "LLM01"
	OWASPInsecureOutput      OWASPCode = "LLM02"
	OWASPSensitiveDisclosure OWASPCode = "LLM06"
	OWASPInsecurePlugin      OWASPCode = "LLM07"
	OWASPExcessiveAgency     OWASPCode = "LLM08"
	OWASPOverreliance        OWASPCode = "LLM09"
)

// OWASP maps a category onto its closest OWASP LLM Top 10 code, used when
// the judge does not classify the finding itself. Unknown categories fall
// back to prompt injection, the broadest code.
func (c Category) OWASP() OWASPCode {
	switch c {
	case CategoryPromptInjection, CategoryJailbreak:
		return OWASPPromptInjection
	case CategoryDataLeak:
		return OWASPSensitiveDisclosure
	case CategoryToolAbuse:
		return OWASPInsecurePlugin
	case CategoryRoleViolation:
		return OWASPExcessiveAgency
	case CategoryHallucination:
		return OWASPOverreliance
	default:
		return OWASPPromptInjection
	}
}

// Severity ranks how bad a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities; higher is worse. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Axis names one dimension of the security assessment.
type Axis string

const (
	AxisSafety        Axis = "safety"
	AxisCompliance    Axis = "compliance"
	AxisInfoLeakage   Axis = "info-leakage"
	AxisRoleAdherence Axis = "role-adherence"
	// AxisOverall is derived by the assembler, never judged directly.
	AxisOverall Axis = "overall"
)

// Axes lists the judged axes in canonical order.
func Axes() []Axis {
	return []Axis{AxisSafety, AxisCompliance, AxisInfoLeakage, AxisRoleAdherence}
}

// Finding is a specific, evidenced vulnerability instance.
type Finding struct {
	Category   Category  `json:"category"`
	Severity   Severity  `json:"severity"`
	OWASP      OWASPCode `json:"owasp,omitempty"`
	TurnIndex  int       `json:"turn_index"`
	Evidence   string    `json:"evidence"`
	Confidence float64   `json:"confidence"`
}

// TurnScore is the judge's verdict on a single turn.
type TurnScore struct {
	// Axes holds 0-100 per-axis scores for this turn. Empty when the
	// judge failed and the score degraded to zero confidence.
	Axes     map[Axis]int `json:"axes"`
	Findings []Finding    `json:"findings"`
	// Confidence is the judge's own confidence in the verdict, 0-1.
	// Zero means the judge failed and this score carries no signal.
	Confidence float64 `json:"confidence"`
	// WeakAxes and SuggestedPivot are the structured feedback the
	// adaptive attacker specializes on.
	WeakAxes       []Axis `json:"weak_axes,omitempty"`
	SuggestedPivot string `json:"suggested_pivot,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	JudgeFailed    bool   `json:"judge_failed,omitempty"`
}

// MaxSeverity returns the worst severity among the score's findings.
func (ts *TurnScore) MaxSeverity() Severity {
	var worst Severity
	for _, f := range ts.Findings {
		if f.Severity.Rank() > worst.Rank() {
			worst = f.Severity
		}
	}
	return worst
}

// Turn is one exchange in the red-team conversation. Appended only;
// never mutated after judging except to attach its score.
type Turn struct {
	Index           int                   `json:"index"`
	AttackerMessage string                `json:"attacker_message"`
	AgentResponse   string                `json:"agent_response"`
	Recordings      []intercept.Recording `json:"intercepted_recordings,omitempty"`
	Score           *TurnScore            `json:"turn_score,omitempty"`
	// FailureCode labels a turn-local failure condition such as a
	// timeout; empty for healthy turns.
	FailureCode string    `json:"failure_code,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	LatencyMS   float64   `json:"latency_ms"`
}

// Failed reports whether the turn failed before producing a usable response.
func (t Turn) Failed() bool { return t.FailureCode != "" }

// Transcript is the ordered list of turns for one run. Owned by the
// orchestrator for the run's duration; the evaluator and assembler only
// ever see copies via Turns.
type Transcript struct {
	mu sync.Mutex

	RunID       string   `json:"run_id"`
	Goal        string   `json:"goal"`
	Mode        Mode     `json:"mode"`
	ScenarioSet []string `json:"scenario_set"`

	status Status
	turns  []Turn
}

// New creates a running Transcript.
func New(runID, goal string, mode Mode, scenarioSet []string) *Transcript {
	return &Transcript{
		RunID:       runID,
		Goal:        goal,
		Mode:        mode,
		ScenarioSet: scenarioSet,
		status:      StatusRunning,
	}
}

func (tr *Transcript) Status() Status {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.status
}

// Complete marks the transcript finished normally.
func (tr *Transcript) Complete() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.status = StatusCompleted
}

// Abort marks the transcript aborted; turns recorded so far are preserved
// so partial evidence is still reportable.
func (tr *Transcript) Abort() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.status = StatusAborted
}

// Append adds a turn and returns its index.
func (tr *Transcript) Append(turn Turn) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	turn.Index = len(tr.turns)
	tr.turns = append(tr.turns, turn)
	return turn.Index
}

// AttachScore sets the turn's score. Single-writer: a score may be set
// at most once per turn, and only the judge writes it.
func (tr *Transcript) AttachScore(index int, score *TurnScore) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if index < 0 || index >= len(tr.turns) {
		return serixerr.Errorf(serixerr.CodeRunInvalidInput, "no turn at index %d", index)
	}
	if tr.turns[index].Score != nil {
		return serixerr.New(serixerr.CodeScoreSetTwice, "turn already judged",
			serixerr.FieldTurn(index))
	}

	tr.turns[index].Score = score
	return nil
}

// Len returns the number of turns.
func (tr *Transcript) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.turns)
}

// Turns returns a copy of the turns in order.
func (tr *Transcript) Turns() []Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Turn, len(tr.turns))
	copy(out, tr.turns)
	return out
}

// JudgedTurns returns the turns that carry a usable (non-failed) score.
func (tr *Transcript) JudgedTurns() []Turn {
	var out []Turn
	for _, turn := range tr.Turns() {
		if turn.Score != nil && !turn.Score.JudgeFailed {
			out = append(out, turn)
		}
	}
	return out
}

// LastScore returns the most recent usable turn score, or nil.
func (tr *Transcript) LastScore() *TurnScore {
	judged := tr.JudgedTurns()
	if len(judged) == 0 {
		return nil
	}
	return judged[len(judged)-1].Score
}

// HasCriticalFinding reports whether any judged turn produced a finding
// of critical severity.
func (tr *Transcript) HasCriticalFinding() bool {
	for _, turn := range tr.Turns() {
		if turn.Score == nil {
			continue
		}
		if turn.Score.MaxSeverity() == SeverityCritical {
			return true
		}
	}
	return false
}
