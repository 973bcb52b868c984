// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package run

// State is the orchestrator's position in a run's lifecycle.
type State string

const (
	StateInitializing          State = "initializing"
	StateAwaitingAgentResponse State = "awaiting_agent_response"
	StateAwaitingJudgment      State = "awaiting_judgment"
	StateDeciding              State = "deciding"
	StateCompleted             State = "completed"
	StateAborted               State = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}
