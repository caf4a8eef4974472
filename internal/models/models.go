// Package models holds the supervisor runtime's core domain types shared
// across the agentic loop, the planner, and persistence — kept in their own
// package so store, agentic, and planner can all depend on them without a
// cycle.
package models

import "time"

// GoalStatus is an Agent Goal's lifecycle state.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
)

// AgentGoal is a single named objective tracked by the Goal Tracker.
// Names are unique within one agent's state store.
type AgentGoal struct {
	ID          int64
	Name        string
	Description string
	Priority    int // 0-100, higher = more important
	Status      GoalStatus
	Progress    float64 // clamped to [0.0, 1.0]
	Metadata    map[string]any
	CreatedAt   string
	UpdatedAt   string
}

// PlannedAction is one action emitted by the Planner for the Executor to
// dispatch. action_type is opaque to the core — handlers key off it.
type PlannedAction struct {
	ActionType   string
	Target       string
	TargetNumber int
	Repo         string
	Priority     int
	Reasoning    string
	Params       map[string]any
}

// ActionOutcome records the result of dispatching one PlannedAction.
type ActionOutcome struct {
	Action     PlannedAction
	Success    bool
	Result     string
	Error      string
	DurationMs float64
}

// TickLog records the accounting of one agentic-loop tick.
type TickLog struct {
	TickNumber        int64
	StartedAt         string
	CompletedAt       string
	ObservationsCount int
	ActionsPlanned    int
	ActionsExecuted   int
	ActionsSucceeded  int
	ReasoningSummary  string // truncated to 500 chars
	DurationMs        float64
}

// AgentLearning is one LLM-extracted insight surfaced by the Reflection
// pipeline and replayed into future planning prompts.
type AgentLearning struct {
	ID         int64
	Category   string
	Insight    string
	Confidence float64 // clamped to [0.0, 1.0]
	Source     string  // e.g. "reflection"
	SourceTick int64
	SourceRef  *string
	CreatedAt  string
}

// ActionPlan is the Planner's output for one tick.
type ActionPlan struct {
	Reasoning string
	Actions   []PlannedAction
}

// Now returns the current time formatted the way persisted timestamp
// columns expect it (RFC3339 in UTC). Kept as a single call site so the
// format can be revisited without touching every caller.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// TruncateReasoning caps a reasoning summary at 500 chars, per the Tick Log
// data model.
func TruncateReasoning(s string) string {
	if len(s) <= 500 {
		return s
	}
	return s[:500]
}
