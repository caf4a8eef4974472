// Package agentic implements the domain-agnostic OBSERVE/THINK/PLAN/ACT/
// REFLECT tick engine: a Loop that composes an Observer, a GoalTracker, a
// Planner, an Executor with pluggable ActionHandlers, and a Reflector into
// one testable control cycle with persistent accounting.
package agentic

import (
	"context"

	"github.com/jensabrahamsson/overblick/internal/models"
)

// Observer produces one opaque, domain-specific observation per tick.
// Observations are never inspected by the core — only formatted for the
// planner and counted for tick accounting.
type Observer interface {
	Observe(ctx context.Context) (any, error)
	// FormatForPlanner renders obs as the text block embedded in the
	// planning prompt's CURRENT STATE section.
	FormatForPlanner(obs any) string
}

// ActionHandler executes one action_type, returning the text recorded as
// the outcome's Result on success. An error is wrapped into a failed
// ActionOutcome by the Executor; it must never panic across this boundary
// (the Executor recovers regardless, but a well-behaved handler returns
// errors instead of panicking).
type ActionHandler interface {
	Handle(ctx context.Context, action models.PlannedAction, observation any) (string, error)
}

// ActionHandlerFunc adapts a plain function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, action models.PlannedAction, observation any) (string, error)

// Handle implements ActionHandler.
func (f ActionHandlerFunc) Handle(ctx context.Context, action models.PlannedAction, observation any) (string, error) {
	return f(ctx, action, observation)
}

// PlanningPromptConfig supplies the plugin-specific parts of the planning
// system prompt: its role description, the listing of actions it can plan,
// and (optionally) the set of action_types the Planner will accept —
// anything outside ValidActionTypes is dropped silently during validation.
// An empty ValidActionTypes means accept-all.
type PlanningPromptConfig struct {
	RolePrompt      string
	ActionsListing  string
	SafetyRules     string
	ValidActionTypes map[string]struct{}
}

// Plugin is the domain-agnostic loop's single extension point: it supplies
// an Observer, the handlers the Executor dispatches to, the planning prompt
// configuration, and a handful of optional hooks.
type Plugin interface {
	CreateObserver() Observer
	GetActionHandlers() map[string]ActionHandler
	GetPlanningPromptConfig() PlanningPromptConfig

	// GetDefaultGoals seeds the Goal Tracker the first time it runs with no
	// Active goals. May return nil.
	GetDefaultGoals() []models.AgentGoal
	// GetExtraPlanningContext is evaluated once per tick and, if non-empty,
	// placed first in the planning prompt as a PRIORITY CONTEXT section.
	GetExtraPlanningContext(ctx context.Context) string
	// GetLearningCategories is advisory metadata; may return nil. The loop
	// and the Reflector do not read it.
	GetLearningCategories() []string
	// GetSystemPrompt returns the plugin's base persona text. May return "".
	// The Reflector does not read it; its system prompt is fixed.
	GetSystemPrompt() string
}
