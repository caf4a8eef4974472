package agentic

import (
	"fmt"
	"strings"

	"github.com/jensabrahamsson/overblick/internal/models"
)

// goalStore is the subset of *store.Store the Goal Tracker needs, kept as
// an interface so tests can substitute an in-memory fake.
type goalStore interface {
	GetGoals(status models.GoalStatus) ([]models.AgentGoal, error)
	UpsertGoal(g models.AgentGoal) (int64, error)
}

// GoalTracker wraps persisted Agent Goals: seeding plugin-supplied defaults
// on first run, and formatting the active set for the planning prompt.
type GoalTracker struct {
	store goalStore
}

// NewGoalTracker wraps s.
func NewGoalTracker(s goalStore) *GoalTracker {
	return &GoalTracker{store: s}
}

// Setup loads all Active goals; if none exist, upserts every default
// supplied by defaults. A name repeated within defaults is skipped, so the
// first occurrence wins. The store is not checked for inactive goals: a
// paused or completed goal with a default's name is overwritten by that
// default, since upsert is by name.
func (t *GoalTracker) Setup(defaults []models.AgentGoal) error {
	active, err := t.store.GetGoals(models.GoalActive)
	if err != nil {
		return fmt.Errorf("agentic: goal tracker setup: %w", err)
	}
	if len(active) > 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(defaults))
	for _, g := range defaults {
		if _, dup := seen[g.Name]; dup {
			continue
		}
		seen[g.Name] = struct{}{}
		if g.Status == "" {
			g.Status = models.GoalActive
		}
		if _, err := t.store.UpsertGoal(g); err != nil {
			return fmt.Errorf("agentic: seed default goal %q: %w", g.Name, err)
		}
	}
	return nil
}

// ActiveGoals returns Active goals sorted by priority descending (the
// store's GetGoals already orders this way).
func (t *GoalTracker) ActiveGoals() ([]models.AgentGoal, error) {
	goals, err := t.store.GetGoals(models.GoalActive)
	if err != nil {
		return nil, fmt.Errorf("agentic: load active goals: %w", err)
	}
	return goals, nil
}

// UpdateProgress clamps p to [0, 1] and persists it against the named goal.
// The goal must already exist; callers that need to create-or-update should
// use the store's UpsertGoal directly.
func (t *GoalTracker) UpdateProgress(name string, p float64) error {
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	goals, err := t.store.GetGoals(models.GoalActive)
	if err != nil {
		return fmt.Errorf("agentic: update progress: %w", err)
	}
	for _, g := range goals {
		if g.Name == name {
			g.Progress = p
			_, err := t.store.UpsertGoal(g)
			return err
		}
	}
	return fmt.Errorf("agentic: update progress: goal %q not found among active goals", name)
}

// FormatForPlanner renders the active goal set as the ACTIVE GOALS section
// text embedded in the planning prompt.
func FormatForPlanner(goals []models.AgentGoal) string {
	if len(goals) == 0 {
		return "No active goals."
	}
	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "- [%d] %s (%.0f%%): %s\n", g.Priority, g.Name, g.Progress*100, g.Description)
	}
	return b.String()
}
