package agentic

import (
	"testing"

	"github.com/jensabrahamsson/overblick/internal/models"
)

func TestSetupSeedsDefaultsOnlyWhenEmpty(t *testing.T) {
	fs := newFakeStore()
	tracker := NewGoalTracker(fs)

	defaults := []models.AgentGoal{
		{Name: "first", Priority: 80},
		{Name: "second", Priority: 20},
		{Name: "first", Priority: 10}, // duplicate name, must be skipped
	}
	if err := tracker.Setup(defaults); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	goals, err := tracker.ActiveGoals()
	if err != nil {
		t.Fatalf("ActiveGoals: %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("expected 2 seeded goals, got %d", len(goals))
	}
	if goals[0].Priority != 80 {
		t.Fatalf("duplicate default overwrote the first entry: %+v", goals[0])
	}

	// A second Setup with different defaults must be a no-op: active goals
	// already exist.
	if err := tracker.Setup([]models.AgentGoal{{Name: "third"}}); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
	goals, _ = tracker.ActiveGoals()
	if len(goals) != 2 {
		t.Fatalf("second Setup should not add goals, got %d", len(goals))
	}
}

func TestUpdateProgressClamps(t *testing.T) {
	fs := newFakeStore()
	tracker := NewGoalTracker(fs)
	if err := tracker.Setup([]models.AgentGoal{{Name: "g"}}); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if err := tracker.UpdateProgress("g", 1.5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got := fs.goals["g"].Progress; got != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", got)
	}

	if err := tracker.UpdateProgress("g", -0.2); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got := fs.goals["g"].Progress; got != 0.0 {
		t.Fatalf("expected clamp to 0.0, got %v", got)
	}

	if err := tracker.UpdateProgress("missing", 0.5); err == nil {
		t.Fatal("expected an error for an unknown goal")
	}
}
