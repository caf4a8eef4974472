package store

import (
	"path/filepath"
	"testing"

	"github.com/jensabrahamsson/overblick/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	// Re-opening the same database must re-run the migration scan as a
	// no-op rather than fail on existing tables.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	var applied int
	if err := s2.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied < 5 {
		t.Fatalf("expected at least 5 applied migrations, got %d", applied)
	}
}

func TestGoalUpsertIsUniqueByName(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertGoal(models.AgentGoal{Name: "g", Description: "v1", Priority: 10, Status: models.GoalActive}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := s.UpsertGoal(models.AgentGoal{Name: "g", Description: "v2", Priority: 90, Status: models.GoalActive}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	goals, err := s.GetGoals(models.GoalActive)
	if err != nil {
		t.Fatalf("GetGoals: %v", err)
	}
	if len(goals) != 1 {
		t.Fatalf("expected 1 goal after upsert of same name, got %d", len(goals))
	}
	if goals[0].Description != "v2" || goals[0].Priority != 90 {
		t.Fatalf("upsert did not update fields: %+v", goals[0])
	}
}

func TestGetGoalsOrdersByPriorityDescending(t *testing.T) {
	s := openTestStore(t)
	for _, g := range []models.AgentGoal{
		{Name: "low", Priority: 10, Status: models.GoalActive},
		{Name: "high", Priority: 90, Status: models.GoalActive},
		{Name: "paused", Priority: 100, Status: models.GoalPaused},
	} {
		if _, err := s.UpsertGoal(g); err != nil {
			t.Fatalf("upsert %s: %v", g.Name, err)
		}
	}

	goals, err := s.GetGoals(models.GoalActive)
	if err != nil {
		t.Fatalf("GetGoals: %v", err)
	}
	if len(goals) != 2 || goals[0].Name != "high" || goals[1].Name != "low" {
		t.Fatalf("unexpected order or filtering: %+v", goals)
	}
}

func TestTickCountTracksLoggedTicks(t *testing.T) {
	s := openTestStore(t)

	count, err := s.GetTickCount()
	if err != nil || count != 0 {
		t.Fatalf("expected empty store to have 0 ticks, got %d err=%v", count, err)
	}

	for i := int64(1); i <= 3; i++ {
		if _, err := s.LogTick(models.TickLog{TickNumber: i, StartedAt: models.Now(), CompletedAt: models.Now()}); err != nil {
			t.Fatalf("LogTick %d: %v", i, err)
		}
	}

	count, err = s.GetTickCount()
	if err != nil || count != 3 {
		t.Fatalf("expected 3 ticks, got %d err=%v", count, err)
	}
}

func TestActionLogAndRecentActions(t *testing.T) {
	s := openTestStore(t)

	outcomes := []models.ActionOutcome{
		{Action: models.PlannedAction{ActionType: "first", Target: "t1"}, Success: true, Result: "ok"},
		{Action: models.PlannedAction{ActionType: "second", Target: "t2"}, Success: false, Error: "nope"},
	}
	for _, o := range outcomes {
		if _, err := s.LogAction(1, o); err != nil {
			t.Fatalf("LogAction: %v", err)
		}
	}

	rows, err := s.GetRecentActions(10)
	if err != nil {
		t.Fatalf("GetRecentActions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Newest first.
	if rows[0].ActionType != "second" || rows[0].Success {
		t.Fatalf("unexpected newest row: %+v", rows[0])
	}
	if rows[1].ActionType != "first" || !rows[1].Success {
		t.Fatalf("unexpected older row: %+v", rows[1])
	}
}

func TestLearningsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	ref := "tick-7"
	if _, err := s.AddLearning(models.AgentLearning{
		Category:   "fleet",
		Insight:    "peer b never answers heartbeats",
		Confidence: 0.8,
		Source:     "reflection",
		SourceTick: 7,
		SourceRef:  &ref,
	}); err != nil {
		t.Fatalf("AddLearning: %v", err)
	}

	learnings, err := s.GetLearnings(5)
	if err != nil {
		t.Fatalf("GetLearnings: %v", err)
	}
	if len(learnings) != 1 {
		t.Fatalf("expected 1 learning, got %d", len(learnings))
	}
	l := learnings[0]
	if l.Insight != "peer b never answers heartbeats" || l.SourceTick != 7 {
		t.Fatalf("unexpected learning: %+v", l)
	}
	if l.SourceRef == nil || *l.SourceRef != "tick-7" {
		t.Fatalf("source ref lost: %+v", l.SourceRef)
	}
}

func TestAuditLogWriteAndQuery(t *testing.T) {
	s := openTestStore(t)
	audit := NewAuditLog(s)

	if err := audit.Log("message_route", "routing", map[string]any{"target": "b"}, true); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := audit.LogDetailed("health_inquiry_request", "privileged", "watcher", "", nil, true, 12.5, ""); err != nil {
		t.Fatalf("LogDetailed: %v", err)
	}

	all, err := audit.Query("", 10)
	if err != nil {
		t.Fatalf("Query all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	routing, err := audit.Query("routing", 10)
	if err != nil {
		t.Fatalf("Query routing: %v", err)
	}
	if len(routing) != 1 || routing[0].Action != "message_route" {
		t.Fatalf("unexpected routing entries: %+v", routing)
	}
	if routing[0].Details["target"] != "b" {
		t.Fatalf("details lost: %+v", routing[0].Details)
	}
}
