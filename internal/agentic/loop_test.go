package agentic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jensabrahamsson/overblick/internal/models"
	"github.com/jensabrahamsson/overblick/internal/planner"
	"github.com/jensabrahamsson/overblick/internal/store"
)

// fakeStore is an in-memory tickStore + goalStore, so loop tests run with
// no database at all.
type fakeStore struct {
	ticks     []models.TickLog
	actions   []models.ActionOutcome
	goals     map[string]models.AgentGoal
	goalOrder []string

	tickCountErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{goals: make(map[string]models.AgentGoal)}
}

func (f *fakeStore) GetTickCount() (int64, error) {
	if f.tickCountErr != nil {
		return 0, f.tickCountErr
	}
	return int64(len(f.ticks)), nil
}

func (f *fakeStore) LogTick(t models.TickLog) (int64, error) {
	f.ticks = append(f.ticks, t)
	return int64(len(f.ticks)), nil
}

func (f *fakeStore) LogAction(tickNumber int64, outcome models.ActionOutcome) (int64, error) {
	f.actions = append(f.actions, outcome)
	return int64(len(f.actions)), nil
}

func (f *fakeStore) GetRecentActions(limit int) ([]store.RecentActionRow, error) {
	return nil, nil
}

func (f *fakeStore) GetLearnings(limit int) ([]models.AgentLearning, error) {
	return nil, nil
}

func (f *fakeStore) GetGoals(status models.GoalStatus) ([]models.AgentGoal, error) {
	var out []models.AgentGoal
	for _, name := range f.goalOrder {
		if f.goals[name].Status == status {
			out = append(out, f.goals[name])
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertGoal(g models.AgentGoal) (int64, error) {
	if _, exists := f.goals[g.Name]; !exists {
		f.goalOrder = append(f.goalOrder, g.Name)
	}
	f.goals[g.Name] = g
	return int64(len(f.goals)), nil
}

// stubPlanner returns a fixed plan.
type stubPlanner struct {
	plan models.ActionPlan
}

func (s *stubPlanner) Plan(ctx context.Context, in planner.Input) models.ActionPlan {
	return s.plan
}

// nopReflector records invocations and does nothing else.
type nopReflector struct {
	calls int
}

func (r *nopReflector) Reflect(ctx context.Context, tickNumber int64, reasoning string, outcomes []models.ActionOutcome) {
	r.calls++
}

// stubObserver yields a fixed observation or error.
type stubObserver struct {
	obs any
	err error
}

func (o *stubObserver) Observe(ctx context.Context) (any, error) { return o.obs, o.err }
func (o *stubObserver) FormatForPlanner(obs any) string          { return "formatted" }

func newTestLoop(fs *fakeStore, obs Observer, pl Planner, handlers map[string]ActionHandler) (*Loop, *nopReflector) {
	refl := &nopReflector{}
	loop := New(Config{
		Identity:  "test-agent",
		Store:     fs,
		Goals:     NewGoalTracker(fs),
		Observer:  obs,
		Executor:  NewExecutor(handlers, 0),
		Planner:   pl,
		Reflector: refl,
	})
	return loop, refl
}

func TestTickWithEmptyPlan(t *testing.T) {
	fs := newFakeStore()
	loop, refl := newTestLoop(fs,
		&stubObserver{obs: map[string]any{"items": []any{"a"}}},
		&stubPlanner{plan: models.ActionPlan{Reasoning: "nothing to do"}},
		nil,
	)

	tick := loop.Tick(context.Background())
	if tick == nil {
		t.Fatal("expected a TickLog")
	}
	if tick.TickNumber != 1 || tick.ActionsPlanned != 0 || tick.ActionsExecuted != 0 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if tick.ObservationsCount != 1 {
		t.Fatalf("expected 1 observation, got %d", tick.ObservationsCount)
	}
	if len(fs.ticks) != 1 {
		t.Fatalf("expected one persisted tick row, got %d", len(fs.ticks))
	}
	if refl.calls != 0 {
		t.Fatal("reflection must be skipped when nothing was executed")
	}
}

func TestTickCatchesHandlerPanic(t *testing.T) {
	fs := newFakeStore()
	handlers := map[string]ActionHandler{
		"crash": ActionHandlerFunc(func(ctx context.Context, a models.PlannedAction, obs any) (string, error) {
			panic("boom")
		}),
	}
	loop, refl := newTestLoop(fs,
		&stubObserver{obs: map[string]any{}},
		&stubPlanner{plan: models.ActionPlan{
			Reasoning: "try it",
			Actions:   []models.PlannedAction{{ActionType: "crash"}},
		}},
		handlers,
	)

	tick := loop.Tick(context.Background())
	if tick == nil {
		t.Fatal("expected a TickLog despite the panic")
	}
	if tick.ActionsExecuted != 1 || tick.ActionsSucceeded != 0 {
		t.Fatalf("unexpected tick counts: %+v", tick)
	}
	if len(fs.actions) != 1 {
		t.Fatalf("expected one action log row, got %d", len(fs.actions))
	}
	if fs.actions[0].Success || !strings.HasPrefix(fs.actions[0].Error, "Unhandled error") {
		t.Fatalf("unexpected outcome: %+v", fs.actions[0])
	}
	if refl.calls != 1 {
		t.Fatal("reflection should run once outcomes exist")
	}
}

func TestTickNumbersAreConsecutive(t *testing.T) {
	fs := newFakeStore()
	loop, _ := newTestLoop(fs,
		&stubObserver{obs: "ok"},
		&stubPlanner{plan: models.ActionPlan{}},
		nil,
	)

	first := loop.Tick(context.Background())
	second := loop.Tick(context.Background())
	if first == nil || second == nil {
		t.Fatal("both ticks should produce logs")
	}
	if first.TickNumber != 1 || second.TickNumber != 2 {
		t.Fatalf("expected consecutive tick numbers 1,2 — got %d,%d", first.TickNumber, second.TickNumber)
	}
}

func TestObserverFailureProducesNoTickLogAndNoIncrement(t *testing.T) {
	fs := newFakeStore()
	failing := &stubObserver{err: errors.New("world on fire")}
	loop, _ := newTestLoop(fs, failing, &stubPlanner{plan: models.ActionPlan{}}, nil)

	if tick := loop.Tick(context.Background()); tick != nil {
		t.Fatalf("expected nil tick on observer failure, got %+v", tick)
	}
	if len(fs.ticks) != 0 {
		t.Fatal("no TickLog must be persisted on observer failure")
	}

	failing.err = nil
	failing.obs = "recovered"
	tick := loop.Tick(context.Background())
	if tick == nil || tick.TickNumber != 1 {
		t.Fatalf("next successful tick should reuse tick number 1, got %+v", tick)
	}
}

func TestCountObservation(t *testing.T) {
	tests := []struct {
		name string
		obs  any
		want int
	}{
		{"nil", nil, 0},
		{"scalar", "hello", 1},
		{"slice", []any{"a", "b", "c"}, 3},
		{"map of scalars", map[string]any{"a": 1, "b": 2}, 2},
		{"map with nested list and scalar", map[string]any{"items": []any{"x", "y"}, "flag": true}, 3},
		{"map with nested map", map[string]any{"inner": map[string]any{"a": 1, "b": 2, "c": 3}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countObservation(tt.obs); got != tt.want {
				t.Fatalf("countObservation(%v) = %d, want %d", tt.obs, got, tt.want)
			}
		})
	}
}
