package agentic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jensabrahamsson/overblick/internal/models"
)

func TestExecuteCapsAtMaxActionsPerTick(t *testing.T) {
	calls := 0
	e := NewExecutor(map[string]ActionHandler{
		"a": ActionHandlerFunc(func(ctx context.Context, _ models.PlannedAction, _ any) (string, error) {
			calls++
			return "done", nil
		}),
	}, 2)

	actions := []models.PlannedAction{
		{ActionType: "a"}, {ActionType: "a"}, {ActionType: "a"},
	}
	outcomes := e.Execute(context.Background(), actions, nil)
	if len(outcomes) != 2 || calls != 2 {
		t.Fatalf("expected exactly 2 dispatches, got %d outcomes and %d calls", len(outcomes), calls)
	}
}

func TestExecuteUnknownActionType(t *testing.T) {
	e := NewExecutor(nil, 0)
	outcomes := e.Execute(context.Background(), []models.PlannedAction{{ActionType: "mystery"}}, nil)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Success || !strings.Contains(o.Error, "No handler registered for action type: mystery") {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestExecuteWrapsHandlerError(t *testing.T) {
	e := NewExecutor(map[string]ActionHandler{
		"fail": ActionHandlerFunc(func(ctx context.Context, _ models.PlannedAction, _ any) (string, error) {
			return "", errors.New("disk exploded")
		}),
	}, 0)

	outcomes := e.Execute(context.Background(), []models.PlannedAction{{ActionType: "fail"}}, nil)
	o := outcomes[0]
	if o.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(o.Error, "Unhandled error: ") || !strings.Contains(o.Error, "disk exploded") {
		t.Fatalf("unexpected error text: %q", o.Error)
	}
}

func TestExecuteRecordsSuccessAndDuration(t *testing.T) {
	e := NewExecutor(map[string]ActionHandler{
		"ok": ActionHandlerFunc(func(ctx context.Context, _ models.PlannedAction, _ any) (string, error) {
			return "all good", nil
		}),
	}, 0)

	outcomes := e.Execute(context.Background(), []models.PlannedAction{{ActionType: "ok"}}, nil)
	o := outcomes[0]
	if !o.Success || o.Result != "all good" || o.Error != "" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if o.DurationMs < 0 {
		t.Fatalf("duration must be non-negative, got %v", o.DurationMs)
	}
}
