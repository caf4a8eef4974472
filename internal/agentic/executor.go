package agentic

import (
	"context"
	"fmt"
	"time"

	"github.com/jensabrahamsson/overblick/internal/models"
)

// DefaultMaxActionsPerTick caps how many planned actions one tick dispatches
// when the embedder hasn't overridden it.
const DefaultMaxActionsPerTick = 5

// Executor dispatches PlannedActions to registered ActionHandlers by
// action_type, capped per tick, converting every failure mode (unknown
// type, handler error, handler panic) into a failed ActionOutcome rather
// than aborting the tick.
type Executor struct {
	handlers          map[string]ActionHandler
	maxActionsPerTick int
}

// NewExecutor builds an Executor over handlers. maxActionsPerTick<=0
// defaults to DefaultMaxActionsPerTick.
func NewExecutor(handlers map[string]ActionHandler, maxActionsPerTick int) *Executor {
	if maxActionsPerTick <= 0 {
		maxActionsPerTick = DefaultMaxActionsPerTick
	}
	return &Executor{handlers: handlers, maxActionsPerTick: maxActionsPerTick}
}

// Execute dispatches up to e.maxActionsPerTick of the plan's actions in
// order, against observation, returning one ActionOutcome per dispatched
// action.
func (e *Executor) Execute(ctx context.Context, actions []models.PlannedAction, observation any) []models.ActionOutcome {
	n := len(actions)
	if n > e.maxActionsPerTick {
		n = e.maxActionsPerTick
	}

	outcomes := make([]models.ActionOutcome, 0, n)
	for _, action := range actions[:n] {
		outcomes = append(outcomes, e.dispatch(ctx, action, observation))
	}
	return outcomes
}

func (e *Executor) dispatch(ctx context.Context, action models.PlannedAction, observation any) (outcome models.ActionOutcome) {
	outcome.Action = action

	handler, ok := e.handlers[action.ActionType]
	if !ok {
		outcome.Success = false
		outcome.Error = fmt.Sprintf("No handler registered for action type: %s", action.ActionType)
		return outcome
	}

	start := time.Now()
	defer func() {
		outcome.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
		if r := recover(); r != nil {
			outcome.Success = false
			outcome.Result = ""
			outcome.Error = fmt.Sprintf("Unhandled error: %v", r)
		}
	}()

	result, err := handler.Handle(ctx, action, observation)
	if err != nil {
		outcome.Success = false
		outcome.Error = fmt.Sprintf("Unhandled error: %s", err.Error())
		return outcome
	}

	outcome.Success = true
	outcome.Result = result
	return outcome
}
