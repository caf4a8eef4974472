package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/jensabrahamsson/overblick/internal/models"
	"github.com/jensabrahamsson/overblick/internal/planner"
	"github.com/jensabrahamsson/overblick/internal/store"
)

// tickStore is the subset of *store.Store the Loop needs directly (goal and
// learning persistence go through GoalTracker/Reflector instead).
type tickStore interface {
	GetTickCount() (int64, error)
	LogTick(t models.TickLog) (int64, error)
	LogAction(tickNumber int64, outcome models.ActionOutcome) (int64, error)
	GetRecentActions(limit int) ([]store.RecentActionRow, error)
	GetLearnings(limit int) ([]models.AgentLearning, error)
}

// Planner is the subset of planner.Planner's surface the Loop depends on,
// kept as an interface so tests can substitute a stub (per spec scenarios
// S5/S6).
type Planner interface {
	Plan(ctx context.Context, in planner.Input) models.ActionPlan
}

// Reflector is the subset of planner.Reflector's surface the Loop depends
// on.
type Reflector interface {
	Reflect(ctx context.Context, tickNumber int64, reasoning string, outcomes []models.ActionOutcome)
}

const recentActionsWindow = 10
const recentLearningsWindow = 10

// Loop runs one OBSERVE/THINK/PLAN/ACT/REFLECT cycle per Tick call.
type Loop struct {
	identity string
	store    tickStore
	goals    *GoalTracker
	observer Observer
	executor *Executor
	planner  Planner
	reflect  Reflector
	plugin   Plugin
}

// Config bundles everything New needs to assemble a Loop.
type Config struct {
	Identity  string
	Store     tickStore
	Goals     *GoalTracker
	Observer  Observer
	Executor  *Executor
	Planner   Planner
	Reflector Reflector
	Plugin    Plugin
}

// New assembles a Loop from cfg.
func New(cfg Config) *Loop {
	return &Loop{
		identity: cfg.Identity,
		store:    cfg.Store,
		goals:    cfg.Goals,
		observer: cfg.Observer,
		executor: cfg.Executor,
		planner:  cfg.Planner,
		reflect:  cfg.Reflector,
		plugin:   cfg.Plugin,
	}
}

// Tick runs exactly one cycle. It returns nil when the persisted tick count
// cannot be read or when OBSERVE fails — the cases that produce no TickLog
// and leave the persisted tick count untouched, so the next call retries
// the same tick_number.
func (l *Loop) Tick(ctx context.Context) *models.TickLog {
	start := time.Now()
	startedAt := models.Now()

	priorCount, err := l.store.GetTickCount()
	if err != nil {
		slog.Error("agentic: load tick count failed", "identity", l.identity, "err", err)
		return nil
	}
	tickNumber := priorCount + 1

	obs, err := l.observer.Observe(ctx)
	if err != nil {
		slog.Error("agentic: observe failed", "identity", l.identity, "tick", tickNumber, "err", err)
		return nil
	}

	observationText := l.observer.FormatForPlanner(obs)
	observationsCount := countObservation(obs)

	activeGoals, err := l.goals.ActiveGoals()
	if err != nil {
		slog.Error("agentic: load active goals failed", "identity", l.identity, "err", err)
		activeGoals = nil
	}
	goalsText := FormatForPlanner(activeGoals)

	recentText := l.formatRecentActions()
	learningsText := l.formatLearnings()

	var extraContext string
	if l.plugin != nil {
		extraContext = l.plugin.GetExtraPlanningContext(ctx)
	}

	plan := l.planner.Plan(ctx, planner.Input{
		Observation:   observationText,
		Goals:         goalsText,
		RecentActions: recentText,
		Learnings:     learningsText,
		ExtraContext:  extraContext,
		MaxActions:    DefaultMaxActionsPerTick,
	})

	if len(plan.Actions) == 0 {
		tick := models.TickLog{
			TickNumber:        tickNumber,
			StartedAt:         startedAt,
			CompletedAt:       models.Now(),
			ObservationsCount: observationsCount,
			ActionsPlanned:    0,
			ActionsExecuted:   0,
			ActionsSucceeded:  0,
			ReasoningSummary:  models.TruncateReasoning(plan.Reasoning),
			DurationMs:        msSince(start),
		}
		l.persistTick(tick)
		return &tick
	}

	outcomes := l.executor.Execute(ctx, plan.Actions, obs)

	succeeded := 0
	for _, o := range outcomes {
		if _, err := l.store.LogAction(tickNumber, o); err != nil {
			slog.Error("agentic: log action failed", "identity", l.identity, "tick", tickNumber, "err", err)
		}
		if o.Success {
			succeeded++
		}
	}

	l.reflect.Reflect(ctx, tickNumber, plan.Reasoning, outcomes)

	tick := models.TickLog{
		TickNumber:        tickNumber,
		StartedAt:         startedAt,
		CompletedAt:       models.Now(),
		ObservationsCount: observationsCount,
		ActionsPlanned:    len(plan.Actions),
		ActionsExecuted:   len(outcomes),
		ActionsSucceeded:  succeeded,
		ReasoningSummary:  models.TruncateReasoning(plan.Reasoning),
		DurationMs:        msSince(start),
	}
	l.persistTick(tick)
	return &tick
}

func (l *Loop) persistTick(tick models.TickLog) {
	if _, err := l.store.LogTick(tick); err != nil {
		slog.Error("agentic: log tick failed", "identity", l.identity, "tick", tick.TickNumber, "err", err)
	}
}

func (l *Loop) formatRecentActions() string {
	rows, err := l.store.GetRecentActions(recentActionsWindow)
	if err != nil || len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range rows {
		status := "failed"
		if r.Success {
			status = "ok"
		}
		fmt.Fprintf(&b, "- [%s] %s -> %s\n", status, r.ActionType, r.Target)
	}
	return b.String()
}

func (l *Loop) formatLearnings() string {
	learnings, err := l.store.GetLearnings(recentLearningsWindow)
	if err != nil || len(learnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, lr := range learnings {
		fmt.Fprintf(&b, "- (%s, %.0f%% confidence) %s\n", lr.Category, lr.Confidence*100, lr.Insight)
	}
	return b.String()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// countObservation sizes an opaque observation for
// planner/reporting purposes: a map counts as the sum of its values' own
// counts (a nested list/map counts its length, anything else counts 1); a
// sequence counts by its length; nil counts as 0; any other value counts
// as 1.
func countObservation(obs any) int {
	if obs == nil {
		return 0
	}
	v := reflect.ValueOf(obs)
	switch v.Kind() {
	case reflect.Map:
		total := 0
		for _, key := range v.MapKeys() {
			total += elementCount(v.MapIndex(key))
		}
		return total
	case reflect.Slice, reflect.Array:
		return v.Len()
	default:
		return 1
	}
}

func elementCount(v reflect.Value) int {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len()
	default:
		return 1
	}
}
