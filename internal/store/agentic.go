package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jensabrahamsson/overblick/internal/models"
)

// UpsertGoal inserts a new goal or updates the existing one with the same
// name. Goal names are unique within one agent's store.
func (s *Store) UpsertGoal(g models.AgentGoal) (int64, error) {
	metaJSON := "{}"
	if len(g.Metadata) > 0 {
		b, err := json.Marshal(g.Metadata)
		if err != nil {
			return 0, fmt.Errorf("store: marshal goal metadata: %w", err)
		}
		metaJSON = string(b)
	}

	res, err := s.db.Exec(
		`INSERT INTO agent_goals (name, description, priority, status, progress, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   description = excluded.description,
		   priority    = excluded.priority,
		   status      = excluded.status,
		   progress    = excluded.progress,
		   metadata    = excluded.metadata,
		   updated_at  = datetime('now')`,
		g.Name, g.Description, g.Priority, string(g.Status), g.Progress, metaJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert goal %q: %w", g.Name, err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// GetGoals returns all goals with the given status, ordered by priority
// descending (highest priority first).
func (s *Store) GetGoals(status models.GoalStatus) ([]models.AgentGoal, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, priority, status, progress, metadata, created_at, updated_at
		 FROM agent_goals WHERE status = ? ORDER BY priority DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("store: get goals: %w", err)
	}
	defer rows.Close()

	var out []models.AgentGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGoalByName returns a single goal, or (zero-value, sql.ErrNoRows) if
// none exists with that name.
func (s *Store) GetGoalByName(name string) (models.AgentGoal, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, priority, status, progress, metadata, created_at, updated_at
		 FROM agent_goals WHERE name = ?`, name,
	)
	return scanGoal(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (models.AgentGoal, error) {
	var g models.AgentGoal
	var status, metaJSON string
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Priority, &status, &g.Progress, &metaJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return models.AgentGoal{}, fmt.Errorf("store: scan goal: %w", err)
	}
	g.Status = models.GoalStatus(status)
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &g.Metadata) // best-effort, matches overblick's swallow-and-default behavior
	}
	return g, nil
}

// LogAction records one executed action for tickNumber.
func (s *Store) LogAction(tickNumber int64, outcome models.ActionOutcome) (int64, error) {
	success := 0
	if outcome.Success {
		success = 1
	}
	res, err := s.db.Exec(
		`INSERT INTO action_log
		 (tick_number, action_type, target, target_number, repo, priority, reasoning, success, result, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tickNumber, outcome.Action.ActionType, outcome.Action.Target, outcome.Action.TargetNumber,
		outcome.Action.Repo, outcome.Action.Priority, outcome.Action.Reasoning,
		success, outcome.Result, outcome.Error, outcome.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("store: log action: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// RecentActionRow is a lightly-typed projection of one action_log row, used
// to format recent-action history for the planning prompt.
type RecentActionRow struct {
	ActionType string
	Target     string
	Success    bool
	Result     string
	Error      string
	CreatedAt  string
}

// GetRecentActions returns the most recent action_log rows, newest first.
func (s *Store) GetRecentActions(limit int) ([]RecentActionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT action_type, target, success, result, error, created_at
		 FROM action_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get recent actions: %w", err)
	}
	defer rows.Close()

	var out []RecentActionRow
	for rows.Next() {
		var r RecentActionRow
		var success int
		if err := rows.Scan(&r.ActionType, &r.Target, &success, &r.Result, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan recent action: %w", err)
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddLearning records a new learning extracted by the Reflection pipeline.
func (s *Store) AddLearning(l models.AgentLearning) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO agent_learnings (category, insight, confidence, source, source_tick, source_ref)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.Category, l.Insight, l.Confidence, l.Source, l.SourceTick, nullableString(derefOrEmpty(l.SourceRef)),
	)
	if err != nil {
		return 0, fmt.Errorf("store: add learning: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// GetLearnings returns the most recent learnings, newest first.
func (s *Store) GetLearnings(limit int) ([]models.AgentLearning, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, category, insight, confidence, source, source_tick, source_ref, created_at
		 FROM agent_learnings ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get learnings: %w", err)
	}
	defer rows.Close()

	var out []models.AgentLearning
	for rows.Next() {
		var l models.AgentLearning
		var sourceRef sql.NullString
		if err := rows.Scan(&l.ID, &l.Category, &l.Insight, &l.Confidence, &l.Source, &l.SourceTick, &sourceRef, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan learning: %w", err)
		}
		if sourceRef.Valid {
			v := sourceRef.String
			l.SourceRef = &v
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LogTick records one completed tick cycle.
func (s *Store) LogTick(t models.TickLog) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO tick_log
		 (tick_number, started_at, completed_at, observations_count, actions_planned,
		  actions_executed, actions_succeeded, reasoning_summary, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TickNumber, t.StartedAt, t.CompletedAt, t.ObservationsCount, t.ActionsPlanned,
		t.ActionsExecuted, t.ActionsSucceeded, t.ReasoningSummary, t.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("store: log tick: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// GetTickCount returns the total number of recorded ticks — the source of
// truth for the next tick_number, so tick numbers survive a restart.
func (s *Store) GetTickCount() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tick_log").Scan(&count); err != nil {
		return 0, fmt.Errorf("store: get tick count: %w", err)
	}
	return count, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
