package store

import (
	"encoding/json"
	"fmt"
)

// AuditLog is the append-only security/routing event sink. It wraps the same
// SQLite connection as the agentic tables but is conceptually independent:
// the Supervisor writes to it for permission decisions and privileged
// handler invocations, and the Router writes to it for every routing
// decision via the router.Audit interface.
type AuditLog struct {
	s *Store
}

// NewAuditLog wraps s for audit writes/queries.
func NewAuditLog(s *Store) *AuditLog {
	return &AuditLog{s: s}
}

// Log records one audit event. It implements router.Audit, and is also
// called directly by the Supervisor for permission_request decisions and
// privileged handler invocations. category defaults to "general" when
// empty, matching the audit_log table's column default.
func (a *AuditLog) Log(action, category string, details map[string]any, success bool) error {
	return a.LogDetailed(action, category, "", "", details, success, 0, "")
}

// LogDetailed records an audit event with identity/plugin attribution and
// timing, as used by the privileged-handler call sites.
func (a *AuditLog) LogDetailed(action, category, identity, plugin string, details map[string]any, success bool, durationMs float64, errMsg string) error {
	if category == "" {
		category = "general"
	}
	detailsJSON := "{}"
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("store: marshal audit details: %w", err)
		}
		detailsJSON = string(b)
	}
	successInt := 0
	if success {
		successInt = 1
	}

	_, err := a.s.db.Exec(
		`INSERT INTO audit_log
		 (timestamp, action, category, identity, plugin, details_json, success, duration_ms, error)
		 VALUES (strftime('%s','now'), ?, ?, ?, ?, ?, ?, ?, ?)`,
		action, category, identity, plugin, detailsJSON, successInt, durationMs, errMsg,
	)
	if err != nil {
		return fmt.Errorf("store: write audit log: %w", err)
	}
	return nil
}

// AuditEntry is a single queried audit_log row.
type AuditEntry struct {
	ID         int64
	Timestamp  float64
	Action     string
	Category   string
	Identity   string
	Plugin     string
	Details    map[string]any
	Success    bool
	DurationMs float64
	Error      string
}

// Query returns the most recent audit entries, optionally filtered by
// category (pass "" for all categories), newest first, capped at limit.
func (a *AuditLog) Query(category string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows = func() (queryRows, error) {
		if category == "" {
			return a.s.db.Query(
				`SELECT id, timestamp, action, category, identity, plugin, details_json, success, duration_ms, error
				 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
			)
		}
		return a.s.db.Query(
			`SELECT id, timestamp, action, category, identity, plugin, details_json, success, duration_ms, error
			 FROM audit_log WHERE category = ? ORDER BY id DESC LIMIT ?`, category, limit,
		)
	}
	rs, err := rows()
	if err != nil {
		return nil, fmt.Errorf("store: query audit log: %w", err)
	}
	defer rs.Close()

	var out []AuditEntry
	for rs.Next() {
		var e AuditEntry
		var detailsJSON string
		var successInt int
		if err := rs.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Category, &e.Identity, &e.Plugin, &detailsJSON, &successInt, &e.DurationMs, &e.Error); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Success = successInt != 0
		if detailsJSON != "" {
			_ = json.Unmarshal([]byte(detailsJSON), &e.Details)
		}
		out = append(out, e)
	}
	return out, rs.Err()
}

// queryRows is the subset of *sql.Rows used here, so Query's closure can
// return either prepared statement's result without repeating the scan loop.
type queryRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
