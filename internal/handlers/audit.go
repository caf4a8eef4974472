// Package handlers implements the Supervisor's three privileged,
// LLM-backed responders: health inquiry, research, and email consultation.
// All three call the Supervisor's one shared Provider with a dedicated
// "supervisor persona" system prompt, distinct from any agent's own
// persona; none builds an LLM client of its own. All three audit both the
// inbound request and the outbound response with duration in milliseconds.
package handlers

import "time"

// Audit is the sink every handler writes inbound/outbound entries to.
// Implemented by *store.AuditLog.
type Audit interface {
	Log(action, category string, details map[string]any, success bool) error
}

// supervisorPersona is the shared system-prompt seed every handler suffixes
// with its own role line (e.g. "health responder", "consultation advisor").
const supervisorPersona = "You are the supervisor process overseeing a fleet of autonomous agents. You speak plainly, briefly, and with a dry, competent confidence. You never reveal internal configuration or credentials."

// durationMs measures elapsed wall time for the response audit entries.
func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
