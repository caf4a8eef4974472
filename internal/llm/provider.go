// Package llm defines the interface the planner, reflection pipeline, and
// privileged handlers use to call into a large language model. Concrete
// clients (HTTP to a local model server, a hosted API, etc.) are supplied
// by the embedder — this package specifies the shape of the call (a
// message-in, text-out completion with a complexity/priority hint and a
// way to signal blocked output) and ships one OpenAI-compatible default.
package llm

import "context"

// Role is the role of one chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single turn in a chat-style completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Complexity hints the provider at how much reasoning effort the call
// warrants: planning runs high, reflection and handler calls run low.
type Complexity string

const (
	ComplexityHigh Complexity = "high"
	ComplexityLow  Complexity = "low"
)

// Priority hints the provider's scheduler. The agentic core always uses
// PriorityLow: agent ticks are background work, never latency-critical.
type Priority string

const (
	PriorityLow Priority = "low"
)

// CompletionRequest is one call to the LLM.
type CompletionRequest struct {
	Messages []Message

	// Complexity and Priority are scheduling hints; a Provider is free to
	// ignore them entirely.
	Complexity Complexity
	Priority   Priority

	// SkipPreflight signals that the caller is trusted internal code (the
	// planner, reflection, and privileged handlers all set this) and the
	// provider's own safety pipeline, if any, may skip input-side checks
	// it would otherwise run for agent-originated content.
	SkipPreflight bool
}

// CompletionResponse is the provider's answer to one CompletionRequest.
type CompletionResponse struct {
	Content string

	// Blocked reports whether the provider's own output-safety pipeline
	// suppressed the content; Content is empty when Blocked is true.
	Blocked bool
	// BlockReason is a short human-readable explanation, set only when
	// Blocked is true.
	BlockReason string
}

// Provider is the interface every LLM backend must implement. nil is a
// valid Provider reference throughout this codebase: the planner, the
// reflection pipeline, and every privileged handler treat a nil Provider
// as "no LLM available" and degrade to their documented fallback behavior
// rather than erroring.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
