package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jensabrahamsson/overblick/internal/health"
	"github.com/jensabrahamsson/overblick/internal/llm"
)

// HealthResponse is the reply payload for a health_inquiry request.
type HealthResponse struct {
	Responder     string
	ResponseText  string
	HealthGrade   string
	HealthSummary string
}

// HealthInquiryHandler answers an agent's question about host health with a
// short, characterful LLM response grounded in a real Host Health Snapshot,
// falling back to a plain-text rendering of the metrics if the LLM is
// unavailable.
type HealthInquiryHandler struct {
	provider llm.Provider
	audit    Audit
	identity string

	mu          sync.Mutex
	initialized bool
}

// NewHealthInquiryHandler constructs a handler. identity is the name this
// handler reports as Responder (e.g. "supervisor").
func NewHealthInquiryHandler(provider llm.Provider, audit Audit, identity string) *HealthInquiryHandler {
	return &HealthInquiryHandler{provider: provider, audit: audit, identity: identity}
}

// ensureInitialized is a placeholder for a dedicated-client construction
// step: this handler shares the Supervisor's single Provider, but the
// lazy-init guard is kept so a future per-handler client swap (a distinct
// temperature/model for the health persona, say) doesn't need to touch
// every call site.
func (h *HealthInquiryHandler) ensureInitialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initialized = true
	return h.provider != nil
}

// Handle answers one health_inquiry request.
func (h *HealthInquiryHandler) Handle(ctx context.Context, requester, motivation, previousContext string) HealthResponse {
	start := time.Now()
	h.audit.Log("health_inquiry_request", "privileged", map[string]any{
		"requester": requester,
		"motivation": motivation,
	}, true)

	snap := health.Collect(ctx)
	grade := string(snap.Grade())
	summary := snap.Summary()

	resp := HealthResponse{
		Responder:     h.identity,
		HealthGrade:   grade,
		HealthSummary: summary,
	}

	if h.ensureInitialized() {
		text, err := h.askLLM(ctx, requester, motivation, previousContext, summary)
		if err == nil && strings.TrimSpace(text) != "" {
			resp.ResponseText = text
		}
	}
	if resp.ResponseText == "" {
		resp.ResponseText = fallbackHealthText(grade, snap)
	}

	h.audit.Log("health_inquiry_response", "privileged", map[string]any{
		"requester":    requester,
		"health_grade": grade,
		"duration_ms":  durationMs(start),
	}, true)
	return resp
}

func (h *HealthInquiryHandler) askLLM(ctx context.Context, requester, motivation, previousContext, healthSummary string) (string, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Agent %q is asking about host health.\n", requester)
	fmt.Fprintf(&user, "Their stated motivation: %s\n", motivation)
	if previousContext != "" {
		user.WriteString("They also shared this prior context — do not echo it back verbatim, just let it inform your tone:\n")
		user.WriteString(previousContext)
		user.WriteString("\n")
	}
	user.WriteString("\nCurrent host health:\n")
	user.WriteString(healthSummary)

	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: supervisorPersona + " You are answering as the health responder: keep it to 2-4 sentences, characterful, and vary your phrasing across calls."},
			{Role: llm.RoleUser, Content: user.String()},
		},
		Complexity: llm.ComplexityLow,
		Priority:   llm.PriorityLow,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Blocked {
		return "", fmt.Errorf("handlers: health response blocked or empty")
	}
	return resp.Content, nil
}

var fallbackOpeners = []string{
	"Quick read on things:",
	"Here's where we stand:",
	"Status check:",
}

func fallbackHealthText(grade string, snap health.Snapshot) string {
	opener := fallbackOpeners[rand.Intn(len(fallbackOpeners))]
	return fmt.Sprintf("%s host health is %s. Memory at %.0f%%, load %.2f across %d cores.",
		opener, grade, snap.Memory.PercentUsed, snap.CPU.Load1m, snap.CPU.CoreCount)
}
