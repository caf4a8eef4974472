package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/planner"
)

// validAdvisedActions is the closed set of actions the LLM (or the
// keyword-scan fallback) may advise.
var validAdvisedActions = map[string]struct{}{
	"ignore":   {},
	"notify":   {},
	"reply":    {},
	"ask_boss": {},
}

// EmailConsultationResponse is the reply payload for an email_consultation
// request.
type EmailConsultationResponse struct {
	AdvisedAction string
	Reasoning     string
}

// EmailConsultationHandler asks the LLM to pick one of a closed set of
// actions for an email an agent is unsure how to handle, with a
// keyword-scan fallback and a final tentative-intent default.
type EmailConsultationHandler struct {
	provider llm.Provider
	audit    Audit

	mu          sync.Mutex
	initialized bool
}

// NewEmailConsultationHandler constructs a handler.
func NewEmailConsultationHandler(provider llm.Provider, audit Audit) *EmailConsultationHandler {
	return &EmailConsultationHandler{provider: provider, audit: audit}
}

func (h *EmailConsultationHandler) ensureInitialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initialized = true
	return h.provider != nil
}

// Handle answers one email_consultation request. question/emailFrom/
// emailSubject describe the email in doubt; tentativeIntent is the asking
// agent's own best guess, used only as the last-resort fallback.
func (h *EmailConsultationHandler) Handle(ctx context.Context, question, emailFrom, emailSubject, tentativeIntent string, confidence float64) EmailConsultationResponse {
	start := time.Now()
	h.audit.Log("email_consultation_request", "privileged", map[string]any{
		"email_from":    emailFrom,
		"email_subject": emailSubject,
	}, true)

	resp := h.consult(ctx, question, emailFrom, emailSubject, tentativeIntent, confidence)

	h.audit.Log("email_consultation_response", "privileged", map[string]any{
		"advised_action": resp.AdvisedAction,
		"duration_ms":    durationMs(start),
	}, true)
	return resp
}

func (h *EmailConsultationHandler) consult(ctx context.Context, question, emailFrom, emailSubject, tentativeIntent string, confidence float64) EmailConsultationResponse {
	if h.ensureInitialized() {
		text, err := h.askLLM(ctx, question, emailFrom, emailSubject, tentativeIntent, confidence)
		if err == nil {
			if parsed := planner.ExtractJSON(text); parsed != nil {
				action, _ := parsed["advised_action"].(string)
				reasoning, _ := parsed["reasoning"].(string)
				if _, ok := validAdvisedActions[action]; ok {
					return EmailConsultationResponse{AdvisedAction: action, Reasoning: reasoning}
				}
			}
			if action := scanForAction(text); action != "" {
				return EmailConsultationResponse{AdvisedAction: action, Reasoning: "extracted from unstructured response"}
			}
		}
	}

	action := tentativeIntent
	if _, ok := validAdvisedActions[action]; !ok {
		action = "notify"
	}
	return EmailConsultationResponse{AdvisedAction: action, Reasoning: "fallback: consultation unavailable"}
}

func (h *EmailConsultationHandler) askLLM(ctx context.Context, question, emailFrom, emailSubject, tentativeIntent string, confidence float64) (string, error) {
	user := fmt.Sprintf(
		"An agent is unsure how to handle an email and wants advice.\nQuestion: %s\nFrom: %s\nSubject: %s\nAgent's tentative intent: %s (confidence %.2f)\n\nChoose exactly one of: ignore, notify, reply, ask_boss. Respond with strict JSON: {\"advised_action\": \"...\", \"reasoning\": \"...\"}.",
		question, emailFrom, emailSubject, tentativeIntent, confidence,
	)
	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: supervisorPersona + " You are the consultation advisor: decisive, brief."},
			{Role: llm.RoleUser, Content: user},
		},
		Complexity: llm.ComplexityLow,
		Priority:   llm.PriorityLow,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Blocked {
		return "", fmt.Errorf("handlers: email consultation blocked or empty")
	}
	return resp.Content, nil
}

// scanForAction keyword-scans free text for one of the four action words,
// used when the LLM's response isn't valid JSON. Returns "" if none found.
func scanForAction(text string) string {
	lower := strings.ToLower(text)
	for _, action := range []string{"ask_boss", "ignore", "notify", "reply"} {
		if strings.Contains(lower, action) {
			return action
		}
	}
	return ""
}
