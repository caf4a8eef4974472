package supervisor

import (
	"context"
	"time"

	"github.com/jensabrahamsson/overblick/common/redact"
	"github.com/jensabrahamsson/overblick/common/trace"
	"github.com/jensabrahamsson/overblick/internal/ipc"
	"github.com/jensabrahamsson/overblick/internal/observability"
	"github.com/jensabrahamsson/overblick/internal/router"
)

// installHandlers registers the Supervisor's full message-type catalog on
// the IPC server. Each handler builds its reply envelope with the request's
// RequestID echoed back for correlation.
func (s *Supervisor) installHandlers() {
	s.server.On("status_request", s.handleStatusRequest)
	s.server.On("permission_request", s.handlePermissionRequest)
	s.server.On("health_inquiry", s.handleHealthInquiry)
	s.server.On("research_request", s.handleResearchRequest)
	s.server.On("email_consultation", s.handleEmailConsultation)
	s.server.On("route_message", s.handleRouteMessage)
	s.server.On("collect_messages", s.handleCollectMessages)
	s.server.On("shutdown", s.handleShutdown)
}

func (s *Supervisor) reply(req ipc.Envelope, msgType string, payload map[string]any) *ipc.Envelope {
	out := ipc.New(msgType, SocketName, payload)
	out.RequestID = req.RequestID
	return &out
}

func (s *Supervisor) handleStatusRequest(req ipc.Envelope) (*ipc.Envelope, error) {
	return s.reply(req, "status_response", s.Status()), nil
}

// handlePermissionRequest is Stage 1 policy: every request is auto-approved
// and audited. The handler exists so later stages can impose real policy
// without changing callers.
func (s *Supervisor) handlePermissionRequest(req ipc.Envelope) (*ipc.Envelope, error) {
	// Agents put free text in these fields; scrub anything that looks like
	// a credential before it lands in the audit store.
	s.audit.LogDetailed("permission_granted", "security", req.Sender, "", redact.Map(map[string]any{
		"resource": stringField(req.Payload, "resource"),
		"action":   stringField(req.Payload, "action"),
		"reason":   stringField(req.Payload, "reason"),
	}), true, 0, "")

	return s.reply(req, "permission_response", map[string]any{
		"granted": true,
		"reason":  "auto-approved",
	}), nil
}

// privilegedCtx stamps a fresh trace ID onto the supervisor context so the
// handler's log lines and sub-operations correlate per request.
func (s *Supervisor) privilegedCtx(req ipc.Envelope) context.Context {
	ctx := trace.WithTraceID(s.ctx, trace.GenerateID())
	observability.WithTrace(ctx).Debug("privileged request", "type", req.Type, "sender", req.Sender)
	return ctx
}

func (s *Supervisor) handleHealthInquiry(req ipc.Envelope) (*ipc.Envelope, error) {
	resp := s.health.Handle(s.privilegedCtx(req),
		req.Sender,
		stringField(req.Payload, "motivation"),
		stringField(req.Payload, "previous_context"),
	)
	return s.reply(req, "health_response", map[string]any{
		"responder":      resp.Responder,
		"response_text":  resp.ResponseText,
		"health_grade":   resp.HealthGrade,
		"health_summary": resp.HealthSummary,
	}), nil
}

func (s *Supervisor) handleResearchRequest(req ipc.Envelope) (*ipc.Envelope, error) {
	resp := s.research.Handle(s.privilegedCtx(req),
		stringField(req.Payload, "query"),
		stringField(req.Payload, "context"),
	)
	if resp.Error != "" {
		return s.reply(req, "research_response", map[string]any{"error": resp.Error}), nil
	}
	return s.reply(req, "research_response", map[string]any{
		"summary": resp.Summary,
		"source":  resp.Source,
	}), nil
}

func (s *Supervisor) handleEmailConsultation(req ipc.Envelope) (*ipc.Envelope, error) {
	confidence, _ := req.Payload["confidence"].(float64)
	resp := s.email.Handle(s.privilegedCtx(req),
		stringField(req.Payload, "question"),
		stringField(req.Payload, "email_from"),
		stringField(req.Payload, "email_subject"),
		stringField(req.Payload, "tentative_intent"),
		confidence,
	)
	return s.reply(req, "email_consultation_response", map[string]any{
		"advised_action": resp.AdvisedAction,
		"reasoning":      resp.Reasoning,
	}), nil
}

func (s *Supervisor) handleRouteMessage(req ipc.Envelope) (*ipc.Envelope, error) {
	target := stringField(req.Payload, "target")
	messageType := stringField(req.Payload, "message_type")
	if target == "" || messageType == "" {
		return s.reply(req, "route_response", map[string]any{
			"success": false,
			"error":   "payload must contain target and message_type",
		}), nil
	}

	data, _ := req.Payload["data"].(map[string]any)
	ttl, _ := req.Payload["ttl_seconds"].(float64)

	msg := s.router.Route(req.Sender, target, messageType, data, ttl)
	payload := map[string]any{
		"success":    msg.Status == router.StatusPending,
		"message_id": msg.MessageID,
		"status":     string(msg.Status),
	}
	if msg.Error != "" {
		payload["error"] = msg.Error
	}
	return s.reply(req, "route_response", payload), nil
}

func (s *Supervisor) handleCollectMessages(req ipc.Envelope) (*ipc.Envelope, error) {
	collected := s.router.Collect(req.Sender)
	messages := make([]any, 0, len(collected))
	for _, m := range collected {
		messages = append(messages, m.ToMap())
	}
	return s.reply(req, "collect_response", map[string]any{
		"messages": messages,
		"count":    len(messages),
	}), nil
}

func (s *Supervisor) handleShutdown(req ipc.Envelope) (*ipc.Envelope, error) {
	s.audit.LogDetailed("shutdown_requested", "lifecycle", req.Sender, "", nil, true, 0, "")
	s.SignalShutdown()
	return s.reply(req, "ack", map[string]any{
		"acknowledged_at": time.Now().UTC().Format(time.RFC3339),
	}), nil
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}
