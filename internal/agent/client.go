// Package agent holds the child-process side of the runtime: a typed
// client for the Supervisor's IPC catalog, and the Runner that drives an
// agentic Loop on a fixed tick interval until shutdown.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jensabrahamsson/overblick/internal/errs"
	"github.com/jensabrahamsson/overblick/internal/ipc"
)

// defaultTimeout bounds quick request/response calls (status, routing).
// LLM-backed handlers get a longer leash via llmTimeout.
const (
	defaultTimeout = 5 * time.Second
	llmTimeout     = 60 * time.Second
)

// RoutedMessage is the agent-side view of one collected inter-agent
// message.
type RoutedMessage struct {
	MessageID   string
	SourceAgent string
	MessageType string
	Payload     map[string]any
}

// SupervisorClient wraps the IPC client with one method per supervisor
// message type. All network failures surface as nil/zero results plus an
// ok=false flag, never an error the tick loop has to handle — the
// Supervisor being briefly unreachable must not crash an agent.
type SupervisorClient struct {
	identity string
	client   *ipc.Client
}

// Discover reads the Supervisor's token file from socketDir and returns a
// client authenticated with it. The token intentionally never travels via
// environment variables; the file is the discovery artifact.
func Discover(identity, socketDir string) (*SupervisorClient, error) {
	tokenPath := filepath.Join(socketDir, "overblick-supervisor.token")
	raw, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("agent: read supervisor token: %w: %w", err, errs.ErrSecurity)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return nil, fmt.Errorf("agent: supervisor token file is empty: %w", errs.ErrSecurity)
	}

	return &SupervisorClient{
		identity: identity,
		client:   ipc.NewClient("supervisor", socketDir, token),
	}, nil
}

func (c *SupervisorClient) send(msgType string, payload map[string]any, timeout time.Duration) *ipc.Envelope {
	return c.client.Send(ipc.New(msgType, c.identity, payload), timeout)
}

// Status fetches the Supervisor's aggregate status payload.
func (c *SupervisorClient) Status() (map[string]any, bool) {
	reply := c.send("status_request", nil, defaultTimeout)
	if reply == nil {
		return nil, false
	}
	return reply.Payload, true
}

// RequestPermission asks the Supervisor to approve an action on a resource.
func (c *SupervisorClient) RequestPermission(resource, action, reason string) (granted bool, why string, ok bool) {
	reply := c.send("permission_request", map[string]any{
		"resource": resource,
		"action":   action,
		"reason":   reason,
	}, defaultTimeout)
	if reply == nil {
		return false, "", false
	}
	granted, _ = reply.Payload["granted"].(bool)
	why, _ = reply.Payload["reason"].(string)
	return granted, why, true
}

// HealthInquiry asks the Supervisor how the host is doing.
func (c *SupervisorClient) HealthInquiry(motivation, previousContext string) (map[string]any, bool) {
	reply := c.send("health_inquiry", map[string]any{
		"motivation":       motivation,
		"previous_context": previousContext,
	}, llmTimeout)
	if reply == nil {
		return nil, false
	}
	return reply.Payload, true
}

// Research asks the Supervisor to research a query on the agent's behalf.
func (c *SupervisorClient) Research(query, context string) (summary, source string, ok bool) {
	reply := c.send("research_request", map[string]any{
		"query":   query,
		"context": context,
	}, llmTimeout)
	if reply == nil {
		return "", "", false
	}
	if errText, _ := reply.Payload["error"].(string); errText != "" {
		return "", "", false
	}
	summary, _ = reply.Payload["summary"].(string)
	source, _ = reply.Payload["source"].(string)
	return summary, source, true
}

// ConsultEmail asks the Supervisor's advisor how to handle an email.
func (c *SupervisorClient) ConsultEmail(question, from, subject, tentativeIntent string, confidence float64) (action, reasoning string, ok bool) {
	reply := c.send("email_consultation", map[string]any{
		"question":         question,
		"email_from":       from,
		"email_subject":    subject,
		"tentative_intent": tentativeIntent,
		"confidence":       confidence,
	}, llmTimeout)
	if reply == nil {
		return "", "", false
	}
	action, _ = reply.Payload["advised_action"].(string)
	reasoning, _ = reply.Payload["reasoning"].(string)
	return action, reasoning, true
}

// RouteMessage sends a message to another agent through the Supervisor's
// router.
func (c *SupervisorClient) RouteMessage(target, messageType string, data map[string]any, ttlSeconds float64) (messageID, status, errText string, ok bool) {
	payload := map[string]any{
		"target":       target,
		"message_type": messageType,
		"data":         data,
	}
	if ttlSeconds > 0 {
		payload["ttl_seconds"] = ttlSeconds
	}
	reply := c.send("route_message", payload, defaultTimeout)
	if reply == nil {
		return "", "", "", false
	}
	messageID, _ = reply.Payload["message_id"].(string)
	status, _ = reply.Payload["status"].(string)
	errText, _ = reply.Payload["error"].(string)
	return messageID, status, errText, true
}

// CollectMessages drains this agent's pending inter-agent messages.
func (c *SupervisorClient) CollectMessages() ([]RoutedMessage, bool) {
	reply := c.send("collect_messages", nil, defaultTimeout)
	if reply == nil {
		return nil, false
	}
	raw, _ := reply.Payload["messages"].([]any)
	out := make([]RoutedMessage, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		msg := RoutedMessage{}
		msg.MessageID, _ = m["message_id"].(string)
		msg.SourceAgent, _ = m["source_agent"].(string)
		msg.MessageType, _ = m["message_type"].(string)
		msg.Payload, _ = m["payload"].(map[string]any)
		out = append(out, msg)
	}
	return out, true
}
