// Package heartbeat is the built-in fleet-presence plugin: it watches the
// Supervisor's status and the agent's inter-agent inbox, and can announce
// itself to peers or ask the Supervisor about host health. It exists so a
// fleet runs end-to-end without any external domain plugin installed, and
// doubles as the reference implementation of the plugin contract.
package heartbeat

import (
	"context"
	"fmt"
	"strings"

	"github.com/jensabrahamsson/overblick/internal/agent"
	"github.com/jensabrahamsson/overblick/internal/agentic"
	"github.com/jensabrahamsson/overblick/internal/models"
	"github.com/jensabrahamsson/overblick/internal/plugins"
)

func init() {
	plugins.Register("heartbeat", func(deps plugins.Deps) agentic.Plugin {
		return &Plugin{identity: deps.Identity, supervisor: deps.Supervisor}
	})
}

// Plugin implements agentic.Plugin.
type Plugin struct {
	identity   string
	supervisor *agent.SupervisorClient
}

// observation is what one tick of this plugin sees.
type observation struct {
	SupervisorState string
	RunningAgents   int
	TotalAgents     int
	Inbox           []agent.RoutedMessage
	SupervisorGone  bool
}

type observer struct {
	p *Plugin
}

// Observe polls the Supervisor's status and drains the inbox. An
// unreachable Supervisor is an observation in itself, not an error — the
// loop should keep ticking and let the planner decide what to do about it.
func (o *observer) Observe(ctx context.Context) (any, error) {
	obs := observation{SupervisorGone: true}
	if o.p.supervisor == nil {
		return obs, nil
	}

	if status, ok := o.p.supervisor.Status(); ok {
		obs.SupervisorGone = false
		obs.SupervisorState, _ = status["supervisor_state"].(string)
		if n, ok := status["running_agents"].(float64); ok {
			obs.RunningAgents = int(n)
		}
		if n, ok := status["total_agents"].(float64); ok {
			obs.TotalAgents = int(n)
		}
	}
	if inbox, ok := o.p.supervisor.CollectMessages(); ok {
		obs.Inbox = inbox
	}
	return obs, nil
}

func (o *observer) FormatForPlanner(raw any) string {
	obs, ok := raw.(observation)
	if !ok {
		return "No observation available."
	}
	var b strings.Builder
	if obs.SupervisorGone {
		b.WriteString("Supervisor is unreachable.\n")
	} else {
		fmt.Fprintf(&b, "Supervisor is %s with %d/%d agents running.\n",
			obs.SupervisorState, obs.RunningAgents, obs.TotalAgents)
	}
	if len(obs.Inbox) == 0 {
		b.WriteString("Inbox is empty.\n")
	} else {
		fmt.Fprintf(&b, "Inbox has %d message(s):\n", len(obs.Inbox))
		for _, m := range obs.Inbox {
			fmt.Fprintf(&b, "- %s from %s\n", m.MessageType, m.SourceAgent)
		}
	}
	return b.String()
}

// CreateObserver implements agentic.Plugin.
func (p *Plugin) CreateObserver() agentic.Observer {
	return &observer{p: p}
}

// GetActionHandlers implements agentic.Plugin.
func (p *Plugin) GetActionHandlers() map[string]agentic.ActionHandler {
	return map[string]agentic.ActionHandler{
		"send_heartbeat": agentic.ActionHandlerFunc(p.sendHeartbeat),
		"check_health":   agentic.ActionHandlerFunc(p.checkHealth),
		"no_op": agentic.ActionHandlerFunc(func(ctx context.Context, action models.PlannedAction, _ any) (string, error) {
			return "nothing to do", nil
		}),
	}
}

func (p *Plugin) sendHeartbeat(ctx context.Context, action models.PlannedAction, _ any) (string, error) {
	if p.supervisor == nil {
		return "", fmt.Errorf("no supervisor connection")
	}
	if action.Target == "" {
		return "", fmt.Errorf("send_heartbeat needs a target agent")
	}
	id, status, errText, ok := p.supervisor.RouteMessage(action.Target, "heartbeat", map[string]any{
		"from": p.identity,
	}, 0)
	if !ok {
		return "", fmt.Errorf("supervisor unreachable")
	}
	if errText != "" {
		return "", fmt.Errorf("heartbeat to %s not delivered (%s): %s", action.Target, status, errText)
	}
	return fmt.Sprintf("heartbeat %s queued for %s", id, action.Target), nil
}

func (p *Plugin) checkHealth(ctx context.Context, action models.PlannedAction, _ any) (string, error) {
	if p.supervisor == nil {
		return "", fmt.Errorf("no supervisor connection")
	}
	motivation := action.Reasoning
	if motivation == "" {
		motivation = "periodic health check"
	}
	resp, ok := p.supervisor.HealthInquiry(motivation, "")
	if !ok {
		return "", fmt.Errorf("supervisor unreachable")
	}
	grade, _ := resp["health_grade"].(string)
	text, _ := resp["response_text"].(string)
	return fmt.Sprintf("host health is %s: %s", grade, text), nil
}

// GetPlanningPromptConfig implements agentic.Plugin.
func (p *Plugin) GetPlanningPromptConfig() agentic.PlanningPromptConfig {
	return agentic.PlanningPromptConfig{
		RolePrompt: "You are a fleet-presence agent. You keep an eye on the supervisor, " +
			"acknowledge messages from peer agents, and check host health when something seems off.",
		ActionsListing: strings.Join([]string{
			"- send_heartbeat: announce yourself to a peer agent (target = its identity)",
			"- check_health: ask the supervisor how the host is doing",
			"- no_op: explicitly do nothing this tick",
		}, "\n"),
		SafetyRules: "Never plan more than one check_health per tick. Do not send heartbeats to yourself.",
		ValidActionTypes: map[string]struct{}{
			"send_heartbeat": {},
			"check_health":   {},
			"no_op":          {},
		},
	}
}

// GetDefaultGoals implements agentic.Plugin.
func (p *Plugin) GetDefaultGoals() []models.AgentGoal {
	return []models.AgentGoal{
		{
			Name:        "stay-visible",
			Description: "Respond to peer heartbeats so the fleet knows this agent is alive",
			Priority:    50,
			Status:      models.GoalActive,
		},
		{
			Name:        "watch-host-health",
			Description: "Check host health when the supervisor reports degraded agents",
			Priority:    30,
			Status:      models.GoalActive,
		},
	}
}

// GetExtraPlanningContext implements agentic.Plugin.
func (p *Plugin) GetExtraPlanningContext(ctx context.Context) string { return "" }

// GetLearningCategories implements agentic.Plugin.
func (p *Plugin) GetLearningCategories() []string {
	return []string{"fleet", "host-health"}
}

// GetSystemPrompt implements agentic.Plugin.
func (p *Plugin) GetSystemPrompt() string {
	return "You are a quiet, reliable presence in a fleet of autonomous agents."
}
