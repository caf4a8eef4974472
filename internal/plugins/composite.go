package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jensabrahamsson/overblick/internal/agentic"
	"github.com/jensabrahamsson/overblick/internal/models"
)

// Compose builds the plugin an agent actually runs from its configured
// plugin list. One name returns that plugin directly; several are merged
// into a composite so the agent still runs exactly one loop, one store, and
// one tick sequence. Handlers are merged with first-registration-wins on
// conflicts; prompt sections are concatenated; default goals are
// deduplicated by name.
func Compose(names []string, deps Deps) (agentic.Plugin, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("plugins: agent %q has no plugins configured", deps.Identity)
	}

	loaded := make([]named, 0, len(names))
	for _, name := range names {
		p, err := New(name, deps)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, named{name: name, plugin: p})
	}
	if len(loaded) == 1 {
		return loaded[0].plugin, nil
	}
	return &composite{plugins: loaded}, nil
}

type named struct {
	name   string
	plugin agentic.Plugin
}

type composite struct {
	plugins []named
}

type compositeObserver struct {
	observers []struct {
		name string
		obs  agentic.Observer
	}
}

// Observe gathers every member plugin's observation into one map keyed by
// plugin name. Any single observer failing fails the whole observation —
// the tick retries rather than planning on a partial world view.
func (c *compositeObserver) Observe(ctx context.Context) (any, error) {
	out := make(map[string]any, len(c.observers))
	for _, o := range c.observers {
		obs, err := o.obs.Observe(ctx)
		if err != nil {
			return nil, fmt.Errorf("plugins: observer %q: %w", o.name, err)
		}
		out[o.name] = obs
	}
	return out, nil
}

func (c *compositeObserver) FormatForPlanner(raw any) string {
	m, ok := raw.(map[string]any)
	if !ok {
		return "No observation available."
	}
	var b strings.Builder
	for _, o := range c.observers {
		obs, present := m[o.name]
		if !present {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n", o.name, o.obs.FormatForPlanner(obs))
	}
	return b.String()
}

func (c *composite) CreateObserver() agentic.Observer {
	co := &compositeObserver{}
	for _, p := range c.plugins {
		co.observers = append(co.observers, struct {
			name string
			obs  agentic.Observer
		}{name: p.name, obs: p.plugin.CreateObserver()})
	}
	return co
}

func (c *composite) GetActionHandlers() map[string]agentic.ActionHandler {
	merged := make(map[string]agentic.ActionHandler)
	for _, p := range c.plugins {
		for actionType, h := range p.plugin.GetActionHandlers() {
			if _, taken := merged[actionType]; taken {
				slog.Warn("plugins: duplicate action handler, keeping first",
					"action_type", actionType, "plugin", p.name)
				continue
			}
			merged[actionType] = h
		}
	}
	return merged
}

func (c *composite) GetPlanningPromptConfig() agentic.PlanningPromptConfig {
	var roles, listings, rules []string
	valid := make(map[string]struct{})
	acceptAll := false
	for _, p := range c.plugins {
		cfg := p.plugin.GetPlanningPromptConfig()
		if cfg.RolePrompt != "" {
			roles = append(roles, cfg.RolePrompt)
		}
		if cfg.ActionsListing != "" {
			listings = append(listings, cfg.ActionsListing)
		}
		if cfg.SafetyRules != "" {
			rules = append(rules, cfg.SafetyRules)
		}
		// An empty set means the plugin accepts anything, which wins over
		// every other plugin's restriction.
		if len(cfg.ValidActionTypes) == 0 {
			acceptAll = true
		}
		for t := range cfg.ValidActionTypes {
			valid[t] = struct{}{}
		}
	}
	if acceptAll {
		valid = nil
	}
	return agentic.PlanningPromptConfig{
		RolePrompt:       strings.Join(roles, "\n\n"),
		ActionsListing:   strings.Join(listings, "\n"),
		SafetyRules:      strings.Join(rules, "\n"),
		ValidActionTypes: valid,
	}
}

func (c *composite) GetDefaultGoals() []models.AgentGoal {
	seen := make(map[string]struct{})
	var out []models.AgentGoal
	for _, p := range c.plugins {
		for _, g := range p.plugin.GetDefaultGoals() {
			if _, dup := seen[g.Name]; dup {
				continue
			}
			seen[g.Name] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

func (c *composite) GetExtraPlanningContext(ctx context.Context) string {
	var parts []string
	for _, p := range c.plugins {
		if extra := p.plugin.GetExtraPlanningContext(ctx); extra != "" {
			parts = append(parts, extra)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *composite) GetLearningCategories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c.plugins {
		for _, cat := range p.plugin.GetLearningCategories() {
			if _, dup := seen[cat]; dup {
				continue
			}
			seen[cat] = struct{}{}
			out = append(out, cat)
		}
	}
	return out
}

func (c *composite) GetSystemPrompt() string {
	for _, p := range c.plugins {
		if prompt := p.plugin.GetSystemPrompt(); prompt != "" {
			return prompt
		}
	}
	return ""
}
