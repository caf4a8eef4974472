package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/models"
)

// defaultMaxActions mirrors agentic.DefaultMaxActionsPerTick. Duplicated as
// a constant (rather than imported) so this package never depends on
// internal/agentic — internal/agentic depends on this package for planning,
// and Go doesn't allow the reverse.
const defaultMaxActions = 5

// planSchemaText is the strict JSON Schema an LLM-returned plan must
// satisfy before the hand-written field-coercion pass below runs — a
// second, schema-driven line of defense ahead of the manual validation.
const planSchemaText = `{
	"type": "object",
	"required": ["reasoning", "actions"],
	"properties": {
		"reasoning": {"type": "string"},
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["action_type"],
				"properties": {
					"action_type": {"type": "string"},
					"target": {"type": ["string", "null"]},
					"target_number": {"type": ["number", "null"]},
					"repo": {"type": ["string", "null"]},
					"priority": {"type": ["number", "null"]},
					"reasoning": {"type": ["string", "null"]}
				}
			}
		}
	}
}`

var planSchema *jsonschema.Schema

func init() {
	s, err := jsonschema.CompileString("overblick://plan.schema.json", planSchemaText)
	if err != nil {
		panic(fmt.Sprintf("planner: compile plan schema: %v", err))
	}
	planSchema = s
}

// PromptConfig supplies the plugin-specific parts of the planning system
// prompt: its role description, the listing of actions it can plan, and
// (optionally) the set of action_types the Planner will accept — anything
// outside ValidActionTypes is dropped silently during validation. An empty
// ValidActionTypes means accept-all. Mirrors agentic.PlanningPromptConfig;
// wiring code that holds a Plugin copies its fields into one of these.
type PromptConfig struct {
	RolePrompt       string
	ActionsListing   string
	SafetyRules      string
	ValidActionTypes map[string]struct{}
}

// Input is everything the Planner needs for one tick's plan.
type Input struct {
	Observation   string
	Goals         string
	RecentActions string
	Learnings     string
	ExtraContext  string
	MaxActions    int
}

// Planner builds the planning prompt, calls the LLM, and validates and
// sorts the returned plan.
type Planner struct {
	provider llm.Provider
	config   PromptConfig
}

// New constructs a Planner. provider may be nil, in which case Plan always
// returns an empty plan (mirroring LLM-unavailable behavior).
func New(provider llm.Provider, config PromptConfig) *Planner {
	return &Planner{provider: provider, config: config}
}

// Plan calls the LLM and returns a validated, sorted ActionPlan. Any LLM
// failure, empty response, or blocked response yields an empty plan rather
// than an error — planning failures must never abort a tick.
func (p *Planner) Plan(ctx context.Context, in Input) models.ActionPlan {
	if p.provider == nil {
		return models.ActionPlan{Reasoning: "no LLM provider configured", Actions: nil}
	}
	if in.MaxActions <= 0 {
		in.MaxActions = defaultMaxActions
	}

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.systemPrompt(in.MaxActions)},
			{Role: llm.RoleUser, Content: p.userPrompt(in)},
		},
		Complexity:    llm.ComplexityHigh,
		Priority:      llm.PriorityLow,
		SkipPreflight: true,
	})
	if err != nil || resp == nil || resp.Blocked || strings.TrimSpace(resp.Content) == "" {
		return models.ActionPlan{}
	}

	parsed := ExtractJSON(resp.Content)
	if parsed == nil {
		return models.ActionPlan{}
	}
	if err := ValidateSchema(parsed); err != nil {
		return models.ActionPlan{}
	}

	reasoning, _ := parsed["reasoning"].(string)
	rawActions, _ := parsed["actions"].([]any)

	actions := make([]models.PlannedAction, 0, len(rawActions))
	for _, ra := range rawActions {
		m, ok := ra.(map[string]any)
		if !ok {
			continue
		}
		actionType, _ := m["action_type"].(string)
		if actionType == "" {
			continue
		}
		if len(p.config.ValidActionTypes) > 0 {
			if _, valid := p.config.ValidActionTypes[actionType]; !valid {
				continue
			}
		}
		actions = append(actions, models.PlannedAction{
			ActionType:   actionType,
			Target:       stringOr(m["target"], ""),
			TargetNumber: intOr(m["target_number"], 0),
			Repo:         stringOr(m["repo"], ""),
			Priority:     intOr(m["priority"], 50),
			Reasoning:    stringOr(m["reasoning"], ""),
		})
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Priority > actions[j].Priority })
	if len(actions) > in.MaxActions {
		actions = actions[:in.MaxActions]
	}

	return models.ActionPlan{Reasoning: reasoning, Actions: actions}
}

func (p *Planner) systemPrompt(maxActions int) string {
	var b strings.Builder
	b.WriteString(p.config.RolePrompt)
	b.WriteString("\n\n")
	b.WriteString("Available actions:\n")
	b.WriteString(p.config.ActionsListing)
	b.WriteString("\n\n")
	if p.config.SafetyRules != "" {
		b.WriteString("Safety rules:\n")
		b.WriteString(p.config.SafetyRules)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Plan at most %d actions, ordered by priority (highest first).\n\n", maxActions)
	b.WriteString("Respond with strict JSON matching this shape:\n")
	b.WriteString(`{"reasoning": "...", "actions": [{"action_type": "...", "target": "...", "target_number": 0, "repo": "...", "priority": 50, "reasoning": "..."}]}`)
	return b.String()
}

func (p *Planner) userPrompt(in Input) string {
	var b strings.Builder
	if in.ExtraContext != "" {
		b.WriteString("PRIORITY CONTEXT:\n")
		b.WriteString(in.ExtraContext)
		b.WriteString("\n\n")
	}
	b.WriteString("CURRENT STATE:\n")
	b.WriteString(in.Observation)
	b.WriteString("\n\n")
	b.WriteString("ACTIVE GOALS:\n")
	b.WriteString(in.Goals)
	b.WriteString("\n\n")
	if in.RecentActions != "" {
		b.WriteString("RECENT ACTIONS:\n")
		b.WriteString(in.RecentActions)
		b.WriteString("\n\n")
	}
	if in.Learnings != "" {
		b.WriteString("LEARNINGS:\n")
		b.WriteString(in.Learnings)
		b.WriteString("\n\n")
	}
	b.WriteString("Plan your actions now.")
	return b.String()
}

// ValidateSchema runs parsed against the compiled plan schema, returning a
// descriptive error on mismatch. Called ahead of the hand-written
// field-coercion pass in Plan as an early, strict rejection of malformed
// shapes the coercion pass would otherwise silently default around.
func ValidateSchema(parsed map[string]any) error {
	if err := planSchema.Validate(parsed); err != nil {
		return fmt.Errorf("planner: schema validation: %w", err)
	}
	return nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
