package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/models"
)

// learningStore is the subset of *store.Store the Reflector needs.
type learningStore interface {
	AddLearning(l models.AgentLearning) (int64, error)
}

// Reflector extracts learnings from one tick's outcomes. Best-effort: every
// failure mode (no LLM, LLM error, parse failure, persistence failure) is
// swallowed, since reflection must never affect the tick's own outcome.
type Reflector struct {
	provider llm.Provider
	store    learningStore
}

// NewReflector constructs a Reflector. provider may be nil, in which case
// Reflect is a no-op.
func NewReflector(provider llm.Provider, store learningStore) *Reflector {
	return &Reflector{provider: provider, store: store}
}

// Reflect is skipped entirely when there are no outcomes or no LLM
// provider. Otherwise it asks the LLM to extract learnings from the tick's
// outcomes and reasoning, persisting each one with non-empty insight text.
func (r *Reflector) Reflect(ctx context.Context, tickNumber int64, reasoning string, outcomes []models.ActionOutcome) {
	if r.provider == nil || len(outcomes) == 0 {
		return
	}

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reflectionSystemPrompt},
			{Role: llm.RoleUser, Content: reflectionUserPrompt(reasoning, outcomes)},
		},
		Complexity:    llm.ComplexityLow,
		Priority:      llm.PriorityLow,
		SkipPreflight: true,
	})
	if err != nil || resp == nil || resp.Blocked || strings.TrimSpace(resp.Content) == "" {
		return
	}

	parsed := ExtractJSON(resp.Content)
	if parsed == nil {
		return
	}
	rawLearnings, _ := parsed["learnings"].([]any)

	for _, rl := range rawLearnings {
		m, ok := rl.(map[string]any)
		if !ok {
			continue
		}
		insight, _ := m["insight"].(string)
		if strings.TrimSpace(insight) == "" {
			continue
		}
		category, _ := m["category"].(string)
		confidence, _ := m["confidence"].(float64)
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}

		_, _ = r.store.AddLearning(models.AgentLearning{
			Category:   category,
			Insight:    insight,
			Confidence: confidence,
			Source:     "reflection",
			SourceTick: tickNumber,
		})
	}
}

const reflectionSystemPrompt = "You are the reflection pass of an autonomous agent. Review the actions just taken and extract any durable learnings worth remembering for future ticks. Respond with strict JSON: {\"learnings\": [{\"category\": \"...\", \"insight\": \"...\", \"confidence\": 0.0}], \"tick_summary\": \"...\"}."

func reflectionUserPrompt(reasoning string, outcomes []models.ActionOutcome) string {
	var b strings.Builder
	b.WriteString("Planning reasoning: ")
	b.WriteString(reasoning)
	b.WriteString("\n\nOutcomes:\n")
	for _, o := range outcomes {
		status := "failed"
		detail := o.Error
		if o.Success {
			status = "succeeded"
			detail = o.Result
		}
		fmt.Fprintf(&b, "- %s %s: %s\n", o.Action.ActionType, status, detail)
	}
	return b.String()
}
