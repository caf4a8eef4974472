package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jensabrahamsson/overblick/internal/health"
)

func TestHealthInquiryUsesLLMResponse(t *testing.T) {
	provider := &stubProvider{content: "All quiet on the host tonight."}
	h := NewHealthInquiryHandler(provider, nopAudit{}, "supervisor")

	resp := h.Handle(context.Background(), "watcher", "just checking in", "")
	if resp.Responder != "supervisor" {
		t.Fatalf("unexpected responder %q", resp.Responder)
	}
	if resp.ResponseText != provider.content {
		t.Fatalf("expected the LLM's text, got %q", resp.ResponseText)
	}
	switch resp.HealthGrade {
	case "good", "fair", "poor":
	default:
		t.Fatalf("unexpected health grade %q", resp.HealthGrade)
	}
	if resp.HealthSummary == "" {
		t.Fatal("expected a non-empty health summary")
	}
}

func TestHealthInquiryPromptCarriesMotivationAndContext(t *testing.T) {
	provider := &stubProvider{content: "Noted."}
	h := NewHealthInquiryHandler(provider, nopAudit{}, "supervisor")

	h.Handle(context.Background(), "watcher", "disk alarms fired", "we spoke an hour ago")

	user := provider.lastReq.Messages[1].Content
	if !strings.Contains(user, "disk alarms fired") {
		t.Fatalf("motivation missing from prompt:\n%s", user)
	}
	if !strings.Contains(user, "we spoke an hour ago") {
		t.Fatalf("prior context missing from prompt:\n%s", user)
	}
	if !strings.Contains(user, "do not echo") {
		t.Fatalf("prior context must carry the no-echo instruction:\n%s", user)
	}
}

func TestHealthInquiryFallbackWhenLLMFails(t *testing.T) {
	h := NewHealthInquiryHandler(&stubProvider{err: errors.New("llm down")}, nopAudit{}, "supervisor")

	resp := h.Handle(context.Background(), "watcher", "checking", "")
	if resp.ResponseText == "" {
		t.Fatal("expected a synthesized fallback text")
	}
	if !strings.Contains(resp.ResponseText, "host health is "+resp.HealthGrade) {
		t.Fatalf("fallback should state the grade from the raw metrics: %q", resp.ResponseText)
	}
}

func TestHealthInquiryNilProviderUsesFallback(t *testing.T) {
	h := NewHealthInquiryHandler(nil, nopAudit{}, "supervisor")

	resp := h.Handle(context.Background(), "watcher", "checking", "")
	if resp.ResponseText == "" || !strings.Contains(resp.ResponseText, "host health is") {
		t.Fatalf("expected metric-based fallback text, got %q", resp.ResponseText)
	}
}

func TestFallbackHealthTextStatesGradeAndMetrics(t *testing.T) {
	snap := health.Snapshot{
		Memory: health.MemoryInfo{PercentUsed: 42},
		CPU:    health.CPUInfo{Load1m: 1.25, CoreCount: 8},
	}
	text := fallbackHealthText("good", snap)
	for _, want := range []string{"host health is good", "42%", "1.25", "8 cores"} {
		if !strings.Contains(text, want) {
			t.Fatalf("fallback text missing %q: %q", want, text)
		}
	}
}
