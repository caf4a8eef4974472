package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jensabrahamsson/overblick/internal/llm"
)

// newResearchHandler wires a handler at a fake Instant Answer endpoint that
// serves answer as its JSON body.
func newResearchHandler(t *testing.T, provider llm.Provider, answer map[string]any) *ResearchHandler {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		json.NewEncoder(w).Encode(answer)
	}))
	t.Cleanup(srv.Close)

	h := NewResearchHandler(provider, nopAudit{})
	h.searchURL = srv.URL
	return h
}

func TestResearchNoResultsFound(t *testing.T) {
	h := newResearchHandler(t, &stubProvider{content: "should never be called"}, map[string]any{})

	resp := h.Handle(context.Background(), "obscure thing", "")
	if resp.Source != "duckduckgo" {
		t.Fatalf("expected source duckduckgo for empty results, got %q", resp.Source)
	}
	if resp.Summary != "No results found for: obscure thing" {
		t.Fatalf("unexpected summary: %q", resp.Summary)
	}
}

func TestResearchLLMSummaryUsesSummarizedSource(t *testing.T) {
	provider := &stubProvider{content: "Go is a statically typed language from Google."}
	h := newResearchHandler(t, provider, map[string]any{
		"Abstract": "Go is a programming language.",
	})

	resp := h.Handle(context.Background(), "golang", "")
	if resp.Source != "duckduckgo_summarized" {
		t.Fatalf("expected source duckduckgo_summarized on the LLM path, got %q", resp.Source)
	}
	if resp.Summary != provider.content {
		t.Fatalf("unexpected summary: %q", resp.Summary)
	}
	// The search results are handed to the LLM as untrusted data.
	user := provider.lastReq.Messages[1].Content
	if !strings.Contains(user, "Go is a programming language.") {
		t.Fatalf("search results missing from summarize prompt:\n%s", user)
	}
}

func TestResearchRawFallbackWhenLLMFails(t *testing.T) {
	h := newResearchHandler(t, &stubProvider{err: errors.New("llm down")}, map[string]any{
		"Abstract": "Raw abstract text.",
		"Answer":   "42",
	})

	resp := h.Handle(context.Background(), "everything", "")
	if resp.Source != "duckduckgo_raw" {
		t.Fatalf("expected source duckduckgo_raw, got %q", resp.Source)
	}
	if !strings.Contains(resp.Summary, "Raw abstract text.") || !strings.Contains(resp.Summary, "42") {
		t.Fatalf("raw fallback lost result text: %q", resp.Summary)
	}
}

func TestResearchNilProviderReturnsRaw(t *testing.T) {
	h := newResearchHandler(t, nil, map[string]any{"Abstract": "Something."})

	resp := h.Handle(context.Background(), "q", "")
	if resp.Source != "duckduckgo_raw" {
		t.Fatalf("expected source duckduckgo_raw without an LLM, got %q", resp.Source)
	}
}

func TestResearchBlockedSummaryFallsBackToRaw(t *testing.T) {
	h := newResearchHandler(t, &stubProvider{blocked: true}, map[string]any{
		"Abstract": "Something.",
	})

	resp := h.Handle(context.Background(), "q", "")
	if resp.Source != "duckduckgo_raw" {
		t.Fatalf("expected blocked summary to fall back to raw, got %q", resp.Source)
	}
}

func TestResearchCapsResultBlock(t *testing.T) {
	h := newResearchHandler(t, nil, map[string]any{
		"Abstract": strings.Repeat("x", researchMaxChars+500),
	})

	resp := h.Handle(context.Background(), "q", "")
	if len(resp.Summary) > researchMaxChars {
		t.Fatalf("result block not capped: %d chars", len(resp.Summary))
	}
}

func TestResearchSearchFailureReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	h := NewResearchHandler(nil, nopAudit{})
	h.searchURL = srv.URL

	resp := h.Handle(context.Background(), "q", "")
	if resp.Error == "" || !strings.Contains(resp.Error, "research failed") {
		t.Fatalf("expected an error response, got %+v", resp)
	}
}
