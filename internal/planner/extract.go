// Package planner builds planning and reflection prompts, calls the LLM,
// and turns its text response back into structured data: an ActionPlan or
// a set of extracted learnings. The three-step JSON extraction algorithm is
// shared across the planner, the reflection pipeline, and the email
// consultation handler — the one escape hatch an LLM that doesn't reliably
// emit raw JSON needs.
package planner

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractJSON attempts to parse a JSON object out of arbitrary LLM output
// text, trying three strategies in order and returning the first success:
//  1. Parse the whole payload directly.
//  2. Scan for a fenced ```json or plain ``` code block and parse its
//     contents.
//  3. Take the substring from the first '{' to the last '}' and parse that.
//
// Returns nil if none of the three strategies produces valid JSON.
func ExtractJSON(text string) map[string]any {
	if v, ok := tryParseObject(text); ok {
		return v
	}

	if m := fencedJSONRE.FindStringSubmatch(text); m != nil {
		if v, ok := tryParseObject(strings.TrimSpace(m[1])); ok {
			return v
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if v, ok := tryParseObject(text[start : end+1]); ok {
			return v
		}
	}

	return nil
}

func tryParseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
