// Package classifier decides whether a message text is a sale advertisement.
// It combines a deterministic keyword matcher with an external LLM oracle;
// the two verdicts are OR-combined.
package classifier

import "strings"

// RuleMatcher is the deterministic half of the engine: a case-insensitive
// substring test against a fixed keyword set.
type RuleMatcher struct {
	keywords []string
}

// NewRuleMatcher builds a matcher from the configured keyword set. Keywords
// are lowercased once at construction.
func NewRuleMatcher(keywords []string) *RuleMatcher {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		lowered = append(lowered, kw)
	}
	return &RuleMatcher{keywords: lowered}
}

// Match reports whether text contains any configured keyword. Empty text
// never matches.
func (m *RuleMatcher) Match(text string) bool {
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
