package classifier_test

import (
	"testing"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/classifier"
)

func TestRuleMatcher_Match(t *testing.T) {
	t.Parallel()

	keywords := []string{"продам", "продаю", "цена", "торг", "объявление", "куплю", "отдам"}
	m := classifier.NewRuleMatcher(keywords)

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "Keyword at start",
			input:    "Продам велосипед в отличном состоянии",
			expected: true,
		},
		{
			name:     "Keyword in middle",
			input:    "Отличный диван, цена договорная",
			expected: true,
		},
		{
			name:     "Keyword inside word",
			input:    "перепродамся",
			expected: true,
		},
		{
			name:     "Mixed case",
			input:    "СРОЧНО! ОТДАМ ДАРОМ",
			expected: true,
		},
		{
			name:     "No keywords",
			input:    "Кто идет на встречу завтра?",
			expected: false,
		},
		{
			name:     "Empty text",
			input:    "",
			expected: false,
		},
		{
			name:     "Latin text without keywords",
			input:    "selling my bike, good price",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := m.Match(tt.input); got != tt.expected {
				t.Errorf("Match(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRuleMatcher_KeywordNormalization(t *testing.T) {
	t.Parallel()

	m := classifier.NewRuleMatcher([]string{"  ПрОдАм  ", "", "   "})

	if !m.Match("продам гараж") {
		t.Error("expected keyword with surrounding whitespace and mixed case to match after normalization")
	}
	if m.Match("ничего интересного") {
		t.Error("expected blank keywords to be dropped, not match everything")
	}
}
