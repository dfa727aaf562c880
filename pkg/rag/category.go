package rag

import (
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCategoryThreshold is the minimum similarity ratio for a fuzzy
// category match to be accepted.
const DefaultCategoryThreshold = 0.6

// CategoryMatcher resolves free-form category labels against the fixed
// query-time category set, tolerating typos.
type CategoryMatcher struct {
	categories []string
	logger     *slog.Logger
}

// NewCategoryMatcher creates a matcher over ValidCategories.
func NewCategoryMatcher(logger *slog.Logger) *CategoryMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryMatcher{
		categories: ValidCategories,
		logger:     logger.With("component", "category-matcher"),
	}
}

// Match returns the best-matching valid category and its similarity ratio.
// The match is accepted only when the ratio reaches threshold; otherwise the
// returned category is empty and the caller searches unfiltered. Ties resolve
// to the first category in the fixed list.
func (cm *CategoryMatcher) Match(userInput string, threshold float64) (string, float64) {
	input := strings.ToLower(strings.TrimSpace(userInput))

	bestMatch := ""
	bestRatio := 0.0

	for _, category := range cm.categories {
		ratio := similarityRatio(input, strings.ToLower(category))
		if ratio > bestRatio {
			bestRatio = ratio
			bestMatch = category
		}
	}

	if bestRatio >= threshold && bestMatch != "" {
		cm.logger.Info("Fuzzy category match",
			"input", userInput,
			"matched", bestMatch,
			"confidence", bestRatio,
		)
		return bestMatch, bestRatio
	}

	cm.logger.Warn("No category match",
		"input", userInput,
		"best_ratio", bestRatio,
	)
	return "", bestRatio
}

// similarityRatio computes the Ratcliff/Obershelp similarity of two strings
// as a character-level sequence match in [0, 1].
func similarityRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	matcher := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return matcher.Ratio()
}

func splitRunes(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
