package matrix

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Matcher decides whether two free-text values describe the same thing
type Matcher interface {
	Match(a, b string) bool
}

// SubstringMatcher matches on case-insensitive equality or containment in
// either direction. Empty values never match.
type SubstringMatcher struct{}

// Match implements Matcher.
func (SubstringMatcher) Match(a, b string) bool {
	a, b = model.Fold(a), model.Fold(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// EditDistanceMatcher extends substring matching with a Levenshtein
// similarity ratio, so "3:00 pm" and "3.00 pm" are treated as the same value.
type EditDistanceMatcher struct {
	threshold float64
	dmp       *diffmatchpatch.DiffMatchPatch
}

// NewEditDistanceMatcher creates a matcher accepting pairs whose similarity
// (1 - distance/longer length) is at least threshold.
func NewEditDistanceMatcher(threshold float64) *EditDistanceMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &EditDistanceMatcher{
		threshold: threshold,
		dmp:       diffmatchpatch.New(),
	}
}

// Match implements Matcher.
func (m *EditDistanceMatcher) Match(a, b string) bool {
	if (SubstringMatcher{}).Match(a, b) {
		return true
	}
	a, b = model.Fold(a), model.Fold(b)
	if a == "" || b == "" {
		return false
	}
	return m.Similarity(a, b) >= m.threshold
}

// Similarity returns a 0-1 score, 1 meaning identical.
func (m *EditDistanceMatcher) Similarity(a, b string) float64 {
	longer := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longer {
		longer = n
	}
	if longer == 0 {
		return 1
	}
	diffs := m.dmp.DiffMain(a, b, false)
	distance := m.dmp.DiffLevenshtein(diffs)
	return 1 - float64(distance)/float64(longer)
}

// NewMatcher builds a matcher by name: "substring" (default) or "edit_distance".
func NewMatcher(name string, threshold float64) (Matcher, error) {
	switch strings.ToLower(name) {
	case "", "substring":
		return SubstringMatcher{}, nil
	case "edit_distance", "levenshtein":
		return NewEditDistanceMatcher(threshold), nil
	default:
		return nil, fmt.Errorf("unknown matcher: %s (supported: substring, edit_distance)", name)
	}
}
