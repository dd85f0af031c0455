package model

import (
	"strings"
	"time"
)

// Fact is one atomic claim extracted from an uploaded document
type Fact struct {
	ExtractedFact     string     `json:"extracted_fact"`               // The fact as phrased
	NormalizedValue   string     `json:"normalized_value,omitempty"`   // Canonical value used for comparison
	SourceText        string     `json:"source_text,omitempty"`        // Verbatim snippet of the source document
	Category          string     `json:"category,omitempty"`           // movement, environment, compliance, impact, location, temporal
	Source            string     `json:"source"`                       // Origin document (fnol, claimant, police, ...)
	Confidence        *float64   `json:"confidence,omitempty"`         // 0-1, optional
	IsImplied         bool       `json:"is_implied,omitempty"`         // Implied rather than stated
	Resolved          bool       `json:"resolved,omitempty"`           // Touched by an accepted conflict resolution
	ResolvedValue     string     `json:"resolved_value,omitempty"`     // Value applied by the resolution
	ResolvedTimestamp *time.Time `json:"resolved_timestamp,omitempty"` // When the resolution was applied
}

// Value returns the normalized value, falling back to the extracted text.
func (f Fact) Value() string {
	if strings.TrimSpace(f.NormalizedValue) != "" {
		return f.NormalizedValue
	}
	return f.ExtractedFact
}

// ValueDetail is one candidate value of a conflict with the sources backing it
type ValueDetail struct {
	Value          string   `json:"value"`
	Sources        []string `json:"sources"`
	SourceSnippets []string `json:"source_snippets,omitempty"`
}

// HasSource reports whether source backs this value.
func (d ValueDetail) HasSource(source string) bool {
	return containsString(d.Sources, source)
}

// Severity grades how much a conflict matters to the claim assessment
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is a disagreement between facts from different sources about one attribute
type Conflict struct {
	FactDescription    string        `json:"fact_description"`
	Sources            []string      `json:"sources"`
	ConflictingValues  []string      `json:"conflicting_values"`
	ConflictType       string        `json:"conflict_type,omitempty"`
	Severity           Severity      `json:"severity,omitempty"`
	Explanation        string        `json:"explanation,omitempty"`
	RecommendedVersion string        `json:"recommended_version,omitempty"`
	Evidence           string        `json:"evidence,omitempty"`
	ValueDetails       []ValueDetail `json:"value_details,omitempty"`
}

// HasSource reports whether source is implicated in the conflict.
func (c Conflict) HasSource(source string) bool {
	return containsString(c.Sources, source)
}

// Detail returns the value detail whose value equals value, ignoring case and
// surrounding whitespace.
func (c Conflict) Detail(value string) (ValueDetail, bool) {
	want := Fold(value)
	for _, d := range c.ValueDetails {
		if Fold(d.Value) == want {
			return d, true
		}
	}
	return ValueDetail{}, false
}

// Variants lists the candidate values a user can pick from. Value details win
// over the plain conflicting values when both are present.
func (c Conflict) Variants() []string {
	if len(c.ValueDetails) > 0 {
		out := make([]string, 0, len(c.ValueDetails))
		for _, d := range c.ValueDetails {
			out = append(out, d.Value)
		}
		return out
	}
	return append([]string(nil), c.ConflictingValues...)
}

// CandidateValues returns the conflicting values followed by any value
// detail not already listed, without duplicates.
func (c Conflict) CandidateValues() []string {
	seen := make(map[string]bool, len(c.ConflictingValues)+len(c.ValueDetails))
	var out []string
	add := func(v string) {
		k := Fold(v)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, v)
	}
	for _, v := range c.ConflictingValues {
		add(v)
	}
	for _, d := range c.ValueDetails {
		add(d.Value)
	}
	return out
}

// AcceptedVersion is the user's chosen resolution for one conflict
type AcceptedVersion struct {
	Value        string    `json:"value"`
	VariantIndex int       `json:"variant_index"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExtractionResult is the payload returned by fact extraction
type ExtractionResult struct {
	Facts     []Fact     `json:"facts"`
	Conflicts []Conflict `json:"conflicts"`
}

// Fold lowercases and trims s for comparisons.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
