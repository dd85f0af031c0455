package model

import "fmt"

// Step identifies one wizard step
type Step string

const (
	StepFiles                   Step = "files"
	StepFactMatrix              Step = "fact-matrix"
	StepTimeline                Step = "timeline"
	StepLiabilityRecommendation Step = "liability-recommendation"
	StepClaimRationale          Step = "claim-rationale"
)

// StepDefinition is the static configuration of a step
type StepDefinition struct {
	ID       Step   `json:"id"`
	Name     string `json:"name"`
	Requires []Step `json:"requires"`
}

// Steps is the wizard in display order. Static, never mutated at runtime.
var Steps = []StepDefinition{
	{ID: StepFiles, Name: "Files", Requires: nil},
	{ID: StepFactMatrix, Name: "Fact Matrix", Requires: []Step{StepFiles}},
	{ID: StepTimeline, Name: "Timeline Reconstruction", Requires: []Step{StepFactMatrix}},
	{ID: StepLiabilityRecommendation, Name: "Liability % Recommendation", Requires: []Step{StepTimeline}},
	{ID: StepClaimRationale, Name: "Draft Claim Rationale", Requires: []Step{StepFactMatrix}},
}

// StepIndex returns the position of s in Steps, or -1.
func StepIndex(s Step) int {
	for i, def := range Steps {
		if def.ID == s {
			return i
		}
	}
	return -1
}

// ParseStep validates a step identifier.
func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if StepIndex(s) < 0 {
		return "", fmt.Errorf("unknown step: %q", raw)
	}
	return s, nil
}

// Definition returns the static configuration for s.
func (s Step) Definition() StepDefinition {
	if i := StepIndex(s); i >= 0 {
		return Steps[i]
	}
	return StepDefinition{ID: s}
}

// Requires returns the steps that must be completed before s.
func (s Step) Requires() []Step {
	return s.Definition().Requires
}

// StepCompletion tracks the sub-tasks of the first two steps
type StepCompletion struct {
	FactsExtracted   bool `json:"facts_extracted"`
	LiabilitySignals bool `json:"liability_signals"`
	EvidenceComplete bool `json:"evidence_complete"`
}
