package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Signal is a liability indicator derived from the fact matrix
type Signal struct {
	SignalType        string      `json:"signal_type"`                   // traffic_control, right_of_way, duty_of_care, ...
	EvidenceText      string      `json:"evidence_text"`                 // Supporting text from facts
	ImpactOnLiability string      `json:"impact_on_liability,omitempty"` // How it moves the split
	SeverityScore     float64     `json:"severity_score"`                // 0-1
	RelatedFacts      FlexStrings `json:"related_facts,omitempty"`       // Fact descriptions or indices
	Discrepancies     string      `json:"discrepancies,omitempty"`       // Inconsistencies noted, if any
}

// FlexStrings decodes a JSON array whose items may be strings, numbers or
// objects. Non-string items are kept in their JSON form.
type FlexStrings []string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	out := make(FlexStrings, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(item))
	}
	*f = out
	return nil
}

// TimelineEvent is one reconstructed event of the incident
type TimelineEvent struct {
	EventNumber     int         `json:"event_number"`
	Description     string      `json:"description"`
	Timestamp       string      `json:"timestamp,omitempty"`
	SupportingFacts FlexStrings `json:"supporting_facts,omitempty"` // "Fact 1", "Fact 5" (1-based)
	Edited          bool        `json:"edited,omitempty"`
}

// Timeline is the ordered reconstruction of the incident
type Timeline struct {
	Events []TimelineEvent `json:"timeline"`
}

// Renumber rewrites event numbers to match the current order.
func (t *Timeline) Renumber() {
	for i := range t.Events {
		t.Events[i].EventNumber = i + 1
	}
}

// Recommendation is the suggested liability split
type Recommendation struct {
	ClaimantLiabilityPercent    int      `json:"claimant_liability_percent"`
	OtherDriverLiabilityPercent int      `json:"other_driver_liability_percent"`
	Explanation                 string   `json:"explanation"`
	KeyFactors                  []string `json:"key_factors,omitempty"`
	Confidence                  float64  `json:"confidence"`
	Uncertainties               []string `json:"uncertainties,omitempty"`
	Adjusted                    bool     `json:"adjusted,omitempty"` // Split was changed by the adjuster
}

// Normalize clamps both percentages to 0-100 and rescales them so they sum
// to 100. A zero total becomes an even split.
func (r *Recommendation) Normalize() {
	c := clampPercent(r.ClaimantLiabilityPercent)
	o := clampPercent(r.OtherDriverLiabilityPercent)
	total := c + o
	switch {
	case total == 0:
		c, o = 50, 50
	case total != 100:
		c = int(math.Round(float64(c) / float64(total) * 100))
		o = 100 - c
	}
	r.ClaimantLiabilityPercent = c
	r.OtherDriverLiabilityPercent = o
}

// SetClaimantPercent applies a manual split; the other driver gets the rest.
func (r *Recommendation) SetClaimantPercent(p int) {
	p = clampPercent(p)
	r.ClaimantLiabilityPercent = p
	r.OtherDriverLiabilityPercent = 100 - p
	r.Adjusted = true
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// EvidenceOverview summarizes the narrative and photographic evidence
type EvidenceOverview struct {
	Narratives string `json:"narratives,omitempty"`
	Photos     string `json:"photos,omitempty"`
}

// RationaleImage is an image carried through from the uploaded files
type RationaleImage struct {
	Data   string `json:"data"`
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Type   string `json:"type"` // pdf_image, standalone_image
}

// Rationale is the written claim rationale
type Rationale struct {
	IncidentSummary          string           `json:"incident_summary"`
	EvidenceOverview         EvidenceOverview `json:"evidence_overview"`
	LiabilityAssessmentLogic string           `json:"liability_assessment_logic"`
	KeyEvidence              []string         `json:"key_evidence,omitempty"`
	OpenQuestions            []string         `json:"open_questions,omitempty"`
	CoverageConsiderations   string           `json:"coverage_considerations,omitempty"`
	Recommendation           string           `json:"recommendation,omitempty"`
	Images                   []RationaleImage `json:"images,omitempty"`
}

// Empty reports whether no section carries text.
func (r Rationale) Empty() bool {
	return r.IncidentSummary == "" && r.LiabilityAssessmentLogic == "" &&
		r.Recommendation == "" && len(r.KeyEvidence) == 0
}

// EvidenceStatus grades one completeness check
type EvidenceStatus string

const (
	EvidenceStatusComplete EvidenceStatus = "complete"
	EvidenceStatusPartial  EvidenceStatus = "partial"
	EvidenceStatusMissing  EvidenceStatus = "missing"
)

// EvidenceCheck is one named completeness check
type EvidenceCheck struct {
	Status  EvidenceStatus `json:"status"`
	Details string         `json:"details,omitempty"`
	Present *bool          `json:"present,omitempty"`
}

// MissingEvidence is a follow-up item the adjuster should chase
type MissingEvidence struct {
	EvidenceNeeded    string   `json:"evidence_needed"`
	WhyItMatters      string   `json:"why_it_matters,omitempty"`
	SuggestedFollowUp string   `json:"suggested_follow_up,omitempty"`
	Priority          Severity `json:"priority,omitempty"`
}

// EvidenceReport is the result of an evidence completeness check
type EvidenceReport struct {
	Checks          map[string]EvidenceCheck `json:"checks"`
	MissingEvidence []MissingEvidence        `json:"missing_evidence"`
}

// Risk is one entry of an escalation package
type Risk struct {
	Risk     string   `json:"risk"`
	Severity Severity `json:"severity"`
	Impact   string   `json:"impact,omitempty"`
}

// EscalationPackage is the condensed summary handed to a supervisor
type EscalationPackage struct {
	ExecutiveSummary           string   `json:"executive_summary"`
	TopRisks                   []Risk   `json:"top_5_risks,omitempty"`
	NeededSupervisorDecisions  []string `json:"needed_supervisor_decisions,omitempty"`
	RecommendedAdjusterActions []string `json:"recommended_adjuster_actions,omitempty"`
}
