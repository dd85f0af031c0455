package model

import "time"

// RationaleRequest is the input of claim rationale generation
type RationaleRequest struct {
	Facts          []Fact          `json:"facts"`
	Signals        []Signal        `json:"signals"`
	Files          []UploadedFile  `json:"files"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// EscalationRequest is the input of escalation package generation
type EscalationRequest struct {
	Facts   []Fact   `json:"facts"`
	Signals []Signal `json:"signals"`
}

// Decision is an accepted conflict resolution as recorded in the audit log
type Decision struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ConflictIndex   int       `json:"conflict_index"`
	FactDescription string    `json:"fact_description"`
	Sources         []string  `json:"sources"`
	Value           string    `json:"value"`
	VariantIndex    int       `json:"variant_index"`
	UpdatedFacts    int       `json:"updated_facts"`
	AcceptedAt      time.Time `json:"accepted_at"`
}
