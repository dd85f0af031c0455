package dto

import (
	"github.com/ppiankov/claimdesk/internal/matrix"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

type SessionResponse struct {
	Session wizard.View `json:"session"`
}

type FileResponse struct {
	File    wizard.FileView `json:"file"`
	Session wizard.View     `json:"session"`
}

type AcceptConflictRequest struct {
	VariantIndex *int   `json:"variant_index" binding:"required,min=0"`
	Value        string `json:"value" binding:"required"`
}

type AcceptConflictResponse struct {
	Result  matrix.AcceptResult `json:"result"`
	Session wizard.View         `json:"session"`
}

type AdjustRecommendationRequest struct {
	ClaimantLiabilityPercent *int `json:"claimant_liability_percent" binding:"required"`
}

type RecommendationResponse struct {
	Recommendation model.Recommendation `json:"recommendation"`
}

type EditTimelineEventRequest struct {
	Description string `json:"description" binding:"required"`
}

type MoveTimelineEventRequest struct {
	Direction string `json:"direction" binding:"required,oneof=up down"`
}

type SendEscalationRequest struct {
	Package *model.EscalationPackage `json:"package,omitempty"`
}

type SignalsResponse struct {
	Signals []model.Signal `json:"signals"`
}

type EvidenceResponse struct {
	Evidence *model.EvidenceReport `json:"evidence"`
}

type EscalationResponse struct {
	Escalation *model.EscalationPackage `json:"escalation"`
}

type RationaleResponse struct {
	Rationale *model.Rationale `json:"rationale"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// FileView summarizes f the way session views list files.
func FileView(f model.UploadedFile) wizard.FileView {
	return wizard.FileView{
		Key:            f.Key(),
		Filename:       f.Filename,
		Type:           f.Type,
		DetectedSource: f.DetectedSource,
		Pages:          len(f.Pages),
	}
}
