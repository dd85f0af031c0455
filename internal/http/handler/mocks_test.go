package handler_test

import (
	"context"

	"github.com/ppiankov/claimdesk/internal/model"
)

type mockBackend struct {
	extractFn        func(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error)
	signalsFn        func(ctx context.Context, facts []model.Fact) ([]model.Signal, error)
	timelineFn       func(ctx context.Context, facts []model.Fact) (*model.Timeline, error)
	recommendationFn func(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error)
	rationaleFn      func(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error)
	evidenceFn       func(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error)
	escalationFn     func(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error)
}

func (m *mockBackend) ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, files)
	}
	return &model.ExtractionResult{}, nil
}

func (m *mockBackend) AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error) {
	if m.signalsFn != nil {
		return m.signalsFn(ctx, facts)
	}
	return []model.Signal{{SignalType: "right_of_way", SeverityScore: 0.8}}, nil
}

func (m *mockBackend) GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error) {
	if m.timelineFn != nil {
		return m.timelineFn(ctx, facts)
	}
	return &model.Timeline{Events: []model.TimelineEvent{
		{EventNumber: 1, Description: "Vehicles approach"},
		{EventNumber: 2, Description: "Collision"},
	}}, nil
}

func (m *mockBackend) GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error) {
	if m.recommendationFn != nil {
		return m.recommendationFn(ctx, facts, signals)
	}
	return &model.Recommendation{ClaimantLiabilityPercent: 30, OtherDriverLiabilityPercent: 70, Confidence: 0.6}, nil
}

func (m *mockBackend) GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error) {
	if m.rationaleFn != nil {
		return m.rationaleFn(ctx, req)
	}
	return &model.Rationale{IncidentSummary: "Intersection collision"}, nil
}

func (m *mockBackend) CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error) {
	if m.evidenceFn != nil {
		return m.evidenceFn(ctx, files)
	}
	return &model.EvidenceReport{Checks: map[string]model.EvidenceCheck{}}, nil
}

func (m *mockBackend) GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error) {
	if m.escalationFn != nil {
		return m.escalationFn(ctx, req)
	}
	return &model.EscalationPackage{ExecutiveSummary: "Needs review"}, nil
}
