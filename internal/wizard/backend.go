package wizard

import (
	"context"

	"github.com/ppiankov/claimdesk/internal/model"
)

// Backend is the claims intelligence service the wizard calls out to
type Backend interface {
	ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error)
	AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error)
	GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error)
	GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error)
	GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error)
	CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error)
	GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error)
}

// TimelineStore persists the reconstructed timeline outside the session
type TimelineStore interface {
	SaveTimeline(ctx context.Context, t model.Timeline) error
	LoadTimeline(ctx context.Context) (*model.Timeline, bool, error)
}

// DecisionRecorder keeps an audit trail of accepted resolutions
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d model.Decision) error
}
