package wizard

import (
	"context"
	"sync"
	"time"

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

	mu    sync.Mutex
	calls map[Operation]int
}

func (m *mockBackend) record(op Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[Operation]int)
	}
	m.calls[op]++
}

func (m *mockBackend) count(op Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockBackend) ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error) {
	m.record(OpExtractFacts)
	if m.extractFn != nil {
		return m.extractFn(ctx, files)
	}
	return &model.ExtractionResult{}, nil
}

func (m *mockBackend) AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error) {
	m.record(OpAnalyzeSignals)
	if m.signalsFn != nil {
		return m.signalsFn(ctx, facts)
	}
	return []model.Signal{{SignalType: "right_of_way", EvidenceText: "Other driver failed to yield", SeverityScore: 0.8}}, nil
}

func (m *mockBackend) GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error) {
	m.record(OpGenerateTimeline)
	if m.timelineFn != nil {
		return m.timelineFn(ctx, facts)
	}
	return &model.Timeline{Events: []model.TimelineEvent{
		{EventNumber: 1, Description: "Vehicles approach the intersection", Timestamp: "3:00 PM"},
		{EventNumber: 2, Description: "Collision", Timestamp: "3:01 PM"},
	}}, nil
}

func (m *mockBackend) GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error) {
	m.record(OpRecommendation)
	if m.recommendationFn != nil {
		return m.recommendationFn(ctx, facts, signals)
	}
	return &model.Recommendation{ClaimantLiabilityPercent: 20, OtherDriverLiabilityPercent: 80, Explanation: "Other driver failed to yield", Confidence: 0.7}, nil
}

func (m *mockBackend) GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error) {
	m.record(OpGenerateRationale)
	if m.rationaleFn != nil {
		return m.rationaleFn(ctx, req)
	}
	return &model.Rationale{IncidentSummary: "Two-vehicle collision at an intersection", Recommendation: "Accept 80% liability for the other driver"}, nil
}

func (m *mockBackend) CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error) {
	m.record(OpCheckEvidence)
	if m.evidenceFn != nil {
		return m.evidenceFn(ctx, files)
	}
	return &model.EvidenceReport{
		Checks:          map[string]model.EvidenceCheck{"police_report": {Status: model.EvidenceStatusMissing}},
		MissingEvidence: []model.MissingEvidence{{EvidenceNeeded: "Police report", Priority: model.SeverityHigh}},
	}, nil
}

func (m *mockBackend) GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error) {
	m.record(OpEscalation)
	if m.escalationFn != nil {
		return m.escalationFn(ctx, req)
	}
	return &model.EscalationPackage{ExecutiveSummary: "Disputed time of loss", TopRisks: []model.Risk{{Risk: "Conflicting statements", Severity: model.SeverityMedium}}}, nil
}

// serverError mimics a backend error that carries the server's message.
type serverError struct {
	msg string
}

func (e serverError) Error() string       { return "backend returned 500: " + e.msg }
func (e serverError) UserMessage() string { return e.msg }

// manualScheduler queues scheduled work until the test runs it.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	queue  []func()
}

func (s *manualScheduler) schedule(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.queue = append(s.queue, f)
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *manualScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delays) == 0 {
		return -1
	}
	return s.delays[len(s.delays)-1]
}

// runAll runs queued work, including work queued while running.
func (s *manualScheduler) runAll() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		f := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		f()
	}
}

type memoryTimelines struct {
	mu    sync.Mutex
	saved *model.Timeline
	saves int
}

func (m *memoryTimelines) SaveTimeline(_ context.Context, t model.Timeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &t
	m.saves++
	return nil
}

func (m *memoryTimelines) LoadTimeline(_ context.Context) (*model.Timeline, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, false, nil
	}
	t := *m.saved
	return &t, true, nil
}

type recordedDecisions struct {
	mu        sync.Mutex
	decisions []model.Decision
}

func (r *recordedDecisions) RecordDecision(_ context.Context, d model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return nil
}
