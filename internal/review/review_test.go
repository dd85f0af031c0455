package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

// stubBackend returns canned results and counts calls
type stubBackend struct {
	result      *model.ExtractionResult
	timelineErr error

	mu    sync.Mutex
	calls map[string]int
}

func (s *stubBackend) hit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

func (s *stubBackend) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubBackend) ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error) {
	s.hit("extract")
	return s.result, nil
}

func (s *stubBackend) AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error) {
	s.hit("signals")
	return []model.Signal{{SignalType: "right_of_way", SeverityScore: 0.8}}, nil
}

func (s *stubBackend) GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error) {
	s.hit("timeline")
	if s.timelineErr != nil {
		return nil, s.timelineErr
	}
	return &model.Timeline{Events: []model.TimelineEvent{{EventNumber: 1, Description: "Collision"}}}, nil
}

func (s *stubBackend) GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error) {
	s.hit("recommendation")
	return &model.Recommendation{ClaimantLiabilityPercent: 20, OtherDriverLiabilityPercent: 80, Confidence: 0.7}, nil
}

func (s *stubBackend) GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error) {
	s.hit("rationale")
	return &model.Rationale{IncidentSummary: "Intersection collision"}, nil
}

func (s *stubBackend) CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error) {
	s.hit("evidence")
	return &model.EvidenceReport{Checks: map[string]model.EvidenceCheck{"police_report": {Status: model.EvidenceStatusComplete}}}, nil
}

func (s *stubBackend) GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error) {
	s.hit("escalation")
	return &model.EscalationPackage{ExecutiveSummary: "summary"}, nil
}

func conflictedResult(recommended string) *model.ExtractionResult {
	return &model.ExtractionResult{
		Facts: []model.Fact{
			{ExtractedFact: "Collision at 3:00 PM", NormalizedValue: "3:00 PM", Source: "claimant"},
			{ExtractedFact: "Collision at 3:30 PM", NormalizedValue: "3:30 PM", Source: "police"},
		},
		Conflicts: []model.Conflict{{
			FactDescription:    "Time of collision",
			Sources:            []string{"claimant", "police"},
			ConflictingValues:  []string{"3:00 PM", "3:30 PM"},
			RecommendedVersion: recommended,
		}},
	}
}

func files() []model.UploadedFile {
	return []model.UploadedFile{{
		Type:     model.FileTypeText,
		Filename: "police_report.txt",
		Pages:    []model.Page{{PageNumber: 1, Text: "Collision at 3:30 PM"}},
	}}
}

func TestReviewFiles_NoConflicts(t *testing.T) {
	backend := &stubBackend{result: &model.ExtractionResult{
		Facts: []model.Fact{{ExtractedFact: "Light was red", Source: "police"}},
	}}
	r := NewRunner(backend, wizard.Options{}, Options{Evidence: true, Rationale: true})

	v, err := r.ReviewFiles(context.Background(), "claim-1", files())
	if err != nil {
		t.Fatalf("ReviewFiles() error = %v", err)
	}

	if v.CurrentStep != model.StepClaimRationale {
		t.Errorf("CurrentStep = %s, want claim-rationale", v.CurrentStep)
	}
	if v.Timeline == nil || v.Recommendation == nil || v.Rationale == nil || v.Evidence == nil {
		t.Errorf("Expected every artifact, got %+v", v)
	}
	if len(v.Signals) != 1 {
		t.Errorf("Expected signals to be analyzed, got %d", len(v.Signals))
	}
	for _, name := range []string{"extract", "signals", "timeline", "recommendation", "rationale", "evidence"} {
		if n := backend.count(name); n != 1 {
			t.Errorf("%s called %d times, want 1", name, n)
		}
	}
}

func TestReviewFiles_NeedsAdjuster(t *testing.T) {
	backend := &stubBackend{result: conflictedResult("")}
	r := NewRunner(backend, wizard.Options{}, Options{AcceptRecommended: true})

	v, err := r.ReviewFiles(context.Background(), "claim-2", files())
	if !errors.Is(err, ErrNeedsAdjuster) {
		t.Fatalf("Expected ErrNeedsAdjuster, got %v", err)
	}
	if v == nil || len(v.Conflicts) != 1 || v.Conflicts[0].Resolved {
		t.Errorf("Expected the open conflict in the view, got %+v", v)
	}
	if v != nil && (len(v.Unresolved) != 1 || v.Unresolved[0] != 0) {
		t.Errorf("Unresolved = %v, want [0]", v.Unresolved)
	}
	if backend.count("timeline") != 0 {
		t.Error("Timeline must not run with open conflicts")
	}
}

func TestReviewFiles_AcceptRecommended(t *testing.T) {
	backend := &stubBackend{result: conflictedResult("3:30 pm")}
	r := NewRunner(backend, wizard.Options{}, Options{AcceptRecommended: true})

	v, err := r.ReviewFiles(context.Background(), "claim-3", files())
	if err != nil {
		t.Fatalf("ReviewFiles() error = %v", err)
	}
	if !v.AllResolved {
		t.Error("Expected conflicts to be resolved")
	}
	if got := v.Facts[0].NormalizedValue; got != "3:30 PM" {
		t.Errorf("Claimant fact = %q, want the accepted value", got)
	}
	if v.CurrentStep != model.StepLiabilityRecommendation {
		t.Errorf("CurrentStep = %s, want liability-recommendation", v.CurrentStep)
	}
}

func TestReviewFiles_AcceptsOnlyRecommendedConflicts(t *testing.T) {
	result := conflictedResult("")
	result.Facts = append(result.Facts,
		model.Fact{ExtractedFact: "Speed 30 mph", NormalizedValue: "30 mph", Source: "claimant"},
		model.Fact{ExtractedFact: "Speed 45 mph", NormalizedValue: "45 mph", Source: "police"},
	)
	result.Conflicts = append(result.Conflicts, model.Conflict{
		FactDescription:    "Speed of other vehicle",
		Sources:            []string{"claimant", "police"},
		ConflictingValues:  []string{"30 mph", "45 mph"},
		RecommendedVersion: "45 mph",
	})
	backend := &stubBackend{result: result}
	r := NewRunner(backend, wizard.Options{}, Options{AcceptRecommended: true})

	v, err := r.ReviewFiles(context.Background(), "claim-5", files())
	if !errors.Is(err, ErrNeedsAdjuster) {
		t.Fatalf("Expected ErrNeedsAdjuster, got %v", err)
	}
	if !v.Conflicts[1].Resolved {
		t.Error("Conflict with a recommendation should be accepted")
	}
	if len(v.Unresolved) != 1 || v.Unresolved[0] != 0 {
		t.Errorf("Unresolved = %v, want [0]", v.Unresolved)
	}
}

func TestReviewFiles_WithoutAutoAccept(t *testing.T) {
	backend := &stubBackend{result: conflictedResult("3:30 PM")}
	r := NewRunner(backend, wizard.Options{}, Options{})

	if _, err := r.ReviewFiles(context.Background(), "claim-4", files()); !errors.Is(err, ErrNeedsAdjuster) {
		t.Fatalf("Expected ErrNeedsAdjuster, got %v", err)
	}
}

func TestReviewFiles_TimelineFailure(t *testing.T) {
	backend := &stubBackend{
		result:      &model.ExtractionResult{Facts: []model.Fact{{ExtractedFact: "Light was red", Source: "police"}}},
		timelineErr: errors.New("backend down"),
	}
	r := NewRunner(backend, wizard.Options{}, Options{})

	v, err := r.ReviewFiles(context.Background(), "claim-5", files())
	if err == nil {
		t.Fatal("Expected timeline error")
	}
	if v.CurrentStep != model.StepFactMatrix {
		t.Errorf("CurrentStep = %s, want fact-matrix", v.CurrentStep)
	}
}

func TestReview_Dir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "claim-77")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "police_report.txt"), []byte("Light was red"), 0o644); err != nil {
		t.Fatal(err)
	}

	backend := &stubBackend{result: &model.ExtractionResult{Facts: []model.Fact{{ExtractedFact: "Light was red", Source: "police"}}}}
	v, err := NewRunner(backend, wizard.Options{}, Options{}).Review(context.Background(), dir)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if v.ID != "claim-77" {
		t.Errorf("ID = %q, want the folder name", v.ID)
	}
	if len(v.Files) != 1 || v.Files[0].Key != "police_report.pdf" {
		t.Errorf("Files = %+v", v.Files)
	}
}

func TestReview_EmptyDir(t *testing.T) {
	backend := &stubBackend{}
	if _, err := NewRunner(backend, wizard.Options{}, Options{}).Review(context.Background(), t.TempDir()); err == nil {
		t.Error("Expected error for a folder without documents")
	}
}

func TestRecommendedVariant(t *testing.T) {
	c := model.Conflict{ConflictingValues: []string{"north", "south"}, RecommendedVersion: " South "}
	if i, v, ok := RecommendedVariant(c); !ok || i != 1 || v != "south" {
		t.Errorf("RecommendedVariant() = %d, %q, %v", i, v, ok)
	}

	c.RecommendedVersion = "east"
	if _, _, ok := RecommendedVariant(c); ok {
		t.Error("Expected no match for a value outside the candidates")
	}
}
