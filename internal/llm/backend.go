package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// InputError rejects a request before any model call is made.
type InputError struct {
	Message string
}

func (e *InputError) Error() string       { return e.Message }
func (e *InputError) UserMessage() string { return e.Message }

// Backend answers the claims backend operations in-process with an LLM.
type Backend struct {
	provider Provider
	log      *logging.Logger
}

// NewBackend wraps provider. log may be nil.
func NewBackend(provider Provider, log *logging.Logger) *Backend {
	if log == nil {
		log = logging.Nop()
	}
	return &Backend{provider: provider, log: log.With("component", "llm", "provider", provider.Name())}
}

// ExtractFacts extracts facts from the documents, normalizes them and runs a
// second pass for cross-source conflicts. A failed conflict pass yields no
// conflicts rather than failing the extraction.
func (b *Backend) ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error) {
	if len(files) == 0 {
		return nil, &InputError{Message: "No files provided"}
	}

	docs, images := formatDocuments(files)
	var extracted struct {
		Facts []model.Fact `json:"facts"`
	}
	if err := b.completeJSON(ctx, "extract facts", CompletionRequest{
		System: systemAnalyst,
		Prompt: extractFactsPrompt + docs,
		Images: images,
	}, &extracted); err != nil {
		return nil, err
	}

	facts := extracted.Facts
	assignSources(facts, files)
	facts = NormalizeFacts(facts)

	conflicts := []model.Conflict{}
	if len(facts) >= 2 {
		var detected struct {
			Conflicts []model.Conflict `json:"conflicts"`
		}
		err := b.completeJSON(ctx, "detect conflicts", CompletionRequest{
			System: systemAnalyst,
			Prompt: detectConflictsPrompt + formatFacts(facts),
		}, &detected)
		if err != nil {
			b.log.Warn("conflict detection failed", "error", err)
		} else if detected.Conflicts != nil {
			conflicts = detected.Conflicts
			enrichConflicts(conflicts, facts)
		}
	}

	return &model.ExtractionResult{Facts: facts, Conflicts: conflicts}, nil
}

// AnalyzeLiabilitySignals labels liability signals in the fact matrix.
func (b *Backend) AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error) {
	if err := requireFacts(facts); err != nil {
		return nil, err
	}
	var res struct {
		Signals []model.Signal `json:"signals"`
	}
	if err := b.completeJSON(ctx, "analyze signals", CompletionRequest{
		System: systemAnalyst,
		Prompt: signalsPrompt + formatFacts(facts),
	}, &res); err != nil {
		return nil, err
	}
	return res.Signals, nil
}

// GenerateTimeline reconstructs the incident sequence.
func (b *Backend) GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error) {
	if err := requireFacts(facts); err != nil {
		return nil, err
	}
	var res struct {
		Timeline []model.TimelineEvent `json:"timeline"`
		Events   []model.TimelineEvent `json:"events"`
	}
	if err := b.completeJSON(ctx, "generate timeline", CompletionRequest{
		System: systemAnalyst,
		Prompt: timelinePrompt + formatFacts(facts),
	}, &res); err != nil {
		return nil, err
	}
	events := res.Timeline
	if events == nil {
		events = res.Events
	}
	return &model.Timeline{Events: events}, nil
}

// GetLiabilityRecommendation proposes a normalized liability split.
func (b *Backend) GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error) {
	if err := requireFacts(facts); err != nil {
		return nil, err
	}
	var res struct {
		Claimant      float64  `json:"claimant_liability_percent"`
		OtherDriver   float64  `json:"other_driver_liability_percent"`
		Explanation   string   `json:"explanation"`
		Reasoning     string   `json:"reasoning"`
		KeyFactors    []string `json:"key_factors"`
		Confidence    *float64 `json:"confidence"`
		Uncertainties []string `json:"uncertainties"`
	}
	if err := b.completeJSON(ctx, "recommend liability", CompletionRequest{
		System: systemAnalyst,
		Prompt: recommendationPrompt + formatFacts(facts) + formatSignals(signals),
	}, &res); err != nil {
		return nil, err
	}

	rec := &model.Recommendation{
		ClaimantLiabilityPercent:    int(math.Round(res.Claimant)),
		OtherDriverLiabilityPercent: int(math.Round(res.OtherDriver)),
		Explanation:                 res.Explanation,
		KeyFactors:                  res.KeyFactors,
		Confidence:                  0.5,
		Uncertainties:               res.Uncertainties,
	}
	if rec.Explanation == "" {
		rec.Explanation = res.Reasoning
	}
	if res.Confidence != nil {
		rec.Confidence = *res.Confidence
	}
	rec.Normalize()
	return rec, nil
}

// GenerateClaimRationale drafts the rationale and attaches the uploaded images.
func (b *Backend) GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error) {
	if err := requireFacts(req.Facts); err != nil {
		return nil, err
	}
	prompt := rationalePrompt + formatFacts(req.Facts) + formatSignals(req.Signals) +
		formatRecommendation(req.Recommendation) + formatInventory(req.Files)

	var rationale model.Rationale
	if err := b.completeJSON(ctx, "generate rationale", CompletionRequest{
		System: systemAnalyst,
		Prompt: prompt,
	}, &rationale); err != nil {
		return nil, err
	}
	rationale.Images = rationaleImages(req.Files)
	return &rationale, nil
}

// CheckEvidenceCompleteness grades the claim file against a standard
// evidence package.
func (b *Backend) CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error) {
	if len(files) == 0 {
		return nil, &InputError{Message: "No files provided"}
	}
	var report model.EvidenceReport
	if err := b.completeJSON(ctx, "check evidence", CompletionRequest{
		System: systemAnalyst,
		Prompt: evidencePrompt + formatInventory(files),
	}, &report); err != nil {
		return nil, err
	}
	if report.Checks == nil {
		return nil, fmt.Errorf("check evidence: response has no checks")
	}
	return &report, nil
}

// GenerateEscalationPackage condenses the claim for a supervisor.
func (b *Backend) GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error) {
	if err := requireFacts(req.Facts); err != nil {
		return nil, err
	}
	var pkg model.EscalationPackage
	if err := b.completeJSON(ctx, "generate escalation", CompletionRequest{
		System: systemAnalyst,
		Prompt: escalationPrompt + formatFacts(req.Facts) + formatSignals(req.Signals),
	}, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// completeJSON runs req in JSON mode and decodes the reply into out. Replies
// wrapped in prose or code fences are cut down to the outermost object.
func (b *Backend) completeJSON(ctx context.Context, op string, req CompletionRequest, out interface{}) error {
	req.JSON = true
	start := time.Now()
	resp, err := b.provider.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b.log.Debug("llm completion", "op", op, "model", resp.Model, "tokens", resp.TokensUsed, "duration", time.Since(start))

	if err := json.Unmarshal([]byte(resp.Text), out); err == nil {
		return nil
	}
	match := jsonObject.FindString(resp.Text)
	if match == "" {
		return fmt.Errorf("%s: reply is not JSON", op)
	}
	if err := json.Unmarshal([]byte(match), out); err != nil {
		return fmt.Errorf("%s: parse reply: %w", op, err)
	}
	return nil
}

func requireFacts(facts []model.Fact) error {
	if len(facts) == 0 {
		return &InputError{Message: "No facts provided. Please extract facts first."}
	}
	return nil
}
