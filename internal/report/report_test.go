package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/claimdesk/internal/gate"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

func sampleView() wizard.View {
	conflict := 0
	return wizard.View{
		ID:          "sess-1",
		CreatedAt:   time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		CurrentStep: model.StepLiabilityRecommendation,
		Progress:    60,
		Steps: []gate.StepIndicator{
			{Step: model.StepFiles, Name: "Files", State: gate.IndicatorCompleted},
			{Step: model.StepFactMatrix, Name: "Fact Matrix", State: gate.IndicatorCompleted},
		},
		Files: []wizard.FileView{
			{Key: "police_report.pdf", Filename: "police.txt", Type: "text", DetectedSource: "police", Pages: 2},
		},
		Facts: []wizard.FactView{
			{
				Fact:             model.Fact{ExtractedFact: "Collision at 3:30 PM | approx", NormalizedValue: "3:30 PM", Source: "police"},
				Index:            0,
				ConflictIndex:    &conflict,
				ConflictResolved: true,
				Signal:           &model.Signal{SignalType: "right_of_way"},
			},
		},
		Conflicts: []wizard.ConflictView{
			{
				Conflict: model.Conflict{
					FactDescription:   "Time of collision",
					Sources:           []string{"police", "claimant"},
					ConflictingValues: []string{"3:30 PM", "3:00 PM"},
					Severity:          model.SeverityHigh,
				},
				Resolved: true,
				Accepted: &model.AcceptedVersion{Value: "3:30 PM", Timestamp: time.Date(2026, 3, 1, 15, 5, 0, 0, time.UTC)},
			},
		},
		AllResolved: true,
		Signals:     []model.Signal{{SignalType: "right_of_way", SeverityScore: 0.8, EvidenceText: "Other driver failed to yield"}},
		Timeline: &model.Timeline{Events: []model.TimelineEvent{
			{EventNumber: 1, Timestamp: "3:30 PM", Description: "Vehicles collide", SupportingFacts: model.FlexStrings{"Fact 1"}},
		}},
		Recommendation: &model.Recommendation{
			ClaimantLiabilityPercent:    20,
			OtherDriverLiabilityPercent: 80,
			Confidence:                  0.7,
			Explanation:                 "Other driver failed to yield.",
			Adjusted:                    true,
		},
		Evidence: &model.EvidenceReport{
			Checks: map[string]model.EvidenceCheck{
				"police_report": {Status: model.EvidenceStatusComplete},
				"photos":        {Status: model.EvidenceStatusMissing, Details: "no scene photos"},
			},
			MissingEvidence: []model.MissingEvidence{{EvidenceNeeded: "Scene photos", Priority: model.SeverityHigh}},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := NewRenderer(true).Markdown(sampleView())

	for _, want := range []string{
		"# Claim Review sess-1",
		"- Step: Liability % Recommendation",
		"- Progress: 60%",
		"| Files | completed |",
		"- police_report.pdf (text, police, 2 pages)",
		"| 1 | Collision at 3:30 PM \\| approx | police | 3:30 PM | resolved (conflict 1) right_of_way |",
		"## Conflicts (1 of 1 resolved)",
		"- Accepted: **3:30 PM** (2026-03-01 15:05)",
		"- **right_of_way** (severity 0.80): Other driver failed to yield",
		"1. 3:30 PM Vehicles collide _(Fact 1)_",
		"- Claimant: 20%",
		"- Adjusted by adjuster",
		"- photos: missing (no scene photos)",
		"- Missing: Scene photos [high]",
		"Generated by claimdesk",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q\n%s", want, md)
		}
	}

	if strings.Index(md, "- photos:") > strings.Index(md, "- police_report:") {
		t.Error("Evidence checks should be sorted by name")
	}
	if strings.Contains(md, "## Claim Rationale") {
		t.Error("Absent rationale should not render a section")
	}
}

func TestMarkdown_NoFooter(t *testing.T) {
	md := NewRenderer(false).Markdown(wizard.View{ID: "empty", CurrentStep: model.StepFiles})
	if strings.Contains(md, "Generated by claimdesk") {
		t.Error("Footer should be omitted")
	}
	if !strings.Contains(md, "No documents uploaded.") {
		t.Error("Expected empty documents note")
	}
}

func TestRenderFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(false)
	v := sampleView()

	jsonPath := filepath.Join(dir, "out", "review.json")
	if err := r.RenderJSON(v, jsonPath); err != nil {
		t.Fatalf("RenderJSON() error = %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		ID    string `json:"id"`
		Facts []struct {
			ExtractedFact string `json:"extracted_fact"`
		} `json:"facts"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "sess-1" || len(decoded.Facts) != 1 {
		t.Errorf("Decoded = %+v", decoded)
	}

	mdPath := filepath.Join(dir, "review.md")
	if err := r.RenderMarkdown(v, mdPath); err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if info, err := os.Stat(mdPath); err != nil || info.Size() == 0 {
		t.Errorf("Markdown file missing or empty: %v", err)
	}
}

func TestPrint_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	if err := Print(&buf, "# Title\n", 80); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if buf.String() != "# Title\n" {
		t.Errorf("Print() = %q, want the markdown unchanged", buf.String())
	}
}
