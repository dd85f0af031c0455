package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

// Renderer writes session views as JSON and Markdown
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer. The footer line is appended to Markdown
// output when includeFooter is set.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// JSON encodes the view with indentation.
func (r *Renderer) JSON(v wizard.View) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderJSON writes the view as JSON to path.
func (r *Renderer) RenderJSON(v wizard.View, path string) error {
	data, err := r.JSON(v)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// RenderMarkdown writes the view as Markdown to path.
func (r *Renderer) RenderMarkdown(v wizard.View, path string) error {
	return writeFile(path, []byte(r.Markdown(v)))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Markdown renders the review as a Markdown document.
func (r *Renderer) Markdown(v wizard.View) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Claim Review %s\n\n", v.ID)
	fmt.Fprintf(&b, "- Step: %s\n", v.CurrentStep.Definition().Name)
	fmt.Fprintf(&b, "- Progress: %d%%\n", v.Progress)
	if v.Escalated {
		b.WriteString("- Escalated to supervisor\n")
	}
	b.WriteString("\n")

	writeSteps(&b, v)
	writeFiles(&b, v)
	writeFacts(&b, v)
	writeConflicts(&b, v)
	writeSignals(&b, v)
	writeTimeline(&b, v)
	writeRecommendation(&b, v)
	writeRationale(&b, v)
	writeEvidence(&b, v)
	writeEscalation(&b, v)

	if r.includeFooter {
		b.WriteString("---\n\n_Generated by claimdesk. Figures are decision support for the adjuster, not a liability determination._\n")
	}
	return b.String()
}

func writeSteps(b *strings.Builder, v wizard.View) {
	b.WriteString("## Steps\n\n| Step | State |\n|---|---|\n")
	for _, s := range v.Steps {
		fmt.Fprintf(b, "| %s | %s |\n", s.Name, s.State)
	}
	b.WriteString("\n")
}

func writeFiles(b *strings.Builder, v wizard.View) {
	b.WriteString("## Documents\n\n")
	if len(v.Files) == 0 {
		b.WriteString("No documents uploaded.\n\n")
		return
	}
	for _, f := range v.Files {
		line := fmt.Sprintf("- %s (%s", f.Key, f.Type)
		if f.DetectedSource != "" && f.DetectedSource != model.SourceUnknown {
			line += ", " + f.DetectedSource
		}
		if f.Pages > 0 {
			line += fmt.Sprintf(", %d pages", f.Pages)
		}
		b.WriteString(line + ")\n")
	}
	b.WriteString("\n")
}

func writeFacts(b *strings.Builder, v wizard.View) {
	if len(v.Facts) == 0 {
		return
	}
	b.WriteString("## Fact Matrix\n\n| # | Fact | Source | Value | Status |\n|---|---|---|---|---|\n")
	for _, f := range v.Facts {
		status := ""
		switch {
		case f.ConflictIndex != nil && f.ConflictResolved:
			status = fmt.Sprintf("resolved (conflict %d)", *f.ConflictIndex+1)
		case f.ConflictIndex != nil:
			status = fmt.Sprintf("conflict %d", *f.ConflictIndex+1)
		case f.Resolved:
			status = "confirmed"
		}
		if f.Signal != nil {
			status = strings.TrimSpace(status + " " + f.Signal.SignalType)
		}
		fmt.Fprintf(b, "| %d | %s | %s | %s | %s |\n",
			f.Index+1, cell(f.ExtractedFact), cell(f.Source), cell(f.Value()), status)
	}
	b.WriteString("\n")
}

func writeConflicts(b *strings.Builder, v wizard.View) {
	if len(v.Conflicts) == 0 {
		return
	}
	resolved := 0
	for _, c := range v.Conflicts {
		if c.Resolved {
			resolved++
		}
	}
	fmt.Fprintf(b, "## Conflicts (%d of %d resolved)\n\n", resolved, len(v.Conflicts))
	for _, c := range v.Conflicts {
		fmt.Fprintf(b, "### %d. %s\n\n", c.Index+1, c.FactDescription)
		if c.Severity != "" {
			fmt.Fprintf(b, "- Severity: %s\n", c.Severity)
		}
		fmt.Fprintf(b, "- Sources: %s\n", strings.Join(c.Sources, ", "))
		fmt.Fprintf(b, "- Values: %s\n", strings.Join(c.Variants(), " / "))
		if c.RecommendedVersion != "" {
			fmt.Fprintf(b, "- Recommended: %s\n", c.RecommendedVersion)
		}
		if c.Accepted != nil {
			fmt.Fprintf(b, "- Accepted: **%s** (%s)\n", c.Accepted.Value, c.Accepted.Timestamp.Format("2006-01-02 15:04"))
		} else {
			b.WriteString("- Accepted: pending\n")
		}
		b.WriteString("\n")
	}
}

func writeSignals(b *strings.Builder, v wizard.View) {
	if len(v.Signals) == 0 {
		return
	}
	b.WriteString("## Liability Signals\n\n")
	for _, s := range v.Signals {
		fmt.Fprintf(b, "- **%s** (severity %.2f): %s\n", s.SignalType, s.SeverityScore, s.EvidenceText)
		if s.ImpactOnLiability != "" {
			fmt.Fprintf(b, "  - Impact: %s\n", s.ImpactOnLiability)
		}
	}
	b.WriteString("\n")
}

func writeTimeline(b *strings.Builder, v wizard.View) {
	if v.Timeline == nil || len(v.Timeline.Events) == 0 {
		return
	}
	b.WriteString("## Timeline\n\n")
	for _, e := range v.Timeline.Events {
		line := fmt.Sprintf("%d. ", e.EventNumber)
		if e.Timestamp != "" {
			line += e.Timestamp + " "
		}
		line += e.Description
		if len(e.SupportingFacts) > 0 {
			line += fmt.Sprintf(" _(%s)_", strings.Join(e.SupportingFacts, ", "))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

func writeRecommendation(b *strings.Builder, v wizard.View) {
	r := v.Recommendation
	if r == nil {
		return
	}
	b.WriteString("## Liability Recommendation\n\n")
	fmt.Fprintf(b, "- Claimant: %d%%\n- Other driver: %d%%\n- Confidence: %.0f%%\n",
		r.ClaimantLiabilityPercent, r.OtherDriverLiabilityPercent, r.Confidence*100)
	if r.Adjusted {
		b.WriteString("- Adjusted by adjuster\n")
	}
	if r.Explanation != "" {
		fmt.Fprintf(b, "\n%s\n", r.Explanation)
	}
	writeList(b, "Key factors", r.KeyFactors)
	writeList(b, "Uncertainties", r.Uncertainties)
	b.WriteString("\n")
}

func writeRationale(b *strings.Builder, v wizard.View) {
	r := v.Rationale
	if r == nil || r.Empty() {
		return
	}
	b.WriteString("## Claim Rationale\n\n")
	writeSection(b, "Incident summary", r.IncidentSummary)
	writeSection(b, "Narratives", r.EvidenceOverview.Narratives)
	writeSection(b, "Photos", r.EvidenceOverview.Photos)
	writeSection(b, "Liability assessment", r.LiabilityAssessmentLogic)
	writeList(b, "Key evidence", r.KeyEvidence)
	writeList(b, "Open questions", r.OpenQuestions)
	writeSection(b, "Coverage considerations", r.CoverageConsiderations)
	writeSection(b, "Recommendation", r.Recommendation)
	if len(r.Images) > 0 {
		fmt.Fprintf(b, "\n_%d supporting images attached in the JSON export._\n", len(r.Images))
	}
	b.WriteString("\n")
}

func writeEvidence(b *strings.Builder, v wizard.View) {
	e := v.Evidence
	if e == nil {
		return
	}
	b.WriteString("## Evidence Completeness\n\n")
	for _, name := range sortedKeys(e.Checks) {
		c := e.Checks[name]
		fmt.Fprintf(b, "- %s: %s", name, c.Status)
		if c.Details != "" {
			fmt.Fprintf(b, " (%s)", c.Details)
		}
		b.WriteString("\n")
	}
	for _, m := range e.MissingEvidence {
		fmt.Fprintf(b, "- Missing: %s", m.EvidenceNeeded)
		if m.Priority != "" {
			fmt.Fprintf(b, " [%s]", m.Priority)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeEscalation(b *strings.Builder, v wizard.View) {
	e := v.Escalation
	if e == nil {
		return
	}
	b.WriteString("## Escalation Package\n\n")
	writeSection(b, "Executive summary", e.ExecutiveSummary)
	if len(e.TopRisks) > 0 {
		b.WriteString("\n**Top risks**\n\n")
		for _, r := range e.TopRisks {
			fmt.Fprintf(b, "- [%s] %s", r.Severity, r.Risk)
			if r.Impact != "" {
				fmt.Fprintf(b, ": %s", r.Impact)
			}
			b.WriteString("\n")
		}
	}
	writeList(b, "Supervisor decisions", e.NeededSupervisorDecisions)
	writeList(b, "Adjuster actions", e.RecommendedAdjusterActions)
	b.WriteString("\n")
}

func writeSection(b *strings.Builder, title, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n%s\n", title, text)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// cell makes text safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
