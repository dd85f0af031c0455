package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
)

const systemAnalyst = "You are an auto insurance claims analyst. You work only from the documents and facts you are given and you answer in JSON."

const extractFactsPrompt = `Extract every accident-relevant fact from the claim documents below.

Cover pre-impact actions, directions and orientations, points of impact,
maneuvers, weather and lighting, traffic conditions, timestamps, locations and
facts that are implied rather than stated.

Return {"facts": [...]} where each fact has:
  source_text       exact text from the document
  extracted_fact    the fact as a clear statement
  category          movement | environment | compliance | impact | location | temporal
  confidence        0.0-1.0
  source            fnol | claimant | other_driver | police | repair_estimate | policy
  is_implied        true when inferred
  normalized_value  a short canonical value used to compare sources

Documents:
`

const detectConflictsPrompt = `Compare the fact matrix below across sources and list every contradiction:
different values for the same attribute, impact points that do not fit the
described movements, times or locations that cannot all be true.

Return {"conflicts": [...]} where each conflict has:
  fact_description     the attribute in dispute
  sources              sources involved
  conflicting_values   the competing values
  conflict_type        direct_contradiction | inconsistency | temporal_conflict | location_conflict | movement_conflict
  severity             high | medium | low
  explanation          why the values conflict
  recommended_version  the value most likely to be true, copied from conflicting_values
  evidence             why that value is more credible
  value_details        [{value, sources, source_snippets}] one entry per conflicting value
`

const signalsPrompt = `Identify liability signals in the fact matrix below: traffic control, right
of way, lane position, speed indicators, duty-of-care failures and typical
negligence patterns. Cross-check police notes against driver statements.

Return {"signals": [...]} where each signal has:
  signal_type          traffic_control | right_of_way | duty_of_care | negligence | lane_violation | speed_related
  evidence_text        supporting text from the facts
  impact_on_liability  how the signal moves fault
  severity_score       0.0-1.0
  related_facts        fact descriptions or "Fact N" references
  discrepancies        inconsistencies between the signal and the claimed facts, or ""
`

const timelinePrompt = `Reconstruct the sequence of events leading to the collision from the fact
matrix below. Events run in chronological order and the last one is the impact.

Return {"timeline": [...]} where each event has:
  event_number      1, 2, 3, ...
  description       what happened
  timestamp         time if known, else ""
  supporting_facts  ["Fact N", ...] using the 1-based fact numbers below
`

const recommendationPrompt = `Recommend a liability split between the claimant and the other driver using
the fact matrix and liability signals below. Apply comparative negligence and
make the two percentages sum to 100.

Return {
  "claimant_liability_percent": 0-100,
  "other_driver_liability_percent": 0-100,
  "explanation": "reasoning",
  "key_factors": ["..."],
  "confidence": 0.0-1.0,
  "uncertainties": ["..."]
}
`

const rationalePrompt = `Write an audit-ready adjuster rationale for this claim. Summarize the facts,
tie the liability signals into the reasoning and call out uncertain evidence.
Keep a professional tone and no filler.

Return {
  "incident_summary": "...",
  "evidence_overview": {"narratives": "...", "photos": "..."},
  "liability_assessment_logic": "...",
  "key_evidence": ["..."],
  "open_questions": ["..."],
  "coverage_considerations": "...",
  "recommendation": "next step for the claim, not a percentage"
}
`

const evidencePrompt = `Check the claim file below for a complete evidence package: incident photos,
vehicle damage from several angles, a police report with officer details,
timestamps and location data, complete driver statements and document metadata.

Return {
  "checks": {
    "turn_by_turn_photos":   {"present": bool, "status": "complete|partial|missing", "details": "..."},
    "vehicle_damage_angles": {...},
    "police_report":         {...},
    "timestamps_location":   {...},
    "driver_statements":     {...},
    "document_metadata":     {...}
  },
  "missing_evidence": [
    {"evidence_needed": "...", "why_it_matters": "...", "suggested_follow_up": "...", "priority": "high|medium|low"}
  ]
}
`

const escalationPrompt = `Prepare a supervisor escalation packet for this claim: why it needs review,
the key risk drivers, evidence gaps, conflicting statements and policy
concerns. A supervisor should be able to read it in seconds.

Return {
  "executive_summary": "...",
  "top_5_risks": [{"risk": "...", "severity": "high|medium|low", "impact": "..."}],
  "needed_supervisor_decisions": ["..."],
  "recommended_adjuster_actions": ["..."]
}
`

// formatFacts renders facts as the numbered matrix the prompts refer to.
func formatFacts(facts []model.Fact) string {
	var b strings.Builder
	b.WriteString("\nFact Matrix:\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "\nFact %d:\n", i+1)
		fmt.Fprintf(&b, "  Source Text: %s\n", orNA(f.SourceText))
		fmt.Fprintf(&b, "  Extracted Fact: %s\n", orNA(f.ExtractedFact))
		fmt.Fprintf(&b, "  Category: %s\n", orNA(f.Category))
		fmt.Fprintf(&b, "  Source: %s\n", orNA(f.Source))
		if f.Confidence != nil {
			fmt.Fprintf(&b, "  Confidence: %.2f\n", *f.Confidence)
		}
		if f.NormalizedValue != "" {
			fmt.Fprintf(&b, "  Normalized Value: %s\n", f.NormalizedValue)
		}
		if f.IsImplied {
			b.WriteString("  Is Implied: true\n")
		}
		if f.Resolved {
			fmt.Fprintf(&b, "  Confirmed By Adjuster: %s\n", f.ResolvedValue)
		}
	}
	return b.String()
}

func formatSignals(signals []model.Signal) string {
	var b strings.Builder
	b.WriteString("\nLiability Signals:\n")
	if len(signals) == 0 {
		b.WriteString("\nNo liability signals provided.\n")
		return b.String()
	}
	for i, s := range signals {
		fmt.Fprintf(&b, "\nSignal %d:\n", i+1)
		fmt.Fprintf(&b, "  Signal Type: %s\n", orNA(s.SignalType))
		fmt.Fprintf(&b, "  Evidence Text: %s\n", orNA(s.EvidenceText))
		fmt.Fprintf(&b, "  Impact on Liability: %s\n", orNA(s.ImpactOnLiability))
		fmt.Fprintf(&b, "  Severity Score: %.2f\n", s.SeverityScore)
	}
	return b.String()
}

func formatRecommendation(rec *model.Recommendation) string {
	if rec == nil {
		return ""
	}
	return fmt.Sprintf("\nLiability Split: claimant %d%%, other driver %d%%\nReasoning: %s\n",
		rec.ClaimantLiabilityPercent, rec.OtherDriverLiabilityPercent, orNA(rec.Explanation))
}

// formatDocuments renders document text and returns the images to attach.
func formatDocuments(files []model.UploadedFile) (string, []string) {
	var b strings.Builder
	var images []string
	for _, f := range files {
		fmt.Fprintf(&b, "\n--- Document: %s (Source: %s) ---\n", f.Filename, documentSource(f))
		switch f.Type {
		case model.FileTypeImage:
			if f.Data != "" {
				images = append(images, f.Data)
				fmt.Fprintf(&b, "\nThis is an image file: %s\n", f.Filename)
			}
		default:
			for _, page := range f.Pages {
				if text := strings.TrimSpace(page.Text); text != "" {
					fmt.Fprintf(&b, "\nPage %d:\n%s\n", page.PageNumber, text)
				}
				for _, img := range page.Images {
					if img.Data != "" {
						images = append(images, img.Data)
					}
				}
			}
		}
	}
	return b.String(), images
}

// formatInventory lists what the claim file holds without full text.
func formatInventory(files []model.UploadedFile) string {
	var b strings.Builder
	b.WriteString("\nClaim File:\n")
	for _, f := range files {
		images := 0
		for _, p := range f.Pages {
			images += len(p.Images)
		}
		if f.Type == model.FileTypeImage {
			images++
		}
		fmt.Fprintf(&b, "\n- %s (type %s, source %s, %d pages, %d images)\n", f.Filename, f.Type, documentSource(f), len(f.Pages), images)
		text := f.Text()
		if len(text) > 600 {
			text = text[:600] + "..."
		}
		if strings.TrimSpace(text) != "" {
			fmt.Fprintf(&b, "  Excerpt: %s\n", strings.Join(strings.Fields(text), " "))
		}
	}
	return b.String()
}

func documentSource(f model.UploadedFile) string {
	if f.DetectedSource != "" {
		return f.DetectedSource
	}
	return model.IdentifySource(f.Key())
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
