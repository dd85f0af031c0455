package wizard

// Operation names an external call the controller makes
type Operation string

const (
	OpExtractFacts      Operation = "extract_facts"
	OpAnalyzeSignals    Operation = "analyze_liability_signals"
	OpGenerateTimeline  Operation = "generate_timeline"
	OpRecommendation    Operation = "get_liability_recommendation"
	OpGenerateRationale Operation = "generate_claim_rationale"
	OpCheckEvidence     Operation = "check_evidence_completeness"
	OpEscalation        Operation = "generate_escalation_package"
)
