package gate

import "github.com/ppiankov/claimdesk/internal/model"

// Snapshot is the slice of session state the gate reads
type Snapshot struct {
	UploadedFiles     int
	Completion        model.StepCompletion
	HasFacts          bool
	AllResolved       bool
	HasTimeline       bool
	HasRecommendation bool
	HasRationale      bool
}

// Options tunes gating rules
type Options struct {
	// RequireEvidence makes timeline and claim-rationale wait for a
	// successful evidence completeness check.
	RequireEvidence bool
}

// Indicator is the display state of one step
type Indicator string

const (
	IndicatorCompleted Indicator = "completed"
	IndicatorActive    Indicator = "active"
	IndicatorLocked    Indicator = "locked"
	IndicatorAvailable Indicator = "available"
)

// StepIndicator pairs a step with its display state
type StepIndicator struct {
	Step  model.Step `json:"step"`
	Name  string     `json:"name"`
	State Indicator  `json:"state"`
}

// Block explains why a step cannot be entered
type Block string

const (
	BlockNone                Block = ""
	BlockPrerequisites       Block = "prerequisites"
	BlockNoFacts             Block = "no_facts"
	BlockUnresolvedConflicts Block = "unresolved_conflicts"
	BlockEvidenceIncomplete  Block = "evidence_incomplete"
	BlockUnknownStep         Block = "unknown_step"
)

// Message returns the user-facing text for a block.
func (b Block) Message() string {
	switch b {
	case BlockNoFacts:
		return "Please extract at least one fact before accessing this step."
	case BlockUnresolvedConflicts:
		return "Please resolve all conflicts in the Fact Matrix before accessing this step."
	case BlockEvidenceIncomplete:
		return "Please run the evidence completeness check before accessing this step."
	case BlockPrerequisites:
		return "Please complete the previous steps first."
	case BlockUnknownStep:
		return "Unknown step."
	default:
		return ""
	}
}
