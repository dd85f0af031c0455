package gate

import "github.com/ppiankov/claimdesk/internal/model"

// Gate derives step completion and accessibility from a session snapshot.
// It holds no session state and has no side effects.
type Gate struct {
	opts Options
}

// NewGate creates a gate with the given options.
func NewGate(opts Options) *Gate {
	return &Gate{opts: opts}
}

// IsStepCompleted reports whether the step's result is present.
func (g *Gate) IsStepCompleted(s Snapshot, step model.Step) bool {
	switch step {
	case model.StepFiles:
		return s.UploadedFiles > 0
	case model.StepFactMatrix:
		return s.Completion.FactsExtracted
	case model.StepTimeline:
		return s.HasTimeline
	case model.StepLiabilityRecommendation:
		return s.HasRecommendation
	case model.StepClaimRationale:
		return s.HasRationale
	default:
		return false
	}
}

// IsStepAccessible reports whether every prerequisite of step is met.
func (g *Gate) IsStepAccessible(s Snapshot, step model.Step) bool {
	return g.BlockReason(s, step) == BlockNone
}

// BlockReason returns the first rule that keeps step locked, or BlockNone.
func (g *Gate) BlockReason(s Snapshot, step model.Step) Block {
	if model.StepIndex(step) < 0 {
		return BlockUnknownStep
	}
	if needsResolvedMatrix(step) {
		if !s.HasFacts {
			return BlockNoFacts
		}
		if !s.AllResolved {
			return BlockUnresolvedConflicts
		}
		if g.opts.RequireEvidence && !s.Completion.EvidenceComplete {
			return BlockEvidenceIncomplete
		}
	}
	for _, req := range step.Requires() {
		if !g.IsStepCompleted(s, req) {
			return BlockPrerequisites
		}
	}
	return BlockNone
}

// CanEnter reports whether a direct jump to step is allowed. Completed steps
// stay reachable even when a later change locks them.
func (g *Gate) CanEnter(s Snapshot, step model.Step) bool {
	return g.IsStepAccessible(s, step) || g.IsStepCompleted(s, step)
}

// CanAdvance reports whether Next is enabled on current.
func (g *Gate) CanAdvance(s Snapshot, current model.Step) bool {
	idx := model.StepIndex(current)
	if idx < 0 || idx >= len(model.Steps)-1 {
		return false
	}

	switch current {
	case model.StepFiles:
		// Next on files triggers extraction, so only the upload matters.
		return s.UploadedFiles > 0
	case model.StepFactMatrix:
		return s.HasFacts
	}
	if revisitable(current) {
		return true
	}
	return g.CanEnter(s, model.Steps[idx+1].ID)
}

// CanRetreat reports whether Previous is enabled on current.
func (g *Gate) CanRetreat(current model.Step) bool {
	return model.StepIndex(current) > 0
}

// Progress returns the share of completed steps as a percentage.
func (g *Gate) Progress(s Snapshot) int {
	done := 0
	for _, def := range model.Steps {
		if g.IsStepCompleted(s, def.ID) {
			done++
		}
	}
	return done * 100 / len(model.Steps)
}

// Indicators returns the display state of every step in order.
func (g *Gate) Indicators(s Snapshot, current model.Step) []StepIndicator {
	out := make([]StepIndicator, 0, len(model.Steps))
	for _, def := range model.Steps {
		state := IndicatorAvailable
		switch {
		case g.IsStepCompleted(s, def.ID):
			state = IndicatorCompleted
		case def.ID == current:
			state = IndicatorActive
		case !g.IsStepAccessible(s, def.ID):
			state = IndicatorLocked
		}
		out = append(out, StepIndicator{Step: def.ID, Name: def.Name, State: state})
	}
	return out
}

func needsResolvedMatrix(step model.Step) bool {
	return step == model.StepTimeline || step == model.StepClaimRationale
}

// revisitable steps keep Next enabled once visited so an ambiguous completion
// flag never traps the user.
func revisitable(step model.Step) bool {
	switch step {
	case model.StepTimeline, model.StepLiabilityRecommendation, model.StepClaimRationale:
		return true
	}
	return false
}
