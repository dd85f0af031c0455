package wizard

import (
	"sort"
	"time"

	"github.com/ppiankov/claimdesk/internal/gate"
	"github.com/ppiankov/claimdesk/internal/matrix"
	"github.com/ppiankov/claimdesk/internal/model"
)

// FactView is a fact annotated with its conflict and liability signal
type FactView struct {
	model.Fact
	Index            int           `json:"index"`
	ConflictIndex    *int          `json:"conflict_index,omitempty"`
	ConflictResolved bool          `json:"conflict_resolved,omitempty"`
	Signal           *model.Signal `json:"signal,omitempty"`
}

// ConflictView is a conflict with its resolution state
type ConflictView struct {
	model.Conflict
	Index    int                    `json:"index"`
	Resolved bool                   `json:"resolved"`
	Accepted *model.AcceptedVersion `json:"accepted,omitempty"`
}

// FileView summarizes an uploaded file
type FileView struct {
	Key            string `json:"key"`
	Filename       string `json:"filename"`
	Type           string `json:"type"`
	DetectedSource string `json:"detected_source,omitempty"`
	Pages          int    `json:"pages,omitempty"`
}

// View is a consistent read of the whole session
type View struct {
	ID                     string                   `json:"id"`
	CreatedAt              time.Time                `json:"created_at"`
	CurrentStep            model.Step               `json:"current_step"`
	Steps                  []gate.StepIndicator     `json:"steps"`
	Progress               int                      `json:"progress"`
	CanAdvance             bool                     `json:"can_advance"`
	CanRetreat             bool                     `json:"can_retreat"`
	Completion             model.StepCompletion     `json:"completion"`
	Files                  []FileView               `json:"files"`
	Facts                  []FactView               `json:"facts"`
	Conflicts              []ConflictView           `json:"conflicts"`
	AllResolved            bool                     `json:"all_resolved"`
	Unresolved             []int                    `json:"unresolved,omitempty"` // Conflict indexes awaiting a decision
	Signals                []model.Signal           `json:"signals,omitempty"`
	Timeline               *model.Timeline          `json:"timeline,omitempty"`
	Recommendation         *model.Recommendation    `json:"recommendation,omitempty"`
	Rationale              *model.Rationale         `json:"rationale,omitempty"`
	Evidence               *model.EvidenceReport    `json:"evidence,omitempty"`
	Escalation             *model.EscalationPackage `json:"escalation,omitempty"`
	Escalated              bool                     `json:"escalated"`
	PendingAcknowledgement bool                     `json:"pending_acknowledgement"`
	InFlight               []Operation              `json:"in_flight,omitempty"`
}

// View returns a copy of the session state. Fact/conflict links and gate
// results are computed from the same locked state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snapshotLocked()
	v := View{
		ID:                     c.id,
		CreatedAt:              c.createdAt,
		CurrentStep:            c.current,
		Steps:                  c.gate.Indicators(snap, c.current),
		Progress:               c.gate.Progress(snap),
		CanAdvance:             c.gate.CanAdvance(snap, c.current),
		CanRetreat:             c.gate.CanRetreat(c.current),
		Completion:             c.completion,
		AllResolved:            snap.AllResolved,
		Unresolved:             c.resolver.Unresolved(),
		Signals:                append([]model.Signal(nil), c.signals...),
		Escalated:              c.escalated,
		PendingAcknowledgement: c.pendingAck,
	}

	for _, f := range c.filesLocked() {
		v.Files = append(v.Files, FileView{
			Key:            f.Key(),
			Filename:       f.Filename,
			Type:           f.Type,
			DetectedSource: f.DetectedSource,
			Pages:          len(f.Pages),
		})
	}

	for i, f := range c.store.Facts() {
		fv := FactView{Fact: f, Index: i}
		if m, ok := c.resolver.FindConflictForFact(f); ok {
			idx := m.Index
			fv.ConflictIndex = &idx
			fv.ConflictResolved = m.Resolved
		}
		if s, ok := matrix.SignalForFact(f, c.signals); ok {
			fv.Signal = &s
		}
		v.Facts = append(v.Facts, fv)
	}

	for i, conflict := range c.store.Conflicts() {
		cv := ConflictView{Conflict: conflict, Index: i}
		if a, ok := c.store.AcceptedVersion(i); ok {
			cv.Resolved = true
			cv.Accepted = &a
		}
		v.Conflicts = append(v.Conflicts, cv)
	}

	if c.timeline != nil {
		v.Timeline = cloneTimeline(c.timeline)
	}
	if c.recommendation != nil {
		r := *c.recommendation
		v.Recommendation = &r
	}
	if c.rationale != nil {
		r := *c.rationale
		v.Rationale = &r
	}
	if c.evidence != nil {
		e := *c.evidence
		v.Evidence = &e
	}
	if c.escalation != nil {
		e := *c.escalation
		v.Escalation = &e
	}
	for op := range c.inFlight {
		v.InFlight = append(v.InFlight, op)
	}
	sort.Slice(v.InFlight, func(i, j int) bool { return v.InFlight[i] < v.InFlight[j] })
	return v
}
