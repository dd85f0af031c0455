package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimdesk/internal/gate"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/matrix"
	"github.com/ppiankov/claimdesk/internal/model"
)

// DefaultSignalDelay is the pause between a clean extraction and the
// automatic liability signal analysis.
const DefaultSignalDelay = 500 * time.Millisecond

// Options configures a Controller
type Options struct {
	Gate        gate.Options
	Resolver    matrix.Options
	SignalDelay time.Duration
	Timelines   TimelineStore    // optional
	Decisions   DecisionRecorder // optional
	Logger      *logging.Logger
	Events      *EventBus

	// Schedule runs f after d. Defaults to time.AfterFunc.
	Schedule func(d time.Duration, f func())
	Now      func() time.Time
}

// ticket tags a backend request with the generations it was issued under.
type ticket struct {
	nav   uint64
	facts uint64
	files uint64
}

// Controller sequences one claim review session through the wizard steps.
//
// All session state sits behind mu. Backend calls run without the lock held;
// their results are applied only if the session has not moved on since the
// call was issued.
type Controller struct {
	id       string
	backend  Backend
	gate     *gate.Gate
	opts     Options
	log      *logging.Logger
	events   *EventBus
	schedule func(time.Duration, func())
	now      func() time.Time

	mu             sync.Mutex
	createdAt      time.Time
	files          map[string]model.UploadedFile
	fileOrder      []string
	store          *matrix.Store
	resolver       *matrix.Resolver
	completion     model.StepCompletion
	signals        []model.Signal
	timeline       *model.Timeline
	recommendation *model.Recommendation
	rationale      *model.Rationale
	evidence       *model.EvidenceReport
	escalation     *model.EscalationPackage
	escalated      bool
	current        model.Step
	pendingAck     bool
	inFlight       map[Operation]bool
	rerunSignals   bool

	navGen   uint64
	factsGen uint64
	filesGen uint64
}

// NewController creates a session on the files step.
func NewController(id string, backend Backend, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Events == nil {
		opts.Events = NewEventBus(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolver.Now == nil {
		opts.Resolver.Now = opts.Now
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}

	store := matrix.NewStore()
	return &Controller{
		id:        id,
		backend:   backend,
		gate:      gate.NewGate(opts.Gate),
		opts:      opts,
		log:       opts.Logger.With("session", id),
		events:    opts.Events,
		schedule:  opts.Schedule,
		now:       opts.Now,
		createdAt: opts.Now(),
		files:     make(map[string]model.UploadedFile),
		store:     store,
		resolver:  matrix.NewResolver(store, opts.Resolver),
		current:   model.StepFiles,
		inFlight:  make(map[Operation]bool),
	}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Events returns the bus the session publishes on.
func (c *Controller) Events() *EventBus {
	return c.events
}

// Close releases event subscribers.
func (c *Controller) Close() {
	c.events.Close()
}

// AddFile stores an uploaded file under its key, replacing any earlier file
// with the same key.
func (c *Controller) AddFile(file model.UploadedFile) error {
	if strings.TrimSpace(file.Filename) == "" {
		return invalid(CodeInvalidFile, "File name is required.")
	}
	if file.Type == "" {
		return invalid(CodeInvalidFile, "File type is required for %s.", file.Filename)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := file.Key()
	if _, ok := c.files[key]; !ok {
		c.fileOrder = append(c.fileOrder, key)
	}
	c.files[key] = file
	c.filesGen++
	c.publishLocked(Event{Type: EventFilesChanged, Data: key})
	return nil
}

// Files returns the uploaded files in upload order.
func (c *Controller) Files() []model.UploadedFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filesLocked()
}

// Next moves forward one step, triggering the backend calls that step needs.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	switch cur {
	case model.StepFiles:
		return c.enterFactMatrix(ctx)
	case model.StepFactMatrix:
		return c.enterTimeline(ctx)
	case model.StepTimeline:
		return c.enterRecommendation(ctx)
	case model.StepLiabilityRecommendation:
		return c.enterRationale(ctx)
	default:
		return invalid(CodeNoNextStep, "There is no step after %s.", cur.Definition().Name)
	}
}

// Previous moves back one step.
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	if !c.gate.CanRetreat(cur) {
		return invalid(CodeNoPreviousStep, "There is no step before %s.", cur.Definition().Name)
	}
	return c.GoTo(ctx, model.Steps[model.StepIndex(cur)-1].ID)
}

// GoTo jumps to step if it is accessible or already completed. A locked step
// is refused and the session stays where it is.
func (c *Controller) GoTo(ctx context.Context, step model.Step) error {
	if model.StepIndex(step) < 0 {
		return invalid(CodeUnknownStep, "Unknown step %q.", step)
	}

	c.mu.Lock()
	snap := c.snapshotLocked()
	if !c.gate.CanEnter(snap, step) {
		c.mu.Unlock()
		return blockError(c.gate.BlockReason(snap, step))
	}
	c.setStepLocked(step)
	restore := step == model.StepTimeline && c.timeline == nil && c.opts.Timelines != nil
	c.mu.Unlock()

	if restore {
		c.restoreTimeline(ctx)
	}
	return nil
}

// enterFactMatrix extracts facts unless that already happened, then switches
// to the fact matrix.
func (c *Controller) enterFactMatrix(ctx context.Context) error {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return invalid(CodeNoFiles, "Please upload at least one file first.")
	}
	if c.completion.FactsExtracted && c.store.Loaded() {
		c.setStepLocked(model.StepFactMatrix)
		analyze := !c.completion.LiabilitySignals && c.resolver.AllResolved()
		c.mu.Unlock()
		if analyze {
			c.scheduleSignals(0)
		}
		return nil
	}
	c.mu.Unlock()

	return c.extract(ctx)
}

// Reextract re-runs fact extraction over the current files. Accepted
// resolutions are carried over and re-applied to the new facts.
func (c *Controller) Reextract(ctx context.Context) error {
	return c.extract(ctx)
}

func (c *Controller) extract(ctx context.Context) error {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return invalid(CodeNoFiles, "Please upload at least one file first.")
	}
	if err := c.beginLocked(OpExtractFacts); err != nil {
		c.mu.Unlock()
		return err
	}
	t := c.ticketLocked()
	files := c.filesLocked()
	c.mu.Unlock()
	defer c.end(OpExtractFacts)

	res, err := c.backend.ExtractFacts(ctx, files)
	if err == nil && res == nil {
		err = errors.New("empty extraction result")
	}
	if err != nil {
		return c.fail(OpExtractFacts, err)
	}

	c.mu.Lock()
	if t.nav != c.navGen || t.files != c.filesGen {
		c.mu.Unlock()
		c.log.Debug("discarding stale extraction")
		return ErrStale
	}
	c.store.Load(res.Facts, res.Conflicts)
	reapplied := c.resolver.ReapplyAccepted()
	c.completion.FactsExtracted = true
	c.completion.LiabilitySignals = false
	c.signals = nil
	c.factsGen++
	c.setStepLocked(model.StepFactMatrix)
	resolved := c.resolver.AllResolved()
	c.publishLocked(Event{Type: EventFactsLoaded, Data: map[string]int{
		"facts":     len(res.Facts),
		"conflicts": len(res.Conflicts),
		"reapplied": len(reapplied),
	}})
	c.mu.Unlock()

	c.log.Info("facts extracted", "facts", len(res.Facts), "conflicts", len(res.Conflicts))
	if resolved {
		c.scheduleSignals(c.signalDelay())
	}
	return nil
}

// AnalyzeSignals runs liability signal analysis over the current facts.
func (c *Controller) AnalyzeSignals(ctx context.Context) ([]model.Signal, error) {
	return c.analyzeSignals(ctx, false)
}

// analyzeSignals with coalesce set turns a collision with a running analysis
// into a rerun once that analysis ends.
func (c *Controller) analyzeSignals(ctx context.Context, coalesce bool) ([]model.Signal, error) {
	c.mu.Lock()
	if !c.store.HasAtLeastOneFact() {
		c.mu.Unlock()
		return nil, invalid(CodeNoFacts, "Please extract facts first.")
	}
	if err := c.beginLocked(OpAnalyzeSignals); err != nil {
		if coalesce {
			c.rerunSignals = true
		}
		c.mu.Unlock()
		return nil, err
	}
	t := c.ticketLocked()
	facts := c.store.Facts()
	c.mu.Unlock()
	defer c.endSignals()

	signals, err := c.backend.AnalyzeLiabilitySignals(ctx, facts)
	if err != nil {
		return nil, c.fail(OpAnalyzeSignals, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.facts != c.factsGen {
		return nil, ErrStale
	}
	c.signals = append([]model.Signal(nil), signals...)
	c.completion.LiabilitySignals = true
	c.publishLocked(Event{Type: EventSignalsUpdated, Data: len(signals)})
	return append([]model.Signal(nil), signals...), nil
}

// scheduleSignals queues a background signal analysis. A request arriving
// while one is running is coalesced into a single rerun.
func (c *Controller) scheduleSignals(delay time.Duration) {
	c.schedule(delay, func() {
		_, err := c.analyzeSignals(context.Background(), true)
		switch {
		case err == nil, errors.Is(err, ErrStale), errors.Is(err, ErrInFlight):
		default:
			c.log.Warn("liability signal analysis failed", "error", err)
		}
	})
}

func (c *Controller) endSignals() {
	c.mu.Lock()
	delete(c.inFlight, OpAnalyzeSignals)
	c.publishLocked(Event{Type: EventOperationFinished, Operation: OpAnalyzeSignals})
	rerun := c.rerunSignals
	c.rerunSignals = false
	c.mu.Unlock()

	if rerun {
		c.scheduleSignals(0)
	}
}

// enterTimeline generates the timeline and the liability recommendation side
// by side. Only a timeline failure keeps the session on the fact matrix.
func (c *Controller) enterTimeline(ctx context.Context) error {
	c.mu.Lock()
	snap := c.snapshotLocked()
	switch block := c.gate.BlockReason(snap, model.StepTimeline); block {
	case gate.BlockNone:
	case gate.BlockUnresolvedConflicts:
		c.mu.Unlock()
		return invalid(CodeUnresolvedConflicts, "Please resolve conflicts before proceeding.")
	default:
		c.mu.Unlock()
		return blockError(block)
	}
	if err := c.beginLocked(OpGenerateTimeline); err != nil {
		c.mu.Unlock()
		return err
	}
	withRec := c.beginLocked(OpRecommendation) == nil
	t := c.ticketLocked()
	facts := c.store.Facts()
	signals := append([]model.Signal(nil), c.signals...)
	c.mu.Unlock()

	var (
		g        errgroup.Group
		timeline *model.Timeline
		rec      *model.Recommendation
		recErr   error
	)
	g.Go(func() error {
		tl, err := c.backend.GenerateTimeline(ctx, facts)
		if err == nil && tl == nil {
			err = errors.New("no timeline received")
		}
		if err != nil {
			return err
		}
		timeline = tl
		return nil
	})
	if withRec {
		g.Go(func() error {
			rec, recErr = c.backend.GetLiabilityRecommendation(ctx, facts, signals)
			return nil
		})
	}
	err := g.Wait()

	c.end(OpGenerateTimeline)
	if withRec {
		c.end(OpRecommendation)
	}
	if recErr != nil {
		c.log.Warn("liability recommendation failed", "error", recErr)
	}

	c.mu.Lock()
	if t.nav != c.navGen || t.facts != c.factsGen {
		c.mu.Unlock()
		if err != nil {
			return c.fail(OpGenerateTimeline, err)
		}
		return ErrStale
	}
	if rec != nil {
		c.applyRecommendationLocked(rec)
	}
	if err != nil {
		c.mu.Unlock()
		return c.fail(OpGenerateTimeline, err)
	}
	c.timeline = timeline
	c.setStepLocked(model.StepTimeline)
	c.publishLocked(Event{Type: EventTimelineUpdated, Data: len(timeline.Events)})
	saved := cloneTimeline(timeline)
	c.mu.Unlock()

	c.persistTimeline(ctx, *saved)
	return nil
}

// enterRecommendation shows the stored recommendation, generating it first
// when the parallel call at the timeline step did not produce one.
func (c *Controller) enterRecommendation(ctx context.Context) error {
	c.mu.Lock()
	if c.recommendation != nil {
		c.setStepLocked(model.StepLiabilityRecommendation)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if _, err := c.GenerateRecommendation(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStepLocked(model.StepLiabilityRecommendation)
	return nil
}

// GenerateRecommendation asks the backend for a liability split.
func (c *Controller) GenerateRecommendation(ctx context.Context) (*model.Recommendation, error) {
	c.mu.Lock()
	if !c.store.HasAtLeastOneFact() {
		c.mu.Unlock()
		return nil, invalid(CodeNoFacts, "Please extract facts first.")
	}
	if err := c.beginLocked(OpRecommendation); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	t := c.ticketLocked()
	facts := c.store.Facts()
	signals := append([]model.Signal(nil), c.signals...)
	c.mu.Unlock()
	defer c.end(OpRecommendation)

	rec, err := c.backend.GetLiabilityRecommendation(ctx, facts, signals)
	if err == nil && rec == nil {
		err = errors.New("no recommendation received")
	}
	if err != nil {
		return nil, c.fail(OpRecommendation, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.nav != c.navGen || t.facts != c.factsGen {
		return nil, ErrStale
	}
	c.applyRecommendationLocked(rec)
	out := *c.recommendation
	return &out, nil
}

func (c *Controller) applyRecommendationLocked(rec *model.Recommendation) {
	r := *rec
	r.Normalize()
	c.recommendation = &r
	c.publishLocked(Event{Type: EventRecommendationUpdated, Data: r.ClaimantLiabilityPercent})
}

// AdjustRecommendation overrides the claimant share; the other driver gets
// the remainder.
func (c *Controller) AdjustRecommendation(claimantPercent int) (model.Recommendation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recommendation == nil {
		return model.Recommendation{}, invalid(CodeNoRecommendation, "No liability recommendation to adjust.")
	}
	c.recommendation.SetClaimantPercent(claimantPercent)
	c.publishLocked(Event{Type: EventRecommendationUpdated, Data: c.recommendation.ClaimantLiabilityPercent})
	return *c.recommendation, nil
}

// enterRationale switches to the last step and drafts the rationale there.
func (c *Controller) enterRationale(ctx context.Context) error {
	c.mu.Lock()
	snap := c.snapshotLocked()
	if !c.gate.CanEnter(snap, model.StepClaimRationale) {
		c.mu.Unlock()
		return blockError(c.gate.BlockReason(snap, model.StepClaimRationale))
	}
	c.setStepLocked(model.StepClaimRationale)
	c.mu.Unlock()

	_, err := c.GenerateRationale(ctx)
	return err
}

// GenerateRationale drafts the claim rationale from the current session.
func (c *Controller) GenerateRationale(ctx context.Context) (*model.Rationale, error) {
	c.mu.Lock()
	if !c.store.HasAtLeastOneFact() {
		c.mu.Unlock()
		return nil, invalid(CodeNoFacts, "Please extract facts first.")
	}
	if err := c.beginLocked(OpGenerateRationale); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	t := c.ticketLocked()
	req := model.RationaleRequest{
		Facts:   c.store.Facts(),
		Signals: append([]model.Signal(nil), c.signals...),
		Files:   c.filesLocked(),
	}
	if c.recommendation != nil {
		rec := *c.recommendation
		req.Recommendation = &rec
	}
	c.mu.Unlock()
	defer c.end(OpGenerateRationale)

	r, err := c.backend.GenerateClaimRationale(ctx, req)
	if err == nil && r == nil {
		err = errors.New("no rationale received")
	}
	if err != nil {
		return nil, c.fail(OpGenerateRationale, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.nav != c.navGen || t.facts != c.factsGen {
		return nil, ErrStale
	}
	out := *r
	c.rationale = &out
	c.publishLocked(Event{Type: EventRationaleUpdated})
	return r, nil
}

// EditRationale replaces the drafted rationale with the adjuster's edit.
// Images are kept when the edit carries none.
func (c *Controller) EditRationale(r model.Rationale) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rationale == nil {
		return invalid(CodeNoRationale, "No claim rationale to edit.")
	}
	if len(r.Images) == 0 {
		r.Images = c.rationale.Images
	}
	c.rationale = &r
	c.publishLocked(Event{Type: EventRationaleUpdated})
	return nil
}

// AcceptConflict records value as the resolution of conflict index and
// propagates it to the facts. Resolving the last open conflict re-runs signal
// analysis and raises a one-time acknowledgement.
func (c *Controller) AcceptConflict(ctx context.Context, index, variantIndex int, value string) (matrix.AcceptResult, error) {
	if strings.TrimSpace(value) == "" {
		return matrix.AcceptResult{}, invalid(CodeInvalidValue, "Accepted value must not be empty.")
	}

	c.mu.Lock()
	res, err := c.resolver.Accept(index, variantIndex, value)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, matrix.ErrConflictNotFound) {
			return matrix.AcceptResult{}, invalid(CodeConflictNotFound, "Conflict %d not found.", index)
		}
		return matrix.AcceptResult{}, err
	}
	c.factsGen++
	conflict, _ := c.store.Conflict(index)
	c.publishLocked(Event{Type: EventConflictAccepted, Data: res})
	if res.ResolvedAll {
		c.pendingAck = true
		c.publishLocked(Event{Type: EventAllResolved, Message: "All conflicts resolved. Liability signals are being refreshed."})
	}
	c.mu.Unlock()

	c.log.Info("conflict accepted", "conflict", index, "variant", variantIndex, "updated_facts", len(res.UpdatedFacts))
	c.recordDecision(ctx, conflict, res)
	if res.ResolvedAll {
		c.scheduleSignals(c.signalDelay())
	}
	return res, nil
}

// Acknowledge clears the all-resolved prompt.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingAck = false
}

func (c *Controller) recordDecision(ctx context.Context, conflict model.Conflict, res matrix.AcceptResult) {
	if c.opts.Decisions == nil {
		return
	}
	d := model.Decision{
		SessionID:       c.id,
		ConflictIndex:   res.ConflictIndex,
		FactDescription: conflict.FactDescription,
		Sources:         conflict.Sources,
		Value:           res.Accepted.Value,
		VariantIndex:    res.Accepted.VariantIndex,
		UpdatedFacts:    len(res.UpdatedFacts),
		AcceptedAt:      res.Accepted.Timestamp,
	}
	if err := c.opts.Decisions.RecordDecision(ctx, d); err != nil {
		c.log.Warn("failed to record decision", "conflict", res.ConflictIndex, "error", err)
	}
}

// CheckEvidence runs the evidence completeness check over the uploaded files.
func (c *Controller) CheckEvidence(ctx context.Context) (*model.EvidenceReport, error) {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return nil, invalid(CodeNoFiles, "Please upload at least one file first.")
	}
	if err := c.beginLocked(OpCheckEvidence); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	t := c.ticketLocked()
	files := c.filesLocked()
	c.mu.Unlock()
	defer c.end(OpCheckEvidence)

	report, err := c.backend.CheckEvidenceCompleteness(ctx, files)
	if err == nil && report == nil {
		err = errors.New("no evidence report received")
	}
	if err != nil {
		return nil, c.fail(OpCheckEvidence, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.files != c.filesGen {
		return nil, ErrStale
	}
	out := *report
	c.evidence = &out
	c.completion.EvidenceComplete = true
	c.publishLocked(Event{Type: EventEvidenceUpdated, Data: len(report.MissingEvidence)})
	return report, nil
}

// GenerateEscalation builds the supervisor escalation package. An existing
// package is returned as is.
func (c *Controller) GenerateEscalation(ctx context.Context) (*model.EscalationPackage, error) {
	c.mu.Lock()
	if c.escalated {
		c.mu.Unlock()
		return nil, invalid(CodeAlreadyEscalated, "This claim was already escalated to a supervisor.")
	}
	if c.escalation != nil {
		out := *c.escalation
		c.mu.Unlock()
		return &out, nil
	}
	if !c.store.HasAtLeastOneFact() {
		c.mu.Unlock()
		return nil, invalid(CodeNoFacts, "Please extract facts first before generating escalation package.")
	}
	if len(c.signals) == 0 {
		c.mu.Unlock()
		return nil, invalid(CodeNoSignals, "Please analyze liability signals first before generating escalation package.")
	}
	if err := c.beginLocked(OpEscalation); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	t := c.ticketLocked()
	req := model.EscalationRequest{
		Facts:   c.store.Facts(),
		Signals: append([]model.Signal(nil), c.signals...),
	}
	c.mu.Unlock()
	defer c.end(OpEscalation)

	pkg, err := c.backend.GenerateEscalationPackage(ctx, req)
	if err == nil && pkg == nil {
		err = errors.New("no escalation package received")
	}
	if err != nil {
		return nil, c.fail(OpEscalation, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.facts != c.factsGen {
		return nil, ErrStale
	}
	out := *pkg
	c.escalation = &out
	c.publishLocked(Event{Type: EventEscalationUpdated})
	return pkg, nil
}

// SendToSupervisor marks the claim escalated. An edited package replaces the
// generated one.
func (c *Controller) SendToSupervisor(edited *model.EscalationPackage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.escalated {
		return invalid(CodeAlreadyEscalated, "This claim was already escalated to a supervisor.")
	}
	if edited != nil {
		pkg := *edited
		c.escalation = &pkg
	}
	if c.escalation == nil {
		return invalid(CodeNoFacts, "Generate the escalation package first.")
	}
	c.escalated = true
	c.publishLocked(Event{Type: EventEscalationUpdated, Message: "Sent"})
	return nil
}

// EditTimelineEvent changes the description of event index.
func (c *Controller) EditTimelineEvent(index int, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeline == nil {
		return invalid(CodeNoTimeline, "No timeline data to edit.")
	}
	if index < 0 || index >= len(c.timeline.Events) {
		return invalid(CodeInvalidEvent, "Timeline event %d not found.", index)
	}
	c.timeline.Events[index].Description = description
	c.timeline.Events[index].Edited = true
	c.publishLocked(Event{Type: EventTimelineUpdated, Data: len(c.timeline.Events)})
	return nil
}

// MoveTimelineEvent swaps event index with its neighbour in direction "up"
// or "down" and renumbers the timeline.
func (c *Controller) MoveTimelineEvent(index int, direction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeline == nil {
		return invalid(CodeNoTimeline, "No timeline data to edit.")
	}
	events := c.timeline.Events
	if index < 0 || index >= len(events) {
		return invalid(CodeInvalidEvent, "Timeline event %d not found.", index)
	}

	var target int
	switch direction {
	case "up":
		target = index - 1
	case "down":
		target = index + 1
	default:
		return invalid(CodeInvalidEvent, "Unknown direction %q.", direction)
	}
	if target < 0 || target >= len(events) {
		return invalid(CodeInvalidEvent, "Timeline event %d cannot move %s.", index, direction)
	}

	events[index], events[target] = events[target], events[index]
	c.timeline.Renumber()
	c.publishLocked(Event{Type: EventTimelineUpdated, Data: len(events)})
	return nil
}

// SaveTimeline persists the current timeline.
func (c *Controller) SaveTimeline(ctx context.Context) error {
	c.mu.Lock()
	if c.timeline == nil {
		c.mu.Unlock()
		return invalid(CodeNoTimeline, "No timeline data to save.")
	}
	t := cloneTimeline(c.timeline)
	c.mu.Unlock()

	if c.opts.Timelines == nil {
		return nil
	}
	if err := c.opts.Timelines.SaveTimeline(ctx, *t); err != nil {
		return fmt.Errorf("save timeline: %w", err)
	}
	return nil
}

func (c *Controller) persistTimeline(ctx context.Context, t model.Timeline) {
	if c.opts.Timelines == nil {
		return
	}
	if err := c.opts.Timelines.SaveTimeline(ctx, t); err != nil {
		c.log.Warn("failed to persist timeline", "error", err)
	}
}

func (c *Controller) restoreTimeline(ctx context.Context) {
	t, ok, err := c.opts.Timelines.LoadTimeline(ctx)
	if err != nil {
		c.log.Warn("failed to load saved timeline", "error", err)
		return
	}
	if !ok || t == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeline == nil {
		c.timeline = cloneTimeline(t)
		c.publishLocked(Event{Type: EventTimelineUpdated, Data: len(t.Events)})
	}
}

// ExportMatrix returns the fact matrix with its accepted resolutions.
func (c *Controller) ExportMatrix() (matrix.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Loaded() {
		return matrix.Snapshot{}, invalid(CodeNoFacts, "No facts data to export.")
	}
	return c.store.Snapshot(), nil
}

// CurrentStep returns the active step.
func (c *Controller) CurrentStep() model.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) signalDelay() time.Duration {
	if c.opts.SignalDelay > 0 {
		return c.opts.SignalDelay
	}
	return DefaultSignalDelay
}

func (c *Controller) beginLocked(op Operation) error {
	if c.inFlight[op] {
		return ErrInFlight
	}
	c.inFlight[op] = true
	c.publishLocked(Event{Type: EventOperationStarted, Operation: op})
	return nil
}

func (c *Controller) end(op Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, op)
	c.publishLocked(Event{Type: EventOperationFinished, Operation: op})
}

func (c *Controller) fail(op Operation, err error) error {
	ext := &ExternalError{Op: op, Err: err}
	c.log.Error("backend call failed", "operation", op, "error", err)
	c.publish(Event{Type: EventError, Operation: op, Message: ext.UserMessage()})
	return ext
}

func (c *Controller) ticketLocked() ticket {
	return ticket{nav: c.navGen, facts: c.factsGen, files: c.filesGen}
}

func (c *Controller) setStepLocked(step model.Step) {
	if c.current == step {
		return
	}
	c.current = step
	c.navGen++
	c.publishLocked(Event{Type: EventStepChanged})
}

func (c *Controller) filesLocked() []model.UploadedFile {
	out := make([]model.UploadedFile, 0, len(c.fileOrder))
	for _, key := range c.fileOrder {
		out = append(out, c.files[key])
	}
	return out
}

func (c *Controller) snapshotLocked() gate.Snapshot {
	return gate.Snapshot{
		UploadedFiles:     len(c.files),
		Completion:        c.completion,
		HasFacts:          c.store.HasAtLeastOneFact(),
		AllResolved:       c.resolver.AllResolved(),
		HasTimeline:       c.timeline != nil,
		HasRecommendation: c.recommendation != nil,
		HasRationale:      c.rationale != nil,
	}
}

func (c *Controller) publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(e)
}

func (c *Controller) publishLocked(e Event) {
	e.SessionID = c.id
	e.Step = c.current
	e.At = c.now()
	c.events.Publish(e)
}

func blockError(b gate.Block) error {
	code := CodeStepLocked
	switch b {
	case gate.BlockNoFacts:
		code = CodeNoFacts
	case gate.BlockUnresolvedConflicts:
		code = CodeUnresolvedConflicts
	case gate.BlockUnknownStep:
		code = CodeUnknownStep
	}
	return &ValidationError{Code: code, Message: b.Message()}
}

func cloneTimeline(t *model.Timeline) *model.Timeline {
	out := &model.Timeline{Events: make([]model.TimelineEvent, len(t.Events))}
	copy(out.Events, t.Events)
	return out
}
