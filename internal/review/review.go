// Package review drives a claim through the wizard without a user, for the
// review and batch commands.
package review

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ppiankov/claimdesk/internal/intake"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

// ErrNeedsAdjuster is returned when conflicts remain that only an adjuster
// can resolve. The returned view still carries the fact matrix.
var ErrNeedsAdjuster = errors.New("conflicts need adjuster review")

// Options selects what an unattended review does
type Options struct {
	// AcceptRecommended resolves each conflict with the backend's
	// recommended version when it is one of the candidate values.
	AcceptRecommended bool
	Evidence          bool
	Rationale         bool
}

// Runner reviews claim folders end to end
type Runner struct {
	backend wizard.Backend
	wizOpts wizard.Options
	opts    Options
	log     *logging.Logger
}

// NewRunner creates a runner. Signal analysis is run inline, so any
// Schedule in wizOpts is replaced.
func NewRunner(backend wizard.Backend, wizOpts wizard.Options, opts Options) *Runner {
	log := wizOpts.Logger
	if log == nil {
		log = logging.Nop()
	}
	wizOpts.Schedule = func(time.Duration, func()) {}
	wizOpts.Events = nil
	return &Runner{backend: backend, wizOpts: wizOpts, opts: opts, log: log}
}

// Review loads every supported document in dir and reviews them as one claim.
func (r *Runner) Review(ctx context.Context, dir string) (*wizard.View, error) {
	files, skipped, err := intake.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		r.log.Warn("skipping document", "dir", dir, "file", s.Name, "error", s.Err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no supported documents", dir)
	}
	return r.ReviewFiles(ctx, filepath.Base(filepath.Clean(dir)), files)
}

// ReviewFiles runs a session named id over files: extraction, conflict
// resolution, signals, timeline, recommendation and optionally the rationale.
// The view is returned with any error so partial results can be reported.
func (r *Runner) ReviewFiles(ctx context.Context, id string, files []model.UploadedFile) (*wizard.View, error) {
	ctrl := wizard.NewController(id, r.backend, r.wizOpts)
	defer ctrl.Close()
	log := r.log.With("claim", id)

	for _, f := range files {
		if err := ctrl.AddFile(f); err != nil {
			return viewOf(ctrl), fmt.Errorf("add %s: %w", f.Filename, err)
		}
	}

	if r.opts.Evidence {
		if _, err := ctrl.CheckEvidence(ctx); err != nil {
			log.Warn("evidence check failed", "error", err)
		}
	}

	if err := ctrl.Next(ctx); err != nil {
		return viewOf(ctrl), fmt.Errorf("extract facts: %w", err)
	}

	if err := r.resolve(ctx, ctrl); err != nil {
		return viewOf(ctrl), err
	}

	if _, err := ctrl.AnalyzeSignals(ctx); err != nil {
		var v *wizard.ValidationError
		if !errors.As(err, &v) {
			log.Warn("liability signal analysis failed", "error", err)
		}
	}

	if err := ctrl.Next(ctx); err != nil {
		return viewOf(ctrl), fmt.Errorf("timeline: %w", err)
	}
	if err := ctrl.Next(ctx); err != nil {
		return viewOf(ctrl), fmt.Errorf("recommendation: %w", err)
	}
	if r.opts.Rationale {
		if err := ctrl.Next(ctx); err != nil {
			return viewOf(ctrl), fmt.Errorf("rationale: %w", err)
		}
	}

	v := ctrl.View()
	log.Info("claim reviewed", "facts", len(v.Facts), "conflicts", len(v.Conflicts), "step", v.CurrentStep)
	return &v, nil
}

// resolve accepts recommended versions where allowed and reports whether any
// conflict is left open.
func (r *Runner) resolve(ctx context.Context, ctrl *wizard.Controller) error {
	v := ctrl.View()
	if v.AllResolved {
		return nil
	}
	if r.opts.AcceptRecommended {
		for _, i := range v.Unresolved {
			c := v.Conflicts[i]
			idx, value, ok := RecommendedVariant(c.Conflict)
			if !ok {
				continue
			}
			if _, err := ctrl.AcceptConflict(ctx, c.Index, idx, value); err != nil {
				return fmt.Errorf("accept conflict %d: %w", c.Index, err)
			}
		}
	}
	if !ctrl.View().AllResolved {
		return ErrNeedsAdjuster
	}
	return nil
}

// RecommendedVariant finds the candidate value matching the conflict's
// recommended version.
func RecommendedVariant(c model.Conflict) (int, string, bool) {
	want := model.Fold(c.RecommendedVersion)
	if want == "" {
		return 0, "", false
	}
	for i, v := range c.Variants() {
		if model.Fold(v) == want {
			return i, v, true
		}
	}
	return 0, "", false
}

func viewOf(ctrl *wizard.Controller) *wizard.View {
	v := ctrl.View()
	return &v
}
