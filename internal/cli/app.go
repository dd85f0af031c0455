package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/claimdesk/internal/audit"
	"github.com/ppiankov/claimdesk/internal/backend"
	"github.com/ppiankov/claimdesk/internal/cache"
	"github.com/ppiankov/claimdesk/internal/gate"
	"github.com/ppiankov/claimdesk/internal/llm"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/matrix"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// app holds the long-lived dependencies shared by the commands
type app struct {
	cfg     model.Config
	log     *logging.Logger
	backend wizard.Backend
	wizard  wizard.Options
	audit   *audit.Store
}

// newApp wires logging, the claims backend and the wizard options from cfg.
// withTimelines attaches the timeline cache, which only interactive sessions
// restore from.
func newApp(ctx context.Context, cfg model.Config, withTimelines bool) (*app, error) {
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.backend, err = newBackend(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	matcher, err := matrix.NewMatcher(cfg.Wizard.Matcher, cfg.Wizard.MatchThreshold)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.wizard = wizard.Options{
		Gate: gate.Options{RequireEvidence: cfg.Wizard.RequireEvidence},
		Resolver: matrix.Options{
			Matcher: matcher,
			Snippets: matrix.SnippetPolicy{
				MinLength:    cfg.Wizard.SnippetMinLength,
				PrefixLength: cfg.Wizard.SnippetPrefixLength,
			},
		},
		SignalDelay: cfg.Wizard.SignalDelay,
		Logger:      log,
	}

	if withTimelines {
		c, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			// Timelines still live in the session without the cache.
			log.Warn("timeline cache unavailable", "error", err)
		} else {
			a.wizard.Timelines = cache.NewTimelineStore(c, cfg.Cache.Profile)
		}
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.audit = store
		a.wizard.Decisions = store
	}
	return a, nil
}

// newBackend selects the remote claims service or the in-process LLM backend.
func newBackend(cfg model.Config, log *logging.Logger) (wizard.Backend, error) {
	switch strings.ToLower(cfg.Backend.Mode) {
	case "", "http":
		limiter := worker.NewLimiter(cfg.Backend.RequestsPerSecond, cfg.Backend.BurstSize)
		return backend.NewClient(cfg.Backend, limiter, log), nil
	case "llm":
		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
		if err != nil {
			return nil, fmt.Errorf("create LLM provider: %w", err)
		}
		return llm.NewBackend(provider, log), nil
	default:
		return nil, fmt.Errorf("unknown backend mode: %s (supported: http, llm)", cfg.Backend.Mode)
	}
}

func (a *app) newController(id string) *wizard.Controller {
	return wizard.NewController(id, a.backend, a.wizard)
}

func (a *app) Close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn("failed to close audit log", "error", err)
		}
	}
	a.log.Sync()
}
