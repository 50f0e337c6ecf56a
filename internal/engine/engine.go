// Package engine exposes the reader readiness operations. An Engine owns the
// store, the configuration, the clock and the external adapters; every
// operation either commits all of its writes or returns an error from the
// domain taxonomy without partial effect.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"shelfmind/internal/catalog"
	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/decay"
	"shelfmind/internal/logging"
	"shelfmind/internal/narrator"
	"shelfmind/internal/notifications"
	"shelfmind/internal/planner"
	"shelfmind/internal/profile"
	"shelfmind/internal/recompute"
	"shelfmind/internal/scoring"
	"shelfmind/internal/srs"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
)

// Deps are the collaborators an Engine does not build itself. Zero fields
// fall back to the real clock, no catalog, a silent narrator and no
// notification transport.
type Deps struct {
	Clock    clock.Clock
	Catalog  catalog.Provider
	Narrator narrator.Narrator
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Engine implements the user-facing operations.
type Engine struct {
	cfg   *config.Config
	store *store.Store
	clock clock.Clock

	profiles   *profile.Builder
	scorer     scoring.Options
	targets    *targets.Manager
	recomputer *recompute.Recomputer
	planner    *planner.Planner
	decay      *decay.Scheduler
	reviews    *srs.Scheduler
	enricher   *catalog.Enricher
	narrator   narrator.Narrator
	dispatcher *notifications.Dispatcher
	notifier   notifications.Service

	logger *slog.Logger
}

// New wires an engine around an open store.
func New(cfg *config.Config, st *store.Store, deps Deps) *Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	n := deps.Narrator
	if n == nil {
		n = narrator.Noop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	profileOpts := profile.OptionsFromConfig(cfg)
	scorer := scoring.OptionsFromConfig(cfg)
	profiles := profile.NewBuilder(profileOpts, logger)
	manager := targets.NewManager(targets.ThresholdsFromConfig(cfg), logger)

	return &Engine{
		cfg:        cfg,
		store:      st,
		clock:      clk,
		profiles:   profiles,
		scorer:     scorer,
		targets:    manager,
		recomputer: recompute.New(st, profiles, scorer, manager, clk, recompute.OptionsFromConfig(cfg), logger),
		planner:    planner.New(profileOpts, scorer, planner.OptionsFromConfig(cfg), logger),
		decay:      decay.NewScheduler(st, clk, logger),
		reviews:    srs.NewScheduler(st, clk, srs.ParamsFromConfig(cfg), logger),
		enricher:   catalog.NewEnricher(st, deps.Catalog, clk, catalog.OptionsFromConfig(cfg), logger),
		narrator:   n,
		dispatcher: notifications.NewDispatcher(st, deps.Notifier, clk, cfg.SM2Location(), logger),
		notifier:   deps.Notifier,
		logger:     logging.NewComponentLogger(logger, "engine"),
	}
}

// Open opens the store named by cfg, builds the adapters it selects and
// persists the effective configuration.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := catalog.NewProvider(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("catalog provider: %w", err)
	}
	n, err := narrator.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("narrator: %w", err)
	}
	e := New(cfg, st, Deps{
		Catalog:  provider,
		Narrator: n,
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	})
	if err := e.PersistSettings(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	if e == nil || e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store exposes the underlying store for tooling.
func (e *Engine) Store() *store.Store { return e.store }

// PersistSettings writes the effective configuration to the store's config
// table.
func (e *Engine) PersistSettings(ctx context.Context) error {
	settings, err := e.cfg.Settings()
	if err != nil {
		return err
	}
	return e.store.Write(ctx, func(tx *store.Tx) error {
		return tx.SaveSettings(ctx, settings, e.clock.Now())
	})
}
