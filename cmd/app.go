package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/classify"
	"github.com/kraigferns/feedback-intel/internal/fetcher"
	"github.com/kraigferns/feedback-intel/internal/importer"
	"github.com/kraigferns/feedback-intel/internal/intake"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/provider"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

// appEnv holds the store, engine and services shared by the commands.
type appEnv struct {
	Store    store.Store
	Scorer   *scorer.Scorer
	Driver   *workflow.Driver
	Engine   workflow.Engine
	Local    *workflow.LocalEngine // nil with the temporal engine
	Temporal client.Client         // nil with the local engine
	Intake   *intake.Service
	Importer *importer.Importer
}

// Close stops the local engine and releases connections.
func (a *appEnv) Close() {
	if a.Local != nil {
		a.Local.Stop()
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initApp validates the config for mode and wires every component. The
// local engine is created but not started. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	sc, err := scorer.New(scorer.WeightsFromConfig(cfg.Scoring))
	if err != nil {
		return nil, eris.Wrap(err, "scoring weights")
	}

	tax, err := classify.LoadTaxonomy(cfg.Classify.TaxonomyPath)
	if err != nil {
		return nil, err
	}

	p, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cl, err := classify.New(p, tax, cfg.Classify)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{
		Store:  st,
		Scorer: sc,
		Driver: workflow.NewDriver(st, cl, sc),
	}

	switch cfg.Workflow.Engine {
	case "temporal":
		tc, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Temporal = tc
		env.Engine = workflow.NewTemporalEngine(st, tc, cfg.Temporal)
	default:
		env.Local = workflow.NewLocalEngine(env.Driver, st, cfg.Workflow)
		env.Engine = env.Local
	}

	env.Intake = intake.New(st, env.Engine, sc)
	env.Importer = importer.New(env.Intake, cfg, fetcher.NewOpener())

	zap.L().Info("app initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", cfg.Provider.Name),
		zap.String("engine", cfg.Workflow.Engine),
		zap.Strings("themes", tax.Names()),
	)
	return env, nil
}

// waitIdle blocks until no run is queued or running, or ctx ends.
func waitIdle(ctx context.Context, st store.Store, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runs, err := st.ListRuns(ctx, store.RunFilter{
			Statuses: []model.RunStatus{model.RunStatusQueued, model.RunStatusRunning},
			Limit:    1,
		})
		if err != nil {
			return eris.Wrap(err, "list active runs")
		}
		if len(runs) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
