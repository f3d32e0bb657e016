package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/intake"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

// fakeImporter returns canned counts or an error.
type fakeImporter struct {
	counts map[string]int
	err    error
	calls  int
}

func (f *fakeImporter) Run(context.Context) (map[string]int, error) {
	f.calls++
	return f.counts, f.err
}

// submitFunc adapts a function to submitter.
type submitFunc func(ctx context.Context, sub intake.Submission) (*intake.Result, error)

func (f submitFunc) Submit(ctx context.Context, sub intake.Submission) (*intake.Result, error) {
	return f(ctx, sub)
}

// newAPIStore returns a migrated SQLite store and an intake service whose
// local engine records runs without executing them.
func newAPIStore(t *testing.T) (*store.SQLiteStore, *intake.Service) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	sc, err := scorer.New(scorer.DefaultWeights())
	require.NoError(t, err)

	eng := workflow.NewLocalEngine(nil, st, config.WorkflowConfig{Concurrency: 1, QueueSize: 16})
	t.Cleanup(eng.Stop)
	return st, intake.New(st, eng, sc)
}
