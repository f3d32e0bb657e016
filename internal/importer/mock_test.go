package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/intake"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

// recordingEngine accepts every run and remembers the payloads.
type recordingEngine struct {
	mu       sync.Mutex
	payloads []model.FeedbackPayload
}

func (e *recordingEngine) Start(_ context.Context, p model.FeedbackPayload) (workflow.RunHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, p)
	return workflow.RunHandle(fmt.Sprintf("run-%d", len(e.payloads))), nil
}

func (e *recordingEngine) started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.payloads)
}

// gridSource serves a fixed grid or error.
type gridSource struct {
	grid [][]string
	err  error
}

func (g gridSource) Rows(context.Context) ([][]string, error) {
	return g.grid, g.err
}

// submitFunc adapts a function to Submitter.
type submitFunc func(ctx context.Context, sub intake.Submission) (*intake.Result, error)

func (f submitFunc) Submit(ctx context.Context, sub intake.Submission) (*intake.Result, error) {
	return f(ctx, sub)
}

func newIntake(t *testing.T) (*intake.Service, *store.SQLiteStore, *recordingEngine) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	sc, err := scorer.New(scorer.DefaultWeights())
	require.NoError(t, err)

	eng := &recordingEngine{}
	return intake.New(st, eng, sc), st, eng
}
