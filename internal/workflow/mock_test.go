package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/classify"
	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/fingerprint"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/provider"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
)

const outageText = "Production is down, this is urgent, we are losing customers!"

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func task(name string) interface{} {
	return mock.MatchedBy(func(req provider.Request) bool { return req.Task == name })
}

// scriptedProvider answers sentiment and summary deterministically.
func scriptedProvider() *mockProvider {
	mp := &mockProvider{}
	mp.On("Complete", mock.Anything, task("sentiment")).Return(`{"sentiment":"negative","score":-0.9}`, nil).Maybe()
	mp.On("Complete", mock.Anything, task("summary")).Return("Enterprise customer reports a production outage.", nil).Maybe()
	mp.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("unexpected task")).Maybe()
	return mp
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestDriver(t *testing.T, st store.Store, p provider.Provider) *Driver {
	t.Helper()
	c, err := classify.New(p, classify.DefaultTaxonomy(), config.ClassifyConfig{})
	require.NoError(t, err)
	sc, err := scorer.New(scorer.DefaultWeights())
	require.NoError(t, err)
	d := NewDriver(st, c, sc)
	d.now = func() time.Time { return fixedNow }
	return d
}

func seedFeedback(t *testing.T, st store.Store, content string, tier model.Tier) *model.FeedbackItem {
	t.Helper()
	item := &model.FeedbackItem{
		Source:       model.SourceSupport,
		Content:      content,
		ContentHash:  fingerprint.Of(content),
		CustomerTier: tier,
		CreatedAt:    fixedNow.Add(-36 * time.Hour),
	}
	require.NoError(t, st.CreateFeedback(context.Background(), item))
	return item
}

func seedRun(t *testing.T, st store.Store, item *model.FeedbackItem) *model.Run {
	t.Helper()
	run, err := st.CreateRun(context.Background(), item.Payload())
	require.NoError(t, err)
	return run
}

// faultyStore fails selected operations.
type faultyStore struct {
	store.Store

	mu          sync.Mutex
	enrichErr   error
	enrichCalls int
}

func (f *faultyStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	f.mu.Lock()
	f.enrichCalls++
	err := f.enrichErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Store.SaveEnrichment(ctx, id, e)
}

func (f *faultyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrichCalls
}

func sentimentCalls(mp *mockProvider) int {
	n := 0
	for _, c := range mp.Calls {
		if req, ok := c.Arguments.Get(1).(provider.Request); ok && req.Task == "sentiment" {
			n++
		}
	}
	return n
}
