package monitoring

import (
	"context"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// mockStore serves canned runs and feedback. Unused Store methods panic.
type mockStore struct {
	store.Store
	runs    []model.Run
	items   []model.FeedbackItem
	runsErr error
	filters []store.RunFilter
}

func (m *mockStore) ListRuns(_ context.Context, f store.RunFilter) ([]model.Run, error) {
	m.filters = append(m.filters, f)
	if m.runsErr != nil {
		return nil, m.runsErr
	}
	var out []model.Run
	for _, r := range m.runs {
		if !f.CreatedAfter.IsZero() && !r.CreatedAt.After(f.CreatedAfter) {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) ListFeedback(context.Context, store.FeedbackFilter) ([]model.FeedbackItem, error) {
	return m.items, nil
}

func hasStatus(list []model.RunStatus, s model.RunStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
