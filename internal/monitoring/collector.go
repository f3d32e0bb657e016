// Package monitoring watches enrichment run health and alerts on regressions.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// MetricsSnapshot holds a point-in-time view of enrichment health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsQueued   int     `json:"runs_queued"`
	RunsRunning  int     `json:"runs_running"`
	FailureRate  float64 `json:"failure_rate"`
	AvgAttempts  float64 `json:"avg_attempts"`

	// Unfinished runs not updated for longer than the stall threshold,
	// regardless of the window.
	StalledRuns []string `json:"stalled_runs,omitempty"`

	// Enriched feedback within the window.
	CriticalFeedback int `json:"critical_feedback"`
	NegativeFeedback int `json:"negative_feedback"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store        store.Store
	stalledAfter time.Duration
	now          func() time.Time
}

// NewCollector creates a collector. Unfinished runs idle longer than
// stalledAfter are reported as stalled; zero disables the check.
func NewCollector(st store.Store, stalledAfter time.Duration) *Collector {
	return &Collector{store: st, stalledAfter: stalledAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{CreatedAfter: cutoff})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	attempts := 0
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		attempts += r.Attempts
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsTotal > 0 {
		snap.AvgAttempts = float64(attempts) / float64(snap.RunsTotal)
	}

	if c.stalledAfter > 0 {
		active, err := c.store.ListRuns(ctx, store.RunFilter{
			Statuses: []model.RunStatus{model.RunStatusQueued, model.RunStatusRunning},
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list active runs")
		}
		for _, r := range active {
			if now.Sub(r.UpdatedAt) > c.stalledAfter {
				snap.StalledRuns = append(snap.StalledRuns, r.ID)
			}
		}
	}

	items, err := c.store.ListFeedback(ctx, store.FeedbackFilter{All: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list feedback")
	}
	for _, it := range items {
		if !it.Processed() || !it.CreatedAt.After(cutoff) {
			continue
		}
		if it.Urgency != nil && *it.Urgency == model.UrgencyCritical {
			snap.CriticalFeedback++
		}
		if it.Sentiment != nil && *it.Sentiment == model.SentimentNegative {
			snap.NegativeFeedback++
		}
	}

	return snap, nil
}
