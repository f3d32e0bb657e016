// Package insights aggregates stored feedback for the dashboard.
package insights

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// TopN is the number of items listed in Report.Top.
const TopN = 5

// RecentWindow bounds Report.Recent.
const RecentWindow = 7 * 24 * time.Hour

// Report is the aggregate view of all stored feedback.
type Report struct {
	Total           int            `json:"total"`
	Processed       int            `json:"processed"`
	Pending         int            `json:"pending"`
	Recent          int            `json:"recent_7d"`
	ByUrgency       map[string]int `json:"by_urgency"`
	BySentiment     map[string]int `json:"by_sentiment"`
	ByTier          map[string]int `json:"by_tier"`
	BySource        map[string]int `json:"by_source"`
	ByTheme         map[string]int `json:"by_theme"`
	AveragePriority float64        `json:"average_priority"`
	ARRAtRisk       int64          `json:"arr_at_risk"`
	Top             []TopItem      `json:"top"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// TopItem is a short reference to a high-priority item.
type TopItem struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	CustomerTier  string     `json:"customer_tier"`
	Urgency       string     `json:"urgency"`
	Summary       string     `json:"summary"`
	PriorityScore float64    `json:"priority_score"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// Compute loads every stored item and aggregates it.
func Compute(ctx context.Context, st store.Store, now time.Time) (*Report, error) {
	items, err := st.ListFeedback(ctx, store.FeedbackFilter{All: true})
	if err != nil {
		return nil, eris.Wrap(err, "insights: list feedback")
	}
	return Aggregate(items, now), nil
}

// Aggregate summarizes items. Unprocessed items count toward Total, Pending,
// source and tier only. ARR at risk sums the ARR estimate of items that are
// critical, high or negative.
func Aggregate(items []model.FeedbackItem, now time.Time) *Report {
	r := &Report{
		ByUrgency:   make(map[string]int),
		BySentiment: make(map[string]int),
		ByTier:      make(map[string]int),
		BySource:    make(map[string]int),
		ByTheme:     make(map[string]int),
		Top:         []TopItem{},
		GeneratedAt: now.UTC(),
	}

	var prioritySum float64
	var scored []model.FeedbackItem
	for _, it := range items {
		r.Total++
		r.ByTier[string(it.CustomerTier)]++
		r.BySource[string(it.Source)]++
		if !it.CreatedAt.Before(now.Add(-RecentWindow)) {
			r.Recent++
		}

		if !it.Processed() {
			r.Pending++
			continue
		}
		r.Processed++

		if it.Urgency != nil {
			r.ByUrgency[string(*it.Urgency)]++
		}
		if it.Sentiment != nil {
			r.BySentiment[string(*it.Sentiment)]++
		}
		for _, th := range it.Themes {
			r.ByTheme[th]++
		}
		if atRisk(it) && it.ARREstimate != nil {
			r.ARRAtRisk += *it.ARREstimate
		}
		if it.PriorityScore != nil {
			prioritySum += *it.PriorityScore
			scored = append(scored, it)
		}
	}

	if len(scored) > 0 {
		r.AveragePriority = scorer.RoundHalfUp(prioritySum/float64(len(scored)), 2)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if *a.PriorityScore != *b.PriorityScore {
			return *a.PriorityScore > *b.PriorityScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for _, it := range scored[:min(TopN, len(scored))] {
		r.Top = append(r.Top, topItem(it))
	}
	return r
}

func atRisk(it model.FeedbackItem) bool {
	if it.Urgency != nil && (*it.Urgency == model.UrgencyCritical || *it.Urgency == model.UrgencyHigh) {
		return true
	}
	return it.Sentiment != nil && *it.Sentiment == model.SentimentNegative
}

func topItem(it model.FeedbackItem) TopItem {
	t := TopItem{
		ID:            it.ID,
		Source:        string(it.Source),
		CustomerTier:  string(it.CustomerTier),
		PriorityScore: *it.PriorityScore,
		CreatedAt:     it.CreatedAt,
		ProcessedAt:   it.ProcessedAt,
	}
	if it.Urgency != nil {
		t.Urgency = string(*it.Urgency)
	}
	if it.Summary != nil {
		t.Summary = *it.Summary
	}
	return t
}
