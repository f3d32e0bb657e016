package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultWeights())
	require.NoError(t, err)
	return s
}

func TestPriority_WorstCaseRoundsHalfUp(t *testing.T) {
	s := newScorer(t)

	got := s.Priority(Input{
		Tier:      model.TierEnterprise,
		Urgency:   model.UrgencyCritical,
		Sentiment: model.SentimentNegative,
		AgeDays:   1,
	})
	assert.Equal(t, 9.1, got)
}

func TestPriority_Deterministic(t *testing.T) {
	s := newScorer(t)
	in := Input{Tier: model.TierPro, Urgency: model.UrgencyHigh, Sentiment: model.SentimentNeutral, AgeDays: 3}

	first := s.Priority(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, s.Priority(in))
	}
	// 5*0.4 + 7*0.3 + 5*0.2 + 1.5*0.1 = 5.25
	assert.Equal(t, 5.3, first)
}

func TestPriority_AgeCap(t *testing.T) {
	s := newScorer(t)
	base := Input{Tier: model.TierFree, Urgency: model.UrgencyLow, Sentiment: model.SentimentPositive}

	ten := base
	ten.AgeDays = 10
	hundred := base
	hundred.AgeDays = 100

	assert.Equal(t, s.Priority(ten), s.Priority(hundred))
	// 1*0.4 + 1*0.3 + 1*0.2 + 5*0.1 = 1.4
	assert.Equal(t, 1.4, s.Priority(hundred))
}

func TestPriority_UnknownInputsUseDefaults(t *testing.T) {
	s := newScorer(t)

	got := s.Priority(Input{Tier: "platinum", Urgency: "p0", Sentiment: ""})
	// 1*0.4 + 4*0.3 + 5*0.2 = 2.6
	assert.Equal(t, 2.6, got)
}

func TestPriority_NegativeAgeClamped(t *testing.T) {
	s := newScorer(t)
	in := Input{Tier: model.TierPro, Urgency: model.UrgencyMedium, Sentiment: model.SentimentNeutral}

	neg := in
	neg.AgeDays = -4
	assert.Equal(t, s.Priority(in), s.Priority(neg))
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{9.05, 9.1},
		{9.04, 9.0},
		{0.25, 0.3},
		{4 + 3 + 2 + 0.05, 9.1},
		{-1.25, -1.3},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundHalfUp(tt.in, 1), "%v", tt.in)
	}
	assert.Equal(t, -0.81, RoundHalfUp(-0.8149999, 2))
}

func TestAgeDays(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, AgeDays(created, created.Add(23*time.Hour)))
	assert.Equal(t, 1, AgeDays(created, created.Add(25*time.Hour)))
	assert.Equal(t, 30, AgeDays(created, created.AddDate(0, 0, 30)))
	assert.Equal(t, 0, AgeDays(created, created.Add(-time.Hour)))
	assert.Equal(t, 0, AgeDays(time.Time{}, created))
}

func TestARREstimate(t *testing.T) {
	s := newScorer(t)

	assert.Equal(t, int64(50000), s.ARREstimate(model.TierEnterprise))
	assert.Equal(t, int64(6000), s.ARREstimate(model.TierPro))
	assert.Equal(t, int64(0), s.ARREstimate(model.TierFree))
	assert.Equal(t, int64(0), s.ARREstimate("platinum"))
}

func TestWeightsFromConfig(t *testing.T) {
	w := WeightsFromConfig(config.ScoringConfig{
		TierWeights: map[string]float64{"Enterprise": 20},
		AgeCap:      2,
		ARR:         map[string]int64{"pro": 12000},
	})

	assert.Equal(t, 20.0, w.Tier[model.TierEnterprise])
	assert.Equal(t, 5.0, w.Tier[model.TierPro])
	assert.Equal(t, 2.0, w.AgeCap)
	assert.Equal(t, 0.4, w.TierFactor)
	assert.Equal(t, int64(12000), w.ARR[model.TierPro])
	assert.Equal(t, int64(50000), w.ARR[model.TierEnterprise])
}

func TestInjectedWeightsChangeRanking(t *testing.T) {
	w := DefaultWeights()
	w.Tier[model.TierFree] = 10

	s, err := New(w)
	require.NoError(t, err)

	// Mutating the caller's copy after construction has no effect.
	w.Tier[model.TierFree] = 0

	got := s.Priority(Input{Tier: model.TierFree, Urgency: model.UrgencyCritical, Sentiment: model.SentimentNegative})
	assert.Equal(t, 9.0, got)
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(DefaultWeights()))

	w := DefaultWeights()
	w.Severity[model.UrgencyLow] = -1
	w.AgeCap = -5
	w.ARR[model.TierPro] = -10

	err := ValidateWeights(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity_weights.low must be >= 0")
	assert.Contains(t, err.Error(), "age_cap must be >= 0")
	assert.Contains(t, err.Error(), "arr.pro must be >= 0")

	_, err = New(w)
	assert.Error(t, err)
}
