// Package scorer computes the deterministic priority score used to rank
// feedback, and the ARR estimate derived from customer tier.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
)

// Fallback weights for categorical inputs missing from the tables.
const (
	DefaultTierWeight      = 1.0
	DefaultSeverityWeight  = 4.0
	DefaultSentimentWeight = 5.0
)

// Weights is the immutable weight configuration for the scorer.
type Weights struct {
	Tier      map[model.Tier]float64
	Severity  map[model.Urgency]float64
	Sentiment map[model.Sentiment]float64

	TierFactor      float64
	SeverityFactor  float64
	SentimentFactor float64
	AgeFactor       float64

	// AgeRate is the weight added per whole day since creation, capped at AgeCap.
	AgeRate float64
	AgeCap  float64

	ARR map[model.Tier]int64
}

// DefaultWeights returns the standard ranking model.
func DefaultWeights() Weights {
	return Weights{
		Tier: map[model.Tier]float64{
			model.TierEnterprise: 10,
			model.TierPro:        5,
			model.TierFree:       1,
		},
		Severity: map[model.Urgency]float64{
			model.UrgencyCritical: 10,
			model.UrgencyHigh:     7,
			model.UrgencyMedium:   4,
			model.UrgencyLow:      1,
		},
		Sentiment: map[model.Sentiment]float64{
			model.SentimentNegative: 10,
			model.SentimentNeutral:  5,
			model.SentimentPositive: 1,
		},
		TierFactor:      0.4,
		SeverityFactor:  0.3,
		SentimentFactor: 0.2,
		AgeFactor:       0.1,
		AgeRate:         0.5,
		AgeCap:          5,
		ARR: map[model.Tier]int64{
			model.TierEnterprise: 50000,
			model.TierPro:        6000,
			model.TierFree:       0,
		},
	}
}

// WeightsFromConfig overlays the configured tables onto DefaultWeights.
// Zero factors keep their defaults.
func WeightsFromConfig(c config.ScoringConfig) Weights {
	w := DefaultWeights()
	for k, v := range c.TierWeights {
		w.Tier[model.Tier(strings.ToLower(k))] = v
	}
	for k, v := range c.SeverityWeights {
		w.Severity[model.Urgency(strings.ToLower(k))] = v
	}
	for k, v := range c.SentimentWeights {
		w.Sentiment[model.Sentiment(strings.ToLower(k))] = v
	}
	for k, v := range c.ARR {
		w.ARR[model.Tier(strings.ToLower(k))] = v
	}
	if c.TierFactor != 0 {
		w.TierFactor = c.TierFactor
	}
	if c.SeverityFactor != 0 {
		w.SeverityFactor = c.SeverityFactor
	}
	if c.SentimentFactor != 0 {
		w.SentimentFactor = c.SentimentFactor
	}
	if c.AgeFactor != 0 {
		w.AgeFactor = c.AgeFactor
	}
	if c.AgeRate != 0 {
		w.AgeRate = c.AgeRate
	}
	if c.AgeCap != 0 {
		w.AgeCap = c.AgeCap
	}
	return w
}

// ValidateWeights checks that no weight, factor or ARR value is negative.
func ValidateWeights(w Weights) error {
	var errs []string

	check := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	for k, v := range w.Tier {
		check("tier_weights."+string(k), v)
	}
	for k, v := range w.Severity {
		check("severity_weights."+string(k), v)
	}
	for k, v := range w.Sentiment {
		check("sentiment_weights."+string(k), v)
	}
	for k, v := range w.ARR {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("arr.%s must be >= 0", k))
		}
	}
	check("tier_factor", w.TierFactor)
	check("severity_factor", w.SeverityFactor)
	check("sentiment_factor", w.SentimentFactor)
	check("age_factor", w.AgeFactor)
	check("age_rate", w.AgeRate)
	check("age_cap", w.AgeCap)

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("scorer: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Input is the set of signals combined into a priority score.
type Input struct {
	Tier      model.Tier
	Urgency   model.Urgency
	Sentiment model.Sentiment
	AgeDays   int
}

// Scorer ranks feedback. It is safe for concurrent use.
type Scorer struct {
	w Weights
}

// New creates a Scorer, rejecting invalid weights.
func New(w Weights) (*Scorer, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	return &Scorer{w: clone(w)}, nil
}

// Priority returns the weighted score rounded half-up to one decimal.
func (s *Scorer) Priority(in Input) float64 {
	tier := lookup(s.w.Tier, in.Tier, DefaultTierWeight)
	severity := lookup(s.w.Severity, in.Urgency, DefaultSeverityWeight)
	sentiment := lookup(s.w.Sentiment, in.Sentiment, DefaultSentimentWeight)

	days := in.AgeDays
	if days < 0 {
		days = 0
	}
	age := math.Min(float64(days)*s.w.AgeRate, s.w.AgeCap)

	raw := tier*s.w.TierFactor +
		severity*s.w.SeverityFactor +
		sentiment*s.w.SentimentFactor +
		age*s.w.AgeFactor
	return RoundHalfUp(raw, 1)
}

// ARREstimate returns the annual revenue proxy for a tier. Unknown tiers map to 0.
func (s *Scorer) ARREstimate(tier model.Tier) int64 {
	return s.w.ARR[tier]
}

// AgeDays returns whole days elapsed between created and now, never negative.
func AgeDays(created, now time.Time) int {
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return int(now.Sub(created) / (24 * time.Hour))
}

// RoundHalfUp rounds v to the given number of decimals, ties away from zero.
// Values within 1e-9 of a tie are treated as the tie so 9.05 rounds to 9.1.
func RoundHalfUp(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	scaled := v * p
	if scaled < 0 {
		return -math.Floor(-scaled+0.5+1e-9) / p
	}
	return math.Floor(scaled+0.5+1e-9) / p
}

func lookup[K comparable](m map[K]float64, k K, fallback float64) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return fallback
}

func clone(w Weights) Weights {
	out := w
	out.Tier = make(map[model.Tier]float64, len(w.Tier))
	for k, v := range w.Tier {
		out.Tier[k] = v
	}
	out.Severity = make(map[model.Urgency]float64, len(w.Severity))
	for k, v := range w.Severity {
		out.Severity[k] = v
	}
	out.Sentiment = make(map[model.Sentiment]float64, len(w.Sentiment))
	for k, v := range w.Sentiment {
		out.Sentiment[k] = v
	}
	out.ARR = make(map[model.Tier]int64, len(w.ARR))
	for k, v := range w.ARR {
		out.ARR[k] = v
	}
	return out
}
