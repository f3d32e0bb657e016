package workflow

import (
	"time"

	"github.com/kraigferns/feedback-intel/internal/classify"
	"github.com/kraigferns/feedback-intel/internal/model"
)

// Step identifies one checkpointed stage of an enrichment run.
type Step string

const (
	StepSentiment Step = "sentiment-analyzed"
	StepThemes    Step = "themes-extracted"
	StepUrgency   Step = "urgency-classified"
	StepSummary   Step = "summary-generated"
	StepPriority  Step = "priority-calculated"
	StepStored    Step = "stored"
)

// StateComplete is recorded as the current step once a run finishes.
const StateComplete = "complete"

// Steps lists every step in execution order.
var Steps = []Step{StepSentiment, StepThemes, StepUrgency, StepSummary, StepPriority, StepStored}

// ParseStep reports whether s names a known step.
func ParseStep(s string) (Step, bool) {
	for _, st := range Steps {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func stepIndex(s Step) int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// State accumulates step outputs for one run. Each checkpoint decodes into
// it, so the persisted outputs fully reconstruct the state on resume.
type State struct {
	Payload model.FeedbackPayload `json:"-"`

	Sentiment      model.Sentiment `json:"sentiment"`
	SentimentScore float64         `json:"sentiment_score"`
	Themes         []string        `json:"themes"`
	Urgency        model.Urgency   `json:"urgency"`
	Summary        string          `json:"summary"`
	PriorityScore  float64         `json:"priority_score"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// Enrichment returns the columns written by the stored step.
func (s *State) Enrichment(processedAt time.Time) model.Enrichment {
	return model.Enrichment{
		Sentiment:      s.Sentiment,
		SentimentScore: s.SentimentScore,
		Urgency:        s.Urgency,
		Themes:         s.Themes,
		Summary:        s.Summary,
		PriorityScore:  s.PriorityScore,
		ProcessedAt:    processedAt,
	}
}

// Step outputs. Field names match State so a checkpoint merges into it.

type sentimentOutput struct {
	Sentiment      model.Sentiment `json:"sentiment"`
	SentimentScore float64         `json:"sentiment_score"`
	Source         classify.Origin `json:"source"`
}

type themesOutput struct {
	Themes []string        `json:"themes"`
	Source classify.Origin `json:"source"`
}

type urgencyOutput struct {
	Urgency model.Urgency   `json:"urgency"`
	Source  classify.Origin `json:"source"`
}

type summaryOutput struct {
	Summary string          `json:"summary"`
	Source  classify.Origin `json:"source"`
}

type priorityOutput struct {
	PriorityScore float64 `json:"priority_score"`
	AgeDays       int     `json:"age_days"`
}

type storedOutput struct {
	ProcessedAt time.Time `json:"processed_at"`
	// Written is false when an earlier attempt had already stored the row.
	Written bool `json:"written"`
}
