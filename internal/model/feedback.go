package model

import (
	"strings"
	"time"
)

// Source is the channel a feedback item arrived through.
type Source string

const (
	SourceSupport Source = "support"
	SourceDiscord Source = "discord"
	SourceGitHub  Source = "github"
	SourceTwitter Source = "twitter"
	SourceManual  Source = "manual"
)

// Sources lists every accepted channel.
var Sources = []Source{SourceSupport, SourceDiscord, SourceGitHub, SourceTwitter, SourceManual}

// ParseSource normalizes s and reports whether it names a known channel.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources {
		if src == known {
			return src, true
		}
	}
	return "", false
}

// Tier is the customer plan level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier normalizes s. Empty input maps to TierFree; unknown input is rejected.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return TierFree, true
	case TierFree, TierPro, TierEnterprise:
		return t, true
	default:
		return "", false
	}
}

// Sentiment is the discrete sentiment label.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is a known label.
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNegative || s == SentimentNeutral
}

// Urgency is the severity level assigned to a feedback item.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Valid reports whether u is a known level.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// ThemeGeneral is the fallback tag used when nothing else applies.
const ThemeGeneral = "general"

// TimeFormat is the persisted timestamp layout. Fixed millisecond width keeps
// lexical order equal to chronological order.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a persisted timestamp, accepting RFC 3339 as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FeedbackItem is a single piece of customer feedback plus its enrichment.
// Enrichment fields stay nil until the workflow stores them together.
type FeedbackItem struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	Content      string    `json:"content"`
	ContentHash  string    `json:"content_hash"`
	Author       *string   `json:"author,omitempty"`
	CustomerTier Tier      `json:"customer_tier"`
	CreatedAt    time.Time `json:"created_at"`

	Sentiment      *Sentiment `json:"sentiment,omitempty"`
	SentimentScore *float64   `json:"sentiment_score,omitempty"`
	Urgency        *Urgency   `json:"urgency,omitempty"`
	Themes         []string   `json:"themes,omitempty"`
	Summary        *string    `json:"summary,omitempty"`
	PriorityScore  *float64   `json:"priority_score,omitempty"`
	ARREstimate    *int64     `json:"arr_estimate,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// Processed reports whether the enrichment write has happened.
func (f *FeedbackItem) Processed() bool {
	return f.ProcessedAt != nil
}

// HasTheme reports whether theme is among the item's tags.
func (f *FeedbackItem) HasTheme(theme string) bool {
	for _, t := range f.Themes {
		if t == theme {
			return true
		}
	}
	return false
}

// Payload returns the transient copy handed to an enrichment run.
func (f *FeedbackItem) Payload() FeedbackPayload {
	return FeedbackPayload{
		FeedbackID:   f.ID,
		Source:       f.Source,
		Content:      f.Content,
		CustomerTier: f.CustomerTier,
		CreatedAt:    f.CreatedAt,
	}
}

// FeedbackPayload is the in-memory copy of an item carried by one run.
type FeedbackPayload struct {
	FeedbackID   string    `json:"feedback_id"`
	Source       Source    `json:"source"`
	Content      string    `json:"content"`
	CustomerTier Tier      `json:"customer_tier"`
	CreatedAt    time.Time `json:"created_at"`
}

// Enrichment is the full set of derived fields written in one update.
type Enrichment struct {
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Urgency        Urgency   `json:"urgency"`
	Themes         []string  `json:"themes"`
	Summary        string    `json:"summary"`
	PriorityScore  float64   `json:"priority_score"`
	ProcessedAt    time.Time `json:"processed_at"`
}
