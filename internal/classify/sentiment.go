package classify

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/provider"
)

// NeutralBand is the half-width of the score range treated as neutral when
// the label has to be derived from the score.
const NeutralBand = 0.2

// SentimentResult is a discrete label plus a score in [-1, 1].
type SentimentResult struct {
	Label model.Sentiment `json:"sentiment"`
	Score float64         `json:"score"`
}

// Sentiment asks the provider for a JSON {sentiment, score} verdict on a
// bounded prefix of text. Failures resolve to neutral with score 0.
func (c *Classifier) Sentiment(ctx context.Context, text string) Outcome[SentimentResult] {
	neutral := SentimentResult{Label: model.SentimentNeutral}

	resp, err := c.complete(ctx, provider.Request{
		Task:      "sentiment",
		System:    sentimentSystemPrompt,
		Prompt:    truncateRunes(text, c.sentimentInput),
		MaxTokens: 50,
	})
	if err != nil {
		logFallback("sentiment", err)
		return fallback(neutral, err)
	}

	res, err := parseSentiment(resp)
	if err != nil {
		logFallback("sentiment", err)
		return fallback(neutral, err)
	}
	return fromProvider(res)
}

type sentimentWire struct {
	Sentiment string   `json:"sentiment"`
	Score     *float64 `json:"score"`
}

// parseSentiment extracts the first JSON object in resp. The score is
// clamped and rounded to two decimals; an unknown label is derived from
// the score.
func parseSentiment(resp string) (SentimentResult, error) {
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start < 0 || end <= start {
		return SentimentResult{}, eris.Errorf("classify: no JSON object in sentiment response %q", truncateRunes(resp, 60))
	}

	var w sentimentWire
	if err := json.Unmarshal([]byte(resp[start:end+1]), &w); err != nil {
		return SentimentResult{}, eris.Wrap(err, "classify: decode sentiment")
	}
	if w.Score == nil || math.IsNaN(*w.Score) || math.IsInf(*w.Score, 0) {
		return SentimentResult{}, eris.New("classify: sentiment score missing")
	}

	score := math.Max(-1, math.Min(1, *w.Score))
	score = math.Round(score*100) / 100
	if score == 0 {
		score = 0 // drop negative zero
	}

	label := model.Sentiment(strings.ToLower(strings.TrimSpace(w.Sentiment)))
	if !label.Valid() {
		label = LabelForScore(score)
	}
	return SentimentResult{Label: label, Score: score}, nil
}

// LabelForScore maps a score onto a label using NeutralBand.
func LabelForScore(score float64) model.Sentiment {
	switch {
	case score >= NeutralBand:
		return model.SentimentPositive
	case score <= -NeutralBand:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}
