package store

import (
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/model"
)

const feedbackColumns = "id, source, content, content_hash, author, customer_tier, created_at, " +
	"sentiment, sentiment_score, urgency, themes, summary, priority_score, arr_estimate, processed_at"

const runColumns = "id, feedback_id, payload, status, current_step, attempts, error, created_at, updated_at"

// themeMatcher builds the dialect-specific predicate for "themes contains t".
type themeMatcher func(theme string) sq.Sqlizer

// likeTheme matches the JSON-encoded tag inside the serialized list.
func likeTheme(theme string) sq.Sqlizer {
	quoted, _ := json.Marshal(theme)
	return sq.Like{"themes": "%" + string(quoted) + "%"}
}

func listFeedbackQuery(ph sq.PlaceholderFormat, f FeedbackFilter, theme themeMatcher) (string, []any, error) {
	q := sq.StatementBuilder.PlaceholderFormat(ph).
		Select(feedbackColumns).
		From("feedback").
		OrderBy("priority_score DESC NULLS LAST", "created_at DESC")

	if f.Source != "" {
		q = q.Where(sq.Eq{"source": strings.ToLower(f.Source)})
	}
	if f.Urgency != "" {
		q = q.Where(sq.Eq{"urgency": strings.ToLower(f.Urgency)})
	}
	if f.Sentiment != "" {
		q = q.Where(sq.Eq{"sentiment": strings.ToLower(f.Sentiment)})
	}
	if f.Tier != "" {
		q = q.Where(sq.Eq{"customer_tier": strings.ToLower(f.Tier)})
	}
	if f.Theme != "" {
		q = q.Where(theme(strings.ToLower(f.Theme)))
	}
	if !f.All {
		limit := f.Limit
		if limit <= 0 || limit > DefaultListLimit {
			limit = DefaultListLimit
		}
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	return sql, args, eris.Wrap(err, "store: build feedback query")
}

func listRunsQuery(ph sq.PlaceholderFormat, f RunFilter) (string, []any, error) {
	q := sq.StatementBuilder.PlaceholderFormat(ph).
		Select(runColumns).
		From("workflow_runs").
		OrderBy("created_at ASC")

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if f.FeedbackID != "" {
		q = q.Where(sq.Eq{"feedback_id": f.FeedbackID})
	}
	if !f.CreatedAfter.IsZero() {
		q = q.Where(sq.Gt{"created_at": model.FormatTime(f.CreatedAfter)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	sql, args, err := q.ToSql()
	return sql, args, eris.Wrap(err, "store: build runs query")
}

func updateRunQuery(ph sq.PlaceholderFormat, runID string, u RunUpdate, now string) (string, []any, error) {
	q := sq.StatementBuilder.PlaceholderFormat(ph).
		Update("workflow_runs").
		Set("status", string(u.Status)).
		Set("error", u.Error).
		Set("updated_at", now).
		Where(sq.Eq{"id": runID})
	if u.CurrentStep != "" {
		q = q.Set("current_step", u.CurrentStep)
	}
	if u.Status == model.RunStatusRunning {
		q = q.Set("attempts", sq.Expr("attempts + 1"))
	}

	sql, args, err := q.ToSql()
	return sql, args, eris.Wrap(err, "store: build run update")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeedback(row scannable) (*model.FeedbackItem, error) {
	var f model.FeedbackItem
	var source, tier, created string
	var sentiment, urgency, themes, processed *string
	err := row.Scan(
		&f.ID, &source, &f.Content, &f.ContentHash, &f.Author, &tier, &created,
		&sentiment, &f.SentimentScore, &urgency, &themes, &f.Summary,
		&f.PriorityScore, &f.ARREstimate, &processed,
	)
	if err != nil {
		return nil, err
	}

	f.Source = model.Source(source)
	f.CustomerTier = model.Tier(tier)
	if f.CreatedAt, err = model.ParseTime(created); err != nil {
		return nil, eris.Wrapf(err, "store: parse created_at for %s", f.ID)
	}
	if sentiment != nil {
		s := model.Sentiment(*sentiment)
		f.Sentiment = &s
	}
	if urgency != nil {
		u := model.Urgency(*urgency)
		f.Urgency = &u
	}
	if themes != nil && *themes != "" {
		if err := json.Unmarshal([]byte(*themes), &f.Themes); err != nil {
			return nil, eris.Wrapf(err, "store: decode themes for %s", f.ID)
		}
	}
	if processed != nil {
		t, err := model.ParseTime(*processed)
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse processed_at for %s", f.ID)
		}
		f.ProcessedAt = &t
	}
	return &f, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var payload, status, created, updated string
	if err := row.Scan(&r.ID, &r.FeedbackID, &payload, &status, &r.CurrentStep, &r.Attempts, &r.Error, &created, &updated); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return nil, eris.Wrapf(err, "store: decode payload for run %s", r.ID)
	}
	var err error
	if r.CreatedAt, err = model.ParseTime(created); err != nil {
		return nil, eris.Wrapf(err, "store: parse run created_at %s", r.ID)
	}
	if r.UpdatedAt, err = model.ParseTime(updated); err != nil {
		return nil, eris.Wrapf(err, "store: parse run updated_at %s", r.ID)
	}
	return &r, nil
}

func scanStep(row scannable) (*model.StepRecord, error) {
	var rec model.StepRecord
	var output, completed string
	if err := row.Scan(&rec.RunID, &rec.Step, &output, &completed); err != nil {
		return nil, err
	}
	rec.Output = json.RawMessage(output)
	var err error
	if rec.CompletedAt, err = model.ParseTime(completed); err != nil {
		return nil, eris.Wrapf(err, "store: parse step completed_at %s/%s", rec.RunID, rec.Step)
	}
	return &rec, nil
}

func encodeThemes(themes []string) (string, error) {
	if themes == nil {
		themes = []string{}
	}
	b, err := json.Marshal(themes)
	return string(b), eris.Wrap(err, "store: encode themes")
}

// nullableJSON turns an empty raw message into a JSON null so the column
// never holds an empty string.
func nullableJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
