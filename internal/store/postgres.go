package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/db"
	"github.com/kraigferns/feedback-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

const (
	sqlInsertFeedback = `INSERT INTO feedback (id, source, content, content_hash, author, customer_tier, created_at, arr_estimate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	sqlSaveEnrichment = `UPDATE feedback SET sentiment = $1, sentiment_score = $2, urgency = $3, themes = $4,
summary = $5, priority_score = $6, processed_at = $7
WHERE id = $8 AND processed_at IS NULL`
	sqlInsertRun = `INSERT INTO workflow_runs (id, feedback_id, payload, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	sqlSaveStep = `INSERT INTO workflow_steps (run_id, step, output, completed_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, step) DO NOTHING`
	sqlLoadSteps = `SELECT run_id, step, output, completed_at FROM workflow_steps WHERE run_id = $1 ORDER BY completed_at`
)

// preparedStatements lists the hot-path queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_feedback": sqlInsertFeedback,
	"save_enrichment": sqlSaveEnrichment,
	"insert_run":      sqlInsertRun,
	"save_step":       sqlSaveStep,
	"load_steps":      sqlLoadSteps,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
		Prepared: preparedStatements,
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	content         TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	author          TEXT,
	customer_tier   TEXT NOT NULL DEFAULT 'free',
	created_at      TEXT NOT NULL,
	sentiment       TEXT,
	sentiment_score DOUBLE PRECISION,
	urgency         TEXT,
	themes          TEXT,
	summary         TEXT,
	processed_at    TEXT,
	priority_score  DOUBLE PRECISION,
	arr_estimate    BIGINT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_content_hash ON feedback(content_hash);
CREATE INDEX IF NOT EXISTS idx_feedback_source ON feedback(source);
CREATE INDEX IF NOT EXISTS idx_feedback_urgency ON feedback(urgency);
CREATE INDEX IF NOT EXISTS idx_feedback_sentiment ON feedback(sentiment);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id           TEXT PRIMARY KEY,
	feedback_id  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	current_step TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs(status);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_feedback_id ON workflow_runs(feedback_id);

CREATE TABLE IF NOT EXISTS workflow_steps (
	run_id       TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
	step         TEXT NOT NULL,
	output       TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	PRIMARY KEY (run_id, step)
);
`

// jsonbTheme uses JSONB containment on the serialized theme list.
func jsonbTheme(theme string) sq.Sqlizer {
	tag, _ := json.Marshal([]string{theme})
	return sq.Expr("themes::jsonb @> ?::jsonb", string(tag))
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, item *model.FeedbackItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	item.CreatedAt = item.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := s.pool.Exec(ctx, sqlInsertFeedback,
		item.ID, string(item.Source), item.Content, item.ContentHash, item.Author,
		string(item.CustomerTier), model.FormatTime(item.CreatedAt), item.ARREstimate,
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert feedback %s", item.ContentHash)
	}
	return eris.Wrap(err, "postgres: insert feedback")
}

func (s *PostgresStore) GetFeedback(ctx context.Context, id string) (*model.FeedbackItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id)
	f, err := scanFeedback(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: feedback %s", id)
	}
	return f, eris.Wrapf(err, "postgres: get feedback %s", id)
}

func (s *PostgresStore) ExistsByHash(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM feedback WHERE content_hash = $1`, hash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: lookup content hash")
	}
	return id, true, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackItem, error) {
	query, args, err := listFeedbackQuery(sq.Dollar, filter, jsonbTheme)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	items := []model.FeedbackItem{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		items = append(items, *f)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	themes, err := encodeThemes(e.Themes)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, sqlSaveEnrichment,
		string(e.Sentiment), e.SentimentScore, string(e.Urgency), themes,
		e.Summary, e.PriorityScore, model.FormatTime(e.ProcessedAt), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: save enrichment %s", id)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if _, _, err := s.lookup(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// lookup reports whether the item exists and has been processed.
func (s *PostgresStore) lookup(ctx context.Context, id string) (exists, processed bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT processed_at IS NOT NULL FROM feedback WHERE id = $1`, id).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, eris.Wrapf(ErrNotFound, "postgres: feedback %s", id)
	}
	if err != nil {
		return false, false, eris.Wrapf(err, "postgres: lookup feedback %s", id)
	}
	return true, processed, nil
}

func (s *PostgresStore) ClearFeedback(ctx context.Context) (int64, error) {
	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{`DELETE FROM workflow_steps`, `DELETE FROM workflow_runs`} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return eris.Wrapf(err, "postgres: %s", stmt)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM feedback`)
		if err != nil {
			return eris.Wrap(err, "postgres: delete feedback")
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) DeleteFeedback(ctx context.Context, id string) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM workflow_steps WHERE run_id IN (SELECT id FROM workflow_runs WHERE feedback_id = $1)`, id); err != nil {
			return eris.Wrapf(err, "postgres: delete steps for %s", id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM workflow_runs WHERE feedback_id = $1`, id); err != nil {
			return eris.Wrapf(err, "postgres: delete runs for %s", id)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM feedback WHERE id = $1`, id)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete feedback %s", id)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) CreateRun(ctx context.Context, payload model.FeedbackPayload) (*model.Run, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal payload")
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	run := &model.Run{
		ID:         uuid.New().String(),
		FeedbackID: payload.FeedbackID,
		Payload:    payload,
		Status:     model.RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.pool.Exec(ctx, sqlInsertRun,
		run.ID, run.FeedbackID, string(payloadJSON), string(run.Status),
		model.FormatTime(now), model.FormatTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return r, eris.Wrapf(err, "postgres: get run %s", runID)
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error {
	query, args, err := updateRunQuery(sq.Dollar, runID, update, model.FormatTime(s.now()))
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args, err := listRunsQuery(sq.Dollar, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveStep(ctx context.Context, rec model.StepRecord) error {
	completed := rec.CompletedAt
	if completed.IsZero() {
		completed = s.now()
	}
	_, err := s.pool.Exec(ctx, sqlSaveStep,
		rec.RunID, rec.Step, nullableJSON(rec.Output), model.FormatTime(completed),
	)
	return eris.Wrapf(err, "postgres: save step %s/%s", rec.RunID, rec.Step)
}

func (s *PostgresStore) LoadSteps(ctx context.Context, runID string) ([]model.StepRecord, error) {
	rows, err := s.pool.Query(ctx, sqlLoadSteps, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load steps %s", runID)
	}
	defer rows.Close()

	var recs []model.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: load steps iterate")
}
