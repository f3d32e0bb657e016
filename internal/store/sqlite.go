package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kraigferns/feedback-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer avoids SQLITE_BUSY between concurrent workflow runs.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	content         TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	author          TEXT,
	customer_tier   TEXT NOT NULL DEFAULT 'free',
	created_at      TEXT NOT NULL,
	sentiment       TEXT,
	sentiment_score REAL,
	urgency         TEXT,
	themes          TEXT,
	summary         TEXT,
	processed_at    TEXT,
	priority_score  REAL,
	arr_estimate    INTEGER
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateFeedback(ctx context.Context, item *model.FeedbackItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	item.CreatedAt = item.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, source, content, content_hash, author, customer_tier, created_at, arr_estimate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Source), item.Content, item.ContentHash, item.Author,
		string(item.CustomerTier), model.FormatTime(item.CreatedAt), item.ARREstimate,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert feedback %s", item.ContentHash)
	}
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) GetFeedback(ctx context.Context, id string) (*model.FeedbackItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id)
	f, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: feedback %s", id)
	}
	return f, eris.Wrapf(err, "sqlite: get feedback %s", id)
}

func (s *SQLiteStore) ExistsByHash(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM feedback WHERE content_hash = ?`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: lookup content hash")
	}
	return id, true, nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackItem, error) {
	query, args, err := listFeedbackQuery(sq.Question, filter, likeTheme)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	items := []model.FeedbackItem{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		items = append(items, *f)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	themes, err := encodeThemes(e.Themes)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET sentiment = ?, sentiment_score = ?, urgency = ?, themes = ?,
		 summary = ?, priority_score = ?, processed_at = ?
		 WHERE id = ? AND processed_at IS NULL`,
		string(e.Sentiment), e.SentimentScore, string(e.Urgency), themes,
		e.Summary, e.PriorityScore, model.FormatTime(e.ProcessedAt), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: save enrichment %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return true, nil
	}

	// Nothing updated: either already processed or missing.
	if _, err := s.GetFeedback(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStore) ClearFeedback(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin clear")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM workflow_steps`, `DELETE FROM workflow_runs`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s", stmt)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM feedback`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete feedback")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit clear")
}

func (s *SQLiteStore) DeleteFeedback(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE run_id IN (SELECT id FROM workflow_runs WHERE feedback_id = ?)`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete steps for %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_runs WHERE feedback_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete runs for %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete feedback %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, payload model.FeedbackPayload) (*model.Run, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal payload")
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, feedback_id, payload, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.FeedbackID, string(payloadJSON), string(run.Status),
		model.FormatTime(now), model.FormatTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, eris.Wrapf(err, "sqlite: get run %s", runID)
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error {
	query, args, err := updateRunQuery(sq.Question, runID, update, model.FormatTime(s.now()))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args, err := listRunsQuery(sq.Question, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveStep(ctx context.Context, rec model.StepRecord) error {
	completed := rec.CompletedAt
	if completed.IsZero() {
		completed = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (run_id, step, output, completed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, step) DO NOTHING`,
		rec.RunID, rec.Step, nullableJSON(rec.Output), model.FormatTime(completed),
	)
	return eris.Wrapf(err, "sqlite: save step %s/%s", rec.RunID, rec.Step)
}

func (s *SQLiteStore) LoadSteps(ctx context.Context, runID string) ([]model.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, output, completed_at FROM workflow_steps WHERE run_id = ? ORDER BY completed_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load steps %s", runID)
	}
	defer rows.Close()

	var recs []model.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: load steps iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
