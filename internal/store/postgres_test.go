package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s := &PostgresStore{pool: mock, now: func() time.Time { return now }}
	return s, mock
}

var feedbackCols = []string{
	"id", "source", "content", "content_hash", "author", "customer_tier", "created_at",
	"sentiment", "sentiment_score", "urgency", "themes", "summary", "priority_score", "arr_estimate", "processed_at",
}

func TestPostgresStore_CreateFeedback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feedback`).
		WithArgs(pgxmock.AnyArg(), "support", "Checkout is broken", "abc", pgxmock.AnyArg(), "pro", "2026-02-01T00:00:00.000Z", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	item := &model.FeedbackItem{Source: model.SourceSupport, Content: "Checkout is broken", ContentHash: "abc", CustomerTier: model.TierPro}
	require.NoError(t, s.CreateFeedback(context.Background(), item))
	assert.NotEmpty(t, item.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateFeedback_UniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feedback`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.CreateFeedback(context.Background(), &model.FeedbackItem{ContentHash: "abc"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFeedback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	author := "dana"
	sentiment := "negative"
	score := -0.75
	urgency := "critical"
	themes := `["reliability"]`
	summary := "Production outage."
	priority := 9.1
	arr := int64(50000)
	processed := "2026-02-01T10:00:00.000Z"

	mock.ExpectQuery(`SELECT id, source, content, content_hash .* FROM feedback WHERE id = \$1`).
		WithArgs("fb-1").
		WillReturnRows(pgxmock.NewRows(feedbackCols).AddRow(
			"fb-1", "support", "Production is down", "abc", &author, "enterprise", "2026-01-31T10:00:00.000Z",
			&sentiment, &score, &urgency, &themes, &summary, &priority, &arr, &processed,
		))

	f, err := s.GetFeedback(context.Background(), "fb-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierEnterprise, f.CustomerTier)
	assert.Equal(t, model.UrgencyCritical, *f.Urgency)
	assert.Equal(t, []string{"reliability"}, f.Themes)
	assert.True(t, f.Processed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFeedback_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM feedback WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetFeedback(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExistsByHash(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM feedback WHERE content_hash = \$1`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("fb-1"))
	mock.ExpectQuery(`SELECT id FROM feedback WHERE content_hash = \$1`).
		WithArgs("zzz").
		WillReturnError(pgx.ErrNoRows)

	id, found, err := s.ExistsByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fb-1", id)

	_, found, err = s.ExistsByHash(context.Background(), "zzz")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFeedback_ThemeFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM feedback WHERE source = \$1 AND themes::jsonb @> \$2::jsonb ORDER BY priority_score DESC NULLS LAST, created_at DESC LIMIT 100`).
		WithArgs("discord", `["pricing"]`).
		WillReturnRows(pgxmock.NewRows(feedbackCols))

	items, err := s.ListFeedback(context.Background(), FeedbackFilter{Source: "discord", Theme: "Pricing"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)UPDATE feedback SET sentiment = \$1.*WHERE id = \$8 AND processed_at IS NULL`).
		WithArgs("negative", -0.8, "high", `["reliability"]`, "Broken.", 6.3, "2026-02-01T12:00:00.000Z", "fb-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	e := model.Enrichment{
		Sentiment: model.SentimentNegative, SentimentScore: -0.8, Urgency: model.UrgencyHigh,
		Themes: []string{"reliability"}, Summary: "Broken.", PriorityScore: 6.3,
		ProcessedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	applied, err := s.SaveEnrichment(context.Background(), "fb-1", e)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEnrichment_AlreadyProcessed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE feedback SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "fb-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT processed_at IS NOT NULL FROM feedback WHERE id = \$1`).
		WithArgs("fb-1").
		WillReturnRows(pgxmock.NewRows([]string{"processed"}).AddRow(true))

	applied, err := s.SaveEnrichment(context.Background(), "fb-1", model.Enrichment{})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEnrichment_StorageError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE feedback SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "fb-1").
		WillReturnError(errors.New("connection refused"))

	_, err := s.SaveEnrichment(context.Background(), "fb-1", model.Enrichment{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save enrichment")
}

func TestPostgresStore_ClearFeedback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM workflow_steps`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM workflow_runs`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM feedback`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := s.ClearFeedback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteFeedback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM workflow_steps WHERE run_id IN`).WithArgs("fb-1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM workflow_runs WHERE feedback_id = \$1`).WithArgs("fb-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM feedback WHERE id = \$1`).WithArgs("fb-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteFeedback(context.Background(), "fb-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteFeedback_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM workflow_steps`).WithArgs("nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM workflow_runs`).WithArgs("nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM feedback`).WithArgs("nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := s.DeleteFeedback(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE workflow_runs SET status = \$1, error = \$2, updated_at = \$3, current_step = \$4, attempts = attempts \+ 1 WHERE id = \$5`).
		WithArgs("running", "", "2026-02-01T00:00:00.000Z", "sentiment-analyzed", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE workflow_runs SET status = \$1`).
		WithArgs("complete", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "run-1", RunUpdate{Status: model.RunStatusRunning, CurrentStep: "sentiment-analyzed"})
	require.NoError(t, err)

	err = s.UpdateRunStatus(context.Background(), "missing", RunUpdate{Status: model.RunStatusComplete})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStep(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO workflow_steps .* ON CONFLICT \(run_id, step\) DO NOTHING`).
		WithArgs("run-1", "themes-extracted", `["pricing"]`, "2026-02-01T00:00:00.000Z").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveStep(context.Background(), model.StepRecord{RunID: "run-1", Step: "themes-extracted", Output: []byte(`["pricing"]`)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSteps(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT run_id, step, output, completed_at FROM workflow_steps WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "step", "output", "completed_at"}).
			AddRow("run-1", "sentiment-analyzed", `{"sentiment":"neutral","score":0}`, "2026-02-01T00:00:01.000Z"))

	recs, err := s.LoadSteps(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sentiment-analyzed", recs[0].Step)
	assert.JSONEq(t, `{"sentiment":"neutral","score":0}`, string(recs[0].Output))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM workflow_runs WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS feedback`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
