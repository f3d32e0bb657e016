package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "cmd.db")
	return c
}

func TestMigrateCmd_RunE_BadDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	migrateCmd.SetContext(context.Background())
	defer migrateCmd.SetContext(nil)

	err := migrateCmd.RunE(migrateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestMigrateCmd_RunE_SQLite(t *testing.T) {
	cfg = sqliteConfig(t)

	migrateCmd.SetContext(context.Background())
	defer migrateCmd.SetContext(nil)

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))

	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	items, err := st.ListFeedback(context.Background(), store.FeedbackFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestServeCmd_RunE_MissingProviderKey(t *testing.T) {
	cfg = sqliteConfig(t)
	cfg.Provider.Name = "anthropic"
	cfg.Workflow.Engine = "local"
	cfg.Workflow.Concurrency = 1
	cfg.Server.Port = 8080

	serveCmd.SetContext(context.Background())
	defer serveCmd.SetContext(nil)

	err := serveCmd.RunE(serveCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic key is required")
}

func TestWorkerCmd_RunE_RequiresTemporal(t *testing.T) {
	cfg = sqliteConfig(t)
	cfg.Provider.Name = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Workflow.Engine = "local"
	cfg.Workflow.Concurrency = 1

	workerCmd.SetContext(context.Background())
	defer workerCmd.SetContext(nil)

	err := workerCmd.RunE(workerCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker requires")
}

func TestScoreInput(t *testing.T) {
	in, err := scoreInput("Enterprise", "critical", "negative", 3)
	require.NoError(t, err)
	assert.Equal(t, scorer.Input{
		Tier:      model.TierEnterprise,
		Urgency:   model.UrgencyCritical,
		Sentiment: model.SentimentNegative,
		AgeDays:   3,
	}, in)

	_, err = scoreInput("gold", "low", "neutral", 0)
	assert.ErrorContains(t, err, "invalid tier")
	_, err = scoreInput("free", "p1", "neutral", 0)
	assert.ErrorContains(t, err, "invalid urgency")
	_, err = scoreInput("free", "low", "angry", 0)
	assert.ErrorContains(t, err, "invalid sentiment")
	_, err = scoreInput("free", "low", "neutral", -1)
	assert.ErrorContains(t, err, "age-days")
}

func TestScoreCmd_PrintsPriority(t *testing.T) {
	cfg = &config.Config{}

	var out bytes.Buffer
	scoreCmd.SetOut(&out)
	defer scoreCmd.SetOut(nil)

	scoreTier, scoreUrgency, scoreSentiment, scoreAgeDays = "enterprise", "critical", "negative", 0
	defer func() {
		scoreTier, scoreUrgency, scoreSentiment, scoreAgeDays = "free", "medium", "neutral", 0
	}()

	require.NoError(t, scoreCmd.RunE(scoreCmd, nil))

	sc, err := scorer.New(scorer.WeightsFromConfig(cfg.Scoring))
	require.NoError(t, err)
	want := sc.Priority(scorer.Input{
		Tier:      model.TierEnterprise,
		Urgency:   model.UrgencyCritical,
		Sentiment: model.SentimentNegative,
	})
	assert.Contains(t, out.String(), fmt.Sprintf("priority: %.1f\n", want))
}

func TestInsightsCmd_PrintsReport(t *testing.T) {
	cfg = sqliteConfig(t)

	var out bytes.Buffer
	insightsCmd.SetOut(&out)
	defer insightsCmd.SetOut(nil)
	insightsCmd.SetContext(context.Background())
	defer insightsCmd.SetContext(nil)

	require.NoError(t, insightsCmd.RunE(insightsCmd, nil))

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Contains(t, report, "total")
}

func newRunStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createRun(t *testing.T, st store.Store, feedbackID string, status model.RunStatus) string {
	t.Helper()
	ctx := context.Background()
	run, err := st.CreateRun(ctx, model.FeedbackPayload{FeedbackID: feedbackID, CustomerTier: model.TierFree})
	require.NoError(t, err)
	if status != model.RunStatusQueued {
		require.NoError(t, st.UpdateRunStatus(ctx, run.ID, store.RunUpdate{Status: status}))
	}
	return run.ID
}

func TestResumableRuns(t *testing.T) {
	st := newRunStore(t)
	ctx := context.Background()

	queued := createRun(t, st, "fb-1", model.RunStatusQueued)
	running := createRun(t, st, "fb-2", model.RunStatusRunning)
	failed := createRun(t, st, "fb-3", model.RunStatusFailed)
	done := createRun(t, st, "fb-4", model.RunStatusComplete)

	ids, err := resumableRuns(ctx, st, "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{queued, running}, ids)

	ids, err = resumableRuns(ctx, st, "", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{queued, running, failed}, ids)

	ids, err = resumableRuns(ctx, st, failed, false)
	require.NoError(t, err)
	assert.Equal(t, []string{failed}, ids)

	_, err = resumableRuns(ctx, st, done, false)
	assert.ErrorContains(t, err, "already complete")

	_, err = resumableRuns(ctx, st, "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWaitIdle(t *testing.T) {
	st := newRunStore(t)
	ctx := context.Background()

	require.NoError(t, waitIdle(ctx, st, time.Millisecond))

	id := createRun(t, st, "fb-1", model.RunStatusRunning)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = st.UpdateRunStatus(context.Background(), id, store.RunUpdate{Status: model.RunStatusComplete})
	}()
	require.NoError(t, waitIdle(ctx, st, 5*time.Millisecond))

	createRun(t, st, "fb-2", model.RunStatusQueued)
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waitIdle(cctx, st, 5*time.Millisecond), context.DeadlineExceeded)
}
