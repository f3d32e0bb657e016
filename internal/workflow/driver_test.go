package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/store"
)

func TestDriver_ExecuteScenario(t *testing.T) {
	st := newTestStore(t)
	mp := scriptedProvider()
	d := newTestDriver(t, st, mp)
	ctx := context.Background()

	item := seedFeedback(t, st, outageText, model.TierEnterprise)
	run := seedRun(t, st, item)

	require.NoError(t, d.Execute(ctx, run.ID))

	got, err := st.GetFeedback(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Processed())
	require.NotNil(t, got.Sentiment)
	require.NotNil(t, got.Urgency)
	require.NotNil(t, got.Summary)
	require.NotNil(t, got.PriorityScore)
	assert.Equal(t, model.SentimentNegative, *got.Sentiment)
	assert.Equal(t, model.UrgencyCritical, *got.Urgency)
	assert.Contains(t, got.Themes, "reliability")
	// 10*0.4 + 10*0.3 + 10*0.2 + 0.5*0.1 = 9.05
	assert.Equal(t, 9.1, *got.PriorityScore)
	assert.True(t, fixedNow.Equal(*got.ProcessedAt))

	r, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, r.Status)
	assert.Equal(t, StateComplete, r.CurrentStep)
	assert.Equal(t, 1, r.Attempts)

	recs, err := st.LoadSteps(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, recs, len(Steps))
}

func TestDriver_ExecuteCompletedRunIsNoop(t *testing.T) {
	st := newTestStore(t)
	mp := scriptedProvider()
	d := newTestDriver(t, st, mp)
	ctx := context.Background()

	run := seedRun(t, st, seedFeedback(t, st, outageText, model.TierEnterprise))
	require.NoError(t, d.Execute(ctx, run.ID))
	calls := len(mp.Calls)

	require.NoError(t, d.Execute(ctx, run.ID))
	assert.Len(t, mp.Calls, calls)
}

func TestDriver_ResumeSkipsCheckpointedSteps(t *testing.T) {
	ctx := context.Background()

	// Uninterrupted reference run.
	refStore := newTestStore(t)
	refItem := seedFeedback(t, refStore, outageText, model.TierEnterprise)
	refRun := seedRun(t, refStore, refItem)
	require.NoError(t, newTestDriver(t, refStore, scriptedProvider()).Execute(ctx, refRun.ID))
	want, err := refStore.GetFeedback(ctx, refItem.ID)
	require.NoError(t, err)

	// Crash after the sentiment checkpoint, before themes.
	st := newTestStore(t)
	item := seedFeedback(t, st, outageText, model.TierEnterprise)
	run := seedRun(t, st, item)

	first := scriptedProvider()
	require.NoError(t, newTestDriver(t, st, first).ExecuteStep(ctx, run.ID, StepSentiment))
	assert.Equal(t, 1, sentimentCalls(first))

	// A fresh process resumes the run.
	second := scriptedProvider()
	require.NoError(t, newTestDriver(t, st, second).Execute(ctx, run.ID))
	assert.Equal(t, 0, sentimentCalls(second), "sentiment must not be recomputed")

	got, err := st.GetFeedback(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Sentiment, got.Sentiment)
	assert.Equal(t, want.SentimentScore, got.SentimentScore)
	assert.Equal(t, want.Urgency, got.Urgency)
	assert.Equal(t, want.Themes, got.Themes)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.PriorityScore, got.PriorityScore)
	assert.Equal(t, want.ProcessedAt, got.ProcessedAt)
}

func TestDriver_ExecuteStepRequiresOrder(t *testing.T) {
	st := newTestStore(t)
	d := newTestDriver(t, st, scriptedProvider())
	ctx := context.Background()

	run := seedRun(t, st, seedFeedback(t, st, outageText, model.TierFree))

	err := d.ExecuteStep(ctx, run.ID, StepUrgency)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires sentiment-analyzed")

	err = d.ExecuteStep(ctx, run.ID, Step("translated"))
	assert.Error(t, err)

	require.NoError(t, d.ExecuteStep(ctx, run.ID, StepSentiment))
	require.NoError(t, d.ExecuteStep(ctx, run.ID, StepSentiment), "repeat is a no-op")

	recs, err := st.LoadSteps(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDriver_AlreadyStoredCountsAsDone(t *testing.T) {
	st := newTestStore(t)
	d := newTestDriver(t, st, scriptedProvider())
	ctx := context.Background()

	item := seedFeedback(t, st, outageText, model.TierEnterprise)
	run := seedRun(t, st, item)
	for _, step := range Steps[:len(Steps)-1] {
		require.NoError(t, d.ExecuteStep(ctx, run.ID, step))
	}

	// A previous attempt wrote the row but crashed before checkpointing.
	earlier := model.Enrichment{
		Sentiment:   model.SentimentNegative,
		Urgency:     model.UrgencyCritical,
		Themes:      []string{"reliability"},
		Summary:     "earlier write",
		ProcessedAt: fixedNow.Add(-time.Second),
	}
	written, err := st.SaveEnrichment(ctx, item.ID, earlier)
	require.NoError(t, err)
	require.True(t, written)

	require.NoError(t, d.Execute(ctx, run.ID))

	got, err := st.GetFeedback(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "earlier write", *got.Summary)

	recs, err := st.LoadSteps(ctx, run.ID)
	require.NoError(t, err)
	var stored storedOutput
	for _, rec := range recs {
		if rec.Step == string(StepStored) {
			require.NoError(t, json.Unmarshal(rec.Output, &stored))
		}
	}
	assert.False(t, stored.Written)

	r, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, r.Status)
}

func TestDriver_ProviderFailuresDegrade(t *testing.T) {
	st := newTestStore(t)
	mp := &mockProvider{}
	mp.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))
	d := newTestDriver(t, st, mp)
	ctx := context.Background()

	item := seedFeedback(t, st, "Thanks for the update", model.TierPro)
	run := seedRun(t, st, item)

	require.NoError(t, d.Execute(ctx, run.ID))

	got, err := st.GetFeedback(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SentimentNeutral, *got.Sentiment)
	assert.Equal(t, 0.0, *got.SentimentScore)
	assert.Equal(t, []string{model.ThemeGeneral}, got.Themes)
	assert.Equal(t, model.UrgencyMedium, *got.Urgency)
	assert.Equal(t, "Thanks for the update", *got.Summary)
	assert.True(t, got.Processed())
}

func TestDriver_StorageErrorFailsRun(t *testing.T) {
	base := newTestStore(t)
	st := &faultyStore{Store: base, enrichErr: errors.New("disk I/O error")}
	d := newTestDriver(t, st, scriptedProvider())
	ctx := context.Background()

	item := seedFeedback(t, st, outageText, model.TierEnterprise)
	run := seedRun(t, st, item)

	err := d.Execute(ctx, run.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store enrichment")

	got, err := st.GetFeedback(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed())
	assert.Nil(t, got.Sentiment, "no enrichment column is written before the final step")

	recs, err := st.LoadSteps(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, recs, len(Steps)-1)
}

func TestDriver_UnknownRun(t *testing.T) {
	d := newTestDriver(t, newTestStore(t), scriptedProvider())

	err := d.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
