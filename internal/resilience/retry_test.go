package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStops(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return errors.New("constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	calls := 0
	p := fastPolicy(4)
	p.Retryable = func(error) bool { return true }
	_ = Do(context.Background(), p, func(_ context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 4, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Transient(errors.New("reset"), 0)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.WorkflowConfig{
		RetryMaxAttempts:      7,
		RetryInitialBackoffMs: 100,
	})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, DefaultPolicy().MaxBackoff, p.MaxBackoff)
}

func TestBackoffCapped(t *testing.T) {
	p := Policy{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second, Multiplier: 10}.normalized()
	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, 2*time.Second, p.backoff(3))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(Transient(errors.New("x"), 429)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("SQLITE_BUSY: database is locked")))
	assert.False(t, IsTransient(errors.New("not found")))
	assert.Nil(t, Transient(nil, 500))
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, IsTransientStatus(429))
	assert.True(t, IsTransientStatus(503))
	assert.False(t, IsTransientStatus(400))
	assert.False(t, IsTransientStatus(404))
}
