package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
)

// Policy controls retry behavior with exponential backoff and jitter.
type Policy struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is a fraction of the computed delay (0.25 = ±25%).
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the policy used for storage writes and provider calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.25,
	}
}

// PolicyFromConfig builds a Policy from workflow settings, keeping defaults
// for unset values.
func PolicyFromConfig(cfg config.WorkflowConfig) Policy {
	p := DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(cfg.RetryInitialBackoffMs) * time.Millisecond
	}
	if cfg.RetryMaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(cfg.RetryMaxBackoffMs) * time.Millisecond
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	return time.Duration(math.Max(delay, 0))
}

// LogRetry returns an OnRetry callback that logs each attempt.
func LogRetry(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			append(fields,
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)...,
		)
	}
}
