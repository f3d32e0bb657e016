// Package resilience provides retry and circuit breaker helpers for calls to
// the classification provider and the store.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// Breaker opens after Threshold consecutive failures and lets a single probe
// through once Cooldown has elapsed.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker creates a closed breaker. Non-positive settings use 5 failures
// and a 30s cooldown.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// BreakerFromConfig builds the breaker guarding the classification provider.
func BreakerFromConfig(cfg config.ProviderConfig) *Breaker {
	return NewBreaker(cfg.Name, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second)
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for functions that return a value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	// Caller cancellation says nothing about the remote's health.
	if err != nil && ctx.Err() != nil {
		b.release()
		return zero, err
	}
	b.record(err)
	if err != nil {
		return zero, err
	}
	return val, nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.state != StateOpen {
			b.setState(StateOpen)
		}
	}
}

func (b *Breaker) setState(to BreakerState) {
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}
