package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/resilience"
)

// Guard bounds calls to a backend with a rate limit, a circuit breaker and an
// optional per-call timeout.
type Guard struct {
	next    Provider
	limiter *rate.Limiter
	breaker *resilience.Breaker
	timeout time.Duration
}

// NewGuard wraps next using the provider settings. A zero rate disables limiting.
func NewGuard(next Provider, cfg config.ProviderConfig) *Guard {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Guard{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.BreakerFromConfig(cfg),
		timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "provider: rate limit wait")
	}

	text, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (string, error) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.next.Complete(ctx, req)
	})
	if err != nil {
		zap.L().Debug("provider: call failed",
			zap.String("task", req.Task),
			zap.Stringer("breaker", g.breaker.State()),
			zap.Error(err),
		)
		return "", err
	}
	return text, nil
}
