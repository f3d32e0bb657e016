package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kraigferns/feedback-intel/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second across all hosts. 0 = 5.
	RateLimit float64
	Retry     resilience.Policy
}

// HTTPFetcher downloads over HTTP with rate limiting and retries on
// transient failures.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    HTTPOptions
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "feedback-intel/1.0"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		opts:    opts,
	}
}

// Download fetches rawURL and returns the body. 429 and 5xx responses are
// retried; other non-200 statuses fail immediately.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	p := f.opts.Retry
	p.OnRetry = resilience.LogRetry("fetcher.download", zap.String("url", rawURL))

	body, err := resilience.DoVal(ctx, p, func(ctx context.Context) (io.ReadCloser, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.Transient(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		_ = resp.Body.Close()

		statusErr := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
