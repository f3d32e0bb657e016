// Package notion reads feedback rows from Notion databases.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion API operations used by this application.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s). A value
// <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client for the given integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "notion: rate limit")
		}
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}
