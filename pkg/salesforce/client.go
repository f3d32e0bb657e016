// Package salesforce provides JWT-authenticated SOQL access to Salesforce.
package salesforce

import (
	"context"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce API operations used by the importer.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// go-salesforce does not accept a context, so ctx only bounds the rate
// limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// JWTCreds are the connected-app settings for the JWT bearer flow.
type JWTCreds struct {
	LoginURL   string
	Username   string
	ClientID   string
	PrivateKey []byte
}

// Connect authenticates with the JWT bearer flow and returns a Client.
func Connect(creds JWTCreds, opts ...ClientOption) (Client, error) {
	if creds.Username == "" || creds.ClientID == "" || len(creds.PrivateKey) == 0 {
		return nil, eris.New("sf: username, client id and private key are required")
	}
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: string(creds.PrivateKey),
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	return NewClient(sf, opts...), nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}
