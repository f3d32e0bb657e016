package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler, opts ...ClientOption) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf, opts...), ts
}

func TestSFClient_QueryRows(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes":  map[string]any{"type": "Case"},
					"Id":          "500xx",
					"Description": "Webhook retries are flaky",
				},
			},
		})
	})

	client, ts := newTestSFClient(t, handler, WithRateLimit(50))
	defer ts.Close()

	rows, err := QueryRows(context.Background(), client, "SELECT Id, Description FROM Case", []string{"Id", "Description"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"500xx", "Webhook retries are flaky"}, rows[1])
}

func TestSFClient_Query_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var records []map[string]any
	err := client.Query(context.Background(), "INVALID SOQL", &records)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestSFClient_RateLimitCancelled(t *testing.T) {
	client, ts := newTestSFClient(t, http.NotFoundHandler(), WithRateLimit(0.001))
	defer ts.Close()

	sc := client.(*sfClient)
	assert.True(t, sc.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var records []map[string]any
	err := client.Query(ctx, "SELECT Id FROM Case", &records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: rate limit")
}
