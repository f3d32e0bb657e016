// Package google reads cell values from Google Sheets spreadsheets.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL  = "https://sheets.googleapis.com/v4"
	defaultPageSize = 500
)

// Client performs Google Sheets API operations.
type Client interface {
	Values(ctx context.Context, spreadsheetID, rng string) (*ValueRange, error)
}

// ValueRange is the response from spreadsheets.values.get. Cells are
// formatted strings; trailing empty rows and cells are omitted by the API.
type ValueRange struct {
	Range          string     `json:"range"`
	MajorDimension string     `json:"majorDimension"`
	Values         [][]string `json:"values"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Sheets API client authenticated by API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Values(ctx context.Context, spreadsheetID, rng string) (*ValueRange, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("majorDimension", "ROWS")
	q.Set("valueRenderOption", "FORMATTED_VALUE")

	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?%s",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rng), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ValueRange
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}

// ReadSheet reads every row of a sheet, requesting pageSize rows at a time
// until a page comes back empty. The API drops trailing blank rows from a
// range, so a short page does not mean the sheet has ended.
func ReadSheet(ctx context.Context, c Client, spreadsheetID, sheet string, pageSize int) ([][]string, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var rows [][]string
	for start := 1; ; start += pageSize {
		rng := fmt.Sprintf("%s!%d:%d", quoteSheet(sheet), start, start+pageSize-1)
		vr, err := c.Values(ctx, spreadsheetID, rng)
		if err != nil {
			return nil, eris.Wrapf(err, "google: read %s", rng)
		}
		if len(vr.Values) == 0 {
			return rows, nil
		}
		rows = append(rows, vr.Values...)
	}
}

// quoteSheet wraps sheet names containing anything beyond letters, digits
// and underscores in single quotes, as A1 notation requires.
func quoteSheet(name string) string {
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}
