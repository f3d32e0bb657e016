// Package gemini wraps the Google Gemini generateContent API as an alternate
// classification backend.
package gemini

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the classifiers.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single-turn text generation request.
type GenerateRequest struct {
	Model           string
	System          string
	Prompt          string
	MaxOutputTokens int32
	Temperature     *float32
}

// GenerateResponse carries the generated text and token counts.
type GenerateResponse struct {
	Text         string
	InputTokens  int32
	OutputTokens int32
}

// Option configures the client.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &GenerateResponse{Text: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}
