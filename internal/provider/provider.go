// Package provider exposes the external text-generation service as a single
// Complete call, backed by Anthropic or Gemini.
package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/pkg/anthropic"
	"github.com/kraigferns/feedback-intel/pkg/gemini"
)

// Request is one bounded prompt sent to the provider.
type Request struct {
	// Task labels the call in logs and cost attribution.
	Task      string
	System    string
	Prompt    string
	MaxTokens int
}

// Provider completes prompts. Responses are untrusted free text.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when the backend produced no text.
var ErrEmptyResponse = eris.New("provider: empty response")

const defaultMaxTokens = 100

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropic adapts an Anthropic client.
func NewAnthropic(client anthropic.Client, model string) Provider {
	return &anthropicProvider{client: client, model: model}
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   int64(maxTokens(req)),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrapf(err, "provider: anthropic %s", req.Task)
	}
	resp.Usage.LogCost(p.model, req.Task)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Wrapf(ErrEmptyResponse, "provider: anthropic %s", req.Task)
	}
	return text, nil
}

type geminiProvider struct {
	client gemini.Client
	model  string
}

// NewGemini adapts a Gemini client.
func NewGemini(client gemini.Client, model string) Provider {
	return &geminiProvider{client: client, model: model}
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	var temp float32
	resp, err := p.client.Generate(ctx, gemini.GenerateRequest{
		Model:           p.model,
		System:          req.System,
		Prompt:          req.Prompt,
		MaxOutputTokens: int32(maxTokens(req)),
		Temperature:     &temp,
	})
	if err != nil {
		return "", eris.Wrapf(err, "provider: gemini %s", req.Task)
	}
	if resp.Text == "" {
		return "", eris.Wrapf(ErrEmptyResponse, "provider: gemini %s", req.Task)
	}
	return resp.Text, nil
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

// New builds the configured backend wrapped in a Guard.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	var backend Provider
	switch cfg.Provider.Name {
	case "anthropic", "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("provider: anthropic key is not configured")
		}
		backend = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, eris.Wrap(err, "provider: gemini")
		}
		backend = NewGemini(client, cfg.Gemini.Model)
	default:
		return nil, eris.Errorf("provider: unknown backend %q", cfg.Provider.Name)
	}
	return NewGuard(backend, cfg.Provider), nil
}
