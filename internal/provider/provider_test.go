package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/pkg/anthropic"
	anthropicmocks "github.com/kraigferns/feedback-intel/pkg/anthropic/mocks"
	"github.com/kraigferns/feedback-intel/pkg/gemini"
	geminimocks "github.com/kraigferns/feedback-intel/pkg/gemini/mocks"
)

func TestAnthropic_Complete(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 20 &&
			req.System == "sys" &&
			len(req.Messages) == 1 && req.Messages[0].Content == "prompt" &&
			req.Temperature != nil && *req.Temperature == 0
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "  high \n"}},
	}, nil)

	p := NewAnthropic(client, "claude-haiku-4-5-20251001")
	out, err := p.Complete(context.Background(), Request{Task: "urgency", System: "sys", Prompt: "prompt", MaxTokens: 20})
	require.NoError(t, err)
	assert.Equal(t, "high", out)
}

func TestAnthropic_EmptyAndError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{}, nil).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("overloaded")).Once()

	p := NewAnthropic(client, "m")
	_, err := p.Complete(context.Background(), Request{Task: "themes", Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = p.Complete(context.Background(), Request{Task: "themes", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider: anthropic themes")
}

func TestGemini_Complete(t *testing.T) {
	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.Model == "gemini-2.5-flash" && req.MaxOutputTokens == defaultMaxTokens && req.Prompt == "p"
	})).Return(&gemini.GenerateResponse{Text: "pricing, support"}, nil)

	p := NewGemini(client, "gemini-2.5-flash")
	out, err := p.Complete(context.Background(), Request{Task: "themes", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "pricing, support", out)
}

func TestGemini_Empty(t *testing.T) {
	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.Anything).Return(&gemini.GenerateResponse{}, nil)

	_, err := NewGemini(client, "m").Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNew_Backends(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provider.Name = "anthropic"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)

	cfg.Anthropic.Key = "sk-test"
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Guard{}, p)

	cfg.Provider.Name = "gemini"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)

	cfg.Provider.Name = "llama"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
