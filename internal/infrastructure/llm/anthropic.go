package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/ports"
)

// DefaultAnthropicModel keeps per-article scoring cheap.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient implements ports.Completer with the Messages API.
type AnthropicClient struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	limiter *rate.Limiter
}

var _ ports.Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from provider settings.
func NewAnthropicClient(cfg ProviderConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   anthropic.Model(model),
		timeout: cfg.timeout(),
		limiter: cfg.limiter(),
	}, nil
}

// Complete sends the prompt as a single user message and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens(req.MaxTokens)),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("no text in anthropic response")
	}
	return out, nil
}
