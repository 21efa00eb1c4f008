// Package genai provides optional OpenAI-backed rephrasing of outbound
// replies. The flow engine stays deterministic; only the wording of text
// already produced by it may change.
package genai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// polishSystemPrompt constrains the rewrite: wording only, never content.
// Numbered options are how users select candidates, so they must survive
// verbatim.
const polishSystemPrompt = "You rephrase short chat messages from a Filipino " +
	"community assistant to sound warm and natural. Keep every fact, name, " +
	"date, time, numbered option, and question exactly as given. Keep " +
	"numbered lists with the same numbers and order. Reply with the " +
	"rephrased message only."

// chatService is the slice of the OpenAI client the polisher needs, extracted
// so tests can substitute a fake.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion API for reply polishing.
type Client struct {
	chat  chatService
	model string
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient creates a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// Polish rewrites one outbound reply. The caller falls back to the original
// text on error, so a flaky API never blocks delivery.
func (c *Client) Polish(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(polishSystemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	out := resp.Choices[0].Message.Content
	if out == "" {
		return "", fmt.Errorf("empty completion")
	}
	return out, nil
}
