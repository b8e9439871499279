package answerer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicAnswerer uses the Anthropic Messages API
type AnthropicAnswerer struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicAnswerer creates an answerer; baseURL may be empty for the
// public API
func NewAnthropicAnswerer(apiKey, baseURL string, opts Options) (*AnthropicAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", types.ErrConfiguration)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return &AnthropicAnswerer{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts.withDefaults(DefaultAnthropicModel),
	}, nil
}

func (a *AnthropicAnswerer) Generate(ctx context.Context, question string, contexts []string) (*Answer, error) {
	return generate(ctx, ProviderAnthropic, a.opts.Model, a.opts.Timeout, question, func(ctx context.Context) (string, error) {
		resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(a.opts.Model),
			MaxTokens:   int64(a.opts.MaxTokens),
			Temperature: anthropic.Float(0),
			System:      []anthropic.TextBlockParam{{Text: Instructions}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(question, contexts))),
			},
		})
		if err != nil {
			return "", err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	})
}

func (a *AnthropicAnswerer) Provider() string {
	return ProviderAnthropic
}

func (a *AnthropicAnswerer) Model() string {
	return a.opts.Model
}

func (a *AnthropicAnswerer) Close() error {
	return nil
}
