package answerer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIAnswerer talks to any OpenAI-compatible chat completions endpoint
type OpenAIAnswerer struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIAnswerer creates an answerer; baseURL may be empty for the
// public OpenAI API
func NewOpenAIAnswerer(apiKey, baseURL string, opts Options) (*OpenAIAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", types.ErrConfiguration)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIAnswerer{
		client: openai.NewClientWithConfig(config),
		opts:   opts.withDefaults(DefaultOpenAIModel),
	}, nil
}

func (a *OpenAIAnswerer) Generate(ctx context.Context, question string, contexts []string) (*Answer, error) {
	return generate(ctx, ProviderOpenAI, a.opts.Model, a.opts.Timeout, question, func(ctx context.Context) (string, error) {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: Instructions},
				{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(question, contexts)},
			},
			MaxTokens: a.opts.MaxTokens,
			// A zero temperature is dropped by omitempty
			Temperature: math.SmallestNonzeroFloat32,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices in response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (a *OpenAIAnswerer) Provider() string {
	return ProviderOpenAI
}

func (a *OpenAIAnswerer) Model() string {
	return a.opts.Model
}

func (a *OpenAIAnswerer) Close() error {
	return nil
}
