package answerer

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiAnswerer uses the Gemini API
type GeminiAnswerer struct {
	client *genai.Client
	opts   Options
}

// NewGeminiAnswerer creates an answerer; baseURL may be empty for the
// public API
func NewGeminiAnswerer(ctx context.Context, apiKey, baseURL string, opts Options) (*GeminiAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", types.ErrConfiguration)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %w", types.ErrConfiguration, err)
	}

	return &GeminiAnswerer{
		client: client,
		opts:   opts.withDefaults(DefaultGeminiModel),
	}, nil
}

func (a *GeminiAnswerer) Generate(ctx context.Context, question string, contexts []string) (*Answer, error) {
	return generate(ctx, ProviderGemini, a.opts.Model, a.opts.Timeout, question, func(ctx context.Context) (string, error) {
		config := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   int32(a.opts.MaxTokens),
			SystemInstruction: genai.NewContentFromText(Instructions, genai.RoleUser),
		}
		contents := []*genai.Content{
			genai.NewContentFromText(BuildPrompt(question, contexts), genai.RoleUser),
		}

		resp, err := a.client.Models.GenerateContent(ctx, a.opts.Model, contents, config)
		if err != nil {
			return "", err
		}

		// Use the first candidate that carries text
		var text strings.Builder
		if resp != nil {
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						text.WriteString(part.Text)
					}
				}
				if text.Len() > 0 {
					break
				}
			}
		}
		return text.String(), nil
	})
}

func (a *GeminiAnswerer) Provider() string {
	return ProviderGemini
}

func (a *GeminiAnswerer) Model() string {
	return a.opts.Model
}

func (a *GeminiAnswerer) Close() error {
	return nil
}
