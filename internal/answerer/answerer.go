package answerer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const (
	// DefaultMaxTokens caps the length of an answer
	DefaultMaxTokens = 100

	// DefaultTimeout bounds a single provider call
	DefaultTimeout = 60 * time.Second
)

// Instructions is the system prompt sent with every question
const Instructions = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Use three sentences maximum and keep the answer concise."

// Answer is a generated answer and the model that produced it
type Answer struct {
	Text     string
	Provider string
	Model    string
}

// Answerer generates an answer to a question from retrieved page context
type Answerer interface {
	// Generate answers question using contexts, most relevant first
	Generate(ctx context.Context, question string, contexts []string) (*Answer, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the answerer
	Close() error
}

// Options are shared by all providers
type Options struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// BuildPrompt renders the user message: the question followed by the
// context passages separated by blank lines
func BuildPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nContext: ")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\nAnswer:")
	return b.String()
}

// validateQuestion rejects empty questions
func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question cannot be empty", types.ErrInvalidInput)
	}
	return nil
}

// answerError wraps err as a failure of provider
func answerError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrAnswerProvider, provider, err)
}

// generate bounds one provider call by timeout and wraps its failure
func generate(ctx context.Context, provider, model string, timeout time.Duration, question string, call func(context.Context) (string, error)) (*Answer, error) {
	if err := validateQuestion(question); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := call(callCtx)
	if err != nil {
		return nil, answerError(provider, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, answerError(provider, fmt.Errorf("empty response from %s", model))
	}

	return &Answer{Text: text, Provider: provider, Model: model}, nil
}
