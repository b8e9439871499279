// Package answerer generates answers from retrieved page passages.
//
// Every provider receives the same system instructions and a user message
// holding the question and the passages, most relevant first. Temperature is
// zero and answers are capped at MaxTokens (100 by default) so that replies
// stay short and grounded in the page.
//
// Supported providers:
//   - openai: any OpenAI-compatible chat completions endpoint
//   - anthropic: the Messages API
//   - gemini: the Gemini API
//
// Provider failures, timeouts and empty replies are returned wrapped in
// types.ErrAnswerProvider. Nothing is retried.
package answerer
