package llm

import "context"

// LLMProvider defines the interface for completion backends (OpenAI-compatible HTTP, OpenAI SDK, Genkit)
type LLMProvider interface {
	// ChatWithHistory sends the full history and returns the complete reply
	ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error)

	// ChatWithHistoryStream sends the full history and streams the reply.
	// Request-level failures are returned before any chunk is produced.
	ChatWithHistoryStream(ctx context.Context, messages []Message, model string) (*Stream, error)

	// Name identifies the provider in logs
	Name() string
}
