package interfaces

import "context"

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// CompletionResult carries the generated text plus the provider-reported
// token counts the tracker records.
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// LLMService defines the interface for language model completions. The
// synthesizer must not depend on any specific model; implementations exist
// for Claude and Gemini, selected by config.
type LLMService interface {
	// Complete generates a completion for the conversation history in
	// chronological order, returning text and token usage.
	Complete(ctx context.Context, messages []Message) (*CompletionResult, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
