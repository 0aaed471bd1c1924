// Package llm provides chat-completion clients for the language-model
// backends aide can talk to: a local Ollama server or any
// OpenAI-compatible API.
package llm

import "context"

// Client is the interface every backend implements. Calls are one-shot
// completions; the tag protocol needs no streaming or native tool calls.
type Client interface {
	// Chat sends the conversation and returns the model's reply.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
