// Package models contains shared data models used across the errorwatch codebase.
package models

import "context"

// Chat roles understood by every LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMProvider is the core interface that all language-model integrations must implement.
// Never call specific providers directly; always inject this interface.
type LLMProvider interface {
	// Chat submits a conversation and returns the model's textual answer.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
}

// ChatMessage is one turn of a conversation sent to an LLMProvider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single Chat call. Zero values fall back to provider defaults.
type ChatOptions struct {
	Model     string
	WebSearch bool // let the model consult an external search tool when the provider supports one
}
