// Package llm provides the chat/completion client abstraction used by the
// query generator and the narrator. Supports Google Gemini (raw HTTP) and
// OpenAI-compatible backends.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Role identifies a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options bound a single LLM call.
type Options struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
}

// DefaultOptions returns conservative generation settings.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.2,
		MaxTokens:   2048,
	}
}

// Client defines the interface for LLM providers.
type Client interface {
	// Chat sends a conversation and returns the assistant's reply.
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)

	// Complete sends a single prompt with an optional system message.
	Complete(ctx context.Context, prompt, system string, opts Options) (string, error)

	// Model returns the model identifier.
	Model() string
}

// Streamer is an optional interface for clients that support streaming.
type Streamer interface {
	Stream(ctx context.Context, messages []Message, opts Options, callback func(chunk string)) error
}

// Config holds LLM client configuration.
type Config struct {
	// Provider: "gemini" or "openai"
	Provider string `yaml:"provider" json:"provider"`

	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		Timeout:  2 * time.Minute,
	}
}

// NewClient creates an LLM client from configuration.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use 'gemini' or 'openai')", cfg.Provider)
	}
}
