// Package llm provides the chat client used for intent classification, plan
// generation, and lesson extraction. The model is treated as an unreliable
// oracle: callers validate every response shape before use.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is one turn in a chat request.
type Message struct {
	Role    string `json:"role"` // system, user, model
	Content string `json:"content"`
}

// ChatOptions tune a single chat call.
type ChatOptions struct {
	Temperature float64

	// JSONOnly constrains the provider to emit a single JSON object.
	JSONOnly bool
}

// ChatClient defines the interface for LLM providers.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// Config holds provider selection and credentials.
type Config struct {
	Provider           string // gemini, mock
	APIKey             string
	Model              string
	BaseURL            string
	Timeout            time.Duration
	MaxOutputTokens    int
	MinRequestInterval time.Duration
}

// NewClient creates a chat client based on configuration.
func NewClient(cfg Config) (ChatClient, error) {
	switch cfg.Provider {
	case "gemini", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiClient(cfg), nil
	case "mock":
		return NewScriptedClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
