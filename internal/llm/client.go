package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers. Invoke sends one
// system+user prompt pair and returns the raw response text, or a
// *ModelError. No retries happen at this layer; retry policy belongs to
// the caller.
type Client interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds configuration for the LLM backends.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string // local inference server address (ollama)
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}
