package llm

import (
	"fmt"
	"strings"

	"github.com/pennyflow/pennyflow/internal/common"
)

// NewClient creates an LLM client for the configured provider. Backend
// selection happens once at startup; callers only ever see the Client
// interface.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	case "ollama":
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}
