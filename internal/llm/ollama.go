package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaClient implements the Client interface for a local Ollama
// inference server.
type ollamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// newOllamaClient creates a client for a local Ollama server.
func newOllamaClient(cfg Config) (Client, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second // local inference can be slow
	}

	return &ollamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Invoke sends the prompt to Ollama and returns the raw response text.
func (c *ollamaClient) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	requestBody := map[string]any{
		"model":  c.model,
		"prompt": userPrompt,
		"system": systemPrompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newModelError(KindMalformedResponse, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newModelError(KindRateLimited, fmt.Errorf("ollama rate limited: %s", string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", newModelError(KindUnreachable, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body)))
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", newModelError(KindMalformedResponse, fmt.Errorf("failed to parse response: %w", err))
	}

	if response.Response == "" {
		return "", newModelError(KindMalformedResponse, fmt.Errorf("empty response from ollama"))
	}

	return response.Response, nil
}

// ollamaResponse represents the Ollama generate API response.
type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}
