// Package inference talks to the language-model backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GenerateRequest is one prompt sent to the backend.
type GenerateRequest struct {
	System   string
	Document string
}

// Prompt renders the request as a single prompt.
func (r GenerateRequest) Prompt() string {
	return r.System + "\n\nDOCUMENT TEXT:\n" + r.Document + "\n"
}

// Client generates a JSON completion for a request. The returned string is
// the raw model output; callers parse it.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// OllamaClient calls the Ollama /api/generate endpoint in JSON mode.
type OllamaClient struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaClient creates a client for the server at url. Deadlines come from
// the caller's context.
func NewOllamaClient(url, model string) *OllamaClient {
	if model == "" {
		model = "mistral"
	}
	return &OllamaClient{url: strings.TrimRight(url, "/"), model: model, client: &http.Client{}}
}

type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

// Generate posts the prompt and returns the model's response text.
func (c *OllamaClient) Generate(ctx context.Context, r GenerateRequest) (string, error) {
	requestBody, err := json.Marshal(generatePayload{
		Model:   c.model,
		Prompt:  r.Prompt(),
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": 0.1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	var parsed struct {
		Response *string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if parsed.Response == nil {
		return "{}", nil
	}
	return *parsed.Response, nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("AI service error: %d", e.Code)
}
