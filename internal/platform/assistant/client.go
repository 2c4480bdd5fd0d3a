// Package assistant calls a Groq-compatible chat-completions endpoint to
// answer free-text questions about the current hospital state. The caller
// supplies a context blob that is JSON-serialized into the user message.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel  = "llama-3.3-70b-versatile"

	defaultTemperature = 0.4
	defaultMaxTokens   = 500
	requestTimeout     = 30 * time.Second
)

// ErrMissingAPIKey is returned when the client has no credential configured.
var ErrMissingAPIKey = errors.New("assistant: missing API key")

// ErrEmptyResponse is returned when the endpoint answers 2xx but with no
// content.
var ErrEmptyResponse = errors.New("assistant: model returned an empty response")

// APIError is a non-2xx response from the inference endpoint. Message
// carries the endpoint's own error text when it sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("assistant: request failed with status %d", e.StatusCode)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to one chat-completions endpoint.
type Client struct {
	apiURL string
	apiKey string
	model  string
	http   *http.Client
}

// NewClient builds a Client. Empty apiURL and model fall back to the Groq
// defaults; an empty apiKey is allowed here and rejected per-request so the
// server can start without a credential.
func NewClient(apiURL, apiKey, model string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: requestTimeout},
	}
}

// Ask sends the system prompt plus the user question with the serialized
// context blob and returns the model's answer text.
func (c *Client) Ask(ctx context.Context, systemPrompt, question string, contextData any) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	blob, err := json.Marshal(contextData)
	if err != nil {
		return "", fmt.Errorf("assistant: encode context: %w", err)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: strings.Join([]string{
				"Use this structured hospital data as context:",
				string(blob),
				"",
				"User question:",
				question,
			}, "\n")},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("assistant: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("assistant: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
		}
		return "", apiErr
	}

	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
