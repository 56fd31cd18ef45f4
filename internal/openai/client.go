// Package openai implements the chat and image provider clients against the
// OpenAI-compatible HTTP API. Callers treat the provider as an external
// collaborator: a non-success outcome surfaces as a typed error and must not
// leave any local state mutated.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatforge-app/chatforge/internal/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	chatTimeout    = 60 * time.Second
	imageTimeout   = 120 * time.Second

	// Chat payload knobs carried over from the original system.
	chatMaxTokens   = 5000
	chatTemperature = 0.7

	imageModel   = "dall-e-3"
	imageSize    = "1024x1024"
	imageQuality = "standard"
)

var (
	// ErrUnauthorized indicates the provider rejected the credential.
	ErrUnauthorized = errors.New("openai: unauthorized")
	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("openai: rate limited")
	// ErrMissingAPIKey indicates no credential was supplied.
	ErrMissingAPIKey = errors.New("openai: api key not configured")
)

// APIError is a provider non-success response with its HTTP status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("openai: status %d", e.Status)
}

// ChatRequest describes a single chat completion call.
type ChatRequest struct {
	SystemPrompt string
	History      []models.Message
	UserMessage  string
	Model        string
	APIKey       string
}

// ChatClient generates assistant replies.
type ChatClient interface {
	GenerateReply(ctx context.Context, req ChatRequest) (string, error)
}

// ImageClient generates images from prompts.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt, apiKey string) (string, error)
}

// Client talks to an OpenAI-compatible endpoint. It implements both
// ChatClient and ImageClient.
type Client struct {
	chatHTTP  *http.Client
	imageHTTP *http.Client
	baseURL   string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient constructs a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		chatHTTP:  &http.Client{Timeout: chatTimeout},
		imageHTTP: &http.Client{Timeout: imageTimeout},
		baseURL:   defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateReply calls the chat completions endpoint with the system prompt,
// the supplied history window, and the user message.
func (c *Client) GenerateReply(ctx context.Context, req ChatRequest) (string, error) {
	if req.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: models.RoleSystem, Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: models.RoleUser, Content: req.UserMessage})

	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  chatMaxTokens,
		"temperature": chatTemperature,
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if errCall := c.post(ctx, c.chatHTTP, "/chat/completions", req.APIKey, payload, &out); errCall != nil {
		return "", errCall
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", &APIError{Status: http.StatusOK, Message: "empty completion"}
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateImage calls the image generation endpoint and returns the image
// URL.
func (c *Client) GenerateImage(ctx context.Context, prompt, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	payload := map[string]any{
		"model":   imageModel,
		"prompt":  prompt,
		"n":       1,
		"size":    imageSize,
		"quality": imageQuality,
	}

	var out struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if errCall := c.post(ctx, c.imageHTTP, "/images/generations", apiKey, payload, &out); errCall != nil {
		return "", errCall
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", &APIError{Status: http.StatusOK, Message: "empty image response"}
	}
	return out.Data[0].URL, nil
}

// post sends a JSON request and decodes a success response into out,
// translating non-success statuses into typed errors.
func (c *Client) post(ctx context.Context, httpClient *http.Client, path, apiKey string, payload, out any) error {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return fmt.Errorf("openai: marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if errReq != nil {
		return fmt.Errorf("openai: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, errDo := httpClient.Do(req)
	if errDo != nil {
		return fmt.Errorf("openai: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return fmt.Errorf("openai: read response: %w", errRead)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &APIError{Status: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}

	if errUnmarshal := json.Unmarshal(respBody, out); errUnmarshal != nil {
		return fmt.Errorf("openai: decode response: %w", errUnmarshal)
	}
	return nil
}

// apiErrorMessage extracts the provider's error message when present.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return ""
	}
	return payload.Error.Message
}
