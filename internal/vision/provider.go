package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is one completion call. ImageDataURL is empty for repair calls.
type Request struct {
	Prompt       string
	ImageDataURL string
	Temperature  float64
	MaxTokens    int
	ForceJSON    bool
}

// Provider completes a prompt against one model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// newProvider selects the provider implementation for cfg.
func newProvider(cfg Config) (Provider, error) {
	hc := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "ollama":
		return &ollamaProvider{cfg: cfg, hc: hc}, nil
	case "openai":
		return &openaiProvider{cfg: cfg, hc: hc}, nil
	case "openrouter":
		return &openrouterProvider{cfg: cfg, hc: hc}, nil
	default:
		return nil, fmt.Errorf("vision: unknown provider %q", cfg.Provider)
	}
}

type chatRequest struct {
	Model           string          `json:"model"`
	Messages        []chatMessage   `json:"messages"`
	Temperature     float64         `json:"temperature"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	ResponseFormat  *responseFormat `json:"response_format,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError is a non-2xx provider response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vision: provider returned %d: %s", e.status, e.body)
}

func (e *statusError) transient() bool {
	return e.status == http.StatusRequestTimeout ||
		e.status == http.StatusTooManyRequests ||
		e.status >= 500
}

func userMessage(req Request) []chatMessage {
	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	if req.ImageDataURL != "" {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: req.ImageDataURL},
		})
	}
	return []chatMessage{{Role: "user", Content: parts}}
}

// chatCall posts an OpenAI-format chat completion and returns the first
// choice's content.
func chatCall(ctx context.Context, hc *http.Client, endpoint, apiKey string,
	headers map[string]string, body chatRequest) (string, error) {

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("vision: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("vision: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{status: resp.StatusCode, body: snippet(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("vision: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("vision: provider error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyContent
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type ollamaProvider struct {
	cfg Config
	hc  *http.Client
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       strings.TrimPrefix(p.cfg.Model, "ollama/"),
		Messages:    userMessage(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	endpoint := strings.TrimRight(p.cfg.APIBase, "/") + "/v1/chat/completions"
	return chatCall(ctx, p.hc, endpoint, p.cfg.APIKey, nil, body)
}

type openaiProvider struct {
	cfg Config
	hc  *http.Client
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:           p.cfg.Model,
		Messages:        userMessage(req),
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: p.cfg.ReasoningEffort,
	}
	if req.ForceJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	base := p.cfg.APIBase
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	endpoint := strings.TrimRight(base, "/") + "/chat/completions"
	return chatCall(ctx, p.hc, endpoint, p.cfg.APIKey, nil, body)
}

type openrouterProvider struct {
	cfg Config
	hc  *http.Client
}

func (p *openrouterProvider) Name() string { return "openrouter" }

func (p *openrouterProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       strings.TrimPrefix(p.cfg.Model, "openrouter/"),
		Messages:    userMessage(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	base := p.cfg.APIBase
	if base == "" {
		base = "https://openrouter.ai/api/v1"
	}
	endpoint := strings.TrimRight(base, "/") + "/chat/completions"
	headers := map[string]string{
		"HTTP-Referer": "https://github.com/hazyhaar/pricewatch",
		"X-Title":      "pricewatch",
	}
	return chatCall(ctx, p.hc, endpoint, p.cfg.APIKey, headers, body)
}
