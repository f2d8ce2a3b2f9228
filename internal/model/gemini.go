package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint when non-empty.
	BaseURL string
	Timeout time.Duration
}

// GeminiClient implements Client and Searcher on the Google GenAI SDK. Search
// uses the native GoogleSearch grounding tool.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini client. The timeout is the hard bound per
// call after which a request is treated as transient.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &AuthError{Err: fmt.Errorf("API key not configured")}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// ModelID returns the configured model identifier.
func (c *GeminiClient) ModelID() string {
	return c.model
}

// withTimeout applies the per-call deadline unless the caller set one.
func (c *GeminiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Complete sends one generation request. There is no inline retry: a
// transient failure is reported to the caller, which retries at its next
// scheduled tick.
func (c *GeminiClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &MalformedResponseError{Raw: ""}
	}
	return text, nil
}

// Search issues a retrieval-augmented request grounded with Google Search and
// returns the raw findings text.
func (c *GeminiClient) Search(ctx context.Context, query string, maxTokens int) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	prompt := "Search the web for the following and report the most relevant, recent findings " +
		"with sources:\n\n" + query

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &MalformedResponseError{Raw: ""}
	}
	return text, nil
}

// classifyGenAIError maps SDK failures onto the error taxonomy. The SDK does
// not expose a stable typed error surface for HTTP status, so auth failures
// are matched on the reported status text.
func classifyGenAIError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "UNAUTHENTICATED") || strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(msg, "API key") {
		return &AuthError{Err: err}
	}
	return &TransientError{Err: err}
}
