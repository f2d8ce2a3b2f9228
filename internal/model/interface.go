package model

import (
	"context"
	"time"

	"github.com/voslund/vigil/internal/memory"
	"go.uber.org/zap"
)

// Config holds model interface settings.
type Config struct {
	// AgentName appears in prompt headers.
	AgentName string
	// MaxPromptTokens is the upper bound on an outgoing prompt; oversized
	// memory is trimmed before sending rather than rejected by the endpoint.
	MaxPromptTokens int
	// MaxResponseTokens caps the model's reply.
	MaxResponseTokens int
}

// Exchange is the literal prompt/response text of one model call, returned to
// the caller so it can be logged verbatim.
type Exchange struct {
	Prompt   string
	Response string
}

// Interface is the single gateway to the external language model.
type Interface struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// New creates a model interface around a provider client.
func New(client Client, cfg Config, logger *zap.Logger) *Interface {
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = 12000
	}
	if cfg.MaxResponseTokens <= 0 {
		cfg.MaxResponseTokens = 2000
	}
	return &Interface{client: client, cfg: cfg, logger: logger}
}

// ModelID identifies the underlying model.
func (m *Interface) ModelID() string {
	return m.client.ModelID()
}

// Act runs one action query: assess progress, choose a next action, execute
// it conceptually, report the outcome. The exchange is returned even on
// failure so the caller can log what was attempted.
func (m *Interface) Act(ctx context.Context, goal, memoryMD string, now time.Time) (*ActionResult, *Exchange, error) {
	prompt := m.fitPrompt(func(mem string) string {
		return buildActionPrompt(m.cfg.AgentName, goal, mem, now)
	}, memoryMD)

	ex := &Exchange{Prompt: prompt}
	raw, err := m.client.Complete(ctx, systemPreamble, prompt, m.cfg.MaxResponseTokens)
	if err != nil {
		return nil, ex, err
	}
	ex.Response = raw

	result, err := parseActionResponse(raw)
	if err != nil {
		return nil, ex, err
	}
	m.logger.Debug("action response parsed",
		zap.Int("response_len", len(raw)),
		zap.Bool("search_requested", result.SearchQuery != ""))
	return result, ex, nil
}

// Reflect runs one reflection query: a condensed synthesis of recent
// progress.
func (m *Interface) Reflect(ctx context.Context, goal, memoryMD string) (*ReflectionResult, *Exchange, error) {
	prompt := m.fitPrompt(func(mem string) string {
		return buildReflectionPrompt(m.cfg.AgentName, goal, mem)
	}, memoryMD)

	ex := &Exchange{Prompt: prompt}
	raw, err := m.client.Complete(ctx, systemPreamble, prompt, m.cfg.MaxResponseTokens)
	if err != nil {
		return nil, ex, err
	}
	ex.Response = raw

	result, err := parseReflectionResponse(raw)
	if err != nil {
		return nil, ex, err
	}
	return result, ex, nil
}

// Search issues a retrieval-augmented request when the provider supports it.
func (m *Interface) Search(ctx context.Context, query string) (string, error) {
	searcher, ok := m.client.(Searcher)
	if !ok {
		return "", ErrSearchUnsupported
	}
	return searcher.Search(ctx, query, m.cfg.MaxResponseTokens)
}

// fitPrompt builds the prompt and, if it exceeds the token bound, trims the
// embedded memory (middle-out) and rebuilds until it fits.
func (m *Interface) fitPrompt(build func(mem string) string, memoryMD string) string {
	prompt := build(memoryMD)
	budgetChars := m.cfg.MaxPromptTokens * 4

	for memory.EstimateTokens(prompt) > m.cfg.MaxPromptTokens {
		excess := len(prompt) - budgetChars
		target := len(memoryMD) - excess
		if target < 64 {
			target = 64
		}
		trimmed := trimMemory(memoryMD, target)
		if trimmed == memoryMD {
			// Memory cannot shrink further; the remaining overage is fixed
			// prompt scaffolding.
			break
		}
		memoryMD = trimmed
		prompt = build(memoryMD)
	}
	return prompt
}
