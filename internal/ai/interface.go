// Package ai drives language models to turn repository analysis facts into
// structured documentation. Engines wrap one model endpoint each; the
// Generator composes full documents by sequencing prompts over an Engine.
package ai

import (
	"context"
	"log/slog"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// Engine abstracts calls to a language model.
// To add a new engine:
//  1. Create a file in internal/ai/ (e.g. mymodel.go)
//  2. Implement Engine
//  3. Register in New()
type Engine interface {
	// Name returns the engine identifier (e.g. "openai", "ollama").
	Name() string

	// IsAvailable verifies the engine is reachable and configured.
	IsAvailable(ctx context.Context) bool

	// Complete sends one prompt and returns the model's text response.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single prompt exchange.
type CompletionRequest struct {
	// System sets the model's role for this call.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens caps the response length. Zero uses the engine default.
	MaxTokens int
	// Temperature controls sampling. Zero means the engine default.
	Temperature float64
}

// New returns the configured Engine.
// With no explicit provider it builds a failover chain from whatever is
// configured, in order: OpenAI-compatible, Anthropic, Ollama. With nothing
// configured it returns a NoopEngine; callers should check IsAvailable()
// before relying on generation.
func New(cfg config.AIConfig) (Engine, error) {
	if cfg.Provider != "" {
		return newSingle(cfg.Provider, cfg)
	}

	var engines []Engine
	if cfg.APIKey != "" || cfg.BaseURL != "" {
		e, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	if cfg.AnthropicKey != "" {
		engines = append(engines, NewAnthropic(cfg))
	}
	if cfg.OllamaURL != "" {
		e, err := NewOllama(cfg)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}

	switch len(engines) {
	case 0:
		slog.Debug("ai: no engine configured, generation disabled")
		return &NoopEngine{}, nil
	case 1:
		return engines[0], nil
	default:
		return NewChain(engines), nil
	}
}
