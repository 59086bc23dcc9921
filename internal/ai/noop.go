package ai

import (
	"context"
	"errors"
)

// errNoAI is returned by NoopEngine for all generation calls.
var errNoAI = errors.New("generation engine not configured — run 'docsmith init' to enable OpenAI, Anthropic, or Ollama")

// NoopEngine is used when no generation engine is configured.
// IsAvailable always returns false; Complete returns errNoAI.
// This allows the rest of the codebase to check IsAvailable() and degrade
// gracefully to analysis-only mode instead of crashing.
type NoopEngine struct{}

func (n *NoopEngine) Name() string                       { return "none" }
func (n *NoopEngine) IsAvailable(_ context.Context) bool { return false }

func (n *NoopEngine) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	return "", errNoAI
}
