package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

const (
	failureThreshold = 3
	resetTimeout     = 2 * time.Minute
)

type circuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailedAt time.Time
	state        string
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state: "closed",
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "closed" {
		return true
	}

	if cb.state == "open" {
		if time.Since(cb.lastFailedAt) >= resetTimeout {
			cb.state = "half-open"
			return true
		}
		return false
	}

	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = "closed"
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailedAt = time.Now()

	if cb.failures >= failureThreshold {
		cb.state = "open"
		slog.Debug("ai: circuit breaker opened", "failures", cb.failures)
	}
}

// ChainEngine fails over between several engines. Each engine gets a circuit
// breaker so a dead endpoint is skipped for resetTimeout instead of being
// retried on every call.
type ChainEngine struct {
	engines  []Engine
	breakers map[string]*circuitBreaker
	mu       sync.RWMutex
	current  string
	fallback bool
}

func NewChain(engines []Engine) *ChainEngine {
	breakers := make(map[string]*circuitBreaker)
	for _, e := range engines {
		breakers[e.Name()] = newCircuitBreaker()
	}

	current := ""
	if len(engines) > 0 {
		current = engines[0].Name()
	}

	return &ChainEngine{
		engines:  engines,
		breakers: breakers,
		current:  current,
	}
}

func (c *ChainEngine) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return "chain"
}

func (c *ChainEngine) IsAvailable(ctx context.Context) bool {
	for _, e := range c.engines {
		if e.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

func (c *ChainEngine) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	var usedFallback bool

	for _, e := range c.engines {
		if !c.breakers[e.Name()].allow() {
			slog.Debug("ai: circuit open, skipping engine", "engine", e.Name())
			continue
		}

		result, err := e.Complete(ctx, req)
		if err == nil {
			c.breakers[e.Name()].recordSuccess()
			c.mu.Lock()
			c.current = e.Name()
			c.fallback = usedFallback
			c.mu.Unlock()

			if usedFallback {
				slog.Info("ai: engine succeeded after failover", "engine", e.Name())
			}
			return result, nil
		}

		if isRetriableError(err) {
			c.breakers[e.Name()].recordFailure()
		} else if isAuthError(err) {
			c.breakers[e.Name()].recordFailure()
			cb := c.breakers[e.Name()]
			cb.mu.Lock()
			cb.state = "open"
			cb.mu.Unlock()
			slog.Warn("ai: auth error, opening circuit", "engine", e.Name(), "error", err)
		}

		slog.Warn("ai: engine failed, trying next", "engine", e.Name(), "error", err)
		lastErr = err
		usedFallback = true
	}

	return "", fmt.Errorf("all generation engines failed; last error: %w", lastErr)
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "status 429"):
		return true
	case strings.Contains(errStr, "status 5"):
		return true
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused"):
		return true
	case strings.Contains(errStr, "status 4"):
		return false
	case strings.Contains(errStr, "status 401") || strings.Contains(errStr, "status 403"):
		return false
	default:
		return true
	}
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "status 401") || strings.Contains(errStr, "status 403")
}

// CurrentEngine reports which engine served the last successful call and
// whether the chain had to fail over to reach it.
func (c *ChainEngine) CurrentEngine() (engine string, fallback bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.fallback
}

func newSingle(provider string, cfg config.AIConfig) (Engine, error) {
	switch provider {
	case "", "none":
		return &NoopEngine{}, nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return &NoopEngine{}, nil
		}
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return &NoopEngine{}, nil
		}
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported generation engine %q (supported: openai, ollama, anthropic)", provider)
	}
}
