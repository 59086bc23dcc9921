package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// OllamaEngine implements Engine using a local Ollama server.
// Configure with: ai.provider = "ollama", ai.ollama_url = "http://localhost:11434"
type OllamaEngine struct {
	baseURL      string
	model        string
	client       *http.Client
	maxAttempts  int
	retryBackoff time.Duration
	debug        bool
	debugPrompts bool
}

// NewOllama creates an OllamaEngine from cfg.
func NewOllama(cfg config.AIConfig) (*OllamaEngine, error) {
	base := cfg.OllamaURL
	if base == "" {
		base = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2"
	}
	debug, prompts := debugFlags("ollama")
	return &OllamaEngine{
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		client:  &http.Client{Timeout: 180 * time.Second},
		// Local models hit transient 5xx errors under load; one retry helps.
		maxAttempts:  2,
		retryBackoff: 2 * time.Second,
		debug:        debug,
		debugPrompts: prompts,
	}, nil
}

func (o *OllamaEngine) Name() string { return "ollama" }

func (o *OllamaEngine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends one generation request to the Ollama server.
func (o *OllamaEngine) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	payload := ollamaRequest{
		Model:  o.model,
		Prompt: cr.Prompt,
		System: cr.System,
		Stream: false,
	}
	if cr.Temperature > 0 {
		payload.Options = map[string]any{"temperature": cr.Temperature}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshalling ollama request: %w", err)
	}
	if o.debug {
		slog.Info("Ollama request",
			"model", o.model,
			"prompt_chars", len(cr.Prompt),
			"request_bytes", len(body),
			"base_url", o.baseURL,
		)
		if o.debugPrompts {
			slog.Info("Ollama prompt body", "prompt", cr.Prompt)
		}
	}

	attempts := o.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			o.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("calling Ollama API: %w", err)
		} else {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("reading Ollama response: %w", readErr)
			} else if resp.StatusCode != http.StatusOK {
				msg := strings.TrimSpace(string(data))
				if msg == "" {
					msg = http.StatusText(resp.StatusCode)
				}
				lastErr = fmt.Errorf("ollama /api/generate returned %d: %s", resp.StatusCode, truncateForError(msg, 300))
				if !shouldRetryOllamaStatus(resp.StatusCode) {
					return "", lastErr
				}
			} else {
				var apiResp ollamaResponse
				if err := json.Unmarshal(data, &apiResp); err != nil {
					return "", fmt.Errorf("parsing Ollama response: %w", err)
				}
				return strings.TrimSpace(apiResp.Response), nil
			}
		}

		if attempt >= attempts || ctx.Err() != nil {
			break
		}
		slog.Warn("Ollama generate failed; retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)
		if o.retryBackoff > 0 {
			select {
			case <-time.After(o.retryBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("ollama /api/generate failed")
	}
	return "", lastErr
}

func shouldRetryOllamaStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func truncateForError(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
