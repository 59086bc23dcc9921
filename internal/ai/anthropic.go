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

const (
	anthropicMessagesEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicModelsEndpoint   = "https://api.anthropic.com/v1/models"
	anthropicVersionHeader    = "2023-06-01"
	anthropicDefaultModel     = "claude-sonnet-4-6"
)

// AnthropicEngine implements Engine using the Anthropic REST API.
type AnthropicEngine struct {
	cfg          config.AIConfig
	client       *http.Client
	debug        bool
	debugPrompts bool
}

// NewAnthropic creates an AnthropicEngine from cfg.
func NewAnthropic(cfg config.AIConfig) *AnthropicEngine {
	debug, prompts := debugFlags("anthropic")
	return &AnthropicEngine{
		cfg:          cfg,
		client:       &http.Client{Timeout: 90 * time.Second},
		debug:        debug,
		debugPrompts: prompts,
	}
}

func (c *AnthropicEngine) Name() string { return "anthropic" }

func (c *AnthropicEngine) IsAvailable(ctx context.Context) bool {
	// #nosec G107 -- anthropicModelsEndpoint is a compile-time constant.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, anthropicModelsEndpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", c.cfg.AnthropicKey)
	req.Header.Set("anthropic-version", anthropicVersionHeader)

	resp, err := c.client.Do(req) // #nosec G107 -- URL is compile-time constant anthropicModelsEndpoint
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// --- Internal ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one message exchange to the Anthropic API.
func (c *AnthropicEngine) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	model := c.cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := cr.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	payload := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    cr.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: cr.Prompt},
		},
	}
	if cr.Temperature > 0 {
		t := cr.Temperature
		payload.Temperature = &t
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshalling Anthropic request: %w", err)
	}

	if c.debug {
		slog.Debug("Anthropic request",
			"model", model,
			"prompt_chars", len(cr.Prompt),
			"request_bytes", len(body),
		)
	}
	if c.debugPrompts {
		slog.Debug("Anthropic prompt", "prompt", cr.Prompt)
	}

	// #nosec G107 -- anthropicMessagesEndpoint is a compile-time constant.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating Anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.AnthropicKey)
	req.Header.Set("anthropic-version", anthropicVersionHeader)
	req.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(req) // #nosec G107 -- URL is compile-time constant anthropicMessagesEndpoint
	if err != nil {
		return "", fmt.Errorf("calling Anthropic API: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("reading Anthropic response body: %w", err)
	}
	if closeErr != nil && c.debug {
		slog.Debug("closing Anthropic response body", "error", closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic API error %d: %s", resp.StatusCode, truncateForError(string(respBody), 300))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing Anthropic API response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("Anthropic error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("Anthropic returned no content")
	}

	return strings.TrimSpace(apiResp.Content[0].Text), nil
}
