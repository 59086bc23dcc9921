package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAIEngine implements Engine against any OpenAI-compatible REST API:
// OpenAI itself, Groq, LM Studio, or a proxy set via ai.base_url.
type OpenAIEngine struct {
	apiKey       string
	model        string
	baseURL      string
	client       *http.Client
	debug        bool
	debugPrompts bool
}

// NewOpenAI creates an OpenAIEngine from cfg.
func NewOpenAI(cfg config.AIConfig) (*OpenAIEngine, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAI base URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid OpenAI base URL scheme %q", u.Scheme)
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	debug, prompts := debugFlags("openai")
	return &OpenAIEngine{
		apiKey:       cfg.APIKey,
		model:        model,
		baseURL:      strings.TrimRight(base, "/"),
		client:       &http.Client{Timeout: 120 * time.Second},
		debug:        debug,
		debugPrompts: prompts,
	}, nil
}

func (o *OpenAIEngine) Name() string { return "openai" }

func (o *OpenAIEngine) IsAvailable(ctx context.Context) bool {
	// Probe the models endpoint.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	// #nosec G107 -- baseURL is loaded from trusted local config and validated in NewOpenAI.
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// --- Internal ---

type openAIRequest struct {
	Model               string      `json:"model"`
	Messages            []openAIMsg `json:"messages"`
	Temperature         *float64    `json:"temperature,omitempty"`
	MaxTokens           int         `json:"max_tokens,omitempty"`
	MaxCompletionTokens int         `json:"max_completion_tokens,omitempty"`
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completion and retries on rate limiting.
func (o *OpenAIEngine) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	maxTokens := cr.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	payload := openAIRequest{
		Model: o.model,
		Messages: []openAIMsg{
			{Role: "system", Content: cr.System},
			{Role: "user", Content: cr.Prompt},
		},
	}
	if cr.Temperature > 0 {
		t := cr.Temperature
		payload.Temperature = &t
	}
	if usesMaxCompletionTokensParam(o.model) {
		payload.MaxCompletionTokens = maxTokens
	} else {
		payload.MaxTokens = maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	if o.debug {
		slog.Info("OpenAI request",
			"model", o.model,
			"max_tokens", maxTokens,
			"prompt_chars", len(cr.Prompt),
			"request_bytes", len(body),
		)
		if o.debugPrompts {
			slog.Info("OpenAI prompt body", "prompt", cr.Prompt)
		}
	}

	const maxAttempts = 6
	var respBody []byte
	var respStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			o.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		if o.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.apiKey)
		}
		req.Header.Set("Content-Type", "application/json")

		// #nosec G107 -- baseURL is loaded from trusted local config and validated in NewOpenAI.
		resp, err := o.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("calling OpenAI API: %w", err)
		}
		respStatus = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("reading response body: %w", err)
		}
		if closeErr != nil {
			slog.Debug("closing OpenAI response body", "error", closeErr)
		}

		if resp.StatusCode == http.StatusOK {
			break
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			wait := openAIRetryDelay(resp.Header.Get("Retry-After"), string(respBody), attempt)
			slog.Warn("OpenAI rate limited; retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"wait", wait.String(),
				"model", o.model,
			)
			if err := sleepWithContext(ctx, wait); err != nil {
				return "", err
			}
			continue
		}
		break
	}

	if respStatus != http.StatusOK {
		return "", fmt.Errorf("OpenAI API error %d: %s", respStatus, truncateForError(string(respBody), 300))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing API response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("OpenAI error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

func usesMaxCompletionTokensParam(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "gpt-5"):
		return true
	case strings.Contains(m, "codex"):
		return true
	case strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"):
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func openAIRetryDelay(retryAfterHeader, body string, attempt int) time.Duration {
	if ra := strings.TrimSpace(retryAfterHeader); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	bl := strings.ToLower(body)
	if idx := strings.Index(bl, "please try again in "); idx >= 0 {
		rest := bl[idx+len("please try again in "):]
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			token := strings.Trim(fields[0], ".,")
			if strings.HasSuffix(token, "ms") {
				if n, err := strconv.ParseFloat(strings.TrimSuffix(token, "ms"), 64); err == nil && n > 0 {
					return time.Duration(n * float64(time.Millisecond))
				}
			}
			if strings.HasSuffix(token, "s") {
				if n, err := strconv.ParseFloat(strings.TrimSuffix(token, "s"), 64); err == nil && n > 0 {
					return time.Duration(n * float64(time.Second))
				}
			}
		}
	}
	// Exponential-ish fallback with a cap.
	d := time.Duration(attempt*attempt) * 500 * time.Millisecond
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
