package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// WebhookChannel sends events to a generic HTTP endpoint with optional
// HMAC-SHA256 signing.
type WebhookChannel struct {
	cfg    config.WebhookNotifyConfig
	client *http.Client
}

// NewWebhook creates a WebhookChannel from cfg.
func NewWebhook(cfg config.WebhookNotifyConfig) *WebhookChannel {
	return &WebhookChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookChannel) Name() string       { return "webhook" }
func (w *WebhookChannel) IsConfigured() bool { return w.cfg.URL != "" }

func (w *WebhookChannel) Send(ctx context.Context, evt Event) error {
	payload := map[string]any{
		"type":  evt.Type,
		"title": evt.Title,
		"body":  evt.Body,
		"repo":  evt.RepoName,
		"url":   evt.URL,
		"ts":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range evt.Metadata {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var headers map[string]string
	if w.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
		mac.Write(body)
		headers = map[string]string{
			"X-Docsmith-Signature": "sha256=" + hex.EncodeToString(mac.Sum(nil)),
		}
	}
	return post(ctx, w.client, "webhook", w.cfg.URL, headers, body)
}
