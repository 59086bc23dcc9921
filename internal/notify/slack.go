package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// SlackChannel sends events to a Slack incoming webhook.
type SlackChannel struct {
	cfg    config.SlackNotifyConfig
	client *http.Client
}

// NewSlack creates a SlackChannel from cfg.
func NewSlack(cfg config.SlackNotifyConfig) *SlackChannel {
	return &SlackChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SlackChannel) Name() string       { return "slack" }
func (s *SlackChannel) IsConfigured() bool { return s.cfg.WebhookURL != "" }

func (s *SlackChannel) Send(ctx context.Context, evt Event) error {
	attachment := map[string]any{
		"color":  eventColor(evt.Type),
		"title":  evt.Title,
		"text":   evt.Body,
		"footer": "docsmith",
		"ts":     time.Now().Unix(),
	}
	if evt.URL != "" {
		attachment["title_link"] = evt.URL
	}

	body, err := json.Marshal(map[string]any{
		"text":        evt.Title,
		"attachments": []map[string]any{attachment},
	})
	if err != nil {
		return err
	}
	return post(ctx, s.client, "slack", s.cfg.WebhookURL, nil, body)
}

func eventColor(typ string) string {
	switch typ {
	case EventDocsPublished:
		return "#2EB67D"
	case EventAnalysisFailed:
		return "#E01E5A"
	case EventRepoAdded:
		return "#36C5F0"
	default:
		return "#888888"
	}
}
