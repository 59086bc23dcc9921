package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// telegramMaxLen is the Bot API's hard cap per message.
const telegramMaxLen = 4096

// TelegramChannel sends events through the Telegram Bot API.
type TelegramChannel struct {
	cfg    config.TelegramNotifyConfig
	client *http.Client
}

// NewTelegram creates a TelegramChannel from cfg.
func NewTelegram(cfg config.TelegramNotifyConfig) *TelegramChannel {
	return &TelegramChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (t *TelegramChannel) Name() string       { return "telegram" }
func (t *TelegramChannel) IsConfigured() bool { return t.cfg.Token != "" && t.cfg.ChatID != "" }

func (t *TelegramChannel) Send(ctx context.Context, evt Event) error {
	text := evt.Title
	if evt.RepoName != "" && !strings.Contains(text, evt.RepoName) {
		text = evt.RepoName + ": " + text
	}
	if evt.Body != "" {
		text += "\n\n" + evt.Body
	}
	if evt.URL != "" {
		text += "\n" + evt.URL
	}
	if runes := []rune(text); len(runes) > telegramMaxLen {
		text = string(runes[:telegramMaxLen-3]) + "..."
	}

	body, err := json.Marshal(map[string]any{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.Token)
	return post(ctx, t.client, "telegram", url, nil, body)
}
