package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/notify"
)

func (gw *Gateway) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	gw.mu.RLock()
	cfgCopy := *gw.cfg
	cfgPath := gw.configPath
	gw.mu.RUnlock()

	cfgCopy.AI.APIKey = redactSecret(cfgCopy.AI.APIKey)
	cfgCopy.AI.AnthropicKey = redactSecret(cfgCopy.AI.AnthropicKey)
	// The Git slices share backing arrays with the live config; clone before
	// touching tokens.
	cfgCopy.Git.GitHub = cloneGitHubRedacted(cfgCopy.Git.GitHub)
	cfgCopy.Git.GitLab = cloneGitLabRedacted(cfgCopy.Git.GitLab)
	cfgCopy.Webhooks.Secret = redactSecret(cfgCopy.Webhooks.Secret)
	cfgCopy.Notify.Telegram.Token = redactSecret(cfgCopy.Notify.Telegram.Token)
	cfgCopy.Notify.Email.Password = redactSecret(cfgCopy.Notify.Email.Password)
	cfgCopy.Notify.Webhook.Secret = redactSecret(cfgCopy.Notify.Webhook.Secret)

	writeJSON(w, http.StatusOK, map[string]any{
		"path":   cfgPath,
		"config": cfgCopy,
	})
}

func (gw *Gateway) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req config.Config
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	gw.mu.RLock()
	current := *gw.cfg
	cfgPath := gw.configPath
	gw.mu.RUnlock()

	if req.Scheduler.Workers <= 0 {
		req.Scheduler.Workers = 2
	}
	if req.Server.Port == 0 {
		req.Server.Port = current.Server.Port
	}
	// The database section cannot be cleared over the API; the gateway is
	// already attached to it.
	if req.Database.Driver == "" && req.Database.Path == "" && req.Database.DSN == "" {
		req.Database = current.Database
	}
	mergeMaskedSecrets(&req, &current)

	gw.mu.Lock()
	*gw.cfg = req
	gw.notifier = notify.NewDispatcher(req.Notify)
	gw.mu.Unlock()

	if gw.sched != nil {
		gw.sched.SetWorkers(req.Scheduler.Workers)
	}
	if cfgPath != "" {
		if err := config.Save(&req, cfgPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("saving config: %v", err))
			return
		}
	}
	gw.broadcaster.send(SSEEvent{Type: "config.updated"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// mergeMaskedSecrets carries current secrets into dst wherever the client sent
// back a redacted value. GET/PUT round-trips must not wipe tokens.
func mergeMaskedSecrets(dst, current *config.Config) {
	if dst == nil || current == nil {
		return
	}
	if strings.Contains(dst.AI.APIKey, "*") {
		dst.AI.APIKey = current.AI.APIKey
	}
	if strings.Contains(dst.AI.AnthropicKey, "*") {
		dst.AI.AnthropicKey = current.AI.AnthropicKey
	}
	for i := range dst.Git.GitHub {
		if i < len(current.Git.GitHub) && strings.Contains(dst.Git.GitHub[i].Token, "*") {
			dst.Git.GitHub[i].Token = current.Git.GitHub[i].Token
		}
	}
	for i := range dst.Git.GitLab {
		if i < len(current.Git.GitLab) && strings.Contains(dst.Git.GitLab[i].Token, "*") {
			dst.Git.GitLab[i].Token = current.Git.GitLab[i].Token
		}
	}
	if strings.Contains(dst.Webhooks.Secret, "*") {
		dst.Webhooks.Secret = current.Webhooks.Secret
	}
	if strings.Contains(dst.Notify.Telegram.Token, "*") {
		dst.Notify.Telegram.Token = current.Notify.Telegram.Token
	}
	if strings.Contains(dst.Notify.Email.Password, "*") {
		dst.Notify.Email.Password = current.Notify.Email.Password
	}
	if strings.Contains(dst.Notify.Webhook.Secret, "*") {
		dst.Notify.Webhook.Secret = current.Notify.Webhook.Secret
	}
}

func redactSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "********"
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

func cloneGitHubRedacted(in []config.GitHubConfig) []config.GitHubConfig {
	out := make([]config.GitHubConfig, len(in))
	for i, v := range in {
		out[i] = v
		out[i].Token = redactSecret(v.Token)
	}
	return out
}

func cloneGitLabRedacted(in []config.GitLabConfig) []config.GitLabConfig {
	out := make([]config.GitLabConfig, len(in))
	for i, v := range in {
		out[i] = v
		out[i].Token = redactSecret(v.Token)
	}
	return out
}

// handleNotifyTest sends a test notification through all configured channels.
func (gw *Gateway) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	n := gw.currentNotifier()
	if !n.IsAnyConfigured() {
		writeError(w, http.StatusBadRequest, "no notification channels configured")
		return
	}
	n.Notify(r.Context(), notify.Event{
		Type:  "test",
		Title: "docsmith test notification",
		Body:  "Notification delivery is working correctly.",
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
