package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// createRepoRequest is the body for POST /api/repos.
type createRepoRequest struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Provider      string `json:"provider"`
	DefaultBranch string `json:"default_branch"`
	// CredentialRef names a configured token ("github", "gitlab@git.corp.io").
	// The secret itself never travels through this API.
	CredentialRef string `json:"credential_ref"`
	// Monitoring defaults to true.
	Monitoring *bool `json:"monitoring"`
	// InstallWebhook registers a push webhook on the forge so changes arrive
	// without polling. Requires webhooks.external_url in the config.
	InstallWebhook bool `json:"install_webhook"`
	// Analyze defaults to true; set false to register without queueing the
	// first analysis (bulk imports).
	Analyze *bool `json:"analyze"`
}

type createRepoResponse struct {
	Repo             *models.Repo `json:"repo"`
	Job              *models.Job  `json:"job,omitempty"`
	WebhookInstalled bool         `json:"webhook_installed,omitempty"`
}

func (gw *Gateway) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req createRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		if detected, err := source.DetectProvider(req.URL); err == nil {
			provider = detected
		}
	}
	monitoring := true
	if req.Monitoring != nil {
		monitoring = *req.Monitoring
	}

	repo := &models.Repo{
		URL:               req.URL,
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Provider:          provider,
		DefaultBranch:     strings.TrimSpace(req.DefaultBranch),
		MonitoringEnabled: monitoring,
		CredentialRef:     strings.TrimSpace(req.CredentialRef),
	}
	created, err := gw.repos.Create(r.Context(), repo)
	if errors.Is(err, store.ErrDuplicateURL) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "repository already registered",
			"repo":  created,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}

	resp := createRepoResponse{Repo: created}
	if req.InstallWebhook {
		if err := gw.installWebhook(r.Context(), created); err != nil {
			slog.Warn("gateway: webhook install failed", "repo", created.ID, "error", err)
		} else {
			resp.WebhookInstalled = true
		}
	}

	if req.Analyze == nil || *req.Analyze {
		job, err := gw.sched.Enqueue(r.Context(), created.ID, models.TriggerManual, nil)
		if err != nil && !errors.Is(err, scheduler.ErrAlreadyScheduled) {
			slog.Warn("gateway: initial analysis enqueue failed", "repo", created.ID, "error", err)
		}
		resp.Job = job
	}

	gw.notifyRepoAdded(created)
	gw.broadcaster.send(SSEEvent{Type: "repo.created", Payload: map[string]any{
		"repo_id": created.ID, "url": created.URL,
	}})
	writeJSON(w, http.StatusCreated, resp)
}

// installWebhook registers a push webhook on the forge and records its id so
// deletion can clean it up.
func (gw *Gateway) installWebhook(ctx context.Context, repo *models.Repo) error {
	if gw.cfg.Webhooks.ExternalURL == "" {
		return errors.New("webhooks.external_url is not configured")
	}
	prov, err := source.New(repo.Provider, gw.cfg)
	if err != nil {
		return err
	}
	owner, name := source.ParseOwnerRepo(repo.URL)
	hookURL := strings.TrimRight(gw.cfg.Webhooks.ExternalURL, "/") + "/api/webhooks/" + repo.Provider
	hookID, err := prov.RegisterWebhook(ctx, owner, name, hookURL, gw.cfg.Webhooks.Secret)
	if err != nil {
		return err
	}
	if err := gw.repos.SetWebhookID(ctx, repo.ID, hookID); err != nil {
		return err
	}
	repo.WebhookID = hookID
	return nil
}

func (gw *Gateway) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := gw.repos.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if repos == nil {
		repos = []models.Repo{}
	}
	writeJSON(w, http.StatusOK, repos)
}

// repoDetail enriches the repo row with its documentation and job state.
type repoDetail struct {
	models.Repo
	Versions      int                `json:"versions"`
	LatestVersion *models.DocVersion `json:"latest_version,omitempty"`
	ActiveJob     *models.Job        `json:"active_job,omitempty"`
}

func (gw *Gateway) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, err := gw.repos.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	detail := repoDetail{Repo: *repo}
	if n, err := gw.docs.Count(r.Context(), id); err == nil {
		detail.Versions = n
	}
	if latest, err := gw.docs.Latest(r.Context(), id); err == nil {
		detail.LatestVersion = latest
	}
	if job, err := gw.jobs.ActiveForRepo(r.Context(), id); err == nil {
		detail.ActiveJob = job
	}
	writeJSON(w, http.StatusOK, detail)
}

func (gw *Gateway) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, err := gw.repos.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if gw.sched != nil {
		if err := gw.sched.CancelForRepo(r.Context(), id); err != nil {
			slog.Warn("gateway: cancelling jobs for deleted repo failed", "repo", id, "error", err)
		}
	}
	// Forge-side webhook cleanup is best-effort: the forge may be unreachable
	// or the hook already gone.
	if repo.WebhookID != "" && repo.Provider != "" {
		if prov, perr := source.New(repo.Provider, gw.cfg); perr == nil {
			owner, name := source.ParseOwnerRepo(repo.URL)
			if uerr := prov.UnregisterWebhook(r.Context(), owner, name, repo.WebhookID); uerr != nil {
				slog.Warn("gateway: webhook removal failed", "repo", id, "error", uerr)
			}
		}
	}
	if err := gw.repos.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "repo.deleted", Payload: map[string]any{"repo_id": id}})
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleAnalyzeRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := gw.repos.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	job, err := gw.sched.Enqueue(r.Context(), id, models.TriggerManual, nil)
	if errors.Is(err, scheduler.ErrAlreadyScheduled) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "analysis already in progress",
			"job":   job,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

type monitoringRequest struct {
	Enabled bool `json:"enabled"`
}

func (gw *Gateway) handleSetMonitoring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req monitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := gw.repos.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if err := gw.repos.SetMonitoring(r.Context(), id, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "repo.monitoring", Payload: map[string]any{
		"repo_id": id, "enabled": req.Enabled,
	}})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "monitoring_enabled": req.Enabled})
}
