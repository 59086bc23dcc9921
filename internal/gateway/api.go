package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	// Root/help
	mux.HandleFunc("GET /", gw.handleRoot)

	// Health / status
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Repositories
	mux.HandleFunc("POST /api/repos", gw.handleCreateRepo)
	mux.HandleFunc("GET /api/repos", gw.handleListRepos)
	mux.HandleFunc("GET /api/repos/{id}", gw.handleGetRepo)
	mux.HandleFunc("DELETE /api/repos/{id}", gw.handleDeleteRepo)
	mux.HandleFunc("POST /api/repos/{id}/analyze", gw.handleAnalyzeRepo)
	mux.HandleFunc("PUT /api/repos/{id}/monitoring", gw.handleSetMonitoring)

	// Documentation
	mux.HandleFunc("GET /api/docs/{repoID}", gw.handleLatestDocs)
	mux.HandleFunc("GET /api/docs/{repoID}/versions", gw.handleListDocVersions)
	mux.HandleFunc("GET /api/docs/{repoID}/versions/{version}", gw.handleGetDocVersion)
	mux.HandleFunc("GET /api/docs/{repoID}/export", gw.handleExportDocs)

	// Analysis jobs
	mux.HandleFunc("GET /api/jobs", gw.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", gw.handleGetJob)

	// Forge webhooks (change detection)
	mux.HandleFunc("POST /api/webhooks/github", gw.handleGitHubWebhook)
	mux.HandleFunc("POST /api/webhooks/gitlab", gw.handleGitLabWebhook)

	// Poll schedule management
	mux.HandleFunc("GET /api/schedules", gw.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", gw.handleCreateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", gw.handleDeleteSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/trigger", gw.handleTriggerSchedule)

	// Agent runtime controls
	mux.HandleFunc("GET /api/agent", gw.handleAgentStatus)
	mux.HandleFunc("GET /api/agent/health", gw.handleAgentHealth)
	mux.HandleFunc("POST /api/agent/pause", gw.handleAgentPause)
	mux.HandleFunc("POST /api/agent/resume", gw.handleAgentResume)
	mux.HandleFunc("PUT /api/agent/workers", gw.handleAgentWorkers)

	mux.HandleFunc("GET /api/profiles", gw.handleListProfiles)
	mux.HandleFunc("GET /api/profiles/{name}", gw.handleGetProfile)

	// Config management
	mux.HandleFunc("GET /api/config", gw.handleGetConfig)
	mux.HandleFunc("PUT /api/config", gw.handlePutConfig)
	mux.HandleFunc("POST /api/config/test-notification", gw.handleNotifyTest)

	// Server-Sent Events stream
	mux.HandleFunc("GET /events", gw.handleEvents)

	return mux
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "docsmith gateway",
		"status":  "running",
		"message": "Gateway is up. REST/SSE API available here.",
		"endpoints": []string{
			"GET /health",
			"GET /api/status",
			"POST /api/repos",
			"GET /api/repos",
			"GET /api/repos/{id}",
			"POST /api/repos/{id}/analyze",
			"GET /api/docs/{repoID}",
			"GET /api/docs/{repoID}/versions",
			"GET /api/docs/{repoID}/export",
			"GET /api/jobs",
			"POST /api/webhooks/github",
			"POST /api/webhooks/gitlab",
			"GET /api/schedules",
			"POST /api/schedules",
			"GET /api/agent",
			"GET /api/profiles",
			"GET /api/config",
			"GET /events",
		},
	})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus())
}

// handleEvents streams SSE to the client. Each frame is a JSON SSEEvent.
// Clients receive a "connected" event immediately, then a replay of recent
// frames so reconnecting clients see what they missed, then live updates.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	id, ch, replay := gw.broadcaster.subscribe()
	defer gw.broadcaster.unsubscribe(id)

	connected, _ := json.Marshal(SSEEvent{Type: "connected", Payload: map[string]any{
		"client_id": id,
		"status":    gw.currentStatus(),
	}})
	fmt.Fprintf(w, "data: %s\n\n", connected)
	for _, frame := range replay {
		_, _ = w.Write(frame)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
