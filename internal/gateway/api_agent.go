package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
)

type agentWorkersRequest struct {
	Workers int `json:"workers"`
}

func (gw *Gateway) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	engineName := "none"
	fallback := false
	if gw.engine != nil {
		engineName = gw.engine.Name()
		if chain, ok := gw.engine.(*ai.ChainEngine); ok {
			if current, fb := chain.CurrentEngine(); current != "" {
				engineName, fallback = current, fb
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      gw.currentStatus(),
		"ai_engine":   engineName,
		"ai_fallback": fallback,
		"profile":     gw.profileName,
	})
}

func (gw *Gateway) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.heartbeat.computeStatus())
}

func (gw *Gateway) handleAgentPause(w http.ResponseWriter, r *http.Request) {
	gw.sched.Pause()
	gw.broadcaster.send(SSEEvent{Type: "agent.paused"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (gw *Gateway) handleAgentResume(w http.ResponseWriter, r *http.Request) {
	gw.sched.Resume()
	gw.broadcaster.send(SSEEvent{Type: "agent.resumed"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (gw *Gateway) handleAgentWorkers(w http.ResponseWriter, r *http.Request) {
	var req agentWorkersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Workers < 1 || req.Workers > 64 {
		writeError(w, http.StatusBadRequest, "workers must be between 1 and 64")
		return
	}
	gw.sched.SetWorkers(req.Workers)

	gw.mu.Lock()
	gw.cfg.Scheduler.Workers = req.Workers
	cfgPath := gw.configPath
	cfgCopy := *gw.cfg
	gw.mu.Unlock()
	// Persist only when the gateway was started from a config file.
	if cfgPath != "" {
		if err := config.Save(&cfgCopy, cfgPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("saving config: %v", err))
			return
		}
	}
	gw.broadcaster.send(SSEEvent{Type: "agent.workers.updated", Payload: map[string]any{"workers": req.Workers}})
	writeJSON(w, http.StatusOK, map[string]any{"workers": req.Workers})
}
