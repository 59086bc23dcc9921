package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/store"
)

// scheduleRequest is the body for POST /api/schedules. An empty repo_ids list
// means the schedule sweeps every monitored repository.
type scheduleRequest struct {
	Name    string  `json:"name"`
	Expr    string  `json:"expr"`
	RepoIDs []int64 `json:"repo_ids"`
	Enabled *bool   `json:"enabled"`
}

func (gw *Gateway) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := gw.poller.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (gw *Gateway) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Expr = strings.TrimSpace(req.Expr)
	if req.Name == "" || req.Expr == "" {
		writeError(w, http.StatusBadRequest, "name and expr are required")
		return
	}
	for _, id := range req.RepoIDs {
		if _, err := gw.repos.Get(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown repository id %d", id))
				return
			}
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
	}

	var scope string
	if len(req.RepoIDs) > 0 {
		raw, err := json.Marshal(req.RepoIDs)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid repo_ids")
			return
		}
		scope = string(raw)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched := Schedule{
		Name:      req.Name,
		Expr:      req.Expr,
		RepoScope: scope,
		Enabled:   enabled,
	}
	id, err := gw.poller.Add(r.Context(), sched)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sched.ID = id
	gw.broadcaster.send(SSEEvent{Type: "schedule.created", Payload: map[string]any{"id": id, "name": sched.Name}})
	writeJSON(w, http.StatusCreated, sched)
}

func (gw *Gateway) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.poller.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "schedule.deleted", Payload: map[string]any{"id": id}})
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.poller.TriggerNow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
