package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// jobResponse inlines the decoded change summary next to the row fields so
// API consumers never see the serialized form.
type jobResponse struct {
	models.Job
	Changes *models.ChangeSummary `json:"changes,omitempty"`
}

func buildJobResponse(j models.Job) jobResponse {
	return jobResponse{Job: j, Changes: j.Changes()}
}

func (gw *Gateway) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{Limit: 50}

	if raw := strings.TrimSpace(q.Get("repo_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "repo_id must be a positive integer")
			return
		}
		filter.RepoID = id
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		switch st := models.JobStatus(raw); st {
		case models.JobPending, models.JobRunning, models.JobCompleted, models.JobFailed:
			filter.Status = st
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job status %q", raw))
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > 500 {
				n = 500
			}
			filter.Limit = n
		}
	}

	jobs, err := gw.jobs.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, buildJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (gw *Gateway) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := gw.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, buildJobResponse(*job))
}
