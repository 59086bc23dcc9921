package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/docsmithhq/docsmith-agent/internal/detector"
)

// Forge payloads are small; a megabyte is already generous for a push event.
const maxWebhookBody = 1 << 20

func (gw *Gateway) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if event := r.Header.Get("X-GitHub-Event"); event != "" && event != "push" {
		// GitHub delivers a "ping" right after registration and may send
		// other event kinds if the hook is configured broadly. Acknowledge
		// without touching the detector.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "event": event})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	outcome, err := gw.det.HandleGitHub(r.Context(),
		r.Header.Get("X-GitHub-Delivery"),
		r.Header.Get("X-Hub-Signature-256"),
		body)
	gw.writeWebhookOutcome(w, "github", outcome, err)
}

func (gw *Gateway) handleGitLabWebhook(w http.ResponseWriter, r *http.Request) {
	if event := r.Header.Get("X-Gitlab-Event"); event != "" && event != "Push Hook" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "event": event})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	outcome, err := gw.det.HandleGitLab(r.Context(),
		r.Header.Get("X-Gitlab-Event-UUID"),
		r.Header.Get("X-Gitlab-Token"),
		body)
	gw.writeWebhookOutcome(w, "gitlab", outcome, err)
}

func (gw *Gateway) writeWebhookOutcome(w http.ResponseWriter, provider string, outcome *detector.Outcome, err error) {
	switch {
	case errors.Is(err, detector.ErrBadSignature):
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	case errors.Is(err, detector.ErrBadPayload):
		writeError(w, http.StatusBadRequest, "payload not usable")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	payload := map[string]any{"provider": provider, "decision": outcome.Decision}
	if outcome.Repo != nil {
		payload["repo_id"] = outcome.Repo.ID
	}
	if outcome.Job != nil {
		payload["job_id"] = outcome.Job.ID
	}
	gw.broadcaster.send(SSEEvent{Type: "webhook.received", Payload: payload})

	status := http.StatusOK
	if outcome.Decision == detector.DecisionEnqueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}
