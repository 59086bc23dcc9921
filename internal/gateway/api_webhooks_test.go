package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docsmithhq/docsmith-agent/models"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func githubPushBody(t *testing.T, before, after string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"ref":     "refs/heads/main",
		"before":  before,
		"after":   after,
		"deleted": false,
		"repository": map[string]any{
			"clone_url": "https://github.com/acme/widget-api.git",
			"html_url":  "https://github.com/acme/widget-api",
			"full_name": "acme/widget-api",
		},
		"head_commit": map[string]any{"id": after},
		"commits": []map[string]any{
			{"id": after, "added": []string{"docs/new.md"}, "modified": []string{}, "removed": []string{}},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func gitlabPushBody(t *testing.T, before, after string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"object_kind":  "push",
		"ref":          "refs/heads/main",
		"before":       before,
		"after":        after,
		"checkout_sha": after,
		"project": map[string]any{
			"git_http_url":        "https://gitlab.com/acme/widget-api.git",
			"web_url":             "https://gitlab.com/acme/widget-api",
			"path_with_namespace": "acme/widget-api",
		},
		"commits": []map[string]any{
			{"id": after, "added": []string{"docs/new.md"}, "modified": []string{}, "removed": []string{}},
		},
		"total_commits_count": 1,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func deliver(t *testing.T, gw *Gateway, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

type webhookOutcome struct {
	Decision string      `json:"decision"`
	Reason   string      `json:"reason"`
	Job      *models.Job `json:"job"`
}

func TestGitHubWebhookEnqueues(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "old-sha", "new-sha")

	rr := deliver(t, gw, "/api/webhooks/github", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-GitHub-Delivery":   "delivery-1",
		"X-Hub-Signature-256": sign("hush", body),
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var out webhookOutcome
	decode(t, rr, &out)
	if out.Decision != "enqueued" {
		t.Fatalf("decision = %s (%s)", out.Decision, out.Reason)
	}
	if out.Job == nil || out.Job.RepoID != repo.ID || out.Job.Trigger != models.TriggerWebhook {
		t.Errorf("job = %+v, want webhook job for repo %d", out.Job, repo.ID)
	}
}

func TestGitHubWebhookBadSignature(t *testing.T) {
	gw := newTestGateway(t)
	seedRepo(t, gw, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "old-sha", "new-sha")

	rr := deliver(t, gw, "/api/webhooks/github", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign("wrong-secret", body),
	})
	if rr.Code != http.StatusUnauthorized || errorMsg(t, rr) != "signature verification failed" {
		t.Errorf("status = %d body = %s", rr.Code, rr.Body.String())
	}

	// Missing signature header fails the same way.
	rr = deliver(t, gw, "/api/webhooks/github", body, map[string]string{"X-GitHub-Event": "push"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d", rr.Code)
	}
}

func TestGitHubWebhookIgnoresNonPushEvents(t *testing.T) {
	gw := newTestGateway(t)

	// GitHub sends "ping" right after hook registration; no signature check
	// is needed to discard it.
	rr := deliver(t, gw, "/api/webhooks/github", []byte(`{"zen":"Design for failure."}`),
		map[string]string{"X-GitHub-Event": "ping"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["status"] != "ignored" || resp["event"] != "ping" {
		t.Errorf("body = %v", resp)
	}
}

func TestGitHubWebhookUnregisteredRepo(t *testing.T) {
	gw := newTestGateway(t)
	body := githubPushBody(t, "old-sha", "new-sha")

	rr := deliver(t, gw, "/api/webhooks/github", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign("hush", body),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var out webhookOutcome
	decode(t, rr, &out)
	if out.Decision != "ignored" || out.Reason != "repository not registered" {
		t.Errorf("outcome = %s (%s)", out.Decision, out.Reason)
	}
}

func TestGitHubWebhookBadPayload(t *testing.T) {
	gw := newTestGateway(t)
	body := []byte("not a json push payload")

	rr := deliver(t, gw, "/api/webhooks/github", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign("hush", body),
	})
	if rr.Code != http.StatusBadRequest || errorMsg(t, rr) != "payload not usable" {
		t.Errorf("status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestGitLabWebhookEnqueues(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://gitlab.com/acme/widget-api", "old-sha")
	body := gitlabPushBody(t, "old-sha", "new-sha")

	rr := deliver(t, gw, "/api/webhooks/gitlab", body, map[string]string{
		"X-Gitlab-Event":      "Push Hook",
		"X-Gitlab-Event-UUID": "delivery-2",
		"X-Gitlab-Token":      "hush",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var out webhookOutcome
	decode(t, rr, &out)
	if out.Decision != "enqueued" || out.Job == nil || out.Job.RepoID != repo.ID {
		t.Errorf("outcome = %s job = %+v", out.Decision, out.Job)
	}
}

func TestGitLabWebhookTokenMismatch(t *testing.T) {
	gw := newTestGateway(t)
	seedRepo(t, gw, "https://gitlab.com/acme/widget-api", "old-sha")
	body := gitlabPushBody(t, "old-sha", "new-sha")

	rr := deliver(t, gw, "/api/webhooks/gitlab", body, map[string]string{
		"X-Gitlab-Event": "Push Hook",
		"X-Gitlab-Token": "wrong",
	})
	if rr.Code != http.StatusUnauthorized || errorMsg(t, rr) != "signature verification failed" {
		t.Errorf("status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestGitLabWebhookIgnoresNonPushEvents(t *testing.T) {
	gw := newTestGateway(t)

	rr := deliver(t, gw, "/api/webhooks/gitlab", []byte(`{}`), map[string]string{
		"X-Gitlab-Event": "Tag Push Hook",
		"X-Gitlab-Token": "hush",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["status"] != "ignored" {
		t.Errorf("body = %v", resp)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	gw := newTestGateway(t)
	seedRepo(t, gw, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "old-sha", "new-sha")
	headers := map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign("hush", body),
	}

	if rr := deliver(t, gw, "/api/webhooks/github", body, headers); rr.Code != http.StatusAccepted {
		t.Fatalf("first delivery: status = %d", rr.Code)
	}
	rr := deliver(t, gw, "/api/webhooks/github", body, headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("second delivery: status = %d, want 200", rr.Code)
	}
	var out webhookOutcome
	decode(t, rr, &out)
	if out.Decision != "duplicate" || out.Reason != "delivery already seen" {
		t.Errorf("decision = %s (%s), want absorbed duplicate", out.Decision, out.Reason)
	}
}
