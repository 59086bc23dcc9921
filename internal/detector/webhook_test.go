package detector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/docsmithhq/docsmith-agent/internal/store"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func githubPushBody(t *testing.T, ref, before, after string, commits []map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"ref":     ref,
		"before":  before,
		"after":   after,
		"deleted": false,
		"repository": map[string]any{
			"clone_url": "https://github.com/acme/widget-api.git",
			"html_url":  "https://github.com/acme/widget-api",
			"full_name": "acme/widget-api",
		},
		"head_commit": map[string]any{"id": after},
		"commits":     commits,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func gitlabPushBody(t *testing.T, ref, before, after string, totalCommits int) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"object_kind":  "push",
		"ref":          ref,
		"before":       before,
		"after":        after,
		"checkout_sha": after,
		"project": map[string]any{
			"git_http_url":        "https://gitlab.com/acme/widget-api.git",
			"web_url":             "https://gitlab.com/acme/widget-api",
			"path_with_namespace": "acme/widget-api",
		},
		"commits": []map[string]any{
			{"id": after, "added": []string{"docs/README.md"}, "modified": []string{}, "removed": []string{}},
		},
		"total_commits_count": totalCommits,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestHandleGitHubEnqueues(t *testing.T) {
	env := newDetEnv(t, "hush")
	env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")

	body := githubPushBody(t, "refs/heads/main", "old-sha", "new-sha", []map[string]any{
		{"id": "c1", "added": []string{"docs/new.md"}, "modified": []string{"api/app.py"}, "removed": []string{}},
		{"id": "c2", "added": []string{}, "modified": []string{"api/app.py", "web/App.jsx"}, "removed": []string{"old.txt"}},
	})

	out, err := env.det.HandleGitHub(context.Background(), "delivery-1", sign("hush", body), body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionEnqueued {
		t.Fatalf("decision = %s (%s), want enqueued", out.Decision, out.Reason)
	}
	if out.Job.Trigger != "webhook" {
		t.Errorf("trigger = %s, want webhook", out.Job.Trigger)
	}

	cs := out.Job.Changes()
	if cs == nil {
		t.Fatal("job carries no change summary")
	}
	if cs.FromCommit != "old-sha" || cs.ToCommit != "new-sha" {
		t.Errorf("range = %q..%q", cs.FromCommit, cs.ToCommit)
	}
	if cs.CommitCount != 2 {
		t.Errorf("commit count = %d, want 2", cs.CommitCount)
	}
	if cs.FilesAdded != 1 || cs.FilesModified != 2 || cs.FilesRemoved != 1 {
		t.Errorf("delta = +%d ~%d -%d, want +1 ~2 -1", cs.FilesAdded, cs.FilesModified, cs.FilesRemoved)
	}
	if len(cs.SamplePaths) != 4 {
		t.Errorf("sample paths = %v, want 4 unique paths", cs.SamplePaths)
	}
}

func TestHandleGitHubRejectsBadSignature(t *testing.T) {
	env := newDetEnv(t, "hush")
	env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "refs/heads/main", "old-sha", "new-sha", nil)

	cases := map[string]string{
		"missing header":  "",
		"wrong secret":    sign("other", body),
		"tampered digest": "sha256=" + hex.EncodeToString(make([]byte, 32)),
	}
	for name, sig := range cases {
		if _, err := env.det.HandleGitHub(context.Background(), "d", sig, body); !errors.Is(err, ErrBadSignature) {
			t.Errorf("%s: err = %v, want ErrBadSignature", name, err)
		}
	}
}

func TestHandleGitHubWithoutSecretSkipsVerification(t *testing.T) {
	env := newDetEnv(t, "")
	env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "refs/heads/main", "old-sha", "new-sha", nil)

	out, err := env.det.HandleGitHub(context.Background(), "", "", body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionEnqueued {
		t.Errorf("decision = %s, want enqueued without verification", out.Decision)
	}
}

func TestHandleGitHubUnchangedHead(t *testing.T) {
	env := newDetEnv(t, "")
	env.seedRepo(t, "https://github.com/acme/widget-api", "same-sha")
	body := githubPushBody(t, "refs/heads/main", "before", "same-sha", nil)

	out, err := env.det.HandleGitHub(context.Background(), "", "", body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionUnchanged {
		t.Errorf("decision = %s, want unchanged", out.Decision)
	}
}

func TestHandleGitHubDuplicateDelivery(t *testing.T) {
	env := newDetEnv(t, "")
	repo := env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")
	body := githubPushBody(t, "refs/heads/main", "old-sha", "new-sha", nil)

	ctx := context.Background()
	first, err := env.det.HandleGitHub(ctx, "d1", "", body)
	if err != nil || first.Decision != DecisionEnqueued {
		t.Fatalf("first delivery: %+v, %v", first, err)
	}
	second, err := env.det.HandleGitHub(ctx, "d2", "", body)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if second.Decision != DecisionDuplicate {
		t.Errorf("decision = %s, want duplicate", second.Decision)
	}

	jobs, err := env.jobs.List(ctx, store.JobFilter{RepoID: repo.ID})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs = %d, want exactly 1 for the repeated payload", len(jobs))
	}
}

func TestHandleGitHubIgnoresOtherBranches(t *testing.T) {
	env := newDetEnv(t, "")
	env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")

	for _, ref := range []string{"refs/heads/feature/x", "refs/tags/v1.0.0"} {
		body := githubPushBody(t, ref, "old-sha", "new-sha", nil)
		out, err := env.det.HandleGitHub(context.Background(), "", "", body)
		if err != nil {
			t.Fatalf("handle %s: %v", ref, err)
		}
		if out.Decision != DecisionIgnored {
			t.Errorf("%s: decision = %s, want ignored", ref, out.Decision)
		}
	}
}

func TestHandleGitHubIgnoresUnregisteredRepo(t *testing.T) {
	env := newDetEnv(t, "")
	body := githubPushBody(t, "refs/heads/main", "a", "b", nil)

	out, err := env.det.HandleGitHub(context.Background(), "", "", body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionIgnored || out.Reason != "repository not registered" {
		t.Errorf("outcome = %+v, want ignored/not registered", out)
	}
}

func TestHandleGitHubIgnoresBranchDeletion(t *testing.T) {
	env := newDetEnv(t, "")
	env.seedRepo(t, "https://github.com/acme/widget-api", "old-sha")

	body, err := json.Marshal(map[string]any{
		"ref":     "refs/heads/main",
		"before":  "old-sha",
		"after":   zeroSHA,
		"deleted": true,
		"repository": map[string]any{
			"clone_url": "https://github.com/acme/widget-api.git",
			"full_name": "acme/widget-api",
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := env.det.HandleGitHub(context.Background(), "", "", body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionIgnored {
		t.Errorf("decision = %s, want ignored", out.Decision)
	}
}

func TestHandleGitHubBadPayload(t *testing.T) {
	env := newDetEnv(t, "")
	if _, err := env.det.HandleGitHub(context.Background(), "", "", []byte("not json")); !errors.Is(err, ErrBadPayload) {
		t.Errorf("err = %v, want ErrBadPayload", err)
	}
}

func TestHandleGitLabTokenAndParse(t *testing.T) {
	env := newDetEnv(t, "hush")
	env.seedRepo(t, "https://gitlab.com/acme/widget-api", "old-sha")
	body := gitlabPushBody(t, "refs/heads/main", "old-sha", "new-sha", 7)

	ctx := context.Background()
	if _, err := env.det.HandleGitLab(ctx, "", "wrong", body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong token: err = %v, want ErrBadSignature", err)
	}

	out, err := env.det.HandleGitLab(ctx, "", "hush", body)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Decision != DecisionEnqueued {
		t.Fatalf("decision = %s (%s), want enqueued", out.Decision, out.Reason)
	}
	cs := out.Job.Changes()
	if cs == nil || cs.CommitCount != 7 {
		t.Errorf("commit count = %+v, want the server-side 7", cs)
	}
}

func TestHandleGitLabRejectsNonPushEvents(t *testing.T) {
	env := newDetEnv(t, "")
	body, err := json.Marshal(map[string]any{"object_kind": "merge_request"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := env.det.HandleGitLab(context.Background(), "", "", body); !errors.Is(err, ErrBadPayload) {
		t.Errorf("err = %v, want ErrBadPayload", err)
	}
}
