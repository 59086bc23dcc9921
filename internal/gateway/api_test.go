package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

func newTestDB(t *testing.T) database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "gateway-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

// newTestGateway wires a full gateway against a throwaway SQLite file. No
// config path is set, so handlers that write config back skip the save.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	return newTestGatewayWith(t, func(*config.Config) {})
}

func newTestGatewayWith(t *testing.T, mutate func(*config.Config)) *Gateway {
	t.Helper()
	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.Webhooks.Secret = "hush"
	cfg.AI.Profile = "technical"
	mutate(cfg)
	gw, err := New(cfg, db)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func do(t *testing.T, gw *Gateway, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, gw *Gateway, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func errorMsg(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	decode(t, rr, &e)
	return e.Error
}

// seedRepo registers a monitored repository through the store; lastHash != ""
// marks it already analyzed at that commit.
func seedRepo(t *testing.T, gw *Gateway, url, lastHash string) *models.Repo {
	t.Helper()
	ctx := context.Background()
	repo, err := gw.repos.Create(ctx, &models.Repo{
		URL:               url,
		Name:              "widget-api",
		Provider:          "github",
		MonitoringEnabled: true,
	})
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	if lastHash != "" {
		if err := gw.repos.SetStatus(ctx, repo.ID, models.RepoCloning, ""); err != nil {
			t.Fatalf("set cloning: %v", err)
		}
		if err := gw.repos.SetCompleted(ctx, repo.ID, lastHash, time.Now().UTC()); err != nil {
			t.Fatalf("set completed: %v", err)
		}
	}
	got, err := gw.repos.Get(ctx, repo.ID)
	if err != nil {
		t.Fatalf("reload repo: %v", err)
	}
	return got
}

func seedDocVersion(t *testing.T, gw *Gateway, repoID int64, commit string) *models.DocVersion {
	t.Helper()
	v, err := gw.docs.Append(context.Background(), repoID, store.AppendInput{
		CommitHash:  commit,
		FileCount:   42,
		LinesOfCode: 1800,
		Profile:     "technical",
		Content: &models.DocContent{
			ExecutiveSummary: "Widget API serves widget inventory over REST.",
			ProductOverview:  "A FastAPI service with a React dashboard.",
			KeyFeatures:      []string{"REST API", "React dashboard"},
			TechStack:        models.TechStack{Languages: []string{"Python", "JavaScript"}},
			Architecture:     "Two-tier web application.",
			UseCases:         []string{"Inventory lookups"},
		},
	})
	if err != nil {
		t.Fatalf("append doc version: %v", err)
	}
	return v
}

// frameTypes drains buffered SSE frames from a subscriber channel and
// returns their event types.
func frameTypes(ch chan []byte) []string {
	var out []string
	for {
		select {
		case frame := <-ch:
			raw := bytes.TrimPrefix(bytes.TrimSpace(frame), []byte("data: "))
			var evt SSEEvent
			if err := json.Unmarshal(raw, &evt); err == nil {
				out = append(out, evt.Type)
			}
		default:
			return out
		}
	}
}

func TestHealthAndRoot(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	var health map[string]string
	decode(t, rr, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	rr = do(t, gw, http.MethodGet, "/")
	var root struct {
		Name      string   `json:"name"`
		Endpoints []string `json:"endpoints"`
	}
	decode(t, rr, &root)
	if root.Name != "docsmith gateway" {
		t.Errorf("name = %q", root.Name)
	}
	if len(root.Endpoints) == 0 {
		t.Error("endpoints list is empty")
	}
}

func TestStatusReportsLiveCounters(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/status")
	var st PipelineStatus
	decode(t, rr, &st)
	if st.Workers != 2 {
		t.Errorf("workers = %d, want default 2", st.Workers)
	}
	if st.Paused {
		t.Error("fresh gateway reports paused")
	}

	seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	gw.refreshStatus(context.Background())

	rr = do(t, gw, http.MethodGet, "/api/status")
	decode(t, rr, &st)
	if st.Repos != 1 || st.Monitored != 1 {
		t.Errorf("repos = %d monitored = %d, want 1/1", st.Repos, st.Monitored)
	}
}

func TestCreateRepo(t *testing.T) {
	gw := newTestGateway(t)
	_, ch, _ := gw.broadcaster.subscribe()

	rr := doJSON(t, gw, http.MethodPost, "/api/repos", map[string]any{
		"url":  "https://github.com/acme/widget-api",
		"name": "widget-api",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp createRepoResponse
	decode(t, rr, &resp)
	if resp.Repo == nil || resp.Repo.ID == 0 {
		t.Fatalf("response carries no repo: %s", rr.Body.String())
	}
	if resp.Repo.Provider != "github" {
		t.Errorf("provider = %q, want github detected from the URL", resp.Repo.Provider)
	}
	if resp.Repo.DefaultBranch != "main" {
		t.Errorf("default branch = %q, want main", resp.Repo.DefaultBranch)
	}
	if resp.Repo.Status != models.RepoPending {
		t.Errorf("status = %s, want pending", resp.Repo.Status)
	}
	if !resp.Repo.MonitoringEnabled {
		t.Error("monitoring not enabled by default")
	}
	if resp.Job == nil {
		t.Fatal("registration did not queue the first analysis")
	}
	if resp.Job.Trigger != models.TriggerManual || resp.Job.Status != models.JobPending {
		t.Errorf("job = %s/%s, want manual/pending", resp.Job.Trigger, resp.Job.Status)
	}

	types := frameTypes(ch)
	if !slices.Contains(types, "repo.created") {
		t.Errorf("events = %v, want repo.created", types)
	}
	if !slices.Contains(types, "job.enqueued") {
		t.Errorf("events = %v, want job.enqueued", types)
	}
}

func TestCreateRepoDuplicateURL(t *testing.T) {
	gw := newTestGateway(t)
	first := seedRepo(t, gw, "https://github.com/acme/widget-api", "")

	rr := doJSON(t, gw, http.MethodPost, "/api/repos", map[string]any{
		"url": "https://github.com/acme/widget-api",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	var resp struct {
		Error string       `json:"error"`
		Repo  *models.Repo `json:"repo"`
	}
	decode(t, rr, &resp)
	if resp.Error != "repository already registered" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Repo == nil || resp.Repo.ID != first.ID {
		t.Errorf("conflict response does not carry the existing repo: %s", rr.Body.String())
	}
}

func TestCreateRepoValidation(t *testing.T) {
	gw := newTestGateway(t)

	rr := doJSON(t, gw, http.MethodPost, "/api/repos", map[string]any{"name": "no-url"})
	if rr.Code != http.StatusBadRequest || errorMsg(t, rr) != "url is required" {
		t.Errorf("missing url: status = %d body = %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/repos", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rec.Code)
	}
}

func TestCreateRepoAnalyzeOptOut(t *testing.T) {
	gw := newTestGateway(t)

	rr := doJSON(t, gw, http.MethodPost, "/api/repos", map[string]any{
		"url":     "https://github.com/acme/widget-api",
		"analyze": false,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp createRepoResponse
	decode(t, rr, &resp)
	if resp.Job != nil {
		t.Errorf("analyze=false still queued job %d", resp.Job.ID)
	}

	jobs := do(t, gw, http.MethodGet, "/api/jobs")
	var list []jobResponse
	decode(t, jobs, &list)
	if len(list) != 0 {
		t.Errorf("job list = %d entries, want none", len(list))
	}
}

func TestListRepos(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/repos")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("empty list body = %s, want []", body)
	}

	seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	rr = do(t, gw, http.MethodGet, "/api/repos")
	var repos []models.Repo
	decode(t, rr, &repos)
	if len(repos) != 1 || repos[0].URL != "https://github.com/acme/widget-api" {
		t.Errorf("list = %+v", repos)
	}
}

func TestGetRepoDetail(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "abc123")
	seedDocVersion(t, gw, repo.ID, "abc123")
	if _, err := gw.sched.Enqueue(context.Background(), repo.ID, models.TriggerManual, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rr := do(t, gw, http.MethodGet, "/api/repos/"+itoa(repo.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var detail repoDetail
	decode(t, rr, &detail)
	if detail.ID != repo.ID {
		t.Errorf("id = %d, want %d", detail.ID, repo.ID)
	}
	if detail.Versions != 1 {
		t.Errorf("versions = %d, want 1", detail.Versions)
	}
	if detail.LatestVersion == nil || detail.LatestVersion.Version != 1 {
		t.Errorf("latest version = %+v", detail.LatestVersion)
	}
	if detail.ActiveJob == nil || detail.ActiveJob.Status != models.JobPending {
		t.Errorf("active job = %+v", detail.ActiveJob)
	}
}

func TestGetRepoErrors(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/repos/999")
	if rr.Code != http.StatusNotFound || errorMsg(t, rr) != "repository not found" {
		t.Errorf("unknown id: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = do(t, gw, http.MethodGet, "/api/repos/abc")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d", rr.Code)
	}
}

func TestDeleteRepoRemovesDependents(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "abc123")
	seedDocVersion(t, gw, repo.ID, "abc123")
	if _, err := gw.sched.Enqueue(context.Background(), repo.ID, models.TriggerManual, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rr := do(t, gw, http.MethodDelete, "/api/repos/"+itoa(repo.ID))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	if rr = do(t, gw, http.MethodGet, "/api/repos/"+itoa(repo.ID)); rr.Code != http.StatusNotFound {
		t.Errorf("repo still present after delete: %d", rr.Code)
	}
	jobs := do(t, gw, http.MethodGet, "/api/jobs?repo_id="+itoa(repo.ID))
	var list []jobResponse
	decode(t, jobs, &list)
	if len(list) != 0 {
		t.Errorf("jobs survived repo deletion: %+v", list)
	}
	if docs := do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)); docs.Code != http.StatusNotFound {
		t.Errorf("docs survived repo deletion: %d", docs.Code)
	}
}

func TestAnalyzeRepoConflict(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")

	rr := doJSON(t, gw, http.MethodPost, "/api/repos/"+itoa(repo.ID)+"/analyze", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("first analyze: status = %d: %s", rr.Code, rr.Body.String())
	}
	var first struct {
		Job *models.Job `json:"job"`
	}
	decode(t, rr, &first)
	if first.Job == nil || first.Job.Trigger != models.TriggerManual {
		t.Fatalf("job = %+v, want manual trigger", first.Job)
	}

	rr = doJSON(t, gw, http.MethodPost, "/api/repos/"+itoa(repo.ID)+"/analyze", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second analyze: status = %d, want 409", rr.Code)
	}
	var conflict struct {
		Error string      `json:"error"`
		Job   *models.Job `json:"job"`
	}
	decode(t, rr, &conflict)
	if conflict.Error != "analysis already in progress" {
		t.Errorf("error = %q", conflict.Error)
	}
	if conflict.Job == nil || conflict.Job.ID != first.Job.ID {
		t.Errorf("conflict does not return the active job: %s", rr.Body.String())
	}

	if rr = doJSON(t, gw, http.MethodPost, "/api/repos/999/analyze", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown repo: status = %d", rr.Code)
	}
}

func TestSetMonitoring(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")

	rr := doJSON(t, gw, http.MethodPut, "/api/repos/"+itoa(repo.ID)+"/monitoring", map[string]any{"enabled": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	got, err := gw.repos.Get(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.MonitoringEnabled {
		t.Error("monitoring still enabled after PUT false")
	}

	if rr = doJSON(t, gw, http.MethodPut, "/api/repos/999/monitoring", map[string]any{"enabled": true}); rr.Code != http.StatusNotFound {
		t.Errorf("unknown repo: status = %d", rr.Code)
	}
}

func TestLatestDocs(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")

	rr := do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID))
	if rr.Code != http.StatusNotFound || errorMsg(t, rr) != "no documentation generated yet" {
		t.Errorf("no docs yet: status = %d body = %s", rr.Code, rr.Body.String())
	}

	seedDocVersion(t, gw, repo.ID, "c1")
	seedDocVersion(t, gw, repo.ID, "c2")

	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var doc docResponse
	decode(t, rr, &doc)
	if doc.Version != 2 || doc.CommitHash != "c2" {
		t.Errorf("latest = v%d @%s, want v2 @c2", doc.Version, doc.CommitHash)
	}
	if doc.Content == nil || doc.Content.ExecutiveSummary == "" {
		t.Error("content not decoded into the response")
	}
}

func TestDocVersionHistory(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	seedDocVersion(t, gw, repo.ID, "c1")
	seedDocVersion(t, gw, repo.ID, "c2")

	rr := do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/versions")
	var versions []models.DocVersion
	decode(t, rr, &versions)
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	// ContentJSON is excluded from the listing payload.
	if strings.Contains(rr.Body.String(), "executive_summary") {
		t.Error("version listing leaks full content")
	}

	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/versions/1")
	var doc docResponse
	decode(t, rr, &doc)
	if doc.Version != 1 || doc.CommitHash != "c1" {
		t.Errorf("version 1 = v%d @%s", doc.Version, doc.CommitHash)
	}

	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/versions/9")
	if rr.Code != http.StatusNotFound || errorMsg(t, rr) != "version not found" {
		t.Errorf("missing version: status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestExportDocs(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	seedDocVersion(t, gw, repo.ID, "c1")
	seedDocVersion(t, gw, repo.ID, "c2")

	rr := do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/export")
	if rr.Code != http.StatusOK {
		t.Fatalf("markdown export: status = %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "widget-api-v2.md") {
		t.Errorf("disposition = %q, want widget-api-v2.md", cd)
	}
	if !strings.Contains(rr.Body.String(), "widget-api") {
		t.Error("rendered markdown does not mention the repository")
	}

	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/export?format=json&version=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("json export: status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "widget-api-v1.json") {
		t.Errorf("disposition = %q, want widget-api-v1.json", cd)
	}

	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/export?format=pdf")
	if rr.Code != http.StatusBadRequest || !strings.Contains(errorMsg(t, rr), "unsupported export format") {
		t.Errorf("bad format: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = do(t, gw, http.MethodGet, "/api/docs/"+itoa(repo.ID)+"/export?version=zero")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad version: status = %d", rr.Code)
	}
	rr = do(t, gw, http.MethodGet, "/api/docs/999/export")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown repo: status = %d", rr.Code)
	}
}

func TestListJobsFilters(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	a := seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	b := seedRepo(t, gw, "https://github.com/acme/billing", "")

	if _, err := gw.sched.Enqueue(ctx, a.ID, models.TriggerManual, nil); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if _, err := gw.sched.Enqueue(ctx, b.ID, models.TriggerPoll, &models.ChangeSummary{ToCommit: "new"}); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}

	rr := do(t, gw, http.MethodGet, "/api/jobs")
	var list []jobResponse
	decode(t, rr, &list)
	if len(list) != 2 {
		t.Fatalf("all jobs = %d, want 2", len(list))
	}

	rr = do(t, gw, http.MethodGet, "/api/jobs?repo_id="+itoa(b.ID))
	decode(t, rr, &list)
	if len(list) != 1 || list[0].RepoID != b.ID {
		t.Errorf("repo filter = %+v", list)
	}
	if list[0].Changes == nil || list[0].Changes.ToCommit != "new" {
		t.Errorf("change summary not decoded: %s", rr.Body.String())
	}

	rr = do(t, gw, http.MethodGet, "/api/jobs?status=pending")
	decode(t, rr, &list)
	if len(list) != 2 {
		t.Errorf("pending filter = %d, want 2", len(list))
	}
	rr = do(t, gw, http.MethodGet, "/api/jobs?status=failed")
	decode(t, rr, &list)
	if len(list) != 0 {
		t.Errorf("failed filter = %d, want 0", len(list))
	}

	rr = do(t, gw, http.MethodGet, "/api/jobs?limit=1")
	decode(t, rr, &list)
	if len(list) != 1 {
		t.Errorf("limit=1 returned %d", len(list))
	}
}

func TestListJobsValidation(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/jobs?status=bogus")
	if rr.Code != http.StatusBadRequest || !strings.Contains(errorMsg(t, rr), "unknown job status") {
		t.Errorf("bad status: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = do(t, gw, http.MethodGet, "/api/jobs?repo_id=zero")
	if rr.Code != http.StatusBadRequest || errorMsg(t, rr) != "repo_id must be a positive integer" {
		t.Errorf("bad repo_id: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = do(t, gw, http.MethodGet, "/api/jobs?repo_id=0")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("zero repo_id: status = %d", rr.Code)
	}
}

func TestGetJob(t *testing.T) {
	gw := newTestGateway(t)
	repo := seedRepo(t, gw, "https://github.com/acme/widget-api", "")
	job, err := gw.sched.Enqueue(context.Background(), repo.ID, models.TriggerPoll,
		&models.ChangeSummary{FromCommit: "old", ToCommit: "new", CommitCount: 3})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rr := do(t, gw, http.MethodGet, "/api/jobs/"+itoa(job.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got jobResponse
	decode(t, rr, &got)
	if got.ID != job.ID || got.Trigger != models.TriggerPoll {
		t.Errorf("job = %+v", got.Job)
	}
	if got.Changes == nil || got.Changes.CommitCount != 3 {
		t.Errorf("changes = %+v, want commit count 3", got.Changes)
	}

	rr = do(t, gw, http.MethodGet, "/api/jobs/999")
	if rr.Code != http.StatusNotFound || errorMsg(t, rr) != "job not found" {
		t.Errorf("missing job: status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = do(t, gw, http.MethodGet, "/api/jobs/abc")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d", rr.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
