package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

type fakeSource struct {
	co       *source.Checkout
	err      error
	gotToken string
	cleaned  int
}

func (f *fakeSource) Fetch(ctx context.Context, repoURL, token, branch string) (*source.Checkout, error) {
	f.gotToken = token
	if f.err != nil {
		return nil, f.err
	}
	return f.co, nil
}

func (f *fakeSource) Cleanup(co *source.Checkout) { f.cleaned++ }

type fakeGen struct {
	content *models.DocContent
	err     error
	reqs    []ai.Request
	// hook runs before the canned response and can simulate cancellation.
	hook func(ctx context.Context) error
}

func (f *fakeGen) GenerateDocs(ctx context.Context, req ai.Request) (*models.DocContent, error) {
	f.reqs = append(f.reqs, req)
	if f.hook != nil {
		if err := f.hook(ctx); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type execEnv struct {
	repos *store.Repos
	docs  *store.Docs
	snaps *store.Snapshots
	src   *fakeSource
	gen   *fakeGen
	exec  *Executor
}

func newTestDB(t *testing.T) database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pipeline-test.db")
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

func newExecEnv(t *testing.T, cfg config.PipelineConfig, profile *profiles.Profile) *execEnv {
	t.Helper()
	db := newTestDB(t)
	env := &execEnv{
		repos: store.NewRepos(db),
		docs:  store.NewDocs(db),
		snaps: store.NewSnapshots(db),
		src:   &fakeSource{},
		gen:   &fakeGen{content: cannedContent()},
	}
	creds := func(*models.Repo) string { return "s3cret" }
	env.exec = NewExecutor(cfg, env.repos, env.docs, env.snaps, env.src, env.gen, profile, creds, nil)
	return env
}

func (env *execEnv) seedRepo(t *testing.T, name string) *models.Repo {
	t.Helper()
	repo, err := env.repos.Create(context.Background(), &models.Repo{
		URL:      "https://github.com/acme/widget-api",
		Name:     name,
		Provider: "github",
	})
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	return repo
}

func (env *execEnv) getRepo(t *testing.T, id int64) *models.Repo {
	t.Helper()
	repo, err := env.repos.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get repo: %v", err)
	}
	return repo
}

// seedCheckout writes files into a fresh directory standing in for a clone.
func seedCheckout(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o640); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return dir
}

func checkoutAt(dir, commit string) *source.Checkout {
	return &source.Checkout{
		Dir:    dir,
		Owner:  "acme",
		Repo:   "widget-api",
		Branch: "main",
		Commit: commit,
	}
}

func cannedContent() *models.DocContent {
	return &models.DocContent{
		ExecutiveSummary: "Widget tracks sales leads for small teams.",
		ProductOverview:  "Widget tracks sales leads for small teams.\n\nKey Capabilities:\n• Lead capture",
		KeyFeatures:      []string{"Lead capture", "Pipeline view"},
	}
}

func pyFiles() map[string]string {
	return map[string]string{
		"api/app.py":    "import flask\n\ndef create_app():\n    return flask.Flask(__name__)\n\nclass Config:\n    DEBUG = False\n",
		"api/models.py": "class Lead:\n    def __init__(self, name):\n        self.name = name\n",
		"README.md":     "# Widget\nLead tracking for small teams.\n",
	}
}

func TestRunHappyPath(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, &profiles.Profile{Name: "technical", Body: "Write plainly."})
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")

	res, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Unchanged {
		t.Error("first run reported unchanged")
	}
	if res.CommitHash != "abc123" {
		t.Errorf("commit hash = %q, want abc123", res.CommitHash)
	}
	if res.Version == nil || res.Version.Version != 1 {
		t.Fatalf("version = %+v, want version 1", res.Version)
	}
	if res.Version.Profile != "technical" {
		t.Errorf("version profile = %q, want technical", res.Version.Profile)
	}
	if res.Changes == nil {
		t.Fatal("change summary missing")
	}
	if res.Changes.FilesAdded != res.Version.FileCount {
		t.Errorf("first run added %d files, want %d (all of them)", res.Changes.FilesAdded, res.Version.FileCount)
	}
	if res.Changes.FromCommit != "" || res.Changes.ToCommit != "abc123" {
		t.Errorf("change range = %q..%q, want \"\"..abc123", res.Changes.FromCommit, res.Changes.ToCommit)
	}

	got := env.getRepo(t, repo.ID)
	if got.Status != models.RepoCompleted {
		t.Errorf("repo status = %s, want completed", got.Status)
	}
	if got.LastCommitHash != "abc123" {
		t.Errorf("last commit = %q, want abc123", got.LastCommitHash)
	}
	if got.LastAnalyzedAt == nil {
		t.Error("last analyzed timestamp not set")
	}
	if got.ErrorMsg != "" {
		t.Errorf("error message = %q, want empty", got.ErrorMsg)
	}

	if env.src.gotToken != "s3cret" {
		t.Errorf("fetch token = %q, want resolved credential", env.src.gotToken)
	}
	if env.src.cleaned != 1 {
		t.Errorf("cleanup called %d times, want 1", env.src.cleaned)
	}
	if len(env.gen.reqs) != 1 {
		t.Fatalf("generator called %d times, want 1", len(env.gen.reqs))
	}
	req := env.gen.reqs[0]
	if req.RepoName != "widget-api" {
		t.Errorf("generation repo name = %q", req.RepoName)
	}
	if req.Profile == nil || req.Profile.Name != "technical" {
		t.Error("generation request missing the active profile")
	}
	if req.Analysis == nil || req.Analysis.FileCount() == 0 {
		t.Error("generation request missing analysis facts")
	}

	snap, err := env.snaps.Latest(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap.CommitHash != "abc123" {
		t.Errorf("snapshot commit = %q, want abc123", snap.CommitHash)
	}
}

func TestRunSecondRunComputesDelta(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")

	first := map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    pass\n",
		"d.py": "def d():\n    pass\n",
	}
	env.src.co = checkoutAt(seedCheckout(t, first), "commit-1")
	if _, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    return 2\n",
		"c.py": "def c():\n    pass\n",
	}
	env.src.co = checkoutAt(seedCheckout(t, second), "commit-2")
	repo = env.getRepo(t, repo.ID)
	res, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 2, RepoID: repo.ID, Trigger: models.TriggerPoll})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if res.Version.Version != 2 {
		t.Errorf("version = %d, want 2", res.Version.Version)
	}
	cs := res.Changes
	if cs.FromCommit != "commit-1" || cs.ToCommit != "commit-2" {
		t.Errorf("change range = %q..%q", cs.FromCommit, cs.ToCommit)
	}
	if cs.FilesAdded != 1 || cs.FilesModified != 1 || cs.FilesRemoved != 1 {
		t.Errorf("delta = +%d ~%d -%d, want +1 ~1 -1", cs.FilesAdded, cs.FilesModified, cs.FilesRemoved)
	}
	if len(cs.SamplePaths) == 0 {
		t.Error("sample paths missing")
	}
}

func TestRunWebhookJobKeepsEnqueueRange(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "head-2")

	job := &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerWebhook}
	if err := job.SetChanges(&models.ChangeSummary{FromCommit: "head-1", ToCommit: "head-2", CommitCount: 3}); err != nil {
		t.Fatalf("set changes: %v", err)
	}

	res, err := env.exec.Run(context.Background(), repo, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Changes.CommitCount != 3 {
		t.Errorf("commit count = %d, want the payload's 3", res.Changes.CommitCount)
	}
	if res.Changes.FromCommit != "head-1" {
		t.Errorf("from commit = %q, want the payload's head-1", res.Changes.FromCommit)
	}
}

func TestRunShortCircuitUnchanged(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{ShortCircuitUnchanged: true}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")

	if _, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Poll hits the same head: no new version.
	repo = env.getRepo(t, repo.ID)
	res, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 2, RepoID: repo.ID, Trigger: models.TriggerPoll})
	if err != nil {
		t.Fatalf("poll run: %v", err)
	}
	if !res.Unchanged {
		t.Error("poll at unchanged head did not short-circuit")
	}
	if res.Version != nil {
		t.Errorf("short-circuit produced version %d", res.Version.Version)
	}
	if n, err := env.docs.Count(context.Background(), repo.ID); err != nil || n != 1 {
		t.Errorf("version count = %d (err %v), want 1", n, err)
	}
	if got := env.getRepo(t, repo.ID); got.Status != models.RepoCompleted {
		t.Errorf("repo status = %s, want completed", got.Status)
	}

	// A manual request reprocesses regardless.
	repo = env.getRepo(t, repo.ID)
	res, err = env.exec.Run(context.Background(), repo, &models.Job{ID: 3, RepoID: repo.ID, Trigger: models.TriggerManual})
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if res.Unchanged {
		t.Error("manual run short-circuited")
	}
	if res.Version == nil || res.Version.Version != 2 {
		t.Errorf("manual run version = %+v, want 2", res.Version)
	}
}

func TestRunFetchAuthFailure(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.err = fmt.Errorf("clone https://github.com/acme/widget-api: %w", source.ErrAuthRequired)

	_, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fe.Kind != FetchAuthRequired {
		t.Errorf("fetch kind = %s, want auth_required", fe.Kind)
	}
	if Retryable(err) {
		t.Error("auth failure should not be retryable")
	}

	got := env.getRepo(t, repo.ID)
	if got.Status != models.RepoFailed {
		t.Errorf("repo status = %s, want failed", got.Status)
	}
	if got.ErrorMsg == "" {
		t.Error("failure reason not recorded")
	}
}

func TestRunGenerationFailureIsRetryable(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")
	env.gen.err = errors.New("openai API error: status 500")

	_, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want GenerationError", err)
	}
	if ge.Timeout {
		t.Error("engine failure misreported as timeout")
	}
	if !Retryable(err) {
		t.Error("generation failure should be retryable")
	}
	if got := env.getRepo(t, repo.ID); got.Status != models.RepoFailed {
		t.Errorf("repo status = %s, want failed", got.Status)
	}
	if env.src.cleaned != 1 {
		t.Error("checkout not cleaned up after failure")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.exec.Run(ctx, repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	// The run never started, so the repository keeps its prior status.
	if got := env.getRepo(t, repo.ID); got.Status != models.RepoPending {
		t.Errorf("repo status = %s, want pending untouched", got.Status)
	}
}

func TestRunCancelledDuringGeneration(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")

	ctx, cancel := context.WithCancel(context.Background())
	env.gen.hook = func(context.Context) error {
		cancel()
		return context.Canceled
	}

	_, err := env.exec.Run(ctx, repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if Retryable(err) {
		t.Error("cancellation should never be retryable")
	}
	got := env.getRepo(t, repo.ID)
	if got.Status != models.RepoFailed {
		t.Errorf("repo status = %s, want failed", got.Status)
	}
	if got.ErrorMsg != "cancelled" {
		t.Errorf("error message = %q, want cancelled", got.ErrorMsg)
	}
}

func TestRunRepairsStaleStatus(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "widget-api")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")

	// Simulate a crash that left the repository mid-pipeline.
	ctx := context.Background()
	if err := env.repos.SetStatus(ctx, repo.ID, models.RepoCloning, ""); err != nil {
		t.Fatalf("set cloning: %v", err)
	}
	if err := env.repos.SetStatus(ctx, repo.ID, models.RepoAnalyzing, ""); err != nil {
		t.Fatalf("set analyzing: %v", err)
	}

	repo = env.getRepo(t, repo.ID)
	res, err := env.exec.Run(ctx, repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual})
	if err != nil {
		t.Fatalf("run after stale status: %v", err)
	}
	if res.Version == nil || res.Version.Version != 1 {
		t.Fatalf("version = %+v, want 1", res.Version)
	}
	if got := env.getRepo(t, repo.ID); got.Status != models.RepoCompleted {
		t.Errorf("repo status = %s, want completed", got.Status)
	}
}

func TestRunNamesRepoFromCheckout(t *testing.T) {
	env := newExecEnv(t, config.PipelineConfig{}, nil)
	repo := env.seedRepo(t, "")
	env.src.co = checkoutAt(seedCheckout(t, pyFiles()), "abc123")

	if _, err := env.exec.Run(context.Background(), repo, &models.Job{ID: 1, RepoID: repo.ID, Trigger: models.TriggerManual}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := env.getRepo(t, repo.ID); got.Name != "widget-api" {
		t.Errorf("repo name = %q, want widget-api from the checkout", got.Name)
	}
	if len(env.gen.reqs) == 1 && env.gen.reqs[0].RepoName != "widget-api" {
		t.Errorf("generation repo name = %q", env.gen.reqs[0].RepoName)
	}
}
