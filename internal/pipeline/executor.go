package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/analyzer"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// Stage timeouts applied when the config leaves them unset.
const (
	defaultCloneTimeout    = 120 * time.Second
	defaultExtractTimeout  = 60 * time.Second
	defaultGenerateTimeout = 300 * time.Second
)

// samplePathCap bounds how many changed paths a ChangeSummary carries.
const samplePathCap = 5

// repoErrMsgCap bounds the failure text recorded on the repository row; the
// job keeps the full error.
const repoErrMsgCap = 200

// Result is what a successful pipeline run hands back to the scheduler.
type Result struct {
	CommitHash string
	// Version is nil when the run short-circuited on an unchanged head.
	Version   *models.DocVersion
	Changes   *models.ChangeSummary
	Unchanged bool
}

// Source resolves a repository revision into a local checkout. The production
// implementation is source.Fetcher.
type Source interface {
	Fetch(ctx context.Context, repoURL, token, branch string) (*source.Checkout, error)
	Cleanup(co *source.Checkout)
}

// Generator produces documentation content from analysis facts. The
// production implementation is ai.Generator.
type Generator interface {
	GenerateDocs(ctx context.Context, req ai.Request) (*models.DocContent, error)
}

// Executor runs the pipeline stages for one job: fetch, extract, generate,
// persist. Every repository status write runs under the shared per-repo lock,
// and terminal writes use a fresh context so a cancelled run still records
// its own outcome.
type Executor struct {
	cfg      config.PipelineConfig
	repos    *store.Repos
	docs     *store.Docs
	snaps    *store.Snapshots
	analyzer *analyzer.Analyzer
	src      Source
	gen      Generator
	profile  *profiles.Profile
	creds    func(*models.Repo) string
	lock     func(int64, func() error) error
}

// NewExecutor wires an Executor. profile may be nil (no writing profile);
// creds resolves the clone credential for a repository and may be nil for
// anonymous clones; lock is the scheduler's RepoLocks.WithRepo.
func NewExecutor(
	cfg config.PipelineConfig,
	repos *store.Repos,
	docs *store.Docs,
	snaps *store.Snapshots,
	src Source,
	gen Generator,
	profile *profiles.Profile,
	creds func(*models.Repo) string,
	lock func(int64, func() error) error,
) *Executor {
	if creds == nil {
		creds = func(*models.Repo) string { return "" }
	}
	if lock == nil {
		lock = func(_ int64, fn func() error) error { return fn() }
	}
	return &Executor{
		cfg:      cfg,
		repos:    repos,
		docs:     docs,
		snaps:    snaps,
		analyzer: analyzer.New(cfg),
		src:      src,
		gen:      gen,
		profile:  profile,
		creds:    creds,
		lock:     lock,
	}
}

// Run executes the full pipeline for one job. Cancellation is honoured at
// stage boundaries: the repository is recorded failed with reason "cancelled"
// and ErrCancelled tells the scheduler never to retry.
func (e *Executor) Run(ctx context.Context, repo *models.Repo, job *models.Job) (*Result, error) {
	start := time.Now()
	slog.Info("pipeline run starting",
		"repo", repo.ID, "job", job.ID, "url", repo.URL, "trigger", job.Trigger)

	if ctx.Err() != nil {
		// Nothing started yet; leave the repository status alone.
		return nil, ErrCancelled
	}
	if err := e.enterCloning(repo.ID); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	co, err := e.fetch(ctx, repo)
	if err != nil {
		if ctx.Err() != nil {
			e.failRepo(repo.ID, "cancelled")
			return nil, ErrCancelled
		}
		e.failRepo(repo.ID, shortMsg(err))
		return nil, err
	}
	defer e.src.Cleanup(co)

	if e.shouldShortCircuit(repo, job, co.Commit) {
		if err := e.completeRepo(repo.ID, co.Commit); err != nil {
			return nil, &PersistenceError{Err: err}
		}
		slog.Info("head unchanged since last analysis, skipping regeneration",
			"repo", repo.ID, "job", job.ID, "commit", co.Commit)
		return &Result{CommitHash: co.Commit, Unchanged: true}, nil
	}

	if err := e.advance(ctx, repo.ID, models.RepoAnalyzing); err != nil {
		return nil, err
	}
	an, err := e.extract(ctx, co.Dir)
	if err != nil {
		if ctx.Err() != nil {
			e.failRepo(repo.ID, "cancelled")
			return nil, ErrCancelled
		}
		e.failRepo(repo.ID, shortMsg(err))
		return nil, err
	}

	if err := e.advance(ctx, repo.ID, models.RepoGeneratingDocs); err != nil {
		return nil, err
	}
	content, err := e.generate(ctx, repo, co, an)
	if err != nil {
		if ctx.Err() != nil {
			e.failRepo(repo.ID, "cancelled")
			return nil, ErrCancelled
		}
		e.failRepo(repo.ID, shortMsg(err))
		return nil, err
	}

	if ctx.Err() != nil {
		e.failRepo(repo.ID, "cancelled")
		return nil, ErrCancelled
	}
	res, err := e.persist(repo, job, co, an, content)
	if err != nil {
		e.failRepo(repo.ID, shortMsg(err))
		return nil, &PersistenceError{Err: err}
	}

	slog.Info("pipeline run completed",
		"repo", repo.ID, "job", job.ID, "version", res.Version.Version,
		"commit", res.CommitHash, "files", res.Version.FileCount,
		"duration", fmt.Sprintf("%.1fs", time.Since(start).Seconds()))
	return res, nil
}

// enterCloning moves the repository into cloning. A crashed process can leave
// a mid-pipeline status behind with its job requeued; that stale state is
// routed through failed first, since cloning is only re-enterable from
// pending or a terminal state.
func (e *Executor) enterCloning(repoID int64) error {
	ctx := context.Background()
	return e.lock(repoID, func() error {
		cur, err := e.repos.Get(ctx, repoID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case models.RepoCloning, models.RepoAnalyzing, models.RepoGeneratingDocs:
			if err := e.repos.SetStatus(ctx, repoID, models.RepoFailed, "interrupted by restart"); err != nil {
				return err
			}
		}
		return e.repos.SetStatus(ctx, repoID, models.RepoCloning, "")
	})
}

func (e *Executor) fetch(ctx context.Context, repo *models.Repo) (*source.Checkout, error) {
	fctx, cancel := context.WithTimeout(ctx, orDefault(e.cfg.CloneTimeout, defaultCloneTimeout))
	defer cancel()

	co, err := e.src.Fetch(fctx, repo.URL, e.creds(repo), repo.DefaultBranch)
	if err != nil {
		return nil, classifyFetch(repo.URL, err)
	}
	return co, nil
}

// classifyFetch maps clone failures onto the fetch taxonomy. Anything that is
// not an auth or branch problem, timeouts included, counts as an unreachable
// remote and stays retryable.
func classifyFetch(url string, err error) error {
	kind := FetchUnreachable
	switch {
	case errors.Is(err, source.ErrAuthRequired):
		kind = FetchAuthRequired
	case errors.Is(err, source.ErrBranchNotFound):
		kind = FetchBranchNotFound
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

func (e *Executor) extract(ctx context.Context, dir string) (*analyzer.Analysis, error) {
	ectx, cancel := context.WithTimeout(ctx, orDefault(e.cfg.ExtractTimeout, defaultExtractTimeout))
	defer cancel()

	an, err := e.analyzer.Analyze(ectx, dir)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	return an, nil
}

func (e *Executor) generate(ctx context.Context, repo *models.Repo, co *source.Checkout, an *analyzer.Analysis) (*models.DocContent, error) {
	gctx, cancel := context.WithTimeout(ctx, orDefault(e.cfg.GenerateTimeout, defaultGenerateTimeout))
	defer cancel()

	name := repo.Name
	if name == "" {
		name = co.Repo
	}
	content, err := e.gen.GenerateDocs(gctx, ai.Request{
		RepoName:    name,
		Description: repo.Description,
		Profile:     e.profile,
		Analysis:    an,
	})
	if err != nil {
		return nil, &GenerationError{Timeout: gctx.Err() != nil && ctx.Err() == nil, Err: err}
	}
	return content, nil
}

// persist appends the documentation version, stores the snapshot, and flips
// the repository to completed, all under the repo lock so completed is never
// observable without its version. Writes use a fresh context.
func (e *Executor) persist(repo *models.Repo, job *models.Job, co *source.Checkout, an *analyzer.Analysis, content *models.DocContent) (*Result, error) {
	ctx := context.Background()
	digests := an.Digests()

	var ver *models.DocVersion
	var changes *models.ChangeSummary
	err := e.lock(repo.ID, func() error {
		changes = e.changeSummary(ctx, repo, job, co.Commit, digests)

		v, err := e.docs.Append(ctx, repo.ID, store.AppendInput{
			CommitHash:  co.Commit,
			FileCount:   an.FileCount(),
			LinesOfCode: an.TotalLines,
			Profile:     e.profileName(),
			Content:     content,
		})
		if err != nil {
			return err
		}
		ver = v

		snap := &models.Snapshot{
			RepoID:      repo.ID,
			CommitHash:  co.Commit,
			FileCount:   an.FileCount(),
			LinesOfCode: an.TotalLines,
		}
		if err := snap.SetDigests(digests); err != nil {
			return fmt.Errorf("encoding snapshot digests: %w", err)
		}
		if err := e.snaps.Save(ctx, snap); err != nil {
			return err
		}

		if repo.Name == "" && co.Repo != "" {
			if err := e.repos.UpdateMeta(ctx, repo.ID, co.Repo, repo.Description); err != nil {
				slog.Warn("recording repository name failed", "repo", repo.ID, "error", err)
			}
		}

		return e.repos.SetCompleted(ctx, repo.ID, co.Commit, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return &Result{CommitHash: co.Commit, Version: ver, Changes: changes}, nil
}

// changeSummary diffs the new digest map against the previous snapshot; the
// first run reports every file as added. Webhook jobs keep the commit range
// their payload established at enqueue.
func (e *Executor) changeSummary(ctx context.Context, repo *models.Repo, job *models.Job, commit string, digests map[string]string) *models.ChangeSummary {
	var prevDigests map[string]string
	fromCommit := ""

	prev, err := e.snaps.Latest(ctx, repo.ID)
	switch {
	case err == nil:
		fromCommit = prev.CommitHash
		if prevDigests, err = prev.Digests(); err != nil {
			slog.Warn("decoding previous snapshot failed", "repo", repo.ID, "error", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		slog.Warn("loading previous snapshot failed", "repo", repo.ID, "error", err)
	}

	delta := models.DiffDigests(prevDigests, digests)
	cs := &models.ChangeSummary{
		FromCommit:    fromCommit,
		ToCommit:      commit,
		FilesAdded:    len(delta.Added),
		FilesModified: len(delta.Modified),
		FilesRemoved:  len(delta.Removed),
		SamplePaths:   samplePaths(delta),
	}
	if prior := job.Changes(); prior != nil {
		if prior.CommitCount > 0 {
			cs.CommitCount = prior.CommitCount
		}
		if prior.FromCommit != "" {
			cs.FromCommit = prior.FromCommit
		}
	}
	return cs
}

func samplePaths(delta models.SnapshotDelta) []string {
	var out []string
	for _, group := range [][]string{delta.Added, delta.Modified, delta.Removed} {
		for _, p := range group {
			if len(out) == samplePathCap {
				return out
			}
			out = append(out, p)
		}
	}
	return out
}

// shouldShortCircuit reports whether the resolved head was already analyzed.
// Manual triggers always reprocess.
func (e *Executor) shouldShortCircuit(repo *models.Repo, job *models.Job, commit string) bool {
	return e.cfg.ShortCircuitUnchanged &&
		job.Trigger != models.TriggerManual &&
		repo.LastCommitHash != "" &&
		repo.LastCommitHash == commit
}

// advance moves the repository to next, honouring a cancellation arriving at
// the stage boundary first.
func (e *Executor) advance(ctx context.Context, repoID int64, next models.RepoStatus) error {
	if ctx.Err() != nil {
		e.failRepo(repoID, "cancelled")
		return ErrCancelled
	}
	if err := e.setStatus(repoID, next, ""); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

func (e *Executor) setStatus(repoID int64, next models.RepoStatus, msg string) error {
	return e.lock(repoID, func() error {
		return e.repos.SetStatus(context.Background(), repoID, next, msg)
	})
}

func (e *Executor) completeRepo(repoID int64, commit string) error {
	return e.lock(repoID, func() error {
		return e.repos.SetCompleted(context.Background(), repoID, commit, time.Now().UTC())
	})
}

func (e *Executor) failRepo(repoID int64, msg string) {
	if err := e.setStatus(repoID, models.RepoFailed, msg); err != nil {
		slog.Error("recording repository failure failed", "repo", repoID, "error", err)
	}
}

func (e *Executor) profileName() string {
	if e.profile == nil {
		return ""
	}
	return e.profile.Name
}

func shortMsg(err error) string {
	msg := err.Error()
	if len(msg) > repoErrMsgCap {
		msg = strings.ToValidUTF8(msg[:repoErrMsgCap], "") + "..."
	}
	return msg
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
