package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/detector"
	"github.com/docsmithhq/docsmith-agent/internal/notify"
	"github.com/docsmithhq/docsmith-agent/internal/pipeline"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// Gateway is the long-running daemon that combines:
//   - the job scheduler (running analysis pipelines with a worker pool)
//   - the change detector (webhook deliveries and head polling)
//   - a cron PollScheduler (firing detector sweeps on schedule)
//   - a REST + SSE HTTP server (control plane for users)
type Gateway struct {
	cfg        *config.Config
	configPath string
	db         database.DB

	repos *store.Repos
	jobs  *store.Jobs
	docs  *store.Docs
	snaps *store.Snapshots

	sched       *scheduler.Scheduler
	det         *detector.Detector
	poller      *PollScheduler
	broadcaster *Broadcaster
	notifier    *notify.Dispatcher
	heartbeat   *HeartbeatMonitor
	engine      ai.Engine
	profileName string

	mu          sync.RWMutex
	status      PipelineStatus
	startedAt   time.Time
	lastEventAt time.Time
}

// New creates a Gateway. Call Start() to begin serving.
func New(cfg *config.Config, db database.DB) (*Gateway, error) {
	b := newBroadcaster()
	repos := store.NewRepos(db)
	jobs := store.NewJobs(db)
	docs := store.NewDocs(db)
	snaps := store.NewSnapshots(db)

	engine, err := ai.New(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("building generation engine: %w", err)
	}
	profile, err := profiles.Load(cfg.AI.Profile, profiles.DefaultDir())
	if err != nil {
		slog.Warn("gateway: generation profile unavailable, using built-in defaults",
			"profile", cfg.AI.Profile, "error", err)
		profile = nil
	}

	locks := scheduler.NewRepoLocks()
	creds := func(repo *models.Repo) string {
		if repo.CredentialRef != "" {
			if tok := cfg.ResolveCredential(repo.CredentialRef); tok != "" {
				return tok
			}
		}
		return source.TokenForURL(cfg, repo.URL)
	}
	exec := pipeline.NewExecutor(cfg.Pipeline, repos, docs, snaps,
		source.NewFetcher(cfg.Pipeline.WorkspaceDir), ai.NewGenerator(engine),
		profile, creds, locks.WithRepo)

	gw := &Gateway{
		cfg:         cfg,
		db:          db,
		repos:       repos,
		jobs:        jobs,
		docs:        docs,
		snaps:       snaps,
		broadcaster: b,
		notifier:    notify.NewDispatcher(cfg.Notify),
		engine:      engine,
		profileName: cfg.AI.Profile,
		startedAt:   time.Now(),
	}
	gw.sched = scheduler.New(cfg.Scheduler, repos, jobs, locks, exec, gw.onSchedulerEvent)
	gw.det = detector.New(repos, gw.sched, cfg.Webhooks, func(repo *models.Repo) (detector.HeadSource, error) {
		return source.New(repo.Provider, cfg)
	})
	gw.poller = newPollScheduler(db, cfg.Poll, gw.runPoll, b.send)
	gw.heartbeat = newHeartbeatMonitor(gw)
	return gw, nil
}

// SetConfigPath stores the CLI-resolved config path so config API writes back to the same file.
func (gw *Gateway) SetConfigPath(path string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.configPath = path
}

// onSchedulerEvent forwards scheduler lifecycle events onto the SSE stream
// and fans the terminal ones out to notification channels.
func (gw *Gateway) onSchedulerEvent(ev scheduler.Event) {
	gw.mu.Lock()
	gw.lastEventAt = time.Now()
	gw.mu.Unlock()

	payload := map[string]any{"repo_id": ev.RepoID, "job_id": ev.JobID}
	for k, v := range ev.Payload {
		payload[k] = v
	}
	gw.broadcaster.send(SSEEvent{Type: ev.Type, Payload: payload})

	switch ev.Type {
	case scheduler.EventJobCompleted:
		if _, ok := ev.Payload["version"]; ok {
			gw.notifyDocsPublished(ev.RepoID, ev.Payload)
		}
	case scheduler.EventJobFailed:
		gw.notifyAnalysisFailed(ev.RepoID, ev.JobID, ev.Payload)
	}
}

// notifyDocsPublished runs async so scheduler workers never wait on
// notification channel round-trips.
func (gw *Gateway) notifyDocsPublished(repoID int64, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		repo, err := gw.repos.Get(ctx, repoID)
		if err != nil {
			return
		}
		version, _ := payload["version"].(int)
		commit, _ := payload["commit"].(string)
		if len(commit) > 12 {
			commit = commit[:12]
		}
		gw.currentNotifier().Notify(ctx, notify.Event{
			Type:     notify.EventDocsPublished,
			Title:    fmt.Sprintf("Documentation published for %s", repo.DisplayName()),
			Body:     fmt.Sprintf("Version %d generated from commit %s.", version, commit),
			URL:      repo.URL,
			RepoName: repo.DisplayName(),
			Metadata: map[string]any{"repo_id": repoID, "version": version, "commit": commit},
		})
	}()
}

func (gw *Gateway) notifyAnalysisFailed(repoID, jobID int64, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		repo, err := gw.repos.Get(ctx, repoID)
		if err != nil {
			return
		}
		reason, _ := payload["error"].(string)
		retries, _ := payload["retry_count"].(int)
		gw.currentNotifier().Notify(ctx, notify.Event{
			Type:     notify.EventAnalysisFailed,
			Title:    fmt.Sprintf("Analysis failed for %s", repo.DisplayName()),
			Body:     fmt.Sprintf("Job %d gave up after %d retries: %s", jobID, retries, reason),
			URL:      repo.URL,
			RepoName: repo.DisplayName(),
			Metadata: map[string]any{"repo_id": repoID, "job_id": jobID},
		})
	}()
}

func (gw *Gateway) notifyRepoAdded(repo *models.Repo) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		gw.currentNotifier().Notify(ctx, notify.Event{
			Type:     notify.EventRepoAdded,
			Title:    fmt.Sprintf("Now monitoring %s", repo.DisplayName()),
			Body:     fmt.Sprintf("Repository registered from %s.", repo.URL),
			URL:      repo.URL,
			RepoName: repo.DisplayName(),
			Metadata: map[string]any{"repo_id": repo.ID},
		})
	}()
}

// runPoll executes one detection sweep for a schedule. A nil or empty id
// list means every monitored repository. It runs in the background so cron
// ticks and HTTP triggers return immediately.
func (gw *Gateway) runPoll(sched Schedule, repoIDs []int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		start := time.Now()
		var enqueued int
		if len(repoIDs) == 0 {
			n, err := gw.det.PollAll(ctx)
			if err != nil {
				slog.Warn("gateway: poll sweep failed", "schedule", sched.Name, "error", err)
			}
			enqueued = n
		} else {
			for _, id := range repoIDs {
				out, err := gw.det.PollByID(ctx, id)
				if err != nil {
					slog.Warn("gateway: scoped poll failed", "schedule", sched.Name, "repo", id, "error", err)
					continue
				}
				if out.Decision == detector.DecisionEnqueued {
					enqueued++
				}
			}
		}
		gw.broadcaster.send(SSEEvent{Type: "poll.completed", Payload: map[string]any{
			"schedule":    sched.Name,
			"enqueued":    enqueued,
			"duration_ms": time.Since(start).Milliseconds(),
		}})
	}()
}

// Start runs the gateway until ctx is cancelled. It:
//  1. Loads and starts the cron poll scheduler
//  2. Starts the job scheduler in a background goroutine
//  3. Starts the stats ticker and health monitor
//  4. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	host := gw.cfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := gw.cfg.Server.Port
	if port == 0 {
		port = config.DefaultPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	// 1. Start cron poll schedules.
	if err := gw.poller.Start(ctx); err != nil {
		return fmt.Errorf("starting poll scheduler: %w", err)
	}

	// 2. Run the job scheduler in background.
	go func() {
		if err := gw.sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("gateway: scheduler error", "error", err)
		}
		gw.broadcaster.send(SSEEvent{Type: "scheduler.stopped"})
	}()

	// 3. Stats ticker and health monitor.
	go gw.runStatsTicker(ctx)
	go gw.heartbeat.run(ctx)

	// 4. HTTP server.
	srv := &http.Server{
		Addr:    addr,
		Handler: buildHandler(gw),
	}

	// Shut down HTTP server when ctx is cancelled.
	go func() {
		<-ctx.Done()
		gw.poller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	gw.broadcaster.send(SSEEvent{
		Type:    "gateway.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// runStatsTicker refreshes PipelineStatus from the DB every 5 seconds and
// broadcasts a "status.update" SSE event to all connected clients.
func (gw *Gateway) runStatsTicker(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			gw.refreshStatus(ctx)
		}
	}
}

func (gw *Gateway) refreshStatus(ctx context.Context) {
	var repoCount, monitored, versions, pending countRow
	_ = gw.db.Get(ctx, &repoCount, "SELECT COUNT(*) AS n FROM repos")
	_ = gw.db.Get(ctx, &monitored, "SELECT COUNT(*) AS n FROM repos WHERE monitoring_enabled = ?", true)
	_ = gw.db.Get(ctx, &versions, "SELECT COUNT(*) AS n FROM doc_versions")
	_ = gw.db.Get(ctx, &pending, "SELECT COUNT(*) AS n FROM jobs WHERE status = ?", models.JobPending)

	gw.mu.Lock()
	gw.status.Repos = repoCount.N
	gw.status.Monitored = monitored.N
	gw.status.DocVersions = versions.N
	gw.status.JobsPending = pending.N
	gw.mu.Unlock()

	gw.broadcaster.send(SSEEvent{Type: "status.update", Payload: gw.currentStatus()})
}

// currentNotifier guards against the dispatcher being swapped by a config
// update mid-flight.
func (gw *Gateway) currentNotifier() *notify.Dispatcher {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.notifier
}

// currentStatus merges the cached DB counters with the live scheduler view.
func (gw *Gateway) currentStatus() PipelineStatus {
	st := gw.sched.Status()
	gw.mu.RLock()
	s := gw.status
	startedAt := gw.startedAt
	gw.mu.RUnlock()
	s.Paused = st.Paused
	s.Workers = st.Workers
	s.JobsRunning = len(st.Running)
	s.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	return s
}
