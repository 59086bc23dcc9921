package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/detector"
	"github.com/docsmithhq/docsmith-agent/internal/pipeline"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
)

var (
	pollDetectOnly bool
	pollTimeout    time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one detection sweep and process the resulting jobs",
	Long: `Checks every monitored repository's head commit, queues analysis jobs
for the ones that changed, and runs the queue to completion — then
exits. Designed for external cron when you don't want the daemon:

  */30 * * * *  docsmith poll

Jobs that fail and schedule a retry are left for the next invocation;
--detect-only queues work without processing it (a running 'docsmith
serve' will pick it up).`,
	RunE: runPollSweep,
}

func init() {
	pollCmd.Flags().BoolVar(&pollDetectOnly, "detect-only", false,
		"queue jobs for changed repositories without running them")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 30*time.Minute,
		"maximum total run time before giving up")
}

func runPollSweep(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nStopping — in-flight jobs will be requeued...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, cleanup, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	repos := store.NewRepos(db)
	jobs := store.NewJobs(db)
	docs := store.NewDocs(db)
	snaps := store.NewSnapshots(db)

	engine, err := ai.New(cfg.AI)
	if err != nil {
		return fmt.Errorf("building generation engine: %w", err)
	}
	profile, err := profiles.Load(cfg.AI.Profile, profiles.DefaultDir())
	if err != nil {
		slog.Warn("generation profile unavailable, using built-in defaults",
			"profile", cfg.AI.Profile, "error", err)
		profile = nil
	}
	creds := func(r *models.Repo) string {
		if r.CredentialRef != "" {
			if tok := cfg.ResolveCredential(r.CredentialRef); tok != "" {
				return tok
			}
		}
		return source.TokenForURL(cfg, r.URL)
	}

	locks := scheduler.NewRepoLocks()
	exec := pipeline.NewExecutor(cfg.Pipeline, repos, docs, snaps,
		source.NewFetcher(cfg.Pipeline.WorkspaceDir), ai.NewGenerator(engine),
		profile, creds, locks.WithRepo)

	var completed, failed atomic.Int64
	sched := scheduler.New(cfg.Scheduler, repos, jobs, locks, exec, func(ev scheduler.Event) {
		switch ev.Type {
		case scheduler.EventJobCompleted:
			completed.Add(1)
			fmt.Printf("  %s job %d (repo %d)\n", successStyle.Render("done"), ev.JobID, ev.RepoID)
		case scheduler.EventJobFailed:
			failed.Add(1)
			fmt.Printf("  %s job %d (repo %d): %v\n", warnStyle.Render("fail"), ev.JobID, ev.RepoID, ev.Payload["error"])
		case scheduler.EventJobRetrying:
			fmt.Printf("  %s job %d (repo %d), retry %v\n", dimStyle.Render("retry"), ev.JobID, ev.RepoID, ev.Payload["retry_count"])
		}
	})

	det := detector.New(repos, sched, cfg.Webhooks, func(repo *models.Repo) (detector.HeadSource, error) {
		return source.New(repo.Provider, cfg)
	})

	fmt.Println("Sweeping monitored repositories...")
	enqueued, err := det.PollAll(ctx)
	if err != nil {
		slog.Warn("poll sweep finished with errors", "error", err)
	}
	fmt.Printf("Queued %d analysis jobs\n", enqueued)

	if pollDetectOnly {
		fmt.Println(dimStyle.Render("Detect-only: jobs wait for 'docsmith serve' or the next poll."))
		return nil
	}

	// Run the queue down. Retries with a future not-before are deferred to
	// the next invocation, not waited out here.
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
drain:
	for {
		select {
		case <-ctx.Done():
			break drain
		case <-tick.C:
			eligible, lerr := jobs.ListEligible(ctx, time.Now(), 1)
			if lerr != nil {
				continue
			}
			counts, cerr := jobs.CountByStatus(ctx)
			if cerr != nil {
				continue
			}
			if len(eligible) == 0 && counts[models.JobRunning] == 0 {
				break drain
			}
		}
	}
	stop()
	if err := <-done; err != nil {
		return fmt.Errorf("processing queue: %w", err)
	}

	fmt.Printf("\nProcessed %d jobs: %d completed, %d failed\n",
		completed.Load()+failed.Load(), completed.Load(), failed.Load())
	if deferred, derr := jobs.List(ctx, store.JobFilter{Status: models.JobPending, Limit: 1}); derr == nil && len(deferred) > 0 {
		fmt.Println(dimStyle.Render("Some jobs are waiting on retry backoff — the next poll picks them up."))
	}
	return nil
}
