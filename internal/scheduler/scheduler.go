// Package scheduler owns the monitoring job queue: enqueue with duplicate
// suppression, fair FIFO dispatch to a bounded worker pool, retry with
// exponential backoff, and cancellation. All repository-state mutation runs
// under the package's keyed RepoLocks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/pipeline"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// ErrAlreadyScheduled is returned by Enqueue when the repository already has
// a pending or running job. The duplicate enqueue is a no-op, not a failure.
var ErrAlreadyScheduled = errors.New("scheduler: job already active for repository")

// Runner executes one job's pipeline run. The production implementation is
// pipeline.Executor.
type Runner interface {
	Run(ctx context.Context, repo *models.Repo, job *models.Job) (*pipeline.Result, error)
}

// Event types fanned out to the gateway stream and the notifier.
const (
	EventJobEnqueued  = "job.enqueued"
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobRetrying  = "job.retrying"
	EventJobFailed    = "job.failed"
)

// Event is a queue lifecycle notification.
type Event struct {
	Type    string
	RepoID  int64
	JobID   int64
	Payload map[string]any
}

// runningJob tracks one in-flight job so it can be cancelled and so the
// dispatcher never hands the same repository to two workers.
type runningJob struct {
	jobID      int64
	startedAt  time.Time
	cancel     context.CancelFunc
	userCancel bool // explicit Cancel/CancelForRepo, as opposed to shutdown
}

// Scheduler dispatches eligible jobs to a bounded worker pool. A single
// dispatcher goroutine performs the pending->running claim, so the
// at-most-one-running-job-per-repository invariant holds by construction;
// the repo locks guard the writes themselves against other components.
type Scheduler struct {
	cfg    config.SchedulerConfig
	repos  *store.Repos
	jobs   *store.Jobs
	locks  *RepoLocks
	runner Runner
	emit   func(Event)

	wakeCh chan struct{}

	mu       sync.Mutex
	paused   bool
	draining bool
	workers  int
	running  map[int64]*runningJob // repo id → in-flight job
}

// New creates a Scheduler. emit may be nil; locks is shared with the
// pipeline executor so stage transitions serialize with queue operations.
func New(cfg config.SchedulerConfig, repos *store.Repos, jobs *store.Jobs, locks *RepoLocks, runner Runner, emit func(Event)) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Scheduler{
		cfg:     cfg,
		repos:   repos,
		jobs:    jobs,
		locks:   locks,
		runner:  runner,
		emit:    emit,
		wakeCh:  make(chan struct{}, 1),
		workers: workers,
		running: make(map[int64]*runningJob),
	}
}

// Locks exposes the keyed lock table for components that mutate repository
// state outside a job run (deletion, manual status repair).
func (s *Scheduler) Locks() *RepoLocks { return s.locks }

// Enqueue records a new pending job for the repository. If a pending or
// running job already exists it is returned with ErrAlreadyScheduled and
// nothing is written.
func (s *Scheduler) Enqueue(ctx context.Context, repoID int64, trigger models.TriggerType, changes *models.ChangeSummary) (*models.Job, error) {
	var created, conflict *models.Job
	err := s.locks.WithRepo(repoID, func() error {
		if _, err := s.repos.Get(ctx, repoID); err != nil {
			return err
		}
		active, err := s.jobs.ActiveForRepo(ctx, repoID)
		if err == nil {
			conflict = active
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		job := &models.Job{RepoID: repoID, Trigger: trigger}
		if err := job.SetChanges(changes); err != nil {
			return fmt.Errorf("encoding change summary: %w", err)
		}
		created, err = s.jobs.Create(ctx, job)
		return err
	})
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		slog.Debug("enqueue suppressed, job already active",
			"repo", repoID, "job", conflict.ID, "trigger", trigger)
		return conflict, ErrAlreadyScheduled
	}

	slog.Info("job enqueued", "job", created.ID, "repo", repoID, "trigger", trigger)
	s.notify(Event{Type: EventJobEnqueued, RepoID: repoID, JobID: created.ID,
		Payload: map[string]any{"trigger": string(trigger)}})
	s.wake()
	return created, nil
}

// Cancel stops one job. A running job is cancelled at its next stage
// boundary and recorded failed with reason "cancelled"; a pending job is
// failed in place. Cancelled jobs never retry.
func (s *Scheduler) Cancel(ctx context.Context, jobID int64) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rj := s.running[job.RepoID]
	if rj != nil && rj.jobID == jobID {
		rj.userCancel = true
		s.mu.Unlock()
		rj.cancel()
		return nil
	}
	s.mu.Unlock()

	return s.locks.WithRepo(job.RepoID, func() error {
		cur, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if cur.Status != models.JobPending {
			return nil
		}
		return s.jobs.MarkFailed(ctx, jobID, "cancelled", time.Now().UTC())
	})
}

// CancelForRepo stops whatever job the repository has active, if any.
// Repository deletion calls this ahead of its cascade.
func (s *Scheduler) CancelForRepo(ctx context.Context, repoID int64) error {
	s.mu.Lock()
	rj := s.running[repoID]
	if rj != nil {
		rj.userCancel = true
		s.mu.Unlock()
		rj.cancel()
		return nil
	}
	s.mu.Unlock()

	return s.locks.WithRepo(repoID, func() error {
		active, err := s.jobs.ActiveForRepo(ctx, repoID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if active.Status != models.JobPending {
			return nil
		}
		return s.jobs.MarkFailed(ctx, active.ID, "cancelled", time.Now().UTC())
	})
}

// Pause stops the dispatcher from claiming new jobs. Running jobs finish.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	slog.Info("scheduler paused")
}

// Resume re-enables dispatch.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	slog.Info("scheduler resumed")
	s.wake()
}

// SetWorkers resizes the pool for subsequently dispatched jobs.
func (s *Scheduler) SetWorkers(n int) error {
	if n < 1 {
		return fmt.Errorf("scheduler: worker count must be at least 1, got %d", n)
	}
	s.mu.Lock()
	s.workers = n
	s.mu.Unlock()
	slog.Info("scheduler worker pool resized", "workers", n)
	s.wake()
	return nil
}

// RunningInfo describes one in-flight job.
type RunningInfo struct {
	RepoID    int64     `json:"repo_id"`
	JobID     int64     `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
}

// Status is a point-in-time snapshot of the dispatcher.
type Status struct {
	Paused  bool          `json:"paused"`
	Workers int           `json:"workers"`
	Running []RunningInfo `json:"running"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Paused: s.paused, Workers: s.workers, Running: []RunningInfo{}}
	for repoID, rj := range s.running {
		st.Running = append(st.Running, RunningInfo{
			RepoID: repoID, JobID: rj.jobID, StartedAt: rj.startedAt,
		})
	}
	return st
}

// Run starts the dispatcher loop. Jobs stranded running from a previous
// process are returned to pending first. Blocks until ctx is cancelled, then
// requeues in-flight work and waits for workers to stop.
func (s *Scheduler) Run(ctx context.Context) error {
	ids, err := s.jobs.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("recovering stranded jobs: %w", err)
	}
	if len(ids) > 0 {
		slog.Warn("requeued jobs left running by previous shutdown", "count", len(ids))
	}

	poll := s.cfg.QueuePoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	slog.Info("scheduler starting", "workers", s.workers, "queue_poll", poll,
		"max_retries", s.cfg.MaxRetries)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		s.dispatch(ctx, &wg)
		select {
		case <-ctx.Done():
			s.drain()
			wg.Wait()
			slog.Info("scheduler stopped")
			return nil
		case <-s.wakeCh:
		case <-ticker.C:
		}
	}
}

// drain flags shutdown and cancels in-flight jobs so their workers requeue
// them instead of recording failures.
func (s *Scheduler) drain() {
	s.mu.Lock()
	s.draining = true
	cancels := make([]context.CancelFunc, 0, len(s.running))
	for _, rj := range s.running {
		cancels = append(cancels, rj.cancel)
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// dispatchBatch bounds how many eligible jobs one pick considers. Skipped
// entries (busy repos) stay pending for the next pass.
const dispatchBatch = 32

// dispatch claims eligible jobs until the pool is full or the queue has no
// candidate whose repository is idle.
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	for {
		s.mu.Lock()
		if s.paused || s.draining || len(s.running) >= s.workers {
			s.mu.Unlock()
			return
		}
		busy := make(map[int64]bool, len(s.running))
		for repoID := range s.running {
			busy[repoID] = true
		}
		s.mu.Unlock()

		job := s.pickNext(ctx, busy)
		if job == nil {
			return
		}
		if !s.claim(ctx, job) {
			continue
		}

		jobCtx, cancel := context.WithCancel(context.Background())
		rj := &runningJob{jobID: job.ID, startedAt: time.Now().UTC(), cancel: cancel}
		s.mu.Lock()
		s.running[job.RepoID] = rj
		s.mu.Unlock()

		slog.Info("job started", "job", job.ID, "repo", job.RepoID,
			"trigger", job.Trigger, "attempt", job.RetryCount+1)
		s.notify(Event{Type: EventJobStarted, RepoID: job.RepoID, JobID: job.ID,
			Payload: map[string]any{"attempt": job.RetryCount + 1}})

		wg.Add(1)
		go func(job *models.Job, rj *runningJob) {
			defer wg.Done()
			defer cancel()
			s.execute(jobCtx, job, rj)
			s.mu.Lock()
			delete(s.running, job.RepoID)
			s.mu.Unlock()
			s.wake()
		}(job, rj)
	}
}

// pickNext returns the oldest eligible job whose repository is idle. Backing
// off or busy repositories never starve the ones behind them.
func (s *Scheduler) pickNext(ctx context.Context, busy map[int64]bool) *models.Job {
	candidates, err := s.jobs.ListEligible(ctx, time.Now().UTC(), dispatchBatch)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("listing eligible jobs failed", "error", err)
		}
		return nil
	}
	for i := range candidates {
		if busy[candidates[i].RepoID] {
			continue
		}
		return &candidates[i]
	}
	return nil
}

// claim flips the job to running under the repo lock, re-checking that it is
// still pending and the repository still exists.
func (s *Scheduler) claim(ctx context.Context, job *models.Job) bool {
	claimed := false
	err := s.locks.WithRepo(job.RepoID, func() error {
		cur, err := s.jobs.Get(ctx, job.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.JobPending {
			return nil
		}
		if err := s.jobs.MarkRunning(ctx, job.ID, time.Now().UTC()); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("claiming job failed", "job", job.ID, "error", err)
	}
	return claimed
}

// execute runs one job to completion and records the outcome.
func (s *Scheduler) execute(ctx context.Context, job *models.Job, rj *runningJob) {
	repo, err := s.repos.Get(ctx, job.RepoID)
	if err != nil {
		s.finalizeFailed(job, "repository deleted while queued")
		return
	}
	result, runErr := s.runner.Run(ctx, repo, job)
	s.finalize(job, rj, result, runErr)
}

// finalize records the job outcome. Writes use a fresh context so a
// cancelled run can still persist its own terminal state.
func (s *Scheduler) finalize(job *models.Job, rj *runningJob, result *pipeline.Result, runErr error) {
	ctx := context.Background()
	now := time.Now().UTC()

	switch {
	case runErr == nil:
		var changes *models.ChangeSummary
		if result != nil {
			changes = result.Changes
		}
		err := s.locks.WithRepo(job.RepoID, func() error {
			return s.jobs.MarkCompleted(ctx, job.ID, changes, now)
		})
		if err != nil {
			slog.Error("recording job completion failed", "job", job.ID, "error", err)
			return
		}
		payload := map[string]any{"retry_count": job.RetryCount}
		if result != nil && result.Version != nil {
			payload["version"] = result.Version.Version
			payload["commit"] = result.CommitHash
		}
		if result != nil && result.Unchanged {
			payload["unchanged"] = true
		}
		slog.Info("job completed", "job", job.ID, "repo", job.RepoID,
			"retry_count", job.RetryCount)
		s.notify(Event{Type: EventJobCompleted, RepoID: job.RepoID, JobID: job.ID, Payload: payload})

	case errors.Is(runErr, pipeline.ErrCancelled):
		s.mu.Lock()
		requeue := s.draining && !rj.userCancel
		s.mu.Unlock()
		if requeue {
			// Shutdown took the worker down mid-run; hand the job back
			// untouched so the next process picks it up.
			err := s.locks.WithRepo(job.RepoID, func() error {
				return s.jobs.Requeue(ctx, job.ID, job.RetryCount, now, "")
			})
			if err != nil {
				slog.Error("requeueing job on shutdown failed", "job", job.ID, "error", err)
			}
			return
		}
		s.finalizeFailed(job, "cancelled")

	case pipeline.Retryable(runErr) && job.RetryCount < s.cfg.MaxRetries:
		delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, job.RetryCount)
		err := s.locks.WithRepo(job.RepoID, func() error {
			return s.jobs.Requeue(ctx, job.ID, job.RetryCount+1, now.Add(delay), runErr.Error())
		})
		if err != nil {
			slog.Error("requeueing job failed", "job", job.ID, "error", err)
			return
		}
		slog.Warn("job attempt failed, retrying", "job", job.ID, "repo", job.RepoID,
			"attempt", job.RetryCount+1, "delay", delay, "error", runErr)
		s.notify(Event{Type: EventJobRetrying, RepoID: job.RepoID, JobID: job.ID,
			Payload: map[string]any{"retry_count": job.RetryCount + 1, "delay_seconds": int(delay.Seconds()), "error": runErr.Error()}})

	default:
		s.finalizeFailed(job, runErr.Error())
	}
}

func (s *Scheduler) finalizeFailed(job *models.Job, msg string) {
	ctx := context.Background()
	err := s.locks.WithRepo(job.RepoID, func() error {
		return s.jobs.MarkFailed(ctx, job.ID, msg, time.Now().UTC())
	})
	if err != nil {
		slog.Error("recording job failure failed", "job", job.ID, "error", err)
		return
	}
	slog.Warn("job failed", "job", job.ID, "repo", job.RepoID, "error", msg)
	s.notify(Event{Type: EventJobFailed, RepoID: job.RepoID, JobID: job.ID,
		Payload: map[string]any{"error": msg, "retry_count": job.RetryCount}})
}

func (s *Scheduler) notify(ev Event) {
	if s.emit != nil {
		s.emit(ev)
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// backoffDelay computes base doubled per consumed retry, capped at limit;
// the first retry waits the base delay.
func backoffDelay(base, limit time.Duration, count int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if limit <= 0 {
		limit = 10 * time.Minute
	}
	if count > 16 {
		return limit
	}
	delay := base << uint(count)
	if delay > limit || delay <= 0 {
		return limit
	}
	return delay
}
