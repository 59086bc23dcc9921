package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
)

// PollScheduler loads schedules from the DB and registers them with
// robfig/cron. When a schedule fires it resolves the repository scope, calls
// pollFn to run a detection sweep, and records last_run_at. The config-level
// background poll (poll.enabled + poll.schedule) is registered alongside the
// persisted schedules but never stored.
type PollScheduler struct {
	db        database.DB
	pollCfg   config.PollConfig
	cron      *cron.Cron
	pollFn    func(Schedule, []int64)
	broadcast func(SSEEvent)

	mu      sync.Mutex
	entries map[int64]cron.EntryID // schedule DB id -> cron entry id
}

func newPollScheduler(db database.DB, pollCfg config.PollConfig, pollFn func(Schedule, []int64), broadcast func(SSEEvent)) *PollScheduler {
	return &PollScheduler{
		db:        db,
		pollCfg:   pollCfg,
		cron:      cron.New(),
		pollFn:    pollFn,
		broadcast: broadcast,
		entries:   make(map[int64]cron.EntryID),
	}
}

// Start loads all enabled schedules from the DB and starts the cron runner.
func (s *PollScheduler) Start(ctx context.Context) error {
	var schedules []Schedule
	if err := s.db.Select(ctx, &schedules,
		`SELECT id, name, cron_expr, repo_scope, enabled, last_run_at, created_at
		 FROM schedules WHERE enabled = ?`, true,
	); err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.register(sched); err != nil {
			slog.Warn("poll scheduler: skipping schedule with invalid expression",
				"id", sched.ID, "name", sched.Name, "expr", sched.Expr, "error", err)
		}
	}

	if s.pollCfg.Enabled && s.pollCfg.Schedule != "" {
		_, err := s.cron.AddFunc(s.pollCfg.Schedule, func() {
			s.pollFn(Schedule{Name: "poll"}, nil)
			s.broadcast(SSEEvent{Type: "poll.fired", Payload: map[string]any{"source": "config"}})
		})
		if err != nil {
			slog.Warn("poll scheduler: invalid poll.schedule in config, background polling disabled",
				"expr", s.pollCfg.Schedule, "error", err)
		}
	}

	s.cron.Start()
	slog.Info("poll scheduler started",
		"schedules_loaded", len(schedules), "background_poll", s.pollCfg.Enabled)
	return nil
}

// Stop halts the cron runner gracefully.
func (s *PollScheduler) Stop() { s.cron.Stop() }

// register adds a schedule to the running cron instance.
func (s *PollScheduler) register(sched Schedule) error {
	if _, err := parseRepoScope(sched.RepoScope); err != nil {
		return err
	}
	entryID, err := s.cron.AddFunc(sched.Expr, func() {
		if err := s.runSchedule(context.Background(), sched, "schedule.fired"); err != nil {
			slog.Warn("poll scheduler: firing schedule failed",
				"id", sched.ID, "name", sched.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.Expr, err)
	}
	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.mu.Unlock()
	return nil
}

// validate checks that expr is parseable by robfig/cron without adding it
// permanently to any runner.
func validate(expr string) error {
	tmp := cron.New()
	id, err := tmp.AddFunc(expr, func() {})
	if err != nil {
		return err
	}
	tmp.Remove(id)
	return nil
}

// Add validates, persists, and registers a new schedule. Returns the new DB id.
func (s *PollScheduler) Add(ctx context.Context, sched Schedule) (int64, error) {
	if err := validate(sched.Expr); err != nil {
		return 0, fmt.Errorf("invalid schedule expression %q: %w", sched.Expr, err)
	}
	if _, err := parseRepoScope(sched.RepoScope); err != nil {
		return 0, err
	}
	sched.CreatedAt = time.Now().UTC()

	id, err := s.db.Insert(ctx, "schedules", sched)
	if err != nil {
		return 0, err
	}
	sched.ID = id
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			slog.Warn("poll scheduler: persisted but could not register schedule",
				"id", id, "error", err)
		}
	}
	return id, nil
}

// Delete removes a schedule from cron and the DB.
func (s *PollScheduler) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return s.db.Exec(ctx, "DELETE FROM schedules WHERE id = ?", id)
}

// List returns all schedules ordered by id.
func (s *PollScheduler) List(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	err := s.db.Select(ctx, &out,
		`SELECT id, name, cron_expr, repo_scope, enabled, last_run_at, created_at
		 FROM schedules ORDER BY id`)
	return out, err
}

// TriggerNow fires a schedule immediately regardless of its cron expression,
// recording last_run_at.
func (s *PollScheduler) TriggerNow(ctx context.Context, id int64) error {
	var sched Schedule
	if err := s.db.Get(ctx, &sched,
		`SELECT id, name, cron_expr, repo_scope, enabled, last_run_at, created_at
		 FROM schedules WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("loading schedule %d: %w", id, err)
	}
	return s.runSchedule(ctx, sched, "schedule.triggered")
}

func (s *PollScheduler) runSchedule(ctx context.Context, sched Schedule, eventType string) error {
	ids, err := parseRepoScope(sched.RepoScope)
	if err != nil {
		return err
	}
	if err := s.db.Exec(ctx,
		"UPDATE schedules SET last_run_at = ? WHERE id = ?", time.Now().UTC(), sched.ID,
	); err != nil {
		return err
	}
	s.pollFn(sched, ids)
	payload := map[string]any{"id": sched.ID, "name": sched.Name}
	if eventType == "schedule.triggered" {
		payload["manual"] = true
	}
	s.broadcast(SSEEvent{Type: eventType, Payload: payload})
	return nil
}

// parseRepoScope decodes the JSON id array stored in Schedule.RepoScope.
// Empty input means the schedule covers every monitored repository.
func parseRepoScope(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("invalid repo scope JSON: %w", err)
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("repo scope ids must be positive, got %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
