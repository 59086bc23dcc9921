// Package detector decides when a repository needs re-analysis. Webhook
// deliveries and poll sweeps both funnel through it; it compares the reported
// head against what was last analyzed and turns real movement into a
// scheduler enqueue.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// deliveryTTL is how long a webhook delivery stays in the dedupe cache.
// Redeliveries usually arrive within seconds; ten minutes covers forge retry
// schedules without the cache growing meaningfully.
const deliveryTTL = 10 * time.Minute

// Decision says what the detector did with a change signal.
type Decision string

const (
	// DecisionEnqueued means a job was created.
	DecisionEnqueued Decision = "enqueued"
	// DecisionUnchanged means the head matches the last analyzed commit.
	DecisionUnchanged Decision = "unchanged"
	// DecisionDuplicate means the commit was already seen or a job is active.
	DecisionDuplicate Decision = "duplicate"
	// DecisionIgnored means the signal does not apply (wrong branch, deleted
	// ref, unknown or unmonitored repository).
	DecisionIgnored Decision = "ignored"
)

// Outcome reports the decision, a human-readable reason, and the created job
// when one was enqueued.
type Outcome struct {
	Decision Decision     `json:"decision"`
	Reason   string       `json:"reason,omitempty"`
	Job      *models.Job  `json:"job,omitempty"`
	Repo     *models.Repo `json:"-"`
}

// Enqueuer is the scheduler surface the detector drives.
type Enqueuer interface {
	Enqueue(ctx context.Context, repoID int64, trigger models.TriggerType, changes *models.ChangeSummary) (*models.Job, error)
}

// HeadSource resolves the newest commit of a branch without cloning. The
// source providers implement it.
type HeadSource interface {
	HeadCommit(ctx context.Context, owner, name, branch string) (string, error)
}

// Detector correlates change signals with repository state.
type Detector struct {
	repos *store.Repos
	enq   Enqueuer
	hooks config.WebhookConfig
	// heads resolves the forge client for a repository's provider.
	heads func(repo *models.Repo) (HeadSource, error)
	cache *deliveryCache
}

// New wires a Detector. heads may be nil when polling is unused (webhook-only
// deployments).
func New(repos *store.Repos, enq Enqueuer, hooks config.WebhookConfig, heads func(*models.Repo) (HeadSource, error)) *Detector {
	if heads == nil {
		heads = func(*models.Repo) (HeadSource, error) {
			return nil, errors.New("detector: no forge client configured for polling")
		}
	}
	return &Detector{
		repos: repos,
		enq:   enq,
		hooks: hooks,
		heads: heads,
		cache: newDeliveryCache(deliveryTTL),
	}
}

// PollOnce queries the forge head for the repository's default branch and
// enqueues a poll job when it moved. The change summary carries the commit
// range only; file counts come from the snapshot delta after the run.
func (d *Detector) PollOnce(ctx context.Context, repo *models.Repo) (*Outcome, error) {
	if !repo.MonitoringEnabled {
		return &Outcome{Decision: DecisionIgnored, Reason: "monitoring disabled", Repo: repo}, nil
	}

	hs, err := d.heads(repo)
	if err != nil {
		return nil, fmt.Errorf("resolving forge client for repo %d: %w", repo.ID, err)
	}
	owner, name := source.ParseOwnerRepo(repo.URL)
	head, err := hs.HeadCommit(ctx, owner, name, repo.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("polling head for repo %d: %w", repo.ID, err)
	}

	if head == repo.LastCommitHash {
		return &Outcome{Decision: DecisionUnchanged, Repo: repo}, nil
	}

	changes := &models.ChangeSummary{FromCommit: repo.LastCommitHash, ToCommit: head}
	job, err := d.enq.Enqueue(ctx, repo.ID, models.TriggerPoll, changes)
	if errors.Is(err, scheduler.ErrAlreadyScheduled) {
		return &Outcome{Decision: DecisionDuplicate, Reason: "job already active", Job: job, Repo: repo}, nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("poll detected new head",
		"repo", repo.ID, "branch", repo.DefaultBranch, "commit", head, "job", job.ID)
	return &Outcome{Decision: DecisionEnqueued, Job: job, Repo: repo}, nil
}

// PollByID loads the repository and polls it.
func (d *Detector) PollByID(ctx context.Context, repoID int64) (*Outcome, error) {
	repo, err := d.repos.Get(ctx, repoID)
	if err != nil {
		return nil, err
	}
	return d.PollOnce(ctx, repo)
}

// PollAll sweeps every monitoring-enabled repository and returns how many
// jobs it enqueued. Per-repository failures are logged and skipped; one
// unreachable forge never stalls the sweep.
func (d *Detector) PollAll(ctx context.Context) (int, error) {
	repos, err := d.repos.ListMonitored(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing monitored repos: %w", err)
	}

	enqueued := 0
	for i := range repos {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}
		out, err := d.PollOnce(ctx, &repos[i])
		if err != nil {
			slog.Warn("poll failed", "repo", repos[i].ID, "url", repos[i].URL, "error", err)
			continue
		}
		if out.Decision == DecisionEnqueued {
			enqueued++
		}
	}
	slog.Info("poll sweep finished", "repos", len(repos), "enqueued", enqueued)
	return enqueued, nil
}

// deliveryCache absorbs duplicate webhook deliveries racing ahead of job
// state. Keys are repo+commit; entries expire after ttl.
type deliveryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func newDeliveryCache(ttl time.Duration) *deliveryCache {
	return &deliveryCache{ttl: ttl, entries: make(map[string]time.Time)}
}

// seen records the delivery and reports whether it was already present.
func (c *deliveryCache) seen(repoID int64, commit string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, at := range c.entries {
		if now.Sub(at) > c.ttl {
			delete(c.entries, k)
		}
	}
	key := deliveryKey(repoID, commit)
	if _, ok := c.entries[key]; ok {
		return true
	}
	c.entries[key] = now
	return false
}

// forget releases a delivery so a redelivery can retry after a hard failure.
func (c *deliveryCache) forget(repoID int64, commit string) {
	c.mu.Lock()
	delete(c.entries, deliveryKey(repoID, commit))
	c.mu.Unlock()
}

func deliveryKey(repoID int64, commit string) string {
	return fmt.Sprintf("%d:%s", repoID, commit)
}
