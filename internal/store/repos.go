// Package store implements persistence for repositories, documentation
// versions, monitoring jobs, and code snapshots on top of the database.DB
// interface. Stores hold no locking themselves; callers that need per-repo
// serialization (status transitions, version appends) run under the
// scheduler's repository locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateURL is returned by Repos.Create when the URL is taken.
	ErrDuplicateURL = errors.New("store: repository url already registered")
	// ErrVersionConflict is returned when concurrent appends exhaust the
	// internal retry; it indicates broken serialization upstream.
	ErrVersionConflict = errors.New("store: documentation version conflict")
	// ErrBadTransition is returned for status changes outside the pipeline
	// state machine.
	ErrBadTransition = errors.New("store: illegal status transition")
)

// Repos persists repository identity, configuration, and pipeline status.
type Repos struct {
	db database.DB
}

func NewRepos(db database.DB) *Repos {
	return &Repos{db: db}
}

// Create registers a new repository in pending state. If the URL is already
// registered, the existing row is returned alongside ErrDuplicateURL.
func (r *Repos) Create(ctx context.Context, repo *models.Repo) (*models.Repo, error) {
	if existing, err := r.GetByURL(ctx, repo.URL); err == nil {
		return existing, ErrDuplicateURL
	}

	now := time.Now().UTC()
	repo.Status = models.RepoPending
	repo.CreatedAt = now
	repo.UpdatedAt = now
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}

	id, err := r.db.Insert(ctx, "repos", repo)
	if err != nil {
		// Lost a create race; surface the winner.
		if database.IsUniqueViolation(err) {
			if existing, gerr := r.GetByURL(ctx, repo.URL); gerr == nil {
				return existing, ErrDuplicateURL
			}
		}
		return nil, fmt.Errorf("creating repo: %w", err)
	}
	repo.ID = id
	return repo, nil
}

// Get loads one repository by id.
func (r *Repos) Get(ctx context.Context, id int64) (*models.Repo, error) {
	var repo models.Repo
	err := r.db.Get(ctx, &repo, `SELECT * FROM repos WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading repo %d: %w", id, err)
	}
	return &repo, nil
}

// GetByURL loads one repository by its source URL.
func (r *Repos) GetByURL(ctx context.Context, url string) (*models.Repo, error) {
	var repo models.Repo
	err := r.db.Get(ctx, &repo, `SELECT * FROM repos WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading repo by url: %w", err)
	}
	return &repo, nil
}

// List returns all repositories, oldest first.
func (r *Repos) List(ctx context.Context) ([]models.Repo, error) {
	var repos []models.Repo
	if err := r.db.Select(ctx, &repos, `SELECT * FROM repos ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	return repos, nil
}

// ListMonitored returns repositories with change monitoring enabled.
func (r *Repos) ListMonitored(ctx context.Context) ([]models.Repo, error) {
	var repos []models.Repo
	err := r.db.Select(ctx, &repos,
		`SELECT * FROM repos WHERE monitoring_enabled = ? ORDER BY id ASC`, true)
	if err != nil {
		return nil, fmt.Errorf("listing monitored repos: %w", err)
	}
	return repos, nil
}

// SetStatus advances the repository state machine. Callers hold the
// scheduler's lock for this repository. Transitions outside the machine
// return ErrBadTransition without writing. errMsg is recorded only on the
// failed state and cleared otherwise.
func (r *Repos) SetStatus(ctx context.Context, id int64, next models.RepoStatus, errMsg string) error {
	repo, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !repo.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, repo.Status, next)
	}
	if next != models.RepoFailed {
		errMsg = ""
	}
	rec := struct {
		Status    models.RepoStatus `db:"status"`
		ErrorMsg  string            `db:"error_msg"`
		UpdatedAt time.Time         `db:"updated_at"`
	}{next, errMsg, time.Now().UTC()}
	if err := r.db.Update(ctx, "repos", rec, "id = ?", id); err != nil {
		return fmt.Errorf("updating repo %d status: %w", id, err)
	}
	return nil
}

// SetCompleted flips the repository to completed for the processed commit and
// stamps last_analyzed_at. Called only after the documentation version for
// commitHash has been appended, so completed is never observable without a
// matching version.
func (r *Repos) SetCompleted(ctx context.Context, id int64, commitHash string, at time.Time) error {
	repo, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !repo.Status.CanTransition(models.RepoCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, repo.Status, models.RepoCompleted)
	}
	at = at.UTC()
	rec := struct {
		Status         models.RepoStatus `db:"status"`
		LastCommitHash string            `db:"last_commit_hash"`
		LastAnalyzedAt *time.Time        `db:"last_analyzed_at"`
		ErrorMsg       string            `db:"error_msg"`
		UpdatedAt      time.Time         `db:"updated_at"`
	}{models.RepoCompleted, commitHash, &at, "", at}
	if err := r.db.Update(ctx, "repos", rec, "id = ?", id); err != nil {
		return fmt.Errorf("completing repo %d: %w", id, err)
	}
	return nil
}

// UpdateMeta records the display name and description learned during analysis.
func (r *Repos) UpdateMeta(ctx context.Context, id int64, name, description string) error {
	rec := struct {
		Name        string    `db:"name"`
		Description string    `db:"description"`
		UpdatedAt   time.Time `db:"updated_at"`
	}{name, description, time.Now().UTC()}
	if err := r.db.Update(ctx, "repos", rec, "id = ?", id); err != nil {
		return fmt.Errorf("updating repo %d metadata: %w", id, err)
	}
	return nil
}

// SetMonitoring toggles change monitoring for a repository.
func (r *Repos) SetMonitoring(ctx context.Context, id int64, enabled bool) error {
	rec := struct {
		MonitoringEnabled bool      `db:"monitoring_enabled"`
		UpdatedAt         time.Time `db:"updated_at"`
	}{enabled, time.Now().UTC()}
	if err := r.db.Update(ctx, "repos", rec, "id = ?", id); err != nil {
		return fmt.Errorf("updating repo %d monitoring: %w", id, err)
	}
	return nil
}

// SetWebhookID records the forge-assigned webhook identifier.
func (r *Repos) SetWebhookID(ctx context.Context, id int64, webhookID string) error {
	rec := struct {
		WebhookID string    `db:"webhook_id"`
		UpdatedAt time.Time `db:"updated_at"`
	}{webhookID, time.Now().UTC()}
	if err := r.db.Update(ctx, "repos", rec, "id = ?", id); err != nil {
		return fmt.Errorf("updating repo %d webhook id: %w", id, err)
	}
	return nil
}

// Delete removes a repository and everything hanging off it: documentation
// versions, snapshots, and jobs. Explicit deletes keep the cascade
// independent of driver foreign-key settings.
func (r *Repos) Delete(ctx context.Context, id int64) error {
	for _, q := range []string{
		`DELETE FROM doc_versions WHERE repo_id = ?`,
		`DELETE FROM snapshots WHERE repo_id = ?`,
		`DELETE FROM jobs WHERE repo_id = ?`,
		`DELETE FROM repos WHERE id = ?`,
	} {
		if err := r.db.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("deleting repo %d: %w", id, err)
		}
	}
	return nil
}
