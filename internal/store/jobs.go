package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/models"
)

// Jobs persists the monitoring job queue. The dispatcher is the only writer
// of the pending->running edge; completion and retry writes come from the
// worker that owns the job.
type Jobs struct {
	db database.DB
}

func NewJobs(db database.DB) *Jobs {
	return &Jobs{db: db}
}

// Create persists a new pending job.
func (j *Jobs) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	job.Status = models.JobPending
	job.CreatedAt = time.Now().UTC()
	id, err := j.db.Insert(ctx, "jobs", job)
	if err != nil {
		return nil, fmt.Errorf("creating job for repo %d: %w", job.RepoID, err)
	}
	job.ID = id
	return job, nil
}

// Get loads one job by id.
func (j *Jobs) Get(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	err := j.db.Get(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", id, err)
	}
	return &job, nil
}

// JobFilter narrows List. Zero values mean no filtering on that field.
type JobFilter struct {
	RepoID int64
	Status models.JobStatus
	Limit  int
}

// List returns jobs newest first, optionally filtered.
func (j *Jobs) List(ctx context.Context, f JobFilter) ([]models.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.RepoID != 0 {
		where = append(where, "repo_id = ?")
		args = append(args, f.RepoID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT * FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var jobs []models.Job
	if err := j.db.Select(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// ActiveForRepo returns the repository's pending or running job, if any.
// At most one exists at a time; the scheduler enforces that on enqueue.
func (j *Jobs) ActiveForRepo(ctx context.Context, repoID int64) (*models.Job, error) {
	var job models.Job
	err := j.db.Get(ctx, &job,
		`SELECT * FROM jobs WHERE repo_id = ? AND status IN (?, ?) ORDER BY id ASC LIMIT 1`,
		repoID, models.JobPending, models.JobRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading active job for repo %d: %w", repoID, err)
	}
	return &job, nil
}

// ListEligible returns pending jobs whose backoff gate has passed, oldest
// first by creation time with id as the tiebreaker, capped at limit.
func (j *Jobs) ListEligible(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := j.db.Select(ctx, &jobs,
		`SELECT * FROM jobs
		 WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		models.JobPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing eligible jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning moves a pending job to running and stamps started_at. The
// status guard in the WHERE clause makes a duplicate dispatch a no-op write.
func (j *Jobs) MarkRunning(ctx context.Context, id int64, at time.Time) error {
	at = at.UTC()
	rec := struct {
		Status    models.JobStatus `db:"status"`
		StartedAt *time.Time       `db:"started_at"`
	}{models.JobRunning, &at}
	err := j.db.Update(ctx, "jobs", rec, "id = ? AND status = ?", id, models.JobPending)
	if err != nil {
		return fmt.Errorf("marking job %d running: %w", id, err)
	}
	return nil
}

// MarkCompleted finishes a job successfully, recording the change summary
// observed during the run.
func (j *Jobs) MarkCompleted(ctx context.Context, id int64, changes *models.ChangeSummary, at time.Time) error {
	at = at.UTC()
	job := &models.Job{}
	if err := job.SetChanges(changes); err != nil {
		return fmt.Errorf("encoding change summary: %w", err)
	}
	rec := struct {
		Status      models.JobStatus `db:"status"`
		Changes     string           `db:"changes"`
		ErrorMsg    string           `db:"error_msg"`
		CompletedAt *time.Time       `db:"completed_at"`
	}{models.JobCompleted, job.ChangesJSON, "", &at}
	if err := j.db.Update(ctx, "jobs", rec, "id = ?", id); err != nil {
		return fmt.Errorf("marking job %d completed: %w", id, err)
	}
	return nil
}

// MarkFailed finishes a job permanently with the given error message.
func (j *Jobs) MarkFailed(ctx context.Context, id int64, msg string, at time.Time) error {
	at = at.UTC()
	rec := struct {
		Status      models.JobStatus `db:"status"`
		ErrorMsg    string           `db:"error_msg"`
		CompletedAt *time.Time       `db:"completed_at"`
	}{models.JobFailed, msg, &at}
	if err := j.db.Update(ctx, "jobs", rec, "id = ?", id); err != nil {
		return fmt.Errorf("marking job %d failed: %w", id, err)
	}
	return nil
}

// Requeue returns a job to pending after a retryable failure. retryCount is
// the new attempt count and notBefore gates the next dispatch; the last error
// stays on the row for inspection while the job waits.
func (j *Jobs) Requeue(ctx context.Context, id int64, retryCount int, notBefore time.Time, lastErr string) error {
	nb := notBefore.UTC()
	rec := struct {
		Status     models.JobStatus `db:"status"`
		RetryCount int              `db:"retry_count"`
		NotBefore  *time.Time       `db:"not_before"`
		ErrorMsg   string           `db:"error_msg"`
		StartedAt  *time.Time       `db:"started_at"`
	}{models.JobPending, retryCount, &nb, lastErr, nil}
	if err := j.db.Update(ctx, "jobs", rec, "id = ?", id); err != nil {
		return fmt.Errorf("requeueing job %d: %w", id, err)
	}
	return nil
}

// ResetRunning returns jobs stranded in running state (an unclean shutdown)
// to pending so the dispatcher picks them up again. Returns the ids reset.
func (j *Jobs) ResetRunning(ctx context.Context) ([]int64, error) {
	var stranded []models.Job
	err := j.db.Select(ctx, &stranded,
		`SELECT * FROM jobs WHERE status = ?`, models.JobRunning)
	if err != nil {
		return nil, fmt.Errorf("listing running jobs: %w", err)
	}
	if len(stranded) == 0 {
		return nil, nil
	}
	rec := struct {
		Status    models.JobStatus `db:"status"`
		StartedAt *time.Time       `db:"started_at"`
	}{models.JobPending, nil}
	if err := j.db.Update(ctx, "jobs", rec, "status = ?", models.JobRunning); err != nil {
		return nil, fmt.Errorf("resetting running jobs: %w", err)
	}
	ids := make([]int64, 0, len(stranded))
	for _, job := range stranded {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// CountByStatus returns job counts keyed by status.
func (j *Jobs) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var rows []struct {
		Status models.JobStatus `db:"status"`
		N      int              `db:"n"`
	}
	err := j.db.Select(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	counts := make(map[models.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}
