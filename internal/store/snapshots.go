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

// Snapshots persists per-commit file digest maps used for change detection
// between analysis runs.
type Snapshots struct {
	db database.DB
}

func NewSnapshots(db database.DB) *Snapshots {
	return &Snapshots{db: db}
}

// Save records the snapshot for a commit. Re-analyzing the same commit
// (a manual re-trigger) overwrites the earlier row via the
// (repo_id, commit_hash) key.
func (s *Snapshots) Save(ctx context.Context, snap *models.Snapshot) error {
	snap.CreatedAt = time.Now().UTC()
	err := s.db.Upsert(ctx, "snapshots", snap, []string{"repo_id", "commit_hash"})
	if err != nil {
		return fmt.Errorf("saving snapshot for repo %d: %w", snap.RepoID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a repository.
func (s *Snapshots) Latest(ctx context.Context, repoID int64) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.Get(ctx, &snap,
		`SELECT * FROM snapshots WHERE repo_id = ? ORDER BY id DESC LIMIT 1`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot for repo %d: %w", repoID, err)
	}
	return &snap, nil
}

// GetByCommit returns the snapshot recorded for a specific commit.
func (s *Snapshots) GetByCommit(ctx context.Context, repoID int64, commitHash string) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.Get(ctx, &snap,
		`SELECT * FROM snapshots WHERE repo_id = ? AND commit_hash = ?`, repoID, commitHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for repo %d commit %s: %w", repoID, commitHash, err)
	}
	return &snap, nil
}
