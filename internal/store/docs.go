package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/models"
)

// Docs persists immutable documentation versions. Versions are append-only:
// rows are never updated, and per-repo numbering starts at 1 with no gaps.
type Docs struct {
	db database.DB

	mu    sync.Mutex
	locks map[int64]*sync.Mutex // repo id → append lock
}

func NewDocs(db database.DB) *Docs {
	return &Docs{db: db, locks: make(map[int64]*sync.Mutex)}
}

func (d *Docs) appendLock(repoID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[repoID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[repoID] = l
	}
	return l
}

// AppendInput carries everything recorded with a new documentation version.
type AppendInput struct {
	CommitHash  string
	FileCount   int
	LinesOfCode int
	Profile     string
	Content     *models.DocContent
}

// Append persists the next version for a repository, computing max+1 under a
// repo-scoped lock so concurrent appenders in this process always see strictly
// sequential numbers. UNIQUE(repo_id, version) backs the lock up against
// writers outside it: on a violation the number is recomputed once, then
// ErrVersionConflict reports the broken serialization.
func (d *Docs) Append(ctx context.Context, repoID int64, in AppendInput) (*models.DocVersion, error) {
	l := d.appendLock(repoID)
	l.Lock()
	defer l.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		next, err := d.nextVersion(ctx, repoID)
		if err != nil {
			return nil, err
		}
		ver := &models.DocVersion{
			RepoID:      repoID,
			Version:     next,
			CommitHash:  in.CommitHash,
			FileCount:   in.FileCount,
			LinesOfCode: in.LinesOfCode,
			Profile:     in.Profile,
			CreatedAt:   time.Now().UTC(),
		}
		if err := ver.SetContent(in.Content); err != nil {
			return nil, fmt.Errorf("encoding doc content: %w", err)
		}
		id, err := d.db.Insert(ctx, "doc_versions", ver)
		if err == nil {
			ver.ID = id
			return ver, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("appending version %d for repo %d: %w", next, repoID, err)
		}
		// A concurrent writer took this number; recompute once.
	}
	return nil, fmt.Errorf("appending version for repo %d: %w", repoID, ErrVersionConflict)
}

func (d *Docs) nextVersion(ctx context.Context, repoID int64) (int, error) {
	var row struct {
		Next int `db:"next"`
	}
	err := d.db.Get(ctx, &row,
		`SELECT COALESCE(MAX(version), 0) + 1 AS next FROM doc_versions WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, fmt.Errorf("computing next version for repo %d: %w", repoID, err)
	}
	return row.Next, nil
}

// Latest returns the highest-numbered version for a repository.
func (d *Docs) Latest(ctx context.Context, repoID int64) (*models.DocVersion, error) {
	var ver models.DocVersion
	err := d.db.Get(ctx, &ver,
		`SELECT * FROM doc_versions WHERE repo_id = ? ORDER BY version DESC LIMIT 1`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest version for repo %d: %w", repoID, err)
	}
	return &ver, nil
}

// Get returns one specific version for a repository.
func (d *Docs) Get(ctx context.Context, repoID int64, version int) (*models.DocVersion, error) {
	var ver models.DocVersion
	err := d.db.Get(ctx, &ver,
		`SELECT * FROM doc_versions WHERE repo_id = ? AND version = ?`, repoID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading version %d for repo %d: %w", version, repoID, err)
	}
	return &ver, nil
}

// List returns all versions for a repository, newest first.
func (d *Docs) List(ctx context.Context, repoID int64) ([]models.DocVersion, error) {
	var vers []models.DocVersion
	err := d.db.Select(ctx, &vers,
		`SELECT * FROM doc_versions WHERE repo_id = ? ORDER BY version DESC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing versions for repo %d: %w", repoID, err)
	}
	return vers, nil
}

// Count returns the number of versions stored for a repository.
func (d *Docs) Count(ctx context.Context, repoID int64) (int, error) {
	var row struct {
		N int `db:"n"`
	}
	err := d.db.Get(ctx, &row,
		`SELECT COUNT(*) AS n FROM doc_versions WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, fmt.Errorf("counting versions for repo %d: %w", repoID, err)
	}
	return row.N, nil
}
