package store

import (
	"context"
	"errors"
	"testing"

	"github.com/docsmithhq/docsmith-agent/models"
)

func saveSnapshot(t *testing.T, snaps *Snapshots, repoID int64, commit string, digests map[string]string) {
	t.Helper()
	snap := &models.Snapshot{RepoID: repoID, CommitHash: commit, FileCount: len(digests)}
	if err := snap.SetDigests(digests); err != nil {
		t.Fatalf("set digests: %v", err)
	}
	if err := snaps.Save(context.Background(), snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
}

func TestSaveOverwritesSameCommit(t *testing.T) {
	db := newTestDB(t)
	repos := NewRepos(db)
	snaps := NewSnapshots(db)
	ctx := context.Background()

	repo := seedRepo(t, repos, "https://github.com/acme/widget-api")

	saveSnapshot(t, snaps, repo.ID, "abc123", map[string]string{"main.go": "d1"})
	saveSnapshot(t, snaps, repo.ID, "abc123", map[string]string{"main.go": "d2", "api.go": "d3"})

	var row countRow
	if err := db.Get(ctx, &row, "SELECT COUNT(*) AS n FROM snapshots WHERE repo_id = ?", repo.ID); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if row.N != 1 {
		t.Fatalf("expected one row per commit, got %d", row.N)
	}

	got, err := snaps.GetByCommit(ctx, repo.ID, "abc123")
	if err != nil {
		t.Fatalf("get by commit: %v", err)
	}
	digests, err := got.Digests()
	if err != nil {
		t.Fatalf("decode digests: %v", err)
	}
	if len(digests) != 2 || digests["main.go"] != "d2" {
		t.Fatalf("expected overwritten digests, got %+v", digests)
	}
}

func TestLatestPrefersNewestSnapshot(t *testing.T) {
	db := newTestDB(t)
	repos := NewRepos(db)
	snaps := NewSnapshots(db)
	ctx := context.Background()

	repo := seedRepo(t, repos, "https://github.com/acme/widget-api")

	saveSnapshot(t, snaps, repo.ID, "abc123", map[string]string{"main.go": "d1"})
	saveSnapshot(t, snaps, repo.ID, "def456", map[string]string{"main.go": "d2"})

	latest, err := snaps.Latest(ctx, repo.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.CommitHash != "def456" {
		t.Fatalf("expected def456, got %s", latest.CommitHash)
	}
}

func TestLatestNotFoundWithoutSnapshots(t *testing.T) {
	db := newTestDB(t)
	repos := NewRepos(db)
	snaps := NewSnapshots(db)

	repo := seedRepo(t, repos, "https://github.com/acme/widget-api")
	if _, err := snaps.Latest(context.Background(), repo.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiffDigestsClassifiesChanges(t *testing.T) {
	prev := map[string]string{
		"main.go":   "d1",
		"api.go":    "d2",
		"README.md": "d3",
	}
	cur := map[string]string{
		"main.go":   "d1",      // unchanged
		"api.go":    "changed", // modified
		"worker.go": "d4",      // added
	}

	delta := models.DiffDigests(prev, cur)
	if len(delta.Added) != 1 || delta.Added[0] != "worker.go" {
		t.Fatalf("unexpected added: %v", delta.Added)
	}
	if len(delta.Modified) != 1 || delta.Modified[0] != "api.go" {
		t.Fatalf("unexpected modified: %v", delta.Modified)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "README.md" {
		t.Fatalf("unexpected removed: %v", delta.Removed)
	}
	if delta.Empty() {
		t.Fatal("delta with changes should not be empty")
	}
	if !models.DiffDigests(prev, prev).Empty() {
		t.Fatal("identical digests should produce an empty delta")
	}
}
