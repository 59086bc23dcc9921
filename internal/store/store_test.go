package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/models"
)

type countRow struct {
	N int `db:"n"`
}

func newTestDB(t *testing.T) database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func seedRepo(t *testing.T, repos *Repos, url string) *models.Repo {
	t.Helper()
	repo, err := repos.Create(context.Background(), &models.Repo{
		URL:      url,
		Name:     "widget-api",
		Provider: "github",
	})
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	return repo
}

// walkTo drives a repository's status through the pipeline order up to target.
func walkTo(t *testing.T, repos *Repos, id int64, target models.RepoStatus) {
	t.Helper()
	path := []models.RepoStatus{
		models.RepoCloning,
		models.RepoAnalyzing,
		models.RepoGeneratingDocs,
		models.RepoCompleted,
	}
	for _, st := range path {
		if err := repos.SetStatus(context.Background(), id, st, ""); err != nil {
			t.Fatalf("set status %s: %v", st, err)
		}
		if st == target {
			return
		}
	}
	t.Fatalf("target status %s not on pipeline path", target)
}
