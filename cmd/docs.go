package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docsmithhq/docsmith-agent/internal/export"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Browse and export generated documentation",
}

var (
	docsShowVersion   int
	docsExportVersion int
	docsExportFormat  string
	docsExportOut     string
)

var docsShowCmd = &cobra.Command{
	Use:   "show <id|url>",
	Short: "Print a documentation version as markdown",
	Long: `Renders a stored documentation version to stdout. Without --version
the latest one is shown.

Examples:
  docsmith docs show 3
  docsmith docs show https://github.com/example/widget-api --version 2
  docsmith docs show 3 | less`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, version, cleanup, err := loadDocVersion(ctx, args[0], docsShowVersion)
		if err != nil {
			return err
		}
		defer cleanup()

		out, _, err := export.Render("markdown", repo, version)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var docsExportCmd = &cobra.Command{
	Use:   "export <id|url>",
	Short: "Write a documentation version to a file",
	Long: `Exports a stored documentation version as markdown or JSON. Without
--out the file is written to the current directory as
<name>-v<version>.<ext>.

Examples:
  docsmith docs export 3
  docsmith docs export 3 --format json
  docsmith docs export 3 --version 1 --out docs/widget-api.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, version, cleanup, err := loadDocVersion(ctx, args[0], docsExportVersion)
		if err != nil {
			return err
		}
		defer cleanup()

		r, err := export.For(docsExportFormat)
		if err != nil {
			return err
		}
		out, err := r.Render(repo, version)
		if err != nil {
			return err
		}

		dest := docsExportOut
		if dest == "" {
			name := repo.Name
			if name == "" {
				name = fmt.Sprintf("repo-%d", repo.ID)
			}
			dest = fmt.Sprintf("%s-v%d%s", name, version.Version, r.FileExt())
		}
		if err := os.WriteFile(dest, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		fmt.Printf("Exported v%d of %s to %s (%d bytes)\n",
			version.Version, repo.DisplayName(), dest, len(out))
		return nil
	},
}

var docsVersionsCmd = &cobra.Command{
	Use:   "versions <id|url>",
	Short: "List the documentation history of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		repo, err := resolveRepoArg(ctx, store.NewRepos(db), args[0])
		if err != nil {
			return err
		}
		versions, err := store.NewDocs(db).List(ctx, repo.ID)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Printf("No documentation generated yet for %s\n", repo.DisplayName())
			return nil
		}
		fmt.Printf("%-8s %-14s %-10s %-8s %-10s %s\n",
			"VERSION", "COMMIT", "FILES", "LINES", "PROFILE", "CREATED")
		for _, v := range versions {
			fmt.Printf("v%-7d %-14s %-10d %-8d %-10s %s\n",
				v.Version, shortCommit(v.CommitHash), v.FileCount, v.LinesOfCode,
				orDash(v.Profile), v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// loadDocVersion resolves a repository argument plus an optional version
// number (0 means latest) into the stored records.
func loadDocVersion(ctx context.Context, repoArg string, versionNum int) (*models.Repo, *models.DocVersion, func(), error) {
	db, cleanup, err := openDB(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	repo, err := resolveRepoArg(ctx, store.NewRepos(db), repoArg)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	docs := store.NewDocs(db)
	var version *models.DocVersion
	if versionNum > 0 {
		version, err = docs.Get(ctx, repo.ID, versionNum)
	} else {
		version, err = docs.Latest(ctx, repo.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		cleanup()
		if versionNum > 0 {
			return nil, nil, nil, fmt.Errorf("no version %d for %s", versionNum, repo.DisplayName())
		}
		return nil, nil, nil, fmt.Errorf("no documentation generated yet for %s — run 'docsmith analyze %s'",
			repo.DisplayName(), repo.URL)
	}
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return repo, version, cleanup, nil
}

func init() {
	docsShowCmd.Flags().IntVar(&docsShowVersion, "version", 0, "version number (default: latest)")
	docsExportCmd.Flags().IntVar(&docsExportVersion, "version", 0, "version number (default: latest)")
	docsExportCmd.Flags().StringVar(&docsExportFormat, "format", "markdown", "export format: markdown|json")
	docsExportCmd.Flags().StringVar(&docsExportOut, "out", "", "output file path")
	docsCmd.AddCommand(docsShowCmd, docsExportCmd, docsVersionsCmd)
}
