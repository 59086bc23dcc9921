package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the repository registry",
	Long:  `Register, inspect, and remove repositories tracked for documentation.`,
}

var (
	repoAddBranch    string
	repoAddCredRef   string
	repoAddNoMonitor bool
)

var repoAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a repository for monitoring",
	Long: `Registers a repository in the local database. The first analysis runs
when the gateway picks it up, or immediately via 'docsmith analyze'.

Private repositories authenticate through configured forge tokens; use
--credential-ref to name a specific token entry instead of the host
default. The secret itself stays in the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		repos := store.NewRepos(db)

		repo, err := registerRepo(ctx, repos, registration{
			URL:           args[0],
			Branch:        repoAddBranch,
			CredentialRef: repoAddCredRef,
			Monitor:       !repoAddNoMonitor,
		})
		if errors.Is(err, store.ErrDuplicateURL) {
			fmt.Printf("%s is already registered (id %d)\n", repo.URL, repo.ID)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (id %d)\n", repo.URL, repo.ID)
		fmt.Printf("Analyze it now with: docsmith analyze %s\n", repo.URL)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		repos := store.NewRepos(db)

		all, err := repos.List(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No repositories registered. Add one with: docsmith repo add <url>")
			return nil
		}
		fmt.Printf("%-5s %-24s %-16s %-8s %-19s %s\n",
			"ID", "NAME", "STATUS", "MONITOR", "LAST ANALYZED", "URL")
		for _, r := range all {
			name := r.Name
			if name == "" {
				name = "-"
			}
			monitor := "off"
			if r.MonitoringEnabled {
				monitor = "on"
			}
			analyzed := "-"
			if r.LastAnalyzedAt != nil {
				analyzed = r.LastAnalyzedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-5d %-24s %-16s %-8s %-19s %s\n",
				r.ID, truncate(name, 24), r.Status, monitor, analyzed, r.URL)
		}
		return nil
	},
}

var repoShowCmd = &cobra.Command{
	Use:   "show <id|url>",
	Short: "Show one repository in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		repos := store.NewRepos(db)

		repo, err := resolveRepoArg(ctx, repos, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%-16s %d\n", "ID", repo.ID)
		fmt.Printf("%-16s %s\n", "URL", repo.URL)
		fmt.Printf("%-16s %s\n", "Name", orDash(repo.Name))
		fmt.Printf("%-16s %s\n", "Description", orDash(repo.Description))
		fmt.Printf("%-16s %s\n", "Provider", orDash(repo.Provider))
		fmt.Printf("%-16s %s\n", "Branch", repo.DefaultBranch)
		fmt.Printf("%-16s %s\n", "Status", repo.Status)
		if repo.ErrorMsg != "" {
			fmt.Printf("%-16s %s\n", "Error", warnStyle.Render(repo.ErrorMsg))
		}
		fmt.Printf("%-16s %v\n", "Monitoring", repo.MonitoringEnabled)
		if repo.WebhookID != "" {
			fmt.Printf("%-16s %s\n", "Webhook", repo.WebhookID)
		}
		if repo.CredentialRef != "" {
			fmt.Printf("%-16s %s\n", "Credential", repo.CredentialRef)
		}
		fmt.Printf("%-16s %s\n", "Last commit", orDash(shortCommit(repo.LastCommitHash)))
		if repo.LastAnalyzedAt != nil {
			fmt.Printf("%-16s %s\n", "Last analyzed", repo.LastAnalyzedAt.Local().Format(time.RFC1123))
		}

		docs := store.NewDocs(db)
		if latest, derr := docs.Latest(ctx, repo.ID); derr == nil {
			fmt.Printf("%-16s v%d (commit %s, %s)\n", "Latest docs",
				latest.Version, shortCommit(latest.CommitHash),
				latest.CreatedAt.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Printf("%-16s none yet\n", "Latest docs")
		}

		jobs := store.NewJobs(db)
		recent, jerr := jobs.List(ctx, store.JobFilter{RepoID: repo.ID, Limit: 5})
		if jerr == nil && len(recent) > 0 {
			fmt.Println("\nRecent jobs:")
			for _, j := range recent {
				line := fmt.Sprintf("  #%-5d %-10s %-8s %s", j.ID, j.Status, j.Trigger,
					j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				if j.ErrorMsg != "" {
					line += "  " + truncate(j.ErrorMsg, 48)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:     "rm <id|url>",
	Aliases: []string{"remove"},
	Short:   "Remove a repository and its documentation history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		repos := store.NewRepos(db)

		repo, err := resolveRepoArg(ctx, repos, args[0])
		if err != nil {
			return err
		}

		// Forge-side webhook cleanup is best-effort.
		if repo.WebhookID != "" && repo.Provider != "" {
			cfg, cerr := config.Load(cfgFile)
			if cerr == nil {
				if prov, perr := source.New(repo.Provider, cfg); perr == nil {
					owner, name := source.ParseOwnerRepo(repo.URL)
					if uerr := prov.UnregisterWebhook(ctx, owner, name, repo.WebhookID); uerr != nil {
						slog.Warn("webhook removal failed", "repo", repo.ID, "error", uerr)
					}
				}
			}
		}

		if err := repos.Delete(ctx, repo.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s and its documentation history\n", repo.DisplayName())
		return nil
	},
}

var (
	repoImportProvider string
	repoImportOwner    string
	repoImportCredRef  string
	repoImportLimit    int
)

var repoImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-register repositories from a forge account",
	Long: `Lists repositories visible to the configured forge token and registers
each one with monitoring enabled. Nothing is analyzed immediately; the
poll schedule produces the first documentation, or run 'docsmith analyze'
per repository.

  docsmith repo import --provider github --owner acme
  docsmith repo import --provider gitlab

Already-registered URLs are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if repoImportProvider == "" {
			return errors.New("--provider is required (github or gitlab)")
		}
		if repoImportProvider != "github" && repoImportProvider != "gitlab" {
			return fmt.Errorf("unknown provider %q (valid: github, gitlab)", repoImportProvider)
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		prov, err := source.New(repoImportProvider, cfg)
		if err != nil {
			return err
		}
		metas, err := prov.ListRepos(ctx, repoImportOwner)
		if err != nil {
			return fmt.Errorf("listing %s repositories: %w", repoImportProvider, err)
		}
		if repoImportLimit > 0 && len(metas) > repoImportLimit {
			metas = metas[:repoImportLimit]
		}
		if len(metas) == 0 {
			fmt.Println("The forge returned no repositories for this token.")
			return nil
		}

		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		repos := store.NewRepos(db)

		var added, skipped, failed int
		for _, m := range metas {
			repo, rerr := registerRepo(ctx, repos, registration{
				URL:           m.URL,
				Provider:      repoImportProvider,
				Branch:        m.DefaultBranch,
				CredentialRef: repoImportCredRef,
				Monitor:       true,
			})
			switch {
			case errors.Is(rerr, store.ErrDuplicateURL):
				fmt.Printf("  skip  %s (already registered)\n", m.URL)
				skipped++
			case rerr != nil:
				fmt.Printf("  %s  %s (%s)\n", warnStyle.Render("fail"), m.URL, rerr)
				failed++
			default:
				// The forge already said what this repository is; no need to
				// wait for the first analysis to name it.
				if uerr := repos.UpdateMeta(ctx, repo.ID, m.Name, m.Description); uerr != nil {
					slog.Warn("storing repository metadata failed", "repo", repo.ID, "error", uerr)
				}
				fmt.Printf("  %s   %s (id %d)\n", successStyle.Render("add"), m.URL, repo.ID)
				added++
			}
		}
		fmt.Printf("\nImported %d, skipped %d, failed %d\n", added, skipped, failed)
		if failed > 0 {
			return fmt.Errorf("%d repositories failed to import", failed)
		}
		return nil
	},
}

type registration struct {
	URL           string
	Provider      string
	Branch        string
	CredentialRef string
	Monitor       bool
}

func registerRepo(ctx context.Context, repos *store.Repos, reg registration) (*models.Repo, error) {
	url := strings.TrimSpace(reg.URL)
	if url == "" {
		return nil, errors.New("url is required")
	}
	provider := strings.TrimSpace(reg.Provider)
	if provider == "" {
		if detected, err := source.DetectProvider(url); err == nil {
			provider = detected
		}
	}
	return repos.Create(ctx, &models.Repo{
		URL:               url,
		Provider:          provider,
		DefaultBranch:     strings.TrimSpace(reg.Branch),
		CredentialRef:     strings.TrimSpace(reg.CredentialRef),
		MonitoringEnabled: reg.Monitor,
	})
}

// openDB opens the configured database, runs migrations, and returns a
// cleanup closing the connection.
func openDB(ctx context.Context) (database.DB, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, func() { db.Close() }, nil
}

// resolveRepoArg accepts a numeric id or a repository URL.
func resolveRepoArg(ctx context.Context, repos *store.Repos, arg string) (*models.Repo, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		repo, gerr := repos.Get(ctx, id)
		if errors.Is(gerr, store.ErrNotFound) {
			return nil, fmt.Errorf("no repository with id %d", id)
		}
		return repo, gerr
	}
	repo, err := repos.GetByURL(ctx, arg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no repository registered for %s", arg)
	}
	return repo, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddBranch, "branch", "", "branch to track (default: main)")
	repoAddCmd.Flags().StringVar(&repoAddCredRef, "credential-ref", "", "config token entry for private clones")
	repoAddCmd.Flags().BoolVar(&repoAddNoMonitor, "no-monitor", false, "register without change monitoring")
	repoImportCmd.Flags().StringVar(&repoImportProvider, "provider", "", "forge to import from (github or gitlab)")
	repoImportCmd.Flags().StringVar(&repoImportOwner, "owner", "", "narrow the listing to a user or organisation")
	repoImportCmd.Flags().StringVar(&repoImportCredRef, "credential-ref", "", "config token entry recorded on each imported repository")
	repoImportCmd.Flags().IntVar(&repoImportLimit, "limit", 0, "import at most this many repositories (0 = all returned)")
	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoShowCmd, repoRemoveCmd, repoImportCmd)
}
