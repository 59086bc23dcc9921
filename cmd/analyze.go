package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/pipeline"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var (
	analyzeBranch    string
	analyzeProfile   string
	analyzeMonitor   bool
	analyzeOutputFmt string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze a repository and generate documentation once",
	Long: `Clones a repository, extracts its structure, and generates a new
documentation version — all in the foreground, without the daemon.

The repository is registered in the local database if it isn't yet, so
later runs (and the gateway) build on the same version history.

Examples:
  docsmith analyze https://github.com/example/widget-api
  docsmith analyze https://github.com/example/widget-api --branch develop
  docsmith analyze https://gitlab.com/example/widget-api --profile marketing
  docsmith analyze https://github.com/example/widget-api --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBranch, "branch", "", "branch to analyze (default: repo default branch)")
	analyzeCmd.Flags().StringVar(&analyzeProfile, "profile", "", "generation profile (overrides config)")
	analyzeCmd.Flags().BoolVar(&analyzeMonitor, "monitor", false, "enable change monitoring for this repository")
	analyzeCmd.Flags().StringVar(&analyzeOutputFmt, "output", "table", "output format: table|json|yaml")
}

// analyzeSummary is the machine-readable shape of one completed run.
type analyzeSummary struct {
	Repo        string  `json:"repo"                     yaml:"repo"`
	URL         string  `json:"url"                      yaml:"url"`
	Provider    string  `json:"provider"                 yaml:"provider"`
	Commit      string  `json:"commit"                   yaml:"commit"`
	Unchanged   bool    `json:"unchanged"                yaml:"unchanged"`
	Version     int     `json:"version,omitempty"        yaml:"version,omitempty"`
	FileCount   int     `json:"file_count,omitempty"     yaml:"file_count,omitempty"`
	LinesOfCode int     `json:"lines_of_code,omitempty"  yaml:"lines_of_code,omitempty"`
	Profile     string  `json:"profile,omitempty"        yaml:"profile,omitempty"`
	Engine      string  `json:"engine"                   yaml:"engine"`
	DurationSec float64 `json:"duration_sec"             yaml:"duration_sec"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoURL := args[0]

	switch analyzeOutputFmt {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (valid: table, json, yaml)", analyzeOutputFmt)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if analyzeProfile != "" {
		cfg.AI.Profile = analyzeProfile
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	provider, err := source.DetectProvider(repoURL)
	if err != nil {
		slog.Debug("provider not recognised, cloning anonymously", "url", repoURL, "error", err)
		provider = ""
	}

	repos := store.NewRepos(db)
	docs := store.NewDocs(db)
	snaps := store.NewSnapshots(db)
	jobs := store.NewJobs(db)

	repo, err := repos.Create(ctx, &models.Repo{
		URL:               repoURL,
		Provider:          provider,
		DefaultBranch:     analyzeBranch,
		MonitoringEnabled: analyzeMonitor,
	})
	if errors.Is(err, store.ErrDuplicateURL) {
		// Already registered; the run extends its version history.
		if analyzeBranch != "" {
			repo.DefaultBranch = analyzeBranch
		}
	} else if err != nil {
		return fmt.Errorf("registering repository: %w", err)
	}

	engine, err := ai.New(cfg.AI)
	if err != nil {
		return fmt.Errorf("building generation engine: %w", err)
	}
	profile, err := profiles.Load(cfg.AI.Profile, profiles.DefaultDir())
	if err != nil {
		slog.Warn("generation profile unavailable, using built-in defaults",
			"profile", cfg.AI.Profile, "error", err)
		profile = nil
	}

	creds := func(r *models.Repo) string {
		if r.CredentialRef != "" {
			if tok := cfg.ResolveCredential(r.CredentialRef); tok != "" {
				return tok
			}
		}
		return source.TokenForURL(cfg, r.URL)
	}
	exec := pipeline.NewExecutor(cfg.Pipeline, repos, docs, snaps,
		source.NewFetcher(cfg.Pipeline.WorkspaceDir), ai.NewGenerator(engine),
		profile, creds, nil)

	if analyzeOutputFmt == "table" {
		fmt.Printf("Analyzing %s\n", repoURL)
		fmt.Printf("Engine: %s | Profile: %s\n\n", engine.Name(), cfg.AI.Profile)
	}

	job, err := jobs.Create(ctx, &models.Job{RepoID: repo.ID, Trigger: models.TriggerManual})
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	if err := jobs.MarkRunning(ctx, job.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("claiming job: %w", err)
	}

	start := time.Now()
	result, runErr := exec.Run(ctx, repo, job)
	if runErr != nil {
		_ = jobs.MarkFailed(context.Background(), job.ID, runErr.Error(), time.Now().UTC())
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	if err := jobs.MarkCompleted(ctx, job.ID, result.Changes, time.Now().UTC()); err != nil {
		slog.Warn("recording job completion failed", "job", job.ID, "error", err)
	}

	repo, err = repos.Get(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("reloading repository: %w", err)
	}

	summary := analyzeSummary{
		Repo:        repo.DisplayName(),
		URL:         repo.URL,
		Provider:    repo.Provider,
		Commit:      result.CommitHash,
		Unchanged:   result.Unchanged,
		Engine:      engine.Name(),
		DurationSec: time.Since(start).Seconds(),
	}
	if result.Version != nil {
		summary.Version = result.Version.Version
		summary.FileCount = result.Version.FileCount
		summary.LinesOfCode = result.Version.LinesOfCode
		summary.Profile = result.Version.Profile
	}
	return printAnalyzeSummary(summary, result, analyzeOutputFmt)
}

func printAnalyzeSummary(s analyzeSummary, result *pipeline.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		out, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	fmt.Println("=== Analysis Result ===")
	if s.Unchanged {
		fmt.Printf("Head %s already analyzed — documentation is current.\n", shortCommit(s.Commit))
		fmt.Println(dimStyle.Render("Run with a different --branch or push new commits to regenerate."))
		return nil
	}
	fmt.Printf("Repository : %s\n", s.Repo)
	fmt.Printf("Commit     : %s\n", shortCommit(s.Commit))
	fmt.Printf("Version    : %d\n", s.Version)
	fmt.Printf("Files      : %d (%d lines)\n", s.FileCount, s.LinesOfCode)
	fmt.Printf("Profile    : %s\n", s.Profile)
	fmt.Printf("Duration   : %.1fs\n\n", s.DurationSec)

	if result.Version != nil {
		if content, err := result.Version.Content(); err == nil && content.ExecutiveSummary != "" {
			fmt.Println(content.ExecutiveSummary)
			fmt.Println()
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Documentation v%d saved.", s.Version)))
		fmt.Printf("View it with: docsmith docs show %d\n", result.Version.RepoID)
	}
	return nil
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
