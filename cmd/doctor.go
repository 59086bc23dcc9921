package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/ai"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify credentials, storage, and system health",
	Long: `Checks that the database can be reached, the AI engine responds,
generation profiles load, and forge credentials are in place.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	allOK := true

	fmt.Println("=== docsmith doctor ===")
	fmt.Println()

	// Check config
	fmt.Print("Config ................... ")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		fmt.Println()
		fmt.Println(warnStyle.Render("Cannot continue without a readable config — run 'docsmith init'."))
		return nil
	}
	cfgPath, _ := config.ConfigPath(cfgFile)
	if _, statErr := os.Stat(cfgPath); statErr != nil {
		fmt.Printf("defaults (no file yet — 'docsmith init' writes %s)\n", cfgPath)
	} else {
		fmt.Printf("OK (%s)\n", cfgPath)
	}

	// Check database
	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s: %s)\n", db.Driver(), databaseTarget(cfg.Database))
		}
		db.Close()
	}

	// Check AI engine
	fmt.Print("AI engine ................ ")
	engine, err := ai.New(cfg.AI)
	switch {
	case err != nil:
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	case engine.Name() == "none":
		fmt.Println("disabled (template docs only — set an API key to enable AI generation)")
	default:
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if engine.IsAvailable(probeCtx) {
			model := cfg.AI.Model
			if model == "" {
				model = "default model"
			}
			fmt.Printf("OK (%s / %s)\n", engine.Name(), model)
		} else {
			fmt.Printf("WARN (%s configured but not reachable)\n", engine.Name())
			allOK = false
		}
		cancel()
	}

	// Check generation profile
	fmt.Print("Generation profile ....... ")
	if _, err := profiles.Load(cfg.AI.Profile, profiles.DefaultDir()); err != nil {
		fmt.Printf("WARN (%s — built-in defaults will be used)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.AI.Profile)
	}

	// Check forge tokens
	fmt.Print("GitHub token ............. ")
	if len(cfg.Git.GitHub) == 0 || cfg.Git.GitHub[0].Token == "" {
		fmt.Println("not configured (public repos only)")
	} else {
		fmt.Printf("OK (%s)\n", cfg.Git.GitHub[0].Host)
	}
	fmt.Print("GitLab token ............. ")
	if len(cfg.Git.GitLab) == 0 || cfg.Git.GitLab[0].Token == "" {
		fmt.Println("not configured (public repos only)")
	} else {
		fmt.Printf("OK (%s)\n", cfg.Git.GitLab[0].Host)
	}

	// Check clone workspace
	fmt.Print("Clone workspace .......... ")
	if wsErr := probeWorkspace(cfg.Pipeline.WorkspaceDir); wsErr != nil {
		fmt.Printf("FAIL (%s)\n", wsErr)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.Pipeline.WorkspaceDir)
	}

	// Check webhook verification
	fmt.Print("Webhook secret ........... ")
	if cfg.Webhooks.Secret == "" {
		fmt.Println("WARN (unset — push deliveries are accepted unverified)")
		allOK = false
	} else {
		fmt.Println("OK")
	}

	// Check poll schedule
	fmt.Print("Poll schedule ............ ")
	switch {
	case !cfg.Poll.Enabled:
		fmt.Println("disabled (webhooks only)")
	default:
		if _, err := cron.ParseStandard(cfg.Poll.Schedule); err != nil {
			fmt.Printf("FAIL (%q: %s)\n", cfg.Poll.Schedule, err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", cfg.Poll.Schedule)
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed — docsmith is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks need attention — fix them with 'docsmith init' or 'docsmith config set'."))
	}

	return nil
}

// databaseTarget renders where the configured database lives.
func databaseTarget(cfg config.DatabaseConfig) string {
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		return cfg.Path
	}
	return "dsn configured"
}

// probeWorkspace verifies the clone workspace is creatable and writable.
func probeWorkspace(dir string) error {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "docsmith")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, "doctor-*")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}
