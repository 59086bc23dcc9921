package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/database"
	"github.com/docsmithhq/docsmith-agent/internal/gateway"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/spf13/cobra"
)

var servePort int
var serveLogDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docsmith monitoring daemon",
	Long: `Starts the docsmith gateway: a long-running daemon that watches your
repositories and regenerates documentation whenever they change.

The gateway runs the job scheduler continuously and exposes a local
HTTP API (default: http://127.0.0.1:8844) so you can:

  • Register repositories and trigger analyses on demand
  • Receive push webhooks from GitHub and GitLab
  • Poll repository heads on cron schedules
  • Browse and export versioned documentation
  • Stream live pipeline events via GET /events (Server-Sent Events)

Example schedules:
  "0 2 * * *"    — every night at 02:00
  "@every 6h"    — every 6 hours
  "@daily"       — once per day at midnight

Unlike 'docsmith analyze' (one-shot), the gateway stays running and
keeps documentation current without manual intervention.

Quick API reference:
  GET  /health                              liveness check
  GET  /api/status                          pipeline status snapshot
  POST /api/repos                           register a repository
  POST /api/repos/{id}/analyze              trigger an analysis
  GET  /api/docs/{repoID}                   latest documentation
  GET  /api/docs/{repoID}/export            export (?format=markdown|json)
  GET  /api/jobs                            list pipeline jobs
  POST /api/webhooks/github                 GitHub push deliveries
  POST /api/webhooks/gitlab                 GitLab push deliveries
  GET  /api/schedules                       list poll schedules
  POST /api/schedules/{id}/trigger          run a schedule immediately
  GET  /events                              SSE stream of live events`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 8844, overrides config)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gateway gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	effectiveCfgPath, _ := config.ConfigPath(cfgFile)

	logFilePath, closeLog, err := setupServeFileLogger(serveLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = config.DefaultPort
	}
	host := cfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 2
	}

	// Seed user-editable copies of the bundled profiles. Existing files win.
	if err := profiles.Init(profiles.DefaultDir()); err != nil {
		slog.Warn("seeding generation profiles failed", "error", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Printf("docsmith gateway starting\n")
	fmt.Printf("  Workers  : %d\n", workers)
	fmt.Printf("  Profile  : %s\n", cfg.AI.Profile)
	fmt.Printf("  Database : %s\n", db.Driver())
	fmt.Printf("  API      : http://%s:%d\n", host, cfg.Server.Port)
	fmt.Printf("  Events   : http://%s:%d/events\n", host, cfg.Server.Port)
	fmt.Printf("  Logs     : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println("Register repositories via 'docsmith repo add' or POST /api/repos.")
	fmt.Println()

	slog.Info("gateway logger initialised", "file", logFilePath)
	gw, err := gateway.New(cfg, db)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}
	gw.SetConfigPath(effectiveCfgPath)
	return gw.Start(ctx)
}

func setupServeFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "gateway.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
