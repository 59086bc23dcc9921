package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7C3AED")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

var (
	initForce         bool
	initPort          int
	initWorkers       int
	initProvider      string
	initModel         string
	initOpenAIKey     string
	initAnthropicKey  string
	initOllamaURL     string
	initProfile       string
	initGitHubToken   string
	initGitLabToken   string
	initWebhookSecret string
	initExternalURL   string
	initPollSchedule  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration without prompts",
	Long: `Writes ~/.docsmith/config.json with sensible defaults, seeds the
generation profile directory, and applies any flags you pass.

Everything can be changed later with 'docsmith config set' or by
editing the file directly.

Examples:
  docsmith init
  docsmith init --anthropic-key sk-ant-... --github-token ghp_...
  docsmith init --provider ollama --model llama3 --profile marketing`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().IntVar(&initPort, "port", 0, "gateway HTTP port (default 8844)")
	initCmd.Flags().IntVar(&initWorkers, "workers", 0, "parallel pipeline workers (default 2)")
	initCmd.Flags().StringVar(&initProvider, "provider", "", "AI provider: openai|anthropic|ollama (default: auto by key)")
	initCmd.Flags().StringVar(&initModel, "model", "", "AI model override")
	initCmd.Flags().StringVar(&initOpenAIKey, "openai-key", "", "OpenAI-compatible API key")
	initCmd.Flags().StringVar(&initAnthropicKey, "anthropic-key", "", "Anthropic API key")
	initCmd.Flags().StringVar(&initOllamaURL, "ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	initCmd.Flags().StringVar(&initProfile, "profile", "", "generation profile (default technical)")
	initCmd.Flags().StringVar(&initGitHubToken, "github-token", "", "GitHub token for private clones and webhooks")
	initCmd.Flags().StringVar(&initGitLabToken, "gitlab-token", "", "GitLab token for private clones and webhooks")
	initCmd.Flags().StringVar(&initWebhookSecret, "webhook-secret", "", "shared secret for verifying forge push deliveries")
	initCmd.Flags().StringVar(&initExternalURL, "external-url", "", "public base URL forges deliver webhooks to")
	initCmd.Flags().StringVar(&initPollSchedule, "poll", "", "cron expression for head polling (default */30 * * * *)")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgPath, err := config.ConfigPath(cfgFile)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(cfgPath); statErr == nil && !initForce {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Println(dimStyle.Render("Use --force to overwrite, or 'docsmith config set' to change values."))
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading defaults: %w", err)
	}

	if initPort > 0 {
		cfg.Server.Port = initPort
	}
	if initWorkers > 0 {
		cfg.Scheduler.Workers = initWorkers
	}
	if initProvider != "" {
		cfg.AI.Provider = initProvider
	}
	if initModel != "" {
		cfg.AI.Model = initModel
	}
	if initOpenAIKey != "" {
		cfg.AI.APIKey = initOpenAIKey
	}
	if initAnthropicKey != "" {
		cfg.AI.AnthropicKey = initAnthropicKey
	}
	if initOllamaURL != "" {
		cfg.AI.OllamaURL = initOllamaURL
	}
	if initProfile != "" {
		cfg.AI.Profile = initProfile
	}
	if initGitHubToken != "" {
		cfg.Git.GitHub = []config.GitHubConfig{{Token: initGitHubToken, Host: "github.com"}}
	}
	if initGitLabToken != "" {
		cfg.Git.GitLab = []config.GitLabConfig{{Token: initGitLabToken, Host: "gitlab.com"}}
	}
	if initWebhookSecret != "" {
		cfg.Webhooks.Secret = initWebhookSecret
	}
	if initExternalURL != "" {
		cfg.Webhooks.ExternalURL = initExternalURL
	}
	if initPollSchedule != "" {
		cfg.Poll.Enabled = true
		cfg.Poll.Schedule = initPollSchedule
	}

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating docsmith directories: %w", err)
	}
	if err := profiles.Init(profiles.DefaultDir()); err != nil {
		return fmt.Errorf("seeding generation profiles: %w", err)
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("  docsmith initialised"))
	fmt.Println(successStyle.Render("  Config written to " + cfgPath))
	fmt.Println(dimStyle.Render("  Profiles seeded in " + profiles.DefaultDir()))
	if cfg.AI.APIKey == "" && cfg.AI.AnthropicKey == "" && cfg.AI.Provider != "ollama" {
		fmt.Println(warnStyle.Render("  No AI credentials configured — documents fall back to analysis-derived templates."))
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  docsmith doctor                         verify everything works")
	fmt.Println("  docsmith repo add <url>                 register a repository")
	fmt.Println("  docsmith analyze <url>                  analyze one repository now")
	fmt.Println("  docsmith serve                          start the monitoring daemon")
	return nil
}
