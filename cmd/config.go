package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and manage docsmith configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		// Redact secrets.
		if cfg.AI.APIKey != "" {
			cfg.AI.APIKey = "sk-***"
		}
		if cfg.AI.AnthropicKey != "" {
			cfg.AI.AnthropicKey = "sk-ant-***"
		}
		for i := range cfg.Git.GitHub {
			if cfg.Git.GitHub[i].Token != "" {
				cfg.Git.GitHub[i].Token = "ghp-***"
			}
		}
		for i := range cfg.Git.GitLab {
			if cfg.Git.GitLab[i].Token != "" {
				cfg.Git.GitLab[i].Token = "glpat-***"
			}
		}
		if cfg.Webhooks.Secret != "" {
			cfg.Webhooks.Secret = "***"
		}
		// Notify channel secrets
		if cfg.Notify.Telegram.Token != "" {
			cfg.Notify.Telegram.Token = "tg-***"
		}
		if cfg.Notify.Email.Password != "" {
			cfg.Notify.Email.Password = "***"
		}
		if cfg.Notify.Webhook.Secret != "" {
			cfg.Notify.Webhook.Secret = "***"
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Long: `Sets a single value by dotted key and writes the config file back.

Examples:
  docsmith config set ai.provider anthropic
  docsmith config set ai.anthropic_key sk-ant-...
  docsmith config set git.github.token ghp_...
  docsmith config set scheduler.workers 4
  docsmith config set poll.schedule "@every 6h"
  docsmith config set webhooks.external_url https://docsmith.example.com

Run 'docsmith config set' without arguments to list the known keys.`,
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}
		fmt.Printf("Opening %s with %s...\n", p, editor)
		c := exec.Command(editor, p) // #nosec G204 -- editor is from $EDITOR env var, intentional user-controlled binary
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

// configSetters maps dotted keys onto config mutations. String values arrive
// verbatim; numeric and boolean keys parse their value first.
var configSetters = map[string]func(cfg *config.Config, value string) error{
	"server.host": func(c *config.Config, v string) error { c.Server.Host = v; return nil },
	"server.port": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("port must be an integer between 1 and 65535")
		}
		c.Server.Port = n
		return nil
	},
	"database.driver": func(c *config.Config, v string) error {
		switch v {
		case "sqlite", "mysql", "postgres":
			c.Database.Driver = v
			return nil
		}
		return fmt.Errorf("driver must be sqlite, mysql, or postgres")
	},
	"database.path": func(c *config.Config, v string) error { c.Database.Path = v; return nil },
	"database.dsn":  func(c *config.Config, v string) error { c.Database.DSN = v; return nil },
	"scheduler.workers": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 64 {
			return fmt.Errorf("workers must be an integer between 1 and 64")
		}
		c.Scheduler.Workers = n
		return nil
	},
	"ai.provider": func(c *config.Config, v string) error {
		switch v {
		case "", "openai", "anthropic", "ollama", "noop":
			c.AI.Provider = v
			return nil
		}
		return fmt.Errorf("provider must be openai, anthropic, ollama, or noop")
	},
	"ai.model":         func(c *config.Config, v string) error { c.AI.Model = v; return nil },
	"ai.api_key":       func(c *config.Config, v string) error { c.AI.APIKey = v; return nil },
	"ai.anthropic_key": func(c *config.Config, v string) error { c.AI.AnthropicKey = v; return nil },
	"ai.base_url":      func(c *config.Config, v string) error { c.AI.BaseURL = v; return nil },
	"ai.ollama_url":    func(c *config.Config, v string) error { c.AI.OllamaURL = v; return nil },
	"ai.profile":       func(c *config.Config, v string) error { c.AI.Profile = v; return nil },
	"git.github.token": func(c *config.Config, v string) error {
		if len(c.Git.GitHub) == 0 {
			c.Git.GitHub = []config.GitHubConfig{{Host: "github.com"}}
		}
		c.Git.GitHub[0].Token = v
		return nil
	},
	"git.github.host": func(c *config.Config, v string) error {
		if len(c.Git.GitHub) == 0 {
			c.Git.GitHub = []config.GitHubConfig{{}}
		}
		c.Git.GitHub[0].Host = v
		return nil
	},
	"git.gitlab.token": func(c *config.Config, v string) error {
		if len(c.Git.GitLab) == 0 {
			c.Git.GitLab = []config.GitLabConfig{{Host: "gitlab.com"}}
		}
		c.Git.GitLab[0].Token = v
		return nil
	},
	"git.gitlab.host": func(c *config.Config, v string) error {
		if len(c.Git.GitLab) == 0 {
			c.Git.GitLab = []config.GitLabConfig{{}}
		}
		c.Git.GitLab[0].Host = v
		return nil
	},
	"webhooks.secret":       func(c *config.Config, v string) error { c.Webhooks.Secret = v; return nil },
	"webhooks.external_url": func(c *config.Config, v string) error { c.Webhooks.ExternalURL = v; return nil },
	"poll.enabled": func(c *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("poll.enabled must be true or false")
		}
		c.Poll.Enabled = b
		return nil
	},
	"poll.schedule": func(c *config.Config, v string) error {
		if _, err := cron.ParseStandard(v); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", v, err)
		}
		c.Poll.Schedule = v
		return nil
	},
	"notify.events": func(c *config.Config, v string) error {
		c.Notify.Events = nil
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				c.Notify.Events = append(c.Notify.Events, e)
			}
		}
		return nil
	},
	"notify.slack.webhook_url": func(c *config.Config, v string) error { c.Notify.Slack.WebhookURL = v; return nil },
	"notify.telegram.token":    func(c *config.Config, v string) error { c.Notify.Telegram.Token = v; return nil },
	"notify.telegram.chat_id":  func(c *config.Config, v string) error { c.Notify.Telegram.ChatID = v; return nil },
	"notify.webhook.url":       func(c *config.Config, v string) error { c.Notify.Webhook.URL = v; return nil },
	"notify.webhook.secret":    func(c *config.Config, v string) error { c.Notify.Webhook.Secret = v; return nil },
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		keys := make([]string, 0, len(configSetters))
		for k := range configSetters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("Known keys:")
		for _, k := range keys {
			fmt.Printf("  %s\n", k)
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("expected: docsmith config set <key> <value>")
	}
	key, value := args[0], args[1]

	setter, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("unknown key %q — run 'docsmith config set' to list known keys", key)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := setter(cfg, value); err != nil {
		return err
	}

	cfgPath, err := config.ConfigPath(cfgFile)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	fmt.Printf("Set %s\n", key)
	fmt.Println(dimStyle.Render("Restart 'docsmith serve' for the change to take effect."))
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd, configEditCmd)
}
