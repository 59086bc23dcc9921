package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".docsmith"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".docsmith/docsmith.db"
	DefaultPort       = 8844
)

// Load reads the config file (creating it with defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("docsmith")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet — defaults apply until the first Save.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.docsmith if it doesn't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// ForgeToken returns the configured token for a provider/host pair, falling
// back to the provider's default-host entry. Empty string means anonymous.
func (c *Config) ForgeToken(provider, host string) string {
	switch provider {
	case "github":
		return matchHostToken(host, "github.com", func() []hostToken {
			out := make([]hostToken, len(c.Git.GitHub))
			for i, g := range c.Git.GitHub {
				out[i] = hostToken{g.Host, g.Token}
			}
			return out
		}())
	case "gitlab":
		return matchHostToken(host, "gitlab.com", func() []hostToken {
			out := make([]hostToken, len(c.Git.GitLab))
			for i, g := range c.Git.GitLab {
				out[i] = hostToken{g.Host, g.Token}
			}
			return out
		}())
	}
	return ""
}

// ResolveCredential maps a repository's credential reference to a token.
// A ref is "<provider>" or "<provider>@<host>" — the secret itself is never
// stored on the repository row.
func (c *Config) ResolveCredential(ref string) string {
	if ref == "" {
		return ""
	}
	provider, host := ref, ""
	if i := strings.IndexByte(ref, '@'); i >= 0 {
		provider, host = ref[:i], ref[i+1:]
	}
	return c.ForgeToken(provider, host)
}

type hostToken struct {
	host  string
	token string
}

func matchHostToken(host, defaultHost string, entries []hostToken) string {
	if host == "" {
		host = defaultHost
	}
	var fallback string
	for _, e := range entries {
		entryHost := e.host
		if entryHost == "" {
			entryHost = defaultHost
		}
		if strings.EqualFold(entryHost, host) {
			return e.token
		}
		if fallback == "" {
			fallback = e.token
		}
	}
	if strings.EqualFold(host, defaultHost) {
		return fallback
	}
	return ""
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultPort)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("scheduler.workers", 2)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.backoff_base", "30s")
	v.SetDefault("scheduler.backoff_max", "10m")
	v.SetDefault("scheduler.queue_poll", "2s")

	v.SetDefault("pipeline.clone_timeout", "120s")
	v.SetDefault("pipeline.extract_timeout", "60s")
	v.SetDefault("pipeline.generate_timeout", "300s")
	v.SetDefault("pipeline.short_circuit_unchanged", true)
	v.SetDefault("pipeline.workspace_dir", filepath.Join(os.TempDir(), "docsmith"))
	v.SetDefault("pipeline.max_repo_size_mb", 50)
	v.SetDefault("pipeline.max_files", 500)
	v.SetDefault("pipeline.max_file_size_mb", 1)

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.profile", "technical")

	v.SetDefault("webhooks.secret", "")
	v.SetDefault("webhooks.external_url", "")

	v.SetDefault("poll.enabled", true)
	v.SetDefault("poll.schedule", "*/30 * * * *")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Pipeline.WorkspaceDir = expandHome(cfg.Pipeline.WorkspaceDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
