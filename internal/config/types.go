package config

import "time"

// Config is the root configuration structure for docsmith.
// Serialised to ~/.docsmith/config.json.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    json:"server"`
	Database  DatabaseConfig  `mapstructure:"database"  json:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  json:"pipeline"`
	AI        AIConfig        `mapstructure:"ai"        json:"ai"`
	Git       GitConfig       `mapstructure:"git"       json:"git"`
	Webhooks  WebhookConfig   `mapstructure:"webhooks"  json:"webhooks"`
	Notify    NotifyConfig    `mapstructure:"notify"    json:"notify"`
	Poll      PollConfig      `mapstructure:"poll"      json:"poll"`
}

// ServerConfig controls the gateway HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	// Port is the HTTP port the gateway listens on (default: 8844).
	Port int `mapstructure:"port" json:"port"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default), "mysql", or "postgres".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL/Postgres data source name (used for those drivers).
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// SchedulerConfig controls the monitoring-job queue and its workers.
type SchedulerConfig struct {
	// Workers is the number of parallel pipeline workers.
	Workers int `mapstructure:"workers" json:"workers"`
	// MaxRetries bounds automatic resubmission of a failed job.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
	// BackoffBase is the first retry delay; doubled per retry up to BackoffMax.
	BackoffBase time.Duration `mapstructure:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"  json:"backoff_max"`
	// QueuePoll is how often idle workers re-check the queue.
	QueuePoll time.Duration `mapstructure:"queue_poll" json:"queue_poll"`
}

// PipelineConfig controls one analysis run.
type PipelineConfig struct {
	CloneTimeout    time.Duration `mapstructure:"clone_timeout"    json:"clone_timeout"`
	ExtractTimeout  time.Duration `mapstructure:"extract_timeout"  json:"extract_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" json:"generate_timeout"`
	// ShortCircuitUnchanged skips regeneration when a poll-triggered run
	// resolves the same commit that was last analyzed. Manual triggers always
	// run the full pipeline.
	ShortCircuitUnchanged bool `mapstructure:"short_circuit_unchanged" json:"short_circuit_unchanged"`
	// WorkspaceDir is where clone workspaces are created (default: os temp).
	WorkspaceDir string `mapstructure:"workspace_dir" json:"workspace_dir"`
	// MaxRepoSizeMB aborts analysis of oversized checkouts.
	MaxRepoSizeMB int `mapstructure:"max_repo_size_mb" json:"max_repo_size_mb"`
	// MaxFiles caps how many files the analyzer retains.
	MaxFiles int `mapstructure:"max_files" json:"max_files"`
	// MaxFileSizeMB skips individual files larger than this.
	MaxFileSizeMB int `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`
}

// AIConfig controls the generation engine used to produce documentation.
type AIConfig struct {
	// Provider is "openai", "anthropic", "ollama", "noop", or "" (chain:
	// first available wins).
	Provider string `mapstructure:"provider" json:"provider"`
	// APIKey authenticates OpenAI-compatible endpoints (OpenAI, Groq, ...).
	APIKey string `mapstructure:"api_key" json:"api_key"`
	// AnthropicKey authenticates the Anthropic API.
	AnthropicKey string `mapstructure:"anthropic_key" json:"anthropic_key"`
	Model        string `mapstructure:"model" json:"model"`
	// BaseURL overrides the OpenAI-compatible endpoint (Groq, LM Studio, proxies).
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// OllamaURL is used when Provider == "ollama".
	OllamaURL string `mapstructure:"ollama_url" json:"ollama_url"`
	// Profile selects the generation profile (see internal/profiles).
	Profile string `mapstructure:"profile" json:"profile"`
}

// GitConfig holds credentials for each supported git hosting platform.
type GitConfig struct {
	GitHub []GitHubConfig `mapstructure:"github" json:"github"`
	GitLab []GitLabConfig `mapstructure:"gitlab" json:"gitlab"`
}

// GitHubConfig holds credentials for a single GitHub instance.
type GitHubConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host"  json:"host"`
}

// GitLabConfig holds credentials for a single GitLab instance.
type GitLabConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Host  string `mapstructure:"host"  json:"host"`
}

// WebhookConfig controls inbound webhook verification and registration.
type WebhookConfig struct {
	// Secret verifies inbound push events (GitHub HMAC, GitLab token header).
	// Empty disables verification (logged as a warning).
	Secret string `mapstructure:"secret" json:"secret"`
	// ExternalURL is the public base URL registered with forges, e.g.
	// https://docs.example.com — the forge-specific path is appended.
	ExternalURL string `mapstructure:"external_url" json:"external_url"`
}

// NotifyConfig controls outbound notifications for pipeline events.
type NotifyConfig struct {
	// Events filters which event types are sent; empty uses the defaults.
	Events   []string             `mapstructure:"events"   json:"events"`
	Slack    SlackNotifyConfig    `mapstructure:"slack"    json:"slack"`
	Telegram TelegramNotifyConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailNotifyConfig    `mapstructure:"email"    json:"email"`
	Webhook  WebhookNotifyConfig  `mapstructure:"webhook"  json:"webhook"`
}

// SlackNotifyConfig sends events to a Slack incoming webhook.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// TelegramNotifyConfig sends events via a Telegram bot.
type TelegramNotifyConfig struct {
	Token  string `mapstructure:"token"   json:"token"`
	ChatID string `mapstructure:"chat_id" json:"chat_id"`
}

// EmailNotifyConfig sends events over SMTP.
type EmailNotifyConfig struct {
	SMTPHost string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" json:"smtp_port"`
	Username string `mapstructure:"username"  json:"username"`
	Password string `mapstructure:"password"  json:"password"`
	From     string `mapstructure:"from"      json:"from"`
	To       string `mapstructure:"to"        json:"to"`
	// UseTLS dials implicit TLS (port 465 style) instead of STARTTLS.
	UseTLS bool `mapstructure:"use_tls" json:"use_tls"`
}

// WebhookNotifyConfig POSTs events as JSON to an arbitrary URL.
type WebhookNotifyConfig struct {
	URL string `mapstructure:"url" json:"url"`
	// Secret, when set, signs the payload with HMAC-SHA256 in the
	// X-Docsmith-Signature header.
	Secret string `mapstructure:"secret" json:"secret"`
}

// PollConfig controls the built-in change-detection schedule.
type PollConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Schedule is a cron expression evaluated by the gateway's scheduler.
	Schedule string `mapstructure:"schedule" json:"schedule"`
}
