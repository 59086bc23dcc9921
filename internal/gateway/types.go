package gateway

import "time"

// Schedule is a persisted cron entry that fires change-detection polls.
type Schedule struct {
	ID   int64  `db:"id"   json:"id"`
	Name string `db:"name" json:"name"`
	// Expr is a cron expression ("0 2 * * *"), "@every 6h", "@hourly", or "@daily".
	Expr string `db:"cron_expr" json:"expr"`
	// RepoScope is a JSON array of repository ids this schedule polls.
	// Empty means every monitored repository.
	RepoScope string     `db:"repo_scope"  json:"repo_scope,omitempty"`
	Enabled   bool       `db:"enabled"     json:"enabled"`
	LastRunAt *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	CreatedAt time.Time  `db:"created_at"  json:"created_at"`
}

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// PipelineStatus is a live snapshot of the gateway and pipeline state.
type PipelineStatus struct {
	Repos         int   `json:"repos"`
	Monitored     int   `json:"monitored"`
	DocVersions   int   `json:"doc_versions"`
	JobsPending   int   `json:"jobs_pending"`
	JobsRunning   int   `json:"jobs_running"`
	Paused        bool  `json:"paused"`
	Workers       int   `json:"workers"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// HeartbeatStatus is the coarse liveness signal served at /api/agent/health.
type HeartbeatStatus struct {
	Status         string `json:"status"` // "idle", "alive", "paused", "stuck"
	LastActivityAt string `json:"last_activity_at,omitempty"`
	ActiveJobs     int    `json:"active_jobs"`
	StuckForSecs   int64  `json:"stuck_for_secs,omitempty"`
	Message        string `json:"message"`
}

// countRow is a convenience struct for SELECT COUNT(*) AS n queries.
type countRow struct {
	N int `db:"n"`
}
