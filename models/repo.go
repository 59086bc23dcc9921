package models

import "time"

// RepoStatus tracks where a repository currently sits in the analysis pipeline.
type RepoStatus string

const (
	RepoPending        RepoStatus = "pending"
	RepoCloning        RepoStatus = "cloning"
	RepoAnalyzing      RepoStatus = "analyzing"
	RepoGeneratingDocs RepoStatus = "generating_docs"
	RepoCompleted      RepoStatus = "completed"
	RepoFailed         RepoStatus = "failed"
)

func (s RepoStatus) String() string { return string(s) }

// Terminal reports whether the status ends a pipeline run. Both terminal
// states are re-entered through cloning when the next job starts.
func (s RepoStatus) Terminal() bool {
	return s == RepoCompleted || s == RepoFailed
}

// CanTransition reports whether moving from s to next is a legal step of the
// pipeline state machine. cloning may jump straight to completed when the
// resolved commit matches the last analyzed one (unchanged-head short-circuit).
func (s RepoStatus) CanTransition(next RepoStatus) bool {
	switch s {
	case RepoPending:
		return next == RepoCloning || next == RepoFailed
	case RepoCloning:
		return next == RepoAnalyzing || next == RepoCompleted || next == RepoFailed
	case RepoAnalyzing:
		return next == RepoGeneratingDocs || next == RepoFailed
	case RepoGeneratingDocs:
		return next == RepoCompleted || next == RepoFailed
	case RepoCompleted, RepoFailed:
		return next == RepoCloning
	default:
		return false
	}
}

// Repo is one tracked source repository and its pipeline state.
type Repo struct {
	ID                int64      `json:"id"                        db:"id"`
	URL               string     `json:"url"                       db:"url"`
	Name              string     `json:"name"                      db:"name"`
	Description       string     `json:"description"               db:"description"`
	Provider          string     `json:"provider"                  db:"provider"` // github | gitlab | ""
	DefaultBranch     string     `json:"default_branch"            db:"default_branch"`
	Status            RepoStatus `json:"status"                    db:"status"`
	MonitoringEnabled bool       `json:"monitoring_enabled"        db:"monitoring_enabled"`
	WebhookID         string     `json:"webhook_id,omitempty"      db:"webhook_id"`
	CredentialRef     string     `json:"credential_ref,omitempty"  db:"credential_ref"` // config key name, never the secret
	LastCommitHash    string     `json:"last_commit_hash"          db:"last_commit_hash"`
	LastAnalyzedAt    *time.Time `json:"last_analyzed_at"          db:"last_analyzed_at"`
	ErrorMsg          string     `json:"error_msg,omitempty"       db:"error_msg"`
	CreatedAt         time.Time  `json:"created_at"                db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"                db:"updated_at"`
}

// DisplayName returns the repository name, falling back to the URL until
// metadata has been hydrated by the first pipeline run.
func (r *Repo) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.URL
}
