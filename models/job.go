package models

import (
	"encoding/json"
	"time"
)

// JobStatus tracks the lifecycle of a monitoring job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

// Active reports whether the job still occupies its repository's slot in the
// one-running-job-per-repo sense.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobRunning
}

// TriggerType records what caused a job to be created.
type TriggerType string

const (
	TriggerWebhook TriggerType = "webhook"
	TriggerManual  TriggerType = "manual"
	TriggerPoll    TriggerType = "poll"
)

// ChangeSummary describes what moved between the previously analyzed revision
// and the one a job will process. Used for audit and display only; the
// pipeline never branches on it.
type ChangeSummary struct {
	FromCommit    string   `json:"from_commit,omitempty"`
	ToCommit      string   `json:"to_commit"`
	CommitCount   int      `json:"commit_count,omitempty"`
	FilesAdded    int      `json:"files_added,omitempty"`
	FilesModified int      `json:"files_modified,omitempty"`
	FilesRemoved  int      `json:"files_removed,omitempty"`
	SamplePaths   []string `json:"sample_paths,omitempty"` // capped, for display
}

// Job is one attempt to detect-and-apply a repository update.
type Job struct {
	ID          int64       `json:"id"                     db:"id"`
	RepoID      int64       `json:"repo_id"                db:"repo_id"`
	Status      JobStatus   `json:"status"                 db:"status"`
	Trigger     TriggerType `json:"trigger"                db:"trigger_type"`
	ChangesJSON string      `json:"-"                      db:"changes"` // ChangeSummary, serialized
	ErrorMsg    string      `json:"error_msg,omitempty"    db:"error_msg"`
	RetryCount  int         `json:"retry_count"            db:"retry_count"`
	NotBefore   *time.Time  `json:"not_before,omitempty"   db:"not_before"` // backoff gate for retried jobs
	StartedAt   *time.Time  `json:"started_at"             db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"           db:"completed_at"`
	CreatedAt   time.Time   `json:"created_at"             db:"created_at"`
}

// Changes decodes the stored change summary, or returns nil when none was
// recorded.
func (j *Job) Changes() *ChangeSummary {
	if j.ChangesJSON == "" {
		return nil
	}
	var cs ChangeSummary
	if err := json.Unmarshal([]byte(j.ChangesJSON), &cs); err != nil {
		return nil
	}
	return &cs
}

// SetChanges serializes cs into the job. A nil summary clears it.
func (j *Job) SetChanges(cs *ChangeSummary) error {
	if cs == nil {
		j.ChangesJSON = ""
		return nil
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	j.ChangesJSON = string(data)
	return nil
}
