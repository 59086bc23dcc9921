package notify

import "context"

// Event types published by the pipeline.
const (
	EventDocsPublished  = "docs_published"
	EventAnalysisFailed = "analysis_failed"
	EventRepoAdded      = "repo_added"
)

// Event represents a notification event from docsmith.
type Event struct {
	Type     string // "docs_published" | "analysis_failed" | "repo_added" | "test"
	Title    string
	Body     string
	URL      string         // optional deep link (repository URL, docs export link)
	RepoName string         // repository display name, e.g. "widget-api"
	Metadata map[string]any // extra structured data
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
