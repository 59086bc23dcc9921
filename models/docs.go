package models

import (
	"encoding/json"
	"time"
)

// TechStack is the detected technology breakdown of a repository.
type TechStack struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Databases  []string `json:"databases"`
}

// DocContent is the structured documentation produced by the generation
// engine for one repository revision.
type DocContent struct {
	ExecutiveSummary    string    `json:"executive_summary"`
	ProductOverview     string    `json:"product_overview"`
	KeyFeatures         []string  `json:"key_features"`
	TechStack           TechStack `json:"tech_stack"`
	Architecture        string    `json:"architecture"`
	ArchitectureDiagram string    `json:"architecture_diagram,omitempty"` // Mermaid source
	UseCases            []string  `json:"use_cases"`
	Integrations        []string  `json:"integrations"`
	MarketingPoints     []string  `json:"marketing_points"`
}

// DocVersion is one immutable documentation snapshot. Versions are numbered
// per repository starting at 1 and are never mutated after creation; they are
// removed only when the owning repository is deleted.
type DocVersion struct {
	ID          int64     `json:"id"                 db:"id"`
	RepoID      int64     `json:"repo_id"            db:"repo_id"`
	Version     int       `json:"version"            db:"version"`
	CommitHash  string    `json:"commit_hash"        db:"commit_hash"`
	ContentJSON string    `json:"-"                  db:"content"` // DocContent, serialized
	FileCount   int       `json:"file_count"         db:"file_count"`
	LinesOfCode int       `json:"lines_of_code"      db:"lines_of_code"`
	Profile     string    `json:"profile,omitempty"  db:"profile"` // generation profile name
	CreatedAt   time.Time `json:"created_at"         db:"created_at"`
}

// Content decodes the stored documentation content.
func (v *DocVersion) Content() (*DocContent, error) {
	var c DocContent
	if err := json.Unmarshal([]byte(v.ContentJSON), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetContent serializes c into the version record.
func (v *DocVersion) SetContent(c *DocContent) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	v.ContentJSON = string(data)
	return nil
}
