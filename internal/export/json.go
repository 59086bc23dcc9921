package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/docsmithhq/docsmith-agent/models"
)

// JSONRenderer emits a self-contained envelope: repository identity, version
// metadata, and the decoded documentation content. The envelope shape is part
// of the API contract; fields are only ever added.
type JSONRenderer struct{}

func (j *JSONRenderer) Format() string      { return "json" }
func (j *JSONRenderer) ContentType() string { return "application/json" }
func (j *JSONRenderer) FileExt() string     { return ".json" }

type jsonEnvelope struct {
	Repository    jsonRepo           `json:"repository"`
	Version       jsonVersion        `json:"version"`
	Documentation *models.DocContent `json:"documentation"`
}

type jsonRepo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Provider      string `json:"provider,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

type jsonVersion struct {
	Version     int       `json:"version"`
	CommitHash  string    `json:"commit_hash,omitempty"`
	Profile     string    `json:"profile,omitempty"`
	FileCount   int       `json:"file_count"`
	LinesOfCode int       `json:"lines_of_code"`
	CreatedAt   time.Time `json:"created_at"`
}

func (j *JSONRenderer) Render(repo *models.Repo, version *models.DocVersion) ([]byte, error) {
	content, err := version.Content()
	if err != nil {
		return nil, fmt.Errorf("decoding version %d content: %w", version.Version, err)
	}
	env := jsonEnvelope{
		Repository: jsonRepo{
			ID:            repo.ID,
			Name:          repo.Name,
			URL:           repo.URL,
			Provider:      repo.Provider,
			DefaultBranch: repo.DefaultBranch,
		},
		Version: jsonVersion{
			Version:     version.Version,
			CommitHash:  version.CommitHash,
			Profile:     version.Profile,
			FileCount:   version.FileCount,
			LinesOfCode: version.LinesOfCode,
			CreatedAt:   version.CreatedAt,
		},
		Documentation: content,
	}
	return json.MarshalIndent(env, "", "  ")
}
