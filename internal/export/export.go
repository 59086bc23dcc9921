// Package export renders stored documentation versions into portable formats.
package export

import (
	"fmt"

	"github.com/docsmithhq/docsmith-agent/models"
)

// Renderer converts one documentation version into a single output document.
type Renderer interface {
	// Format returns the format key used in API queries and CLI flags.
	Format() string

	// ContentType is the MIME type for HTTP responses.
	ContentType() string

	// FileExt is the suggested file extension, with leading dot.
	FileExt() string

	// Render produces the document. repo supplies identity metadata only;
	// the content comes from the stored version.
	Render(repo *models.Repo, version *models.DocVersion) ([]byte, error)
}

// For returns the renderer for a format key.
func For(format string) (Renderer, error) {
	switch format {
	case "markdown", "md", "":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: markdown, json)", format)
	}
}

// Formats lists the supported format keys.
func Formats() []string { return []string{"markdown", "json"} }

// Render is a convenience wrapper resolving the renderer and producing output.
func Render(format string, repo *models.Repo, version *models.DocVersion) ([]byte, string, error) {
	r, err := For(format)
	if err != nil {
		return nil, "", err
	}
	out, err := r.Render(repo, version)
	if err != nil {
		return nil, "", err
	}
	return out, r.ContentType(), nil
}
