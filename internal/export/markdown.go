package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/docsmithhq/docsmith-agent/models"
)

// MarkdownRenderer produces a standalone markdown document from a stored
// version: header with version metadata, the generated sections in reading
// order, a tech-stack table, and the architecture diagram in a mermaid fence.
type MarkdownRenderer struct{}

func (m *MarkdownRenderer) Format() string      { return "markdown" }
func (m *MarkdownRenderer) ContentType() string { return "text/markdown; charset=utf-8" }
func (m *MarkdownRenderer) FileExt() string     { return ".md" }

func (m *MarkdownRenderer) Render(repo *models.Repo, version *models.DocVersion) ([]byte, error) {
	content, err := version.Content()
	if err != nil {
		return nil, fmt.Errorf("decoding version %d content: %w", version.Version, err)
	}

	var b strings.Builder

	title := repo.Name
	if title == "" {
		title = fmt.Sprintf("repository %d", repo.ID)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	badges := []string{fmt.Sprintf("**Version %d**", version.Version)}
	if version.CommitHash != "" {
		badges = append(badges, fmt.Sprintf("commit `%s`", shortHash(version.CommitHash)))
	}
	if !version.CreatedAt.IsZero() {
		badges = append(badges, version.CreatedAt.UTC().Format(time.DateOnly))
	}
	if version.Profile != "" {
		badges = append(badges, fmt.Sprintf("profile: %s", version.Profile))
	}
	if version.FileCount > 0 {
		badges = append(badges, fmt.Sprintf("%d files", version.FileCount))
	}
	if version.LinesOfCode > 0 {
		badges = append(badges, fmt.Sprintf("%s lines", groupDigits(version.LinesOfCode)))
	}
	fmt.Fprintf(&b, "> %s\n\n", strings.Join(badges, " · "))

	if repo.URL != "" {
		fmt.Fprintf(&b, "Source: <%s>\n\n", repo.URL)
	}

	section(&b, "Executive Summary", content.ExecutiveSummary)
	section(&b, "Product Overview", content.ProductOverview)
	bulletSection(&b, "Key Features", content.KeyFeatures)

	if hasStack(content.TechStack) {
		b.WriteString("## Technology Stack\n\n")
		b.WriteString("| Category | Technologies |\n|---|---|\n")
		stackRow(&b, "Languages", content.TechStack.Languages)
		stackRow(&b, "Frameworks", content.TechStack.Frameworks)
		stackRow(&b, "Databases", content.TechStack.Databases)
		b.WriteString("\n")
	}

	if content.Architecture != "" || content.ArchitectureDiagram != "" {
		b.WriteString("## Architecture\n\n")
		if content.Architecture != "" {
			b.WriteString(strings.TrimSpace(content.Architecture))
			b.WriteString("\n\n")
		}
		if content.ArchitectureDiagram != "" {
			b.WriteString("```mermaid\n")
			b.WriteString(strings.TrimSpace(content.ArchitectureDiagram))
			b.WriteString("\n```\n\n")
		}
	}

	bulletSection(&b, "Use Cases", content.UseCases)
	bulletSection(&b, "Integrations", content.Integrations)
	bulletSection(&b, "Highlights", content.MarketingPoints)

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "_Generated by docsmith")
	if version.CommitHash != "" {
		fmt.Fprintf(&b, " from commit `%s`", shortHash(version.CommitHash))
	}
	b.WriteString("._\n")

	return []byte(b.String()), nil
}

func section(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", heading, body)
}

func bulletSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", strings.TrimSpace(item))
	}
	b.WriteString("\n")
}

func stackRow(b *strings.Builder, category string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", category, strings.Join(items, ", "))
}

func hasStack(s models.TechStack) bool {
	return len(s.Languages) > 0 || len(s.Frameworks) > 0 || len(s.Databases) > 0
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// groupDigits formats n with thousands separators, e.g. 12345 -> "12,345".
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
