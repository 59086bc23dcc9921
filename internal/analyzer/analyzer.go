// Package analyzer extracts structured facts from a checked-out repository
// tree: which source files exist, their symbols and rough complexity, the
// technology stack, and a content digest per file for change tracking
// between runs. It never talks to the network or the database.
package analyzer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/models"
)

const (
	// keyFileLimit bounds how many files feed the generation prompts.
	keyFileLimit = 10
	// excerptLimit caps the source excerpt attached to each key file.
	excerptLimit = 3000
	// readmeLimit caps the README excerpt.
	readmeLimit = 2000
)

// FileFacts holds what the analyzer learned about a single source file.
type FileFacts struct {
	// Path is relative to the repository root, slash-separated.
	Path       string   `json:"path"`
	Language   string   `json:"language"`
	Functions  []string `json:"functions,omitempty"`
	Classes    []string `json:"classes,omitempty"`
	Imports    []string `json:"imports,omitempty"`
	Complexity int      `json:"complexity"`
	Lines      int      `json:"lines"`
	Size       int64    `json:"size"`
	// Digest is the hex SHA-256 of the file content.
	Digest string `json:"digest"`
	// Excerpt is populated for key files only and feeds generation prompts.
	Excerpt string `json:"-"`
}

// Analysis aggregates the facts for one repository revision.
type Analysis struct {
	Files []*FileFacts
	// KeyFiles are the files ranked most worth documenting, most complex
	// first. Each carries a source excerpt.
	KeyFiles     []*FileFacts
	Stack        models.TechStack
	Integrations []string
	TotalLines   int
	// SkippedFiles counts files dropped by the size and count limits.
	SkippedFiles int
	// Readme is an excerpt of the repository README, if one exists.
	Readme string
	// EntryPoints lists files where execution starts (main.go, app.py, ...).
	EntryPoints []string
	// HasDockerfile and HasCI flag container and CI configuration at the root.
	HasDockerfile bool
	HasCI         bool
}

// FileCount returns how many files were analyzed.
func (a *Analysis) FileCount() int { return len(a.Files) }

// Digests returns the path -> SHA-256 map used for snapshot diffing.
func (a *Analysis) Digests() map[string]string {
	out := make(map[string]string, len(a.Files))
	for _, f := range a.Files {
		out[f.Path] = f.Digest
	}
	return out
}

// Analyzer walks a repository tree and extracts facts within the configured
// size limits.
type Analyzer struct {
	maxFiles    int
	maxFileSize int64
	maxRepoSize int64
}

// New creates an Analyzer from the pipeline limits. Zero values fall back to
// the defaults (500 files, 1 MB per file, 50 MB per repository).
func New(cfg config.PipelineConfig) *Analyzer {
	a := &Analyzer{
		maxFiles:    cfg.MaxFiles,
		maxFileSize: int64(cfg.MaxFileSizeMB) << 20,
		maxRepoSize: int64(cfg.MaxRepoSizeMB) << 20,
	}
	if a.maxFiles <= 0 {
		a.maxFiles = 500
	}
	if a.maxFileSize <= 0 {
		a.maxFileSize = 1 << 20
	}
	if a.maxRepoSize <= 0 {
		a.maxRepoSize = 50 << 20
	}
	return a
}

// Analyze extracts facts from the checkout at dir.
func (a *Analyzer) Analyze(ctx context.Context, dir string) (*Analysis, error) {
	files, skipped, err := a.collect(ctx, dir)
	if err != nil {
		return nil, err
	}

	res := &Analysis{SkippedFiles: skipped}
	var imports []string
	for _, cf := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		facts, err := parseFile(cf)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", cf.rel, "error", err)
			res.SkippedFiles++
			continue
		}
		res.Files = append(res.Files, facts)
		res.TotalLines += facts.Lines
		imports = append(imports, facts.Imports...)
	}

	res.Stack = categorizeStack(res.Files, imports)
	res.Integrations = identifyIntegrations(imports)
	res.KeyFiles = selectKeyFiles(res.Files, keyFileLimit)
	for _, kf := range res.KeyFiles {
		kf.Excerpt = readExcerpt(filepath.Join(dir, filepath.FromSlash(kf.Path)), excerptLimit)
	}
	res.Readme = readReadme(dir)
	res.EntryPoints = findEntryPoints(res.Files)
	res.HasDockerfile, res.HasCI = detectInfra(dir)

	slog.Info("Repository analyzed",
		"files", len(res.Files),
		"lines", res.TotalLines,
		"languages", strings.Join(res.Stack.Languages, ","),
		"skipped", res.SkippedFiles,
	)
	return res, nil
}

// selectKeyFiles ranks files by complexity, then by line count, and keeps the
// top entries. Entry points and dense modules surface first, which is what
// the generation prompts want to see.
func selectKeyFiles(files []*FileFacts, limit int) []*FileFacts {
	ranked := make([]*FileFacts, len(files))
	copy(ranked, files)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Complexity != ranked[j].Complexity {
			return ranked[i].Complexity > ranked[j].Complexity
		}
		return ranked[i].Lines > ranked[j].Lines
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// readExcerpt returns up to limit bytes of the file, trimmed to a valid
// UTF-8 boundary. Missing or unreadable files yield "".
func readExcerpt(path string, limit int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > limit {
		s = strings.ToValidUTF8(s[:limit], "")
	}
	return s
}

var readmeNames = []string{"README.md", "README.rst", "README.txt", "README", "readme.md"}

func readReadme(dir string) string {
	for _, name := range readmeNames {
		if s := readExcerpt(filepath.Join(dir, name), readmeLimit); s != "" {
			return s
		}
	}
	return ""
}

// detectInfra checks the repository root for container and CI configuration.
// The walker never sees these files (no source extension), so they are probed
// directly.
func detectInfra(dir string) (docker, ci bool) {
	for _, name := range []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml", "compose.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			docker = true
			break
		}
	}
	for _, name := range []string{
		filepath.Join(".github", "workflows"),
		".gitlab-ci.yml",
		"Jenkinsfile",
		filepath.Join(".circleci", "config.yml"),
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			ci = true
			break
		}
	}
	return docker, ci
}
