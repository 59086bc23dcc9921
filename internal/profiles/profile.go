// Package profiles manages generation profiles — named sets of writing
// instructions that shape generated documentation for a specific audience
// (engineers, product stakeholders, etc.).
package profiles

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed defaults/*.md
var defaultsFS embed.FS

// Profile is a parsed generation profile.
type Profile struct {
	// Name is the machine-readable identifier (matches the filename without .md).
	Name string `yaml:"name"`
	// Version is a monotonically increasing integer for future compatibility.
	Version int `yaml:"version"`
	// Description is a one-line human-readable summary.
	Description string `yaml:"description"`
	// Audience names who the generated documents are written for.
	Audience string `yaml:"audience"`
	// Focus lists the content areas the profile emphasises
	// (e.g. "architecture", "features", "use-cases", "positioning").
	Focus []string `yaml:"focus"`
	// Tags are searchable labels for the profile.
	Tags []string `yaml:"tags"`
	// Body is the markdown content after the YAML frontmatter.
	// It is injected into the generation system prompt as writing guidance.
	Body string `yaml:"-"`
	// Bundled is true if this profile was loaded from the embedded defaults.
	Bundled bool `yaml:"-"`
}

// Load reads a profile by name from the user profile directory (falling back
// to bundled defaults). An empty name means "no profile" and returns nil, nil.
func Load(name, profilesDir string) (*Profile, error) {
	if name == "" {
		return nil, nil
	}

	if profilesDir != "" {
		path := filepath.Join(profilesDir, name+".md")
		if data, err := os.ReadFile(path); err == nil {
			p, err := parse(data, name)
			if err != nil {
				return nil, fmt.Errorf("profiles: parse %q: %w", path, err)
			}
			return p, nil
		}
	}

	data, err := defaultsFS.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("profiles: profile %q not found", name)
	}
	p, err := parse(data, name)
	if err != nil {
		return nil, fmt.Errorf("profiles: parse bundled %q: %w", name, err)
	}
	p.Bundled = true
	return p, nil
}

// List returns every available profile sorted by name: the bundled defaults
// merged with the user-defined ones from profilesDir, user profiles shadowing
// bundled ones of the same name. Malformed files are skipped with a warning.
func List(profilesDir string) []Profile {
	byName := make(map[string]Profile)
	collect(byName, defaultsFS, "defaults", true)
	if profilesDir != "" {
		collect(byName, os.DirFS(profilesDir), ".", false)
	}

	out := make([]Profile, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// collect parses every .md file under root in fsys into byName, overwriting
// entries collected earlier under the same name.
func collect(byName map[string]Profile, fsys fs.FS, root string, bundled bool) {
	_ = fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil
		}
		p, err := parse(data, strings.TrimSuffix(d.Name(), ".md"))
		if err != nil {
			slog.Warn("profiles: skipping malformed profile", "file", path, "error", err)
			return nil
		}
		p.Bundled = bundled
		byName[p.Name] = *p
		return nil
	})
}

// DefaultDir returns the default profiles directory: ~/.docsmith/profiles/.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docsmith", "profiles")
}

// Init creates the user profiles directory and copies any missing bundled
// profiles into it. Safe to call on every startup — skips files that already exist.
func Init(profilesDir string) error {
	if err := os.MkdirAll(profilesDir, 0o750); err != nil {
		return fmt.Errorf("profiles: create dir %s: %w", profilesDir, err)
	}

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return fmt.Errorf("profiles: reading embedded defaults: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		dest := filepath.Join(profilesDir, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			continue // already exists; don't overwrite user edits
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		if err := os.WriteFile(dest, data, 0o640); err != nil {
			slog.Warn("profiles: failed to write default profile", "file", dest, "error", err)
		}
	}
	return nil
}

// parse extracts YAML frontmatter and the markdown body from a profile file.
// name is used when the frontmatter does not set one.
func parse(data []byte, name string) (*Profile, error) {
	const delim = "---"

	data = bytes.TrimLeft(data, " \t\n\r")

	if !bytes.HasPrefix(data, []byte(delim)) {
		// No frontmatter — the whole file is writing guidance.
		return &Profile{Name: name, Body: strings.TrimSpace(string(data))}, nil
	}

	rest := bytes.TrimPrefix(data, []byte(delim))
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, fmt.Errorf("unterminated YAML frontmatter (missing closing ---)")
	}

	var p Profile
	if err := yaml.Unmarshal(rest[:idx], &p); err != nil {
		return nil, fmt.Errorf("invalid YAML frontmatter: %w", err)
	}
	if p.Name == "" {
		p.Name = name
	}
	p.Body = strings.TrimSpace(string(rest[idx+len("\n"+delim):]))
	return &p, nil
}

// SystemAddendum returns the profile body formatted as a system prompt
// addendum, or an empty string for an empty body.
func (p *Profile) SystemAddendum() string {
	if p == nil || strings.TrimSpace(p.Body) == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## ACTIVE WRITING PROFILE: " + p.Name + "\n")
	if p.Audience != "" {
		b.WriteString("Audience: " + p.Audience + "\n")
	}
	if len(p.Focus) > 0 {
		b.WriteString("Emphasise: " + strings.Join(p.Focus, ", ") + "\n")
	}
	b.WriteString("\n" + p.Body)
	return b.String()
}
