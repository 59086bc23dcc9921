package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/analyzer"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/docsmithhq/docsmith-agent/models"
)

// Generator composes a full documentation bundle by sequencing prompts over
// an Engine: per-file summaries first, then features, use cases, executive
// summary, and marketing points, each building on the previous results.
type Generator struct {
	engine Engine
}

func NewGenerator(engine Engine) *Generator {
	return &Generator{engine: engine}
}

// Request carries everything the generator needs for one repository revision.
type Request struct {
	RepoName    string
	Description string
	Profile     *profiles.Profile
	Analysis    *analyzer.Analysis
}

// fileSummary pairs a key file with its model-written summary.
type fileSummary struct {
	Path     string
	Language string
	Summary  string
}

// digestFile is the trimmed per-file view sent to the feature extraction
// prompt. Full symbol lists would blow the prompt budget on large files.
type digestFile struct {
	Path      string   `json:"path"`
	Language  string   `json:"language"`
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
}

type analysisDigest struct {
	Files         []digestFile     `json:"files"`
	TechStack     models.TechStack `json:"tech_stack"`
	Integrations  []string         `json:"integrations"`
	EntryPoints   []string         `json:"entry_points,omitempty"`
	HasDockerfile bool             `json:"has_dockerfile,omitempty"`
	HasCI         bool             `json:"has_ci,omitempty"`
	Readme        string           `json:"readme,omitempty"`
}

// GenerateDocs runs the full prompt sequence and assembles the resulting
// DocContent. A failed file summary is logged and skipped; failures on the
// aggregate prompts abort generation.
func (g *Generator) GenerateDocs(ctx context.Context, req Request) (*models.DocContent, error) {
	if req.Analysis == nil {
		return nil, errors.New("ai: generation requires an analysis")
	}

	engine := WithProfile(g.engine, req.Profile)
	an := req.Analysis

	summaries := g.summarizeKeyFiles(ctx, engine, an)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features, err := g.extractFeatures(ctx, engine, an)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	slog.Info("ai: extracted features", "count", len(features))

	useCases, err := g.generateUseCases(ctx, engine, features, an.Stack.Languages)
	if err != nil {
		return nil, fmt.Errorf("generating use cases: %w", err)
	}
	slog.Info("ai: generated use cases", "count", len(useCases))

	executive, err := engine.Complete(ctx, executiveSummaryPrompt(req.RepoName, req.Description, an.Stack.Languages, features))
	if err != nil {
		return nil, fmt.Errorf("generating executive summary: %w", err)
	}
	executive = strings.TrimSpace(executive)
	slog.Info("ai: generated executive summary")

	marketing, err := g.generateMarketingPoints(ctx, engine, req.RepoName, features, an.Stack)
	if err != nil {
		return nil, fmt.Errorf("generating marketing points: %w", err)
	}
	slog.Info("ai: generated marketing points", "count", len(marketing))

	return &models.DocContent{
		ExecutiveSummary:    executive,
		ProductOverview:     productOverview(executive, features),
		KeyFeatures:         features,
		TechStack:           an.Stack,
		Architecture:        architectureNotes(summaries),
		ArchitectureDiagram: analyzer.Diagram(an.Stack, an.Integrations),
		UseCases:            useCases,
		Integrations:        an.Integrations,
		MarketingPoints:     marketing,
	}, nil
}

// summarizeKeyFiles asks the engine for a short summary of each key file.
// Individual failures are skipped so one unreadable file cannot sink the
// whole run; a missing engine fails fast instead of warning ten times.
func (g *Generator) summarizeKeyFiles(ctx context.Context, engine Engine, an *analyzer.Analysis) []fileSummary {
	summaries := make([]fileSummary, 0, len(an.KeyFiles))
	for _, f := range an.KeyFiles {
		if ctx.Err() != nil {
			return summaries
		}
		if f.Excerpt == "" {
			continue
		}

		text, err := engine.Complete(ctx, summarizeFilePrompt(f.Path, f.Language, f.Excerpt))
		if err != nil {
			if errors.Is(err, errNoAI) {
				return summaries
			}
			slog.Warn("ai: failed to summarize file", "path", f.Path, "error", err)
			continue
		}

		summaries = append(summaries, fileSummary{
			Path:     f.Path,
			Language: f.Language,
			Summary:  strings.TrimSpace(text),
		})
	}
	slog.Info("ai: summarized key files", "count", len(summaries))
	return summaries
}

func (g *Generator) extractFeatures(ctx context.Context, engine Engine, an *analyzer.Analysis) ([]string, error) {
	digest := analysisDigest{
		Files:         make([]digestFile, 0, len(an.KeyFiles)),
		TechStack:     an.Stack,
		Integrations:  an.Integrations,
		EntryPoints:   an.EntryPoints,
		HasDockerfile: an.HasDockerfile,
		HasCI:         an.HasCI,
		Readme:        truncate(an.Readme, 500),
	}
	for _, f := range an.KeyFiles {
		digest.Files = append(digest.Files, digestFile{
			Path:      f.Path,
			Language:  f.Language,
			Functions: firstN(f.Functions, 5),
			Classes:   firstN(f.Classes, 5),
		})
	}

	payload, err := json.Marshal(digest)
	if err != nil {
		return nil, err
	}

	resp, err := engine.Complete(ctx, extractFeaturesPrompt(string(payload)))
	if err != nil {
		return nil, err
	}
	return parseBulletList(resp), nil
}

func (g *Generator) generateUseCases(ctx context.Context, engine Engine, features, languages []string) ([]string, error) {
	resp, err := engine.Complete(ctx, useCasesPrompt(features, languages))
	if err != nil {
		return nil, err
	}
	return parseBulletList(resp), nil
}

func (g *Generator) generateMarketingPoints(ctx context.Context, engine Engine, name string, features []string, stack models.TechStack) ([]string, error) {
	stackJSON, err := json.Marshal(stack)
	if err != nil {
		return nil, err
	}
	resp, err := engine.Complete(ctx, marketingPointsPrompt(name, features, string(stackJSON)))
	if err != nil {
		return nil, err
	}
	return parseBulletList(resp), nil
}

// productOverview combines the executive summary with the top features into
// the capsule text shown on repository cards.
func productOverview(executive string, features []string) string {
	var b strings.Builder
	b.WriteString(executive)
	b.WriteString("\n\nKey Capabilities:\n")
	for i, f := range firstN(features, 5) {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + f)
	}
	return b.String()
}

// architectureNotes renders the key-file summaries as a component walkthrough.
func architectureNotes(summaries []fileSummary) string {
	if len(summaries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Key components:\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n- `%s` (%s): %s", s.Path, s.Language, s.Summary)
	}
	return b.String()
}
