// Package source talks to git hosting platforms. It resolves repository
// metadata, manages push webhooks, and clones working copies for analysis.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// Meta is the hosting platform's view of a repository.
type Meta struct {
	Name          string
	Owner         string
	URL           string // HTTPS clone URL
	Description   string
	DefaultBranch string
	Private       bool
	Stars         int
}

// Provider abstracts the metadata and webhook API of a hosting platform.
// Implementations: GitHub, GitLab.
type Provider interface {
	// Name identifies the provider ("github" or "gitlab").
	Name() string

	// GetMeta returns metadata for owner/name.
	GetMeta(ctx context.Context, owner, name string) (*Meta, error)

	// HeadCommit returns the SHA of the newest commit on branch.
	HeadCommit(ctx context.Context, owner, name, branch string) (string, error)

	// ListRepos returns repositories visible to the credential, newest-updated
	// first, one page of up to 100. A non-empty owner narrows the listing to
	// that user or organisation where the platform supports it.
	ListRepos(ctx context.Context, owner string) ([]Meta, error)

	// RegisterWebhook creates a push webhook pointing at hookURL and returns
	// the provider-side hook ID.
	RegisterWebhook(ctx context.Context, owner, name, hookURL, secret string) (string, error)

	// UnregisterWebhook removes a webhook created by RegisterWebhook.
	UnregisterWebhook(ctx context.Context, owner, name, hookID string) error

	// AuthToken returns the credential used for git clone. Callers must keep
	// it out of logs and persisted records.
	AuthToken() string
}

// DetectProvider infers the hosting platform from a repository URL.
func DetectProvider(repoURL string) (string, error) {
	lower := strings.ToLower(repoURL)
	switch {
	case strings.Contains(lower, "github.com"):
		return "github", nil
	case strings.Contains(lower, "gitlab.com") || strings.Contains(lower, "gitlab."):
		return "gitlab", nil
	default:
		// Common enterprise patterns.
		if strings.Contains(lower, "github.") {
			return "github", nil
		}
		return "", fmt.Errorf("cannot detect provider from URL %q; set one when adding the repository", repoURL)
	}
}

// TokenForProvider returns the first configured token for the provider, or "".
func TokenForProvider(cfg *config.Config, provider string) string {
	switch provider {
	case "github":
		for _, g := range cfg.Git.GitHub {
			if g.Token != "" {
				return g.Token
			}
		}
	case "gitlab":
		for _, g := range cfg.Git.GitLab {
			if g.Token != "" {
				return g.Token
			}
		}
	}
	return ""
}

// TokenForURL resolves the clone credential for a repository URL. Unknown
// hosts clone anonymously.
func TokenForURL(cfg *config.Config, repoURL string) string {
	provider, err := DetectProvider(repoURL)
	if err != nil {
		return ""
	}
	return TokenForProvider(cfg, provider)
}

// New returns the appropriate Provider for the given platform.
func New(provider string, cfg *config.Config) (Provider, error) {
	switch provider {
	case "github":
		if len(cfg.Git.GitHub) == 0 || cfg.Git.GitHub[0].Token == "" {
			return nil, fmt.Errorf("no GitHub token configured; run 'docsmith init'")
		}
		return NewGitHub(cfg.Git.GitHub[0])
	case "gitlab":
		if len(cfg.Git.GitLab) == 0 || cfg.Git.GitLab[0].Token == "" {
			return nil, fmt.Errorf("no GitLab token configured; run 'docsmith init'")
		}
		return NewGitLab(cfg.Git.GitLab[0])
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// ParseOwnerRepo extracts the owner and repository name from a git URL.
// Supports HTTPS (https://github.com/owner/repo.git) and SSH
// (git@github.com:owner/repo.git).
func ParseOwnerRepo(repoURL string) (owner, repo string) {
	u := strings.TrimSuffix(repoURL, ".git")
	u = strings.TrimSuffix(u, "/")

	if strings.Contains(u, "://") {
		parts := strings.Split(u, "/")
		if len(parts) >= 2 {
			repo = parts[len(parts)-1]
			owner = parts[len(parts)-2]
			return
		}
	}

	// SSH format: git@github.com:owner/repo
	if idx := strings.Index(u, ":"); idx != -1 {
		path := u[idx+1:]
		parts := strings.SplitN(path, "/", 2)
		if len(parts) == 2 {
			owner = parts[0]
			repo = parts[1]
			return
		}
	}

	return "", u
}
