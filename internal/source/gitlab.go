package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabProvider implements Provider for GitLab (cloud and self-hosted).
type GitLabProvider struct {
	client *gitlab.Client
	token  string
	host   string
}

// NewGitLab creates a GitLabProvider from the given configuration.
func NewGitLab(cfg config.GitLabConfig) (*GitLabProvider, error) {
	opts := []gitlab.ClientOptionFunc{}
	if cfg.Host != "" && cfg.Host != "gitlab.com" {
		base := fmt.Sprintf("https://%s/api/v4/", cfg.Host)
		opts = append(opts, gitlab.WithBaseURL(base))
	}

	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}

	return &GitLabProvider{client: client, token: cfg.Token, host: cfg.Host}, nil
}

func (g *GitLabProvider) Name() string      { return "gitlab" }
func (g *GitLabProvider) AuthToken() string { return g.token }

func (g *GitLabProvider) GetMeta(ctx context.Context, owner, name string) (*Meta, error) {
	nameWithNS := owner + "/" + name
	proj, _, err := g.client.Projects.GetProject(nameWithNS, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting GitLab project %s: %w", nameWithNS, err)
	}
	return convertGitLabProject(proj), nil
}

func (g *GitLabProvider) HeadCommit(ctx context.Context, owner, name, branch string) (string, error) {
	nameWithNS := owner + "/" + name
	br, _, err := g.client.Branches.GetBranch(nameWithNS, branch, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("querying head of %s@%s: %w", nameWithNS, branch, err)
	}
	if br.Commit == nil {
		return "", fmt.Errorf("branch %s of %s has no commits", branch, nameWithNS)
	}
	return br.Commit.ID, nil
}

// ListRepos lists projects owned by the token holder. GitLab has no direct
// owner filter on this endpoint, so a non-empty owner is applied as a search
// term instead.
func (g *GitLabProvider) ListRepos(ctx context.Context, owner string) ([]Meta, error) {
	owned := true
	opts := &gitlab.ListProjectsOptions{
		Owned:       &owned,
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if owner != "" {
		opts.Search = &owner
	}
	projects, _, err := g.client.Projects.ListProjects(opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing GitLab projects: %w", err)
	}
	out := make([]Meta, 0, len(projects))
	for _, proj := range projects {
		out = append(out, *convertGitLabProject(proj))
	}
	return out, nil
}

func convertGitLabProject(proj *gitlab.Project) *Meta {
	owner := ""
	if idx := strings.LastIndex(proj.PathWithNamespace, "/"); idx > 0 {
		owner = proj.PathWithNamespace[:idx]
	}
	return &Meta{
		Name:          proj.Path,
		Owner:         owner,
		URL:           proj.HTTPURLToRepo,
		Description:   proj.Description,
		DefaultBranch: proj.DefaultBranch,
		Private:       proj.Visibility == gitlab.PrivateVisibility,
		Stars:         int(proj.StarCount),
	}
}

func (g *GitLabProvider) RegisterWebhook(ctx context.Context, owner, name, hookURL, secret string) (string, error) {
	nameWithNS := owner + "/" + name
	push := true
	hook, _, err := g.client.Projects.AddProjectHook(nameWithNS, &gitlab.AddProjectHookOptions{
		URL:        &hookURL,
		PushEvents: &push,
		Token:      &secret,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating webhook on %s: %w", nameWithNS, err)
	}
	return strconv.FormatInt(int64(hook.ID), 10), nil
}

func (g *GitLabProvider) UnregisterWebhook(ctx context.Context, owner, name, hookID string) error {
	id, err := strconv.ParseInt(hookID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad webhook id %q: %w", hookID, err)
	}
	nameWithNS := owner + "/" + name
	if _, err := g.client.Projects.DeleteProjectHook(nameWithNS, id, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting webhook %d on %s: %w", id, nameWithNS, err)
	}
	return nil
}
