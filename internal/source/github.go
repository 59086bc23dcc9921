package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements Provider for GitHub and GitHub Enterprise.
type GitHubProvider struct {
	client *gogithub.Client
	token  string
	host   string
}

// NewGitHub creates a GitHubProvider from the given configuration.
func NewGitHub(cfg config.GitHubConfig) (*GitHubProvider, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := gogithub.NewClient(tc)

	// Support GitHub Enterprise by overriding the base URL.
	if cfg.Host != "" && cfg.Host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", cfg.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", cfg.Host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}

	return &GitHubProvider{client: client, token: cfg.Token, host: cfg.Host}, nil
}

func (g *GitHubProvider) Name() string      { return "github" }
func (g *GitHubProvider) AuthToken() string { return g.token }

func (g *GitHubProvider) GetMeta(ctx context.Context, owner, name string) (*Meta, error) {
	r, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting GitHub repo %s/%s: %w", owner, name, err)
	}
	return convertGitHubRepo(r), nil
}

func (g *GitHubProvider) HeadCommit(ctx context.Context, owner, name, branch string) (string, error) {
	commits, _, err := g.client.Repositories.ListCommits(ctx, owner, name, &gogithub.CommitsListOptions{
		SHA:         branch,
		ListOptions: gogithub.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("querying head of %s/%s@%s: %w", owner, name, branch, err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("branch %s of %s/%s has no commits", branch, owner, name)
	}
	return commits[0].GetSHA(), nil
}

func (g *GitHubProvider) ListRepos(ctx context.Context, owner string) ([]Meta, error) {
	ghRepos, _, err := g.client.Repositories.List(ctx, owner, &gogithub.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("listing GitHub repos: %w", err)
	}
	out := make([]Meta, 0, len(ghRepos))
	for _, r := range ghRepos {
		out = append(out, *convertGitHubRepo(r))
	}
	return out, nil
}

func convertGitHubRepo(r *gogithub.Repository) *Meta {
	return &Meta{
		Name:          r.GetName(),
		Owner:         r.GetOwner().GetLogin(),
		URL:           r.GetCloneURL(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Stars:         r.GetStargazersCount(),
	}
}

func (g *GitHubProvider) RegisterWebhook(ctx context.Context, owner, name, hookURL, secret string) (string, error) {
	hook := &gogithub.Hook{
		Events: []string{"push"},
		Active: gogithub.Ptr(true),
		Config: &gogithub.HookConfig{
			URL:         gogithub.Ptr(hookURL),
			ContentType: gogithub.Ptr("json"),
			Secret:      gogithub.Ptr(secret),
		},
	}
	created, _, err := g.client.Repositories.CreateHook(ctx, owner, name, hook)
	if err != nil {
		return "", fmt.Errorf("creating webhook on %s/%s: %w", owner, name, err)
	}
	return strconv.FormatInt(created.GetID(), 10), nil
}

func (g *GitHubProvider) UnregisterWebhook(ctx context.Context, owner, name, hookID string) error {
	id, err := strconv.ParseInt(hookID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad webhook id %q: %w", hookID, err)
	}
	if _, err := g.client.Repositories.DeleteHook(ctx, owner, name, id); err != nil {
		return fmt.Errorf("deleting webhook %d on %s/%s: %w", id, owner, name, err)
	}
	return nil
}
