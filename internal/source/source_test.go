package source

import (
	"errors"
	"strings"
	"testing"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

func TestDetectProvider(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widget-api.git", "github"},
		{"git@github.com:acme/widget-api.git", "github"},
		{"https://gitlab.com/acme/widget-api", "gitlab"},
		{"https://gitlab.mycompany.io/acme/widget-api", "gitlab"},
		{"https://github.mycompany.io/acme/widget-api", "github"},
	}
	for _, tc := range cases {
		got, err := DetectProvider(tc.url)
		if err != nil {
			t.Errorf("DetectProvider(%s): %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DetectProvider(%s) = %s, want %s", tc.url, got, tc.want)
		}
	}

	if _, err := DetectProvider("https://code.example.org/acme/widget"); err == nil {
		t.Error("DetectProvider accepted unknown host")
	}
}

func TestParseOwnerRepo(t *testing.T) {
	cases := []struct {
		url   string
		owner string
		repo  string
	}{
		{"https://github.com/acme/widget-api.git", "acme", "widget-api"},
		{"https://gitlab.com/acme/widget-api", "acme", "widget-api"},
		{"https://github.com/acme/widget-api/", "acme", "widget-api"},
		{"git@github.com:acme/widget-api.git", "acme", "widget-api"},
	}
	for _, tc := range cases {
		owner, repo := ParseOwnerRepo(tc.url)
		if owner != tc.owner || repo != tc.repo {
			t.Errorf("ParseOwnerRepo(%s) = %s, %s; want %s, %s",
				tc.url, owner, repo, tc.owner, tc.repo)
		}
	}
}

func TestTokenForURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Git.GitHub = []config.GitHubConfig{{Token: "ghp_test"}}
	cfg.Git.GitLab = []config.GitLabConfig{{Token: "glpat_test"}}

	if got := TokenForURL(cfg, "https://github.com/acme/widget-api"); got != "ghp_test" {
		t.Errorf("github token = %q", got)
	}
	if got := TokenForURL(cfg, "https://gitlab.com/acme/widget-api"); got != "glpat_test" {
		t.Errorf("gitlab token = %q", got)
	}
	if got := TokenForURL(cfg, "https://code.example.org/acme/widget"); got != "" {
		t.Errorf("unknown host token = %q, want empty", got)
	}
}

func TestClassifyCloneErr(t *testing.T) {
	err := classifyCloneErr("https://github.com/acme/private", errors.New("authentication required"))
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("auth failure not classified: %v", err)
	}

	err = classifyCloneErr("https://github.com/acme/widget", errors.New("couldn't find remote ref refs/heads/nope"))
	if !errors.Is(err, ErrBranchNotFound) {
		t.Errorf("missing branch not classified: %v", err)
	}

	err = classifyCloneErr("https://github.com/acme/widget", errors.New("dial tcp: connection refused"))
	if errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrBranchNotFound) {
		t.Errorf("network failure over-classified: %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("cause lost: %v", err)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("github", &config.Config{}); err == nil {
		t.Error("New(github) succeeded without token")
	}
	if _, err := New("bitbucket", &config.Config{}); err == nil {
		t.Error("New accepted unsupported provider")
	}

	cfg := &config.Config{}
	cfg.Git.GitHub = []config.GitHubConfig{{Token: "ghp_test"}}
	p, err := New("github", cfg)
	if err != nil {
		t.Fatalf("New(github): %v", err)
	}
	if p.Name() != "github" || p.AuthToken() != "ghp_test" {
		t.Errorf("provider = %s token set %v", p.Name(), p.AuthToken() != "")
	}
}
