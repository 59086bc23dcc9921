package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Classification sentinels for clone failures. Callers pick a failure class
// with errors.Is instead of depending on go-git internals.
var (
	ErrAuthRequired   = errors.New("authentication required")
	ErrBranchNotFound = errors.New("branch not found")
)

// Checkout describes a completed shallow clone.
type Checkout struct {
	Dir    string
	Owner  string
	Repo   string
	Branch string
	Commit string
	tmpDir bool // true if Fetch created the directory and Cleanup should remove it
}

// Fetcher clones repositories into disposable workspace directories using
// go-git. A zero workDir uses the system temp directory.
type Fetcher struct {
	workDir string
}

// NewFetcher creates a Fetcher rooted at workDir.
func NewFetcher(workDir string) *Fetcher {
	return &Fetcher{workDir: workDir}
}

// Fetch shallow-clones repoURL at branch (empty means the remote HEAD) into
// a fresh workspace directory. The token authenticates through the transport
// layer, so it never appears in the clone URL, the logs, or error text.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, token, branch string) (*Checkout, error) {
	if f.workDir != "" {
		if err := os.MkdirAll(f.workDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace root: %w", err)
		}
	}
	tmpDir, err := os.MkdirTemp(f.workDir, "docsmith-clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	cloneOpts := &gogit.CloneOptions{
		URL:      repoURL,
		Depth:    1, // shallow clone for speed
		Progress: nil,
	}

	if token != "" {
		// GitLab expects the oauth2 pseudo-user for token auth over HTTPS.
		user := "docsmith"
		if provider, _ := DetectProvider(repoURL); provider == "gitlab" {
			user = "oauth2"
		}
		cloneOpts.Auth = &githttp.BasicAuth{
			Username: user,
			Password: token,
		}
	}

	if branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		cloneOpts.SingleBranch = true
	}

	slog.Debug("Cloning repository",
		"url", repoURL,
		"branch", branch,
		"depth", 1,
		"dest", tmpDir,
	)

	repo, err := gogit.PlainCloneContext(ctx, tmpDir, false, cloneOpts)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, classifyCloneErr(repoURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("resolving HEAD of %s: %w", repoURL, err)
	}

	resolvedBranch := head.Name().Short()
	if resolvedBranch == "" || resolvedBranch == "HEAD" {
		resolvedBranch = branch
	}

	owner, repoName := ParseOwnerRepo(repoURL)

	return &Checkout{
		Dir:    tmpDir,
		Owner:  owner,
		Repo:   repoName,
		Branch: resolvedBranch,
		Commit: head.Hash().String(),
		tmpDir: true,
	}, nil
}

// Cleanup removes the workspace directory created by Fetch.
func (f *Fetcher) Cleanup(c *Checkout) {
	if c == nil || !c.tmpDir {
		return
	}
	if err := os.RemoveAll(c.Dir); err != nil {
		slog.Warn("Failed to clean up clone directory", "path", c.Dir, "error", err)
	}
}

// classifyCloneErr wraps a go-git clone failure with the matching sentinel.
// Unmatched failures stay as-is and are treated as unreachable remotes.
func classifyCloneErr(repoURL string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(msg, "authentication required"),
		strings.Contains(msg, "authorization failed"):
		return fmt.Errorf("cloning %s: %w", repoURL, ErrAuthRequired)
	case errors.Is(err, plumbing.ErrReferenceNotFound),
		strings.Contains(msg, "reference not found"),
		strings.Contains(msg, "couldn't find remote ref"):
		return fmt.Errorf("cloning %s: %w", repoURL, ErrBranchNotFound)
	default:
		return fmt.Errorf("cloning %s: %w", repoURL, err)
	}
}
