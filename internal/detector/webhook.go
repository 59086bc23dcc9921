package detector

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/google/uuid"
)

// Sentinel errors the gateway maps onto HTTP status codes.
var (
	// ErrBadSignature means verification against the shared secret failed.
	ErrBadSignature = errors.New("detector: webhook signature verification failed")
	// ErrBadPayload means the delivery body could not be parsed as a push.
	ErrBadPayload = errors.New("detector: webhook payload not usable")
)

// zeroSHA is what forges report as the head when a ref is deleted.
const zeroSHA = "0000000000000000000000000000000000000000"

// Push is the provider-neutral view of a push delivery.
type Push struct {
	DeliveryID string
	Forge      string
	// RepoURLs are the URL spellings the payload offers for the repository,
	// tried in order against the registry.
	RepoURLs    []string
	FullName    string
	Branch      string
	Before      string
	HeadCommit  string
	CommitCount int
	Deleted     bool
	commits     []pushCommit
}

type pushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// HandleGitHub verifies and applies one GitHub push delivery. delivery is the
// X-GitHub-Delivery header, signature the X-Hub-Signature-256 header.
func (d *Detector) HandleGitHub(ctx context.Context, delivery, signature string, body []byte) (*Outcome, error) {
	if err := d.verifyGitHub(signature, body); err != nil {
		return nil, err
	}
	push, err := parseGitHubPush(body)
	if err != nil {
		return nil, err
	}
	push.DeliveryID = orNewDelivery(delivery)
	return d.apply(ctx, push)
}

// HandleGitLab verifies and applies one GitLab push delivery. delivery is the
// X-Gitlab-Event-UUID header, token the X-Gitlab-Token header.
func (d *Detector) HandleGitLab(ctx context.Context, delivery, token string, body []byte) (*Outcome, error) {
	if err := d.verifyGitLab(token); err != nil {
		return nil, err
	}
	push, err := parseGitLabPush(body)
	if err != nil {
		return nil, err
	}
	push.DeliveryID = orNewDelivery(delivery)
	return d.apply(ctx, push)
}

// verifyGitHub checks the HMAC signature over the raw body. An empty
// configured secret skips verification so local setups work before any
// secret exists.
func (d *Detector) verifyGitHub(signature string, body []byte) error {
	if d.hooks.Secret == "" {
		slog.Warn("webhook secret not configured, accepting unverified GitHub delivery")
		return nil
	}
	if signature == "" {
		return fmt.Errorf("%w: missing X-Hub-Signature-256 header", ErrBadSignature)
	}
	if err := gogithub.ValidateSignature(signature, body, []byte(d.hooks.Secret)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func (d *Detector) verifyGitLab(token string) error {
	if d.hooks.Secret == "" {
		slog.Warn("webhook secret not configured, accepting unverified GitLab delivery")
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(d.hooks.Secret)) != 1 {
		return fmt.Errorf("%w: X-Gitlab-Token mismatch", ErrBadSignature)
	}
	return nil
}

// apply runs the enqueue decision for a parsed push.
func (d *Detector) apply(ctx context.Context, push *Push) (*Outcome, error) {
	log := slog.With("forge", push.Forge, "delivery", push.DeliveryID, "repo", push.FullName)

	if push.Deleted || push.HeadCommit == "" {
		log.Info("ignoring webhook without a head commit")
		return &Outcome{Decision: DecisionIgnored, Reason: "ref deleted or empty push"}, nil
	}
	if push.Branch == "" {
		log.Info("ignoring webhook for non-branch ref")
		return &Outcome{Decision: DecisionIgnored, Reason: "not a branch push"}, nil
	}

	repo, err := d.findRepo(ctx, push.RepoURLs)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("ignoring webhook for unregistered repository")
		return &Outcome{Decision: DecisionIgnored, Reason: "repository not registered"}, nil
	}
	if err != nil {
		return nil, err
	}

	if !repo.MonitoringEnabled {
		log.Info("ignoring webhook, monitoring disabled", "repo_id", repo.ID)
		return &Outcome{Decision: DecisionIgnored, Reason: "monitoring disabled", Repo: repo}, nil
	}
	if push.Branch != repo.DefaultBranch {
		log.Info("ignoring webhook for non-default branch",
			"branch", push.Branch, "default_branch", repo.DefaultBranch)
		return &Outcome{Decision: DecisionIgnored, Reason: "non-default branch", Repo: repo}, nil
	}
	if push.HeadCommit == repo.LastCommitHash {
		log.Info("webhook head already analyzed", "commit", push.HeadCommit)
		return &Outcome{Decision: DecisionUnchanged, Repo: repo}, nil
	}
	if d.cache.seen(repo.ID, push.HeadCommit) {
		log.Info("duplicate webhook delivery absorbed", "commit", push.HeadCommit)
		return &Outcome{Decision: DecisionDuplicate, Reason: "delivery already seen", Repo: repo}, nil
	}

	job, err := d.enq.Enqueue(ctx, repo.ID, models.TriggerWebhook, push.changeSummary())
	if errors.Is(err, scheduler.ErrAlreadyScheduled) {
		log.Info("webhook arrived while a job is active", "commit", push.HeadCommit)
		return &Outcome{Decision: DecisionDuplicate, Reason: "job already active", Job: job, Repo: repo}, nil
	}
	if err != nil {
		// Let a redelivery retry instead of being swallowed by the cache.
		d.cache.forget(repo.ID, push.HeadCommit)
		return nil, err
	}

	log.Info("webhook enqueued analysis", "repo_id", repo.ID, "commit", push.HeadCommit, "job", job.ID)
	return &Outcome{Decision: DecisionEnqueued, Job: job, Repo: repo}, nil
}

// findRepo tries each URL spelling the payload offered, with and without a
// .git suffix.
func (d *Detector) findRepo(ctx context.Context, urls []string) (*models.Repo, error) {
	tried := make(map[string]bool)
	for _, u := range urls {
		for _, candidate := range []string{u, strings.TrimSuffix(u, ".git")} {
			if candidate == "" || tried[candidate] {
				continue
			}
			tried[candidate] = true
			repo, err := d.repos.GetByURL(ctx, candidate)
			if err == nil {
				return repo, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}
	return nil, store.ErrNotFound
}

// changeSummary folds the payload commits into a ChangeSummary. Forges cap
// the commit list they inline, so counts are best-effort at enqueue time.
func (p *Push) changeSummary() *models.ChangeSummary {
	cs := &models.ChangeSummary{
		ToCommit:    p.HeadCommit,
		CommitCount: p.CommitCount,
	}
	if p.Before != "" && p.Before != zeroSHA {
		cs.FromCommit = p.Before
	}
	if cs.CommitCount == 0 {
		cs.CommitCount = len(p.commits)
	}

	added := make(map[string]bool)
	modified := make(map[string]bool)
	removed := make(map[string]bool)
	for _, c := range p.commits {
		for _, f := range c.Added {
			added[f] = true
		}
		for _, f := range c.Modified {
			modified[f] = true
		}
		for _, f := range c.Removed {
			removed[f] = true
		}
	}
	cs.FilesAdded = len(added)
	cs.FilesModified = len(modified)
	cs.FilesRemoved = len(removed)
	cs.SamplePaths = samplePathsFrom(added, modified, removed)
	return cs
}

func samplePathsFrom(groups ...map[string]bool) []string {
	const maxSample = 5
	var out []string
	for _, g := range groups {
		paths := make([]string, 0, len(g))
		for p := range g {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			if len(out) == maxSample {
				return out
			}
			out = append(out, p)
		}
	}
	return out
}

func parseGitHubPush(body []byte) (*Push, error) {
	var payload struct {
		Ref        string `json:"ref"`
		Before     string `json:"before"`
		After      string `json:"after"`
		Deleted    bool   `json:"deleted"`
		Repository struct {
			CloneURL string `json:"clone_url"`
			HTMLURL  string `json:"html_url"`
			SSHURL   string `json:"ssh_url"`
			FullName string `json:"full_name"`
		} `json:"repository"`
		HeadCommit *struct {
			ID string `json:"id"`
		} `json:"head_commit"`
		Commits []pushCommit `json:"commits"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	head := payload.After
	if head == zeroSHA {
		head = ""
	}
	if head == "" && payload.HeadCommit != nil {
		head = payload.HeadCommit.ID
	}
	return &Push{
		Forge:       "github",
		RepoURLs:    []string{payload.Repository.CloneURL, payload.Repository.HTMLURL, payload.Repository.SSHURL},
		FullName:    payload.Repository.FullName,
		Branch:      branchFromRef(payload.Ref),
		Before:      payload.Before,
		HeadCommit:  head,
		Deleted:     payload.Deleted,
		commits:     payload.Commits,
		CommitCount: len(payload.Commits),
	}, nil
}

func parseGitLabPush(body []byte) (*Push, error) {
	var payload struct {
		ObjectKind  string `json:"object_kind"`
		Ref         string `json:"ref"`
		Before      string `json:"before"`
		After       string `json:"after"`
		CheckoutSHA string `json:"checkout_sha"`
		Project     struct {
			GitHTTPURL        string `json:"git_http_url"`
			WebURL            string `json:"web_url"`
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
		Commits           []pushCommit `json:"commits"`
		TotalCommitsCount int          `json:"total_commits_count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if payload.ObjectKind != "" && payload.ObjectKind != "push" {
		return nil, fmt.Errorf("%w: unsupported event kind %q", ErrBadPayload, payload.ObjectKind)
	}

	head := payload.After
	if head == zeroSHA {
		head = ""
	}
	if head == "" {
		head = payload.CheckoutSHA
	}
	return &Push{
		Forge:       "gitlab",
		RepoURLs:    []string{payload.Project.GitHTTPURL, payload.Project.WebURL},
		FullName:    payload.Project.PathWithNamespace,
		Branch:      branchFromRef(payload.Ref),
		Before:      payload.Before,
		HeadCommit:  head,
		Deleted:     payload.After == zeroSHA,
		commits:     payload.Commits,
		CommitCount: payload.TotalCommitsCount,
	}, nil
}

// branchFromRef strips the refs/heads/ prefix; tag and other refs yield "".
func branchFromRef(ref string) string {
	if rest, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return rest
	}
	return ""
}

func orNewDelivery(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
