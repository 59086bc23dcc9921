package ai

import (
	"context"

	"github.com/docsmithhq/docsmith-agent/internal/profiles"
)

// profiledEngine wraps an Engine so that every completion carries the active
// generation profile as a system prompt addendum.
type profiledEngine struct {
	inner   Engine
	profile *profiles.Profile
}

// WithProfile wraps inner so that every completion carries the active profile.
// If p is nil, inner is returned unchanged.
func WithProfile(inner Engine, p *profiles.Profile) Engine {
	if p == nil {
		return inner
	}
	return &profiledEngine{inner: inner, profile: p}
}

func (pw *profiledEngine) Name() string { return pw.inner.Name() }

func (pw *profiledEngine) IsAvailable(ctx context.Context) bool {
	return pw.inner.IsAvailable(ctx)
}

func (pw *profiledEngine) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	req.System += pw.profile.SystemAddendum()
	return pw.inner.Complete(ctx, req)
}
