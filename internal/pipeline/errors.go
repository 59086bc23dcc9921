// Package pipeline runs the analysis pipeline for one repository: clone,
// extract, generate, persist. The Executor drives the repository status
// machine; the scheduler owns job rows and retry policy, classifying
// failures with Retryable.
package pipeline

import (
	"errors"
	"fmt"
)

// FetchFailure classifies why source resolution failed.
type FetchFailure string

const (
	FetchUnreachable    FetchFailure = "unreachable"
	FetchAuthRequired   FetchFailure = "auth_required"
	FetchBranchNotFound FetchFailure = "branch_not_found"
)

// FetchError reports a failure resolving or cloning the repository source.
// Only unreachable hosts are transient; bad credentials and missing branches
// do not fix themselves and fail the job for good.
type FetchError struct {
	Kind FetchFailure
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports a failure reading or summarizing the working copy.
// Extraction is deterministic, so these are never retried.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extract: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationError reports a failure producing documentation content,
// including stage timeouts.
type GenerationError struct {
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return "generate: timed out: " + e.Err.Error()
	}
	return "generate: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError reports a failure writing pipeline results. A wrapped
// store.ErrVersionConflict here means the append serialization is broken,
// which is an internal defect, not a user-facing condition.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persist: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrCancelled marks a job stopped at a stage boundary. Cancelled jobs are
// recorded failed with this reason and never retried.
var ErrCancelled = errors.New("cancelled")

// Retryable reports whether the scheduler should resubmit the job with
// backoff. Transient fetch errors and generation failures (timeouts, flaky
// upstreams) qualify; everything else fails deterministically.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrCancelled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == FetchUnreachable
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return true
	}
	return false
}
