package scheduler

import "sync"

// RepoLocks is the keyed lock table that serializes repository-state
// mutation. Every status write for a repository — enqueue checks, dispatch
// claims, pipeline stage transitions, deletion — runs while holding that
// repository's lock, so storage never has to arbitrate concurrent writers.
// Entries are created on first use and never removed: the set of tracked
// repositories is small, and dropping a mutex would race with its holders.
type RepoLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func NewRepoLocks() *RepoLocks {
	return &RepoLocks{m: make(map[int64]*sync.Mutex)}
}

// Lock acquires the lock for a repository. The returned func releases it.
func (l *RepoLocks) Lock(repoID int64) (unlock func()) {
	l.mu.Lock()
	m, ok := l.m[repoID]
	if !ok {
		m = &sync.Mutex{}
		l.m[repoID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// WithRepo runs fn while holding the repository's lock.
func (l *RepoLocks) WithRepo(repoID int64, fn func() error) error {
	unlock := l.Lock(repoID)
	defer unlock()
	return fn()
}
