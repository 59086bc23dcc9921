package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Snapshot records the per-file content digests of a repository at one
// analyzed commit. Consecutive snapshots are diffed to summarise what changed
// between pipeline runs.
type Snapshot struct {
	ID          int64     `json:"id"            db:"id"`
	RepoID      int64     `json:"repo_id"       db:"repo_id"`
	CommitHash  string    `json:"commit_hash"   db:"commit_hash"`
	DigestsJSON string    `json:"-"             db:"file_digests"` // path -> hex SHA-256
	FileCount   int       `json:"file_count"    db:"file_count"`
	LinesOfCode int       `json:"lines_of_code" db:"lines_of_code"`
	CreatedAt   time.Time `json:"created_at"    db:"created_at"`
}

// Digests decodes the stored path -> digest map.
func (s *Snapshot) Digests() (map[string]string, error) {
	m := make(map[string]string)
	if s.DigestsJSON == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s.DigestsJSON), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetDigests serializes m into the snapshot record.
func (s *Snapshot) SetDigests(m map[string]string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.DigestsJSON = string(data)
	return nil
}

// SnapshotDelta lists file-level differences between two snapshots.
type SnapshotDelta struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether the delta carries no changes.
func (d SnapshotDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// DiffDigests compares two path -> digest maps and returns the sorted delta.
// A nil prev treats every current file as added.
func DiffDigests(prev, cur map[string]string) SnapshotDelta {
	var d SnapshotDelta
	for path, sum := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case old != sum:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	return d
}
