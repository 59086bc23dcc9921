package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
)

// skipDirs are directory names never descended into. Dependency trees and
// build output dominate raw file counts and carry nothing worth documenting.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	"venv":         {},
	"env":          {},
	".venv":        {},
	"dist":         {},
	"build":        {},
	"vendor":       {},
	"target":       {},
}

type candidate struct {
	abs  string
	rel  string // slash-separated
	size int64
}

// collect walks dir and returns the source files to analyze, in path order.
// The repository size cap applies to everything the walk sees; the per-file
// and file-count caps apply to what it keeps. Exceeding the repository cap
// is an error, the smaller caps just skip.
func (a *Analyzer) collect(ctx context.Context, dir string) ([]candidate, int, error) {
	var (
		files   []candidate
		skipped int
		total   int64
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// File vanished mid-walk.
			return nil
		}
		total += info.Size()
		if total > a.maxRepoSize {
			return fmt.Errorf("repository exceeds %d MB size limit", a.maxRepoSize>>20)
		}
		if languageForPath(path) == "" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.Size() > a.maxFileSize {
			slog.Warn("Skipping large file", "path", rel, "size", info.Size())
			skipped++
			return nil
		}
		files = append(files, candidate{abs: path, rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	if len(files) > a.maxFiles {
		slog.Warn("Repository exceeds file limit, truncating",
			"files", len(files), "limit", a.maxFiles)
		skipped += len(files) - a.maxFiles
		files = files[:a.maxFiles]
	}
	return files, skipped, nil
}
