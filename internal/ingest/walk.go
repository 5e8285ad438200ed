package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kestrelkb/kestrel/internal/docref"
	"github.com/kestrelkb/kestrel/internal/gitignore"
)

// discoverFiles walks root and returns the POSIX-relative paths of
// every candidate file: a regular file, not a symlink, passing the
// Collection's include/exclude globs, any nested .gitignore files
// under root, and the docref path guard (spec §4.4 step 2). Unlike
// the teacher's Scanner, which streams results from a pool of workers
// into a channel for a separate indexing consumer, discoverFiles
// walks synchronously — the Ingestor commits one file at a time
// against a single SQLite connection, so a concurrent producer would
// only add complexity without added throughput.
func discoverFiles(ctx context.Context, root string, include, exclude []string) ([]string, error) {
	globs := newGlobSet()
	ignores := gitignore.New()
	if rootGitignore := filepath.Join(root, ".gitignore"); fileExists(rootGitignore) {
		_ = ignores.AddFromFile(rootGitignore, "")
	}
	var relPaths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == root {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if err := docref.ValidatePath(relPath); err != nil {
				return fs.SkipDir
			}
			// Load this directory's own .gitignore, scoped to its
			// subtree, before descending into it.
			if gitignorePath := filepath.Join(path, ".gitignore"); fileExists(gitignorePath) {
				_ = ignores.AddFromFile(gitignorePath, relPath)
			}
			if ignores.Match(relPath, true) {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if err := docref.ValidatePath(relPath); err != nil {
			return nil
		}
		if ignores.Match(relPath, false) {
			return nil
		}
		if !globs.included(include, exclude, relPath) {
			return nil
		}

		relPaths = append(relPaths, relPath)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return relPaths, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
