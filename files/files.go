// Package files enumerates the files of a workspace for quick-open style
// pickers.
package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// DefaultMaxResults caps a listing when no limit is given.
const DefaultMaxResults = 20000

var errLimit = errors.New("file limit reached")

// SkipDir reports whether a directory with this name is never descended
// into.
func SkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "dist", "target", "release-artifacts":
		return true
	}
	return false
}

// List returns the regular files under root as sorted, slash-separated
// relative paths, stopping once max paths are collected. Unreadable
// directories are skipped. Symlinks to files are listed; symlinked
// directories are not followed.
func List(root string, max int) []string {
	if max <= 0 {
		max = DefaultMaxResults
	}

	results := []string{}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isFile(path, d) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		results = append(results, filepath.ToSlash(rel))
		if len(results) >= max {
			return errLimit
		}
		return nil
	})

	slices.Sort(results)
	return results
}

func isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
