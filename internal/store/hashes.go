package store

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/importgraph/internal/fsys"
)

// HashFiles hashes the content of paths in parallel. Unreadable files are
// logged and left out of the result.
func HashFiles(fs *fsys.FS, paths []string) map[string]string {
	hashes := make([]string, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(max(1, min(runtime.NumCPU(), len(paths))))
	for i, path := range paths {
		g.Go(func() error {
			h, err := fileHash(fs, path)
			if err != nil {
				slog.Warn("hash.file.err", "path", path, "err", err)
				return nil
			}
			hashes[i] = h
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]string, len(paths))
	for i, path := range paths {
		if hashes[i] != "" {
			result[path] = hashes[i]
		}
	}
	return result
}

func fileHash(fs *fsys.FS, path string) (string, error) {
	f, err := fs.Afero().Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReplaceFileHashes makes hashes the full stored hash set of project.
func (s *Store) ReplaceFileHashes(project string, hashes map[string]string) error {
	return s.WithTransaction(func(tx *Store) error {
		if _, err := tx.q.Exec("DELETE FROM file_hashes WHERE project=?", project); err != nil {
			return fmt.Errorf("clear file hashes: %w", err)
		}
		paths := make([]string, 0, len(hashes))
		for p := range hashes {
			paths = append(paths, p)
		}
		return chunked(len(paths), func(lo, hi int) error {
			var sb strings.Builder
			sb.WriteString(`INSERT INTO file_hashes (project, path, hash) VALUES `)
			args := make([]any, 0, (hi-lo)*3)
			for i, p := range paths[lo:hi] {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString("(?,?,?)")
				args = append(args, project, p, hashes[p])
			}
			if _, err := tx.q.Exec(sb.String(), args...); err != nil {
				return fmt.Errorf("insert file hash batch: %w", err)
			}
			return nil
		})
	})
}

// FileHashes returns all stored hashes of project.
func (s *Store) FileHashes(project string) (map[string]string, error) {
	rows, err := s.q.Query("SELECT path, hash FROM file_hashes WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("get file hashes: %w", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

// Changes lists the difference between two hash sets.
type Changes struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// ChangedFiles compares current against the stored hashes of project.
func (s *Store) ChangedFiles(project string, current map[string]string) (Changes, error) {
	stored, err := s.FileHashes(project)
	if err != nil {
		return Changes{}, err
	}
	return Diff(stored, current), nil
}

// Diff compares two hash sets. The lists are sorted.
func Diff(old, current map[string]string) Changes {
	var c Changes
	for path, h := range current {
		prev, ok := old[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case prev != h:
			c.Modified = append(c.Modified, path)
		}
	}
	for path := range old {
		if _, ok := current[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Modified)
	slices.Sort(c.Removed)
	return c
}
