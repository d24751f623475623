// Package fsys is the file-system boundary of the analyzer. Every read,
// existence check and directory listing goes through an afero.Fs so the
// engine runs unchanged over local disk or an in-memory tree.
package fsys

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FS wraps an afero.Fs with the handful of queries resolution needs.
type FS struct {
	fs afero.Fs
}

// New wraps fs. A nil fs selects the OS file system.
func New(fs afero.Fs) *FS {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FS{fs: fs}
}

// Afero exposes the underlying afero.Fs.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// Exists reports whether path names a file or directory.
func (f *FS) Exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}

// IsFile reports whether path names a regular file.
func (f *FS) IsFile(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// IsDir reports whether path names a directory.
func (f *FS) IsDir(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && info.IsDir()
}

// Stat returns file info for path.
func (f *FS) Stat(path string) (os.FileInfo, error) {
	return f.fs.Stat(path)
}

// ReadFile returns the contents of path.
func (f *FS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// ReadDir lists the entries of a directory sorted by name.
func (f *FS) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(f.fs, path)
}

// Within reports whether path lies inside root (or is root itself).
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
