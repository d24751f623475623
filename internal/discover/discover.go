// Package discover lists the JavaScript/TypeScript sources under a scan
// directory.
package discover

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".git": true, ".hg": true, ".idea": true,
	".next": true, ".nuxt": true, ".npm": true, ".nyc_output": true,
	".parcel-cache": true, ".pnpm-store": true, ".svelte-kit": true,
	".svn": true, ".turbo": true, ".vercel": true, ".vscode": true,
	".yarn": true, "bower_components": true, "build": true,
	"coverage": true, "dist": true, "jspm_packages": true,
	"node_modules": true, "out": true, "storybook-static": true,
	"tmp": true, "vendor": true,
}

// IGNORE_SUFFIXES are file suffixes to skip. Bundled and minified output
// is generated code, not project modules.
var IGNORE_SUFFIXES = []string{".min.js", ".bundle.js", ".chunk.js", "~"}

// IgnoreFileName holds extra gitignore-style patterns for discovery.
const IgnoreFileName = ".importgraphignore"

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to the scan root, slash separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	FS          afero.Fs       // nil selects the OS file system
	IgnoreDirs  []string       // extra directory globs, matched on name and relative path
	Include     *regexp.Regexp // when set, only matching paths are kept
	Exclude     *regexp.Regexp // matching paths are dropped
	NoGitignore bool           // skip .gitignore and .importgraphignore
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func shouldSkipDir(name, rel string, extraIgnore []string) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	for _, pattern := range extraIgnore {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Matches applies the include/exclude filters to an absolute path.
func (o *Options) Matches(path string) bool {
	if o == nil {
		return true
	}
	slash := filepath.ToSlash(path)
	if o.Exclude != nil && o.Exclude.MatchString(slash) {
		return false
	}
	if o.Include != nil && !o.Include.MatchString(slash) {
		return false
	}
	return true
}

// Discover walks root and returns all JavaScript/TypeScript source files in
// lexical order.
func Discover(ctx context.Context, root string, opts *Options) ([]FileInfo, error) {
	if opts == nil {
		opts = &Options{}
	}
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Check cancellation before starting walk
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var gi *ignore.GitIgnore
	if !opts.NoGitignore {
		gi = loadIgnores(fs, root)
	}

	var files []FileInfo

	err = afero.Walk(fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		relSlash := filepath.ToSlash(rel)

		if info.IsDir() {
			if path == root {
				return nil
			}
			if shouldSkipDir(info.Name(), rel, opts.IgnoreDirs) {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(relSlash+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		for _, suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if gi != nil && gi.MatchesPath(relSlash) {
			return nil
		}
		if !opts.Matches(path) {
			return nil
		}

		spec := lang.ForPath(path)
		if spec == nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:     path,
			RelPath:  relSlash,
			Language: spec.Language,
		})
		return nil
	})

	return files, err
}

// loadIgnores compiles the root .gitignore and .importgraphignore into one
// matcher. It returns nil when neither file has patterns.
func loadIgnores(fs afero.Fs, root string) *ignore.GitIgnore {
	var lines []string
	for _, name := range []string{".gitignore", IgnoreFileName} {
		data, err := afero.ReadFile(fs, filepath.Join(root, name))
		if err != nil {
			continue
		}
		lines = append(lines, ignoreLines(data)...)
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func ignoreLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}
