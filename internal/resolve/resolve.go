// Package resolve maps a raw import specifier plus the importing file to a
// canonical file identity.
package resolve

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DeusData/importgraph/internal/aliasconfig"
	"github.com/DeusData/importgraph/internal/fsys"
)

// Kind classifies a resolved identity.
type Kind string

const (
	// Internal identities exist on disk inside the workspace.
	Internal Kind = "internal"
	// External identities name packages under node_modules. They are never
	// existence-checked or traversed.
	External Kind = "external"
	// Unresolved identities are best-effort placeholders for relative
	// specifiers that matched nothing.
	Unresolved Kind = "unresolved"
)

// Extensions is the probe order for extensionless and index resolution.
var Extensions = []string{".tsx", ".ts", ".jsx", ".js", ".d.ts"}

// Result is a resolved specifier.
type Result struct {
	ID   string
	Kind Kind
}

// Resolver resolves specifiers against the file system and alias configs.
type Resolver struct {
	fs      *fsys.FS
	root    string
	aliases *aliasconfig.Resolver

	warnOnce sync.Map // multi-wildcard patterns already logged
}

// New creates a specifier resolver for the workspace rooted at root.
func New(fs *fsys.FS, root string, aliases *aliasconfig.Resolver) *Resolver {
	if aliases == nil {
		aliases = aliasconfig.NewResolver(fs, root)
	}
	return &Resolver{fs: fs, root: filepath.Clean(root), aliases: aliases}
}

// IsRelative reports whether a specifier is resolved against the importing
// file's directory rather than through aliases.
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, ".") || filepath.IsAbs(specifier)
}

// Resolve maps specifier, imported from baseFile, to a file identity.
func (r *Resolver) Resolve(baseFile, specifier string) Result {
	if IsRelative(specifier) {
		p := specifier
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(baseFile), specifier)
		}
		if hit, ok := r.resolvePath(p); ok {
			return Result{ID: hit, Kind: Internal}
		}
		return Result{ID: filepath.Clean(p), Kind: Unresolved}
	}

	if hit, ok := r.resolveAlias(baseFile, specifier); ok {
		return Result{ID: hit, Kind: Internal}
	}
	return Result{ID: ExternalID(r.root, specifier), Kind: External}
}

// ExternalID is the opaque identity of a package specifier.
func ExternalID(root, specifier string) string {
	return filepath.Join(root, "node_modules", specifier)
}

// resolvePath probes p as a file, then with each extension appended, then
// as a directory index. A direct file always beats an index.
func (r *Resolver) resolvePath(p string) (string, bool) {
	p = filepath.Clean(p)
	if r.fs.IsFile(p) {
		return p, true
	}
	for _, ext := range Extensions {
		if candidate := p + ext; r.fs.IsFile(candidate) {
			return candidate, true
		}
	}
	if r.fs.IsDir(p) {
		for _, ext := range Extensions {
			if candidate := filepath.Join(p, "index"+ext); r.fs.IsFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func (r *Resolver) resolveAlias(baseFile, specifier string) (string, bool) {
	for _, dt := range r.aliases.Tables(baseFile) {
		for _, entry := range dt.Table {
			capture, ok := r.match(entry.Pattern, specifier)
			if !ok {
				continue
			}
			for _, candidate := range entry.Candidates {
				target := candidate
				if strings.Contains(entry.Pattern, "*") {
					target = strings.Replace(candidate, "*", capture, 1)
				}
				if hit, ok := r.resolvePath(target); ok {
					return hit, true
				}
			}
		}
	}
	return "", false
}

// match tests specifier against an alias pattern and returns the text the
// wildcard captured.
func (r *Resolver) match(pattern, specifier string) (string, bool) {
	switch strings.Count(pattern, "*") {
	case 0:
		return "", pattern == specifier
	case 1:
		prefix, suffix, _ := strings.Cut(pattern, "*")
		if len(specifier) < len(prefix)+len(suffix) ||
			!strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
			return "", false
		}
		return specifier[len(prefix) : len(specifier)-len(suffix)], true
	default:
		if _, logged := r.warnOnce.LoadOrStore(pattern, true); !logged {
			slog.Debug("resolve.alias.ambiguous", "pattern", pattern)
		}
		return "", false
	}
}
