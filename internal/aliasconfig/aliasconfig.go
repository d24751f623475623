// Package aliasconfig discovers jsconfig.json / tsconfig.json files and turns
// their compilerOptions.paths into per-directory alias tables.
package aliasconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tailscale/hujson"

	"github.com/DeusData/importgraph/internal/fsys"
)

const (
	JSConfigName = "jsconfig.json"
	TSConfigName = "tsconfig.json"

	defaultCacheSize = 512
)

// AliasEntry maps one pattern to its candidate paths. Candidates are
// absolute, already joined with the owning config's baseUrl.
type AliasEntry struct {
	Pattern    string   `json:"pattern"`
	Candidates []string `json:"candidates"`
}

// AliasTable is an ordered alias mapping. Order is the declaration order of
// the merged config chain.
type AliasTable []AliasEntry

// Lookup returns the candidates of an exact pattern.
func (t AliasTable) Lookup(pattern string) ([]string, bool) {
	for _, e := range t {
		if e.Pattern == pattern {
			return e.Candidates, true
		}
	}
	return nil, false
}

// Merge overlays child on t. Shared patterns keep their position in t and
// take the child's candidates; patterns only in child are appended.
func (t AliasTable) Merge(child AliasTable) AliasTable {
	if len(child) == 0 {
		return t
	}
	overrides := make(map[string][]string, len(child))
	for _, e := range child {
		overrides[e.Pattern] = e.Candidates
	}
	out := make(AliasTable, 0, len(t)+len(child))
	seen := make(map[string]bool, len(t)+len(child))
	for _, e := range t {
		if seen[e.Pattern] {
			continue
		}
		seen[e.Pattern] = true
		if c, ok := overrides[e.Pattern]; ok {
			out = append(out, AliasEntry{Pattern: e.Pattern, Candidates: c})
			continue
		}
		out = append(out, e)
	}
	for _, e := range child {
		if seen[e.Pattern] {
			continue
		}
		seen[e.Pattern] = true
		out = append(out, AliasEntry{Pattern: e.Pattern, Candidates: overrides[e.Pattern]})
	}
	return out
}

// DirTable is the alias table owned by one directory.
type DirTable struct {
	Dir   string
	Table AliasTable
}

// Resolver caches alias tables per directory and parsed configs per file.
// It is safe for concurrent use.
type Resolver struct {
	fs   *fsys.FS
	root string

	mu    sync.Mutex
	dirs  map[string]AliasTable
	files *lru.Cache[string, AliasTable]
}

// NewResolver creates a resolver for the workspace rooted at root.
func NewResolver(fs *fsys.FS, root string) *Resolver {
	files, err := lru.New[string, AliasTable](defaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("aliasconfig: lru: %v", err))
	}
	return &Resolver{
		fs:    fs,
		root:  filepath.Clean(root),
		dirs:  make(map[string]AliasTable),
		files: files,
	}
}

// DirectoryAliasTable returns the table of the config living in exactly dir:
// jsconfig.json first, then tsconfig.json. A directory without either has an
// empty table.
func (r *Resolver) DirectoryAliasTable(dir string) AliasTable {
	for _, name := range []string{JSConfigName, TSConfigName} {
		path := filepath.Join(dir, name)
		if r.fs.IsFile(path) {
			return r.ConfigFromFile(path)
		}
	}
	return nil
}

// ConfigFromFile parses one config file and its extends chain. Errors are
// logged and yield an empty table.
func (r *Resolver) ConfigFromFile(path string) AliasTable {
	table, _ := r.configFromFile(filepath.Clean(path), make(map[string]bool))
	return table
}

// configFromFile reports whether the chain below path was free of cycles.
// A table built inside a cycle lacks the paths of the file that closed it,
// so it is returned but not cached.
func (r *Resolver) configFromFile(path string, visiting map[string]bool) (AliasTable, bool) {
	if table, ok := r.files.Get(path); ok {
		return table, true
	}
	if visiting[path] {
		slog.Debug("aliasconfig.extends.cycle", "path", path)
		return nil, false
	}
	visiting[path] = true
	defer delete(visiting, path)

	cfg, err := r.readConfig(path)
	if err != nil {
		slog.Debug("aliasconfig.parse.err", "path", path, "err", err)
		r.files.Add(path, nil)
		return nil, true
	}

	dir := filepath.Dir(path)
	var table AliasTable
	acyclic := true
	for _, ext := range cfg.Extends {
		parent := r.locateExtends(dir, ext)
		if parent == "" {
			slog.Debug("aliasconfig.extends.missing", "path", path, "extends", ext)
			continue
		}
		parentTable, ok := r.configFromFile(parent, visiting)
		acyclic = acyclic && ok
		table = table.Merge(parentTable)
	}

	baseURL := "."
	if cfg.CompilerOptions.BaseURL != nil {
		baseURL = *cfg.CompilerOptions.BaseURL
	}
	base := baseURL
	if !filepath.IsAbs(base) {
		base = filepath.Join(dir, baseURL)
	}

	own := make(AliasTable, 0, len(cfg.CompilerOptions.Paths))
	for _, e := range cfg.CompilerOptions.Paths {
		candidates := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			if filepath.IsAbs(c) {
				candidates = append(candidates, filepath.Clean(c))
			} else {
				candidates = append(candidates, filepath.Join(base, c))
			}
		}
		own = append(own, AliasEntry{Pattern: e.Pattern, Candidates: candidates})
	}
	table = table.Merge(own)

	if acyclic {
		r.files.Add(path, table)
	}
	return table, acyclic
}

func (r *Resolver) readConfig(path string) (*rawConfig, error) {
	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	var cfg rawConfig
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cfg, nil
}

// locateExtends finds the file an extends value points at. Relative and
// absolute values are taken from the config directory; bare names are
// looked up in node_modules directories walking upward.
func (r *Resolver) locateExtends(dir, ext string) string {
	if strings.HasPrefix(ext, ".") || filepath.IsAbs(ext) {
		p := ext
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, ext)
		}
		return r.configCandidate(p)
	}
	d := dir
	for {
		if p := r.configCandidate(filepath.Join(d, "node_modules", ext)); p != "" {
			return p
		}
		parent := filepath.Dir(d)
		if parent == d {
			return ""
		}
		d = parent
	}
}

func (r *Resolver) configCandidate(p string) string {
	if r.fs.IsFile(p) {
		return p
	}
	if !strings.HasSuffix(p, ".json") && r.fs.IsFile(p+".json") {
		return p + ".json"
	}
	if r.fs.IsDir(p) {
		if inner := filepath.Join(p, TSConfigName); r.fs.IsFile(inner) {
			return inner
		}
	}
	return ""
}

// EnsureConfigsOfPath fills the directory cache from the directory of file
// up to the workspace root, stopping at the first directory already cached.
func (r *Resolver) EnsureConfigsOfPath(file string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(filepath.Clean(file))
	for {
		if _, ok := r.dirs[dir]; ok {
			return
		}
		r.dirs[dir] = r.DirectoryAliasTable(dir)
		next, ok := r.parentWithinRoot(dir)
		if !ok {
			return
		}
		dir = next
	}
}

// Tables returns the non-empty alias tables that apply to file, nearest
// directory first.
func (r *Resolver) Tables(file string) []DirTable {
	r.EnsureConfigsOfPath(file)

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DirTable
	dir := filepath.Dir(filepath.Clean(file))
	for {
		table, ok := r.dirs[dir]
		if !ok {
			break
		}
		if len(table) > 0 {
			out = append(out, DirTable{Dir: dir, Table: table})
		}
		next, ok := r.parentWithinRoot(dir)
		if !ok {
			break
		}
		dir = next
	}
	return out
}

// Cached returns the table cached for dir, if any.
func (r *Resolver) Cached(dir string) (AliasTable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.dirs[filepath.Clean(dir)]
	return t, ok
}

func (r *Resolver) parentWithinRoot(dir string) (string, bool) {
	if dir == r.root || !fsys.Within(r.root, dir) {
		return "", false
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", false
	}
	return parent, true
}

type rawConfig struct {
	Extends         extendsList `json:"extends"`
	CompilerOptions struct {
		BaseURL *string      `json:"baseUrl"`
		Paths   orderedPaths `json:"paths"`
	} `json:"compilerOptions"`
}

// extendsList accepts a single string or an array of strings.
type extendsList []string

func (e *extendsList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*e = extendsList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("extends: %w", err)
	}
	*e = many
	return nil
}

// orderedPaths decodes compilerOptions.paths keeping key order, which a Go
// map would lose.
type orderedPaths []AliasEntry

func (p *orderedPaths) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("paths: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var candidates []string
		if err := json.Unmarshal(raw, &candidates); err != nil {
			slog.Debug("aliasconfig.paths.skip", "pattern", key, "err", err)
			continue
		}
		*p = append(*p, AliasEntry{Pattern: key, Candidates: candidates})
	}
	_, err = dec.Token()
	return err
}
