// Package graph holds the project-wide module dependency graph. Records refer
// to each other by identity only, so a graph serializes without cycles.
package graph

import (
	"slices"
	"sync"

	"github.com/DeusData/importgraph/internal/traverse"
)

// Kind classifies a file identity.
type Kind string

const (
	Internal   Kind = "internal"
	External   Kind = "external"
	Unresolved Kind = "unresolved"
)

// ImportedSymbol is one binding a file takes from a dependency.
type ImportedSymbol struct {
	Imported string `json:"imported"`
	Local    string `json:"local,omitempty"`
	// Value marks a binding of the module's exported value itself.
	Value bool `json:"value,omitempty"`
}

// ExportInfo tracks how often an exported name is referenced elsewhere.
type ExportInfo struct {
	References int    `json:"references"`
	ReExport   bool   `json:"reexport,omitempty"`
	From       string `json:"from,omitempty"`
}

// Visited is a bit set of the traversal modes already run on a file.
type Visited uint8

// Has reports whether mode has been claimed.
func (v Visited) Has(mode traverse.Mode) bool {
	return v&(1<<mode) != 0
}

// FileRecord is the node type of the graph.
type FileRecord struct {
	ID              string                      `json:"id"`
	Kind            Kind                        `json:"kind"`
	Language        string                      `json:"language,omitempty"`
	IsEntry         bool                        `json:"is_entry"`
	IsExit          bool                        `json:"is_exit"`
	ParseFailed     bool                        `json:"parse_failed,omitempty"`
	Dependencies    []string                    `json:"dependencies"`
	ImportedSymbols map[string][]ImportedSymbol `json:"imported_symbols,omitempty"`
	ExportedSymbols map[string]*ExportInfo      `json:"exported_symbols,omitempty"`
	StarReExports   []string                    `json:"star_reexports,omitempty"`
	Visited         Visited                     `json:"-"`
}

// Clone returns a deep copy of the record.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	c.Dependencies = slices.Clone(r.Dependencies)
	if c.Dependencies == nil {
		c.Dependencies = []string{}
	}
	c.StarReExports = slices.Clone(r.StarReExports)
	if r.ImportedSymbols != nil {
		c.ImportedSymbols = make(map[string][]ImportedSymbol, len(r.ImportedSymbols))
		for dep, syms := range r.ImportedSymbols {
			c.ImportedSymbols[dep] = slices.Clone(syms)
		}
	}
	if r.ExportedSymbols != nil {
		c.ExportedSymbols = make(map[string]*ExportInfo, len(r.ExportedSymbols))
		for name, info := range r.ExportedSymbols {
			cp := *info
			c.ExportedSymbols[name] = &cp
		}
	}
	return &c
}

// Graph maps file identities to records. All methods are safe for
// concurrent use; the builder still merges results from a single goroutine.
type Graph struct {
	mu sync.Mutex

	Root    string
	Entries []string
	Exits   []string
	Files   map[string]*FileRecord
	// Exclude filters internal identities out of the graph. Not serialized.
	Exclude      func(id string) bool
	VisitedFiles map[string]struct{}
	Unparsable   int
	Unresolved   int
}

// New creates an empty graph for the workspace rooted at root.
func New(root string) *Graph {
	return &Graph{
		Root:         root,
		Files:        make(map[string]*FileRecord),
		VisitedFiles: make(map[string]struct{}),
	}
}

// Excluded reports whether the exclude predicate rejects id.
func (g *Graph) Excluded(id string) bool {
	return g.Exclude != nil && g.Exclude(id)
}

// Ensure returns the record for id, creating it with kind when missing.
func (g *Graph) Ensure(id string, kind Kind) (*FileRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ensure(id, kind)
}

func (g *Graph) ensure(id string, kind Kind) (*FileRecord, bool) {
	if rec, ok := g.Files[id]; ok {
		return rec, false
	}
	rec := &FileRecord{ID: id, Kind: kind, Dependencies: []string{}}
	g.Files[id] = rec
	return rec, true
}

// Get returns the record for id, or nil.
func (g *Graph) Get(id string) *FileRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Files[id]
}

// Len returns the number of records.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Files)
}

// IDs returns every identity in sorted order.
func (g *Graph) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedIDs()
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Files))
	for id := range g.Files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Claim atomically marks mode as visited on id. It returns false when the
// file is unknown or the mode was already claimed.
func (g *Graph) Claim(id string, mode traverse.Mode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[id]
	if !ok {
		return false
	}
	bit := Visited(1 << mode)
	if rec.Visited&bit != 0 {
		return false
	}
	rec.Visited |= bit
	g.VisitedFiles[id] = struct{}{}
	return true
}

// AddDependency records an edge from -> to. Both records must exist.
func (g *Graph) AddDependency(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[from]
	if !ok {
		return
	}
	i, found := slices.BinarySearch(rec.Dependencies, to)
	if !found {
		rec.Dependencies = slices.Insert(rec.Dependencies, i, to)
	}
}

// AddImportedSymbols records the bindings from takes from dep.
func (g *Graph) AddImportedSymbols(from, dep string, syms []ImportedSymbol) {
	if len(syms) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[from]
	if !ok {
		return
	}
	if rec.ImportedSymbols == nil {
		rec.ImportedSymbols = make(map[string][]ImportedSymbol)
	}
	existing := rec.ImportedSymbols[dep]
	for _, s := range syms {
		if !slices.Contains(existing, s) {
			existing = append(existing, s)
		}
	}
	rec.ImportedSymbols[dep] = existing
}

// AddExport declares name as exported by id. Declaring an existing name
// again keeps its reference count.
func (g *Graph) AddExport(id, name string, reexport bool, from string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[id]
	if !ok {
		return
	}
	if rec.ExportedSymbols == nil {
		rec.ExportedSymbols = make(map[string]*ExportInfo)
	}
	info, ok := rec.ExportedSymbols[name]
	if !ok {
		info = &ExportInfo{}
		rec.ExportedSymbols[name] = info
	}
	if reexport {
		info.ReExport = true
		info.From = from
	}
}

// AddStarReExport records that id re-exports every name of target.
func (g *Graph) AddStarReExport(id, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[id]
	if !ok || slices.Contains(rec.StarReExports, target) {
		return
	}
	rec.StarReExports = append(rec.StarReExports, target)
}

// AddReference adds n references to name exported by target. Names target
// does not declare are looked up through its star re-exports; the first
// file declaring the name receives the count. It reports whether a
// declaration was found.
func (g *Graph) AddReference(target, name string, n int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool)
	queue := []string{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, ok := g.Files[id]
		if !ok {
			continue
		}
		if info, ok := rec.ExportedSymbols[name]; ok {
			info.References += n
			return true
		}
		queue = append(queue, rec.StarReExports...)
	}
	return false
}

// ReferenceAll adds n references to every name target exports, including
// the names it re-exports through export * chains.
func (g *Graph) ReferenceAll(target string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool)
	queue := []string{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, ok := g.Files[id]
		if !ok {
			continue
		}
		for _, info := range rec.ExportedSymbols {
			info.References += n
		}
		queue = append(queue, rec.StarReExports...)
	}
}

// MarkParseFailed flags id as unparsable and bumps the counter once.
func (g *Graph) MarkParseFailed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.Files[id]
	if !ok || rec.ParseFailed {
		return
	}
	rec.ParseFailed = true
	g.Unparsable++
}

// AddUnresolved bumps the unresolved-specifier counter.
func (g *Graph) AddUnresolved(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Unresolved += n
}

// State is the processing state of a file.
type State string

const (
	Discovered      State = "discovered"
	ImportsResolved State = "imports_resolved"
	ExportsResolved State = "exports_resolved"
	UsageResolved   State = "usage_resolved"
	Unparsable      State = "unparsable"
)

// State derives the processing state from the visited flags.
func (r *FileRecord) State() State {
	switch {
	case r.ParseFailed:
		return Unparsable
	case r.Visited.Has(traverse.UsageCheck):
		return UsageResolved
	case r.Visited.Has(traverse.ExportDiscovery):
		return ExportsResolved
	case r.Visited.Has(traverse.ImportDiscovery):
		return ImportsResolved
	default:
		return Discovered
	}
}
