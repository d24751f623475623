// Package traverse walks one file's syntax tree in a single mode and returns
// what it found. It never touches the graph; the builder merges results.
package traverse

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/importgraph/internal/parser"
)

// ImportKind says which construct produced an import.
type ImportKind string

const (
	ImportStatic      ImportKind = "static"
	ImportReExport    ImportKind = "reexport"
	ImportRequire     ImportKind = "require"
	ImportEquals      ImportKind = "import-equals"
	ImportDynamic     ImportKind = "dynamic"
	ImportDynamicThen ImportKind = "dynamic-then"
	ImportLazy        ImportKind = "lazy"
)

// Namespace is the imported name of a whole-module binding.
const Namespace = "*"

// Default is the name of a default export.
const Default = "default"

// Symbol is one imported binding. Local is empty for re-exports, which bind
// nothing in the importing file. Value marks a whole-module binding that
// holds the module's exported value (require, import x = require), so a
// bare use of it is a use of the default export.
type Symbol struct {
	Imported string
	Local    string
	Value    bool
}

// Import is one specifier found by ImportDiscovery.
type Import struct {
	Specifier string
	Kind      ImportKind
	Symbols   []Symbol
	TypeOnly  bool
}

// Export is one exported name found by ExportDiscovery. ReExportFrom is the
// raw specifier of a re-export. Star marks `export * from` (no Name).
type Export struct {
	Name         string
	ReExportFrom string
	Imported     string
	Star         bool
}

// Binding ties a local name to the dependency and export it came from.
type Binding struct {
	Dependency string
	Imported   string
	Value      bool
}

// Reference is one use of an imported export found by UsageCheck.
type Reference struct {
	Dependency string
	Symbol     string
}

// Options tune a traversal.
type Options struct {
	// AddReferences counts every occurrence. When false each
	// (dependency, symbol) pair is reported at most once.
	AddReferences bool
	// Bindings maps local names to their imports. Used by UsageCheck.
	Bindings map[string][]Binding
}

// Result collects the output of one traversal.
type Result struct {
	Mode       Mode
	Imports    []Import
	Exports    []Export
	References []Reference
	// Skipped counts import calls whose arguments were not static strings.
	Skipped int
}

type visitFunc func(w *walker, n *tree_sitter.Node) bool

var visitors = map[Mode]map[string]visitFunc{
	ImportDiscovery: importVisitors,
	ExportDiscovery: exportVisitors,
	UsageCheck:      usageVisitors,
}

type walker struct {
	src   []byte
	opts  Options
	table map[string]visitFunc
	res   *Result
	seen  map[Reference]bool
}

// Traverse walks root in the given mode.
func Traverse(root *tree_sitter.Node, source []byte, mode Mode, opts Options) *Result {
	table, ok := visitors[mode]
	if !ok {
		panic(fmt.Sprintf("traverse: unknown mode %d", mode))
	}
	w := &walker{
		src:   source,
		opts:  opts,
		table: table,
		res:   &Result{Mode: mode},
		seen:  make(map[Reference]bool),
	}
	w.walk(root)
	return w.res
}

func (w *walker) walk(n *tree_sitter.Node) {
	parser.Walk(n, func(node *tree_sitter.Node) bool {
		if fn, ok := w.table[node.Kind()]; ok {
			return fn(w, node)
		}
		return true
	})
}

func (w *walker) text(n *tree_sitter.Node) string {
	return parser.NodeText(n, w.src)
}

func (w *walker) reference(dep, symbol string) {
	ref := Reference{Dependency: dep, Symbol: symbol}
	if !w.opts.AddReferences {
		if w.seen[ref] {
			return
		}
		w.seen[ref] = true
	}
	w.res.References = append(w.res.References, ref)
}

// stringValue returns the value of a string literal or of a template
// string without substitutions.
func (w *walker) stringValue(n *tree_sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind() {
	case "string":
	case "template_string":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if c := n.NamedChild(i); c != nil && c.Kind() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	s := w.text(n)
	if len(s) < 2 {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// moduleName returns an identifier or string used as an import/export name.
func (w *walker) moduleName(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	if v, ok := w.stringValue(n); ok {
		return v
	}
	return w.text(n)
}

// hasToken reports whether n has a direct anonymous child with the given text.
func hasToken(n *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && !c.IsNamed() && c.Kind() == kind {
			return true
		}
	}
	return false
}

func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil && c.Kind() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

func firstNamedOfKind(n *tree_sitter.Node, kinds ...string) *tree_sitter.Node {
	for _, c := range namedChildren(n) {
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

// unwrap strips await, parentheses and TS non-null/as wrappers.
func unwrap(n *tree_sitter.Node) *tree_sitter.Node {
	for n != nil {
		switch n.Kind() {
		case "await_expression", "parenthesized_expression", "non_null_expression",
			"as_expression", "satisfies_expression":
			children := namedChildren(n)
			if len(children) == 0 {
				return n
			}
			n = children[0]
		default:
			return n
		}
	}
	return nil
}
