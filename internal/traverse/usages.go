package traverse

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

var usageVisitors = map[string]visitFunc{
	"import_statement":              skipNode,
	"export_statement":              visitUsageExport,
	"variable_declarator":           visitUsageDeclarator,
	"identifier":                    visitUsageIdentifier,
	"type_identifier":               visitUsageIdentifier,
	"shorthand_property_identifier": visitUsageIdentifier,
	"member_expression":             visitUsageMember,
	"subscript_expression":          visitUsageSubscript,
	"nested_type_identifier":        visitUsageNestedType,
}

func skipNode(*walker, *tree_sitter.Node) bool { return false }

// Re-export names refer to the other module, not to local bindings.
func visitUsageExport(_ *walker, n *tree_sitter.Node) bool {
	return n.ChildByFieldName("source") == nil
}

// A declarator that consumes an import declares bindings; it uses nothing.
func visitUsageDeclarator(w *walker, n *tree_sitter.Node) bool {
	call, _, _ := w.importValue(n.ChildByFieldName("value"))
	return call == nil
}

// A bare use of a module-value binding (const f = require('x'); f())
// references the default export.
func visitUsageIdentifier(w *walker, n *tree_sitter.Node) bool {
	for _, b := range w.opts.Bindings[w.text(n)] {
		if b.Imported == Namespace {
			if b.Value {
				w.reference(b.Dependency, Default)
			}
			continue
		}
		w.reference(b.Dependency, b.Imported)
	}
	return false
}

// namespaceDeps returns the dependencies n names when it is a namespace
// binding (import * as ns, const ns = require(…)).
func (w *walker) namespaceDeps(n *tree_sitter.Node) []string {
	if n == nil || n.Kind() != "identifier" {
		return nil
	}
	var deps []string
	for _, b := range w.opts.Bindings[w.text(n)] {
		if b.Imported == Namespace {
			deps = append(deps, b.Dependency)
		}
	}
	return deps
}

// ns.x
func visitUsageMember(w *walker, n *tree_sitter.Node) bool {
	deps := w.namespaceDeps(n.ChildByFieldName("object"))
	if len(deps) == 0 {
		return true
	}
	prop := n.ChildByFieldName("property")
	if prop == nil {
		return false
	}
	name := w.text(prop)
	for _, dep := range deps {
		w.reference(dep, name)
	}
	return false
}

// ns['x'] and ns[`x`]; computed indexes are not attributed.
func visitUsageSubscript(w *walker, n *tree_sitter.Node) bool {
	deps := w.namespaceDeps(n.ChildByFieldName("object"))
	if len(deps) == 0 {
		return true
	}
	index := n.ChildByFieldName("index")
	if name, ok := w.stringValue(index); ok {
		for _, dep := range deps {
			w.reference(dep, name)
		}
		return false
	}
	if index != nil {
		w.walk(index)
	}
	return false
}

// ns.Type in type positions.
func visitUsageNestedType(w *walker, n *tree_sitter.Node) bool {
	deps := w.namespaceDeps(n.ChildByFieldName("module"))
	if len(deps) == 0 {
		return true
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		return false
	}
	for _, dep := range deps {
		w.reference(dep, w.text(name))
	}
	return false
}
