package traverse

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/importgraph/internal/parser"
)

var importVisitors = map[string]visitFunc{
	"import_statement":    visitImportStatement,
	"export_statement":    visitReExportStatement,
	"variable_declarator": visitImportDeclarator,
	"call_expression":     visitImportCall,
}

// visitImportStatement records ES imports and TS import-equals.
//
//	import_statement
//	  import_clause
//	    identifier                          default
//	    namespace_import > identifier       * as ns
//	    named_imports > import_specifier    name: alias:
//	  source: string
//	  import_require_clause                 import x = require('y')
//	    identifier
//	    source: string
func visitImportStatement(w *walker, n *tree_sitter.Node) bool {
	typeOnly := hasToken(n, "type")

	if clause := firstNamedOfKind(n, "import_require_clause"); clause != nil {
		spec, ok := w.stringValue(sourceOf(clause))
		if !ok {
			w.res.Skipped++
			return false
		}
		imp := Import{Specifier: spec, Kind: ImportEquals, TypeOnly: typeOnly}
		if id := firstNamedOfKind(clause, "identifier"); id != nil {
			imp.Symbols = []Symbol{{Imported: Namespace, Local: w.text(id), Value: true}}
		}
		w.res.Imports = append(w.res.Imports, imp)
		return false
	}

	spec, ok := w.stringValue(sourceOf(n))
	if !ok {
		return false
	}
	imp := Import{Specifier: spec, Kind: ImportStatic, TypeOnly: typeOnly}
	if clause := firstNamedOfKind(n, "import_clause"); clause != nil {
		imp.Symbols = w.importClause(clause)
	}
	w.res.Imports = append(w.res.Imports, imp)
	return false
}

func sourceOf(n *tree_sitter.Node) *tree_sitter.Node {
	if src := n.ChildByFieldName("source"); src != nil {
		return src
	}
	return firstNamedOfKind(n, "string")
}

func (w *walker) importClause(clause *tree_sitter.Node) []Symbol {
	var syms []Symbol
	for _, c := range namedChildren(clause) {
		switch c.Kind() {
		case "identifier":
			syms = append(syms, Symbol{Imported: Default, Local: w.text(c)})
		case "namespace_import":
			if id := firstNamedOfKind(c, "identifier"); id != nil {
				syms = append(syms, Symbol{Imported: Namespace, Local: w.text(id)})
			}
		case "named_imports":
			for _, spec := range namedChildren(c) {
				if spec.Kind() != "import_specifier" {
					continue
				}
				name := w.moduleName(spec.ChildByFieldName("name"))
				if name == "" {
					continue
				}
				local := name
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = w.text(alias)
				}
				syms = append(syms, Symbol{Imported: name, Local: local})
			}
		}
	}
	return syms
}

// visitReExportStatement records `export … from` as a dependency. Exports
// without a source fall through so declarations are still searched.
func visitReExportStatement(w *walker, n *tree_sitter.Node) bool {
	src := n.ChildByFieldName("source")
	if src == nil {
		return true
	}
	spec, ok := w.stringValue(src)
	if !ok {
		return false
	}
	imp := Import{Specifier: spec, Kind: ImportReExport, TypeOnly: hasToken(n, "type")}
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "export_clause":
			for _, s := range namedChildren(c) {
				if s.Kind() == "export_specifier" {
					imp.Symbols = append(imp.Symbols, Symbol{Imported: w.moduleName(s.ChildByFieldName("name"))})
				}
			}
		case "namespace_export":
			imp.Symbols = append(imp.Symbols, Symbol{Imported: Namespace})
		}
	}
	if len(imp.Symbols) == 0 && hasToken(n, "*") {
		imp.Symbols = []Symbol{{Imported: Namespace}}
	}
	w.res.Imports = append(w.res.Imports, imp)
	return false
}

// visitImportDeclarator handles declarators whose initializer consumes an
// import and binds its result:
//
//	const x = require('y')               x -> *
//	const {a, b: c} = require('y')       a -> a, c -> b
//	const f = require('y').f             f -> f
//	const m = await import('y')          m -> *
//	const Page = lazy(() => import('y')) Page -> default
func visitImportDeclarator(w *walker, n *tree_sitter.Node) bool {
	call, kind, member := w.importValue(n.ChildByFieldName("value"))
	if call == nil {
		return true
	}
	spec, ok := w.callSpecifier(call)
	if !ok {
		w.res.Skipped++
		return false
	}
	imp := Import{Specifier: spec, Kind: kind}
	name := n.ChildByFieldName("name")
	switch {
	case kind == ImportLazy:
		if name != nil && name.Kind() == "identifier" {
			imp.Symbols = []Symbol{{Imported: Default, Local: w.text(name)}}
		}
	case member != "":
		if name != nil && name.Kind() == "identifier" {
			imp.Symbols = []Symbol{{Imported: member, Local: w.text(name)}}
		}
	default:
		imp.Symbols = w.patternSymbols(name)
		if kind == ImportRequire && name != nil && name.Kind() == "identifier" {
			imp.Symbols[0].Value = true
		}
	}
	w.res.Imports = append(w.res.Imports, imp)
	return false
}

// importValue classifies a declarator initializer. It returns the call
// carrying the specifier, or nil when the value does not consume an import.
func (w *walker) importValue(value *tree_sitter.Node) (call *tree_sitter.Node, kind ImportKind, member string) {
	if value == nil {
		return nil, "", ""
	}
	awaited := value.Kind() == "await_expression"
	value = unwrap(value)
	if value == nil {
		return nil, "", ""
	}
	if value.Kind() == "member_expression" {
		obj := unwrap(value.ChildByFieldName("object"))
		prop := value.ChildByFieldName("property")
		if obj == nil || prop == nil || !w.isRequire(obj) {
			return nil, "", ""
		}
		return obj, ImportRequire, w.text(prop)
	}
	if value.Kind() != "call_expression" {
		return nil, "", ""
	}
	switch {
	case w.isRequire(value):
		return value, ImportRequire, ""
	case awaited && isDynamicImport(value):
		return value, ImportDynamic, ""
	case w.isLazy(value):
		if target := lazyTarget(value); target != nil {
			return target, ImportLazy, ""
		}
	}
	return nil, "", ""
}

// visitImportCall records import calls outside binding declarators.
//
//	require('x')
//	import('x')
//	import('x').then(({a}) => …)
//	lazy(() => import('x'))
func visitImportCall(w *walker, n *tree_sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return true
	}

	if fn.Kind() == "member_expression" {
		prop := fn.ChildByFieldName("property")
		obj := unwrap(fn.ChildByFieldName("object"))
		if prop == nil || w.text(prop) != "then" || !isDynamicImport(obj) {
			return true
		}
		if spec, ok := w.callSpecifier(obj); ok {
			w.res.Imports = append(w.res.Imports, Import{
				Specifier: spec,
				Kind:      ImportDynamicThen,
				Symbols:   w.thenSymbols(n),
			})
		} else {
			w.res.Skipped++
		}
		w.walk(n.ChildByFieldName("arguments"))
		return false
	}

	var call *tree_sitter.Node
	var kind ImportKind
	switch {
	case isDynamicImport(n):
		call, kind = n, ImportDynamic
	case w.isRequire(n):
		call, kind = n, ImportRequire
	case w.isLazy(n):
		call, kind = lazyTarget(n), ImportLazy
	}
	if call == nil {
		return true
	}
	spec, ok := w.callSpecifier(call)
	if !ok {
		w.res.Skipped++
		return false
	}
	w.res.Imports = append(w.res.Imports, Import{Specifier: spec, Kind: kind})
	return false
}

// callSpecifier returns the first argument of an import call. Every argument
// must be a static string; anything else cannot be resolved.
func (w *walker) callSpecifier(call *tree_sitter.Node) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Kind() != "arguments" {
		return "", false
	}
	list := namedChildren(args)
	if len(list) == 0 {
		return "", false
	}
	for _, a := range list {
		if _, ok := w.stringValue(a); !ok {
			return "", false
		}
	}
	return w.stringValue(list[0])
}

func (w *walker) isRequire(n *tree_sitter.Node) bool {
	if n == nil || n.Kind() != "call_expression" {
		return false
	}
	fn := n.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && w.text(fn) == "require"
}

func isDynamicImport(n *tree_sitter.Node) bool {
	if n == nil || n.Kind() != "call_expression" {
		return false
	}
	fn := n.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "import"
}

// isLazy matches lazy(…) and React.lazy(…).
func (w *walker) isLazy(n *tree_sitter.Node) bool {
	if n == nil || n.Kind() != "call_expression" {
		return false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	switch fn.Kind() {
	case "identifier":
		return w.text(fn) == "lazy"
	case "member_expression":
		prop := fn.ChildByFieldName("property")
		return prop != nil && w.text(prop) == "lazy"
	}
	return false
}

// lazyTarget finds the import() call inside a lazy wrapper's factory.
func lazyTarget(call *tree_sitter.Node) *tree_sitter.Node {
	args := namedChildren(call.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return nil
	}
	var found *tree_sitter.Node
	parser.Walk(args[0], func(n *tree_sitter.Node) bool {
		if found != nil {
			return false
		}
		if isDynamicImport(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// thenSymbols binds the first parameter of a .then callback.
func (w *walker) thenSymbols(call *tree_sitter.Node) []Symbol {
	args := namedChildren(call.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return nil
	}
	return w.patternSymbols(firstParam(args[0]))
}

func firstParam(fn *tree_sitter.Node) *tree_sitter.Node {
	if fn == nil {
		return nil
	}
	switch fn.Kind() {
	case "arrow_function", "function_expression", "function":
	default:
		return nil
	}
	if p := fn.ChildByFieldName("parameter"); p != nil {
		return p
	}
	params := namedChildren(fn.ChildByFieldName("parameters"))
	if len(params) == 0 {
		return nil
	}
	p := params[0]
	if p.Kind() == "required_parameter" || p.Kind() == "optional_parameter" {
		p = p.ChildByFieldName("pattern")
	}
	if p != nil && p.Kind() == "assignment_pattern" {
		p = p.ChildByFieldName("left")
	}
	return p
}

// patternSymbols turns a binding pattern into imported symbols. A plain
// identifier binds the whole module.
func (w *walker) patternSymbols(p *tree_sitter.Node) []Symbol {
	if p == nil {
		return nil
	}
	switch p.Kind() {
	case "identifier":
		return []Symbol{{Imported: Namespace, Local: w.text(p)}}
	case "object_pattern":
	default:
		return nil
	}

	var syms []Symbol
	for _, c := range namedChildren(p) {
		switch c.Kind() {
		case "shorthand_property_identifier_pattern":
			name := w.text(c)
			syms = append(syms, Symbol{Imported: name, Local: name})
		case "object_assignment_pattern":
			if left := c.ChildByFieldName("left"); left != nil {
				name := w.text(left)
				syms = append(syms, Symbol{Imported: name, Local: name})
			}
		case "pair_pattern":
			key := c.ChildByFieldName("key")
			value := c.ChildByFieldName("value")
			if key == nil || value == nil || key.Kind() == "computed_property_name" {
				continue
			}
			if value.Kind() == "assignment_pattern" {
				value = value.ChildByFieldName("left")
			}
			if value != nil && value.Kind() == "identifier" {
				syms = append(syms, Symbol{Imported: w.moduleName(key), Local: w.text(value)})
			}
		case "rest_pattern":
			if id := firstNamedOfKind(c, "identifier"); id != nil {
				syms = append(syms, Symbol{Imported: Namespace, Local: w.text(id)})
			}
		}
	}
	return syms
}
