package traverse

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

var exportVisitors = map[string]visitFunc{
	"export_statement":      visitExportStatement,
	"assignment_expression": visitCommonJSExport,
}

func (w *walker) export(name string) {
	if name == "" {
		return
	}
	w.res.Exports = append(w.res.Exports, Export{Name: name})
}

// visitExportStatement records ES and TS export forms.
//
//	export_statement
//	  declaration: function_declaration | class_declaration | lexical_declaration | …
//	  value: expression                         export default expr
//	  export_clause > export_specifier          name: alias:
//	  namespace_export                          export * as ns from …
//	  source: string                            re-export
func visitExportStatement(w *walker, n *tree_sitter.Node) bool {
	if src := n.ChildByFieldName("source"); src != nil {
		if spec, ok := w.stringValue(src); ok {
			w.reExports(n, spec)
		}
		return false
	}

	// export default … and TS export = …
	if hasToken(n, "default") || hasToken(n, "=") {
		w.export(Default)
		return false
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		for _, name := range w.declarationNames(decl) {
			w.export(name)
		}
		return false
	}

	if clause := firstNamedOfKind(n, "export_clause"); clause != nil {
		for _, s := range namedChildren(clause) {
			if s.Kind() != "export_specifier" {
				continue
			}
			name := w.moduleName(s.ChildByFieldName("name"))
			if alias := s.ChildByFieldName("alias"); alias != nil {
				name = w.moduleName(alias)
			}
			w.export(name)
		}
	}
	return false
}

func (w *walker) reExports(n *tree_sitter.Node, spec string) {
	named := false
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "export_clause":
			named = true
			for _, s := range namedChildren(c) {
				if s.Kind() != "export_specifier" {
					continue
				}
				imported := w.moduleName(s.ChildByFieldName("name"))
				name := imported
				if alias := s.ChildByFieldName("alias"); alias != nil {
					name = w.moduleName(alias)
				}
				w.res.Exports = append(w.res.Exports, Export{Name: name, ReExportFrom: spec, Imported: imported})
			}
		case "namespace_export":
			named = true
			if ids := namedChildren(c); len(ids) > 0 {
				w.res.Exports = append(w.res.Exports, Export{
					Name:         w.moduleName(ids[0]),
					ReExportFrom: spec,
					Imported:     Namespace,
				})
			}
		}
	}
	if !named && hasToken(n, "*") {
		w.res.Exports = append(w.res.Exports, Export{ReExportFrom: spec, Star: true})
	}
}

func (w *walker) declarationNames(decl *tree_sitter.Node) []string {
	switch decl.Kind() {
	case "lexical_declaration", "variable_declaration":
		var names []string
		for _, c := range namedChildren(decl) {
			if c.Kind() == "variable_declarator" {
				names = w.patternNames(c.ChildByFieldName("name"), names)
			}
		}
		return names
	case "ambient_declaration":
		var names []string
		for _, c := range namedChildren(decl) {
			names = append(names, w.declarationNames(c)...)
		}
		return names
	}
	if name := decl.ChildByFieldName("name"); name != nil {
		return []string{w.moduleName(name)}
	}
	return nil
}

// patternNames collects every identifier a destructuring pattern declares.
func (w *walker) patternNames(p *tree_sitter.Node, names []string) []string {
	if p == nil {
		return names
	}
	switch p.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		return append(names, w.text(p))
	case "pair_pattern":
		return w.patternNames(p.ChildByFieldName("value"), names)
	case "object_assignment_pattern", "assignment_pattern":
		return w.patternNames(p.ChildByFieldName("left"), names)
	case "object_pattern", "array_pattern", "rest_pattern":
		for _, c := range namedChildren(p) {
			names = w.patternNames(c, names)
		}
	}
	return names
}

// visitCommonJSExport records CommonJS exports.
//
//	module.exports = { a, b: c, d() {} }    a, b, d
//	module.exports = anything else          default
//	module.exports.x = … / exports.x = …    x
func visitCommonJSExport(w *walker, n *tree_sitter.Node) bool {
	left := n.ChildByFieldName("left")
	if left == nil || left.Kind() != "member_expression" {
		return true
	}

	if w.isModuleExports(left) {
		right := unwrap(n.ChildByFieldName("right"))
		if right == nil || right.Kind() != "object" {
			w.export(Default)
			return true
		}
		for _, c := range namedChildren(right) {
			switch c.Kind() {
			case "pair", "method_definition":
				field := "key"
				if c.Kind() == "method_definition" {
					field = "name"
				}
				key := c.ChildByFieldName(field)
				if key != nil && key.Kind() != "computed_property_name" {
					w.export(w.moduleName(key))
				}
			case "shorthand_property_identifier":
				w.export(w.text(c))
			}
		}
		return true
	}

	obj := left.ChildByFieldName("object")
	prop := left.ChildByFieldName("property")
	if prop == nil {
		return true
	}
	if w.isModuleExports(obj) || (obj != nil && obj.Kind() == "identifier" && w.text(obj) == "exports") {
		w.export(w.text(prop))
	}
	return true
}

func (w *walker) isModuleExports(n *tree_sitter.Node) bool {
	if n == nil || n.Kind() != "member_expression" {
		return false
	}
	obj := n.ChildByFieldName("object")
	prop := n.ChildByFieldName("property")
	return obj != nil && prop != nil &&
		obj.Kind() == "identifier" && w.text(obj) == "module" &&
		w.text(prop) == "exports"
}
