// Command ast_debug prints the tree-sitter syntax tree of a JavaScript or
// TypeScript file, followed by what each traversal mode extracts from it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/importgraph/internal/lang"
	"github.com/DeusData/importgraph/internal/parser"
	"github.com/DeusData/importgraph/internal/traverse"
)

func printAST(w io.Writer, node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	parentKind := "nil"
	if node.Parent() != nil {
		parentKind = node.Parent().Kind()
	}
	text := parser.NodeText(node, source)
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Fprintf(w, "%s%s (parent=%s) %q\n", strings.Repeat("  ", indent), node.Kind(), parentKind, text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(w, node.Child(i), source, indent+1)
	}
}

// dump parses source as the language of path and writes the tree and the
// results of every traversal mode.
func dump(w io.Writer, path string, source []byte) error {
	spec := lang.ForPath(path)
	if spec == nil {
		return fmt.Errorf("%s: not a JavaScript/TypeScript file", path)
	}
	source = bytes.TrimPrefix(source, []byte("\xef\xbb\xbf"))
	tree, grammar, err := parser.ParseLanguage(spec.Language, source)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer tree.Close()

	fmt.Fprintf(w, "=== %s AST (%s) ===\n", path, grammar)
	printAST(w, tree.RootNode(), source, 0)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, mode := range traverse.Modes {
		fmt.Fprintf(w, "\n=== %s ===\n", mode)
		res := traverse.Traverse(tree.RootNode(), source, mode, traverse.Options{AddReferences: true})
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ast_debug <file.js|file.ts|...>...")
		os.Exit(2)
	}
	for _, path := range os.Args[1:] {
		source, err := os.ReadFile(path)
		if err == nil {
			err = dump(os.Stdout, path, source)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
}
