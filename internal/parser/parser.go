package parser

import (
	"errors"
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/DeusData/importgraph/internal/lang"
)

// ErrSyntax is returned when every grammar of a language reports syntax errors.
var ErrSyntax = errors.New("syntax error")

var (
	grammarsOnce sync.Once
	grammars     map[lang.Grammar]*tree_sitter.Language
	parserPools  map[lang.Grammar]*sync.Pool
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[lang.Grammar]*tree_sitter.Language{
			lang.GrammarJavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
			lang.GrammarTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			lang.GrammarTSX:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		}

		parserPools = make(map[lang.Grammar]*sync.Pool, len(grammars))
		for _, g := range lang.AllGrammars() {
			tsLang, ok := grammars[g]
			if !ok {
				panic(fmt.Sprintf("no tree-sitter binding for grammar %s", g))
			}
			parserPools[g] = &sync.Pool{
				New: func() any {
					p := tree_sitter.NewParser()
					if err := p.SetLanguage(tsLang); err != nil {
						panic(fmt.Sprintf("set language: %v", err))
					}
					return p
				},
			}
		}
	})
}

// GetLanguage returns the tree-sitter Language for a grammar.
func GetLanguage(g lang.Grammar) (*tree_sitter.Language, error) {
	initGrammars()
	tsLang, ok := grammars[g]
	if !ok {
		return nil, fmt.Errorf("unsupported grammar: %s", g)
	}
	return tsLang, nil
}

// Parse parses source code with one grammar into a tree-sitter AST Tree.
// The caller must call tree.Close() when done.
// Parsers are pooled per grammar via sync.Pool to avoid per-file allocation.
func Parse(g lang.Grammar, source []byte) (*tree_sitter.Tree, error) {
	initGrammars()

	pool, ok := parserPools[g]
	if !ok {
		return nil, fmt.Errorf("unsupported grammar: %s", g)
	}

	p, _ := pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser for grammar %s", g)
	}
	tree := p.Parse(source, nil)
	pool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed for grammar %s", g)
	}

	return tree, nil
}

// ParseLanguage parses source with each grammar of the language in order and
// returns the first tree free of syntax errors, together with the grammar that
// produced it. The first grammar accepts JSX; a failure there is retried with
// the non-JSX grammars (TypeScript angle-bracket casts do not parse as TSX).
func ParseLanguage(l lang.Language, source []byte) (*tree_sitter.Tree, lang.Grammar, error) {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return nil, "", fmt.Errorf("unsupported language: %s", l)
	}
	for _, g := range spec.Grammars {
		tree, err := Parse(g, source)
		if err != nil {
			return nil, "", err
		}
		if !tree.RootNode().HasError() {
			return tree, g, nil
		}
		tree.Close()
	}
	return nil, "", fmt.Errorf("%s: %w", l, ErrSyntax)
}

// WalkFunc is called for each node during AST traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the AST in depth-first order.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			Walk(child, fn)
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
