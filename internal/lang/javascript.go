package lang

func init() {
	Register(&LanguageSpec{
		Language:       JavaScript,
		FileExtensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		Grammars:       []Grammar{GrammarJavaScript, GrammarTypeScript},
	})
}
