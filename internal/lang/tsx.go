package lang

func init() {
	Register(&LanguageSpec{
		Language:       TSX,
		FileExtensions: []string{".tsx"},
		Grammars:       []Grammar{GrammarTSX, GrammarTypeScript},
	})
}
