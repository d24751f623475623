package lang

func init() {
	Register(&LanguageSpec{
		Language:       TypeScript,
		FileExtensions: []string{".ts", ".mts", ".cts"},
		Grammars:       []Grammar{GrammarTSX, GrammarTypeScript},
	})
}
