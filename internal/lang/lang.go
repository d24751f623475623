package lang

import (
	"path/filepath"
	"strings"
)

// Language represents a supported source language.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
)

// Grammar identifies a tree-sitter grammar. A language may be parsed with
// more than one grammar when the first attempt reports syntax errors.
type Grammar string

const (
	GrammarJavaScript Grammar = "javascript"
	GrammarTypeScript Grammar = "typescript"
	GrammarTSX        Grammar = "tsx"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{JavaScript, TypeScript, TSX}
}

// AllGrammars returns every grammar the parser must load.
func AllGrammars() []Grammar {
	return []Grammar{GrammarJavaScript, GrammarTypeScript, GrammarTSX}
}

// LanguageSpec describes how files of one language are recognised and parsed.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string
	// Grammars lists parse attempts in order. The first grammar accepts JSX;
	// the remaining ones are retried without JSX when the first fails.
	Grammars []Grammar
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".ts").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// ForPath returns the LanguageSpec for a file path, or nil when the file is
// not a recognised source file.
func ForPath(path string) *LanguageSpec {
	return registry[strings.ToLower(filepath.Ext(path))]
}

// IsSource reports whether path has a recognised source extension.
func IsSource(path string) bool {
	return ForPath(path) != nil
}
