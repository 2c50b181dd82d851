package codegen

import (
	"go/token"
	"strings"
	"unicode"
)

const keywordSuffix = "Value"

func splitWords(raw string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for i, r := range raw {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			if i > 0 {
				flush()
			}
			current.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

// ExportedIdentifier converts a raw query or field name into a public Go
// identifier.
func ExportedIdentifier(raw string) string {
	words := splitWords(raw)
	if len(words) == 0 {
		return "X"
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	ident := b.String()
	if unicode.IsDigit(rune(ident[0])) {
		ident = "X" + ident
	}
	return ident
}

// UnexportedIdentifier converts a raw name into a private Go identifier,
// steering clear of keywords.
func UnexportedIdentifier(raw string) string {
	words := splitWords(raw)
	if len(words) == 0 {
		return "value"
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	ident := b.String()
	if unicode.IsDigit(rune(ident[0])) {
		ident = "v" + ident
	}
	if token.Lookup(ident).IsKeyword() {
		ident += keywordSuffix
	}
	return ident
}

// FileName converts a raw module name into a snake_case file name
// segment.
func FileName(raw string) string {
	words := splitWords(raw)
	if len(words) == 0 {
		return "queries"
	}
	return strings.Join(words, "_")
}
