// Package parser turns annotated SQL module sources into the query AST.
//
// A module is a sequence of `--:` type annotations and `--!` query
// annotations, each query annotation followed by exactly one SQL
// statement terminated by `;`. The annotation line grammar is handled by
// participle; statement bodies are scanned by hand so placeholder spans
// stay byte-accurate.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/electwix/pg-catalyst/internal/diagnostics"
	"github.com/electwix/pg-catalyst/internal/query/ast"
)

// Parse parses one module source. The returned module shares a single
// ModuleInfo allocation with every span-carrying value in it.
func Parse(path string, src []byte) (ast.Module, error) {
	if !utf8.Valid(src) {
		return ast.Module{}, fmt.Errorf("%s:1:1: input is not valid UTF-8", path)
	}
	info := &ast.ModuleInfo{Path: path, Content: string(src)}
	module := ast.Module{Info: info}
	content := info.Content

	lines := splitLines(content)
	idx := 0
	for idx < len(lines) {
		ln := lines[idx]
		trimmed := strings.TrimSpace(ln.text)
		switch {
		case trimmed == "":
			idx++
		case strings.HasPrefix(trimmed, "--:"):
			markerAt := ln.start + strings.Index(ln.text, "--:")
			decl, err := parseTypeAnnotation(info, markerAt, trimmed[len("--:"):])
			if err != nil {
				return ast.Module{}, err
			}
			switch decl.kind {
			case typeKindParam:
				module.ParamTypes = append(module.ParamTypes, decl.annotation)
			case typeKindDB:
				module.DBTypes = append(module.DBTypes, decl.annotation)
			default:
				module.RowTypes = append(module.RowTypes, decl.annotation)
			}
			idx++
		case strings.HasPrefix(trimmed, "--!"):
			markerAt := ln.start + strings.Index(ln.text, "--!")
			annotation, err := parseQueryAnnotation(info, markerAt, trimmed[len("--!"):])
			if err != nil {
				return ast.Module{}, err
			}

			sqlStart := skipSpace(content, ln.start+len(ln.text))
			if sqlStart >= len(content) ||
				strings.HasPrefix(content[sqlStart:], "--!") ||
				strings.HasPrefix(content[sqlStart:], "--:") {
				return ast.Module{}, parseError(info, markerAt, "missing SQL statement for query %q", annotation.Name.Value)
			}
			stmt, end, err := scanStatement(info, content, sqlStart)
			if err != nil {
				return ast.Module{}, err
			}
			module.Queries = append(module.Queries, ast.Query{
				Annotation: annotation,
				SQL:        stmt,
				SQLStart:   sqlStart,
			})
			for idx < len(lines) && lines[idx].start+len(lines[idx].text) < end {
				idx++
			}
			idx++
		case strings.HasPrefix(trimmed, "--"):
			idx++
		default:
			return ast.Module{}, parseError(info, ln.start, "statement is not preceded by a `--!` query annotation")
		}
	}

	return module, nil
}

type lineInfo struct {
	text  string
	start int
}

func splitLines(content string) []lineInfo {
	lines := make([]lineInfo, 0, strings.Count(content, "\n")+1)
	start := 0
	for start <= len(content) {
		end := strings.IndexByte(content[start:], '\n')
		if end < 0 {
			lines = append(lines, lineInfo{text: content[start:], start: start})
			break
		}
		lines = append(lines, lineInfo{text: strings.TrimSuffix(content[start:start+end], "\r"), start: start})
		start += end + 1
	}
	return lines
}

func skipSpace(content string, pos int) int {
	for pos < len(content) {
		switch content[pos] {
		case ' ', '\t', '\r', '\n':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// scanStatement scans one SQL statement up to its terminating semicolon,
// collecting placeholder spans. String literals, quoted identifiers,
// dollar-quoted strings, line comments, block comments, and `::` casts
// are skipped.
func scanStatement(info *ast.ModuleInfo, content string, start int) (ast.SQL, int, error) {
	binds := make([]ast.Span[ast.BindParameter], 0, 4)
	i := start
	for i < len(content) {
		switch c := content[i]; c {
		case ';':
			return ast.SQL{Raw: content[start:i], BindParams: binds}, i, nil
		case '\'':
			i = skipQuoted(content, i, '\'')
		case '"':
			i = skipQuoted(content, i, '"')
		case '-':
			if i+1 < len(content) && content[i+1] == '-' {
				i = skipLineComment(content, i)
			} else {
				i++
			}
		case '/':
			if i+1 < len(content) && content[i+1] == '*' {
				i = skipBlockComment(content, i)
			} else {
				i++
			}
		case '$':
			if i+1 < len(content) && isDigit(content[i+1]) {
				end := i + 1
				for end < len(content) && isDigit(content[end]) {
					end++
				}
				index, err := strconv.Atoi(content[i+1 : end])
				if err != nil {
					return ast.SQL{}, 0, parseError(info, i, "invalid placeholder index %q", content[i:end])
				}
				binds = append(binds, ast.NewSpan(i, end, ast.BindParameter{
					Dialect: ast.DialectPgCompatible,
					Index:   index,
				}))
				i = end
			} else if tagEnd, ok := dollarQuoteTag(content, i); ok {
				closing := content[i:tagEnd]
				rest := strings.Index(content[tagEnd:], closing)
				if rest < 0 {
					return ast.SQL{}, 0, parseError(info, i, "unterminated dollar-quoted string")
				}
				i = tagEnd + rest + len(closing)
			} else {
				i++
			}
		case ':':
			if i+1 < len(content) && content[i+1] == ':' {
				i += 2 // cast
				continue
			}
			if i+1 < len(content) && isIdentStart(content[i+1]) {
				end := i + 1
				for end < len(content) && isIdentPart(content[end]) {
					end++
				}
				binds = append(binds, ast.Span[ast.BindParameter]{
					Start: i,
					End:   end,
					Value: ast.BindParameter{Dialect: ast.DialectExtended, Name: content[i+1 : end]},
				})
				i = end
			} else {
				i++
			}
		default:
			i++
		}
	}
	return ast.SQL{}, 0, parseError(info, start, "unterminated statement, expected `;`")
}

func skipQuoted(content string, start int, quote byte) int {
	i := start + 1
	for i < len(content) {
		if content[i] == quote {
			if i+1 < len(content) && content[i+1] == quote {
				i += 2 // doubled quote escape
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(content string, start int) int {
	end := strings.IndexByte(content[start:], '\n')
	if end < 0 {
		return len(content)
	}
	return start + end
}

func skipBlockComment(content string, start int) int {
	depth := 0
	i := start
	for i+1 < len(content) {
		switch {
		case content[i] == '/' && content[i+1] == '*':
			depth++
			i += 2
		case content[i] == '*' && content[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(content)
}

// dollarQuoteTag reports whether content[start:] opens a dollar-quoted
// string (`$$` or `$tag$`), returning the offset just past the opening
// delimiter.
func dollarQuoteTag(content string, start int) (int, bool) {
	i := start + 1
	for i < len(content) && isIdentPart(content[i]) {
		i++
	}
	if i < len(content) && content[i] == '$' {
		return i + 1, true
	}
	return 0, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func parseError(info *ast.ModuleInfo, offset int, format string, args ...any) error {
	loc, _ := diagnostics.Locate(info.Content, offset)
	return fmt.Errorf("%s:%d:%d: %s", info.Path, loc.Line, loc.Column, fmt.Sprintf(format, args...))
}
