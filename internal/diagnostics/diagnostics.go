// Package diagnostics renders source-position-anchored error reports.
// It computes 1-based line/column locations from byte offsets and formats
// the anchored snippet blocks used by validation errors.
package diagnostics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Location is a 1-based line/column position in source text.
type Location struct {
	Line   int
	Column int
}

// Locate computes the Location of a byte offset by scanning the source's
// newline boundaries. It returns the full text of the containing line,
// without its terminator. Offsets past the end of the source resolve to
// the last line. Columns count runes.
func Locate(content string, offset int) (Location, string) {
	if offset > len(content) {
		offset = len(content)
	}
	line := 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	lineEnd := strings.IndexByte(content[lineStart:], '\n')
	if lineEnd < 0 {
		lineEnd = len(content)
	} else {
		lineEnd += lineStart
	}
	text := strings.TrimSuffix(content[lineStart:lineEnd], "\r")
	column := utf8.RuneCountInString(content[lineStart:offset]) + 1
	return Location{Line: line, Column: column}, text
}

// Block renders one source position as an anchored snippet: the location,
// the full line, a caret marker padded to the column, then one message
// line per entry in messages.
func Block(content string, offset int, messages ...string) string {
	loc, line := Locate(content, offset)
	cursor := strings.Repeat(" ", loc.Column-1) + "^---"
	var b strings.Builder
	fmt.Fprintf(&b, " --> %d:%d\n", loc.Line, loc.Column)
	b.WriteString("  | \n")
	b.WriteString("  | " + line + "\n")
	b.WriteString("  | " + cursor + "\n")
	b.WriteString("  | \n")
	b.WriteString("  = " + strings.Join(messages, "\n  = "))
	return b.String()
}
