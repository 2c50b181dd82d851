package validate

import (
	"fmt"
	"strings"

	"github.com/electwix/pg-catalyst/internal/diagnostics"
	"github.com/electwix/pg-catalyst/internal/query/ast"
)

// ErrorKind discriminates the closed set of validation failures.
type ErrorKind int

const (
	// KindAmbiguousBindParam reports mixed placeholder syntaxes in one query.
	KindAmbiguousBindParam ErrorKind = iota
	// KindInvalidI16Index reports an indexed placeholder outside 1..32767.
	KindInvalidI16Index
	// KindDuplicateField reports a name used twice in a declared field list.
	KindDuplicateField
	// KindTooManyBindParams reports an index past the declared parameter count.
	KindTooManyBindParams
	// KindUnusedParam reports a declared parameter never referenced by index.
	KindUnusedParam
	// KindInvalidNullableName reports a nullability override naming no real
	// column or parameter of the prepared statement.
	KindInvalidNullableName
	// KindNamedStructInvalidFields reports a named struct reused with a
	// different field set.
	KindNamedStructInvalidFields
	// KindDuplicateQueryName reports two queries sharing a name.
	KindDuplicateQueryName
	// KindNamedStructInPgQuery reports a named struct annotation on a query
	// using the pg-compatible placeholder syntax.
	KindNamedStructInPgQuery
	// KindUnknownNamedStruct reports a reference to an unregistered struct.
	KindUnknownNamedStruct
)

// StructField is the identity of one prepared field as seen by the named
// struct consistency check: name, resolved Go type, and nullability.
type StructField struct {
	Name     string
	GoType   string
	Nullable bool
}

func (f StructField) String() string {
	s := f.Name + " " + f.GoType
	if f.Nullable {
		s += "?"
	}
	return s
}

// Error is a single validation failure. Every Error carries its module's
// shared context so rendering needs no external lookup. All kinds are
// terminal, user-input-class errors; none are retryable.
type Error struct {
	Kind ErrorKind
	Info *ast.ModuleInfo

	// Pos anchors single-position kinds.
	Pos int
	// NbParams is the declared parameter count (KindTooManyBindParams).
	NbParams int
	// Index is the 1-based unused parameter index (KindUnusedParam).
	Index int
	// Nullable is the offending override (KindInvalidNullableName).
	Nullable ast.Span[ast.NullableIdent]
	// Name1 and Name2 are the colliding names (KindDuplicateQueryName).
	Name1 ast.Span[string]
	Name2 ast.Span[string]
	// StructName, Expected, and Got describe a named struct mismatch
	// (KindNamedStructInvalidFields).
	StructName ast.Span[string]
	Expected   []StructField
	Got        []StructField
}

// Error renders the failure as a source-anchored report.
func (e *Error) Error() string {
	head := fmt.Sprintf("Error while validating queries [path: %q]:\n", e.Info.Path)
	content := e.Info.Content

	switch e.Kind {
	case KindAmbiguousBindParam:
		return head + diagnostics.Block(content, e.Pos,
			"Cannot mix bind parameter syntaxes in the same query.",
			"Please use either named (`:named_ident`) or indexed (`$n`) bind parameters, but not both.")
	case KindInvalidI16Index:
		return head + diagnostics.Block(content, e.Pos,
			"Index must be between 1 and 32767.")
	case KindDuplicateField:
		return head + diagnostics.Block(content, e.Pos,
			"Column name is already used.")
	case KindTooManyBindParams:
		return head + diagnostics.Block(content, e.Pos,
			fmt.Sprintf("Index is higher than the number of parameters supplied (%d).", e.NbParams))
	case KindUnusedParam:
		return head + diagnostics.Block(content, e.Pos,
			fmt.Sprintf("Parameter `$%d` is never used in the query.", e.Index))
	case KindInvalidNullableName:
		return head + diagnostics.Block(content, e.Nullable.Start,
			fmt.Sprintf("No column named `%s` found for this query.", e.Nullable.Value.Name))
	case KindNamedStructInvalidFields:
		return head + diagnostics.Block(content, e.StructName.Start,
			fmt.Sprintf("This query's named row struct `%s` has already been used, but the fields don't match.", e.StructName.Value),
			"Expected fields: "+formatFields(e.Expected),
			"Got fields: "+formatFields(e.Got))
	case KindDuplicateQueryName:
		first := diagnostics.Block(content, e.Name1.Start,
			fmt.Sprintf("A query named `%s` already exists.", e.Name1.Value))
		second := diagnostics.Block(content, e.Name2.Start,
			fmt.Sprintf("Query `%s` first defined here.", e.Name2.Value))
		return head + first + "\n\n" + second
	case KindNamedStructInPgQuery:
		return head + diagnostics.Block(content, e.Pos,
			"Named query structs are not allowed when using the PostgreSQL-compatible syntax.",
			"Use anonymous structs instead, or use the extended query syntax.")
	case KindUnknownNamedStruct:
		return head + diagnostics.Block(content, e.Pos,
			"Unknown named struct. Named structs must be registered using type annotations.")
	default:
		return head + "unknown validation error"
	}
}

func formatFields(fields []StructField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
