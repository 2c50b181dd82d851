// Package ast defines the annotated query AST shared by the parser, the
// validator, and the type resolution stage.
package ast

import (
	"strconv"
	"strings"
)

// Span pairs a value with its byte offsets into the module source.
// Start and End always satisfy Start <= End.
type Span[T any] struct {
	Start int
	End   int
	Value T
}

// NewSpan constructs a Span covering [start, end).
func NewSpan[T any](start, end int, value T) Span[T] {
	return Span[T]{Start: start, End: end, Value: value}
}

// Dialect identifies one of the two mutually exclusive bind parameter
// syntaxes a query may use.
type Dialect int

const (
	// DialectExtended uses named placeholders (`:ident`).
	DialectExtended Dialect = iota
	// DialectPgCompatible uses indexed placeholders (`$n`).
	DialectPgCompatible
)

func (d Dialect) String() string {
	if d == DialectPgCompatible {
		return "pg-compatible"
	}
	return "extended"
}

// BindParameter is a single placeholder found in a statement. Dialect
// selects which of Index and Name is meaningful.
type BindParameter struct {
	Dialect Dialect
	Index   int    // $n placeholders
	Name    string // :ident placeholders
}

// NullableIdent is a parameter or column name with an optional explicit
// nullability override.
type NullableIdent struct {
	Name     string
	Nullable bool
}

// Shape is the parameter or row structure of a query: either a Named
// reference into the module's type registries, or an inline Implicit
// field list.
type Shape struct {
	Name   *Span[string]
	Fields []Span[NullableIdent]
}

// Named reports whether the shape references a registered named struct.
func (s Shape) Named() bool { return s.Name != nil }

// Annotation is the parsed `--!` header of a query.
type Annotation struct {
	Name  Span[string]
	Param Shape
	Row   Shape
}

// SQL is one statement together with the placeholders found in it. Bind
// parameter spans are byte offsets into the module source, not into Raw.
type SQL struct {
	Raw        string
	BindParams []Span[BindParameter]
}

// Normalize rewrites extended placeholders to their 1-based indexed form.
// order must be the value-sorted, duplicate-free name list; each `:name`
// occurrence becomes `$n` where n is the name's position in order.
// sqlStart is the byte offset of Raw within the module source.
func (s SQL) Normalize(sqlStart int, order []Span[string]) string {
	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name.Value] = i + 1
	}

	var b strings.Builder
	b.Grow(len(s.Raw))
	cursor := 0
	for _, bp := range s.BindParams {
		if bp.Value.Dialect != DialectExtended {
			continue
		}
		start := bp.Start - sqlStart
		end := bp.End - sqlStart
		if start < cursor || end > len(s.Raw) {
			continue
		}
		b.WriteString(s.Raw[cursor:start])
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(index[bp.Value.Name]))
		cursor = end
	}
	b.WriteString(s.Raw[cursor:])
	return b.String()
}

// Query is one annotated statement.
type Query struct {
	Annotation Annotation
	SQL        SQL
	SQLStart   int
}

// TypeAnnotation is a `--:` declaration registering a named struct.
type TypeAnnotation struct {
	Name   Span[string]
	Fields []Span[NullableIdent]
}

// ModuleInfo carries the source identity shared by every error produced
// for one module. It is allocated once and shared by reference.
type ModuleInfo struct {
	Path    string
	Content string
}

// Module is one parsed source file: its type registries and queries, in
// declaration order.
type Module struct {
	Info       *ModuleInfo
	ParamTypes []TypeAnnotation
	RowTypes   []TypeAnnotation
	DBTypes    []TypeAnnotation
	Queries    []Query
}
