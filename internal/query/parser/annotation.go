package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/electwix/pg-catalyst/internal/query/ast"
)

// Annotation line grammar, shared by `--!` query headers and `--:` type
// declarations. Spans are rebased onto module byte offsets after parsing.

var annotationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(),:?]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

type annIdent struct {
	Pos    lexer.Position
	Name   string `parser:"@Ident"`
	EndPos lexer.Position
}

type fieldExpr struct {
	Pos      lexer.Position
	Name     string `parser:"@Ident"`
	Nullable bool   `parser:"@\"?\"?"`
	EndPos   lexer.Position
}

type fieldList struct {
	Fields []fieldExpr `parser:"\"(\" (@@ (\",\" @@)*)? \")\""`
}

type shapeExpr struct {
	List  *fieldList `parser:"@@"`
	Named *annIdent  `parser:"| @@"`
}

type queryAnn struct {
	Name  annIdent   `parser:"@@"`
	Param *shapeExpr `parser:"@@?"`
	Row   *shapeExpr `parser:"(\":\" @@)?"`
}

type typeAnn struct {
	Kind string    `parser:"@(\"param\" | \"row\" | \"db\")?"`
	Name annIdent  `parser:"@@"`
	List fieldList `parser:"@@"`
}

var (
	queryAnnParser = participle.MustBuild[queryAnn](
		participle.Lexer(annotationLexer),
		participle.Elide("Whitespace"),
	)
	typeAnnParser = participle.MustBuild[typeAnn](
		participle.Lexer(annotationLexer),
		participle.Elide("Whitespace"),
	)
)

type typeKind int

const (
	typeKindRow typeKind = iota
	typeKindParam
	typeKindDB
)

type typeDecl struct {
	kind       typeKind
	annotation ast.TypeAnnotation
}

// parseQueryAnnotation parses the text following a `parser:"--!"` marker.
// markerAt is the module offset of the marker itself.
func parseQueryAnnotation(info *ast.ModuleInfo, markerAt int, text string) (ast.Annotation, error) {
	base := markerAt + len("--!")
	parsed, err := queryAnnParser.ParseString(info.Path, text)
	if err != nil {
		return ast.Annotation{}, parseError(info, markerAt, "invalid query annotation: %v", err)
	}
	return ast.Annotation{
		Name:  identSpan(base, parsed.Name),
		Param: shapeFromExpr(base, parsed.Param),
		Row:   shapeFromExpr(base, parsed.Row),
	}, nil
}

// parseTypeAnnotation parses the text following a `parser:"--:"` marker. The
// optional leading kind keyword selects the registry; row is the default.
func parseTypeAnnotation(info *ast.ModuleInfo, markerAt int, text string) (typeDecl, error) {
	base := markerAt + len("--:")
	parsed, err := typeAnnParser.ParseString(info.Path, text)
	if err != nil {
		return typeDecl{}, parseError(info, markerAt, "invalid type annotation: %v", err)
	}
	kind := typeKindRow
	switch parsed.Kind {
	case "param":
		kind = typeKindParam
	case "db":
		kind = typeKindDB
	}
	return typeDecl{
		kind: kind,
		annotation: ast.TypeAnnotation{
			Name:   identSpan(base, parsed.Name),
			Fields: fieldSpans(base, parsed.List.Fields),
		},
	}, nil
}

func identSpan(base int, ident annIdent) ast.Span[string] {
	return ast.NewSpan(base+ident.Pos.Offset, base+ident.EndPos.Offset, ident.Name)
}

func shapeFromExpr(base int, expr *shapeExpr) ast.Shape {
	if expr == nil {
		return ast.Shape{}
	}
	if expr.Named != nil {
		name := identSpan(base, *expr.Named)
		return ast.Shape{Name: &name}
	}
	return ast.Shape{Fields: fieldSpans(base, expr.List.Fields)}
}

func fieldSpans(base int, fields []fieldExpr) []ast.Span[ast.NullableIdent] {
	if len(fields) == 0 {
		return nil
	}
	spans := make([]ast.Span[ast.NullableIdent], 0, len(fields))
	for _, f := range fields {
		spans = append(spans, ast.NewSpan(base+f.Pos.Offset, base+f.EndPos.Offset, ast.NullableIdent{
			Name:     f.Name,
			Nullable: f.Nullable,
		}))
	}
	return spans
}
