// Package codegen renders resolved query modules into Go source files.
package codegen

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/electwix/pg-catalyst/internal/typeres"
)

// File is one generated source file. Path is relative to the configured
// output directory.
type File struct {
	Path    string
	Content []byte
}

type generator struct {
	pkg       string
	structs   map[string][]typeres.Field
	functions map[string]string // exported name -> module path
}

// Generate renders every resolved module plus the shared DBTX file. Each
// module becomes one file named after its source file.
func Generate(pkg string, modules []*typeres.Module) ([]File, error) {
	g := &generator{
		pkg:       pkg,
		structs:   make(map[string][]typeres.Field),
		functions: make(map[string]string),
	}

	files := []File{{Path: "db.go", Content: g.dbFile()}}
	for _, module := range modules {
		file, err := g.moduleFile(module)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	for i, file := range files {
		formatted, err := imports.Process(file.Path, file.Content, nil)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", file.Path, err)
		}
		files[i].Content = formatted
	}
	return files, nil
}

func (g *generator) header(source string) string {
	var b strings.Builder
	b.WriteString("// Code generated by pg-catalyst. DO NOT EDIT.\n")
	if source != "" {
		fmt.Fprintf(&b, "// Source: %s\n", source)
	}
	fmt.Fprintf(&b, "\npackage %s\n\n", g.pkg)
	return b.String()
}

func (g *generator) dbFile() []byte {
	var b strings.Builder
	b.WriteString(g.header(""))
	b.WriteString(`import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx satisfied by *pgx.Conn, pgxpool.Pool, and
// pgx.Tx alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
`)
	return []byte(b.String())
}

func (g *generator) moduleFile(module *typeres.Module) (File, error) {
	base := filepath.Base(module.Info.Path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var body strings.Builder
	for _, st := range module.Structs {
		if err := g.writeStruct(&body, ExportedIdentifier(st.Name), st.Fields); err != nil {
			return File{}, fmt.Errorf("%s: %w", module.Info.Path, err)
		}
	}
	for _, query := range module.Queries {
		if err := g.writeQuery(&body, module, query); err != nil {
			return File{}, fmt.Errorf("%s: %w", module.Info.Path, err)
		}
	}

	var b strings.Builder
	b.WriteString(g.header(module.Info.Path))
	g.writeImports(&b, module)
	b.WriteString(body.String())

	return File{Path: FileName(base) + ".go", Content: []byte(b.String())}, nil
}

func (g *generator) writeImports(b *strings.Builder, module *typeres.Module) {
	paths := make(map[string]bool)
	addField := func(f typeres.Field) {
		if f.Type.Import != "" {
			paths[f.Type.Import] = true
		}
	}
	hasRows := false
	for _, st := range module.Structs {
		for _, f := range st.Fields {
			addField(f)
		}
	}
	for _, q := range module.Queries {
		for _, f := range q.Params {
			addField(f)
		}
		for _, f := range q.Row {
			addField(f)
		}
		if len(q.Row) > 0 {
			hasRows = true
		}
	}

	paths["context"] = true
	if hasRows {
		paths["github.com/jackc/pgx/v5"] = true
	}

	var std, third []string
	for path := range paths {
		if strings.Contains(path, ".") {
			third = append(third, path)
		} else {
			std = append(std, path)
		}
	}
	sort.Strings(std)
	sort.Strings(third)

	b.WriteString("import (\n")
	for _, path := range std {
		fmt.Fprintf(b, "\t%q\n", path)
	}
	if len(third) > 0 {
		b.WriteString("\n")
		for _, path := range third {
			fmt.Fprintf(b, "\t%q\n", path)
		}
	}
	b.WriteString(")\n\n")
}

// writeStruct emits one row or parameter struct, deduplicating identical
// declarations across modules.
func (g *generator) writeStruct(b *strings.Builder, name string, fields []typeres.Field) error {
	if prev, ok := g.structs[name]; ok {
		if !fieldsEqual(prev, fields) {
			return fmt.Errorf("struct %s already generated with different fields", name)
		}
		return nil
	}
	g.structs[name] = fields

	fmt.Fprintf(b, "type %s struct {\n", name)
	for _, f := range fields {
		fmt.Fprintf(b, "\t%s %s\n", ExportedIdentifier(f.Name), fieldType(f))
	}
	b.WriteString("}\n\n")
	return nil
}

func (g *generator) writeQuery(b *strings.Builder, module *typeres.Module, query typeres.Query) error {
	funcName := ExportedIdentifier(query.Name)
	if prev, ok := g.functions[funcName]; ok {
		return fmt.Errorf("query %s collides with a query in %s", query.Name, prev)
	}
	g.functions[funcName] = module.Info.Path

	constName := UnexportedIdentifier(query.Name) + "SQL"
	fmt.Fprintf(b, "const %s = %s\n\n", constName, quoteSQL(query.SQL))

	rowType, err := g.rowType(b, query)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(query.Params)+2)
	args = append(args, "ctx context.Context", "db DBTX")
	callArgs := make([]string, 0, len(query.Params)+2)
	callArgs = append(callArgs, "ctx", constName)
	for _, p := range query.Params {
		arg := paramName(p.Name)
		args = append(args, arg+" "+fieldType(p))
		callArgs = append(callArgs, arg)
	}

	switch {
	case len(query.Row) == 0:
		fmt.Fprintf(b, "func %s(%s) error {\n", funcName, strings.Join(args, ", "))
		fmt.Fprintf(b, "\t_, err := db.Exec(%s)\n\treturn err\n}\n\n", strings.Join(callArgs, ", "))
	default:
		collector := fmt.Sprintf("pgx.RowToStructByPos[%s]", rowType)
		if len(query.Row) == 1 && rowType == fieldType(query.Row[0]) {
			collector = fmt.Sprintf("pgx.RowTo[%s]", rowType)
		}
		fmt.Fprintf(b, "func %s(%s) ([]%s, error) {\n", funcName, strings.Join(args, ", "), rowType)
		fmt.Fprintf(b, "\trows, err := db.Query(%s)\n", strings.Join(callArgs, ", "))
		b.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		fmt.Fprintf(b, "\treturn pgx.CollectRows(rows, %s)\n}\n\n", collector)
	}
	return nil
}

// rowType decides how one result row is represented: the named struct, a
// bare value for single-column rows, or a generated per-query struct.
func (g *generator) rowType(b *strings.Builder, query typeres.Query) (string, error) {
	switch {
	case len(query.Row) == 0:
		return "", nil
	case query.RowStruct != "":
		return ExportedIdentifier(query.RowStruct), nil
	case len(query.Row) == 1:
		return fieldType(query.Row[0]), nil
	default:
		name := ExportedIdentifier(query.Name) + "Row"
		if err := g.writeStruct(b, name, query.Row); err != nil {
			return "", err
		}
		return name, nil
	}
}

// fieldType renders a field's Go type, pointerizing nullable scalars.
// Slices and pgtype values carry their own null state.
func fieldType(f typeres.Field) string {
	name := f.Type.Name
	if !f.Nullable {
		return name
	}
	if strings.HasPrefix(name, "[]") || strings.HasPrefix(name, "pgtype.") {
		return name
	}
	return "*" + name
}

func fieldsEqual(a, b []typeres.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func paramName(raw string) string {
	name := UnexportedIdentifier(raw)
	switch name {
	case "ctx", "db", "rows", "err":
		return name + "Arg"
	}
	return name
}

func quoteSQL(sql string) string {
	if !strings.Contains(sql, "`") {
		return "`" + sql + "`"
	}
	return strconv.Quote(sql)
}
