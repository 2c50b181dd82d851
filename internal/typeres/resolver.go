package typeres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/electwix/pg-catalyst/internal/query/ast"
	"github.com/electwix/pg-catalyst/internal/query/validate"
)

// Describer exposes the two database operations resolution needs:
// preparing a statement and looking up NOT NULL column constraints.
// Backed by a pgx connection in production, faked in tests.
type Describer interface {
	Describe(ctx context.Context, sql string) (*pgconn.StatementDescription, error)
	NotNullColumns(ctx context.Context, tableOID uint32) (map[uint16]bool, error)
}

// Field is one resolved parameter or row column.
type Field struct {
	Name     string
	Type     GoType
	Nullable bool
}

// NamedStruct is a reusable struct registered through a type annotation
// and shared across queries.
type NamedStruct struct {
	Name   string
	Fields []Field
}

// Query is a fully type-resolved query ready for code generation. Empty
// ParamStruct or RowStruct means the shape is inline and the generator
// derives a name from the query.
type Query struct {
	Name        string
	ParamStruct string
	Params      []Field
	RowStruct   string
	Row         []Field
	SQL         string
}

// Module is the resolved form of one validated module.
type Module struct {
	Info    *ast.ModuleInfo
	Structs []NamedStruct
	Queries []Query
}

type resolver struct {
	ctx      context.Context
	db       Describer
	info     *ast.ModuleInfo
	registry map[string][]Field
	ordered  []NamedStruct
}

// Resolve prepares every query of a validated module and assembles the
// resolved types. The first failure aborts the module.
func Resolve(ctx context.Context, db Describer, module *validate.ValidatedModule) (*Module, error) {
	r := &resolver{
		ctx:      ctx,
		db:       db,
		info:     module.Info,
		registry: make(map[string][]Field),
	}

	queries := make([]Query, 0, len(module.Queries))
	for _, vq := range module.Queries {
		query, err := r.resolveQuery(module, vq)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", vq.Name.Value, err)
		}
		queries = append(queries, query)
	}

	return &Module{
		Info:    module.Info,
		Structs: r.ordered,
		Queries: queries,
	}, nil
}

func (r *resolver) resolveQuery(module *validate.ValidatedModule, vq validate.ValidatedQuery) (Query, error) {
	sd, err := r.db.Describe(r.ctx, vq.SQL)
	if err != nil {
		return Query{}, err
	}

	query := Query{Name: vq.Name.Value, SQL: vq.SQL}

	switch vq.Dialect {
	case ast.DialectExtended:
		params, paramStruct, err := r.extendedParams(module, vq, sd.ParamOIDs)
		if err != nil {
			return Query{}, err
		}
		row, rowStruct, err := r.extendedRow(module, vq, sd.Fields)
		if err != nil {
			return Query{}, err
		}
		query.Params, query.ParamStruct = params, paramStruct
		query.Row, query.RowStruct = row, rowStruct
	default:
		params, err := r.pgParams(vq.PgParams, sd.ParamOIDs)
		if err != nil {
			return Query{}, err
		}
		row, err := r.rowFields(vq.PgRow, sd.Fields)
		if err != nil {
			return Query{}, err
		}
		query.Params, query.Row = params, row
	}
	return query, nil
}

// extendedParams resolves the parameters of a `:name` query. The
// normalized SQL numbers placeholders in value-sorted bind name order, so
// ParamOIDs line up with vq.BindParams.
func (r *resolver) extendedParams(module *validate.ValidatedModule, vq validate.ValidatedQuery, oids []uint32) ([]Field, string, error) {
	if len(oids) != len(vq.BindParams) {
		return nil, "", fmt.Errorf("prepared statement has %d parameters, expected %d", len(oids), len(vq.BindParams))
	}

	overrides, structName, err := r.shapeOverrides(vq.Params, module.ParamTypes)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, 0, len(vq.BindParams))
	for _, bp := range vq.BindParams {
		names = append(names, bp.Value)
	}
	nullable, err := r.nullableSet(overrides, names)
	if err != nil {
		return nil, "", err
	}

	fields := make([]Field, 0, len(oids))
	for i, bp := range vq.BindParams {
		goType, err := FromOID(oids[i])
		if err != nil {
			return nil, "", err
		}
		fields = append(fields, Field{Name: bp.Value, Type: goType, Nullable: nullable[bp.Value]})
	}

	if structName != "" {
		if err := r.register(*vq.Params.Name, fields); err != nil {
			return nil, "", err
		}
	}
	return fields, structName, nil
}

func (r *resolver) extendedRow(module *validate.ValidatedModule, vq validate.ValidatedQuery, cols []pgconn.FieldDescription) ([]Field, string, error) {
	overrides, structName, err := r.shapeOverrides(vq.Row, module.RowTypes)
	if err != nil {
		return nil, "", err
	}
	fields, err := r.rowFields(overrides, cols)
	if err != nil {
		return nil, "", err
	}
	if structName != "" {
		if err := r.register(*vq.Row.Name, fields); err != nil {
			return nil, "", err
		}
	}
	return fields, structName, nil
}

// shapeOverrides returns the nullability override list of a shape,
// resolving named shapes through the given registry.
func (r *resolver) shapeOverrides(shape ast.Shape, registry []ast.TypeAnnotation) ([]ast.Span[ast.NullableIdent], string, error) {
	if !shape.Named() {
		return shape.Fields, "", nil
	}
	fields, verr := validate.ResolveNamedStruct(r.info, registry, *shape.Name)
	if verr != nil {
		return nil, "", verr
	}
	return fields, shape.Name.Value, nil
}

// pgParams resolves the parameters of a `$n` query; declared idents name
// the positional placeholders in order.
func (r *resolver) pgParams(declared []ast.Span[ast.NullableIdent], oids []uint32) ([]Field, error) {
	if len(oids) != len(declared) {
		return nil, fmt.Errorf("prepared statement has %d parameters, expected %d", len(oids), len(declared))
	}
	fields := make([]Field, 0, len(oids))
	for i, ident := range declared {
		goType, err := FromOID(oids[i])
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			Name:     ident.Value.Name,
			Type:     goType,
			Nullable: ident.Value.Nullable,
		})
	}
	return fields, nil
}

// rowFields builds the row columns, pulling nullability from the catalog
// and applying the declared overrides.
func (r *resolver) rowFields(overrides []ast.Span[ast.NullableIdent], cols []pgconn.FieldDescription) ([]Field, error) {
	names := make([]string, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if seen[col.Name] {
			return nil, fmt.Errorf("duplicate column name %q in result set", col.Name)
		}
		seen[col.Name] = true
		names = append(names, col.Name)
	}
	nullable, err := r.nullableSet(overrides, names)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(cols))
	for _, col := range cols {
		goType, err := FromOID(col.DataTypeOID)
		if err != nil {
			return nil, err
		}
		isNullable, err := r.columnNullable(col)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			Name:     col.Name,
			Type:     goType,
			Nullable: isNullable || nullable[col.Name],
		})
	}
	return fields, nil
}

// columnNullable consults pg_attribute for table-backed columns. Computed
// columns have no table origin and stay nullable.
func (r *resolver) columnNullable(col pgconn.FieldDescription) (bool, error) {
	if col.TableOID == 0 {
		return true, nil
	}
	notNull, err := r.db.NotNullColumns(r.ctx, col.TableOID)
	if err != nil {
		return false, err
	}
	return !notNull[col.TableAttributeNumber], nil
}

// nullableSet validates override names against the known set and collects
// the ones flagged nullable.
func (r *resolver) nullableSet(overrides []ast.Span[ast.NullableIdent], names []string) (map[string]bool, error) {
	nullable := make(map[string]bool, len(overrides))
	for _, override := range overrides {
		if verr := validate.CheckNullableName(r.info, override, names); verr != nil {
			return nil, verr
		}
		if override.Value.Nullable {
			nullable[override.Value.Name] = true
		}
	}
	return nullable, nil
}

func (r *resolver) register(name ast.Span[string], fields []Field) error {
	got := structFields(fields)
	if prev, ok := r.registry[name.Value]; ok {
		if verr := validate.CheckNamedStructConsistency(r.info, name, structFields(prev), got); verr != nil {
			return verr
		}
		return nil
	}
	r.registry[name.Value] = fields
	r.ordered = append(r.ordered, NamedStruct{Name: name.Value, Fields: fields})
	return nil
}

func structFields(fields []Field) []validate.StructField {
	out := make([]validate.StructField, 0, len(fields))
	for _, f := range fields {
		out = append(out, validate.StructField{
			Name:     f.Name,
			GoType:   f.Type.Name,
			Nullable: f.Nullable,
		})
	}
	return out
}
