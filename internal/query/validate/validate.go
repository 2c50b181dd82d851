// Package validate implements the semantic validation pass that runs
// between query parsing and live type resolution. It disambiguates the
// two bind parameter dialects, enforces wire-protocol index bounds,
// detects unused, duplicate, and out-of-range parameters, and checks
// query name uniqueness across a module. The pass is deterministic and
// side-effect-free: the first failure aborts the module.
package validate

import (
	"math"
	"sort"

	"github.com/electwix/pg-catalyst/internal/query/ast"
)

// ValidatedQuery is one query that passed validation. Dialect selects
// which fields are populated: PgParams/PgRow for the pg-compatible
// path, Params/Row/BindParams for the extended path.
type ValidatedQuery struct {
	Dialect ast.Dialect
	Name    ast.Span[string]

	PgParams []ast.Span[ast.NullableIdent]
	PgRow    []ast.Span[ast.NullableIdent]

	Params     ast.Shape
	Row        ast.Shape
	BindParams []ast.Span[string] // value-sorted, duplicate-free

	SQL string
}

// ValidatedModule retains the module's registries and its validated
// queries in declaration order.
type ValidatedModule struct {
	Info       *ast.ModuleInfo
	ParamTypes []ast.TypeAnnotation
	RowTypes   []ast.TypeAnnotation
	DBTypes    []ast.TypeAnnotation
	Queries    []ValidatedQuery
}

// resolveDialect decides which placeholder syntax a query uses. The first
// bind parameter sets the dialect; an empty list defaults to extended.
// This tie-break is ad-hoc but load-bearing: changing it would reclassify
// existing queries.
func resolveDialect(info *ast.ModuleInfo, bindParams []ast.Span[ast.BindParameter]) (ast.Dialect, *Error) {
	dialect := ast.DialectExtended
	if len(bindParams) > 0 {
		dialect = bindParams[0].Value.Dialect
	}
	for _, bp := range bindParams {
		if bp.Value.Dialect != dialect {
			return 0, &Error{Kind: KindAmbiguousBindParam, Info: info, Pos: bp.Start}
		}
	}
	return dialect, nil
}

// checkDuplicateFields scans a declared field list in order and fails on
// the first name seen twice, at the second occurrence. Nullability
// overrides are not part of the identity here.
func checkDuplicateFields(info *ast.ModuleInfo, fields []ast.Span[ast.NullableIdent]) *Error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Value.Name]; dup {
			return &Error{Kind: KindDuplicateField, Info: info, Pos: f.Start}
		}
		seen[f.Value.Name] = struct{}{}
	}
	return nil
}

// guardPgCompatible rejects named struct annotations on pg-compatible
// queries. Past this guard both shapes are guaranteed implicit.
func guardPgCompatible(info *ast.ModuleInfo, annotation ast.Annotation) ([]ast.Span[ast.NullableIdent], []ast.Span[ast.NullableIdent], *Error) {
	if annotation.Param.Named() {
		return nil, nil, &Error{Kind: KindNamedStructInPgQuery, Info: info, Pos: annotation.Param.Name.Start}
	}
	if annotation.Row.Named() {
		return nil, nil, &Error{Kind: KindNamedStructInPgQuery, Info: info, Pos: annotation.Row.Name.Start}
	}
	return annotation.Param.Fields, annotation.Row.Fields, nil
}

// normalizeIndex narrows a parsed $n index to the 16-bit signed range the
// postgres wire protocol requires, rejecting zero (parameters are
// 1-indexed).
func normalizeIndex(info *ast.ModuleInfo, bp ast.Span[ast.BindParameter]) (ast.Span[int16], *Error) {
	index := bp.Value.Index
	if index <= 0 || index > math.MaxInt16 {
		return ast.Span[int16]{}, &Error{Kind: KindInvalidI16Index, Info: info, Pos: bp.Start}
	}
	return ast.NewSpan(bp.Start, bp.End, int16(index)), nil
}

// checkOverflow fails on the first bind index exceeding the declared
// parameter count.
func checkOverflow(info *ast.ModuleInfo, params []ast.Span[ast.NullableIdent], deduped []ast.Span[int16]) *Error {
	for _, bp := range deduped {
		if int(bp.Value) > len(params) {
			return &Error{Kind: KindTooManyBindParams, Info: info, Pos: bp.Start, NbParams: len(params)}
		}
	}
	return nil
}

// checkUnused fails on the first declared parameter, in declaration
// order, that no bind index references.
func checkUnused(info *ast.ModuleInfo, params []ast.Span[ast.NullableIdent], bindParams []ast.Span[int16]) *Error {
	for i, p := range params {
		used := false
		for _, bp := range bindParams {
			if int(bp.Value) == i+1 {
				used = true
				break
			}
		}
		if !used {
			return &Error{Kind: KindUnusedParam, Info: info, Pos: p.Start, Index: i + 1}
		}
	}
	return nil
}

// checkNameCollisions compares every query name against every other in
// the module and fails on the first matching pair, reporting both sites.
func checkNameCollisions(info *ast.ModuleInfo, queries []ast.Query) *Error {
	for i, query := range queries {
		name := query.Annotation.Name
		for j, other := range queries {
			if j == i {
				continue
			}
			if other.Annotation.Name.Value == name.Value {
				return &Error{
					Kind:  KindDuplicateQueryName,
					Info:  info,
					Name1: name,
					Name2: other.Annotation.Name,
				}
			}
		}
	}
	return nil
}

// Query validates a single query, short-circuiting on the first failure.
func Query(info *ast.ModuleInfo, query ast.Query) (ValidatedQuery, *Error) {
	if !query.Annotation.Param.Named() {
		if err := checkDuplicateFields(info, query.Annotation.Param.Fields); err != nil {
			return ValidatedQuery{}, err
		}
	}
	if !query.Annotation.Row.Named() {
		if err := checkDuplicateFields(info, query.Annotation.Row.Fields); err != nil {
			return ValidatedQuery{}, err
		}
	}

	dialect, err := resolveDialect(info, query.SQL.BindParams)
	if err != nil {
		return ValidatedQuery{}, err
	}
	name := query.Annotation.Name

	if dialect == ast.DialectExtended {
		names := make([]ast.Span[string], 0, len(query.SQL.BindParams))
		for _, bp := range query.SQL.BindParams {
			names = append(names, ast.NewSpan(bp.Start, bp.End, bp.Value.Name))
		}
		sort.SliceStable(names, func(i, j int) bool { return names[i].Value < names[j].Value })
		names = dedupeByValue(names)

		return ValidatedQuery{
			Dialect:    ast.DialectExtended,
			Name:       name,
			Params:     query.Annotation.Param,
			Row:        query.Annotation.Row,
			BindParams: names,
			SQL:        query.SQL.Normalize(query.SQLStart, names),
		}, nil
	}

	indices := make([]ast.Span[int16], 0, len(query.SQL.BindParams))
	for _, bp := range query.SQL.BindParams {
		index, err := normalizeIndex(info, bp)
		if err != nil {
			return ValidatedQuery{}, err
		}
		indices = append(indices, index)
	}
	deduped := append([]ast.Span[int16](nil), indices...)
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Value < deduped[j].Value })
	deduped = dedupeByValue(deduped)

	params, row, err := guardPgCompatible(info, query.Annotation)
	if err != nil {
		return ValidatedQuery{}, err
	}
	if err := checkOverflow(info, params, deduped); err != nil {
		return ValidatedQuery{}, err
	}
	if err := checkUnused(info, params, indices); err != nil {
		return ValidatedQuery{}, err
	}

	return ValidatedQuery{
		Dialect:  ast.DialectPgCompatible,
		Name:     name,
		PgParams: params,
		PgRow:    row,
		SQL:      query.SQL.Raw,
	}, nil
}

// Module validates a whole parsed module: name uniqueness first, then the
// field lists of every registered type, then each query in declaration
// order. The first failure aborts the module; there is no multi-error
// aggregation.
func Module(info *ast.ModuleInfo, module ast.Module) (*ValidatedModule, *Error) {
	if err := checkNameCollisions(info, module.Queries); err != nil {
		return nil, err
	}
	registries := [][]ast.TypeAnnotation{module.ParamTypes, module.RowTypes, module.DBTypes}
	for _, registry := range registries {
		for _, ty := range registry {
			if err := checkDuplicateFields(info, ty.Fields); err != nil {
				return nil, err
			}
		}
	}

	validated := make([]ValidatedQuery, 0, len(module.Queries))
	for _, query := range module.Queries {
		vq, err := Query(info, query)
		if err != nil {
			return nil, err
		}
		validated = append(validated, vq)
	}

	return &ValidatedModule{
		Info:       info,
		ParamTypes: module.ParamTypes,
		RowTypes:   module.RowTypes,
		DBTypes:    module.DBTypes,
		Queries:    validated,
	}, nil
}

// dedupeByValue removes adjacent spans with equal values from a sorted
// slice, keeping the first occurrence.
func dedupeByValue[T comparable](spans []ast.Span[T]) []ast.Span[T] {
	out := spans[:0]
	for i, s := range spans {
		if i > 0 && out[len(out)-1].Value == s.Value {
			continue
		}
		out = append(out, s)
	}
	return out
}
