package validate

import (
	"github.com/electwix/pg-catalyst/internal/query/ast"
)

// ResolveNamedStruct looks a named reference up in a registry, returning
// the declared field list. The type resolution stage invokes this once it
// encounters a Named shape.
func ResolveNamedStruct(info *ast.ModuleInfo, registry []ast.TypeAnnotation, name ast.Span[string]) ([]ast.Span[ast.NullableIdent], *Error) {
	for _, ty := range registry {
		if ty.Name.Value == name.Value {
			return ty.Fields, nil
		}
	}
	return nil, &Error{Kind: KindUnknownNamedStruct, Info: info, Pos: name.Start}
}

// CheckNamedStructConsistency verifies that a named struct resolves to
// the same field set at every use site: equal cardinality and set-equal
// by exact field identity. On mismatch the error carries both lists for
// a diff-style report.
func CheckNamedStructConsistency(info *ast.ModuleInfo, name ast.Span[string], prev, got []StructField) *Error {
	if len(prev) == len(got) && containsAll(got, prev) && containsAll(prev, got) {
		return nil
	}
	return &Error{
		Kind:       KindNamedStructInvalidFields,
		Info:       info,
		StructName: name,
		Expected:   append([]StructField(nil), prev...),
		Got:        append([]StructField(nil), got...),
	}
}

// CheckNullableName verifies that a nullability override names a real
// column or parameter of the prepared statement. names holds whatever the
// live schema resolved for the relevant side of the query.
func CheckNullableName(info *ast.ModuleInfo, nullable ast.Span[ast.NullableIdent], names []string) *Error {
	for _, candidate := range names {
		if candidate == nullable.Value.Name {
			return nil
		}
	}
	return &Error{Kind: KindInvalidNullableName, Info: info, Nullable: nullable}
}

func containsAll(haystack, needles []StructField) bool {
	for _, needle := range needles {
		found := false
		for _, f := range haystack {
			if f == needle {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
