// Package typeres resolves the PostgreSQL types of validated queries by
// preparing them against a live database.
package typeres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// GoType is the Go rendition of one PostgreSQL type.
type GoType struct {
	Name    string
	Import  string
	Package string
}

// UnsupportedTypeError reports a column or parameter whose PostgreSQL
// type has no Go mapping.
type UnsupportedTypeError struct {
	OID  uint32
	Name string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unsupported PostgreSQL type %q (oid %d)", e.Name, e.OID)
	}
	return fmt.Sprintf("unsupported PostgreSQL type with oid %d", e.OID)
}

var oidNames = pgtype.NewMap()

// FromOID maps a PostgreSQL type OID to its Go type. pgx handles the
// plain scalars with standard Go types; temporal and numeric types lean
// on pgtype, shopspring decimal, and google uuid.
func FromOID(oid uint32) (GoType, error) {
	switch oid {
	case pgtype.BoolOID:
		return GoType{Name: "bool"}, nil
	case pgtype.Int2OID:
		return GoType{Name: "int16"}, nil
	case pgtype.Int4OID:
		return GoType{Name: "int32"}, nil
	case pgtype.Int8OID:
		return GoType{Name: "int64"}, nil
	case pgtype.Float4OID:
		return GoType{Name: "float32"}, nil
	case pgtype.Float8OID:
		return GoType{Name: "float64"}, nil
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID, pgtype.XMLOID:
		return GoType{Name: "string"}, nil
	case pgtype.ByteaOID:
		return GoType{Name: "[]byte"}, nil
	case pgtype.JSONOID, pgtype.JSONBOID:
		return GoType{Name: "[]byte"}, nil
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return GoType{Name: "time.Time", Import: "time", Package: "time"}, nil
	case pgtype.DateOID:
		return pgtypeType("Date"), nil
	case pgtype.TimeOID:
		return pgtypeType("Time"), nil
	case pgtype.TimetzOID:
		// pgx v5 has no timetz codec type; fall back to its text form.
		return GoType{Name: "string"}, nil
	case pgtype.IntervalOID:
		return pgtypeType("Interval"), nil
	case pgtype.NumericOID:
		return GoType{
			Name:    "decimal.Decimal",
			Import:  "github.com/shopspring/decimal",
			Package: "decimal",
		}, nil
	case pgtype.UUIDOID:
		return GoType{
			Name:    "uuid.UUID",
			Import:  "github.com/google/uuid",
			Package: "uuid",
		}, nil
	case pgtype.InetOID, pgtype.CIDROID:
		return GoType{Name: "netip.Prefix", Import: "net/netip", Package: "netip"}, nil
	}

	if elem, ok := arrayElem(oid); ok {
		inner, err := FromOID(elem)
		if err != nil {
			return GoType{}, err
		}
		return GoType{
			Name:    "[]" + inner.Name,
			Import:  inner.Import,
			Package: inner.Package,
		}, nil
	}

	name := ""
	if t, ok := oidNames.TypeForOID(oid); ok {
		name = t.Name
	}
	return GoType{}, &UnsupportedTypeError{OID: oid, Name: name}
}

func pgtypeType(name string) GoType {
	return GoType{
		Name:    "pgtype." + name,
		Import:  "github.com/jackc/pgx/v5/pgtype",
		Package: "pgtype",
	}
}

func arrayElem(oid uint32) (uint32, bool) {
	switch oid {
	case pgtype.BoolArrayOID:
		return pgtype.BoolOID, true
	case pgtype.Int2ArrayOID:
		return pgtype.Int2OID, true
	case pgtype.Int4ArrayOID:
		return pgtype.Int4OID, true
	case pgtype.Int8ArrayOID:
		return pgtype.Int8OID, true
	case pgtype.Float4ArrayOID:
		return pgtype.Float4OID, true
	case pgtype.Float8ArrayOID:
		return pgtype.Float8OID, true
	case pgtype.TextArrayOID:
		return pgtype.TextOID, true
	case pgtype.VarcharArrayOID:
		return pgtype.VarcharOID, true
	case pgtype.ByteaArrayOID:
		return pgtype.ByteaOID, true
	case pgtype.TimestampArrayOID:
		return pgtype.TimestampOID, true
	case pgtype.TimestamptzArrayOID:
		return pgtype.TimestamptzOID, true
	case pgtype.DateArrayOID:
		return pgtype.DateOID, true
	case pgtype.NumericArrayOID:
		return pgtype.NumericOID, true
	case pgtype.UUIDArrayOID:
		return pgtype.UUIDOID, true
	case pgtype.JSONBArrayOID:
		return pgtype.JSONBOID, true
	}
	return 0, false
}
