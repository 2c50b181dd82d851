package typeres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/electwix/pg-catalyst/internal/query/ast"
	"github.com/electwix/pg-catalyst/internal/query/parser"
	"github.com/electwix/pg-catalyst/internal/query/validate"
)

// fakeDescriber replays statement descriptions in query order and serves
// catalog nullability from a fixed table.
type fakeDescriber struct {
	described []*pgconn.StatementDescription
	notNull   map[uint32]map[uint16]bool
	sqls      []string
}

func (f *fakeDescriber) Describe(_ context.Context, sql string) (*pgconn.StatementDescription, error) {
	f.sqls = append(f.sqls, sql)
	if len(f.described) == 0 {
		return &pgconn.StatementDescription{}, nil
	}
	sd := f.described[0]
	f.described = f.described[1:]
	return sd, nil
}

func (f *fakeDescriber) NotNullColumns(_ context.Context, tableOID uint32) (map[uint16]bool, error) {
	return f.notNull[tableOID], nil
}

func mustValidate(t *testing.T, src string) *validate.ValidatedModule {
	t.Helper()
	module, err := parser.Parse("queries/authors.sql", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	info := &ast.ModuleInfo{Path: "queries/authors.sql", Content: src}
	validated, verr := validate.Module(info, module)
	if verr != nil {
		t.Fatal(verr)
	}
	return validated
}

const authorsTable = uint32(100)

func authorColumns() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{
		{Name: "id", TableOID: authorsTable, TableAttributeNumber: 1, DataTypeOID: pgtype.Int4OID},
		{Name: "name", TableOID: authorsTable, TableAttributeNumber: 2, DataTypeOID: pgtype.TextOID},
	}
}

func authorsNotNull() map[uint32]map[uint16]bool {
	return map[uint32]map[uint16]bool{
		authorsTable: {1: true},
	}
}

func TestResolveExtendedQuery(t *testing.T) {
	validated := mustValidate(t, `--! author_by_id (id) : (id, name)
SELECT id, name FROM authors WHERE id = :id;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{{
			ParamOIDs: []uint32{pgtype.Int4OID},
			Fields:    authorColumns(),
		}},
		notNull: authorsNotNull(),
	}

	resolved, err := Resolve(context.Background(), db, validated)
	if err != nil {
		t.Fatal(err)
	}

	want := []Query{{
		Name:   "author_by_id",
		Params: []Field{{Name: "id", Type: GoType{Name: "int32"}}},
		Row: []Field{
			{Name: "id", Type: GoType{Name: "int32"}},
			{Name: "name", Type: GoType{Name: "string"}, Nullable: true},
		},
		SQL: "SELECT id, name FROM authors WHERE id = $1",
	}}
	if diff := cmp.Diff(want, resolved.Queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	if len(db.sqls) != 1 || !strings.Contains(db.sqls[0], "$1") {
		t.Errorf("prepared SQL = %q, want normalized placeholder", db.sqls)
	}
}

func TestResolvePgCompatibleQuery(t *testing.T) {
	validated := mustValidate(t, `--! author_by_id (id) : (id, name)
SELECT id, name FROM authors WHERE id = $1;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{{
			ParamOIDs: []uint32{pgtype.Int8OID},
			Fields:    authorColumns(),
		}},
		notNull: authorsNotNull(),
	}

	resolved, err := Resolve(context.Background(), db, validated)
	if err != nil {
		t.Fatal(err)
	}

	query := resolved.Queries[0]
	if diff := cmp.Diff([]Field{{Name: "id", Type: GoType{Name: "int64"}}}, query.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(query.SQL, "$1") {
		t.Errorf("SQL = %q, want verbatim placeholder", query.SQL)
	}
}

func TestResolveNamedStructRegistration(t *testing.T) {
	validated := mustValidate(t, `--: Author (name?)

--! authors : Author
SELECT id, name FROM authors;

--! authors_again : Author
SELECT id, name FROM authors;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{
			{Fields: authorColumns()},
			{Fields: authorColumns()},
		},
		notNull: authorsNotNull(),
	}

	resolved, err := Resolve(context.Background(), db, validated)
	if err != nil {
		t.Fatal(err)
	}

	wantStructs := []NamedStruct{{
		Name: "Author",
		Fields: []Field{
			{Name: "id", Type: GoType{Name: "int32"}},
			{Name: "name", Type: GoType{Name: "string"}, Nullable: true},
		},
	}}
	if diff := cmp.Diff(wantStructs, resolved.Structs); diff != "" {
		t.Errorf("structs mismatch (-want +got):\n%s", diff)
	}
	for _, q := range resolved.Queries {
		if q.RowStruct != "Author" {
			t.Errorf("query %q RowStruct = %q, want Author", q.Name, q.RowStruct)
		}
	}
}

func TestResolveNamedStructMismatch(t *testing.T) {
	validated := mustValidate(t, `--: Author ()

--! authors : Author
SELECT id, name FROM authors;

--! author_names : Author
SELECT name FROM authors;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{
			{Fields: authorColumns()},
			{Fields: authorColumns()[1:]},
		},
		notNull: authorsNotNull(),
	}

	_, err := Resolve(context.Background(), db, validated)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validate.Error", err)
	}
	if verr.Kind != validate.KindNamedStructInvalidFields {
		t.Fatalf("Kind = %v, want KindNamedStructInvalidFields", verr.Kind)
	}
}

func TestResolveInvalidOverrideName(t *testing.T) {
	validated := mustValidate(t, `--! authors : (title?)
SELECT id, name FROM authors;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{{Fields: authorColumns()}},
		notNull:   authorsNotNull(),
	}

	_, err := Resolve(context.Background(), db, validated)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validate.Error", err)
	}
	if verr.Kind != validate.KindInvalidNullableName {
		t.Fatalf("Kind = %v, want KindInvalidNullableName", verr.Kind)
	}
}

func TestResolveComputedColumnNullable(t *testing.T) {
	validated := mustValidate(t, `--! author_count
SELECT count(*) FROM authors;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{{
			Fields: []pgconn.FieldDescription{
				{Name: "count", DataTypeOID: pgtype.Int8OID},
			},
		}},
	}

	resolved, err := Resolve(context.Background(), db, validated)
	if err != nil {
		t.Fatal(err)
	}
	row := resolved.Queries[0].Row
	if len(row) != 1 || !row[0].Nullable {
		t.Errorf("row = %+v, want single nullable column", row)
	}
}

func TestResolveDuplicateColumn(t *testing.T) {
	validated := mustValidate(t, `--! authors
SELECT id, id FROM authors;
`)
	db := &fakeDescriber{
		described: []*pgconn.StatementDescription{{
			Fields: []pgconn.FieldDescription{
				{Name: "id", TableOID: authorsTable, TableAttributeNumber: 1, DataTypeOID: pgtype.Int4OID},
				{Name: "id", TableOID: authorsTable, TableAttributeNumber: 1, DataTypeOID: pgtype.Int4OID},
			},
		}},
		notNull: authorsNotNull(),
	}

	_, err := Resolve(context.Background(), db, validated)
	if err == nil || !strings.Contains(err.Error(), "duplicate column name") {
		t.Fatalf("err = %v, want duplicate column error", err)
	}
}

func TestFromOID(t *testing.T) {
	tests := []struct {
		oid  uint32
		want string
	}{
		{pgtype.BoolOID, "bool"},
		{pgtype.Int2OID, "int16"},
		{pgtype.Int8OID, "int64"},
		{pgtype.TextOID, "string"},
		{pgtype.ByteaOID, "[]byte"},
		{pgtype.TimestamptzOID, "time.Time"},
		{pgtype.DateOID, "pgtype.Date"},
		{pgtype.NumericOID, "decimal.Decimal"},
		{pgtype.UUIDOID, "uuid.UUID"},
		{pgtype.Int4ArrayOID, "[]int32"},
		{pgtype.TextArrayOID, "[]string"},
	}
	for _, tt := range tests {
		got, err := FromOID(tt.oid)
		if err != nil {
			t.Errorf("FromOID(%d) error: %v", tt.oid, err)
			continue
		}
		if got.Name != tt.want {
			t.Errorf("FromOID(%d) = %q, want %q", tt.oid, got.Name, tt.want)
		}
	}
}

func TestFromOIDUnsupported(t *testing.T) {
	_, err := FromOID(pgtype.PointOID)
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedTypeError", err)
	}
	if !strings.Contains(err.Error(), "point") {
		t.Errorf("error = %q, want type name", err.Error())
	}
}
