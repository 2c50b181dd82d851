package typeres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConnDescriber implements Describer over a pgx connection. NOT NULL
// lookups are cached per table.
type ConnDescriber struct {
	conn    *pgx.Conn
	seq     int
	notNull map[uint32]map[uint16]bool
}

// Connect opens a connection suitable for type resolution.
func Connect(ctx context.Context, url string) (*ConnDescriber, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return NewConnDescriber(conn), nil
}

func NewConnDescriber(conn *pgx.Conn) *ConnDescriber {
	return &ConnDescriber{
		conn:    conn,
		notNull: make(map[uint32]map[uint16]bool),
	}
}

// Close releases the underlying connection.
func (d *ConnDescriber) Close(ctx context.Context) error {
	return d.conn.Close(ctx)
}

// Describe prepares the statement under a fresh name and returns its
// description. Statements stay prepared for the lifetime of the
// connection, which is a single generation run.
func (d *ConnDescriber) Describe(ctx context.Context, sql string) (*pgconn.StatementDescription, error) {
	d.seq++
	name := fmt.Sprintf("pg_catalyst_%d", d.seq)
	sd, err := d.conn.Prepare(ctx, name, sql)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	return sd, nil
}

// NotNullColumns returns the attribute numbers of a table's NOT NULL
// columns.
func (d *ConnDescriber) NotNullColumns(ctx context.Context, tableOID uint32) (map[uint16]bool, error) {
	if cached, ok := d.notNull[tableOID]; ok {
		return cached, nil
	}

	rows, err := d.conn.Query(ctx,
		"SELECT attnum FROM pg_catalog.pg_attribute WHERE attrelid = $1 AND attnotnull",
		tableOID)
	if err != nil {
		return nil, fmt.Errorf("query pg_attribute: %w", err)
	}
	defer rows.Close()

	notNull := make(map[uint16]bool)
	for rows.Next() {
		var attnum int16
		if err := rows.Scan(&attnum); err != nil {
			return nil, fmt.Errorf("scan pg_attribute: %w", err)
		}
		notNull[uint16(attnum)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pg_attribute: %w", err)
	}

	d.notNull[tableOID] = notNull
	return notNull, nil
}
