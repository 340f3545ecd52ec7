// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datatwin/cli/internal/dsn"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/schema"
)

const fixtureDDL = `
CREATE TABLE customers (id INTEGER PRIMARY KEY, email TEXT NOT NULL, country TEXT);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER REFERENCES customers(id),
	status TEXT NOT NULL,
	total REAL
);
CREATE VIEW order_status AS SELECT status, COUNT(*) AS order_count FROM orders GROUP BY status;
INSERT INTO customers (id, email, country) VALUES (1, 'a@example.com', 'DE'), (2, 'b@example.com', NULL);
INSERT INTO orders (id, customer_id, status, total) VALUES
	(1, 1, 'paid', 10.5), (2, 1, 'paid', 20), (3, 2, 'refunded', 5);
`

func openFixture(t *testing.T) *DB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.Exec(fixtureDDL)
	require.NoError(t, err)
	return OpenSQL(raw, dsn.DBTypeSQLite, "", nil)
}

func TestExecute(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	rs, err := db.Execute(ctx, "```sql\nSELECT status, COUNT(*) AS n FROM orders GROUP BY status ORDER BY status;\n```", time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"status", "n"}, rs.Columns)
	assert.Equal(t, 2, rs.TotalRows)
	assert.False(t, rs.Truncated)
	assert.Equal(t, [][]any{{"paid", int64(2)}, {"refunded", int64(1)}}, rs.Rows)
}

func TestExecuteNullsAndEmptyResults(t *testing.T) {
	db := openFixture(t)

	rs, err := db.Execute(context.Background(), "SELECT country FROM customers WHERE id = 2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{nil}}, rs.Rows)

	rs, err = db.Execute(context.Background(), "SELECT id FROM orders WHERE status = 'lost'", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, rs.Columns)
	assert.Equal(t, 0, rs.TotalRows)
	assert.Empty(t, rs.Rows)
}

func TestExecuteSamplesLargeResults(t *testing.T) {
	db := openFixture(t)
	q := `WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n WHERE x < 150) SELECT x FROM n`

	rs, err := db.Execute(context.Background(), q, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 150, rs.TotalRows)
	assert.True(t, rs.Truncated)
	require.Len(t, rs.Rows, 50)
	assert.Equal(t, int64(1), rs.Rows[0][0])
	assert.Equal(t, int64(50), rs.Rows[49][0])

	rs, err = db.Execute(context.Background(), `WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n WHERE x < 100) SELECT x FROM n`, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, rs.Truncated)
	assert.Len(t, rs.Rows, 100)
}

func TestExecuteErrors(t *testing.T) {
	db := openFixture(t)
	tests := []struct {
		name string
		sql  string
	}{
		{name: "write rejected", sql: "DELETE FROM orders"},
		{name: "stacked statements rejected", sql: "SELECT 1; SELECT 2"},
		{name: "unknown column", sql: "SELECT nope FROM orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Execute(context.Background(), tt.sql, time.Second)
			require.Error(t, err)
			assert.Equal(t, dterrors.Execution, dterrors.KindOf(err))
		})
	}

	// Rows survive the rejected DELETE.
	n, err := db.Count(context.Background(), "orders", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCount(t *testing.T) {
	db := openFixture(t)

	n, err := db.Count(context.Background(), "customers", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = db.Count(context.Background(), "missing", time.Second)
	require.Error(t, err)
	assert.True(t, dterrors.Is(err, dterrors.Probe))
}

func TestIntrospect(t *testing.T) {
	db := openFixture(t)

	s, err := db.Introspect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "order_status", "orders"}, s.TableNames())

	view, ok := s.Table("order_status")
	require.True(t, ok)
	assert.Equal(t, schema.KindView, view.Kind)

	orders, ok := s.Table("orders")
	require.True(t, ok)
	names := make([]string, len(orders.Columns))
	for i, c := range orders.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"id", "customer_id", "status", "total"}, names)
	assert.False(t, orders.Columns[2].Nullable)
	assert.Equal(t, "text", orders.Columns[2].Type)

	want := []schema.Relationship{{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}}
	if diff := cmp.Diff(want, s.Relationships()); diff != "" {
		t.Errorf("relationships mismatch (-want +got):\n%s", diff)
	}

	again, err := db.Introspect(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, again)

	db.Inspector().ClearCache()
	fresh, err := db.Introspect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s, fresh)
}

func TestOpenSQLiteDSN(t *testing.T) {
	db, err := Open(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dsn.DBTypeSQLite, db.Type())
	rs, err := db.Execute(context.Background(), "SELECT 1 AS one", time.Second)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, rs.Rows)

	_, err = Open(context.Background(), "oracle://scott@db", nil)
	assert.True(t, dterrors.Is(err, dterrors.Configuration))
}

func TestDialectQuote(t *testing.T) {
	tests := []struct {
		typ   dsn.DBType
		ident string
		want  string
	}{
		{typ: dsn.DBTypePostgreSQL, ident: "public.orders", want: `"public"."orders"`},
		{typ: dsn.DBTypeSnowflake, ident: `we"ird`, want: `"we""ird"`},
		{typ: dsn.DBTypeMySQL, ident: "orders", want: "`orders`"},
		{typ: dsn.DBTypeSQLite, ident: "orders", want: `"orders"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, DialectFor(tt.typ, "").Quote(tt.ident))
		})
	}
	assert.Equal(t, "SELECT COUNT(*) FROM `orders`", DialectFor(dsn.DBTypeMySQL, "").CountQuery("orders"))
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name      string
		in        any
		textBytes bool
		want      any
	}{
		{name: "uuid array", in: id, want: "123e4567-e89b-12d3-a456-426614174000"},
		{name: "uuid bytes", in: id[:], want: "123e4567-e89b-12d3-a456-426614174000"},
		{name: "binary", in: []byte{0xde, 0xad}, want: `\xdead`},
		{name: "text bytes", in: []byte("hello"), textBytes: true, want: "hello"},
		{name: "time", in: ts, want: "2025-01-02T02:04:05Z"},
		{name: "nil", in: nil, want: nil},
		{name: "int", in: int64(7), want: int64(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in, tt.textBytes))
		})
	}
}
