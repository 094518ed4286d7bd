// Package pgtest provides in-memory stand-ins for connpool.Conn and pgx.Rows so
// scans can be exercised without a database.
package pgtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danthegoodman1/scanbench/connpool"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

var (
	ErrUnexpectedSQL = errors.New("pgtest: unexpected sql")
	ErrNoCursor      = errors.New("pgtest: no open cursor")
)

type (
	Column struct {
		Name     string
		DataType string
		OID      uint32
		Format   int16
	}

	Row struct {
		ID int64
		// Values holds one raw cell per column in Table.Columns order, nil is NULL
		Values [][]byte
	}

	Table struct {
		Columns []Column
		Rows    []Row
	}

	// Connector hands out Conns over a shared Table and counts what happened.
	Connector struct {
		Table *Table
		// FailConnect, when set, is returned from every Connect call
		FailConnect error
		// FailDeclare is consulted on every DECLARE with the partition bounds
		FailDeclare func(start, end int64) error

		connects atomic.Int64
		fetches  atomic.Int64

		mu    sync.Mutex
		conns []*Conn
	}

	Conn struct {
		connector *Connector

		mu     sync.Mutex
		closed bool
		cursor *cursor
		execs  []string
	}

	cursor struct {
		rows   []Row
		rowID  bool
		fields []pgproto3.FieldDescription
	}

	Rows struct {
		fields []pgproto3.FieldDescription
		values [][][]byte
		idx    int
		err    error
		closed bool
	}
)

func (c *Connector) Connect(_ context.Context) (connpool.Conn, error) {
	c.connects.Add(1)
	if c.FailConnect != nil {
		return nil, c.FailConnect
	}
	conn := &Conn{connector: c}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()
	return conn, nil
}

func (c *Connector) Connects() int64 {
	return c.connects.Load()
}

// Fetches counts FETCH round trips across every connection.
func (c *Connector) Fetches() int64 {
	return c.fetches.Load()
}

// Execs returns every statement passed to Exec, across connections.
func (c *Connector) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, conn := range c.conns {
		conn.mu.Lock()
		out = append(out, conn.execs...)
		conn.mu.Unlock()
	}
	return out
}

func (c *Conn) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)

	switch {
	case strings.HasPrefix(sql, "DECLARE"):
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: DECLARE wants 2 args, got %d", ErrUnexpectedSQL, len(args))
		}
		start, end := args[0].(int64), args[1].(int64)
		if f := c.connector.FailDeclare; f != nil {
			if err := f(start, end); err != nil {
				return nil, err
			}
		}
		c.cursor = c.connector.Table.open(start, end, strings.Contains(sql, "t.ctid"))
		return pgconn.CommandTag("DECLARE CURSOR"), nil
	case strings.HasPrefix(sql, "CLOSE"):
		c.cursor = nil
		return pgconn.CommandTag("CLOSE CURSOR"), nil
	case strings.HasPrefix(sql, "BEGIN"), sql == "COMMIT", sql == "ROLLBACK":
		return pgconn.CommandTag(strings.Fields(sql)[0]), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedSQL, sql)
	}
}

func (c *Conn) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.HasPrefix(sql, "FETCH") {
		var n int
		if _, err := fmt.Sscanf(sql, "FETCH %d FROM", &n); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedSQL, sql)
		}
		if c.cursor == nil {
			return nil, ErrNoCursor
		}
		c.connector.fetches.Add(1)
		return c.cursor.fetch(n), nil
	}

	if strings.Contains(sql, "information_schema.columns") {
		rows := &Rows{fields: []pgproto3.FieldDescription{
			{Name: []byte("column_name"), DataTypeOID: pgtype.NameOID},
			{Name: []byte("data_type"), DataTypeOID: pgtype.TextOID},
		}}
		for _, col := range c.connector.Table.Columns {
			rows.values = append(rows.values, [][]byte{[]byte(col.Name), []byte(col.DataType)})
		}
		return rows, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnexpectedSQL, sql)
}

func (c *Conn) Close(_ context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (t *Table) open(start, end int64, rowID bool) *cursor {
	cur := &cursor{rowID: rowID}
	if rowID {
		cur.fields = append(cur.fields, pgproto3.FieldDescription{Name: []byte("ctid"), DataTypeOID: pgtype.TIDOID})
	}
	for _, col := range t.Columns {
		cur.fields = append(cur.fields, pgproto3.FieldDescription{
			Name:        []byte(col.Name),
			DataTypeOID: col.OID,
			Format:      col.Format,
		})
	}
	for _, row := range t.Rows {
		if row.ID >= start && row.ID < end {
			cur.rows = append(cur.rows, row)
		}
	}
	sort.Slice(cur.rows, func(i, j int) bool { return cur.rows[i].ID < cur.rows[j].ID })
	return cur
}

func (cur *cursor) fetch(n int) *Rows {
	if n > len(cur.rows) {
		n = len(cur.rows)
	}
	batch := cur.rows[:n]
	cur.rows = cur.rows[n:]

	rows := &Rows{fields: cur.fields}
	for _, row := range batch {
		var vals [][]byte
		if cur.rowID {
			vals = append(vals, []byte(fmt.Sprintf("(0,%d)", row.ID)))
		}
		vals = append(vals, row.Values...)
		rows.values = append(rows.values, vals)
	}
	return rows
}

func (r *Rows) Close() {
	r.closed = true
}

func (r *Rows) Err() error {
	return r.err
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag(fmt.Sprintf("FETCH %d", len(r.values)))
}

func (r *Rows) FieldDescriptions() []pgproto3.FieldDescription {
	return r.fields
}

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.values) {
		r.closed = true
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...interface{}) error {
	vals := r.RawValues()
	if len(dest) != len(vals) {
		return fmt.Errorf("pgtest: scan wants %d destinations, got %d", len(vals), len(dest))
	}
	for i, d := range dest {
		s, ok := d.(*string)
		if !ok {
			return fmt.Errorf("pgtest: only *string destinations are supported, got %T", d)
		}
		*s = string(vals[i])
	}
	return nil
}

func (r *Rows) Values() ([]interface{}, error) {
	raw := r.RawValues()
	out := make([]interface{}, len(raw))
	for i, v := range raw {
		if v != nil {
			out[i] = string(v)
		}
	}
	return out, nil
}

func (r *Rows) RawValues() [][]byte {
	if r.idx == 0 || r.idx > len(r.values) {
		return nil
	}
	return r.values[r.idx-1]
}

// NewTable builds a table with ids 1..n and one well-formed, non-null column of
// every supported family, all in text format.
func NewTable(n int64) *Table {
	t := &Table{Columns: []Column{
		{Name: "id", DataType: "bigint", OID: pgtype.Int8OID},
		{Name: "col1", DataType: "character varying", OID: pgtype.VarcharOID},
		{Name: "col_bytes", DataType: "bytea", OID: pgtype.ByteaOID},
		{Name: "col_numeric", DataType: "numeric", OID: pgtype.NumericOID},
		{Name: "col_ts", DataType: "timestamp with time zone", OID: pgtype.TimestamptzOID},
	}}
	for id := int64(1); id <= n; id++ {
		t.Rows = append(t.Rows, Row{ID: id, Values: [][]byte{
			[]byte(fmt.Sprint(id)),
			[]byte(fmt.Sprintf("row%dcol1", id)),
			[]byte(`\x726f77`),
			[]byte(fmt.Sprintf("%d.2500", id)),
			[]byte("2024-01-02 03:04:05+00"),
		}})
	}
	return t
}
