package reference

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"split-harness-go/operators"
	"split-harness-go/util/log"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	_ "github.com/mattn/go-sqlite3"
)

/*
The reference package evaluates the expected result of a query with an
embedded SQL engine. Test inputs are loaded as tables with CreateTable, the
reference query runs with Execute, and AssertResults compares the engine's
answer with what the plan produced.
*/

////////////////////////////////////////////////////////////////////////////////

var (
	ErrUnsupportedType = func(dt arrow.DataType) error {
		return fmt.Errorf("reference runner does not support arrow type %s", dt)
	}
)

// Runner owns one database connection. An in-memory sqlite database lives as
// long as its connection, so the pool is pinned to a single connection.
type Runner struct {
	db  *sql.DB
	mem memory.Allocator
}

func NewRunner(driver, dsn string) (*Runner, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open reference database: %w", err)
	}
	return &Runner{db: db, mem: memory.DefaultAllocator}, nil
}

func (r *Runner) Close() error {
	return r.db.Close()
}

func sqlType(dt arrow.DataType) (string, error) {
	switch dt.ID() {
	case arrow.INT32, arrow.INT64, arrow.BOOL:
		return "INTEGER", nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return "REAL", nil
	case arrow.STRING:
		return "TEXT", nil
	}
	return "", ErrUnsupportedType(dt)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTable replaces table name with the rows of batches. Every batch must
// share the first batch's schema.
func (r *Runner) CreateTable(ctx context.Context, name string, batches ...*operators.RecordBatch) error {
	if len(batches) == 0 {
		return fmt.Errorf("table %s needs at least one batch", name)
	}
	schema := batches[0].Schema
	cols := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		t, err := sqlType(f.Type)
		if err != nil {
			return err
		}
		cols[i] = quoteIdent(f.Name) + " " + t
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	var rows int
	args := make([]any, len(cols))
	for _, b := range batches {
		if !b.Schema.Equal(schema) {
			return operators.ErrInvalidSchema("reference table batches have different schemas")
		}
		for row := 0; row < int(b.RowCount); row++ {
			for c, col := range b.Columns {
				args[c] = cellValue(col, row)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", name, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debugw(ctx, "created reference table", "table", name, "rows", rows)
	return nil
}

func cellValue(col arrow.Array, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch c := col.(type) {
	case *array.Int32:
		return int64(c.Value(row))
	case *array.Int64:
		return c.Value(row)
	case *array.Float32:
		return float64(c.Value(row))
	case *array.Float64:
		return c.Value(row)
	case *array.String:
		return c.Value(row)
	case *array.Boolean:
		return c.Value(row)
	}
	return col.ValueStr(row)
}

// Execute runs query and returns its rows typed by schema. The query must
// return exactly one column per schema field, in order.
func (r *Runner) Execute(ctx context.Context, query string, schema *arrow.Schema) (*operators.RecordBatch, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reference query failed: %w", err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(names) != len(schema.Fields()) {
		return nil, fmt.Errorf("reference query returned %d columns, plan produces %d", len(names), len(schema.Fields()))
	}

	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		if _, err := sqlType(f.Type); err != nil {
			return nil, err
		}
		builders[i] = array.NewBuilder(r.mem, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	dest := make([]any, len(builders))
	for i, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.INT32, arrow.INT64:
			dest[i] = new(sql.NullInt64)
		case arrow.FLOAT32, arrow.FLOAT64:
			dest[i] = new(sql.NullFloat64)
		case arrow.BOOL:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan reference row: %w", err)
		}
		for i, b := range builders {
			appendCell(b, dest[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	return operators.NewRecordBatch(schema, cols)
}

func appendCell(b array.Builder, v any) {
	switch b := b.(type) {
	case *array.Int32Builder:
		n := v.(*sql.NullInt64)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(int32(n.Int64))
	case *array.Int64Builder:
		n := v.(*sql.NullInt64)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(n.Int64)
	case *array.Float32Builder:
		n := v.(*sql.NullFloat64)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(float32(n.Float64))
	case *array.Float64Builder:
		n := v.(*sql.NullFloat64)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(n.Float64)
	case *array.BooleanBuilder:
		n := v.(*sql.NullBool)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(n.Bool)
	case *array.StringBuilder:
		n := v.(*sql.NullString)
		if !n.Valid {
			b.AppendNull()
			return
		}
		b.Append(n.String)
	}
}
