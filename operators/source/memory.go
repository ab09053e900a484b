package source

import (
	"fmt"
	"io"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&InMemorySource{})
)

var (
	ErrInvalidInMemoryDataType = func(Type any) error {
		return fmt.Errorf("%T is not a supported in memory dataType for InMemorySource", Type)
	}
)

// InMemorySource serves pre-built Arrow columns in slices of at most n rows.
type InMemorySource struct {
	schema  *arrow.Schema
	columns []arrow.Array
	pos     int
}

// NewInMemorySource builds a source from Go slices, one per column name.
func NewInMemorySource(mem memory.Allocator, names []string, columns []any) (*InMemorySource, error) {
	if len(names) != len(columns) {
		return nil, operators.ErrInvalidSchema("number of column names and columns do not match")
	}
	gen := operators.NewArrayGen(mem)
	fields := make([]arrow.Field, 0, len(names))
	arrays := make([]arrow.Array, 0, len(names))
	for i, col := range columns {
		field, arr, err := gen.FromSlice(names[i], col)
		if err != nil {
			operators.ReleaseArrays(arrays)
			return nil, ErrInvalidInMemoryDataType(col)
		}
		fields = append(fields, field)
		arrays = append(arrays, arr)
	}
	return NewInMemorySourceFromArrays(arrow.NewSchema(fields, nil), arrays)
}

// NewInMemorySourceFromArrays takes ownership of columns.
func NewInMemorySourceFromArrays(schema *arrow.Schema, columns []arrow.Array) (*InMemorySource, error) {
	if _, err := operators.NewRecordBatch(schema, columns); err != nil {
		return nil, err
	}
	return &InMemorySource{
		schema:  schema,
		columns: columns,
	}, nil
}

func (ms *InMemorySource) Next(n uint16) (*operators.RecordBatch, error) {
	if len(ms.columns) == 0 || ms.pos >= ms.columns[0].Len() {
		return nil, io.EOF
	}
	toRead := ms.columns[0].Len() - ms.pos
	if int(n) < toRead {
		toRead = int(n)
	}
	out := make([]arrow.Array, len(ms.columns))
	for i, col := range ms.columns {
		out[i] = array.NewSlice(col, int64(ms.pos), int64(ms.pos+toRead))
	}
	ms.pos += toRead
	return &operators.RecordBatch{
		Schema:   ms.schema,
		Columns:  out,
		RowCount: uint64(toRead),
	}, nil
}

func (ms *InMemorySource) Close() error {
	operators.ReleaseArrays(ms.columns)
	ms.columns = nil
	return nil
}

func (ms *InMemorySource) Schema() *arrow.Schema {
	return ms.schema
}
