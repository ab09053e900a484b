package operators

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidSchema = func(info string) error {
		return fmt.Errorf("invalid schema was provided. context: %s", info)
	}
)

// Operator is a pull-based stage of an executing plan. Next returns io.EOF once
// the operator is exhausted; call Close afterwards to release resources.
type Operator interface {
	Next(uint16) (*RecordBatch, error)
	Schema() *arrow.Schema
	Close() error
}

// RecordBatch is one immutable chunk of columnar rows. The consumer of a batch
// owns its columns and is responsible for calling Release.
type RecordBatch struct {
	Schema   *arrow.Schema
	Columns  []arrow.Array
	RowCount uint64
}

// NewRecordBatch validates columns against schema and derives the row count
// from the first column.
func NewRecordBatch(schema *arrow.Schema, columns []arrow.Array) (*RecordBatch, error) {
	if err := validate(schema, columns); err != nil {
		return nil, err
	}
	var rows uint64
	if len(columns) > 0 {
		rows = uint64(columns[0].Len())
	}
	return &RecordBatch{
		Schema:   schema,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

// EmptyBatch returns a zero-row batch with one empty column per field.
func EmptyBatch(schema *arrow.Schema, mem memory.Allocator) *RecordBatch {
	cols := make([]arrow.Array, len(schema.Fields()))
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	return &RecordBatch{Schema: schema, Columns: cols}
}

// schema is always right in case of type mismatches
func validate(schema *arrow.Schema, columns []arrow.Array) error {
	if len(schema.Fields()) != len(columns) {
		return ErrInvalidSchema("schema fields and column count do not match")
	}
	var errors []string
	for i := 0; i < len(columns); i++ {
		field := schema.Field(i)
		colType := columns[i].DataType()
		if !arrow.TypeEqual(colType, field.Type) {
			errors = append(errors,
				fmt.Sprintf("Type mismatch at position %d: column '%s' has type '%s', but schema expects '%s'.",
					i, field.Name, colType, field.Type))
		}
		if columns[i].Len() != columns[0].Len() {
			errors = append(errors,
				fmt.Sprintf("Length mismatch at position %d: column '%s' has %d rows, expected %d.",
					i, field.Name, columns[i].Len(), columns[0].Len()))
		}
	}
	if len(errors) > 0 {
		return ErrInvalidSchema(strings.Join(errors, " "))
	}
	return nil
}

// Validate reports whether the batch's columns agree with its own schema.
func (rb *RecordBatch) Validate() error {
	return validate(rb.Schema, rb.Columns)
}

func (rb *RecordBatch) NumRows() int {
	return int(rb.RowCount)
}

func (rb *RecordBatch) Release() {
	if rb == nil {
		return
	}
	ReleaseArrays(rb.Columns)
	rb.Columns = nil
}

func (rb *RecordBatch) Retain() {
	for _, c := range rb.Columns {
		c.Retain()
	}
}

// ToRecord wraps the batch as an arrow.Record sharing the same columns.
func (rb *RecordBatch) ToRecord() arrow.Record {
	return array.NewRecord(rb.Schema, rb.Columns, int64(rb.RowCount))
}

// FromRecord builds a batch over rec's columns. The columns are retained so the
// batch owns its own references.
func FromRecord(rec arrow.Record) *RecordBatch {
	cols := make([]arrow.Array, rec.NumCols())
	for i := range cols {
		cols[i] = rec.Column(i)
		cols[i].Retain()
	}
	return &RecordBatch{
		Schema:   rec.Schema(),
		Columns:  cols,
		RowCount: uint64(rec.NumRows()),
	}
}

func (rb *RecordBatch) DeepEqual(other *RecordBatch) bool {
	if !rb.Schema.Equal(other.Schema) {
		return false
	}
	if len(rb.Columns) != len(other.Columns) {
		return false
	}
	for i := 0; i < len(rb.Columns); i++ {
		if !array.Equal(rb.Columns[i], other.Columns[i]) {
			return false
		}
	}
	return true
}

// PrettyPrint renders the batch as a header line followed by one line per row.
func (rb *RecordBatch) PrettyPrint() string {
	var sb strings.Builder
	names := make([]string, len(rb.Schema.Fields()))
	for i, f := range rb.Schema.Fields() {
		names[i] = fmt.Sprintf("%s(%s)", f.Name, f.Type)
	}
	sb.WriteString(strings.Join(names, " | "))
	sb.WriteString("\n")
	for row := 0; row < int(rb.RowCount); row++ {
		vals := make([]string, len(rb.Columns))
		for c, col := range rb.Columns {
			vals[c] = col.ValueStr(row)
		}
		sb.WriteString(strings.Join(vals, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func ReleaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

type SchemaBuilder struct {
	fields []arrow.Field
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{fields: make([]arrow.Field, 0, 10)}
}

func (sb *SchemaBuilder) WithField(name string, dtype arrow.DataType, nullable bool) *SchemaBuilder {
	sb.fields = append(sb.fields, arrow.Field{
		Name:     name,
		Type:     dtype,
		Nullable: nullable,
	})
	return sb
}

func (sb *SchemaBuilder) WithoutField(names ...string) *SchemaBuilder {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}
	newFields := make([]arrow.Field, 0, len(sb.fields))
	for _, field := range sb.fields {
		if _, found := nameSet[field.Name]; !found {
			newFields = append(newFields, field)
		}
	}
	sb.fields = newFields
	return sb
}

func (sb *SchemaBuilder) Build() *arrow.Schema {
	return arrow.NewSchema(sb.fields, nil)
}
