package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&CSVSource{})
)

var (
	ErrCSVColumnMissing = func(name string) error {
		return fmt.Errorf("csv header has no column named %q", name)
	}
)

// CSVSource reads a headered CSV stream into record batches. The schema is
// either declared by the caller or inferred from the first data row.
type CSVSource struct {
	r            *csv.Reader
	mem          memory.Allocator
	schema       *arrow.Schema
	colPosition  map[string]int
	firstDataRow []string
	done         bool
}

// NewCSVSource infers column types from the first data row.
func NewCSVSource(mem memory.Allocator, r io.Reader) (*CSVSource, error) {
	return newCSVSource(mem, r, nil)
}

// NewCSVSourceWithSchema reads the columns named by schema, converting cells to
// the declared types.
func NewCSVSourceWithSchema(mem memory.Allocator, r io.Reader, schema *arrow.Schema) (*CSVSource, error) {
	return newCSVSource(mem, r, schema)
}

func newCSVSource(mem memory.Allocator, r io.Reader, schema *arrow.Schema) (*CSVSource, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	src := &CSVSource{
		r:           csv.NewReader(r),
		mem:         mem,
		colPosition: make(map[string]int),
	}
	header, err := src.r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, name := range header {
		src.colPosition[strings.TrimSpace(name)] = i
	}
	first, err := src.r.Read()
	switch {
	case err == io.EOF:
		src.done = true
	case err != nil:
		return nil, fmt.Errorf("failed to read csv row: %w", err)
	default:
		src.firstDataRow = first
	}
	if schema != nil {
		for _, f := range schema.Fields() {
			if _, ok := src.colPosition[f.Name]; !ok {
				return nil, ErrCSVColumnMissing(f.Name)
			}
		}
		src.schema = schema
		return src, nil
	}
	fields := make([]arrow.Field, len(header))
	for i, name := range header {
		sample := ""
		if first != nil && i < len(first) {
			sample = first[i]
		}
		fields[i] = arrow.Field{Name: strings.TrimSpace(name), Type: parseDataType(sample), Nullable: true}
	}
	src.schema = arrow.NewSchema(fields, nil)
	return src, nil
}

func (csvS *CSVSource) Next(n uint16) (*operators.RecordBatch, error) {
	if csvS.done && csvS.firstDataRow == nil {
		return nil, io.EOF
	}
	builders := csvS.initBuilders()
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()
	rowsRead := uint16(0)
	if csvS.firstDataRow != nil && rowsRead < n {
		if err := csvS.processRow(csvS.firstDataRow, builders); err != nil {
			return nil, err
		}
		csvS.firstDataRow = nil
		rowsRead++
	}
	for rowsRead < n && !csvS.done {
		row, err := csvS.r.Read()
		if err == io.EOF {
			csvS.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if err := csvS.processRow(row, builders); err != nil {
			return nil, err
		}
		rowsRead++
	}
	if rowsRead == 0 {
		return nil, io.EOF
	}
	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
	}
	return &operators.RecordBatch{
		Schema:   csvS.schema,
		Columns:  columns,
		RowCount: uint64(rowsRead),
	}, nil
}

func (csvS *CSVSource) Close() error {
	csvS.r = nil
	csvS.done = true
	csvS.firstDataRow = nil
	return nil
}

func (csvS *CSVSource) Schema() *arrow.Schema {
	return csvS.schema
}

func (csvS *CSVSource) initBuilders() []array.Builder {
	fields := csvS.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(csvS.mem, f.Type)
	}
	return builders
}

func isNullCell(cell string) bool {
	return cell == "" || cell == "NULL"
}

func (csvS *CSVSource) processRow(content []string, builders []array.Builder) error {
	for i, f := range csvS.schema.Fields() {
		colIdx := csvS.colPosition[f.Name]
		if colIdx >= len(content) {
			return fmt.Errorf("csv row has %d cells, column %q is at %d", len(content), f.Name, colIdx)
		}
		cell := strings.TrimSpace(content[colIdx])
		if isNullCell(cell) {
			builders[i].AppendNull()
			continue
		}
		switch b := builders[i].(type) {
		case *array.Int32Builder:
			v, err := strconv.ParseInt(cell, 10, 32)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			b.Append(int32(v))
		case *array.Int64Builder:
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			b.Append(v)
		case *array.Float64Builder:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			b.Append(v)
		case *array.StringBuilder:
			b.Append(cell)
		case *array.BooleanBuilder:
			b.Append(cell == "true")
		default:
			return fmt.Errorf("unsupported Arrow type: %s", f.Type)
		}
	}
	return nil
}

func parseDataType(sample string) arrow.DataType {
	sample = strings.TrimSpace(sample)
	if sample == "" || strings.EqualFold(sample, "NULL") {
		return arrow.BinaryTypes.String
	}
	if sample == "true" || sample == "false" {
		return arrow.FixedWidthTypes.Boolean
	}
	if _, err := strconv.ParseInt(sample, 10, 64); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}
