package source

import (
	"context"
	"fmt"
	"io"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var (
	_ = (operators.Operator)(&ParquetSource{})
)

var (
	ErrParquetColumnMissing = func(name string) error {
		return fmt.Errorf("parquet file has no column named %q", name)
	}
)

// ParquetSource streams record batches out of a parquet file. Each Next call
// returns one record of at most batchSize rows.
type ParquetSource struct {
	schema *arrow.Schema
	file   *file.Reader
	reader pqarrow.RecordReader
	done   bool
}

// NewParquetSource opens r and projects the named columns, or every column when
// columns is empty.
func NewParquetSource(ctx context.Context, mem memory.Allocator, r parquet.ReaderAtSeeker, batchSize int64, columns ...string) (*ParquetSource, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fileReader, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(mem)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{Parallel: false, BatchSize: batchSize},
		mem,
	)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	var indices []int
	if len(columns) > 0 {
		s, err := arrowReader.Schema()
		if err != nil {
			fileReader.Close()
			return nil, err
		}
		for _, col := range columns {
			idx := s.FieldIndices(col)
			if len(idx) == 0 {
				fileReader.Close()
				return nil, ErrParquetColumnMissing(col)
			}
			indices = append(indices, idx...)
		}
	}
	rdr, err := arrowReader.GetRecordReader(ctx, indices, nil)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	return &ParquetSource{
		schema: rdr.Schema(),
		file:   fileReader,
		reader: rdr,
	}, nil
}

func (ps *ParquetSource) Next(_ uint16) (*operators.RecordBatch, error) {
	if ps.reader == nil || ps.done {
		return nil, io.EOF
	}
	if !ps.reader.Next() {
		ps.done = true
		if err := ps.reader.Err(); err != nil && err != io.EOF {
			return nil, err
		}
		return nil, io.EOF
	}
	return operators.FromRecord(ps.reader.Record()), nil
}

func (ps *ParquetSource) Close() error {
	if ps.reader != nil {
		ps.reader.Release()
		ps.reader = nil
	}
	if ps.file != nil {
		err := ps.file.Close()
		ps.file = nil
		return err
	}
	return nil
}

func (ps *ParquetSource) Schema() *arrow.Schema {
	return ps.schema
}

// WriteParquet writes batches as one parquet file with row groups of at most
// rowGroupSize rows. All batches must share schema.
func WriteParquet(w io.Writer, schema *arrow.Schema, rowGroupSize int64, batches ...*operators.RecordBatch) error {
	records := make([]arrow.Record, 0, len(batches))
	for _, b := range batches {
		if !b.Schema.Equal(schema) {
			return operators.ErrInvalidSchema("batch schema does not match parquet schema")
		}
		rec := b.ToRecord()
		defer rec.Release()
		records = append(records, rec)
	}
	tbl := array.NewTableFromRecords(schema, records)
	defer tbl.Release()
	return pqarrow.WriteTable(tbl, w, rowGroupSize, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
}
