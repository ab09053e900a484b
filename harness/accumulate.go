package harness

import (
	"errors"
	"fmt"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ErrSchemaMismatch is matched by SchemaMismatchError.
var ErrSchemaMismatch = errors.New("batch schema does not match plan output type")

// SchemaMismatchError reports the first batch whose schema differs from the
// declared output schema.
type SchemaMismatchError struct {
	Batch    int
	Expected *arrow.Schema
	Actual   *arrow.Schema
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("batch %d has schema %s, expected %s", e.Batch, e.Actual, e.Expected)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// MergeBatches concatenates batches, in order, into one batch allocated from
// mem. The input batches are not released. With no batches the result is an
// empty batch of schema.
func MergeBatches(schema *arrow.Schema, batches []*operators.RecordBatch, mem memory.Allocator) (*operators.RecordBatch, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	var total uint64
	for i, b := range batches {
		if !b.Schema.Equal(schema) {
			return nil, &SchemaMismatchError{Batch: i, Expected: schema, Actual: b.Schema}
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		total += b.RowCount
	}
	if len(batches) == 0 {
		return operators.EmptyBatch(schema, mem), nil
	}

	cols := make([]arrow.Array, len(schema.Fields()))
	parts := make([]arrow.Array, len(batches))
	for c := range cols {
		for i, b := range batches {
			parts[i] = b.Columns[c]
		}
		merged, err := array.Concatenate(parts, mem)
		if err != nil {
			operators.ReleaseArrays(cols[:c])
			return nil, fmt.Errorf("failed to merge column %s: %w", schema.Field(c).Name, err)
		}
		cols[c] = merged
	}
	return &operators.RecordBatch{Schema: schema, Columns: cols, RowCount: total}, nil
}
