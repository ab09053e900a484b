package source

import (
	"io"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	_ = (operators.Operator)(&ValuesSource{})
)

// ValuesSource replays a fixed list of batches, one per Next call regardless of
// the requested size. Each returned batch carries its own references.
type ValuesSource struct {
	schema  *arrow.Schema
	batches []*operators.RecordBatch
	pos     int
}

func NewValuesSource(schema *arrow.Schema, batches []*operators.RecordBatch) (*ValuesSource, error) {
	for _, b := range batches {
		if !b.Schema.Equal(schema) {
			return nil, operators.ErrInvalidSchema("values batch schema does not match node schema")
		}
	}
	return &ValuesSource{schema: schema, batches: batches}, nil
}

func (v *ValuesSource) Next(uint16) (*operators.RecordBatch, error) {
	if v.pos >= len(v.batches) {
		return nil, io.EOF
	}
	b := v.batches[v.pos]
	v.pos++
	b.Retain()
	return &operators.RecordBatch{Schema: b.Schema, Columns: b.Columns, RowCount: b.RowCount}, nil
}

func (v *ValuesSource) Schema() *arrow.Schema {
	return v.schema
}

// Close leaves the batches untouched; they belong to the plan.
func (v *ValuesSource) Close() error {
	v.pos = len(v.batches)
	return nil
}
