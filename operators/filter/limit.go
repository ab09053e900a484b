package filter

import (
	"io"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	_ = (operators.Operator)(&LimitExec{})
)

// LimitExec passes through at most count rows of its input.
type LimitExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	remaining uint64
}

func NewLimitExec(input operators.Operator, count uint64) (*LimitExec, error) {
	return &LimitExec{
		input:     input,
		schema:    input.Schema(),
		remaining: count,
	}, nil
}

func (l *LimitExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return &operators.RecordBatch{
			Schema:   l.schema,
			Columns:  []arrow.Array{},
			RowCount: 0,
		}, nil
	}
	if l.remaining == 0 {
		return nil, io.EOF
	}
	childN := n
	if uint64(n) > l.remaining {
		childN = uint16(l.remaining)
	}
	childBatch, err := l.input.Next(childN)
	if err != nil {
		return nil, err
	}
	// inputs are free to return more rows than asked for
	if childBatch.RowCount > l.remaining {
		trimmed := make([]arrow.Array, len(childBatch.Columns))
		for i, col := range childBatch.Columns {
			trimmed[i] = array.NewSlice(col, 0, int64(l.remaining))
		}
		childBatch.Release()
		childBatch = &operators.RecordBatch{Schema: l.schema, Columns: trimmed, RowCount: l.remaining}
	}
	l.remaining -= childBatch.RowCount
	return childBatch, nil
}

func (l *LimitExec) Schema() *arrow.Schema {
	return l.schema
}

func (l *LimitExec) Close() error {
	return l.input.Close()
}
