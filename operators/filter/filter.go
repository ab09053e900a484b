package filter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"split-harness-go/Expr"
	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&FilterExec{})
)

var (
	ErrInvalidPredicate = func(info string) error {
		return fmt.Errorf("predicate passed to FilterExec is invalid: %s", info)
	}
)

// FilterExec is an operator that filters input records according to a predicate expression.
type FilterExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	predicate Expr.Expression
	mem       memory.Allocator
	done      bool
}

// NewFilterExec binds pred against the input schema. The predicate must
// evaluate to a boolean.
func NewFilterExec(mem memory.Allocator, input operators.Operator, pred Expr.Expression) (*FilterExec, error) {
	bound, err := Expr.Bind(pred, input.Schema())
	if err != nil {
		return nil, ErrInvalidPredicate(err.Error())
	}
	dt, err := Expr.InferType(bound, input.Schema())
	if err != nil {
		return nil, ErrInvalidPredicate(err.Error())
	}
	if dt.ID() != arrow.BOOL {
		return nil, ErrInvalidPredicate(fmt.Sprintf("%s evaluates to %s", pred, dt))
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &FilterExec{
		input:     input,
		predicate: bound,
		schema:    input.Schema(),
		mem:       mem,
	}, nil
}

func (f *FilterExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, errors.New("must pass in wanted batch size > 0")
	}
	if f.done {
		return nil, io.EOF
	}
	childBatch, err := f.input.Next(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			f.done = true
		}
		return nil, err
	}
	defer childBatch.Release()

	ctx := compute.WithAllocator(context.Background(), f.mem)
	booleanMask, err := Expr.EvalExpression(ctx, f.predicate, childBatch)
	if err != nil {
		return nil, err
	}
	defer booleanMask.Release()
	boolArr, ok := booleanMask.(*array.Boolean)
	if !ok {
		return nil, errors.New("predicate did not evaluate to boolean array")
	}
	filteredCol := make([]arrow.Array, len(childBatch.Columns))
	for i, col := range childBatch.Columns {
		filteredCol[i], err = ApplyBooleanMask(ctx, col, boolArr)
		if err != nil {
			operators.ReleaseArrays(filteredCol[:i])
			return nil, err
		}
	}
	var size uint64
	if len(filteredCol) > 0 {
		size = uint64(filteredCol[0].Len())
	}
	return &operators.RecordBatch{
		Schema:   childBatch.Schema,
		Columns:  filteredCol,
		RowCount: size,
	}, nil
}

func (f *FilterExec) Schema() *arrow.Schema {
	return f.schema
}

func (f *FilterExec) Close() error {
	return f.input.Close()
}

// ApplyBooleanMask keeps the rows of col where mask is true. Null mask slots
// drop the row.
func ApplyBooleanMask(ctx context.Context, col arrow.Array, mask *array.Boolean) (arrow.Array, error) {
	cd := compute.NewDatum(col)
	defer cd.Release()
	md := compute.NewDatum(mask)
	defer md.Release()
	datum, err := compute.Filter(ctx, cd, md, *compute.DefaultFilterOptions())
	if err != nil {
		return nil, err
	}
	defer datum.Release()
	return datum.(*compute.ArrayDatum).MakeArray(), nil
}
