package project

import (
	"context"
	"errors"
	"fmt"

	"split-harness-go/Expr"
	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&ProjectExec{})
)

var (
	ErrEmptyProjection = errors.New("no columns passed in to project")
	ErrUnknownColumn   = func(name string) error {
		return fmt.Errorf("invalid column %q passed in to be projected", name)
	}
)

// ProjectExec evaluates one expression per output column over each input batch.
// Plain column references pass the input array through without copying.
type ProjectExec struct {
	input  operators.Operator
	exprs  []Expr.Expression
	schema *arrow.Schema
	mem    memory.Allocator
}

func NewProjectExec(mem memory.Allocator, input operators.Operator, exprs []Expr.Expression) (*ProjectExec, error) {
	if len(exprs) == 0 {
		return nil, ErrEmptyProjection
	}
	bound := make([]Expr.Expression, len(exprs))
	fields := make([]arrow.Field, len(exprs))
	for i, e := range exprs {
		b, err := Expr.Bind(e, input.Schema())
		if err != nil {
			return nil, err
		}
		dt, err := Expr.InferType(b, input.Schema())
		if err != nil {
			return nil, err
		}
		bound[i] = b
		fields[i] = outputField(b, dt, input.Schema())
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &ProjectExec{
		input:  input,
		exprs:  bound,
		schema: arrow.NewSchema(fields, nil),
		mem:    mem,
	}, nil
}

// NewColumnProjectExec keeps only the named columns, in the order given.
func NewColumnProjectExec(mem memory.Allocator, input operators.Operator, columns ...string) (*ProjectExec, error) {
	if len(columns) == 0 {
		return nil, ErrEmptyProjection
	}
	exprs := make([]Expr.Expression, len(columns))
	for i, name := range columns {
		if len(input.Schema().FieldIndices(name)) == 0 {
			return nil, ErrUnknownColumn(name)
		}
		exprs[i] = Expr.NewColumnResolve(name)
	}
	return NewProjectExec(mem, input, exprs)
}

func outputField(e Expr.Expression, dt arrow.DataType, schema *arrow.Schema) arrow.Field {
	if c, ok := e.(*Expr.ColumnResolve); ok {
		return schema.Field(schema.FieldIndices(c.Name)[0])
	}
	return arrow.Field{Name: e.String(), Type: dt, Nullable: true}
}

func (p *ProjectExec) Next(n uint16) (*operators.RecordBatch, error) {
	childBatch, err := p.input.Next(n)
	if err != nil {
		return nil, err
	}
	defer childBatch.Release()

	ctx := compute.WithAllocator(context.Background(), p.mem)
	cols := make([]arrow.Array, len(p.exprs))
	for i, e := range p.exprs {
		cols[i], err = Expr.EvalExpression(ctx, e, childBatch)
		if err != nil {
			operators.ReleaseArrays(cols[:i])
			return nil, err
		}
	}
	return &operators.RecordBatch{
		Schema:   p.schema,
		Columns:  cols,
		RowCount: childBatch.RowCount,
	}, nil
}

func (p *ProjectExec) Schema() *arrow.Schema {
	return p.schema
}

func (p *ProjectExec) Close() error {
	return p.input.Close()
}

// ProjectSchemaFilterDown keeps only the requested columns, aligning schema and
// columns in keepCols order. The returned columns are not retained.
func ProjectSchemaFilterDown(schema *arrow.Schema, cols []arrow.Array, keepCols ...string) (*arrow.Schema, []arrow.Array, error) {
	if len(keepCols) == 0 {
		return nil, nil, ErrEmptyProjection
	}
	newFields := make([]arrow.Field, 0, len(keepCols))
	newCols := make([]arrow.Array, 0, len(keepCols))
	for _, name := range keepCols {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, nil, ErrUnknownColumn(name)
		}
		newFields = append(newFields, schema.Field(idx[0]))
		newCols = append(newCols, cols[idx[0]])
	}
	return arrow.NewSchema(newFields, nil), newCols, nil
}
