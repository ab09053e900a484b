package aggr

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
	ErrUnsupportedAggrFunc = func(aggr AggrFunc) error {
		return fmt.Errorf("%d is an unsupported aggregate function", int(aggr))
	}
	ErrInvalidAggrColumnType = func(dt arrow.DataType) error {
		return fmt.Errorf("cannot aggregate over column of type %s", dt)
	}
)

// AggrFunc is a global aggregate function.
type AggrFunc int

const (
	Min AggrFunc = iota
	Max
	Count
	Sum
	Avg
)

func (f AggrFunc) String() string {
	switch f {
	case Min:
		return "min"
	case Max:
		return "max"
	case Count:
		return "count"
	case Sum:
		return "sum"
	case Avg:
		return "avg"
	}
	return "unknown"
}

var (
	_ = (accumulator)(&minAccumulator{})
	_ = (accumulator)(&maxAccumulator{})
	_ = (accumulator)(&countAccumulator{})
	_ = (accumulator)(&sumAccumulator{})
	_ = (accumulator)(&avgAccumulator{})
	_ = (operators.Operator)(&AggrExec{})
)

// Aggregate applies Func to the non-null values of Child.
type Aggregate struct {
	Func  AggrFunc
	Child Expr.Expression
}

func NewAggregate(fn AggrFunc, child Expr.Expression) Aggregate {
	return Aggregate{Func: fn, Child: child}
}

// Name is the output column name, e.g. sum_salary.
func (a Aggregate) Name() string {
	return fmt.Sprintf("%s_%s", a.Func, a.Child)
}

// OutputType is int64 for count and float64 for everything else.
func (a Aggregate) OutputType() arrow.DataType {
	if a.Func == Count {
		return arrow.PrimitiveTypes.Int64
	}
	return arrow.PrimitiveTypes.Float64
}

// AggregateSchema returns the single-row schema produced by aggs.
func AggregateSchema(aggs []Aggregate) *arrow.Schema {
	fields := make([]arrow.Field, len(aggs))
	for i, a := range aggs {
		fields[i] = arrow.Field{Name: a.Name(), Type: a.OutputType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// accumulators only see non-null values. seen reports whether Finalize has a
// value; SQL aggregates other than count are null over no rows.
type accumulator interface {
	Update(value float64)
	Finalize() (float64, bool)
}

func newAccumulator(fn AggrFunc) (accumulator, error) {
	switch fn {
	case Min:
		return &minAccumulator{}, nil
	case Max:
		return &maxAccumulator{}, nil
	case Count:
		return &countAccumulator{}, nil
	case Sum:
		return &sumAccumulator{}, nil
	case Avg:
		return &avgAccumulator{}, nil
	}
	return nil, ErrUnsupportedAggrFunc(fn)
}

type minAccumulator struct {
	v    float64
	seen bool
}

func (m *minAccumulator) Update(value float64) {
	if !m.seen || value < m.v {
		m.v = value
	}
	m.seen = true
}
func (m *minAccumulator) Finalize() (float64, bool) { return m.v, m.seen }

type maxAccumulator struct {
	v    float64
	seen bool
}

func (m *maxAccumulator) Update(value float64) {
	if !m.seen || value > m.v {
		m.v = value
	}
	m.seen = true
}
func (m *maxAccumulator) Finalize() (float64, bool) { return m.v, m.seen }

type countAccumulator struct {
	count float64
}

func (c *countAccumulator) Update(float64)            { c.count++ }
func (c *countAccumulator) Finalize() (float64, bool) { return c.count, true }

type sumAccumulator struct {
	sum  float64
	seen bool
}

func (s *sumAccumulator) Update(value float64) {
	s.sum += value
	s.seen = true
}
func (s *sumAccumulator) Finalize() (float64, bool) { return s.sum, s.seen }

type avgAccumulator struct {
	sum   float64
	count float64
}

func (a *avgAccumulator) Update(value float64) {
	a.sum += value
	a.count++
}
func (a *avgAccumulator) Finalize() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.sum / a.count, true
}

// AggrExec computes global aggregations (no grouping). It drains its child on
// the first Next and yields exactly one row.
type AggrExec struct {
	mem          memory.Allocator
	child        operators.Operator
	schema       *arrow.Schema
	aggs         []Aggregate
	accumulators []accumulator
	done         bool
}

func NewGlobalAggrExec(mem memory.Allocator, child operators.Operator, aggs []Aggregate) (*AggrExec, error) {
	if len(aggs) == 0 {
		return nil, errors.New("aggregation needs at least one aggregate")
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	bound := make([]Aggregate, len(aggs))
	accs := make([]accumulator, len(aggs))
	for i, agg := range aggs {
		e, err := Expr.Bind(agg.Child, child.Schema())
		if err != nil {
			return nil, err
		}
		dt, err := Expr.InferType(e, child.Schema())
		if err != nil {
			return nil, err
		}
		if agg.Func != Count && !validAggrType(dt) {
			return nil, ErrInvalidAggrColumnType(dt)
		}
		if accs[i], err = newAccumulator(agg.Func); err != nil {
			return nil, err
		}
		bound[i] = Aggregate{Func: agg.Func, Child: e}
	}
	return &AggrExec{
		mem:          mem,
		child:        child,
		schema:       AggregateSchema(aggs),
		aggs:         bound,
		accumulators: accs,
	}, nil
}

func (a *AggrExec) Next(n uint16) (*operators.RecordBatch, error) {
	if a.done {
		return nil, io.EOF
	}
	a.done = true
	ctx := compute.WithAllocator(context.Background(), a.mem)
	for {
		childBatch, err := a.child.Next(n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		err = a.update(ctx, childBatch)
		childBatch.Release()
		if err != nil {
			return nil, err
		}
	}

	cols := make([]arrow.Array, len(a.accumulators))
	for i, acc := range a.accumulators {
		v, ok := acc.Finalize()
		if a.aggs[i].Func == Count {
			b := array.NewInt64Builder(a.mem)
			b.Append(int64(v))
			cols[i] = b.NewArray()
			b.Release()
			continue
		}
		b := array.NewFloat64Builder(a.mem)
		if ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
		cols[i] = b.NewArray()
		b.Release()
	}
	return &operators.RecordBatch{Schema: a.schema, Columns: cols, RowCount: 1}, nil
}

func (a *AggrExec) update(ctx context.Context, rb *operators.RecordBatch) error {
	for i, agg := range a.aggs {
		arr, err := Expr.EvalExpression(ctx, agg.Child, rb)
		if err != nil {
			return err
		}
		acc := a.accumulators[i]
		if agg.Func == Count {
			for j := 0; j < arr.Len(); j++ {
				if arr.IsValid(j) {
					acc.Update(0)
				}
			}
			arr.Release()
			continue
		}
		values, err := compute.CastArray(ctx, arr, compute.SafeCastOptions(arrow.PrimitiveTypes.Float64))
		arr.Release()
		if err != nil {
			return err
		}
		f := values.(*array.Float64)
		for j := 0; j < f.Len(); j++ {
			if f.IsValid(j) {
				acc.Update(f.Value(j))
			}
		}
		values.Release()
	}
	return nil
}

func (a *AggrExec) Schema() *arrow.Schema {
	return a.schema
}

func (a *AggrExec) Close() error {
	return a.child.Close()
}

func validAggrType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}
