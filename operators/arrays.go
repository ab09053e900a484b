package operators

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ArrayGen builds small Arrow arrays from Go values. Mostly useful in tests and
// for in-memory splits.
type ArrayGen struct {
	mem memory.Allocator
}

func NewArrayGen(mem memory.Allocator) *ArrayGen {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &ArrayGen{mem: mem}
}

func (g *ArrayGen) Int32(values ...int32) arrow.Array {
	b := array.NewInt32Builder(g.mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func (g *ArrayGen) Int64(values ...int64) arrow.Array {
	b := array.NewInt64Builder(g.mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func (g *ArrayGen) Float64(values ...float64) arrow.Array {
	b := array.NewFloat64Builder(g.mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func (g *ArrayGen) String(values ...string) arrow.Array {
	b := array.NewStringBuilder(g.mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func (g *ArrayGen) Bool(values ...bool) arrow.Array {
	b := array.NewBooleanBuilder(g.mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

// FromSlice converts a Go slice into an Arrow array, returning the field that
// describes it. Supported element types mirror the in-memory source.
func (g *ArrayGen) FromSlice(name string, col any) (arrow.Field, arrow.Array, error) {
	field := arrow.Field{Name: name, Nullable: true}
	switch v := col.(type) {
	case []int:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(g.mem)
		defer b.Release()
		for _, x := range v {
			b.Append(int64(x))
		}
		return field, b.NewArray(), nil
	case []int32:
		field.Type = arrow.PrimitiveTypes.Int32
		return field, g.Int32(v...), nil
	case []int64:
		field.Type = arrow.PrimitiveTypes.Int64
		return field, g.Int64(v...), nil
	case []float64:
		field.Type = arrow.PrimitiveTypes.Float64
		return field, g.Float64(v...), nil
	case []float32:
		field.Type = arrow.PrimitiveTypes.Float32
		b := array.NewFloat32Builder(g.mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return field, b.NewArray(), nil
	case []string:
		field.Type = arrow.BinaryTypes.String
		return field, g.String(v...), nil
	case []bool:
		field.Type = arrow.FixedWidthTypes.Boolean
		return field, g.Bool(v...), nil
	}
	return arrow.Field{}, nil, ErrInvalidSchema("unsupported column type for column " + name)
}
