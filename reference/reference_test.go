package reference

import (
	"context"
	"testing"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "active", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
}, nil)

func people(t *testing.T) *operators.RecordBatch {
	t.Helper()
	gen := operators.NewArrayGen(nil)
	nb := array.NewFloat64Builder(memory.DefaultAllocator)
	defer nb.Release()
	nb.AppendValues([]float64{1.5, 0, 3.25}, []bool{true, false, true})
	rb, err := operators.NewRecordBatch(schema, []arrow.Array{
		gen.Int32(1, 2, 3),
		gen.String("a", "b", "c"),
		nb.NewArray(),
		gen.Bool(true, false, true),
	})
	require.NoError(t, err)
	return rb
}

func newRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestCreateTableAndExecute(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t)
	in := people(t)
	defer in.Release()
	require.NoError(t, r.CreateTable(ctx, "tmp", in))

	out, err := r.Execute(ctx, "SELECT id, name, score, active FROM tmp ORDER BY id", schema)
	require.NoError(t, err)
	defer out.Release()
	require.True(t, in.DeepEqual(out), "expected\n%s\ngot\n%s", in.PrettyPrint(), out.PrettyPrint())

	t.Run("filtered", func(t *testing.T) {
		out, err := r.Execute(ctx, "SELECT id, name, score, active FROM tmp WHERE active", schema)
		require.NoError(t, err)
		defer out.Release()
		require.Equal(t, uint64(2), out.RowCount)
	})
	t.Run("column count mismatch", func(t *testing.T) {
		_, err := r.Execute(ctx, "SELECT id FROM tmp", schema)
		require.Error(t, err)
	})
	t.Run("bad sql", func(t *testing.T) {
		_, err := r.Execute(ctx, "SELEKT 1", schema)
		require.Error(t, err)
	})
	t.Run("create replaces the table", func(t *testing.T) {
		require.NoError(t, r.CreateTable(ctx, "tmp", in, in))
		out, err := r.Execute(ctx, "SELECT id, name, score, active FROM tmp", schema)
		require.NoError(t, err)
		defer out.Release()
		require.Equal(t, uint64(6), out.RowCount)
	})
}

func TestAssertResults(t *testing.T) {
	gen := operators.NewArrayGen(nil)
	s := arrow.NewSchema([]arrow.Field{
		{Name: "k", Type: arrow.PrimitiveTypes.Int64},
		{Name: "v", Type: arrow.BinaryTypes.String},
	}, nil)
	mk := func(ks []int64, vs []string) *operators.RecordBatch {
		rb, err := operators.NewRecordBatch(s, []arrow.Array{gen.Int64(ks...), gen.String(vs...)})
		require.NoError(t, err)
		return rb
	}
	expected := mk([]int64{1, 2, 3}, []string{"a", "b", "c"})
	shuffled := mk([]int64{3, 1, 2}, []string{"c", "a", "b"})
	wrong := mk([]int64{1, 2, 3}, []string{"a", "x", "c"})
	short := mk([]int64{1}, []string{"a"})

	require.NoError(t, AssertResults(expected, expected, nil))
	require.Error(t, AssertResults(expected, shuffled, nil))
	require.NoError(t, AssertResults(expected, shuffled, []int{0}))
	require.NoError(t, AssertResults(expected, shuffled, []int{}))

	err := AssertResults(expected, wrong, []int{0})
	var mismatch *ResultMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 1, mismatch.Row)

	require.ErrorContains(t, AssertResults(expected, short, nil), "expected 3 rows, got 1")
	require.ErrorContains(t, AssertResults(expected, expected, []int{5}), "out of range")

	other := arrow.NewSchema([]arrow.Field{
		{Name: "k", Type: arrow.PrimitiveTypes.Int32},
		{Name: "v", Type: arrow.BinaryTypes.String},
	}, nil)
	typed, _ := operators.NewRecordBatch(other, []arrow.Array{gen.Int32(1, 2, 3), gen.String("a", "b", "c")})
	require.ErrorContains(t, AssertResults(expected, typed, nil), "expected type")
}
