package aggr

import (
	"errors"
	"io"
	"testing"

	"split-harness-go/Expr"
	"split-harness-go/operators"
	"split-harness-go/operators/source"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

func employees(t *testing.T) operators.Operator {
	t.Helper()
	src, err := source.NewInMemorySource(memory.DefaultAllocator,
		[]string{"id", "name", "age", "salary"},
		[]any{
			[]int32{1, 2, 3, 4, 5},
			[]string{"Alice", "Bob", "Charlie", "David", "Eve"},
			[]int32{28, 34, 45, 22, 34},
			[]float64{70000.0, 82000.5, 54000.0, 91000.0, 60000.0},
		})
	if err != nil {
		t.Fatalf("failed to build source: %v", err)
	}
	return src
}

func drainAll(t *testing.T, op operators.Operator, n uint16) []*operators.RecordBatch {
	t.Helper()
	var out []*operators.RecordBatch
	for {
		rb, err := op.Next(n)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, rb)
	}
}

func int32Column(batches []*operators.RecordBatch, col int) []int32 {
	var out []int32
	for _, b := range batches {
		out = append(out, b.Columns[col].(*array.Int32).Int32Values()...)
	}
	return out
}

func TestOrderBy(t *testing.T) {
	cases := []struct {
		name string
		keys []SortKey
		want []int32
	}{
		{"age asc", []SortKey{{Expr: Expr.NewColumnResolve("age"), Ascending: true}}, []int32{4, 1, 2, 5, 3}},
		{"age desc", []SortKey{{Expr: Expr.NewColumnResolve("age")}}, []int32{3, 2, 5, 1, 4}},
		{"age desc, salary asc", []SortKey{
			{Expr: Expr.NewColumnResolve("age")},
			{Expr: Expr.NewColumnResolve("salary"), Ascending: true},
		}, []int32{3, 5, 2, 1, 4}},
		{"name desc", []SortKey{{Expr: Expr.NewColumnResolve("name")}}, []int32{5, 4, 3, 2, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op, err := NewOrderByExec(nil, employees(t), tc.keys)
			if err != nil {
				t.Fatal(err)
			}
			defer op.Close()
			batches := drainAll(t, op, 2)
			if len(batches) != 3 {
				t.Fatalf("expected 3 batches of at most 2 rows, got %d", len(batches))
			}
			got := int32Column(batches, 0)
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
			for _, b := range batches {
				b.Release()
			}
		})
	}
}

func TestOrderByNulls(t *testing.T) {
	b := array.NewInt64Builder(memory.DefaultAllocator)
	b.AppendValues([]int64{3, 0, 1}, []bool{true, false, true})
	col := b.NewArray()
	b.Release()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true}}, nil)

	for _, nullsFirst := range []bool{true, false} {
		col.Retain()
		src, err := source.NewInMemorySourceFromArrays(schema, []arrow.Array{col})
		if err != nil {
			t.Fatal(err)
		}
		op, err := NewOrderByExec(nil, src, []SortKey{{Expr: Expr.NewColumnResolve("v"), NullsFirst: nullsFirst}})
		if err != nil {
			t.Fatal(err)
		}
		batches := drainAll(t, op, 10)
		out := batches[0].Columns[0]
		nullAt := 2
		if nullsFirst {
			nullAt = 0
		}
		if !out.IsNull(nullAt) {
			t.Fatalf("nullsFirst=%v: expected null at %d, got %s", nullsFirst, nullAt, out)
		}
		batches[0].Release()
		op.Close()
	}
	col.Release()
}

func TestOrderByRejectsUnknownColumn(t *testing.T) {
	_, err := NewOrderByExec(nil, employees(t), []SortKey{{Expr: Expr.NewColumnResolve("nope")}})
	if err == nil {
		t.Fatal("expected error for unknown sort column")
	}
	if _, err := NewOrderByExec(nil, employees(t), nil); err == nil {
		t.Fatal("expected error without sort keys")
	}
}
