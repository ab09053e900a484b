package project

import (
	"errors"
	"io"
	"testing"

	"split-harness-go/Expr"
	"split-harness-go/operators/source"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

func generateTestColumns() ([]string, []any) {
	names := []string{"id", "name", "age", "salary"}
	columns := []any{
		[]int32{1, 2, 3, 4, 5},
		[]string{"Alice", "Bob", "Charlie", "David", "Eve"},
		[]int32{28, 34, 45, 22, 31},
		[]float64{70000.0, 82000.5, 54000.0, 91000.0, 60000.0},
	}
	return names, columns
}

func memSource(t *testing.T, mem memory.Allocator) *source.InMemorySource {
	t.Helper()
	names, cols := generateTestColumns()
	src, err := source.NewInMemorySource(mem, names, cols)
	if err != nil {
		t.Fatalf("failed to create in memory source: %v", err)
	}
	return src
}

func TestProjectExec_Init(t *testing.T) {
	exprs := []Expr.Expression{
		Expr.NewColumnResolve("id"),
		Expr.NewColumnResolve("name"),
	}
	proj, err := NewProjectExec(nil, memSource(t, nil), exprs)
	if err != nil {
		t.Fatalf("failed to create project exec: %v", err)
	}
	schema := proj.Schema()
	if schema.NumFields() != len(exprs) {
		t.Fatalf("expected %d fields, got %d", len(exprs), schema.NumFields())
	}
	if schema.Field(1).Name != "name" || schema.Field(1).Type.ID() != arrow.STRING {
		t.Fatalf("unexpected field %v", schema.Field(1))
	}

	t.Run("empty projection", func(t *testing.T) {
		if _, err := NewProjectExec(nil, memSource(t, nil), nil); !errors.Is(err, ErrEmptyProjection) {
			t.Fatalf("expected ErrEmptyProjection, got %v", err)
		}
	})
	t.Run("unknown column", func(t *testing.T) {
		if _, err := NewColumnProjectExec(nil, memSource(t, nil), "nope"); err == nil {
			t.Fatalf("expected error for unknown column")
		}
	})
}

func TestProjectExec_BasicColumns(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	projExec, err := NewColumnProjectExec(mem, memSource(t, mem), "name", "id")
	if err != nil {
		t.Fatalf("failed to create project exec: %v", err)
	}
	defer projExec.Close()

	rb, err := projExec.Next(3)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(rb.Columns) != 2 || rb.RowCount != 3 {
		t.Fatalf("expected 2 columns and 3 rows, got %d and %d", len(rb.Columns), rb.RowCount)
	}
	if got := rb.Columns[0].(*array.String).Value(0); got != "Alice" {
		t.Fatalf("expected Alice first, got %s", got)
	}
	rb.Release()

	rb, err = projExec.Next(10)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rb.RowCount != 2 {
		t.Fatalf("expected remaining 2 rows, got %d", rb.RowCount)
	}
	rb.Release()

	if _, err := projExec.Next(10); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestProjectExec_Expressions(t *testing.T) {
	expr, err := Expr.ParseUntyped("age + 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	projExec, err := NewProjectExec(nil, memSource(t, nil), []Expr.Expression{expr})
	if err != nil {
		t.Fatalf("failed to create project exec: %v", err)
	}
	defer projExec.Close()
	if projExec.Schema().Field(0).Type.ID() != arrow.INT32 {
		t.Fatalf("expected int32 result, got %s", projExec.Schema().Field(0).Type)
	}
	rb, err := projExec.Next(5)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	defer rb.Release()
	got := rb.Columns[0].(*array.Int32).Int32Values()
	want := []int32{29, 35, 46, 23, 32}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}

func TestProjectSchemaFilterDown(t *testing.T) {
	src := memSource(t, nil)
	defer src.Close()
	rb, _ := src.Next(5)
	defer rb.Release()

	schema, cols, err := ProjectSchemaFilterDown(rb.Schema, rb.Columns, "salary", "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema.Field(0).Name != "salary" || len(cols) != 2 {
		t.Fatalf("unexpected projection %s", schema)
	}
	if _, _, err := ProjectSchemaFilterDown(rb.Schema, rb.Columns); !errors.Is(err, ErrEmptyProjection) {
		t.Fatalf("expected ErrEmptyProjection, got %v", err)
	}
	if _, _, err := ProjectSchemaFilterDown(rb.Schema, rb.Columns, "missing"); err == nil {
		t.Fatalf("expected error for missing column")
	}
}
