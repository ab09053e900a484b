package source

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

const peopleCSV = `id,name,age,score,active
1,Alice,28,4.5,true
2,Bob,34,,false
3,Charlie,NULL,3.9,true
4,David,22,2.5,false
5,Eve,31,5.0,true
`

func TestCsvInit(t *testing.T) {
	src, err := NewCSVSource(nil, strings.NewReader(peopleCSV))
	if err != nil {
		t.Fatalf("failed to create csv source: %v", err)
	}
	want := []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.BinaryTypes.String,
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Float64,
		arrow.FixedWidthTypes.Boolean,
	}
	for i, f := range src.Schema().Fields() {
		if !arrow.TypeEqual(f.Type, want[i]) {
			t.Fatalf("column %s: expected %s got %s", f.Name, want[i], f.Type)
		}
	}
}

func TestCsvNext(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	src, err := NewCSVSource(mem, strings.NewReader(peopleCSV))
	if err != nil {
		t.Fatalf("failed to create csv source: %v", err)
	}
	defer src.Close()

	rb, err := src.Next(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rb.RowCount != 3 {
		t.Fatalf("expected 3 rows got %d", rb.RowCount)
	}
	ages := rb.Columns[2].(*array.Int64)
	if !ages.IsNull(2) || ages.Value(1) != 34 {
		t.Fatalf("unexpected ages %s", ages)
	}
	if !rb.Columns[3].IsNull(1) {
		t.Fatalf("expected empty score to be null")
	}
	rb.Release()

	rb, err = src.Next(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rb.RowCount != 2 {
		t.Fatalf("expected 2 remaining rows got %d", rb.RowCount)
	}
	rb.Release()

	if _, err := src.Next(3); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF got %v", err)
	}
}

func TestCsvWithSchema(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "id", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	}, nil)
	src, err := NewCSVSourceWithSchema(nil, strings.NewReader(peopleCSV), schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb, err := src.Next(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rb.Release()
	if rb.Columns[0].(*array.String).Value(4) != "Eve" || rb.Columns[1].(*array.Int32).Value(4) != 5 {
		t.Fatalf("unexpected batch\n%s", rb.PrettyPrint())
	}

	t.Run("missing column", func(t *testing.T) {
		bad := arrow.NewSchema([]arrow.Field{{Name: "salary", Type: arrow.PrimitiveTypes.Int64}}, nil)
		if _, err := NewCSVSourceWithSchema(nil, strings.NewReader(peopleCSV), bad); err == nil {
			t.Fatalf("expected error for missing column")
		}
	})
	t.Run("unparsable cell", func(t *testing.T) {
		bad := arrow.NewSchema([]arrow.Field{{Name: "name", Type: arrow.PrimitiveTypes.Int64}}, nil)
		src, err := NewCSVSourceWithSchema(nil, strings.NewReader(peopleCSV), bad)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := src.Next(10); err == nil {
			t.Fatalf("expected parse error")
		}
	})
}

func TestCsvHeaderOnly(t *testing.T) {
	src, err := NewCSVSource(nil, strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.Next(10); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF got %v", err)
	}
}
