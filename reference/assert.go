package reference

import (
	"fmt"
	"sort"
	"strings"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

const nullCell = "null"

// ResultMismatchError describes the first difference between the reference
// result and the plan output.
type ResultMismatchError struct {
	Reason   string
	Row      int
	Expected string
	Actual   string
}

func (e *ResultMismatchError) Error() string {
	if e.Row < 0 {
		return "results differ: " + e.Reason
	}
	return fmt.Sprintf("results differ at row %d: %s\n  expected: %s\n  actual:   %s", e.Row, e.Reason, e.Expected, e.Actual)
}

func rowStrings(rb *operators.RecordBatch) [][]string {
	out := make([][]string, rb.RowCount)
	for row := range out {
		cells := make([]string, len(rb.Columns))
		for c, col := range rb.Columns {
			if col.IsNull(row) {
				cells[c] = nullCell
			} else {
				cells[c] = col.ValueStr(row)
			}
		}
		out[row] = cells
	}
	return out
}

// sortRows orders rows by the key columns first, then by every column.
func sortRows(rows [][]string, keys []int) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		for c := range rows[i] {
			if rows[i][c] != rows[j][c] {
				return rows[i][c] < rows[j][c]
			}
		}
		return false
	})
}

// AssertResults compares actual with expected. A nil sortingKeys compares rows
// in order; otherwise both sides are sorted by the given column indices and
// then by the remaining columns, so row order does not matter.
func AssertResults(expected, actual *operators.RecordBatch, sortingKeys []int) error {
	if len(expected.Schema.Fields()) != len(actual.Schema.Fields()) {
		return &ResultMismatchError{
			Row:    -1,
			Reason: fmt.Sprintf("expected %d columns, got %d", len(expected.Schema.Fields()), len(actual.Schema.Fields())),
		}
	}
	for i, f := range expected.Schema.Fields() {
		if got := actual.Schema.Field(i).Type; !arrow.TypeEqual(f.Type, got) {
			return &ResultMismatchError{
				Row:    -1,
				Reason: fmt.Sprintf("column %d (%s) expected type %s, got %s", i, f.Name, f.Type, got),
			}
		}
	}
	for _, k := range sortingKeys {
		if k < 0 || k >= len(expected.Schema.Fields()) {
			return fmt.Errorf("sorting key %d out of range", k)
		}
	}
	if expected.RowCount != actual.RowCount {
		return &ResultMismatchError{
			Row:    -1,
			Reason: fmt.Sprintf("expected %d rows, got %d", expected.RowCount, actual.RowCount),
		}
	}

	want, got := rowStrings(expected), rowStrings(actual)
	if sortingKeys != nil {
		sortRows(want, sortingKeys)
		sortRows(got, sortingKeys)
	}
	for row := range want {
		for c := range want[row] {
			if want[row][c] != got[row][c] {
				return &ResultMismatchError{
					Row:      row,
					Reason:   fmt.Sprintf("column %s", expected.Schema.Field(c).Name),
					Expected: strings.Join(want[row], ", "),
					Actual:   strings.Join(got[row], ", "),
				}
			}
		}
	}
	return nil
}
