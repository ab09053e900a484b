package aggr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"split-harness-go/Expr"
	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&OrderByExec{})
)

// SortKey orders rows by Expr. Nulls sort last unless NullsFirst is set.
type SortKey struct {
	Expr       Expr.Expression
	Ascending  bool
	NullsFirst bool
}

func (k SortKey) String() string {
	dir := "DESC"
	if k.Ascending {
		dir = "ASC"
	}
	nulls := "NULLS LAST"
	if k.NullsFirst {
		nulls = "NULLS FIRST"
	}
	return fmt.Sprintf("%s %s %s", k.Expr, dir, nulls)
}

// OrderByExec is a pipeline breaker: the first Next drains the child, sorts
// every row in memory and then hands the sorted rows out n at a time.
type OrderByExec struct {
	mem      memory.Allocator
	child    operators.Operator
	schema   *arrow.Schema
	sortKeys []SortKey

	sorted   []arrow.Array
	rows     int64
	offset   int64
	consumed bool
}

func NewOrderByExec(mem memory.Allocator, child operators.Operator, sortKeys []SortKey) (*OrderByExec, error) {
	if len(sortKeys) == 0 {
		return nil, errors.New("order by needs at least one sort key")
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	keys := make([]SortKey, len(sortKeys))
	for i, k := range sortKeys {
		bound, err := Expr.Bind(k.Expr, child.Schema())
		if err != nil {
			return nil, err
		}
		keys[i] = SortKey{Expr: bound, Ascending: k.Ascending, NullsFirst: k.NullsFirst}
	}
	return &OrderByExec{
		mem:      mem,
		child:    child,
		schema:   child.Schema(),
		sortKeys: keys,
	}, nil
}

func (s *OrderByExec) Next(n uint16) (*operators.RecordBatch, error) {
	if !s.consumed {
		if err := s.consume(); err != nil {
			return nil, err
		}
	}
	if s.offset >= s.rows {
		return nil, io.EOF
	}
	end := min(s.offset+int64(n), s.rows)
	cols := make([]arrow.Array, len(s.sorted))
	for i, col := range s.sorted {
		cols[i] = array.NewSlice(col, s.offset, end)
	}
	rows := uint64(end - s.offset)
	s.offset = end
	return &operators.RecordBatch{Schema: s.schema, Columns: cols, RowCount: rows}, nil
}

func (s *OrderByExec) consume() error {
	s.consumed = true
	var batches []*operators.RecordBatch
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	for {
		rb, err := s.child.Next(math.MaxUint16)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		batches = append(batches, rb)
		s.rows += int64(rb.RowCount)
	}
	if s.rows == 0 {
		return nil
	}

	all := make([]arrow.Array, len(s.schema.Fields()))
	defer operators.ReleaseArrays(all)
	parts := make([]arrow.Array, len(batches))
	for c := range all {
		for i, b := range batches {
			parts[i] = b.Columns[c]
		}
		merged, err := array.Concatenate(parts, s.mem)
		if err != nil {
			return err
		}
		all[c] = merged
	}
	full := &operators.RecordBatch{Schema: s.schema, Columns: all, RowCount: uint64(s.rows)}

	ctx := compute.WithAllocator(context.Background(), s.mem)
	indices, err := s.sortIndices(ctx, full)
	if err != nil {
		return err
	}
	defer indices.Release()
	s.sorted = make([]arrow.Array, len(all))
	for c, col := range all {
		taken, err := compute.TakeArray(ctx, col, indices)
		if err != nil {
			operators.ReleaseArrays(s.sorted[:c])
			s.sorted = nil
			return err
		}
		s.sorted[c] = taken
	}
	return nil
}

func (s *OrderByExec) sortIndices(ctx context.Context, full *operators.RecordBatch) (arrow.Array, error) {
	keyColumns := make([]arrow.Array, len(s.sortKeys))
	defer operators.ReleaseArrays(keyColumns)
	for i, sk := range s.sortKeys {
		arr, err := Expr.EvalExpression(ctx, sk.Expr, full)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate sort key %s: %w", sk, err)
		}
		keyColumns[i] = arr
	}
	idx := make([]uint64, full.RowCount)
	for i := range idx {
		idx[i] = uint64(i)
	}
	var cmpErr error
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := int(idx[a]), int(idx[b])
		for k, col := range keyColumns {
			cmp, err := compareRows(col, i, j, s.sortKeys[k].NullsFirst)
			if err != nil {
				cmpErr = err
				return false
			}
			if cmp == 0 {
				continue
			}
			if s.sortKeys[k].Ascending || (col.IsNull(i) != col.IsNull(j)) {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	b := array.NewUint64Builder(s.mem)
	defer b.Release()
	b.AppendValues(idx, nil)
	return b.NewArray(), nil
}

// compareRows orders nulls by nullsFirst regardless of sort direction.
func compareRows(col arrow.Array, i, j int, nullsFirst bool) (int, error) {
	ni, nj := col.IsNull(i), col.IsNull(j)
	switch {
	case ni && nj:
		return 0, nil
	case ni:
		if nullsFirst {
			return -1, nil
		}
		return 1, nil
	case nj:
		if nullsFirst {
			return 1, nil
		}
		return -1, nil
	}

	switch arr := col.(type) {
	case *array.String:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Int32:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Int64:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Uint64:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Float32:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Float64:
		return compareOrdered(arr.Value(i), arr.Value(j)), nil
	case *array.Boolean:
		vi, vj := arr.Value(i), arr.Value(j)
		switch {
		case vi == vj:
			return 0, nil
		case !vi:
			return -1, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("cannot sort by column of type %s", col.DataType())
}

func compareOrdered[T int32 | int64 | uint64 | float32 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s *OrderByExec) Schema() *arrow.Schema {
	return s.schema
}

func (s *OrderByExec) Close() error {
	operators.ReleaseArrays(s.sorted)
	s.sorted = nil
	return s.child.Close()
}
