package harness

import (
	"testing"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b1 := peopleBatch(t, []int64{1, 2}, []string{"a", "b"})
	b2 := peopleBatch(t, []int64{3}, []string{"c"})
	defer b1.Release()
	defer b2.Release()

	merged, err := MergeBatches(peopleSchema, []*operators.RecordBatch{b1, b2}, mem)
	require.NoError(t, err)
	defer merged.Release()
	assert.Equal(t, 3, merged.NumRows())
	assert.Equal(t, []int64{1, 2, 3}, ids(merged))
	names := merged.Columns[1].(*array.String)
	assert.Equal(t, "c", names.Value(2))
	require.NoError(t, merged.Validate())
}

func TestMergeBatchesEmpty(t *testing.T) {
	merged, err := MergeBatches(peopleSchema, nil, nil)
	require.NoError(t, err)
	defer merged.Release()
	assert.Equal(t, 0, merged.NumRows())
	assert.Len(t, merged.Columns, 2)
}

func TestMergeBatchesSchemaMismatch(t *testing.T) {
	b1 := peopleBatch(t, []int64{1}, []string{"a"})
	defer b1.Release()
	other := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true}}, nil)
	gen := operators.NewArrayGen(nil)
	b2, err := operators.NewRecordBatch(other, []arrow.Array{gen.Int64(2)})
	require.NoError(t, err)
	defer b2.Release()

	_, err = MergeBatches(peopleSchema, []*operators.RecordBatch{b1, b2}, nil)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Batch)
}
