package exchange

import (
	"bytes"
	"fmt"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// EncodeBatch writes rb as a self-contained arrow IPC stream: the schema
// message followed by one record batch.
func EncodeBatch(rb *operators.RecordBatch, mem memory.Allocator) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rb.Schema), ipc.WithAllocator(mem))
	rec := rb.ToRecord()
	defer rec.Release()
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBatch reads one batch written by EncodeBatch. The columns are allocated
// from mem and owned by the caller.
func DecodeBatch(data []byte, mem memory.Allocator) (*operators.RecordBatch, error) {
	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	defer r.Release()
	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("failed to decode batch: %w", err)
		}
		return nil, fmt.Errorf("failed to decode batch: stream holds no record")
	}
	return operators.FromRecord(r.Record()), nil
}
