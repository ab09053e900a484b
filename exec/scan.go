package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"split-harness-go/operators"
	"split-harness-go/plan"
	"split-harness-go/util/log"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	_ = (operators.Operator)(&scanExec{})
)

var (
	ErrSplitSchemaMismatch = func(node plan.NodeID, info string) error {
		return fmt.Errorf("split data does not match output type of node %s: %s", node, info)
	}
)

// scanExec reads the splits queued for one node, one after another, and
// conforms every batch to the node's output type.
type scanExec struct {
	ctx    context.Context
	node   plan.Node
	queue  *splitQueue
	sc     SplitContext
	cur    operators.Operator
	splits *atomic.Int64
}

func (s *scanExec) Next(n uint16) (*operators.RecordBatch, error) {
	for {
		if s.cur == nil {
			split, ok, err := s.queue.next(s.ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, io.EOF
			}
			log.Debugw(s.ctx, "opening split", "node", s.node.ID(), "split", split.String())
			op, err := split.Connector.Open(s.ctx, s.sc)
			if err != nil {
				return nil, fmt.Errorf("failed to open split %s for node %s: %w", split, s.node.ID(), err)
			}
			s.cur = op
			s.splits.Add(1)
		}
		rb, err := s.cur.Next(n)
		if errors.Is(err, io.EOF) {
			closeErr := s.cur.Close()
			s.cur = nil
			if closeErr != nil {
				return nil, closeErr
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.conform(rb)
	}
}

// conform selects the node's columns by name. Field metadata and nullability
// of the split data are ignored, types must match exactly.
func (s *scanExec) conform(rb *operators.RecordBatch) (*operators.RecordBatch, error) {
	want := s.node.OutputType()
	if rb.Schema.Equal(want) {
		return rb, nil
	}
	defer rb.Release()
	cols := make([]arrow.Array, len(want.Fields()))
	for i, f := range want.Fields() {
		idx := rb.Schema.FieldIndices(f.Name)
		if len(idx) == 0 {
			return nil, ErrSplitSchemaMismatch(s.node.ID(), "missing column "+f.Name)
		}
		col := rb.Columns[idx[0]]
		if !arrow.TypeEqual(col.DataType(), f.Type) {
			return nil, ErrSplitSchemaMismatch(s.node.ID(),
				fmt.Sprintf("column %s has type %s, expected %s", f.Name, col.DataType(), f.Type))
		}
		col.Retain()
		cols[i] = col
	}
	return &operators.RecordBatch{Schema: want, Columns: cols, RowCount: rb.RowCount}, nil
}

func (s *scanExec) Schema() *arrow.Schema {
	return s.node.OutputType()
}

func (s *scanExec) Close() error {
	s.queue.drain()
	if s.cur != nil {
		err := s.cur.Close()
		s.cur = nil
		return err
	}
	return nil
}
