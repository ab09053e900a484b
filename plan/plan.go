package plan

import (
	"fmt"
	"strings"

	"split-harness-go/Expr"
	"split-harness-go/operators"
	"split-harness-go/operators/aggr"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

/*
The plan package holds the immutable logical plan trees the harness drives. A
plan is a tree of Nodes; leaves either consume splits (TableScanNode) or carry
their own data (ValuesNode). Every node has a unique NodeID within its tree,
which is how splits are routed to the node that should read them.
*/

////////////////////////////////////////////////////////////////////////////////

// NodeID identifies a node within one plan tree.
type NodeID string

// Node is one stage of a plan. Implementations are immutable once built.
type Node interface {
	ID() NodeID
	Sources() []Node
	OutputType() *arrow.Schema
	String() string
}

// SplitConsumer is implemented by nodes that read their input from splits.
type SplitConsumer interface {
	Node
	ConsumesSplits()
}

type baseNode struct {
	id      NodeID
	sources []Node
	output  *arrow.Schema
}

func (b *baseNode) ID() NodeID                { return b.id }
func (b *baseNode) Sources() []Node           { return b.sources }
func (b *baseNode) OutputType() *arrow.Schema { return b.output }

// TableScanNode reads every split added for its id, in order.
type TableScanNode struct {
	baseNode
	Table string
}

func (n *TableScanNode) ConsumesSplits() {}
func (n *TableScanNode) String() string {
	return fmt.Sprintf("[%s scan %s]", n.id, n.Table)
}

// ValuesNode produces fixed batches without consuming splits.
type ValuesNode struct {
	baseNode
	Batches []*operators.RecordBatch
}

func (n *ValuesNode) String() string {
	return fmt.Sprintf("[%s values %d batches]", n.id, len(n.Batches))
}

// FilterNode keeps the rows for which Predicate is true.
type FilterNode struct {
	baseNode
	Predicate Expr.Expression
}

func (n *FilterNode) String() string {
	return fmt.Sprintf("[%s filter %s %s]", n.id, n.Predicate, n.sources[0])
}

// ProjectNode keeps the named columns, in the order given.
type ProjectNode struct {
	baseNode
	Columns []string
}

func (n *ProjectNode) String() string {
	return fmt.Sprintf("[%s project %s %s]", n.id, strings.Join(n.Columns, ","), n.sources[0])
}

type LimitNode struct {
	baseNode
	Count uint64
}

func (n *LimitNode) String() string {
	return fmt.Sprintf("[%s limit %d %s]", n.id, n.Count, n.sources[0])
}

// UnionNode concatenates the output of its sources in source order.
type UnionNode struct {
	baseNode
}

func (n *UnionNode) String() string {
	parts := make([]string, len(n.sources))
	for i, s := range n.sources {
		parts[i] = s.String()
	}
	return fmt.Sprintf("[%s union %s]", n.id, strings.Join(parts, " "))
}

// OrderByNode sorts all of its input by Keys.
type OrderByNode struct {
	baseNode
	Keys []aggr.SortKey
}

func (n *OrderByNode) String() string {
	keys := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		keys[i] = k.String()
	}
	return fmt.Sprintf("[%s orderby %s %s]", n.id, strings.Join(keys, ","), n.sources[0])
}

// AggregationNode computes global aggregates over its input. The output is a
// single row.
type AggregationNode struct {
	baseNode
	Aggregates []aggr.Aggregate
}

func (n *AggregationNode) String() string {
	names := make([]string, len(n.Aggregates))
	for i, a := range n.Aggregates {
		names[i] = a.Name()
	}
	return fmt.Sprintf("[%s aggregate %s %s]", n.id, strings.Join(names, ","), n.sources[0])
}

// ExchangeNode reads the output of a remote task. Its splits name the remote
// tasks to pull from.
type ExchangeNode struct {
	baseNode
}

func (n *ExchangeNode) ConsumesSplits() {}
func (n *ExchangeNode) String() string {
	return fmt.Sprintf("[%s exchange]", n.id)
}

// ValuesFromColumns is a convenience for building the batches of a ValuesNode.
func ValuesFromColumns(names []string, columns ...any) (*operators.RecordBatch, error) {
	if len(columns) != len(names) {
		return nil, ErrInvalidPlan(fmt.Sprintf("%d column names but %d columns", len(names), len(columns)))
	}
	gen := operators.NewArrayGen(memory.DefaultAllocator)
	fields := make([]arrow.Field, len(names))
	arrs := make([]arrow.Array, len(names))
	for i, name := range names {
		f, arr, err := gen.FromSlice(name, columns[i])
		if err != nil {
			operators.ReleaseArrays(arrs[:i])
			return nil, err
		}
		fields[i], arrs[i] = f, arr
	}
	return operators.NewRecordBatch(arrow.NewSchema(fields, nil), arrs)
}
