package exec

import (
	"context"
	"fmt"

	"split-harness-go/operators"
	"split-harness-go/operators/aggr"
	"split-harness-go/operators/filter"
	"split-harness-go/operators/project"
	"split-harness-go/operators/source"
	"split-harness-go/plan"
)

// compile turns the plan under n into an operator tree. Split consuming nodes
// become scans over their queue in t.queues.
func (t *Task) compile(ctx context.Context, n plan.Node) (operators.Operator, error) {
	children := make([]operators.Operator, 0, len(n.Sources()))
	closeChildren := func() {
		for _, c := range children {
			_ = c.Close()
		}
	}
	for _, src := range n.Sources() {
		child, err := t.compile(ctx, src)
		if err != nil {
			closeChildren()
			return nil, err
		}
		children = append(children, child)
	}
	op, err := t.compileNode(ctx, n, children)
	if err != nil {
		closeChildren()
		return nil, fmt.Errorf("failed to compile node %s: %w", n.ID(), err)
	}
	return op, nil
}

func (t *Task) compileNode(ctx context.Context, n plan.Node, children []operators.Operator) (operators.Operator, error) {
	mem := t.backend.Allocator()
	switch node := n.(type) {
	case plan.SplitConsumer:
		return &scanExec{
			ctx:   ctx,
			node:  node,
			queue: t.queues[node.ID()],
			sc: SplitContext{
				Schema:    node.OutputType(),
				Backend:   t.backend,
				BatchSize: t.opts.batchSize,
			},
			splits: &t.splitsRead,
		}, nil
	case *plan.ValuesNode:
		return source.NewValuesSource(node.OutputType(), node.Batches)
	case *plan.FilterNode:
		return filter.NewFilterExec(mem, children[0], node.Predicate)
	case *plan.ProjectNode:
		return project.NewColumnProjectExec(mem, children[0], node.Columns...)
	case *plan.LimitNode:
		return filter.NewLimitExec(children[0], node.Count)
	case *plan.OrderByNode:
		return aggr.NewOrderByExec(mem, children[0], node.Keys)
	case *plan.AggregationNode:
		return aggr.NewGlobalAggrExec(mem, children[0], node.Aggregates)
	case *plan.UnionNode:
		return operators.NewUnionExec(children...)
	}
	return nil, plan.ErrInvalidPlan(fmt.Sprintf("no operator for %T", n))
}
