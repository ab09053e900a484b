package harness

import (
	"context"
	"sort"

	"split-harness-go/exec"
	"split-harness-go/plan"
	"split-harness-go/util/log"
)

// SplitMap routes ordered splits to the plan nodes that consume them.
type SplitMap map[plan.NodeID][]exec.Split

// SplitSink accepts splits for plan nodes. *exec.Task is one.
type SplitSink interface {
	AddSplit(id plan.NodeID, split exec.Split) error
	NoMoreSplits(id plan.NodeID) error
}

// SplitSupplier feeds a sink the splits of one run. A cursor calls Deliver once,
// before its first pull.
type SplitSupplier interface {
	Deliver(sink SplitSink) error
}

type deliveryState int

const (
	pending deliveryState = iota
	delivered
)

// PendingSplits is a SplitMap that can be delivered once. Every later Deliver
// is a no-op, including after a failed delivery. It is not safe for concurrent
// use.
type PendingSplits struct {
	splits SplitMap
	order  []plan.NodeID
	state  deliveryState
}

// NewPendingSplits captures m. Later changes to m's keys are not seen; the
// split slices are shared.
func NewPendingSplits(m SplitMap) *PendingSplits {
	order := make([]plan.NodeID, 0, len(m))
	splits := make(SplitMap, len(m))
	for id, s := range m {
		order = append(order, id)
		splits[id] = s
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return &PendingSplits{splits: splits, order: order}
}

// Delivered reports whether Deliver already ran.
func (p *PendingSplits) Delivered() bool {
	return p.state == delivered
}

// Deliver adds every split of every node to sink in supplied order, then closes
// each node with NoMoreSplits. Nodes are visited in id order. The first sink
// error stops delivery and is returned unchanged.
func (p *PendingSplits) Deliver(sink SplitSink) error {
	if p.state == delivered {
		return nil
	}
	p.state = delivered
	ctx := context.Background()
	for _, id := range p.order {
		for _, split := range p.splits[id] {
			if err := sink.AddSplit(id, split); err != nil {
				log.Errorw(ctx, "split delivery failed", "node", id, "split", split.String(), "error", err)
				return err
			}
		}
		if err := sink.NoMoreSplits(id); err != nil {
			return err
		}
		log.Debugw(ctx, "delivered splits", "node", id, "count", len(p.splits[id]))
	}
	return nil
}

// SplitsForOnlyLeaf routes splits to the only leaf of root.
func SplitsForOnlyLeaf(root plan.Node, splits []exec.Split) (SplitMap, error) {
	id, err := plan.OnlyLeafNodeID(root)
	if err != nil {
		return nil, err
	}
	return SplitMap{id: splits}, nil
}

// UngroupedSplits wraps connector splits as splits of no group.
func UngroupedSplits(connectorSplits ...exec.ConnectorSplit) []exec.Split {
	out := make([]exec.Split, len(connectorSplits))
	for i, c := range connectorSplits {
		out[i] = exec.NewSplit(c)
	}
	return out
}
