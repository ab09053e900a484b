package plan

// OnlyLeafNodeID returns the id of the single leaf reached by always descending
// into the only source of each node. It fails with a *MultipleLeavesError as
// soon as a node with more than one source is met.
func OnlyLeafNodeID(root Node) (NodeID, error) {
	if root == nil {
		return "", ErrInvalidPlan("nil root")
	}
	node := root
	for {
		sources := node.Sources()
		switch len(sources) {
		case 0:
			return node.ID(), nil
		case 1:
			node = sources[0]
		default:
			ids := make([]NodeID, len(sources))
			for i, s := range sources {
				ids[i] = s.ID()
			}
			return "", &MultipleLeavesError{At: node.ID(), Sources: ids}
		}
	}
}

// Walk visits root and its descendants in pre-order, sources left to right.
// Returning false from fn stops the walk.
func Walk(root Node, fn func(Node) bool) {
	if root == nil {
		return
	}
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			return
		}
		sources := n.Sources()
		for i := len(sources) - 1; i >= 0; i-- {
			stack = append(stack, sources[i])
		}
	}
}

// Find returns the node with the given id, or nil.
func Find(root Node, id NodeID) Node {
	var found Node
	Walk(root, func(n Node) bool {
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Leaves returns every node without sources, left to right.
func Leaves(root Node) []Node {
	var leaves []Node
	Walk(root, func(n Node) bool {
		if len(n.Sources()) == 0 {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// SplitConsumers returns the nodes that read their input from splits.
func SplitConsumers(root Node) []SplitConsumer {
	var out []SplitConsumer
	Walk(root, func(n Node) bool {
		if c, ok := n.(SplitConsumer); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}
