package research

import (
	"sort"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// EventNode is a workflow event placed in the display forest. Depth is the
// distance from its root, used for indentation.
type EventNode struct {
	api.WorkflowEvent
	Children []*EventNode
	Depth    int
}

// BuildEventTree shapes a flat event set into a forest keyed by
// ParentEventID. An event whose parent is absent from the set, or which names
// itself as parent, is a root; it is never deferred or dropped. The build is
// a full recompute each time; event counts per session stay small.
func BuildEventTree(events []api.WorkflowEvent) []*EventNode {
	nodes := make(map[int64]*EventNode, len(events))
	for _, evt := range events {
		nodes[evt.ID] = &EventNode{WorkflowEvent: evt}
	}

	var roots []*EventNode
	for _, evt := range events {
		node := nodes[evt.ID]
		parent, ok := nodes[evt.ParentEventID]
		if evt.ParentEventID != 0 && ok && evt.ParentEventID != evt.ID {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	sortNodes(roots)
	for _, n := range nodes {
		sortNodes(n.Children)
	}
	return roots
}

// sortNodes orders siblings by server sequence, then creation time, then id,
// so the flattened order is independent of arrival order.
func sortNodes(nodes []*EventNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.SequenceNo != b.SequenceNo {
			return a.SequenceNo < b.SequenceNo
		}
		if !a.CreateTime.Equal(b.CreateTime.Time) {
			return a.CreateTime.Before(b.CreateTime.Time)
		}
		return a.ID < b.ID
	})
}

// FlattenTree linearizes the forest in pre-order, resolving Depth along the
// way. A visited guard makes a (malformed) parent cycle terminate instead of
// recursing forever; unreachable nodes in such a cycle stay out of the
// output, which is acceptable because the server cannot legally produce one.
func FlattenTree(roots []*EventNode) []*EventNode {
	var out []*EventNode
	visited := make(map[int64]bool)
	var walk func(node *EventNode, depth int)
	walk = func(node *EventNode, depth int) {
		if visited[node.ID] {
			return
		}
		visited[node.ID] = true
		node.Depth = depth
		out = append(out, node)
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	return out
}
