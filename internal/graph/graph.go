// Package graph provides read-only queries over a process definition's nodes
// and transitions.
package graph

import (
	"sort"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// StartNode returns the single node flagged as start.
func StartNode(def *schema.ProcessDefinition) (*schema.Node, error) {
	var start *schema.Node
	count := 0
	for i := range def.Nodes {
		if def.Nodes[i].IsStart {
			count++
			if start == nil {
				start = &def.Nodes[i]
			}
		}
	}
	switch count {
	case 0:
		return nil, schema.NewErrorf(schema.ErrCodeGraph, "definition %q has no start node", def.ID)
	case 1:
		return start, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeGraph, "definition %q has %d start nodes", def.ID, count).
			WithDetails(map[string]any{"start_nodes": count})
	}
}

// Node looks up a node by id.
func Node(def *schema.ProcessDefinition, id string) (*schema.Node, error) {
	for i := range def.Nodes {
		if def.Nodes[i].ID == id {
			return &def.Nodes[i], nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeGraph, "node %q not found in definition %q", id, def.ID).
		WithDetails(map[string]any{"node_id": id})
}

// OutgoingTransitions returns the transitions leaving nodeID ordered by
// ascending priority. Ties keep declaration order and default transitions
// sort after every non-default one. The returned slice is a copy.
func OutgoingTransitions(def *schema.ProcessDefinition, nodeID string) []schema.Transition {
	out := make([]schema.Transition, 0)
	for _, t := range def.Transitions {
		if t.From == nodeID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return !out[i].IsDefault
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Reachable returns the set of node ids reachable from the start node,
// including the start node itself. It returns nil when there is no unique
// start node.
func Reachable(def *schema.ProcessDefinition) map[string]bool {
	start, err := StartNode(def)
	if err != nil {
		return nil
	}

	adj := make(map[string][]string, len(def.Nodes))
	for _, t := range def.Transitions {
		adj[t.From] = append(adj[t.From], t.To)
	}

	seen := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// CanReachEnd reports, per node id, whether some path leads to an end node.
// Nodes that cannot reach an end would stall every instance that enters them.
func CanReachEnd(def *schema.ProcessDefinition) map[string]bool {
	reverse := make(map[string][]string, len(def.Nodes))
	for _, t := range def.Transitions {
		reverse[t.To] = append(reverse[t.To], t.From)
	}

	ok := make(map[string]bool, len(def.Nodes))
	queue := make([]string, 0)
	for _, n := range def.Nodes {
		if n.IsEnd {
			ok[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[cur] {
			if !ok[prev] {
				ok[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	return ok
}
