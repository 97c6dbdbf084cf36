package diagram

import (
	"fmt"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/graph"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// Overlay is the runtime state drawn on top of a definition.
type Overlay struct {
	Instance *store.Instance
	History  []*store.HistoryEntry
	Tasks    []*store.Task
}

// Build constructs a DiagramModel from a process definition and an optional
// instance overlay. Levels are breadth-first distances from the start node;
// unreachable nodes are placed on a final level.
func Build(def *schema.ProcessDefinition, overlay *Overlay) (*DiagramModel, error) {
	if def == nil {
		return nil, fmt.Errorf("diagram: nil definition")
	}

	nodes := make([]*Node, 0, len(def.Nodes))
	index := make(map[string]*Node, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		node := &Node{
			ID:    n.ID,
			Label: n.DisplayName(),
			Kind:  NodeKind(n.Kind),
			Start: n.IsStart,
			End:   n.IsEnd,
		}
		nodes = append(nodes, node)
		index[n.ID] = node
	}

	edges := make([]Edge, 0, len(def.Transitions))
	for _, n := range def.Nodes {
		for _, t := range graph.OutgoingTransitions(def, n.ID) {
			edges = append(edges, Edge{From: t.From, To: t.To, Label: edgeLabel(t), Default: t.IsDefault})
		}
	}

	if overlay != nil {
		applyOverlay(index, edges, overlay)
	}

	return &DiagramModel{
		Title:  titleFromDef(def),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(def),
	}, nil
}

// edgeLabel prefers the author's label, then the condition.
func edgeLabel(t schema.Transition) string {
	switch {
	case t.Label != "":
		return t.Label
	case t.Condition != nil && *t.Condition != "":
		return *t.Condition
	case t.IsDefault:
		return "default"
	default:
		return ""
	}
}

func applyOverlay(index map[string]*Node, edges []Edge, o *Overlay) {
	mark := func(id, state string) *StatusOverlay {
		node, ok := index[id]
		if !ok {
			return nil
		}
		if node.Status == nil {
			node.Status = &StatusOverlay{}
		}
		node.Status.State = state
		return node.Status
	}

	taken := make(map[[2]string]bool)
	for _, h := range o.History {
		switch h.Action {
		case schema.ActionStarted:
			if s := mark(h.ToNode, StateVisited); s != nil {
				s.Visits++
			}
		case schema.ActionTransition:
			if h.ToNode == "" {
				continue
			}
			taken[[2]string{h.FromNode, h.ToNode}] = true
			if s := mark(h.ToNode, StateVisited); s != nil {
				s.Visits++
			}
		}
	}
	for i := range edges {
		edges[i].Taken = taken[[2]string{edges[i].From, edges[i].To}]
	}

	for _, t := range o.Tasks {
		if node, ok := index[t.NodeID]; ok && t.Status.IsOpen() {
			if node.Status == nil {
				node.Status = &StatusOverlay{State: StateVisited}
			}
			node.Status.OpenTasks++
		}
	}

	if inst := o.Instance; inst != nil && inst.CurrentNode != "" {
		state := StateCurrent
		switch inst.Status {
		case schema.InstanceStatusCompleted:
			state = StateCompleted
		case schema.InstanceStatusCancelled:
			state = StateCancelled
		}
		mark(inst.CurrentNode, state)
	}
}

func buildLevels(def *schema.ProcessDefinition) [][]string {
	depth := make(map[string]int, len(def.Nodes))
	var levels [][]string

	if start, err := graph.StartNode(def); err == nil {
		depth[start.ID] = 0
		levels = append(levels, []string{start.ID})
		queue := []string{start.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, t := range graph.OutgoingTransitions(def, cur) {
				if _, seen := depth[t.To]; seen {
					continue
				}
				if _, err := graph.Node(def, t.To); err != nil {
					continue
				}
				d := depth[cur] + 1
				depth[t.To] = d
				if d == len(levels) {
					levels = append(levels, nil)
				}
				levels[d] = append(levels[d], t.To)
				queue = append(queue, t.To)
			}
		}
	}

	var rest []string
	for _, n := range def.Nodes {
		if _, ok := depth[n.ID]; !ok {
			rest = append(rest, n.ID)
		}
	}
	if len(rest) > 0 {
		levels = append(levels, rest)
	}
	return levels
}

// titleFromDef generates a diagram title from the definition name and version.
func titleFromDef(def *schema.ProcessDefinition) string {
	if def.Name == "" {
		return "Process"
	}
	if def.Version > 0 {
		return fmt.Sprintf("%s v%d", def.Name, def.Version)
	}
	return def.Name
}
