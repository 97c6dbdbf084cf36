package validation

import (
	"fmt"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/graph"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// validateGraph reports structural hazards as warnings. Process graphs may
// contain cycles (rework loops), so nothing here rejects a definition.
func validateGraph(def *schema.ProcessDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	reachable := graph.Reachable(def)
	toEnd := graph.CanReachEnd(def)

	outgoing := make(map[string]int, len(def.Nodes))
	for _, t := range def.Transitions {
		outgoing[t.From]++
	}

	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if reachable != nil && !reachable[n.ID] {
			result.AddWarning(path, schema.ErrCodeGraph,
				fmt.Sprintf("node %q is unreachable from the start node", n.ID))
		}
		if n.IsEnd {
			continue
		}
		if outgoing[n.ID] == 0 {
			result.AddWarning(path, schema.ErrCodeGraph,
				fmt.Sprintf("node %q has no outgoing transitions; instances entering it stall", n.ID))
		} else if !toEnd[n.ID] {
			result.AddWarning(path, schema.ErrCodeGraph,
				fmt.Sprintf("no path from node %q reaches an end node", n.ID))
		}
	}

	return result
}
