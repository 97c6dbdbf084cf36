package diagram

// NodeKind classifies a diagram node by its process node kind.
type NodeKind string

const (
	NodeKindHumanTask NodeKind = "human_task"
	NodeKindAutomatic NodeKind = "automatic"
	NodeKindTerminal  NodeKind = "terminal"
)

// Overlay states of a node for one instance.
const (
	StateCurrent   = "current"
	StateVisited   = "visited"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single process node in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Start  bool
	End    bool
	Status *StatusOverlay
}

// StatusOverlay carries the runtime state of a node for one instance.
type StatusOverlay struct {
	State     string
	Visits    int
	OpenTasks int
}

// Edge represents a transition between two nodes.
type Edge struct {
	From    string
	To      string
	Label   string
	Default bool
	// Taken is set when the instance history shows this transition fired.
	Taken bool
}
