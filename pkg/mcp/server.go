package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// Engine is the set of engine operations exposed as tools.
type Engine interface {
	DefineProcess(ctx context.Context, def *schema.ProcessDefinition, actorID string) (*engine.DefineResult, error)
	GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error)
	LatestDefinition(ctx context.Context, name string) (*schema.ProcessDefinition, error)
	ListDefinitions(ctx context.Context, filter store.DefinitionFilter) ([]*schema.ProcessDefinition, error)

	Start(ctx context.Context, req engine.StartRequest) (*store.Instance, error)
	Advance(ctx context.Context, req engine.AdvanceRequest) (*store.Instance, error)
	Cancel(ctx context.Context, req engine.CancelRequest) (*store.Instance, error)
	Get(ctx context.Context, id string) (*store.Instance, error)
	List(ctx context.Context, filter store.InstanceFilter) ([]*store.Instance, error)
	History(ctx context.Context, id string) ([]*store.HistoryEntry, error)

	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error)
	ClaimTask(ctx context.Context, req engine.TaskRequest) (*engine.TaskResult, error)
	StartTask(ctx context.Context, req engine.TaskRequest) (*engine.TaskResult, error)
	CompleteTask(ctx context.Context, req engine.CompleteTaskRequest) (*engine.TaskResult, error)
}

var _ Engine = (*engine.Engine)(nil)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Engine Engine
	// Sessions maps actor IDs to MCP sessions for push notifications.
	// Nil creates a private registry.
	Sessions *SessionRegistry
	// Retry bounds re-runs of mutating tools after a version conflict.
	// The zero value means engine.DefaultRetryPolicy.
	Retry  engine.RetryPolicy
	Logger *slog.Logger
}

// FlowServer wraps an MCP server with process-engine tool handlers.
type FlowServer struct {
	engine    Engine
	sessions  *SessionRegistry
	retry     engine.RetryPolicy
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowServer creates a new FlowServer with every tool registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	s := &FlowServer{
		engine:   deps.Engine,
		sessions: deps.Sessions,
		retry:    deps.Retry,
		logger:   logging.OrDefault(deps.Logger),
	}
	if s.sessions == nil {
		s.sessions = NewSessionRegistry()
	}
	if s.retry == (engine.RetryPolicy{}) {
		s.retry = engine.DefaultRetryPolicy()
	}

	mcpSrv := server.NewMCPServer(
		"flowengine",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("flowengine runs approval-style business processes. Register a process graph with flow.define, "+
			"start an instance for an entity with flow.start, work human tasks with flow.tasks, flow.claim_task and flow.complete_task, "+
			"move instances with flow.advance and inspect them with flow.get, flow.list, flow.history and flow.diagram."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the actor-to-session registry used for push notifications.
func (s *FlowServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: definitionsTool(), Handler: s.handleDefinitions},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: advanceTool(), Handler: s.handleAdvance},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: tasksTool(), Handler: s.handleTasks},
		{Tool: claimTaskTool(), Handler: s.handleClaimTask},
		{Tool: startTaskTool(), Handler: s.handleStartTask},
		{Tool: completeTaskTool(), Handler: s.handleCompleteTask},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("flow.define",
		mcp.WithDescription("Register a new version of a process definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Process definition: name, entity_kind, nodes, transitions, optional sla_hours and variables_schema")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the user registering the definition")),
	)
}

func definitionsTool() mcp.Tool {
	return mcp.NewTool("flow.definitions",
		mcp.WithDescription("List registered process definitions"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name, entity_kind, latest_only, limit)")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("flow.start",
		mcp.WithDescription("Start a process instance for a business entity"),
		mcp.WithString("definition_id", mcp.Description("Definition ID to instantiate")),
		mcp.WithString("definition_name", mcp.Description("Definition name; the latest version is used when definition_id is absent")),
		mcp.WithString("entity_kind", mcp.Description("Kind of the entity; must match the definition when given")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("ID of the entity the instance tracks")),
		mcp.WithObject("variables", mcp.Description("Initial instance variables")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the user starting the instance")),
	)
}

func advanceTool() mcp.Tool {
	return mcp.NewTool("flow.advance",
		mcp.WithDescription("Evaluate the outgoing transitions of the current node and move the instance"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance to advance")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the acting user")),
		mcp.WithString("outcome", mcp.Description("Decision made at the current node, visible to conditions as 'outcome'")),
		mcp.WithObject("variables", mcp.Description("Variables merged into the instance before evaluation")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("flow.cancel",
		mcp.WithDescription("Cancel an instance and all of its open tasks"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance to cancel")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the acting user")),
		mcp.WithString("reason", mcp.Description("Why the instance is cancelled")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("flow.get",
		mcp.WithDescription("Get a process instance"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("flow.list",
		mcp.WithDescription("List process instances"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (definition_id, status, entity_kind, entity_id, current_node, limit, offset)")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("flow.history",
		mcp.WithDescription("Get the ordered audit history of an instance"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance")),
	)
}

func tasksTool() mcp.Tool {
	return mcp.NewTool("flow.tasks",
		mcp.WithDescription("List human tasks"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (instance_id, node_id, status, assignee_user, assignee_group, overdue, limit)")),
		mcp.WithString("actor_id", mcp.Description("ID of the calling user; registers the session for task notifications")),
	)
}

func claimTaskTool() mcp.Tool {
	return mcp.NewTool("flow.claim_task",
		mcp.WithDescription("Claim a task for the acting user"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the claiming user")),
	)
}

func startTaskTool() mcp.Tool {
	return mcp.NewTool("flow.start_task",
		mcp.WithDescription("Mark a task as in progress"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the acting user")),
	)
}

func completeTaskTool() mcp.Tool {
	return mcp.NewTool("flow.complete_task",
		mcp.WithDescription("Complete a task and advance its instance with the given outcome"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the acting user")),
		mcp.WithString("outcome", mcp.Description("Decision recorded for the task, e.g. approve or reject")),
		mcp.WithObject("variables", mcp.Description("Variables merged into the instance")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flow.diagram",
		mcp.WithDescription("Generate a diagram of a process definition, optionally overlaid with an instance's progress. Returns ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG/SVG image"),
		mcp.WithString("definition_id", mcp.Description("Definition ID to draw")),
		mcp.WithString("definition_name", mcp.Description("Definition name; the latest version is drawn")),
		mcp.WithString("instance_id", mcp.Description("Instance to draw; includes its progress by default")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "png", "svg"),
			mcp.Description("Output format"),
		),
		mcp.WithString("include_status", mcp.Description("Include the instance overlay (default: true when instance_id is given)")),
	)
}
