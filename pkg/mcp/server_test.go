package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
)

func TestNewFlowServer(t *testing.T) {
	s := NewFlowServer(FlowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.Sessions())
	assert.Equal(t, engine.DefaultRetryPolicy(), s.retry)
}

func TestNewFlowServer_KeepsDeps(t *testing.T) {
	sessions := NewSessionRegistry()
	policy := engine.RetryPolicy{MaxRetries: 7}
	s := NewFlowServer(FlowServerDeps{Sessions: sessions, Retry: policy})
	assert.Same(t, sessions, s.Sessions())
	assert.Equal(t, policy, s.retry)
}

func TestToolRegistration(t *testing.T) {
	s := NewFlowServer(FlowServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 13)

	expectedTools := []string{
		"flow.define",
		"flow.definitions",
		"flow.start",
		"flow.advance",
		"flow.cancel",
		"flow.get",
		"flow.list",
		"flow.history",
		"flow.tasks",
		"flow.claim_task",
		"flow.start_task",
		"flow.complete_task",
		"flow.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"define", "flow.define", "Register a new version of a process definition"},
		{"start", "flow.start", "Start a process instance for a business entity"},
		{"advance", "flow.advance", "Evaluate the outgoing transitions of the current node and move the instance"},
		{"cancel", "flow.cancel", "Cancel an instance and all of its open tasks"},
		{"complete", "flow.complete_task", "Complete a task and advance its instance with the given outcome"},
	}

	s := NewFlowServer(FlowServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestRequiredParams(t *testing.T) {
	s := NewFlowServer(FlowServerDeps{})

	tool := s.mcpServer.GetTool("flow.complete_task")
	require.NotNil(t, tool)
	assert.ElementsMatch(t, []string{"task_id", "actor_id"}, tool.Tool.InputSchema.Required)

	tool = s.mcpServer.GetTool("flow.diagram")
	require.NotNil(t, tool)
	assert.Equal(t, []string{"format"}, tool.Tool.InputSchema.Required)
}
