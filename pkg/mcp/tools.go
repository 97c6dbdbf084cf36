package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/diagram"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// handleDefine registers a new definition version.
func (s *FlowServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	s.captureSession(ctx, actorID)

	// Round-trip through JSON to get a typed definition.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def schema.ProcessDefinition
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}

	res, err := s.engine.DefineProcess(ctx, &def, actorID)
	if err != nil {
		return errorResult("define", err), nil
	}
	return marshalResult(map[string]any{
		"definition_id": res.Definition.ID,
		"name":          res.Definition.Name,
		"version":       res.Definition.Version,
		"warnings":      res.Warnings,
	})
}

// handleDefinitions lists stored definitions.
func (s *FlowServer) handleDefinitions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)
	df := store.DefinitionFilter{
		Name:       extractString(filter, "name"),
		EntityKind: extractString(filter, "entity_kind"),
		LatestOnly: cast.ToBool(filter["latest_only"]),
		Limit:      extractInt(filter, "limit", 50),
	}
	defs, err := s.engine.ListDefinitions(ctx, df)
	if err != nil {
		return errorResult("list definitions", err), nil
	}
	return marshalResult(map[string]any{"definitions": defs})
}

// handleStart starts an instance from a definition ID or the latest version of a name.
func (s *FlowServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := req.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError("entity_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	s.captureSession(ctx, actorID)

	def, defErr := s.resolveDefinition(ctx, req.GetString("definition_id", ""), req.GetString("definition_name", ""))
	if defErr != nil {
		return errorResult("definition lookup", defErr), nil
	}

	inst, err := s.engine.Start(ctx, engine.StartRequest{
		DefinitionID: def.ID,
		EntityKind:   req.GetString("entity_kind", ""),
		EntityID:     entityID,
		Variables:    mcp.ParseStringMap(req, "variables", nil),
		ActorID:      actorID,
	})
	if err != nil {
		return errorResult("start", err), nil
	}
	return marshalResult(inst)
}

// handleAdvance moves an instance, re-running the whole operation after a
// version conflict.
func (s *FlowServer) handleAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	s.captureSession(ctx, actorID)

	areq := engine.AdvanceRequest{
		InstanceID: instanceID,
		ActorID:    actorID,
		Outcome:    req.GetString("outcome", ""),
		Variables:  mcp.ParseStringMap(req, "variables", nil),
	}
	inst, err := engine.RetryOnConflict(ctx, s.retry, func(ctx context.Context) (*store.Instance, error) {
		return s.engine.Advance(ctx, areq)
	})
	if err != nil {
		return errorResult("advance", err), nil
	}
	return marshalResult(inst)
}

// handleCancel cancels an instance. Cancelling a finished instance is a no-op.
func (s *FlowServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	s.captureSession(ctx, actorID)

	creq := engine.CancelRequest{InstanceID: instanceID, ActorID: actorID, Reason: req.GetString("reason", "")}
	inst, err := engine.RetryOnConflict(ctx, s.retry, func(ctx context.Context) (*store.Instance, error) {
		return s.engine.Cancel(ctx, creq)
	})
	if err != nil {
		return errorResult("cancel", err), nil
	}
	return marshalResult(inst)
}

// handleGet returns one instance.
func (s *FlowServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	inst, err := s.engine.Get(ctx, instanceID)
	if err != nil {
		return errorResult("get", err), nil
	}
	return marshalResult(inst)
}

// handleList lists instances matching a filter.
func (s *FlowServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)
	f := store.InstanceFilter{
		DefinitionID: extractString(filter, "definition_id"),
		EntityKind:   extractString(filter, "entity_kind"),
		EntityID:     extractString(filter, "entity_id"),
		CurrentNode:  extractString(filter, "current_node"),
		Limit:        extractInt(filter, "limit", 50),
		Offset:       extractInt(filter, "offset", 0),
	}
	if status := extractString(filter, "status"); status != "" {
		st := schema.InstanceStatus(status)
		f.Status = &st
	}

	instances, err := s.engine.List(ctx, f)
	if err != nil {
		return errorResult("list", err), nil
	}
	return marshalResult(map[string]any{"instances": instances})
}

// handleHistory returns the audit trail of an instance.
func (s *FlowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	entries, err := s.engine.History(ctx, instanceID)
	if err != nil {
		return errorResult("history", err), nil
	}
	return marshalResult(map[string]any{"history": entries})
}

// handleTasks lists tasks. Status accepts a single value or a list.
func (s *FlowServer) handleTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if actorID := req.GetString("actor_id", ""); actorID != "" {
		s.captureSession(ctx, actorID)
	}

	filter := mcp.ParseStringMap(req, "filter", nil)
	f := store.TaskFilter{
		InstanceID:    extractString(filter, "instance_id"),
		NodeID:        extractString(filter, "node_id"),
		AssigneeUser:  extractString(filter, "assignee_user"),
		AssigneeGroup: extractString(filter, "assignee_group"),
		Limit:         extractInt(filter, "limit", 100),
	}
	for _, st := range extractStrings(filter, "status") {
		f.Statuses = append(f.Statuses, schema.TaskStatus(st))
	}
	if cast.ToBool(filter["overdue"]) {
		now := time.Now().UTC()
		f.DueBefore = &now
		if len(f.Statuses) == 0 {
			f.Statuses = schema.OpenTaskStatuses
		}
	}

	tasks, err := s.engine.ListTasks(ctx, f)
	if err != nil {
		return errorResult("list tasks", err), nil
	}
	return marshalResult(map[string]any{"tasks": tasks})
}

func (s *FlowServer) handleClaimTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.moveTask(ctx, req, "claim task", s.engine.ClaimTask)
}

func (s *FlowServer) handleStartTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.moveTask(ctx, req, "start task", s.engine.StartTask)
}

func (s *FlowServer) moveTask(ctx context.Context, req mcp.CallToolRequest, op string,
	fn func(context.Context, engine.TaskRequest) (*engine.TaskResult, error),
) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	s.captureSession(ctx, actorID)

	treq := engine.TaskRequest{TaskID: taskID, ActorID: actorID}
	res, err := engine.RetryOnConflict(ctx, s.retry, func(ctx context.Context) (*engine.TaskResult, error) {
		return fn(ctx, treq)
	})
	if err != nil {
		return errorResult(op, err), nil
	}
	return marshalResult(res)
}

// handleCompleteTask completes a task and advances its instance.
func (s *FlowServer) handleCompleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}
	s.captureSession(ctx, actorID)

	creq := engine.CompleteTaskRequest{
		TaskID:    taskID,
		ActorID:   actorID,
		Outcome:   req.GetString("outcome", ""),
		Variables: mcp.ParseStringMap(req, "variables", nil),
	}
	res, err := engine.RetryOnConflict(ctx, s.retry, func(ctx context.Context) (*engine.TaskResult, error) {
		return s.engine.CompleteTask(ctx, creq)
	})
	if err != nil {
		return errorResult("complete task", err), nil
	}
	return marshalResult(res)
}

// handleDiagram draws a definition, optionally with an instance overlay.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	switch format {
	case "ascii", "mermaid", "png", "svg":
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, png, or svg"), nil
	}

	definitionID := req.GetString("definition_id", "")
	definitionName := req.GetString("definition_name", "")
	instanceID := req.GetString("instance_id", "")
	if definitionID == "" && definitionName == "" && instanceID == "" {
		return mcp.NewToolResultError("one of definition_id, definition_name or instance_id is required"), nil
	}

	var overlay *diagram.Overlay
	if instanceID != "" {
		inst, instErr := s.engine.Get(ctx, instanceID)
		if instErr != nil {
			return errorResult("get", instErr), nil
		}
		definitionID, definitionName = inst.DefinitionID, ""

		if req.GetString("include_status", "true") != "false" {
			overlay = &diagram.Overlay{Instance: inst}
			if h, hErr := s.engine.History(ctx, instanceID); hErr == nil {
				overlay.History = h
			}
			if t, tErr := s.engine.ListTasks(ctx, store.TaskFilter{InstanceID: instanceID}); tErr == nil {
				overlay.Tasks = t
			}
		}
	}

	def, defErr := s.resolveDefinition(ctx, definitionID, definitionName)
	if defErr != nil {
		return errorResult("definition lookup", defErr), nil
	}

	model, buildErr := diagram.Build(def, overlay)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		img, imgErr := diagram.RenderImage(ctx, model, diagram.ImageFormat(format))
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(img)), nil
	}
}

// --- Helpers ---

// resolveDefinition loads a definition by ID, or the latest version of name.
func (s *FlowServer) resolveDefinition(ctx context.Context, id, name string) (*schema.ProcessDefinition, error) {
	switch {
	case id != "":
		return s.engine.GetDefinition(ctx, id)
	case name != "":
		return s.engine.LatestDefinition(ctx, name)
	default:
		return nil, schema.NewError(schema.ErrCodeValidation, "definition_id or definition_name is required")
	}
}

// captureSession maps the actor ID to its current MCP session for notifications.
func (s *FlowServer) captureSession(ctx context.Context, actorID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(actorID, session.SessionID())
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func extractString(filter map[string]any, key string) string {
	return cast.ToString(filter[key])
}

// extractStrings accepts either a string or a list of strings.
func extractStrings(filter map[string]any, key string) []string {
	v, ok := filter[key]
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return cast.ToStringSlice(v)
}

// errorResult renders an engine error, code included, as a tool error.
func errorResult(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
