package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// MCPNotifier is a notify.Sink that pushes notifications to the MCP session
// of the user they concern: the task assignee, or the acting user for
// instance-level events.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

var _ notify.Sink = (*MCPNotifier)(nil)

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Publish sends n to the recipient's session.
// Best-effort: returns nil if the recipient is not connected.
func (n *MCPNotifier) Publish(_ context.Context, note notify.Notification) error {
	sessionID, ok := n.sessions.SessionFor(recipient(note))
	if !ok {
		return nil
	}
	payload, err := notificationParams(note)
	if err != nil {
		return err
	}
	err = n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

func recipient(n notify.Notification) string {
	switch n.Type {
	case schema.EventTaskCreated, schema.EventSLABreached:
		if n.AssigneeUser != "" {
			return n.AssigneeUser
		}
	}
	return n.ActorID
}

func notificationParams(n notify.Notification) (map[string]any, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return map[string]any{
		"level":  "info",
		"logger": "flowengine",
		"data":   data,
	}, nil
}
