// Package notify delivers engine notifications to external consumers.
//
// Notifications are fire-and-forget: they are sent after the lifecycle
// transaction commits and a delivery failure never affects the operation
// that produced it.
package notify

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Notification is a single event published by the engine.
type Notification struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	InstanceID    string         `json:"instance_id"`
	DefinitionID  string         `json:"definition_id,omitempty"`
	NodeID        string         `json:"node_id,omitempty"`
	TaskID        string         `json:"task_id,omitempty"`
	AssigneeUser  string         `json:"assignee_user,omitempty"`
	AssigneeGroup string         `json:"assignee_group,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Filter specifies which notifications a subscriber wants to receive.
// Zero fields match everything.
type Filter struct {
	InstanceID   string   `json:"instance_id,omitempty"`
	Types        []string `json:"types,omitempty"`
	AssigneeUser string   `json:"assignee_user,omitempty"`
}

// Matches reports whether n passes the filter.
func (f Filter) Matches(n Notification) bool {
	if f.InstanceID != "" && f.InstanceID != n.InstanceID {
		return false
	}
	if f.AssigneeUser != "" && f.AssigneeUser != n.AssigneeUser {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
		return false
	}
	return true
}

// Sink receives notifications.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// Subscriber delivers matching notifications on a channel until cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter) (<-chan Notification, func(), error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Publish(ctx context.Context, n Notification) error { return f(ctx, n) }

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(context.Context, Notification) error { return nil })

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
