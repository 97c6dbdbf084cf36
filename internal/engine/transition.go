package engine

import (
	"context"
	"maps"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/condition"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/graph"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// outcomeKey is the evaluation-context key carrying the caller's outcome label.
const outcomeKey = "outcome"

// advancePlan is the computed effect of one advance, applied in a single
// transaction. A nil transition with completes set means the instance was
// already sitting on an end node.
type advancePlan struct {
	from       *schema.Node
	transition *schema.Transition
	to         *schema.Node
	completes  bool
}

// evaluationContext returns the instance variables plus the outcome label,
// if any. The instance map is not modified.
func evaluationContext(vars map[string]any, outcome string) map[string]any {
	ctx := make(map[string]any, len(vars)+1)
	maps.Copy(ctx, vars)
	if outcome != "" {
		ctx[outcomeKey] = outcome
	}
	return ctx
}

// selectTransition picks the transition to fire from nodeID. Transitions are
// tried in priority order. A transition without a condition, or whose
// condition is true, wins immediately. Otherwise the first default
// transition is used, and nil means nothing fires.
func (e *Engine) selectTransition(ctx context.Context, def *schema.ProcessDefinition, nodeID string, vars map[string]any) *schema.Transition {
	var fallback *schema.Transition
	for _, t := range graph.OutgoingTransitions(def, nodeID) {
		if t.IsDefault {
			if fallback == nil {
				fallback = &t
			}
			continue
		}
		if t.Condition == nil {
			return &t
		}
		ok, err := condition.Eval(*t.Condition, vars)
		if err != nil {
			metrics.RecordConditionFailure()
			e.logger.WarnContext(ctx, "condition evaluation failed",
				"transition_id", t.ID, "from", t.From, "to", t.To,
				"condition", *t.Condition, "error", err)
			continue
		}
		if ok {
			return &t
		}
	}
	return fallback
}

// planAdvance computes where inst moves next. It returns nil when no
// transition matches.
func (e *Engine) planAdvance(ctx context.Context, def *schema.ProcessDefinition, inst *store.Instance, outcome string) (*advancePlan, error) {
	from, err := graph.Node(def, inst.CurrentNode)
	if err != nil {
		return nil, withInstance(err, inst.ID)
	}
	if from.IsEnd {
		return &advancePlan{from: from, completes: true}, nil
	}

	t := e.selectTransition(ctx, def, from.ID, evaluationContext(inst.Variables, outcome))
	if t == nil {
		return nil, nil
	}
	to, err := graph.Node(def, t.To)
	if err != nil {
		return nil, withInstance(err, inst.ID)
	}
	return &advancePlan{from: from, transition: t, to: to, completes: to.IsEnd}, nil
}

// applyTo moves inst in memory. The caller persists it.
func (p *advancePlan) applyTo(inst *store.Instance) {
	if p.to != nil {
		inst.CurrentNode = p.to.ID
	}
	if p.completes {
		inst.Status = schema.InstanceStatusCompleted
		at := inst.UpdatedAt
		inst.CompletedAt = &at
	}
}

// record writes the history and tasks of an applied plan and returns the
// notifications to send after commit.
func (e *Engine) record(ctx context.Context, tx store.Tx, inst *store.Instance, p *advancePlan, actorID, outcome string) ([]notify.Notification, error) {
	now := inst.UpdatedAt
	var notes []notify.Notification

	details := map[string]any{}
	if outcome != "" {
		details[outcomeKey] = outcome
	}
	toNode := ""
	if p.transition != nil {
		toNode = p.to.ID
		if p.transition.ID != "" {
			details["transition_id"] = p.transition.ID
		}
		if p.transition.Label != "" {
			details["label"] = p.transition.Label
		}
		if p.transition.IsDefault {
			details["default"] = true
		}
	} else {
		details["reason"] = "end_node"
	}
	if err := appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionTransition, p.from.ID, toNode, actorID, now), details); err != nil {
		return nil, err
	}

	if p.completes {
		// Work left open on the way to the end node can no longer be acted on.
		ids, err := tx.CancelOpenTasks(ctx, inst.ID, now)
		if err != nil {
			return nil, err
		}
		var completed map[string]any
		if len(ids) > 0 {
			completed = map[string]any{"cancelled_tasks": ids}
		}
		if err := appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionCompleted, "", inst.CurrentNode, actorID, now), completed); err != nil {
			return nil, err
		}
		n := e.notification(schema.EventInstanceCompleted, inst, actorID, now)
		n.NodeID = inst.CurrentNode
		notes = append(notes, n)
		return notes, nil
	}

	if p.to.Kind == schema.NodeKindHumanTask {
		_, n, err := e.createTask(ctx, tx, inst, p.to, actorID, now)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}
