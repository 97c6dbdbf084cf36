package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// begin opens a span for operation, puts the correlation IDs on ctx and
// returns a finish func that records the outcome as metrics, span status and
// a log line.
func (e *Engine) begin(ctx context.Context, operation, instanceID, actorID string) (context.Context, func(err error)) {
	ctx = logging.WithIDs(ctx, instanceID, "", actorID)
	ctx, span := e.tracer.Start(ctx, "flowengine."+operation, trace.WithAttributes(
		attribute.String("flowengine.instance_id", instanceID),
		attribute.String("flowengine.actor_id", actorID),
	))
	started := time.Now()

	return ctx, func(err error) {
		defer span.End()

		status := metrics.StatusSuccess
		switch {
		case err == nil:
		case IsConflict(err):
			status = metrics.StatusConflict
			metrics.RecordConflict(operation)
		default:
			status = metrics.StatusError
		}
		metrics.RecordOperation(operation, status, time.Since(started).Seconds())

		if err == nil {
			e.logger.DebugContext(ctx, "operation completed", "operation", operation)
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("flowengine.error_code", schema.CodeOf(err)))

		// Rejected requests are the caller's problem, not an engine fault.
		level := e.logger.WarnContext
		if schema.HasCode(err, schema.ErrCodeStore) || schema.CodeOf(err) == "" {
			level = e.logger.ErrorContext
		}
		level(ctx, "operation failed", "operation", operation, "code", schema.CodeOf(err), "error", err)
	}
}

// storeError wraps a raw persistence failure as STORE_ERROR. Errors that
// already carry a code pass through unchanged.
func storeError(err error, instanceID, msg string) error {
	if err == nil {
		return nil
	}
	var engErr *schema.EngineError
	if errors.As(err, &engErr) {
		return err
	}
	return schema.NewError(schema.ErrCodeStore, msg).WithInstance(instanceID).WithCause(err)
}

// withInstance tags an EngineError with the instance it concerns.
func withInstance(err error, instanceID string) error {
	var engErr *schema.EngineError
	if errors.As(err, &engErr) && engErr.InstanceID == "" {
		engErr.InstanceID = instanceID
	}
	return err
}
