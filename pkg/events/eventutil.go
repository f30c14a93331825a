package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EmitEventWithLogging emits an event and logs any emission failure. Event
// emission is best-effort: a failed emit never fails the operation that
// produced it. Returns true if emission succeeded.
func EmitEventWithLogging(
	ctx context.Context,
	emitter Emitter,
	log *zap.Logger,
	eventType, entityID string,
	payload map[string]interface{},
	extraFields ...zap.Field,
) bool {
	if emitter == nil {
		return false
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	if err := emitter.EmitEvent(ctx, eventType, entityID, payload); err != nil {
		if log != nil {
			log.Warn("Failed to emit event",
				append([]zap.Field{
					zap.String("event_type", eventType),
					zap.String("entity_id", entityID),
					zap.Error(err),
				}, extraFields...)...,
			)
		}
		return false
	}
	return true
}
