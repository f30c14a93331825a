package events

import (
	"context"
)

// Emitter is the interface for emitting lifecycle events to the rest of the
// platform. Delivery and ordering guarantees belong to the sink behind the
// emitter, not to the callers.
type Emitter interface {
	EmitEvent(ctx context.Context, eventType, entityID string, payload map[string]interface{}) error
}

// NopEmitter discards every event. Used when no sink is configured and in tests.
type NopEmitter struct{}

// EmitEvent implements Emitter.
func (NopEmitter) EmitEvent(_ context.Context, _, _ string, _ map[string]interface{}) error {
	return nil
}
