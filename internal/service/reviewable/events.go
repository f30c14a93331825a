package reviewable

import (
	"context"

	"go.uber.org/zap"

	"github.com/openagora/agora/pkg/events"
	"github.com/openagora/agora/pkg/utils"
)

// Event types emitted by the engine. Consumers treat them as best-effort
// notifications; the store is the source of truth.
const (
	EventCreated      = "reviewable.created"
	EventReopened     = "reviewable.reopened"
	EventTransitioned = "reviewable.transitioned"
	EventScoreChanged = "reviewable.score_changed"
)

func emitItemEvent(ctx context.Context, emitter events.Emitter, log *zap.Logger, eventType string, item *Reviewable, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"target_type": string(item.TargetType),
		"target_id":   item.TargetID,
		"variant":     string(item.Variant),
		"status":      string(item.Status),
		"version":     item.Version,
		"score":       item.Score,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, ok := payload["actor_id"]; !ok {
		if actorID, ok := utils.GetAuthenticatedActorID(ctx); ok {
			payload["actor_id"] = actorID
		}
	}
	events.EmitEventWithLogging(ctx, emitter, log, eventType, item.ID.String(), payload)
}
