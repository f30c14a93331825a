package events

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/openagora/agora/pkg/json"
)

// WebhookEmitter posts events as JSON envelopes to an HTTP sink. A circuit
// breaker shields the live path from a misbehaving sink: once the breaker
// opens, emits fail fast until the sink recovers.
type WebhookEmitter struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewWebhookEmitter creates a WebhookEmitter for the given sink URL.
func NewWebhookEmitter(url string, log *zap.Logger) *WebhookEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:    "event-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("event sink breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &WebhookEmitter{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With(zap.String("module", "webhook_emitter")),
	}
}

type eventEnvelope struct {
	EventType string                 `json:"event_type"`
	EntityID  string                 `json:"entity_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	EmittedAt string                 `json:"emitted_at"`
}

// EmitEvent implements Emitter.
func (w *WebhookEmitter) EmitEvent(ctx context.Context, eventType, entityID string, payload map[string]interface{}) error {
	body, err := json.Marshal(eventEnvelope{
		EventType: eventType,
		EntityID:  entityID,
		Payload:   payload,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("event sink returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to deliver event %s: %w", eventType, err)
	}
	return nil
}
