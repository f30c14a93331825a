package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openagora/agora/pkg/json"
)

func TestWebhookEmitterDelivers(t *testing.T) {
	var received atomic.Int32
	var lastBody []byte
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody = body
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	emitter := NewWebhookEmitter(sink.URL, zap.NewNop())
	err := emitter.EmitEvent(context.Background(), "reviewable.created", "abc",
		map[string]interface{}{"score": 5.0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, received.Load())

	envelope := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(lastBody, &envelope))
	assert.Equal(t, "reviewable.created", envelope["event_type"])
	assert.Equal(t, "abc", envelope["entity_id"])
	assert.NotEmpty(t, envelope["emitted_at"])
}

func TestWebhookEmitterBreakerOpens(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	emitter := NewWebhookEmitter(sink.URL, zap.NewNop())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.Error(t, emitter.EmitEvent(ctx, "reviewable.created", "x", nil))
	}
	// Breaker is open now; emits fail without reaching the sink.
	assert.Error(t, emitter.EmitEvent(ctx, "reviewable.created", "x", nil))
}

func TestEmitEventWithLoggingBestEffort(t *testing.T) {
	assert.False(t, EmitEventWithLogging(context.Background(), nil, zap.NewNop(), "t", "1", nil))

	ok := EmitEventWithLogging(context.Background(), NopEmitter{}, zap.NewNop(), "t", "1",
		map[string]interface{}{"k": "v"})
	assert.True(t, ok)
}
