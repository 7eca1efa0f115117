package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireEnvelope(t *testing.T) {
	t.Parallel()

	em := NewEmitter("sess-1", 4)
	ev := em.NewEvent(KindNodeStarted, map[string]any{"node": "final_answer", "message": "working"})

	wire, err := ev.Wire()
	require.NoError(t, err)
	assert.Equal(t, "message", wire.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire.Data), &payload))
	assert.Equal(t, "node_started", payload["events"])
	assert.Equal(t, em.ConversionID(), payload["conversion_id"])
	assert.Equal(t, "sess-1", payload["session_id"])
	assert.Equal(t, "final_answer", payload["node"])
	assert.Equal(t, "working", payload["message"])
}

func TestEventWireOmitsEmptySessionID(t *testing.T) {
	t.Parallel()

	em := NewEmitter("", 1)
	wire, err := em.NewEvent(KindComplete, map[string]any{"message": "done"}).Wire()
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire.Data), &payload))
	_, ok := payload["session_id"]
	assert.False(t, ok)
}

func TestEventWireStringifiesUnserializableValues(t *testing.T) {
	t.Parallel()

	em := NewEmitter("", 1)
	// Channels cannot be marshaled; the payload must degrade to a string
	// instead of failing the whole event.
	ev := em.NewEvent(KindError, map[string]any{"message": "boom", "detail": make(chan int)})

	wire, err := ev.Wire()
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire.Data), &payload))
	assert.Equal(t, "boom", payload["message"])
	assert.IsType(t, "", payload["detail"])
}

func TestEmitterOrderAndCorrelation(t *testing.T) {
	t.Parallel()

	em := NewEmitter("sess-9", 8)
	ctx := context.Background()

	require.NoError(t, em.NodeStarted(ctx, "a", "start"))
	require.NoError(t, em.Message(ctx, "tok"))
	require.NoError(t, em.Complete(ctx, "done"))
	em.Close()

	var kinds []Kind
	for ev := range em.Events() {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, em.ConversionID(), ev.ConversionID)
		assert.Equal(t, "sess-9", ev.SessionID)
	}
	assert.Equal(t, []Kind{KindNodeStarted, KindMessage, KindComplete}, kinds)
}

func TestEmitterEmitHonorsCancellation(t *testing.T) {
	t.Parallel()

	em := NewEmitter("", 0) // unbuffered, nobody reading
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := em.Message(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}
