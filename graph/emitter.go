package graph

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Emitter produces Events onto a channel consumed by the transport layer.
// All emit methods block until the consumer accepts the event or ctx is
// cancelled, so production order is exactly consumption order and nothing
// is dropped. An Emitter is safe for concurrent use.
type Emitter struct {
	ch           chan Event
	conversionID string
	sessionID    string

	closeOnce sync.Once
}

// NewEmitter creates an emitter with a fresh conversion id. sessionID may
// be empty; when set it is carried on every event.
func NewEmitter(sessionID string, buffer int) *Emitter {
	return &Emitter{
		ch:           make(chan Event, buffer),
		conversionID: uuid.NewString(),
		sessionID:    sessionID,
	}
}

// Events returns the receive side of the event stream. It is closed by
// Close once the producing side is done.
func (em *Emitter) Events() <-chan Event { return em.ch }

// ConversionID returns the correlation id stamped on every event.
func (em *Emitter) ConversionID() string { return em.conversionID }

// SessionID returns the session correlation id, empty if none was assigned.
func (em *Emitter) SessionID() string { return em.sessionID }

// Close closes the event stream. Emitting after Close panics, so it must
// only be called by the owner of the producing goroutine.
func (em *Emitter) Close() {
	em.closeOnce.Do(func() { close(em.ch) })
}

// NewEvent builds an event carrying the emitter's correlation ids without
// sending it. Used by transports that need to inject frames of their own
// (e.g. a connection acknowledgement) into the same stream.
func (em *Emitter) NewEvent(kind Kind, data map[string]any) Event {
	return Event{Kind: kind, ConversionID: em.conversionID, SessionID: em.sessionID, Data: data}
}

// Emit sends one event. It returns ctx.Err() when the context is cancelled
// before the consumer accepts the event.
func (em *Emitter) Emit(ctx context.Context, kind Kind, data map[string]any) error {
	select {
	case em.ch <- em.NewEvent(kind, data):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (em *Emitter) NodeStarted(ctx context.Context, node, message string) error {
	return em.Emit(ctx, KindNodeStarted, map[string]any{"node": node, "message": message})
}

// NodeStartedWith is NodeStarted with extra payload fields (progress, item
// counters and the like).
func (em *Emitter) NodeStartedWith(ctx context.Context, node, message string, extra map[string]any) error {
	data := map[string]any{"node": node, "message": message}
	for k, v := range extra {
		data[k] = v
	}
	return em.Emit(ctx, KindNodeStarted, data)
}

func (em *Emitter) NodeFinished(ctx context.Context, node, message string) error {
	return em.Emit(ctx, KindNodeFinished, map[string]any{"node": node, "message": message})
}

// NodeFinishedCompleted emits node_finished carrying the node's terminal
// payload under "completed".
func (em *Emitter) NodeFinishedCompleted(ctx context.Context, node, message string, completed any) error {
	return em.Emit(ctx, KindNodeFinished, map[string]any{"node": node, "message": message, "completed": completed})
}

func (em *Emitter) NodeFinishedWith(ctx context.Context, node, message string, extra map[string]any) error {
	data := map[string]any{"node": node, "message": message}
	for k, v := range extra {
		data[k] = v
	}
	return em.Emit(ctx, KindNodeFinished, data)
}

// Message emits one streamed answer token.
func (em *Emitter) Message(ctx context.Context, token string) error {
	return em.Emit(ctx, KindMessage, map[string]any{"answer": token})
}

// MessageFile emits one streamed answer token attributed to a file or tag.
func (em *Emitter) MessageFile(ctx context.Context, token, file string) error {
	return em.Emit(ctx, KindMessage, map[string]any{"answer": token, "file": file})
}

func (em *Emitter) FinalMessage(ctx context.Context, content string) error {
	return em.Emit(ctx, KindFinalMessage, map[string]any{"content": content})
}

func (em *Emitter) Error(ctx context.Context, message string) error {
	return em.Emit(ctx, KindError, map[string]any{"message": message})
}

func (em *Emitter) ErrorWith(ctx context.Context, message string, extra map[string]any) error {
	data := map[string]any{"message": message}
	for k, v := range extra {
		data[k] = v
	}
	return em.Emit(ctx, KindError, data)
}

func (em *Emitter) Complete(ctx context.Context, message string) error {
	return em.Emit(ctx, KindComplete, map[string]any{"message": message})
}

func (em *Emitter) Progress(ctx context.Context, node, message string, progress float64) error {
	return em.Emit(ctx, KindNodeProgress, map[string]any{"node": node, "message": message, "progress": progress})
}

func (em *Emitter) DocumentsRetrieved(ctx context.Context, documents any) error {
	return em.Emit(ctx, KindDocumentsRetrieved, map[string]any{"documents": documents})
}

func (em *Emitter) OriginDocumentsRetrieved(ctx context.Context, documents any) error {
	return em.Emit(ctx, KindOriginDocumentsRetrieved, map[string]any{"documents": documents})
}

// Custom emits an event with a workflow-specific kind.
func (em *Emitter) Custom(ctx context.Context, kind string, data map[string]any) error {
	return em.Emit(ctx, Kind(kind), data)
}
