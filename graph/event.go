package graph

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the event types the engine can emit. Custom kinds
// (e.g. workflow-specific short circuits) are plain strings and do not
// need to be declared here.
type Kind string

const (
	KindNodeStarted              Kind = "node_started"
	KindNodeFinished             Kind = "node_finished"
	KindNodeProgress             Kind = "node_progress"
	KindMessage                  Kind = "message"
	KindFinalMessage             Kind = "final_message"
	KindError                    Kind = "error"
	KindComplete                 Kind = "complete"
	KindDocumentsRetrieved       Kind = "documents_retrieved"
	KindOriginDocumentsRetrieved Kind = "origin_documents_retrieved"
)

// Event is an immutable progress/result notification. Events are produced
// by components in strict order and consumed exactly once by the transport.
type Event struct {
	Kind         Kind
	ConversionID string
	SessionID    string
	Data         map[string]any
}

// WireEvent is the envelope handed to the transport layer. Data is the
// serialized inner payload, not a nested object.
type WireEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Wire renders the event into its transport envelope. The inner payload
// always carries the discriminator under "events" and the correlation id
// under "conversion_id"; session_id is included only when assigned.
// Values that cannot be serialized are stringified rather than rejected.
func (e Event) Wire() (WireEvent, error) {
	payload := map[string]any{
		"events":        string(e.Kind),
		"conversion_id": e.ConversionID,
	}
	if e.SessionID != "" {
		payload["session_id"] = e.SessionID
	}
	for k, v := range e.Data {
		payload[k] = sanitizeValue(v)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return WireEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return WireEvent{Event: "message", Data: string(raw)}, nil
}

// Node returns the "node" payload field, if present.
func (e Event) Node() string {
	s, _ := e.Data["node"].(string)
	return s
}

// Message returns the "message" payload field, if present.
func (e Event) Message() string {
	s, _ := e.Data["message"].(string)
	return s
}

// Answer returns the "answer" payload field (one streamed token), if present.
func (e Event) Answer() string {
	s, _ := e.Data["answer"].(string)
	return s
}

func sanitizeValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
