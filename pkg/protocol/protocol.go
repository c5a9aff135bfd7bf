// Package protocol defines the JSON event protocol spoken between canvas
// clients and the room coordinator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The type of an event carried in an Envelope
type EventType string

const (
	// Inbound (client -> server)
	EventJoinRoom    EventType = "join_room"
	EventLeaveRoom   EventType = "leave_room"
	EventUndo        EventType = "undo"
	EventRedo        EventType = "redo"
	EventCursorMove  EventType = "cursor_move"
	EventClearCanvas EventType = "clear_canvas"

	// Stroke events travel in both directions
	EventStrokeStart EventType = "stroke_start"
	EventStrokeAdd   EventType = "stroke_add"
	EventStrokeBatch EventType = "stroke_batch"
	EventStrokeEnd   EventType = "stroke_end"

	// Outbound only (server -> client)
	EventRoomJoined  EventType = "room_joined"
	EventRoomState   EventType = "room_state"
	EventCursorLeave EventType = "cursor_leave"
	EventUserProfile EventType = "user_profile"
	EventRoomUsers   EventType = "room_users"
	EventUserJoined  EventType = "user_joined"
	EventUserLeft    EventType = "user_left"
)

// ErrMalformed marks an event that is missing required fields or cannot be decoded.
var ErrMalformed = errors.New("malformed event")

// Envelope is the outer frame of every message on the wire.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload into an envelope of the given type.
func Encode(t EventType, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(t EventType, payload any) []byte {
	data, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// Extracts the envelope from a raw frame
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Payload decodes the envelope data into v.
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// IsInbound reports whether clients may send events of this type.
func (t EventType) IsInbound() bool {
	switch t {
	case EventJoinRoom, EventLeaveRoom, EventUndo, EventRedo, EventCursorMove, EventClearCanvas,
		EventStrokeStart, EventStrokeAdd, EventStrokeBatch, EventStrokeEnd:
		return true
	}
	return false
}
