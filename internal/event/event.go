// Package event defines the envelope broadcast to stream subscribers.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the event kinds carried on the wire. Unknown tags decode
// to TypeUnknown; decoding never fails on an unrecognized type.
type Type string

const (
	TypePing         Type = "PING"
	TypePong         Type = "PONG"
	TypeNotification Type = "NOTIFICATION"
	TypeHeartbeat    Type = "HEARTBEAT"
	TypeUnknown      Type = "UNKNOWN"
)

var knownTypes = map[Type]struct{}{
	TypePing:         {},
	TypePong:         {},
	TypeNotification: {},
	TypeHeartbeat:    {},
	TypeUnknown:      {},
}

// ParseType maps a wire tag to a Type, falling back to TypeUnknown.
func ParseType(s string) Type {
	t := Type(s)
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeUnknown
}

// Event is a typed broadcast message. Timestamp is milliseconds since
// epoch and defaults to publish time; Payload is optional.
type Event struct {
	Type      Type    `json:"type"`
	Timestamp int64   `json:"timestamp"`
	Payload   Payload `json:"payload,omitempty"`
}

// New builds an event stamped with the current time.
func New(t Type, payload any) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Payload:   PayloadFrom(payload),
	}
}

// Encode serializes the event to its UTF-8 JSON wire form.
func (e Event) Encode() ([]byte, error) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	return json.Marshal(e)
}

// Decode parses a wire message. It is lossy-safe: a malformed envelope
// decodes to an UNKNOWN event whose payload carries the parse detail
// rather than returning an error.
func Decode(data []byte) Event {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{
			Type:      TypeUnknown,
			Timestamp: time.Now().UnixMilli(),
			Payload:   StringPayload(fmt.Sprintf("Parse Error: %v", err)),
		}
	}
	e.Type = ParseType(string(e.Type))
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	return e
}
