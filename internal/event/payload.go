package event

import (
	"encoding/json"
	"fmt"
)

// Payload is the closed variant carried by an event: absent, string,
// number, boolean, object or array. It wraps the raw JSON so encode and
// decode stay exhaustive; values that cannot be represented as JSON are
// coerced to their textual form at construction.
type Payload struct {
	raw json.RawMessage
}

// PayloadFrom embeds maps, slices and primitives as-is and coerces any
// other shape to its fmt.Sprint form.
func PayloadFrom(v any) Payload {
	if v == nil {
		return Payload{}
	}
	if p, ok := v.(Payload); ok {
		return p
	}
	b, err := json.Marshal(v)
	if err != nil {
		return StringPayload(fmt.Sprint(v))
	}
	return Payload{raw: b}
}

// StringPayload builds a string payload.
func StringPayload(s string) Payload {
	b, _ := json.Marshal(s)
	return Payload{raw: b}
}

// IsAbsent reports whether the payload is absent.
func (p Payload) IsAbsent() bool {
	return len(p.raw) == 0 || string(p.raw) == "null"
}

// String returns the payload as a string. Non-string payloads return
// their compact JSON form.
func (p Payload) String() string {
	if p.IsAbsent() {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.raw, &s); err == nil {
		return s
	}
	return string(p.raw)
}

// Object returns the payload as a key-value document, if it is one.
func (p Payload) Object() (map[string]any, bool) {
	if p.IsAbsent() {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(p.raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// Number returns the payload as a float64, if it is numeric.
func (p Payload) Number() (float64, bool) {
	if p.IsAbsent() {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(p.raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Bool returns the payload as a boolean, if it is one.
func (p Payload) Bool() (bool, bool) {
	if p.IsAbsent() {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(p.raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// Equal compares payloads by content.
func (p Payload) Equal(other Payload) bool {
	if p.IsAbsent() || other.IsAbsent() {
		return p.IsAbsent() == other.IsAbsent()
	}
	return string(p.raw) == string(other.raw)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsAbsent() {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.raw = nil
		return nil
	}
	p.raw = append(p.raw[:0], data...)
	return nil
}
