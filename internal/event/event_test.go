package event

import (
	"strings"
	"testing"
	"time"
)

func TestEvent_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{"object", map[string]any{"title": "msg", "package": "com.example"}},
		{"string", "pong"},
		{"number", 42.5},
		{"bool", true},
		{"array", []any{"a", "b"}},
		{"absent", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{Type: TypeNotification, Timestamp: 1700000000123, Payload: PayloadFrom(tt.payload)}
			wire, err := e.Encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got := Decode(wire)
			if got.Type != e.Type {
				t.Fatalf("type = %v, want %v", got.Type, e.Type)
			}
			if got.Timestamp != e.Timestamp {
				t.Fatalf("timestamp = %d, want %d", got.Timestamp, e.Timestamp)
			}
			if !got.Payload.Equal(e.Payload) {
				t.Fatalf("payload = %s, want %s", got.Payload.String(), e.Payload.String())
			}
		})
	}
}

func TestDecode_MalformedFallsBackToUnknown(t *testing.T) {
	for _, raw := range []string{"not json", "{truncated", ""} {
		got := Decode([]byte(raw))
		if got.Type != TypeUnknown {
			t.Fatalf("Decode(%q) type = %v, want UNKNOWN", raw, got.Type)
		}
		if !strings.HasPrefix(got.Payload.String(), "Parse Error: ") {
			t.Fatalf("Decode(%q) payload = %q, want parse-error detail", raw, got.Payload.String())
		}
	}
}

func TestDecode_UnrecognizedTypeIsUnknown(t *testing.T) {
	got := Decode([]byte(`{"type":"SOMETHING_NEW","timestamp":5,"payload":"x"}`))
	if got.Type != TypeUnknown {
		t.Fatalf("type = %v, want UNKNOWN", got.Type)
	}
	if got.Payload.String() != "x" {
		t.Fatalf("payload = %q, want x (content retained)", got.Payload.String())
	}
}

func TestNew_DefaultsTimestampToNow(t *testing.T) {
	before := time.Now().UnixMilli()
	e := New(TypePing, nil)
	after := time.Now().UnixMilli()
	if e.Timestamp < before || e.Timestamp > after {
		t.Fatalf("timestamp %d outside [%d, %d]", e.Timestamp, before, after)
	}
	if !e.Payload.IsAbsent() {
		t.Fatal("nil payload must be absent")
	}
}

func TestDecode_MissingTimestampDefaults(t *testing.T) {
	got := Decode([]byte(`{"type":"PING"}`))
	if got.Timestamp == 0 {
		t.Fatal("missing timestamp must default to decode time")
	}
}

func TestPayloadFrom_CoercesUnencodable(t *testing.T) {
	p := PayloadFrom(make(chan int)) // not JSON-encodable
	if p.IsAbsent() {
		t.Fatal("coerced payload must not be absent")
	}
	if _, ok := p.Object(); ok {
		t.Fatal("coerced payload must be textual, not an object")
	}
}

func TestPayload_Accessors(t *testing.T) {
	if n, ok := PayloadFrom(7).Number(); !ok || n != 7 {
		t.Fatalf("Number() = %v, %v", n, ok)
	}
	if b, ok := PayloadFrom(true).Bool(); !ok || !b {
		t.Fatalf("Bool() = %v, %v", b, ok)
	}
	obj, ok := PayloadFrom(map[string]any{"k": "v"}).Object()
	if !ok || obj["k"] != "v" {
		t.Fatalf("Object() = %v, %v", obj, ok)
	}
}
