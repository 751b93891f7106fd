package portal

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type envelopeKind int

const (
	kindSuccess envelopeKind = iota
	kindError
	kindRaw
	kindBinary
)

// Envelope is the uniform result returned by every dispatcher operation.
// Exactly one variant is active: Success (arbitrary value), Error
// (message), Raw (pre-built document, serialized unwrapped) or Binary
// (byte payload, serialized as base64 under the success shape).
type Envelope struct {
	kind  envelopeKind
	value any
	msg   string
	raw   json.RawMessage
	bin   []byte
}

// Success wraps an arbitrary success value.
func Success(v any) Envelope {
	return Envelope{kind: kindSuccess, value: v}
}

// Errorf builds an Error envelope with a formatted message.
func Errorf(format string, args ...any) Envelope {
	return Envelope{kind: kindError, msg: fmt.Sprintf(format, args...)}
}

// FromError folds any error into an Error envelope, preserving the
// human-readable message.
func FromError(err error) Envelope {
	if err == nil {
		return Errorf("unknown error")
	}
	return Envelope{kind: kindError, msg: err.Error()}
}

// Raw wraps a pre-built document that bypasses the status wrapper.
func Raw(doc json.RawMessage) Envelope {
	return Envelope{kind: kindRaw, raw: doc}
}

// Binary wraps a byte payload. The wire encoding (base64) is centralized
// here so transports never duplicate it.
func Binary(b []byte) Envelope {
	return Envelope{kind: kindBinary, bin: b}
}

// IsError reports whether the envelope is the Error variant.
func (e Envelope) IsError() bool { return e.kind == kindError }

// ErrorMessage returns the message of an Error envelope, or "".
func (e Envelope) ErrorMessage() string { return e.msg }

// Value returns the payload of a Success envelope.
func (e Envelope) Value() any { return e.value }

// Bytes returns the payload of a Binary envelope.
func (e Envelope) Bytes() []byte { return e.bin }

// Equal compares two envelopes. Binary envelopes are equal iff their byte
// content is equal, regardless of identity.
func (e Envelope) Equal(other Envelope) bool {
	if e.kind != other.kind {
		return false
	}
	switch e.kind {
	case kindError:
		return e.msg == other.msg
	case kindRaw:
		return bytes.Equal(e.raw, other.raw)
	case kindBinary:
		return bytes.Equal(e.bin, other.bin)
	default:
		a, errA := json.Marshal(e.value)
		b, errB := json.Marshal(other.value)
		return errA == nil && errB == nil && bytes.Equal(a, b)
	}
}

// MarshalJSON implements the single serialization rule for all variants:
//
//	Success: {"status":"success","data":<value>}
//	Error:   {"status":"error","error":<message>}
//	Raw:     the document itself, unwrapped
//	Binary:  {"status":"success","data":"<base64>"}
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case kindError:
		return json.Marshal(map[string]string{"status": "error", "error": e.msg})
	case kindRaw:
		if len(e.raw) == 0 {
			return []byte("null"), nil
		}
		return e.raw, nil
	case kindBinary:
		return json.Marshal(map[string]any{
			"status": "success",
			"data":   base64.StdEncoding.EncodeToString(e.bin),
		})
	default:
		return json.Marshal(map[string]any{"status": "success", "data": e.value})
	}
}
