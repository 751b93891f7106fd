// Package mcp implements the JSON-RPC-style correlation protocol used by
// structured tool-invocation callers: request/response/error envelopes,
// the initialize handshake, and tool discovery/invocation shapes.
package mcp

import (
	"encoding/json"
	"fmt"
)

// Version is the fixed protocol version tag on every message.
const Version = "2.0"

// Standard error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

type idKind int

const (
	idNone idKind = iota
	idString
	idNumber
)

// ID is a caller-chosen correlation key: a string or a number. The
// string-vs-number distinction is preserved through encode/decode, and
// equality is the sole correlation rule. Uniqueness is not validated.
type ID struct {
	kind idKind
	str  string
	num  json.Number
}

// StringID builds a string id.
func StringID(s string) ID { return ID{kind: idString, str: s} }

// NumberID builds a numeric id.
func NumberID(n int64) ID {
	return ID{kind: idNumber, num: json.Number(fmt.Sprintf("%d", n))}
}

// IsSet reports whether the id carries a value.
func (id ID) IsSet() bool { return id.kind != idNone }

// Equal compares ids; a string id never equals a numeric one.
func (id ID) Equal(other ID) bool {
	return id.kind == other.kind && id.str == other.str && id.num == other.num
}

// Key returns a map key that keeps string and numeric ids distinct.
func (id ID) Key() string {
	switch id.kind {
	case idString:
		return "s:" + id.str
	case idNumber:
		return "n:" + string(id.num)
	default:
		return ""
	}
}

func (id ID) String() string {
	switch id.kind {
	case idString:
		return id.str
	case idNumber:
		return string(id.num)
	default:
		return "<unset>"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return json.Marshal(id.str)
	case idNumber:
		return []byte(id.num), nil
	default:
		// A request id is never omitted; an unset id encodes as 0.
		return []byte("0"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID{kind: idString, str: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID{kind: idNumber, num: n}
	return nil
}

// Request is one correlation-protocol call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request, marshaling params. Nil params are omitted.
func NewRequest(id ID, method string, params any) (Request, error) {
	req := Request{JSONRPC: Version, ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Request{}, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = b
	}
	return req, nil
}

// Notification is a request without an id; it expects no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ErrorObject is the error half of a response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response carries exactly one of Result or Error, correlated to its
// request by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Validate detects a malformed response. A peer that sends both result
// and error (or neither) is a protocol error; this layer only surfaces
// the defect, it does not repair it.
func (r Response) Validate() error {
	if r.Result != nil && r.Error != nil {
		return fmt.Errorf("protocol error: response %s carries both result and error", r.ID)
	}
	if r.Result == nil && r.Error == nil {
		return fmt.Errorf("protocol error: response %s carries neither result nor error", r.ID)
	}
	return nil
}

// DecodeResponse parses a wire message as a response.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("protocol error: %w", err)
	}
	return resp, nil
}

// Tool describes one invokable tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the payload of a tools/list response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of a tools/call request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ClientInfo identifies a peer during the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the handshake request payload. Capabilities are
// opaque structured documents passed through without interpretation.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// InitializeResult is the handshake response payload.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      ClientInfo      `json:"serverInfo"`
}
