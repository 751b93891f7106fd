package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Client is the agent-side caller of the correlation protocol. Requests
// and responses are matched purely by id equality; ids are chosen by the
// client and not validated for uniqueness by the protocol layer.
type Client struct {
	name      string
	transport Transport
	nextID    atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]chan Response
}

// NewClient starts the receive loop on the given transport.
func NewClient(name string, transport Transport) *Client {
	c := &Client{
		name:      name,
		transport: transport,
		pending:   make(map[string]chan Response),
	}
	go c.listen()
	return c
}

func (c *Client) listen() {
	for {
		msg, err := c.transport.Receive(context.Background())
		if err != nil {
			// Transport closed; in-flight calls fail via their contexts.
			return
		}

		resp, err := DecodeResponse(msg)
		if err != nil || !resp.ID.IsSet() {
			// Not a correlatable response (notification or malformed).
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID.Key()]
		if ok {
			delete(c.pending, resp.ID.Key())
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// Call performs one request/response exchange.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := NumberID(c.nextID.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[id.Key()] = ch
	c.pendingMu.Unlock()

	if err := c.transport.Send(ctx, b); err != nil {
		c.drop(id)
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	case resp := <-ch:
		if err := resp.Validate(); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) drop(id ID) {
	c.pendingMu.Lock()
	delete(c.pending, id.Key())
	c.pendingMu.Unlock()
}

// Initialize performs the handshake and sends the initialized
// notification.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: "2024-11-05",
		Capabilities:    json.RawMessage(`{}`),
		ClientInfo:      ClientInfo{Name: c.name, Version: "1.0"},
	}
	raw, err := c.Call(ctx, "initialize", params)
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal initialize result: %w", err)
	}

	notif := Notification{JSONRPC: Version, Method: "notifications/initialized"}
	b, _ := json.Marshal(notif)
	if err := c.transport.Send(ctx, b); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}
	return &result, nil
}

// ListTools calls tools/list.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool calls tools/call and returns the raw result document.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	raw, err := c.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s failed: %w", name, err)
	}
	return raw, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
