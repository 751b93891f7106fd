package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/basket/droid-portal/internal/device"
	"github.com/basket/droid-portal/internal/portal"
	"github.com/basket/droid-portal/internal/state"
)

func newTestPortalServer(t *testing.T) (*PortalServer, *device.Sim) {
	t.Helper()
	sim := device.NewSim()
	d := portal.NewDispatcher(portal.DispatcherConfig{
		Repo:     state.NewRepository(sim),
		Keyboard: sim,
		Version:  "1.2.3",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s := NewPortalServer(PortalServerDeps{
		Dispatcher: d,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s, sim
}

// callTool drives a tool through the server's JSON-RPC entry point.
func callTool(t *testing.T, s *PortalServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	srv := s.MCPServer()

	init, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      0,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "0.0"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp := srv.HandleMessage(ctx, init); resp == nil {
		t.Fatal("no initialize response")
	}

	if args == nil {
		args = map[string]any{}
	}
	call, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := srv.HandleMessage(ctx, call)
	if resp == nil {
		t.Fatal("no tools/call response")
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var rpcResp struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		t.Fatal(err)
	}
	if rpcResp.Error != nil {
		t.Fatalf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil {
		t.Fatal("nil tool result")
	}
	return rpcResp.Result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	return mcp.GetTextFromContent(result.Content[0])
}

func TestToolRegistration(t *testing.T) {
	s, _ := newTestPortalServer(t)

	expected := []string{
		"ping", "get_state", "get_tree", "get_tree_full", "phone_state",
		"get_packages", "screenshot", "keyboard_input", "keyboard_clear",
		"keyboard_key", "overlay_offset", "overlay_visible", "set_socket_port",
	}
	tools := s.mcpServer.ListTools()
	if len(tools) != len(expected) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(expected))
	}
	for _, name := range expected {
		if s.mcpServer.GetTool(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestPingTool(t *testing.T) {
	s, _ := newTestPortalServer(t)

	result := callTool(t, s, "ping", nil)
	if result.IsError {
		t.Fatalf("ping errored: %s", resultText(t, result))
	}
	text := resultText(t, result)
	if !strings.Contains(text, "pong") || !strings.Contains(text, `"status":"success"`) {
		t.Errorf("ping result = %s", text)
	}
}

func TestStateToolFullIncludesDeviceContext(t *testing.T) {
	s, _ := newTestPortalServer(t)

	result := callTool(t, s, "get_state", map[string]any{"full": true})
	if result.IsError {
		t.Fatalf("get_state errored: %s", resultText(t, result))
	}
	var doc struct {
		Status string `json:"status"`
		Data   struct {
			A11yTree      map[string]any `json:"a11y_tree"`
			PhoneState    map[string]any `json:"phone_state"`
			DeviceContext map[string]any `json:"device_context"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Status != "success" {
		t.Errorf("status = %q", doc.Status)
	}
	if doc.Data.A11yTree == nil || doc.Data.PhoneState == nil || doc.Data.DeviceContext == nil {
		t.Errorf("full state missing sections: %+v", doc.Data)
	}
}

func TestKeyboardInputToolValidatesArguments(t *testing.T) {
	s, sim := newTestPortalServer(t)

	result := callTool(t, s, "keyboard_input", map[string]any{"clear": true})
	if !result.IsError {
		t.Fatal("missing base64_text accepted")
	}
	if text := resultText(t, result); !strings.Contains(text, "base64_text") {
		t.Errorf("validation message = %q", text)
	}
	if typed := sim.TypedText(); len(typed) != 0 {
		t.Errorf("invalid call reached the device: %v", typed)
	}
}

func TestKeyboardInputToolTypes(t *testing.T) {
	s, sim := newTestPortalServer(t)

	result := callTool(t, s, "keyboard_input", map[string]any{"base64_text": "aGVsbG8="})
	if result.IsError {
		t.Fatalf("keyboard_input errored: %s", resultText(t, result))
	}
	typed := sim.TypedText()
	if len(typed) != 1 || typed[0] != "hello" {
		t.Errorf("typed = %v", typed)
	}
}

func TestKeyboardInputToolClearsByDefault(t *testing.T) {
	s, sim := newTestPortalServer(t)

	// First call seeds the field; omitting clear on the second call must
	// replace the text, matching the catalogue default.
	callTool(t, s, "keyboard_input", map[string]any{"base64_text": "aGVsbG8="})
	result := callTool(t, s, "keyboard_input", map[string]any{"base64_text": "d29ybGQ="})
	if result.IsError {
		t.Fatalf("keyboard_input errored: %s", resultText(t, result))
	}
	typed := sim.TypedText()
	if len(typed) != 1 || typed[0] != "world" {
		t.Errorf("typed = %v, want [world]", typed)
	}

	callTool(t, s, "keyboard_input", map[string]any{"base64_text": "IQ==", "clear": false})
	typed = sim.TypedText()
	if len(typed) != 2 || typed[1] != "!" {
		t.Errorf("typed = %v, want [world !]", typed)
	}
}

func TestSocketPortToolRejectsLowPorts(t *testing.T) {
	s, sim := newTestPortalServer(t)

	result := callTool(t, s, "set_socket_port", map[string]any{"port": 80})
	if !result.IsError {
		t.Fatal("port 80 accepted")
	}
	if text := resultText(t, result); !strings.Contains(text, "1024") {
		t.Errorf("validation message = %q", text)
	}

	result = callTool(t, s, "set_socket_port", map[string]any{"port": 9000})
	if result.IsError {
		t.Fatalf("port 9000 rejected: %s", resultText(t, result))
	}
	if got := sim.SocketPort(); got != 9000 {
		t.Errorf("socket port = %d", got)
	}
}

func TestScreenshotToolReturnsImage(t *testing.T) {
	s, _ := newTestPortalServer(t)

	result := callTool(t, s, "screenshot", nil)
	if result.IsError {
		t.Fatalf("screenshot errored: %s", resultText(t, result))
	}
	if len(result.Content) < 2 {
		t.Fatalf("screenshot content = %d items, want text plus image", len(result.Content))
	}
	img, ok := result.Content[1].(mcp.ImageContent)
	if !ok {
		t.Fatalf("second content item is %T, want ImageContent", result.Content[1])
	}
	if img.MIMEType != "image/png" {
		t.Errorf("mime type = %q", img.MIMEType)
	}
	if img.Data == "" {
		t.Error("empty image data")
	}
}

func TestTreeFullToolNoActiveWindow(t *testing.T) {
	s, sim := newTestPortalServer(t)
	sim.SetActiveWindow(false)

	result := callTool(t, s, "get_tree_full", nil)
	if !result.IsError {
		t.Fatal("expected error without an active window")
	}
	if text := resultText(t, result); !strings.Contains(text, "no active window found") {
		t.Errorf("error text = %q", text)
	}
}
