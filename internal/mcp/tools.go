package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/basket/droid-portal/internal/portal"
)

// toolResult converts a dispatcher envelope into a tool result. Error
// envelopes become tool errors, never transport faults.
func toolResult(env portal.Envelope) (*mcp.CallToolResult, error) {
	if env.IsError() {
		return mcp.NewToolResultError(env.ErrorMessage()), nil
	}
	doc, err := json.Marshal(env)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(doc))
}

func (s *PortalServer) handlePing(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.Ping())
}

func (s *PortalServer) handleState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetBool("full", false) {
		return toolResult(s.dispatcher.GetStateFull(req.GetBool("filter_small", true)))
	}
	return toolResult(s.dispatcher.GetState())
}

func (s *PortalServer) handleTree(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.GetTree())
}

func (s *PortalServer) handleTreeFull(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.GetTreeFull(req.GetBool("filter_small", true)))
}

func (s *PortalServer) handlePhoneState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.GetPhoneState())
}

func (s *PortalServer) handlePackages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.GetPackages())
}

// handleScreenshot returns the capture as image content rather than a
// JSON document.
func (s *PortalServer) handleScreenshot(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env := s.dispatcher.GetScreenshot(req.GetBool("hide_overlay", true))
	if env.IsError() {
		return mcp.NewToolResultError(env.ErrorMessage()), nil
	}
	encoded := base64.StdEncoding.EncodeToString(env.Bytes())
	return mcp.NewToolResultImage("screenshot", encoded, "image/png"), nil
}

func (s *PortalServer) handleKeyboardInput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := keyboardInputArgs.check(req.GetArguments()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := req.GetString("base64_text", "")
	return toolResult(s.dispatcher.KeyboardInput(text, req.GetBool("clear", true)))
}

func (s *PortalServer) handleKeyboardClear(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.dispatcher.KeyboardClear())
}

func (s *PortalServer) handleKeyboardKey(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := keyboardKeyArgs.check(req.GetArguments()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.dispatcher.KeyboardKey(req.GetInt("key_code", 0)))
}

func (s *PortalServer) handleOverlayOffset(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := overlayOffsetArgs.check(req.GetArguments()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.dispatcher.SetOverlayOffset(req.GetInt("offset", 0)))
}

func (s *PortalServer) handleOverlayVisible(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := overlayVisibleArgs.check(req.GetArguments()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.dispatcher.SetOverlayVisible(req.GetBool("visible", false)))
}

func (s *PortalServer) handleSocketPort(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := socketPortArgs.check(req.GetArguments()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.dispatcher.SetSocketPort(req.GetInt("port", 0)))
}
