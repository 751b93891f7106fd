package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/basket/droid-portal/internal/portal"
)

// PortalServerDeps holds the dependencies for creating a PortalServer.
type PortalServerDeps struct {
	Dispatcher *portal.Dispatcher
	Logger     *slog.Logger
}

// PortalServer exposes the command catalogue as MCP tools over stdio.
type PortalServer struct {
	dispatcher *portal.Dispatcher
	logger     *slog.Logger
	mcpServer  *server.MCPServer
}

// NewPortalServer creates a PortalServer with all tools registered.
func NewPortalServer(deps PortalServerDeps) *PortalServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &PortalServer{
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}

	version := "dev"
	if deps.Dispatcher != nil && deps.Dispatcher.Version() != "" {
		version = deps.Dispatcher.Version()
	}

	mcpSrv := server.NewMCPServer(
		"droid-portal",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Droid Portal exposes the device inspection and input surface of a connected Android device: read the accessibility tree and phone state, capture screenshots, type through the portal keyboard, and manage the overlay and the event socket."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *PortalServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *PortalServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *PortalServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: pingTool(), Handler: s.handlePing},
		{Tool: stateTool(), Handler: s.handleState},
		{Tool: treeTool(), Handler: s.handleTree},
		{Tool: treeFullTool(), Handler: s.handleTreeFull},
		{Tool: phoneStateTool(), Handler: s.handlePhoneState},
		{Tool: packagesTool(), Handler: s.handlePackages},
		{Tool: screenshotTool(), Handler: s.handleScreenshot},
		{Tool: keyboardInputTool(), Handler: s.handleKeyboardInput},
		{Tool: keyboardClearTool(), Handler: s.handleKeyboardClear},
		{Tool: keyboardKeyTool(), Handler: s.handleKeyboardKey},
		{Tool: overlayOffsetTool(), Handler: s.handleOverlayOffset},
		{Tool: overlayVisibleTool(), Handler: s.handleOverlayVisible},
		{Tool: socketPortTool(), Handler: s.handleSocketPort},
	}
}

// --- Tool definitions ---

func pingTool() mcp.Tool {
	return mcp.NewTool("ping",
		mcp.WithDescription("Check that the portal is alive"),
	)
}

func stateTool() mcp.Tool {
	return mcp.NewTool("get_state",
		mcp.WithDescription("Get the combined device state: accessibility tree plus phone state"),
		mcp.WithBoolean("full", mcp.Description("Include the full window tree and device context (default: false)")),
		mcp.WithBoolean("filter_small", mcp.Description("Drop sub-threshold elements from the full tree (default: true)")),
	)
}

func treeTool() mcp.Tool {
	return mcp.NewTool("get_tree",
		mcp.WithDescription("Get the visible accessibility elements of the foreground window"),
	)
}

func treeFullTool() mcp.Tool {
	return mcp.NewTool("get_tree_full",
		mcp.WithDescription("Get the full window tree, including off-screen nodes"),
		mcp.WithBoolean("filter_small", mcp.Description("Drop sub-threshold elements (default: true)")),
	)
}

func phoneStateTool() mcp.Tool {
	return mcp.NewTool("phone_state",
		mcp.WithDescription("Get the foreground app, current activity and keyboard visibility"),
	)
}

func packagesTool() mcp.Tool {
	return mcp.NewTool("get_packages",
		mcp.WithDescription("List the launchable packages installed on the device"),
	)
}

func screenshotTool() mcp.Tool {
	return mcp.NewTool("screenshot",
		mcp.WithDescription("Capture the screen as a PNG image"),
		mcp.WithBoolean("hide_overlay", mcp.Description("Hide the portal overlay during capture (default: true)")),
	)
}

func keyboardInputTool() mcp.Tool {
	return mcp.NewTool("keyboard_input",
		mcp.WithDescription("Type text into the focused field through the portal keyboard"),
		mcp.WithString("base64_text", mcp.Required(), mcp.Description("Base64-encoded text to type")),
		mcp.WithBoolean("clear", mcp.Description("Clear the field before typing (default: true)")),
	)
}

func keyboardClearTool() mcp.Tool {
	return mcp.NewTool("keyboard_clear",
		mcp.WithDescription("Clear the focused text field"),
	)
}

func keyboardKeyTool() mcp.Tool {
	return mcp.NewTool("keyboard_key",
		mcp.WithDescription("Send a raw key event through the portal keyboard"),
		mcp.WithNumber("key_code", mcp.Required(), mcp.Description("Android key code to send")),
	)
}

func overlayOffsetTool() mcp.Tool {
	return mcp.NewTool("overlay_offset",
		mcp.WithDescription("Move the portal overlay vertically"),
		mcp.WithNumber("offset", mcp.Required(), mcp.Description("Vertical offset in pixels")),
	)
}

func overlayVisibleTool() mcp.Tool {
	return mcp.NewTool("overlay_visible",
		mcp.WithDescription("Show or hide the portal overlay"),
		mcp.WithBoolean("visible", mcp.Required(), mcp.Description("Whether the overlay is drawn")),
	)
}

func socketPortTool() mcp.Tool {
	return mcp.NewTool("set_socket_port",
		mcp.WithDescription("Rebind the event broadcast socket to another port"),
		mcp.WithNumber("port", mcp.Required(), mcp.Description("Port in the range 1024-65535")),
	)
}
