package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basket/droid-portal/internal/bus"
	"github.com/basket/droid-portal/internal/config"
	"github.com/basket/droid-portal/internal/device"
	"github.com/basket/droid-portal/internal/gateway"
	"github.com/basket/droid-portal/internal/mcp"
	"github.com/basket/droid-portal/internal/portal"
	"github.com/basket/droid-portal/internal/state"
	"github.com/basket/droid-portal/internal/stream"
	"github.com/basket/droid-portal/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                     Serve the HTTP command surface and the event socket
  %s -mcp                Serve the command catalogue as MCP tools over stdio
  %s -version            Print the version and exit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  DROIDPORTAL_HOME          Data directory (default: ~/.droidportal)
  DROIDPORTAL_AUTH_TOKEN    Bearer token for the HTTP surface
  DROIDPORTAL_SOCKET_PORT   Event socket port override
`)
}

func main() {
	loadDotEnv(".env")

	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	showVersion := flag.Bool("version", false, "print version and exit")
	home := flag.String("home", "", "data directory (default: DROIDPORTAL_HOME or ~/.droidportal)")
	httpPort := flag.Int("http-port", 0, "override http_port from config.yaml")
	socketPort := flag.Int("socket-port", 0, "override socket_port from config.yaml")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	homeDir := *home
	if homeDir == "" {
		homeDir = config.HomeDir()
	}
	cfg, err := config.LoadFrom(homeDir)
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if *socketPort != 0 {
		cfg.SocketPort = *socketPort
	}
	if err := cfg.Validate(); err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// In MCP mode stdout carries the protocol, so logs go file-only.
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *mcpMode)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint())

	sim := device.NewSim()
	sim.SetOverlayOffset(cfg.Overlay.Offset)
	sim.SetOverlayVisible(cfg.Overlay.Visible)

	hub := bus.New()
	streamSrv := stream.New(stream.Config{
		Hub:               hub,
		BindAddr:          cfg.BindAddr,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Logger:            logger,
	})

	src := &portalSource{
		DeviceSource: sim,
		stream:       streamSrv,
		homeDir:      cfg.HomeDir,
		logger:       logger,
	}
	dispatcher := portal.NewDispatcher(portal.DispatcherConfig{
		Repo:              state.NewRepository(src),
		Keyboard:          sim,
		Version:           Version,
		ScreenshotTimeout: cfg.ScreenshotTimeout(),
		Logger:            logger,
	})

	if *mcpMode {
		srv := mcp.NewPortalServer(mcp.PortalServerDeps{Dispatcher: dispatcher, Logger: logger})
		logger.Info("startup phase", "phase", "mcp_stdio_serving")
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			fatalStartup(logger, "E_MCP_SERVE", err)
		}
		logger.Info("shutdown complete")
		return
	}

	if err := streamSrv.Start(ctx, cfg.SocketPort); err != nil {
		if isAddrInUse(err) {
			fatalStartup(logger, "E_SOCKET_BIND", fmt.Errorf("%w\n\n  Port %d is already in use. Stop the existing process or change socket_port in config.yaml.", err, cfg.SocketPort))
		}
		fatalStartup(logger, "E_SOCKET_BIND", err)
	}
	defer streamSrv.Stop()
	logger.Info("startup phase", "phase", "socket_bound", "port", streamSrv.Port())

	gw := gateway.New(gateway.Config{
		Dispatcher:    dispatcher,
		AuthToken:     cfg.AuthToken,
		StreamClients: streamSrv.ClientCount,
		Logger:        logger,
	})

	httpAddr := net.JoinHostPort(cfg.BindAddr, fmt.Sprint(cfg.HTTPPort))
	server := &http.Server{
		Addr:    httpAddr,
		Handler: gw.Handler(),
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		if isAddrInUse(err) {
			fatalStartup(logger, "E_HTTP_BIND", fmt.Errorf("%w\n\n  Port %d is already in use. Stop the existing process or change http_port in config.yaml.", err, cfg.HTTPPort))
		}
		fatalStartup(logger, "E_HTTP_BIND", err)
	}
	go func() {
		logger.Info("gateway listening", "addr", httpAddr)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		fatalStartup(logger, "E_CONFIG_WATCHER_START", err)
	}
	go func() {
		fingerprint := cfg.Fingerprint()
		for range watcher.Events() {
			next, err := config.LoadFrom(cfg.HomeDir)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			if next.Fingerprint() == fingerprint {
				continue
			}
			fingerprint = next.Fingerprint()
			logger.Info("config reloaded", "fingerprint", fingerprint)
			if next.SocketPort != streamSrv.Port() {
				if err := streamSrv.UpdatePort(next.SocketPort); err != nil {
					logger.Error("socket rebind from config failed", "port", next.SocketPort, "error", err)
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("gateway server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// portalSource delegates to the device source and additionally rebinds
// the running event socket when the port changes, persisting the new
// port to config.yaml.
type portalSource struct {
	state.DeviceSource
	stream  *stream.Server
	homeDir string
	logger  *slog.Logger
}

func (p *portalSource) UpdateSocketPort(port int) bool {
	if !p.DeviceSource.UpdateSocketPort(port) {
		return false
	}
	if err := p.stream.UpdatePort(port); err != nil {
		p.logger.Error("socket rebind failed", "port", port, "error", err)
		return false
	}
	if err := config.SetSocketPort(p.homeDir, port); err != nil {
		p.logger.Warn("socket port not persisted", "port", port, "error", err)
	}
	return true
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"portal","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
