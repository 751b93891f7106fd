// Package gateway binds the dispatcher's operation catalogue to a
// synchronous HTTP surface. Query operations are GETs, insert (action)
// operations are POSTs carrying a JSON parameter bag.
package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/basket/droid-portal/internal/portal"
)

// Config wires the gateway.
type Config struct {
	Dispatcher *portal.Dispatcher

	// AuthToken enables Bearer auth when non-empty.
	AuthToken string

	// StreamClients reports open broadcast connections for /metrics.
	// May be nil.
	StreamClients func() int

	Logger *slog.Logger
}

const (
	verbQuery  = "query"
	verbInsert = "insert"
)

type route struct {
	verb   string
	handle func(bag) portal.Envelope
}

// Server is the synchronous transport binding.
type Server struct {
	cfg    Config
	logger *slog.Logger
	routes map[string]route

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// New creates the gateway and its static routing table.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}
	d := cfg.Dispatcher
	s.routes = map[string]route{
		"ping":    {verbQuery, func(bag) portal.Envelope { return d.Ping() }},
		"version": {verbQuery, func(bag) portal.Envelope { return d.GetVersion() }},
		"a11y_tree": {verbQuery, func(bag) portal.Envelope {
			return d.GetTree()
		}},
		"a11y_tree_full": {verbQuery, func(b bag) portal.Envelope {
			return d.GetTreeFull(b.boolParam("filter", true))
		}},
		"phone_state": {verbQuery, func(bag) portal.Envelope { return d.GetPhoneState() }},
		"state":       {verbQuery, func(bag) portal.Envelope { return d.GetState() }},
		"state_full": {verbQuery, func(b bag) portal.Envelope {
			return d.GetStateFull(b.boolParam("filter", true))
		}},
		"packages": {verbQuery, func(bag) portal.Envelope { return d.GetPackages() }},
		"keyboard/input": {verbInsert, func(b bag) portal.Envelope {
			text, ok := b.stringParam("base64_text")
			if !ok {
				return portal.Errorf("missing parameter: base64_text")
			}
			return d.KeyboardInput(text, b.boolParam("clear", true))
		}},
		"keyboard/clear": {verbInsert, func(bag) portal.Envelope { return d.KeyboardClear() }},
		"keyboard/key": {verbInsert, func(b bag) portal.Envelope {
			code, err := b.intParam("key_code")
			if err != nil {
				return portal.Errorf("missing or invalid parameter: key_code")
			}
			return d.KeyboardKey(code)
		}},
		"overlay_offset": {verbInsert, func(b bag) portal.Envelope {
			offset, err := b.intParam("offset")
			if err != nil {
				return portal.Errorf("missing or invalid parameter: offset")
			}
			return d.SetOverlayOffset(offset)
		}},
		"overlay_visible": {verbInsert, func(b bag) portal.Envelope {
			if _, ok := b["visible"]; !ok {
				return portal.Errorf("missing parameter: visible")
			}
			return d.SetOverlayVisible(b.boolParam("visible", false))
		}},
		"socket_port": {verbInsert, func(b bag) portal.Envelope {
			port, err := b.intParam("port")
			if err != nil {
				return portal.Errorf("missing or invalid parameter: port")
			}
			return d.SetSocketPort(port)
		}},
	}
	return s
}

// Handler returns the HTTP handler for the whole surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/screenshot", s.handleScreenshot)
	mux.HandleFunc("/", s.handleDispatch)
	return mux
}

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token != "" && token == s.cfg.AuthToken
}

// handleDispatch routes (path, verb, parameter bag) to exactly one
// dispatcher call. All dispatch panics are folded into the Error shape;
// a caller never sees a raw fault.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	rt, ok := s.routes[path]
	if !ok {
		s.errorCount.Add(1)
		s.writeEnvelope(w, portal.Errorf("Unknown endpoint: %s", path))
		return
	}

	wantMethod := http.MethodGet
	if rt.verb == verbInsert {
		wantMethod = http.MethodPost
	}
	if r.Method != wantMethod {
		s.errorCount.Add(1)
		s.writeEnvelope(w, portal.Errorf("Unknown endpoint: %s", path))
		return
	}

	env := s.dispatch(rt, readBag(r))
	s.logger.Debug("gateway: dispatched", "path", path, "verb", rt.verb, "error", env.IsError())
	if env.IsError() {
		s.errorCount.Add(1)
	}

	if rt.verb == verbInsert {
		// Action results travel on a compact key-value channel.
		s.writeJSON(w, compactForm(env))
		return
	}
	s.writeEnvelope(w, env)
}

func (s *Server) dispatch(rt route, b bag) (env portal.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("gateway: dispatch panic", "panic", r)
			env = portal.Errorf("dispatch failed: %v", r)
		}
	}()
	return rt.handle(b)
}

// handleScreenshot serves the capture as raw image bytes for callers
// that want the pixels without the JSON envelope.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b := readBag(r)
	env := s.cfg.Dispatcher.GetScreenshot(b.boolParam("hide_overlay", false))
	if env.IsError() {
		s.errorCount.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		s.writeEnvelope(w, env)
		return
	}
	// format=json returns the envelope (base64 data) instead of pixels.
	if v, ok := b.stringParam("format"); ok && v == "json" {
		s.writeEnvelope(w, env)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(env.Bytes())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"healthy": true,
		"version": s.cfg.Dispatcher.Version(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP droidportal_http_requests_total HTTP requests handled.\n")
	fmt.Fprintf(w, "# TYPE droidportal_http_requests_total counter\n")
	fmt.Fprintf(w, "droidportal_http_requests_total %d\n", s.requestCount.Load())
	fmt.Fprintf(w, "# HELP droidportal_http_errors_total Requests resolved to an error envelope.\n")
	fmt.Fprintf(w, "# TYPE droidportal_http_errors_total counter\n")
	fmt.Fprintf(w, "droidportal_http_errors_total %d\n", s.errorCount.Load())
	if s.cfg.StreamClients != nil {
		fmt.Fprintf(w, "# HELP droidportal_stream_clients Open broadcast connections.\n")
		fmt.Fprintf(w, "# TYPE droidportal_stream_clients gauge\n")
		fmt.Fprintf(w, "droidportal_stream_clients %d\n", s.cfg.StreamClients())
	}
}

func (s *Server) writeEnvelope(w http.ResponseWriter, env portal.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("gateway: write response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("gateway: write response", "error", err)
	}
}

// compactForm re-encodes an envelope as the {status, message} pair used
// by the insert result channel.
func compactForm(env portal.Envelope) map[string]string {
	if env.IsError() {
		return map[string]string{"status": "error", "message": env.ErrorMessage()}
	}
	msg := ""
	switch v := env.Value().(type) {
	case string:
		msg = v
	default:
		if b, err := json.Marshal(v); err == nil {
			msg = string(b)
		}
	}
	return map[string]string{"status": "success", "message": msg}
}
