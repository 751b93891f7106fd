// Package stream is the broadcast transport: a WebSocket server that
// forwards every hub publication to all open connections and answers a
// minimal inbound command set.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/basket/droid-portal/internal/bus"
	"github.com/basket/droid-portal/internal/event"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// Config wires the stream server.
type Config struct {
	Hub      *bus.Hub
	BindAddr string // host without port; empty means all interfaces

	// HeartbeatInterval controls the periodic HEARTBEAT publication.
	// Zero disables it.
	HeartbeatInterval time.Duration

	Logger *slog.Logger
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// Server accepts WebSocket connections and fans hub events out to them.
// Its hub subscription lives from Start to Stop; closed connections are
// pruned from the client set as their read loops exit.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	sub      *bus.Subscription
	ln       net.Listener
	httpSrv  *http.Server
	port     int
	stopped  bool
	stopBeat context.CancelFunc
}

// New creates a stream server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		clients: map[*client]struct{}{},
	}
}

// Start binds the listener and registers the single hub subscriber that
// forwards every publication to all open connections.
func (s *Server) Start(ctx context.Context, port int) error {
	// Subscribe outside the server lock: the hub invokes forward (which
	// takes it) while holding its own lock.
	sub := s.cfg.Hub.Subscribe(s.forward)

	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		s.cfg.Hub.Unsubscribe(sub)
		return errors.New("stream: already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.BindAddr, fmt.Sprint(port)))
	if err != nil {
		s.mu.Unlock()
		s.cfg.Hub.Unsubscribe(sub)
		return fmt.Errorf("stream: bind port %d: %w", port, err)
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.sub = sub
	s.serveLocked()

	if s.cfg.HeartbeatInterval > 0 {
		beatCtx, cancel := context.WithCancel(ctx)
		s.stopBeat = cancel
		go s.heartbeat(beatCtx)
	}
	s.mu.Unlock()

	s.logger.Info("stream: listening", "port", port)
	return nil
}

// serveLocked starts the accept loop for the current listener. Caller
// holds s.mu.
func (s *Server) serveLocked() {
	srv := &http.Server{Handler: http.HandlerFunc(s.handleWS)}
	s.httpSrv = srv
	ln := s.ln
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("stream: serve", "error", err)
		}
	}()
}

// UpdatePort rebinds the listener. Existing connections on the old port
// are closed; the hub subscription is unaffected.
func (s *Server) UpdatePort(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("stream: port %d outside allowed range 1024-65535", port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("stream: stopped")
	}
	if s.ln != nil && s.port == port {
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.BindAddr, fmt.Sprint(port)))
	if err != nil {
		return fmt.Errorf("stream: bind port %d: %w", port, err)
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.serveLocked()
	s.logger.Info("stream: rebound", "port", s.port)
	return nil
}

// Stop tears the server down: hub subscription removed, listener closed,
// open connections dropped.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.stopBeat != nil {
		s.stopBeat()
	}
	sub := s.sub
	s.sub = nil
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	for c := range s.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server stopping")
	}
	s.clients = map[*client]struct{}{}
	s.mu.Unlock()

	// Unsubscribe outside the server lock, same ordering rule as Start.
	s.cfg.Hub.Unsubscribe(sub)
}

// Port returns the currently bound port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// forward is the hub subscriber: serialize once, write to every open
// connection. A failed write only logs; the read loop notices the dead
// connection and prunes it.
func (s *Server) forward(ev event.Event) {
	data, err := ev.Encode()
	if err != nil {
		s.logger.Error("stream: encode event", "type", ev.Type, "error", err)
		return
	}

	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(context.Background(), data); err != nil {
			s.logger.Debug("stream: forward write failed", "client", c.id, "error", err)
		}
	}
}

func (s *Server) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cfg.Hub.Publish(event.New(event.TypeHeartbeat, map[string]any{
				"clients": s.ClientCount(),
			}))
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // device-local transport, no browser origin policy
	})
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server stopping")
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("stream: client connected", "client", c.id, "remote", r.RemoteAddr)
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		s.logger.Info("stream: client disconnected", "client", c.id)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		s.handleInbound(r.Context(), c, data)
	}
}

// handleInbound decodes one inbound message. A PING is answered with a
// PONG addressed to the sender only; everything else, malformed input
// included, is logged and the connection stays open.
func (s *Server) handleInbound(ctx context.Context, c *client, data []byte) {
	ev := event.Decode(data)
	switch ev.Type {
	case event.TypePing:
		pong, err := event.New(event.TypePong, "pong").Encode()
		if err != nil {
			s.logger.Error("stream: encode pong", "error", err)
			return
		}
		if err := c.write(ctx, pong); err != nil {
			s.logger.Debug("stream: pong write failed", "client", c.id, "error", err)
		}
	case event.TypeUnknown:
		s.logger.Warn("stream: unrecognized inbound message", "client", c.id, "payload", ev.Payload.String())
	default:
		s.logger.Debug("stream: inbound event", "client", c.id, "type", ev.Type)
	}
}
