package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Transport moves newline-delimited JSON messages between peers.
type Transport interface {
	Send(ctx context.Context, msg json.RawMessage) error
	Receive(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// ErrTransportClosed is returned by Send and Receive after Close, or
// once the peer's stream has ended.
var ErrTransportClosed = errors.New("transport closed")

// StdioConfig describes the subprocess a StdioTransport talks to.
type StdioConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Logger  *slog.Logger
}

// StdioTransport spawns the portal binary (or any stdio peer) and
// exchanges messages over its stdin/stdout. A single reader goroutine
// owns stdout; lines are handed to Receive through a channel so that
// cancellation never tears the byte stream mid-message.
type StdioTransport struct {
	proc   *exec.Cmd
	in     io.WriteCloser
	lines  chan stdioLine
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

type stdioLine struct {
	msg json.RawMessage
	err error
}

// NewStdioTransport starts the configured subprocess and wires up its
// stdio. The process inherits the parent environment with cfg.Env
// appended.
func NewStdioTransport(cfg StdioConfig) (*StdioTransport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proc := exec.Command(cfg.Command, cfg.Args...)
	proc.Env = os.Environ()
	for k, v := range cfg.Env {
		proc.Env = append(proc.Env, k+"="+v)
	}

	in, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	out, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	diag, err := proc.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		proc:   proc,
		in:     in,
		lines:  make(chan stdioLine, 8),
		logger: logger,
	}
	go t.readLoop(bufio.NewReader(out))
	go t.drainStderr(cfg.Command, diag)
	return t, nil
}

// readLoop pumps stdout lines into the channel. Blank lines are
// skipped; the first read error ends the loop and closes the channel.
func (t *StdioTransport) readLoop(out *bufio.Reader) {
	defer close(t.lines)
	for {
		line, err := out.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.lines <- stdioLine{err: err}
			}
			return
		}
		msg := bytes.TrimSpace(line)
		if len(msg) == 0 {
			continue
		}
		t.lines <- stdioLine{msg: msg}
	}
}

func (t *StdioTransport) drainStderr(command string, diag io.Reader) {
	scanner := bufio.NewScanner(diag)
	for scanner.Scan() {
		t.logger.Debug("peer stderr", "command", command, "line", scanner.Text())
	}
}

// Send writes one newline-delimited message to the peer's stdin.
func (t *StdioTransport) Send(_ context.Context, msg json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if _, err := t.in.Write(append(msg, '\n')); err != nil {
		return fmt.Errorf("write to peer: %w", err)
	}
	return nil
}

// Receive blocks until a message arrives, the stream ends, or the
// context is cancelled.
func (t *StdioTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return nil, ErrTransportClosed
		}
		if line.err != nil {
			return nil, fmt.Errorf("read from peer: %w", line.err)
		}
		return line.msg, nil
	}
}

// Close shuts the peer down. Closing stdin is the polite signal; the
// process is killed in case it ignores it. Safe to call twice.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.in.Close()
	if t.proc.Process != nil {
		_ = t.proc.Process.Kill()
	}
	_ = t.proc.Wait()
	return nil
}
