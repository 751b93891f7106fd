package portal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/droid-portal/internal/state"
)

const defaultScreenshotTimeout = 5 * time.Second

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Repo     *state.Repository
	Keyboard state.Keyboard
	Version  string

	// ScreenshotTimeout bounds the capture wait. Zero means 5s.
	ScreenshotTimeout time.Duration

	Logger *slog.Logger
}

// Dispatcher maps every named operation to a call against its
// collaborators and wraps the outcome in an Envelope. No failure crosses
// this boundary as a raised fault: collaborator errors and panics are
// folded into the Error variant.
type Dispatcher struct {
	repo    *state.Repository
	kb      state.Keyboard
	version string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.ScreenshotTimeout
	if timeout <= 0 {
		timeout = defaultScreenshotTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		repo:    cfg.Repo,
		kb:      cfg.Keyboard,
		version: cfg.Version,
		timeout: timeout,
		logger:  logger,
	}
}

// resolve runs one operation, converting errors and panics into Error
// envelopes so transports never see a raised fault.
func (d *Dispatcher) resolve(op string, fn func() (Envelope, error)) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", "op", op, "panic", r)
			env = FromError(Internal(op+" failed", fmt.Errorf("panic: %v", r)))
		}
	}()
	e, err := fn()
	if err != nil {
		d.logger.Warn("dispatch error", "op", op, "code", CodeOf(err), "error", err)
		return FromError(err)
	}
	return e
}

// Ping answers the liveness probe.
func (d *Dispatcher) Ping() Envelope {
	return Success("pong")
}

// GetVersion returns the portal version string.
func (d *Dispatcher) GetVersion() Envelope {
	return Success(d.version)
}

// GetTree returns the visible-element nodes, an empty array if none.
func (d *Dispatcher) GetTree() Envelope {
	return d.resolve("a11y_tree", func() (Envelope, error) {
		elements := d.repo.VisibleElements()
		if elements == nil {
			elements = []state.Element{}
		}
		return Success(elements), nil
	})
}

// GetTreeFull returns the full tree document.
func (d *Dispatcher) GetTreeFull(filterSmall bool) Envelope {
	return d.resolve("a11y_tree_full", func() (Envelope, error) {
		tree, ok := d.repo.FullTree(filterSmall)
		if !ok {
			return Envelope{}, NotFound("no active window found")
		}
		return Success(tree), nil
	})
}

// GetPhoneState returns the foreground-app summary.
func (d *Dispatcher) GetPhoneState() Envelope {
	return d.resolve("phone_state", func() (Envelope, error) {
		return Success(d.repo.PhoneState()), nil
	})
}

// GetState combines the visible tree and the phone state.
func (d *Dispatcher) GetState() Envelope {
	return d.resolve("state", func() (Envelope, error) {
		elements := d.repo.VisibleElements()
		if elements == nil {
			elements = []state.Element{}
		}
		return Success(map[string]any{
			"a11y_tree":   elements,
			"phone_state": d.repo.PhoneState(),
		}), nil
	})
}

// GetStateFull combines the full tree, phone state and device context.
func (d *Dispatcher) GetStateFull(filterSmall bool) Envelope {
	return d.resolve("state_full", func() (Envelope, error) {
		tree, ok := d.repo.FullTree(filterSmall)
		if !ok {
			return Envelope{}, NotFound("no active window found")
		}
		return Success(map[string]any{
			"a11y_tree":      tree,
			"phone_state":    d.repo.PhoneState(),
			"device_context": d.repo.DeviceContext(),
		}), nil
	})
}

// GetPackages returns the installed-package document. The document
// bypasses the envelope wrapper (Raw variant).
func (d *Dispatcher) GetPackages() Envelope {
	return d.resolve("packages", func() (Envelope, error) {
		packages, err := d.repo.InstalledPackages()
		if err != nil {
			return Envelope{}, Internal("failed to enumerate packages", err)
		}
		doc, err := json.Marshal(map[string]any{
			"status":   "success",
			"count":    len(packages),
			"packages": packages,
		})
		if err != nil {
			return Envelope{}, Internal("failed to encode package list", err)
		}
		return Raw(doc), nil
	})
}

// KeyboardInput injects base64-encoded text through the input method.
func (d *Dispatcher) KeyboardInput(base64Text string, clear bool) Envelope {
	return d.resolve("keyboard/input", func() (Envelope, error) {
		if !d.kb.Active() {
			return Envelope{}, Unavailable("no active input method")
		}
		if err := d.kb.InputText(base64Text, clear); err != nil {
			return Envelope{}, Internal("text input failed", err)
		}
		return Success("text input received"), nil
	})
}

// KeyboardClear empties the focused field.
func (d *Dispatcher) KeyboardClear() Envelope {
	return d.resolve("keyboard/clear", func() (Envelope, error) {
		if !d.kb.Active() {
			return Envelope{}, Unavailable("no active input method")
		}
		if !d.kb.HasConnection() {
			return Envelope{}, InvalidState("no active input connection")
		}
		if err := d.kb.Clear(); err != nil {
			return Envelope{}, Internal("clear failed", err)
		}
		return Success("text field cleared"), nil
	})
}

// KeyboardKey sends a raw key event.
func (d *Dispatcher) KeyboardKey(keyCode int) Envelope {
	return d.resolve("keyboard/key", func() (Envelope, error) {
		if !d.kb.Active() {
			return Envelope{}, Unavailable("no active input method")
		}
		if !d.kb.HasConnection() {
			return Envelope{}, InvalidState("no active input connection")
		}
		if err := d.kb.Key(keyCode); err != nil {
			return Envelope{}, Internal("key event failed", err)
		}
		return Success(fmt.Sprintf("key event %d sent", keyCode)), nil
	})
}

// SetOverlayOffset moves the overlay.
func (d *Dispatcher) SetOverlayOffset(px int) Envelope {
	return d.resolve("overlay_offset", func() (Envelope, error) {
		if !d.repo.SetOverlayOffset(px) {
			return Envelope{}, Internal(fmt.Sprintf("failed to set overlay offset to %d", px), nil)
		}
		return Success(fmt.Sprintf("overlay offset set to %d", px)), nil
	})
}

// SetOverlayVisible toggles overlay drawing.
func (d *Dispatcher) SetOverlayVisible(visible bool) Envelope {
	return d.resolve("overlay_visible", func() (Envelope, error) {
		if !d.repo.SetOverlayVisible(visible) {
			return Envelope{}, Internal(fmt.Sprintf("failed to set overlay visibility to %t", visible), nil)
		}
		return Success(fmt.Sprintf("overlay visibility set to %t", visible)), nil
	})
}

// SetSocketPort rebinds the broadcast listener.
func (d *Dispatcher) SetSocketPort(port int) Envelope {
	return d.resolve("socket_port", func() (Envelope, error) {
		if port < 1024 || port > 65535 {
			return Envelope{}, InvalidArgument("port %d outside allowed range 1024-65535", port)
		}
		if !d.repo.UpdateSocketPort(port) {
			return Envelope{}, Internal(fmt.Sprintf("failed to bind socket port %d", port), nil)
		}
		return Success(fmt.Sprintf("socket port set to %d", port)), nil
	})
}

// GetScreenshot captures the screen, bounded by the configured timeout.
// The capture keeps running on its own goroutine after a timeout; the
// dispatcher abandons only the wait, never blocking the caller past the
// bound.
func (d *Dispatcher) GetScreenshot(hideOverlay bool) Envelope {
	return d.resolve("screenshot", func() (Envelope, error) {
		pending := d.repo.TakeScreenshot(hideOverlay)
		timer := time.NewTimer(d.timeout)
		defer timer.Stop()

		select {
		case res, ok := <-pending:
			if !ok {
				return Envelope{}, Internal("screenshot capture abandoned by source", nil)
			}
			if res.Err != nil {
				return Envelope{}, Internal("screenshot capture failed", res.Err)
			}
			return Binary(res.PNG), nil
		case <-timer.C:
			return Envelope{}, Timeout("screenshot timed out after %s", d.timeout)
		}
	})
}

// Version returns the configured version string.
func (d *Dispatcher) Version() string { return d.version }
