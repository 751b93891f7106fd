// Package device provides an in-memory stand-in for the on-device
// element-detection and capture engine, used by the binary when no real
// device integration is wired and by tests.
package device

import (
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/basket/droid-portal/internal/state"
)

// minimal valid 1x1 transparent PNG
var simPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

// Sim implements state.DeviceSource and state.Keyboard with deterministic
// data. All mutable fields are mutex-guarded; both transports may call in
// concurrently.
type Sim struct {
	mu sync.Mutex

	overlayOffset  int
	overlayVisible bool
	socketPort     int

	imeActive     bool
	imeConnected  bool
	typedText     []string
	keyCodes      []int
	clearCount    int
	hasWindow     bool
	captureDelay  time.Duration
	captureErr    error
	captureNever  bool
	overlayBroken bool
	packagesErr   error
}

// NewSim returns a simulator with an active IME, a live input connection
// and a small fixed element tree.
func NewSim() *Sim {
	return &Sim{
		overlayVisible: true,
		socketPort:     8081,
		imeActive:      true,
		imeConnected:   true,
		hasWindow:      true,
	}
}

// --- state.DeviceSource ---

func (s *Sim) VisibleElements() []state.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasWindow {
		return nil
	}
	return []state.Element{
		{
			Index:      0,
			ResourceID: "com.example.app:id/root",
			ClassName:  "android.widget.FrameLayout",
			Bounds:     state.Bounds{Right: 1080, Bottom: 2400}.String(),
			Children: []state.Element{
				{
					Index:      1,
					ResourceID: "com.example.app:id/search",
					ClassName:  "android.widget.EditText",
					Text:       "Search",
					Bounds:     state.Bounds{Left: 40, Top: 120, Right: 1040, Bottom: 220}.String(),
				},
				{
					Index:      2,
					ResourceID: "com.example.app:id/submit",
					ClassName:  "android.widget.Button",
					Text:       "Go",
					Bounds:     state.Bounds{Left: 880, Top: 260, Right: 1040, Bottom: 360}.String(),
				},
			},
		},
	}
}

func (s *Sim) FullTree(filterSmall bool) (map[string]any, bool) {
	s.mu.Lock()
	hasWindow := s.hasWindow
	s.mu.Unlock()
	if !hasWindow && filterSmall {
		return nil, false
	}
	if !hasWindow {
		// Unfiltered reads bypass the bounds-based exclusion but still
		// need a window to walk.
		return nil, false
	}
	return map[string]any{
		"packageName": "com.example.app",
		"className":   "android.widget.FrameLayout",
		"filtered":    filterSmall,
		"children":    s.VisibleElements(),
	}, true
}

func (s *Sim) PhoneState() state.PhoneState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := state.PhoneState{
		AppName:         "Example",
		PackageName:     "com.example.app",
		CurrentActivity: ".MainActivity",
		KeyboardVisible: s.imeActive,
		IsEditable:      s.imeConnected,
	}
	if s.hasWindow {
		ps.FocusedElement = &state.Element{
			Index:      1,
			ResourceID: "com.example.app:id/search",
			ClassName:  "android.widget.EditText",
			Text:       "Search",
			Bounds:     state.Bounds{Left: 40, Top: 120, Right: 1040, Bottom: 220}.String(),
		}
	}
	return ps
}

func (s *Sim) DeviceContext() map[string]any {
	return map[string]any{
		"model":      "sim-device",
		"sdkVersion": 34,
		"locale":     "en_US",
		"display":    map[string]any{"width": 1080, "height": 2400, "density": 2.75},
	}
}

func (s *Sim) ScreenBounds() state.Bounds {
	return state.Bounds{Right: 1080, Bottom: 2400}
}

func (s *Sim) InstalledPackages() ([]state.PackageInfo, error) {
	s.mu.Lock()
	err := s.packagesErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []state.PackageInfo{
		{Label: "Example", Package: "com.example.app"},
		{Label: "Settings", Package: "com.android.settings"},
	}, nil
}

func (s *Sim) SetOverlayOffset(px int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlayBroken {
		return false
	}
	s.overlayOffset = px
	return true
}

func (s *Sim) SetOverlayVisible(visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlayBroken {
		return false
	}
	s.overlayVisible = visible
	return true
}

func (s *Sim) TakeScreenshot(hideOverlay bool) <-chan state.CaptureResult {
	ch := make(chan state.CaptureResult, 1)
	s.mu.Lock()
	delay, err, never := s.captureDelay, s.captureErr, s.captureNever
	s.mu.Unlock()
	if never {
		return ch
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err != nil {
			ch <- state.CaptureResult{Err: err}
			return
		}
		ch <- state.CaptureResult{PNG: simPNG}
	}()
	return ch
}

func (s *Sim) UpdateSocketPort(port int) bool {
	if port < 1024 || port > 65535 {
		return false
	}
	s.mu.Lock()
	s.socketPort = port
	s.mu.Unlock()
	return true
}

// --- state.Keyboard ---

func (s *Sim) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imeActive
}

func (s *Sim) HasConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imeConnected
}

func (s *Sim) InputText(base64Text string, clear bool) error {
	decoded, err := base64.StdEncoding.DecodeString(base64Text)
	if err != nil {
		return errors.New("text is not valid base64")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if clear {
		s.typedText = nil
	}
	s.typedText = append(s.typedText, string(decoded))
	return nil
}

func (s *Sim) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typedText = nil
	s.clearCount++
	return nil
}

func (s *Sim) Key(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyCodes = append(s.keyCodes, code)
	return nil
}

// --- test knobs ---

// SetIME controls whether the input method reports active and connected.
func (s *Sim) SetIME(active, connected bool) {
	s.mu.Lock()
	s.imeActive, s.imeConnected = active, connected
	s.mu.Unlock()
}

// SetActiveWindow controls whether a foreground window exists.
func (s *Sim) SetActiveWindow(ok bool) {
	s.mu.Lock()
	s.hasWindow = ok
	s.mu.Unlock()
}

// SetCaptureDelay delays capture completion.
func (s *Sim) SetCaptureDelay(d time.Duration) {
	s.mu.Lock()
	s.captureDelay = d
	s.mu.Unlock()
}

// SetCaptureErr makes captures fail with err.
func (s *Sim) SetCaptureErr(err error) {
	s.mu.Lock()
	s.captureErr = err
	s.mu.Unlock()
}

// SetCaptureNever makes captures hang forever (the channel never yields).
func (s *Sim) SetCaptureNever(never bool) {
	s.mu.Lock()
	s.captureNever = never
	s.mu.Unlock()
}

// SetOverlayBroken makes overlay updates fail.
func (s *Sim) SetOverlayBroken(broken bool) {
	s.mu.Lock()
	s.overlayBroken = broken
	s.mu.Unlock()
}

// SetPackagesErr makes package enumeration fail.
func (s *Sim) SetPackagesErr(err error) {
	s.mu.Lock()
	s.packagesErr = err
	s.mu.Unlock()
}

// TypedText returns the injected text segments.
func (s *Sim) TypedText() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typedText...)
}

// KeyCodes returns the key events received.
func (s *Sim) KeyCodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.keyCodes...)
}

// OverlayState returns the current offset and visibility.
func (s *Sim) OverlayState() (offset int, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayOffset, s.overlayVisible
}

// SocketPort returns the last accepted port.
func (s *Sim) SocketPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketPort
}
