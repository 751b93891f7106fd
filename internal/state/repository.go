// Package state presents the narrow seam between the dispatcher and the
// externally owned device-state source. Nothing here caches: every call
// re-reads fresh collaborator state.
package state

// DeviceSource is the external element-detection and capture engine. It
// is assumed internally consistent for single reads.
type DeviceSource interface {
	// VisibleElements returns the current interactive-element list, empty
	// if none.
	VisibleElements() []Element

	// FullTree returns the full accessibility tree document; ok is false
	// when no active window exists or the root is excluded by filtering.
	FullTree(filterSmall bool) (map[string]any, bool)

	// PhoneState returns the current foreground-app summary.
	PhoneState() PhoneState

	// DeviceContext returns device metadata (model, display, locale, ...).
	DeviceContext() map[string]any

	// ScreenBounds returns the display rectangle.
	ScreenBounds() Bounds

	// InstalledPackages enumerates launchable packages.
	InstalledPackages() ([]PackageInfo, error)

	// SetOverlayOffset moves the overlay by px; false when the update
	// could not be applied.
	SetOverlayOffset(px int) bool

	// SetOverlayVisible toggles overlay drawing; false on failure.
	SetOverlayVisible(visible bool) bool

	// TakeScreenshot starts an asynchronous capture and returns the
	// channel the result arrives on. A closed channel without a value
	// means the capture was abandoned by the source.
	TakeScreenshot(hideOverlay bool) <-chan CaptureResult

	// UpdateSocketPort rebinds the broadcast listener; false when the
	// port is invalid or the bind fails.
	UpdateSocketPort(port int) bool
}

// Keyboard is the input-method text-injection seam.
type Keyboard interface {
	// Active reports whether the input method is currently active.
	Active() bool

	// HasConnection reports whether a live input connection exists.
	HasConnection() bool

	// InputText injects base64-encoded text, optionally clearing the
	// field first.
	InputText(base64Text string, clear bool) error

	// Clear empties the focused field.
	Clear() error

	// Key sends a raw key event.
	Key(code int) error
}

// Repository is the mockable facade the dispatcher reads device state
// through. Every method is a direct delegation.
type Repository struct {
	src DeviceSource
}

// NewRepository wraps a device source.
func NewRepository(src DeviceSource) *Repository {
	return &Repository{src: src}
}

func (r *Repository) VisibleElements() []Element { return r.src.VisibleElements() }

func (r *Repository) FullTree(filterSmall bool) (map[string]any, bool) {
	return r.src.FullTree(filterSmall)
}

func (r *Repository) PhoneState() PhoneState { return r.src.PhoneState() }

func (r *Repository) DeviceContext() map[string]any { return r.src.DeviceContext() }

func (r *Repository) ScreenBounds() Bounds { return r.src.ScreenBounds() }

func (r *Repository) InstalledPackages() ([]PackageInfo, error) {
	return r.src.InstalledPackages()
}

func (r *Repository) SetOverlayOffset(px int) bool { return r.src.SetOverlayOffset(px) }

func (r *Repository) SetOverlayVisible(visible bool) bool {
	return r.src.SetOverlayVisible(visible)
}

func (r *Repository) TakeScreenshot(hideOverlay bool) <-chan CaptureResult {
	return r.src.TakeScreenshot(hideOverlay)
}

func (r *Repository) UpdateSocketPort(port int) bool { return r.src.UpdateSocketPort(port) }
