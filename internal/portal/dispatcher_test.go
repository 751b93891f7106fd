package portal

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/basket/droid-portal/internal/device"
	"github.com/basket/droid-portal/internal/state"
)

func newTestDispatcher(t *testing.T, sim *device.Sim) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherConfig{
		Repo:              state.NewRepository(sim),
		Keyboard:          sim,
		Version:           "test-1.0",
		ScreenshotTimeout: 250 * time.Millisecond,
	})
}

func envelopeJSON(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return m
}

func TestDispatcher_Ping(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.Ping())
	if got["status"] != "success" || got["data"] != "pong" {
		t.Fatalf("ping = %v", got)
	}
}

func TestDispatcher_GetVersion(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.GetVersion())
	if got["data"] != "test-1.0" {
		t.Fatalf("version = %v", got)
	}
}

func TestDispatcher_GetTree(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.GetTree())
	nodes, ok := got["data"].([]any)
	if !ok || len(nodes) == 0 {
		t.Fatalf("tree data = %v", got["data"])
	}
	root := nodes[0].(map[string]any)
	if root["bounds"] != "0, 0, 1080, 2400" {
		t.Fatalf("root bounds = %v", root["bounds"])
	}
	if _, ok := root["children"]; !ok {
		t.Fatal("root must carry children")
	}
}

func TestDispatcher_GetTree_EmptyArrayWhenNone(t *testing.T) {
	sim := device.NewSim()
	sim.SetActiveWindow(false)
	d := newTestDispatcher(t, sim)
	b, _ := json.Marshal(d.GetTree())
	if !strings.Contains(string(b), `"data":[]`) {
		t.Fatalf("empty tree must serialize as [], got %s", b)
	}
}

func TestDispatcher_GetTreeFull_NoActiveWindow(t *testing.T) {
	sim := device.NewSim()
	sim.SetActiveWindow(false)
	d := newTestDispatcher(t, sim)

	env := d.GetTreeFull(true)
	if !env.IsError() {
		t.Fatal("expected error envelope")
	}
	if !strings.Contains(env.ErrorMessage(), "active window") {
		t.Fatalf("message = %q, want mention of active window", env.ErrorMessage())
	}
}

func TestDispatcher_GetState(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.GetState())
	data := got["data"].(map[string]any)
	if _, ok := data["a11y_tree"]; !ok {
		t.Fatal("missing a11y_tree")
	}
	if _, ok := data["phone_state"]; !ok {
		t.Fatal("missing phone_state")
	}
	if _, ok := data["device_context"]; ok {
		t.Fatal("getState must not include device_context")
	}
}

func TestDispatcher_GetStateFull(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.GetStateFull(true))
	data := got["data"].(map[string]any)
	for _, key := range []string{"a11y_tree", "phone_state", "device_context"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("missing %s", key)
		}
	}
}

func TestDispatcher_GetPackages_RawDocument(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	got := envelopeJSON(t, d.GetPackages())
	if got["status"] != "success" {
		t.Fatalf("status = %v", got["status"])
	}
	if got["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", got["count"])
	}
	if _, ok := got["data"]; ok {
		t.Fatal("raw document must not be wrapped under data")
	}
}

func TestDispatcher_GetPackages_EnumerationFailure(t *testing.T) {
	sim := device.NewSim()
	sim.SetPackagesErr(errors.New("pm is gone"))
	d := newTestDispatcher(t, sim)
	env := d.GetPackages()
	if !env.IsError() {
		t.Fatal("expected error envelope")
	}
	if !strings.Contains(env.ErrorMessage(), "pm is gone") {
		t.Fatalf("message = %q, want cause included", env.ErrorMessage())
	}
}

func TestDispatcher_KeyboardInput(t *testing.T) {
	sim := device.NewSim()
	d := newTestDispatcher(t, sim)

	text := base64.StdEncoding.EncodeToString([]byte("hello"))
	env := d.KeyboardInput(text, true)
	if env.IsError() {
		t.Fatalf("input failed: %s", env.ErrorMessage())
	}
	if typed := sim.TypedText(); len(typed) != 1 || typed[0] != "hello" {
		t.Fatalf("typed = %v", typed)
	}
}

func TestDispatcher_KeyboardInput_NoIME(t *testing.T) {
	sim := device.NewSim()
	sim.SetIME(false, false)
	d := newTestDispatcher(t, sim)

	env := d.KeyboardInput("aGk=", true)
	if !env.IsError() || !strings.Contains(env.ErrorMessage(), "input method") {
		t.Fatalf("env = %v / %q", env.IsError(), env.ErrorMessage())
	}
}

func TestDispatcher_KeyboardClear_NoConnection(t *testing.T) {
	sim := device.NewSim()
	sim.SetIME(true, false)
	d := newTestDispatcher(t, sim)

	env := d.KeyboardClear()
	if !env.IsError() || !strings.Contains(env.ErrorMessage(), "input connection") {
		t.Fatalf("env = %v / %q", env.IsError(), env.ErrorMessage())
	}
}

func TestDispatcher_KeyboardKey(t *testing.T) {
	sim := device.NewSim()
	d := newTestDispatcher(t, sim)

	env := d.KeyboardKey(66)
	if env.IsError() {
		t.Fatalf("key failed: %s", env.ErrorMessage())
	}
	got := envelopeJSON(t, env)
	if !strings.Contains(got["data"].(string), "66") {
		t.Fatalf("confirmation must echo the code, got %v", got["data"])
	}
	if codes := sim.KeyCodes(); len(codes) != 1 || codes[0] != 66 {
		t.Fatalf("codes = %v", codes)
	}
}

func TestDispatcher_SetOverlayOffset(t *testing.T) {
	sim := device.NewSim()
	d := newTestDispatcher(t, sim)

	env := d.SetOverlayOffset(-32)
	if env.IsError() {
		t.Fatalf("offset failed: %s", env.ErrorMessage())
	}
	if offset, _ := sim.OverlayState(); offset != -32 {
		t.Fatalf("offset = %d, want -32", offset)
	}

	sim.SetOverlayBroken(true)
	if env := d.SetOverlayOffset(10); !env.IsError() {
		t.Fatal("broken overlay must yield an error")
	}
}

func TestDispatcher_SetSocketPort(t *testing.T) {
	sim := device.NewSim()
	d := newTestDispatcher(t, sim)

	env := d.SetSocketPort(9000)
	if env.IsError() {
		t.Fatalf("port update failed: %s", env.ErrorMessage())
	}
	got := envelopeJSON(t, env)
	if !strings.Contains(got["data"].(string), "9000") {
		t.Fatalf("confirmation must echo the port, got %v", got["data"])
	}

	for _, bad := range []int{0, 80, 1023, 65536, -1} {
		if env := d.SetSocketPort(bad); !env.IsError() {
			t.Fatalf("port %d must be rejected", bad)
		}
	}
}

func TestDispatcher_GetScreenshot(t *testing.T) {
	d := newTestDispatcher(t, device.NewSim())
	env := d.GetScreenshot(true)
	if env.IsError() {
		t.Fatalf("screenshot failed: %s", env.ErrorMessage())
	}
	if len(env.Bytes()) == 0 {
		t.Fatal("expected PNG bytes")
	}
}

func TestDispatcher_GetScreenshot_Timeout(t *testing.T) {
	sim := device.NewSim()
	sim.SetCaptureNever(true)
	d := newTestDispatcher(t, sim)

	start := time.Now()
	env := d.GetScreenshot(false)
	elapsed := time.Since(start)

	if !env.IsError() || !strings.Contains(env.ErrorMessage(), "timed out") {
		t.Fatalf("env = %v / %q", env.IsError(), env.ErrorMessage())
	}
	if elapsed < 250*time.Millisecond || elapsed > 450*time.Millisecond {
		t.Fatalf("elapsed = %s, want near the 250ms bound", elapsed)
	}
}

func TestDispatcher_GetScreenshot_CaptureFailure(t *testing.T) {
	sim := device.NewSim()
	sim.SetCaptureErr(errors.New("no media projection"))
	d := newTestDispatcher(t, sim)

	env := d.GetScreenshot(false)
	if !env.IsError() || !strings.Contains(env.ErrorMessage(), "no media projection") {
		t.Fatalf("env = %v / %q", env.IsError(), env.ErrorMessage())
	}
}

type panickySource struct {
	*device.Sim
}

func (p panickySource) PhoneState() state.PhoneState {
	panic("collaborator exploded")
}

func TestDispatcher_PanicIsFoldedToError(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Repo:     state.NewRepository(panickySource{device.NewSim()}),
		Keyboard: device.NewSim(),
	})
	env := d.GetPhoneState()
	if !env.IsError() {
		t.Fatal("panic must surface as an error envelope")
	}
	if !strings.Contains(env.ErrorMessage(), "collaborator exploded") {
		t.Fatalf("message = %q", env.ErrorMessage())
	}
}
