package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 8080 || cfg.SocketPort != 8081 {
		t.Errorf("default ports = %d/%d", cfg.HTTPPort, cfg.SocketPort)
	}
	if cfg.BindAddr != "0.0.0.0" || cfg.LogLevel != "info" {
		t.Errorf("defaults = %q/%q", cfg.BindAddr, cfg.LogLevel)
	}
	if !cfg.Overlay.Visible {
		t.Error("overlay hidden by default")
	}
	if cfg.ScreenshotTimeoutSeconds != 5 {
		t.Errorf("screenshot timeout = %d", cfg.ScreenshotTimeoutSeconds)
	}
}

func TestLoadReadsFile(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, strings.Join([]string{
		"http_port: 9090",
		"socket_port: 9091",
		"auth_token: sekrit",
		"log_level: debug",
		"overlay:",
		"  offset: 42",
		"  visible: false",
	}, "\n"))

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 9090 || cfg.SocketPort != 9091 {
		t.Errorf("ports = %d/%d", cfg.HTTPPort, cfg.SocketPort)
	}
	if cfg.AuthToken != "sekrit" || cfg.LogLevel != "debug" {
		t.Errorf("auth/log = %q/%q", cfg.AuthToken, cfg.LogLevel)
	}
	if cfg.Overlay.Offset != 42 || cfg.Overlay.Visible {
		t.Errorf("overlay = %+v", cfg.Overlay)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "socket_port: 9091\nlog_level: warn\n")
	t.Setenv("DROIDPORTAL_SOCKET_PORT", "9555")
	t.Setenv("DROIDPORTAL_AUTH_TOKEN", "from-env")

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPort != 9555 {
		t.Errorf("socket port = %d", cfg.SocketPort)
	}
	if cfg.AuthToken != "from-env" {
		t.Errorf("auth token = %q", cfg.AuthToken)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestValidateRejectsBadPorts(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"privileged socket port", "socket_port: 80\n", "1024-65535"},
		{"port collision", "http_port: 9000\nsocket_port: 9000\n", "both set"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			home := t.TempDir()
			writeConfig(t, home, tc.body)
			_, err := LoadFrom(home)
			if err == nil {
				t.Fatal("bad config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestFingerprintTracksEffectiveChanges(t *testing.T) {
	a := defaultConfig()
	b := defaultConfig()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical configs fingerprint differently")
	}
	b.SocketPort = 9100
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("socket port change not reflected in fingerprint")
	}
}

func TestSetSocketPortPreservesOtherKeys(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "auth_token: keepme\nsocket_port: 8081\n")

	if err := SetSocketPort(home, 9200); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPort != 9200 {
		t.Errorf("socket port = %d", cfg.SocketPort)
	}
	if cfg.AuthToken != "keepme" {
		t.Errorf("auth token = %q, rewrite dropped other keys", cfg.AuthToken)
	}
}

func TestHomeDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DROIDPORTAL_HOME", dir)
	if got := HomeDir(); got != dir {
		t.Errorf("HomeDir() = %q, want %q", got, dir)
	}
}

func TestConfigPathJoinsHome(t *testing.T) {
	if got := ConfigPath("/x"); got != filepath.Join("/x", "config.yaml") {
		t.Errorf("ConfigPath = %q", got)
	}
}
