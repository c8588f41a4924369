package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Path != filepath.Join(dir, constants.DefaultCacheFile) {
		t.Errorf("cache path = %s", cfg.Cache.Path)
	}
	if cfg.Sync.RefreshDelay.Duration != constants.DefaultRefreshDelay {
		t.Errorf("refresh delay = %v", cfg.Sync.RefreshDelay)
	}
	if cfg.Sync.RemoteTimeout.Duration != constants.DefaultRemoteTimeout {
		t.Errorf("remote timeout = %v", cfg.Sync.RemoteTimeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[cache]
path = "/tmp/focusup-test.db"

[remote]
connection = "postgres://me@db.example.com/focusup"

[sync]
refresh_delay = "250ms"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Path != "/tmp/focusup-test.db" {
		t.Errorf("cache path = %s", cfg.Cache.Path)
	}
	if cfg.Sync.RefreshDelay.Duration != 250*time.Millisecond {
		t.Errorf("refresh delay = %v", cfg.Sync.RefreshDelay)
	}
	// Unset keys keep their defaults
	if cfg.Sync.RemoteTimeout.Duration != constants.DefaultRemoteTimeout {
		t.Errorf("remote timeout = %v", cfg.Sync.RemoteTimeout)
	}
	if cfg.Remote.Connection != "postgres://me@db.example.com/focusup" {
		t.Errorf("connection = %s", cfg.Remote.Connection)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[cache\npath = 1", "failed to parse"},
		{"unknown key", "[sync]\nrefresh = \"1s\"", "unknown config keys"},
		{"bad duration", "[sync]\nremote_timeout = \"soon\"", "failed to parse"},
		{"negative duration", "[sync]\nremote_timeout = \"-1s\"", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default(filepath.Dir(path))
	cfg.Sync.RefreshDelay = Duration{3 * time.Second}
	cfg.Remote.Disabled = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestConnectionPrecedence(t *testing.T) {
	env := func(v string) func(string) string {
		return func(key string) string {
			if key == EnvConnection {
				return v
			}
			return ""
		}
	}
	keyring := func(v string, err error) func() (string, error) {
		return func() (string, error) { return v, err }
	}

	tests := []struct {
		name       string
		cfg        Config
		env        string
		keyring    func() (string, error)
		want       string
		wantSource ConnectionSource
	}{
		{"env wins", Config{Remote: RemoteConfig{Connection: "file"}}, "env", keyring("ring", nil), "env", SourceEnv},
		{"file before keyring", Config{Remote: RemoteConfig{Connection: "file"}}, "", keyring("ring", nil), "file", SourceFile},
		{"keyring fallback", Config{}, "", keyring(" ring ", nil), "ring", SourceKeyring},
		{"keyring error", Config{}, "", keyring("", errors.New("locked")), "", SourceNone},
		{"no keyring", Config{}, "", nil, "", SourceNone},
		{"disabled", Config{Remote: RemoteConfig{Connection: "file", Disabled: true}}, "env", keyring("ring", nil), "", SourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := tt.cfg.Connection(env(tt.env), tt.keyring)
			if got != tt.want || src != tt.wantSource {
				t.Errorf("Connection() = %q, %q; want %q, %q", got, src, tt.want, tt.wantSource)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/.config/focusup")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, ".config/focusup") {
		t.Errorf("ExpandPath = %s", got)
	}
	if got, _ := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
}
