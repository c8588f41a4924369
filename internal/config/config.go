// Package config loads the focusup TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
)

// EnvConnection overrides the remote connection string from the file and the keyring.
const EnvConnection = "FOCUSUP_DB_CONNECTION"

// Duration is a time.Duration written as "1.5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %q must not be negative", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Cache  CacheConfig  `toml:"cache"`
	Remote RemoteConfig `toml:"remote"`
	Sync   SyncConfig   `toml:"sync"`
	Server ServerConfig `toml:"server"`
}

type CacheConfig struct {
	Path string `toml:"path"`
}

type RemoteConfig struct {
	// Connection is a PostgreSQL URI or DSN without a password. Empty falls back to the keyring.
	Connection string `toml:"connection,omitempty"`
	// Disabled runs cache-only even when a connection string is available.
	Disabled bool `toml:"disabled,omitempty"`
}

type SyncConfig struct {
	RefreshDelay  Duration `toml:"refresh_delay"`
	RemoteTimeout Duration `toml:"remote_timeout"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file exists. dir is the config directory.
func Default(dir string) Config {
	return Config{
		Cache: CacheConfig{Path: filepath.Join(dir, constants.DefaultCacheFile)},
		Sync: SyncConfig{
			RefreshDelay:  Duration{constants.DefaultRefreshDelay},
			RemoteTimeout: Duration{constants.DefaultRemoteTimeout},
		},
		Server: ServerConfig{Addr: "127.0.0.1:7420"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default(filepath.Dir(path))

	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if cfg.Cache.Path, err = ExpandPath(cfg.Cache.Path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ConnectionSource names where a connection string came from.
type ConnectionSource string

const (
	SourceNone    ConnectionSource = ""
	SourceEnv     ConnectionSource = "environment"
	SourceFile    ConnectionSource = "config file"
	SourceKeyring ConnectionSource = "keyring"
)

// Connection picks the remote connection string: environment, then config
// file, then keyring. An empty result means cache-only operation.
func (c Config) Connection(getenv func(string) string, fromKeyring func() (string, error)) (string, ConnectionSource) {
	if c.Remote.Disabled {
		return "", SourceNone
	}
	if v := strings.TrimSpace(getenv(EnvConnection)); v != "" {
		return v, SourceEnv
	}
	if v := strings.TrimSpace(c.Remote.Connection); v != "" {
		return v, SourceFile
	}
	if fromKeyring != nil {
		if v, err := fromKeyring(); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), SourceKeyring
		}
	}
	return "", SourceNone
}

// ExpandPath resolves a leading "~/" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
