// Package config holds the settings shared by the deck daemons. Settings come
// from an optional YAML file, then D200_* environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seagrayinc/d200deck/pkg/d200"
)

const (
	DefaultDeviceSocket = "/tmp/ulanzi_device.sock"
	DefaultPagingSocket = "/tmp/goofydeck_paging.sock"
)

type Config struct {
	// Root resolves every relative path below. Empty means the working
	// directory.
	Root      string          `yaml:"root"`
	Debug     bool            `yaml:"debug"`
	Device    DeviceConfig    `yaml:"device"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Paging    PagingConfig    `yaml:"paging"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	// Path opens a specific hidraw node instead of enumerating.
	Path   string `yaml:"path"`
	Socket string `yaml:"socket"`

	PollTimeoutMs int `yaml:"poll_timeout_ms"`
	KeepAliveMs   int `yaml:"keepalive_ms"`
	ReopenMs      int `yaml:"reopen_ms"`
}

// ---- FORWARDER ----

type ForwarderConfig struct {
	DebounceMs       int `yaml:"debounce_ms"`
	ForwardTimeoutMs int `yaml:"forward_timeout_ms"`
	ReconnectMs      int `yaml:"reconnect_ms"`
}

// ---- PAGING ----

type PagingConfig struct {
	Socket    string `yaml:"socket"`
	Dump      string `yaml:"dump"`
	StateDir  string `yaml:"state_dir"`
	CacheDir  string `yaml:"cache_dir"`
	ToolsDir  string `yaml:"tools_dir"`
	IconDir   string `yaml:"icon_dir"`
	BlankIcon string `yaml:"blank_icon"`
	ErrorIcon string `yaml:"error_icon"`

	ActionDebounceMs int `yaml:"action_debounce_ms"`
	RenderTimeoutMs  int `yaml:"render_timeout_ms"`
	SendTimeoutMs    int `yaml:"send_timeout_ms"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:      d200.VendorID,
			ProductID:     d200.ProductID,
			Socket:        DefaultDeviceSocket,
			PollTimeoutMs: 500,
			KeepAliveMs:   2000,
			ReopenMs:      500,
		},
		Forwarder: ForwarderConfig{
			DebounceMs:       150,
			ForwardTimeoutMs: 2000,
			ReconnectMs:      1000,
		},
		Paging: PagingConfig{
			Socket:           DefaultPagingSocket,
			Dump:             "config/pages.tsv",
			StateDir:         ".state",
			CacheDir:         ".cache",
			ToolsDir:         "icons",
			IconDir:          ".",
			BlankIcon:        "assets/pregen/blank.png",
			ErrorIcon:        "assets/pregen/error.png",
			ActionDebounceMs: 250,
			RenderTimeoutMs:  10000,
			SendTimeoutMs:    5000,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve runs the whole pipeline: Load, ApplyEnv, Validate, Normalize.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (d DeviceConfig) PollTimeout() time.Duration { return ms(d.PollTimeoutMs) }
func (d DeviceConfig) KeepAlive() time.Duration { return ms(d.KeepAliveMs) }
func (d DeviceConfig) ReopenInterval() time.Duration { return ms(d.ReopenMs) }
func (f ForwarderConfig) Debounce() time.Duration { return ms(f.DebounceMs) }
func (f ForwarderConfig) ForwardTimeout() time.Duration { return ms(f.ForwardTimeoutMs) }
func (f ForwarderConfig) ReconnectDelay() time.Duration { return ms(f.ReconnectMs) }
func (p PagingConfig) ActionDebounce() time.Duration { return ms(p.ActionDebounceMs) }
func (p PagingConfig) RenderTimeout() time.Duration { return ms(p.RenderTimeoutMs) }
func (p PagingConfig) SendTimeout() time.Duration { return ms(p.SendTimeoutMs) }
