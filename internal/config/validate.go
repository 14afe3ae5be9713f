package config

import (
	"errors"
	"fmt"
)

// Validate checks settings without changing them.
func Validate(cfg *Config) error {
	if cfg.Device.VendorID == 0 || cfg.Device.ProductID == 0 {
		return errors.New("device: vendor_id and product_id must be set")
	}
	if cfg.Device.Socket == "" {
		return errors.New("device: socket must be set")
	}
	if cfg.Paging.Socket == "" {
		return errors.New("paging: socket must be set")
	}
	if cfg.Device.Socket == cfg.Paging.Socket {
		return fmt.Errorf("device and paging share socket %q", cfg.Device.Socket)
	}

	positive := map[string]int{
		"device.poll_timeout_ms":       cfg.Device.PollTimeoutMs,
		"device.keepalive_ms":          cfg.Device.KeepAliveMs,
		"device.reopen_ms":             cfg.Device.ReopenMs,
		"forwarder.forward_timeout_ms": cfg.Forwarder.ForwardTimeoutMs,
		"forwarder.reconnect_ms":       cfg.Forwarder.ReconnectMs,
		"paging.render_timeout_ms":     cfg.Paging.RenderTimeoutMs,
		"paging.send_timeout_ms":       cfg.Paging.SendTimeoutMs,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if cfg.Forwarder.DebounceMs < 0 {
		return fmt.Errorf("forwarder.debounce_ms must not be negative")
	}
	if cfg.Paging.ActionDebounceMs < 0 {
		return fmt.Errorf("paging.action_debounce_ms must not be negative")
	}
	// the keep-alive must fire before the device idles its input reports
	if cfg.Device.KeepAliveMs < cfg.Device.PollTimeoutMs {
		return fmt.Errorf("device.keepalive_ms (%d) is shorter than poll_timeout_ms (%d)", cfg.Device.KeepAliveMs, cfg.Device.PollTimeoutMs)
	}
	if cfg.Paging.Dump == "" {
		return errors.New("paging: dump must be set")
	}
	return nil
}
