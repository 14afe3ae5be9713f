package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays D200_* variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if v, ok := lookup("D200_VID"); ok && v != "" {
		id, err := parseID(v)
		if err != nil {
			return fmt.Errorf("D200_VID: %w", err)
		}
		cfg.Device.VendorID = id
	}
	if v, ok := lookup("D200_PID"); ok && v != "" {
		id, err := parseID(v)
		if err != nil {
			return fmt.Errorf("D200_PID: %w", err)
		}
		cfg.Device.ProductID = id
	}
	strs := map[string]*string{
		"D200_DEVICE_PATH": &cfg.Device.Path,
		"D200_DEVICE_SOCK": &cfg.Device.Socket,
		"D200_PAGING_SOCK": &cfg.Paging.Socket,
		"D200_ROOT":        &cfg.Root,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("D200_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("D200_DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	return nil
}

// parseID accepts 0x-prefixed hex or decimal.
func parseID(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
