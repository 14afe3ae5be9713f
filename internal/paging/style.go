package paging

import "strconv"

// Preset hint names.
const (
	HintBackground = "icon_background_color"
	HintIconColor  = "icon_color"
	HintIconSize   = "icon_size"
	HintRadius     = "icon_border_radius"
	HintTextColor  = "text_color"
	HintTextSize   = "text_size"
)

// DefaultPreset is consulted after a button's own presets.
const DefaultPreset = "default"

// TileSize is the edge length of a rendered tile in pixels.
const TileSize = 196

// Style is a fully resolved set of render hints.
type Style struct {
	Background string
	IconColor  string
	IconSize   int
	Radius     int
	TextColor  string
	TextSize   int
}

// DefaultStyle fills hints no preset defines.
var DefaultStyle = Style{
	Background: "241f31",
	IconColor:  "FFFFFF",
	IconSize:   128,
	Radius:     12,
	TextColor:  "FFFFFF",
	TextSize:   16,
}

// ResolveStyle walks presets in order, then the default preset, and takes
// the first value seen for each hint.
func (c *Config) ResolveStyle(presets []string) Style {
	names := append(append([]string(nil), presets...), DefaultPreset)
	hint := func(key string) (string, bool) {
		for _, n := range names {
			if v, ok := c.Presets[n][key]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
	number := func(key string, lo, hi, def int) int {
		v, ok := hint(key)
		if !ok {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return clamp(n, lo, hi)
	}

	s := DefaultStyle
	if v, ok := hint(HintBackground); ok {
		s.Background = v
	}
	if v, ok := hint(HintIconColor); ok {
		s.IconColor = v
	}
	if v, ok := hint(HintTextColor); ok {
		s.TextColor = v
	}
	s.IconSize = number(HintIconSize, 1, TileSize, DefaultStyle.IconSize)
	s.Radius = number(HintRadius, 0, 50, DefaultStyle.Radius)
	s.TextSize = number(HintTextSize, 1, 64, DefaultStyle.TextSize)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
