package d200

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Small window modes.
const (
	ModeStats      = 0
	ModeClock      = 1
	ModeBackground = 2
)

// SmallWindow is the state shown on the wide key.
type SmallWindow struct {
	Mode int
	CPU  int
	Mem  int
	GPU  int
	// Time is shown verbatim; the firmware expects HH:MM:SS.
	Time string
}

// ClockTime formats t the way the small window expects it.
func ClockTime(t time.Time) string {
	return t.Format("15:04:05")
}

// Encode renders the pipe delimited ASCII payload mode|cpu|mem|time|gpu.
func (s SmallWindow) Encode() []byte {
	tm := s.Time
	if tm == "" {
		tm = "00:00:00"
	}
	return []byte(fmt.Sprintf("%d|%d|%d|%s|%d", s.Mode, s.CPU, s.Mem, tm, s.GPU))
}

// ParseSmallWindow is the inverse of Encode.
func ParseSmallWindow(b []byte) (SmallWindow, error) {
	parts := strings.Split(string(b), "|")
	if len(parts) != 5 {
		return SmallWindow{}, fmt.Errorf("small window payload %q: want 5 fields", b)
	}
	var s SmallWindow
	var err error
	ints := []*int{&s.Mode, &s.CPU, &s.Mem, nil, &s.GPU}
	for i, dst := range ints {
		if dst == nil {
			s.Time = parts[i]
			continue
		}
		if *dst, err = strconv.Atoi(parts[i]); err != nil {
			return SmallWindow{}, fmt.Errorf("small window field %d: %w", i, err)
		}
	}
	return s, nil
}

// ClampBrightness limits v to 0..100.
func ClampBrightness(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// BrightnessPayload encodes a brightness percentage as ASCII decimal after
// clamping.
func BrightnessPayload(v int) []byte {
	return []byte(strconv.Itoa(ClampBrightness(v)))
}
