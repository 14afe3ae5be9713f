// Package classifier turns raw press/release transitions into TAP, HOLD and
// RELEASE gestures based on how long a key was held.
package classifier

import (
	"fmt"
	"time"

	"github.com/seagrayinc/d200deck/pkg/d200"
)

const (
	HoldThreshold = 750 * time.Millisecond
	TapThreshold  = 20 * time.Millisecond
)

type Kind int

const (
	Tap Kind = iota + 1
	Hold
	Release
)

func (k Kind) String() string {
	switch k {
	case Tap:
		return "TAP"
	case Hold:
		return "HOLD"
	case Release:
		return "RELEASE"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the wire names TAP, HOLD and RELEASE.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "TAP":
		return Tap, nil
	case "HOLD":
		return Hold, nil
	case "RELEASE":
		return Release, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is a classified gesture. Button is 1-based.
type Event struct {
	Button int
	Kind   Kind
}

func (e Event) String() string {
	return fmt.Sprintf("button %d %s", e.Button, e.Kind)
}

// Signal is one raw transition read from the device.
type Signal struct {
	Index   int
	Pressed bool
	State   byte
	At      time.Time
}

type session struct {
	open          bool
	down          time.Time
	holdEmitted   bool
	tapStillValid bool
}

// Classifier holds one press session per key. It is not safe for concurrent
// use; the poll loop owns it.
type Classifier struct {
	Hold time.Duration
	Tap  time.Duration

	sessions [d200.ButtonCount]session
}

func New() *Classifier {
	return &Classifier{Hold: HoldThreshold, Tap: TapThreshold}
}

// Feed applies one transition and returns the events it produces.
func (c *Classifier) Feed(s Signal) []Event {
	if s.Index < 0 || s.Index >= d200.ButtonCount {
		return nil
	}
	ss := &c.sessions[s.Index]
	button := s.Index + 1

	if s.Pressed {
		if !ss.open {
			*ss = session{open: true, down: s.At, tapStillValid: true}
		}
		return nil
	}

	// release without a recorded press: nothing to classify
	if !ss.open {
		return nil
	}

	elapsed := s.At.Sub(ss.down)
	var out []Event
	switch {
	case elapsed < c.Tap:
		out = append(out, Event{button, Tap}, Event{button, Release})
	case elapsed >= c.Hold:
		if !ss.holdEmitted {
			out = append(out, Event{button, Hold})
		}
		out = append(out, Event{button, Release})
	default:
		out = append(out, Event{button, Tap}, Event{button, Release})
	}
	*ss = session{}
	return out
}

// Tick emits HOLD for keys held past the threshold. Call it on every poll
// timeout.
func (c *Classifier) Tick(now time.Time) []Event {
	var out []Event
	for i := range c.sessions {
		ss := &c.sessions[i]
		if !ss.open || ss.holdEmitted {
			continue
		}
		if now.Sub(ss.down) >= c.Hold {
			ss.holdEmitted = true
			ss.tapStillValid = false
			out = append(out, Event{i + 1, Hold})
		}
	}
	return out
}

// Pressed reports whether a session is open for the 0-based index.
func (c *Classifier) Pressed(index int) bool {
	if index < 0 || index >= d200.ButtonCount {
		return false
	}
	return c.sessions[index].open
}

// Reset drops every open session, e.g. after the device went away.
func (c *Classifier) Reset() {
	c.sessions = [d200.ButtonCount]session{}
}
