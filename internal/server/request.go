package server

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/seagrayinc/d200deck/pkg/d200"
)

// ErrInvalidCommand is returned for lines that do not parse.
var ErrInvalidCommand = errors.New("invalid command")

// Request is one parsed command line. The concrete types below are the only
// implementations.
type Request interface {
	request()
}

type Ping struct{}

// SetButtons replaces (or, when Partial, updates) key images. Keys are
// 1-based button numbers.
type SetButtons struct {
	Partial bool
	Buttons map[int]string
	Labels  map[int]string
}

// SetZip sends a ready-made button archive after repacking it.
type SetZip struct {
	Path string
}

type SetBrightness struct {
	// Value is already clamped to 0..100.
	Value int
}

type SetSmallWindow struct {
	Window d200.SmallWindow
	// TimeSet is false when the caller left the time for the server to fill.
	TimeSet bool
}

type SetLabelStyle struct {
	Path string
}

type ReadButtons struct{}

func (Ping) request()           {}
func (SetButtons) request()     {}
func (SetZip) request()         {}
func (SetBrightness) request()  {}
func (SetSmallWindow) request() {}
func (SetLabelStyle) request()  {}
func (ReadButtons) request()    {}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// ParseRequest parses one command line.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, invalid("empty line")
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "ping":
		return Ping{}, nil
	case "read-buttons":
		return ReadButtons{}, nil
	case "set-brightness":
		if len(args) != 1 {
			return nil, invalid("set-brightness wants one value")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, invalid("brightness %q", args[0])
		}
		return SetBrightness{Value: d200.ClampBrightness(v)}, nil
	case "set-label-style":
		if len(args) != 1 {
			return nil, invalid("set-label-style wants a path")
		}
		return SetLabelStyle{Path: args[0]}, nil
	case "set-small-window":
		return parseSmallWindow(args)
	case "set-buttons":
		if len(args) != 1 {
			return nil, invalid("set-buttons wants a zip path")
		}
		return SetZip{Path: args[0]}, nil
	case "set-buttons-explicit", "set-buttons-explicit-14":
		return parseButtons(args, false)
	case "set-partial-explicit":
		return parseButtons(args, true)
	}
	return nil, invalid("unknown command %q", name)
}

func parseButtons(args []string, partial bool) (Request, error) {
	fs := flag.NewFlagSet("set-buttons", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	paths := make([]*string, d200.ButtonCount+1)
	labels := make([]*string, d200.ButtonCount+1)
	for n := 1; n <= d200.ButtonCount; n++ {
		paths[n] = fs.String(fmt.Sprintf("button-%d", n), "", "")
		labels[n] = fs.String(fmt.Sprintf("label-%d", n), "", "")
	}
	if err := fs.Parse(args); err != nil {
		return nil, invalid("%v", err)
	}
	if fs.NArg() > 0 {
		return nil, invalid("unexpected argument %q", fs.Arg(0))
	}

	req := SetButtons{Partial: partial, Buttons: map[int]string{}, Labels: map[int]string{}}
	for n := 1; n <= d200.ButtonCount; n++ {
		if *paths[n] != "" {
			req.Buttons[n] = *paths[n]
		}
		// the wide key has no label slot
		if *labels[n] != "" && n < d200.ButtonCount {
			req.Labels[n] = *labels[n]
		}
	}
	if len(req.Buttons) == 0 {
		return nil, invalid("no --button-N given")
	}
	return req, nil
}

func parseSmallWindow(args []string) (Request, error) {
	req := SetSmallWindow{Window: d200.SmallWindow{Mode: d200.ModeClock}}

	// legacy positional form: <mode> <cpu> <mem> <time> <gpu>
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if len(args) != 5 {
			return nil, invalid("set-small-window wants mode cpu mem time gpu")
		}
		w, err := d200.ParseSmallWindow([]byte(strings.Join(args, "|")))
		if err != nil {
			return nil, invalid("%v", err)
		}
		return SetSmallWindow{Window: w, TimeSet: true}, nil
	}

	fs := flag.NewFlagSet("set-small-window", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&req.Window.Mode, "mode", d200.ModeClock, "")
	fs.IntVar(&req.Window.CPU, "cpu", 0, "")
	fs.IntVar(&req.Window.Mem, "mem", 0, "")
	fs.IntVar(&req.Window.GPU, "gpu", 0, "")
	fs.StringVar(&req.Window.Time, "time", "", "")
	if err := fs.Parse(args); err != nil {
		return nil, invalid("%v", err)
	}
	if fs.NArg() > 0 {
		return nil, invalid("unexpected argument %q", fs.Arg(0))
	}
	if req.Window.Mode < d200.ModeStats || req.Window.Mode > d200.ModeBackground {
		return nil, invalid("mode %d", req.Window.Mode)
	}
	if strings.Contains(req.Window.Time, "|") {
		return nil, invalid("time %q", req.Window.Time)
	}
	req.TimeSet = req.Window.Time != ""
	return req, nil
}
