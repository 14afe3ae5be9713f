package paging

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/seagrayinc/d200deck/internal/classifier"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidButton  = errors.New("invalid button")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrUnknownPage    = errors.New("unknown page")
)

// Command is one parsed paging request.
type Command interface {
	command()
}

type Press struct {
	Button int
	Kind   classifier.Kind
}

type Go struct {
	Page string
}

type Render struct{}

type State struct{}

func (Press) command()  {}
func (Go) command()     {}
func (Render) command() {}
func (State) command()  {}

// ParseCommand parses one request line.
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}
	switch f[0] {
	case "press":
		if len(f) != 3 {
			return nil, fmt.Errorf("%w: press wants <button> <kind>", ErrInvalidCommand)
		}
		n, err := strconv.Atoi(f[1])
		if err != nil || n < 1 || n > d200.TileButtons {
			return nil, fmt.Errorf("%w: %q", ErrInvalidButton, f[1])
		}
		k, err := classifier.ParseKind(f[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEvent, f[2])
		}
		return Press{Button: n, Kind: k}, nil
	case "go":
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: go wants a page", ErrInvalidCommand)
		}
		return Go{Page: f[1]}, nil
	case "render":
		return Render{}, nil
	case "state":
		return State{}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, f[0])
}
