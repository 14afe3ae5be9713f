package paging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seagrayinc/d200deck/pkg/d200"
)

// ErrConfigInvalid is returned for a missing or unparseable config dump.
var ErrConfigInvalid = errors.New("config invalid")

const (
	// RootPage is the page shown at startup and after history runs out.
	RootPage = "$root"

	ActionBack     = "$page.back"
	ActionPrevious = "$page.previous"
	ActionNext     = "$page.next"
)

// Button is one configured slot on a page.
type Button struct {
	Slot    int
	Label   string
	Icon    string
	Presets []string
}

type Page struct {
	Name    string
	Buttons map[int]Button
}

// SystemSlots binds navigation actions to 1-based slots.
type SystemSlots struct {
	Back     int
	Previous int
	Next     int
}

// Action returns the navigation action bound to slot, or "".
func (s SystemSlots) Action(slot int) string {
	switch slot {
	case s.Back:
		return ActionBack
	case s.Previous:
		return ActionPrevious
	case s.Next:
		return ActionNext
	}
	return ""
}

// Preset maps hint names to raw values.
type Preset map[string]string

// Config is one parsed snapshot of the dump.
type Config struct {
	// Order lists page names as they appear, RootPage first.
	Order   []string
	Pages   map[string]*Page
	Presets map[string]Preset
	System  SystemSlots
}

// Page returns the named page.
func (c *Config) Page(name string) (*Page, bool) {
	p, ok := c.Pages[name]
	return p, ok
}

func (c *Config) addPage(name string) *Page {
	if p, ok := c.Pages[name]; ok {
		return p
	}
	p := &Page{Name: name, Buttons: map[int]Button{}}
	c.Pages[name] = p
	c.Order = append(c.Order, name)
	return p
}

func parseSlot(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > d200.TileButtons {
		return 0, fmt.Errorf("slot %q out of range 1..%d", s, d200.TileButtons)
	}
	return n, nil
}

// ParseDump reads the tab separated PAGE / BTN / SYS / PRESET records.
func ParseDump(r io.Reader) (*Config, error) {
	cfg := &Config{
		Pages:   map[string]*Page{},
		Presets: map[string]Preset{},
		System:  SystemSlots{Back: 11, Previous: 12, Next: 13},
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Split(line, "\t")
		if err := cfg.apply(f); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrConfigInvalid, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	if _, ok := cfg.Pages[RootPage]; !ok {
		cfg.Pages[RootPage] = &Page{Name: RootPage, Buttons: map[int]Button{}}
	}
	order := []string{RootPage}
	for _, name := range cfg.Order {
		if name != RootPage {
			order = append(order, name)
		}
	}
	cfg.Order = order
	return cfg, nil
}

func (c *Config) apply(f []string) error {
	switch f[0] {
	case "PAGE":
		if len(f) != 2 || f[1] == "" {
			return errors.New("PAGE wants a name")
		}
		c.addPage(f[1])
	case "BTN":
		if len(f) < 4 || len(f) > 6 {
			return fmt.Errorf("BTN wants 4 to 6 fields, got %d", len(f))
		}
		slot, err := parseSlot(f[2])
		if err != nil {
			return err
		}
		for len(f) < 6 {
			f = append(f, "")
		}
		b := Button{Slot: slot, Label: f[3], Icon: f[4]}
		for _, p := range strings.Split(f[5], ",") {
			if p = strings.TrimSpace(p); p != "" {
				b.Presets = append(b.Presets, p)
			}
		}
		page := c.addPage(f[1])
		if _, dup := page.Buttons[slot]; dup {
			return fmt.Errorf("page %q slot %d defined twice", f[1], slot)
		}
		page.Buttons[slot] = b
	case "SYS":
		if len(f) != 3 {
			return errors.New("SYS wants an action and a slot")
		}
		slot, err := parseSlot(f[2])
		if err != nil {
			return err
		}
		switch f[1] {
		case ActionBack:
			c.System.Back = slot
		case ActionPrevious:
			c.System.Previous = slot
		case ActionNext:
			c.System.Next = slot
		default:
			return fmt.Errorf("unknown system action %q", f[1])
		}
	case "PRESET":
		if len(f) != 4 || f[1] == "" || f[2] == "" {
			return errors.New("PRESET wants name, hint and value")
		}
		p, ok := c.Presets[f[1]]
		if !ok {
			p = Preset{}
			c.Presets[f[1]] = p
		}
		p[f[2]] = f[3]
	default:
		return fmt.Errorf("unknown record %q", f[0])
	}
	return nil
}

// Source reloads a dump file only when its modification time changes.
type Source struct {
	Path string

	mu      sync.Mutex
	modTime time.Time
	cfg     *Config
}

// Load returns the current snapshot.
func (s *Source) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if s.cfg != nil && fi.ModTime().Equal(s.modTime) {
		return s.cfg, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	defer f.Close()
	cfg, err := ParseDump(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	s.cfg, s.modTime = cfg, fi.ModTime()
	return cfg, nil
}
