// Package paging is the page navigation daemon. It keeps the current page and
// history, turns forwarded taps into navigation, renders pages through a
// content-addressed tile cache and sends them to the device daemon.
package paging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/seagrayinc/d200deck/internal/classifier"
	"github.com/seagrayinc/d200deck/internal/linesock"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

const (
	DefaultActionDebounce = 250 * time.Millisecond
	DefaultSendTimeout    = 5 * time.Second
)

// navigation glyphs shown on system slots
var systemIcons = map[string]string{
	ActionBack:     "mdi:arrow-left",
	ActionPrevious: "mdi:chevron-left",
	ActionNext:     "mdi:chevron-right",
}

// navPreset styles the navigation glyphs when the dump defines it.
const navPreset = "$nav"

// Orchestrator serializes every command behind one lock so that navigation
// state updates and device sends never interleave.
type Orchestrator struct {
	Source *Source
	Store  Store
	Cache  *Cache

	DeviceSocket string
	// BlankIcon fills empty slots; ErrorIcon replaces failed renders.
	BlankIcon string
	ErrorIcon string

	ActionDebounce time.Duration
	SendTimeout    time.Duration
	Now            func() time.Time

	mu sync.Mutex
}

// Handle serves one paging socket connection.
func (o *Orchestrator) Handle(ctx context.Context, line string, conn net.Conn) {
	cmd, err := ParseCommand(line)
	if err == nil {
		var data string
		data, err = o.Execute(ctx, cmd)
		if err == nil {
			_ = linesock.OK(conn, data)
			return
		}
	}
	slog.Warn("paging command failed", slog.String("line", line), slog.Any("error", err))
	_ = linesock.Err(conn, reason(err))
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidButton):
		return "invalid_button"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, ErrUnknownPage):
		return "unknown_page"
	case errors.Is(err, ErrConfigInvalid):
		return "config_invalid"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	}
	return "failed"
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Execute runs cmd and returns the reply data.
func (o *Orchestrator) Execute(ctx context.Context, cmd Command) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg, err := o.Source.Load()
	if err != nil {
		return "", err
	}
	st, err := o.Store.Load()
	if err != nil {
		return "", fmt.Errorf("load navigation state: %w", err)
	}
	if _, ok := cfg.Page(st.Current); !ok {
		slog.Warn("current page no longer configured", slog.String("page", st.Current))
		st.Current = RootPage
	}

	switch c := cmd.(type) {
	case State:
		return st.Current, nil
	case Render:
		return "", o.renderAndSend(ctx, cfg, st.Current)
	case Go:
		if _, ok := cfg.Page(c.Page); !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownPage, c.Page)
		}
		st.push(st.Current)
		st.Current = c.Page
		if err := o.Store.Save(st); err != nil {
			return "", fmt.Errorf("save navigation state: %w", err)
		}
		slog.Info("page", slog.String("current", st.Current), slog.Int("depth", len(st.History)))
		return "", o.renderAndSend(ctx, cfg, st.Current)
	case Press:
		return "", o.press(ctx, cfg, st, c)
	}
	return "", fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
}

func (o *Orchestrator) press(ctx context.Context, cfg *Config, st NavigationState, p Press) error {
	if p.Kind != classifier.Tap {
		return nil
	}
	action := cfg.System.Action(p.Button)
	if action == "" {
		// no page-local actions yet
		slog.Debug("tap without binding", slog.String("page", st.Current), slog.Int("button", p.Button))
		return nil
	}

	now := o.now()
	debounce := o.ActionDebounce
	if debounce == 0 {
		debounce = DefaultActionDebounce
	}
	if last, ok := st.LastAction[action]; ok && now.Sub(last) < debounce {
		slog.Debug("navigation debounced", slog.String("action", action))
		return nil
	}
	if st.LastAction == nil {
		st.LastAction = map[string]time.Time{}
	}
	st.LastAction[action] = now

	switch action {
	case ActionBack:
		if prev, ok := st.pop(); ok {
			st.Current = prev
		}
	case ActionNext, ActionPrevious:
		step := 1
		if action == ActionPrevious {
			step = -1
		}
		st.push(st.Current)
		st.Current = cycle(cfg.Order, st.Current, step)
	}
	if err := o.Store.Save(st); err != nil {
		return fmt.Errorf("save navigation state: %w", err)
	}
	slog.Info("page", slog.String("action", action), slog.String("current", st.Current), slog.Int("depth", len(st.History)))
	return o.renderAndSend(ctx, cfg, st.Current)
}

// cycle steps through order from current, wrapping at both ends.
func cycle(order []string, current string, step int) string {
	if len(order) == 0 {
		return current
	}
	idx := -1
	for i, p := range order {
		if p == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return order[0]
	}
	n := len(order)
	return order[((idx+step)%n+n)%n]
}

// RenderPage resolves the image for each of the 13 tile slots of page.
// Render failures are replaced by the error icon and never abort the page.
func (o *Orchestrator) RenderPage(ctx context.Context, cfg *Config, page string) ([]string, error) {
	p, ok := cfg.Page(page)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}

	paths := make([]string, d200.TileButtons)
	rendered := 0
	for slot := 1; slot <= d200.TileButtons; slot++ {
		cachePage, tile, ok := o.tileFor(cfg, p, slot)
		if !ok {
			paths[slot-1] = o.BlankIcon
			continue
		}
		path, hit, err := o.Cache.Ensure(ctx, cachePage, tile)
		if err != nil {
			slog.Warn("tile render failed", slog.String("page", page), slog.Int("slot", slot), slog.Any("error", err))
			path = o.ErrorIcon
		}
		if !hit && err == nil {
			rendered++
		}
		paths[slot-1] = path
	}
	slog.Debug("page rendered", slog.String("page", page), slog.Int("fresh", rendered))
	return paths, nil
}

// tileFor picks what slot shows on p: a navigation glyph, a configured
// button, or nothing.
func (o *Orchestrator) tileFor(cfg *Config, p *Page, slot int) (string, Tile, bool) {
	if action := cfg.System.Action(slot); action != "" && !(action == ActionBack && p.Name == RootPage) {
		return SystemPage, Tile{
			Icon:  systemIcons[action],
			Style: cfg.ResolveStyle([]string{navPreset}),
		}, true
	}
	b, ok := p.Buttons[slot]
	if !ok || (b.Label == "" && b.Icon == "") {
		return "", Tile{}, false
	}
	return p.Name, Tile{Label: b.Label, Icon: b.Icon, Style: cfg.ResolveStyle(b.Presets)}, true
}

func (o *Orchestrator) renderAndSend(ctx context.Context, cfg *Config, page string) error {
	paths, err := o.RenderPage(ctx, cfg, page)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("set-buttons-explicit")
	for i, p := range paths {
		fmt.Fprintf(&sb, " --button-%d=%s", i+1, p)
	}

	timeout := o.SendTimeout
	if timeout == 0 {
		timeout = DefaultSendTimeout
	}
	reply, err := linesock.Request(ctx, o.DeviceSocket, sb.String(), timeout)
	if err != nil {
		return fmt.Errorf("%w: send page %q: %v", ErrRenderFailed, page, err)
	}
	if !reply.OK {
		return fmt.Errorf("%w: device replied %q", ErrRenderFailed, reply.String())
	}
	return nil
}
