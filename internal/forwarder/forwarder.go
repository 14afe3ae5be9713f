// Package forwarder relays classified button events from the device daemon
// to the paging daemon.
package forwarder

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seagrayinc/d200deck/internal/classifier"
	"github.com/seagrayinc/d200deck/internal/linesock"
)

const (
	DefaultDebounce       = 150 * time.Millisecond
	DefaultForwardTimeout = 2 * time.Second
	DefaultReconnectDelay = time.Second
)

type debounceKey struct {
	button int
	kind   classifier.Kind
}

// Debouncer suppresses repeats of the same (button, kind) pair inside Window.
type Debouncer struct {
	Window time.Duration

	mu   sync.Mutex
	last map[debounceKey]time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{Window: window, last: map[debounceKey]time.Time{}}
}

// Allow reports whether e should pass at now and records it if so.
func (d *Debouncer) Allow(e classifier.Event, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		d.last = map[debounceKey]time.Time{}
	}
	k := debounceKey{e.Button, e.Kind}
	if t, ok := d.last[k]; ok && now.Sub(t) < d.Window {
		return false
	}
	d.last[k] = now
	return true
}

// ParseEvent parses a "button <n> <KIND>" stream line.
func ParseEvent(line string) (classifier.Event, error) {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != "button" {
		return classifier.Event{}, fmt.Errorf("not a button event: %q", line)
	}
	n, err := strconv.Atoi(f[1])
	if err != nil || n < 1 {
		return classifier.Event{}, fmt.Errorf("button number %q", f[1])
	}
	k, err := classifier.ParseKind(f[2])
	if err != nil {
		return classifier.Event{}, err
	}
	return classifier.Event{Button: n, Kind: k}, nil
}

// Forwarder subscribes to the device socket and forwards taps to the paging
// socket without waiting for the paging daemon.
type Forwarder struct {
	DeviceSocket string
	PagingSocket string

	Debouncer      *Debouncer
	ForwardTimeout time.Duration
	ReconnectDelay time.Duration
	Now            func() time.Time

	wg sync.WaitGroup
}

func New(deviceSocket, pagingSocket string) *Forwarder {
	return &Forwarder{
		DeviceSocket:   deviceSocket,
		PagingSocket:   pagingSocket,
		Debouncer:      NewDebouncer(DefaultDebounce),
		ForwardTimeout: DefaultForwardTimeout,
		ReconnectDelay: DefaultReconnectDelay,
		Now:            time.Now,
	}
}

// Run keeps a read-buttons subscription open until ctx is done, reconnecting
// after ReconnectDelay whenever the stream ends.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.wg.Wait()
	for {
		if err := f.subscribe(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("button stream ended", slog.String("socket", f.DeviceSocket), slog.Any("error", err))
		}
		t := time.NewTimer(f.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (f *Forwarder) subscribe(ctx context.Context) error {
	conn, r, err := linesock.Subscribe(ctx, f.DeviceSocket, "read-buttons")
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	first, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read subscribe reply: %w", err)
	}
	if reply := linesock.ParseReply(first); !reply.OK {
		return fmt.Errorf("subscribe rejected: %s", reply)
	}
	slog.Info("subscribed to button stream", slog.String("socket", f.DeviceSocket))

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f.Handle(ctx, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by peer")
}

// Handle processes one stream line.
func (f *Forwarder) Handle(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return
	case line == "evt connected":
		slog.Info("device attached, requesting render")
		f.forward(ctx, "render")
		return
	case strings.HasPrefix(line, "evt "):
		slog.Info("device event", slog.String("event", strings.TrimPrefix(line, "evt ")))
		return
	}

	e, err := ParseEvent(line)
	if err != nil {
		slog.Debug("ignoring stream line", slog.String("line", line), slog.Any("error", err))
		return
	}
	if !f.Debouncer.Allow(e, f.Now()) {
		slog.Debug("debounced", slog.String("event", e.String()))
		return
	}
	// HOLD and RELEASE are observed but not forwarded
	if e.Kind != classifier.Tap {
		return
	}
	f.forward(ctx, fmt.Sprintf("press %d %s", e.Button, e.Kind))
}

// forward sends line to the paging socket on its own goroutine.
func (f *Forwarder) forward(ctx context.Context, line string) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		reply, err := linesock.Request(context.WithoutCancel(ctx), f.PagingSocket, line, f.ForwardTimeout)
		if err != nil {
			slog.Warn("forward failed", slog.String("line", line), slog.Any("error", err))
			return
		}
		if !reply.OK {
			slog.Debug("paging rejected", slog.String("line", line), slog.String("reply", reply.String()))
		}
	}()
}
