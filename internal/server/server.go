// Package server is the device command daemon: it owns the HID transport,
// answers single-line commands on a unix socket and streams classified button
// events to one subscriber.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/seagrayinc/d200deck/internal/classifier"
	"github.com/seagrayinc/d200deck/internal/device"
	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/internal/linesock"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

const (
	DefaultPollTimeout    = 500 * time.Millisecond
	DefaultKeepAlive      = 2 * time.Second
	DefaultReopenInterval = 500 * time.Millisecond

	// subscriber writes that take longer than this drop the subscriber
	streamWriteTimeout = time.Second
)

// Server serves device commands and runs the button poll loop.
type Server struct {
	Transport  *device.Transport
	Classifier *classifier.Classifier

	PollTimeout    time.Duration
	KeepAlive      time.Duration
	ReopenInterval time.Duration

	// Now is the clock used for gestures and keep-alive timestamps.
	Now func() time.Time

	mu     sync.Mutex
	window d200.SmallWindow
	sub    net.Conn
}

// New returns a server with default timings.
func New(t *device.Transport) *Server {
	return &Server{
		Transport:      t,
		Classifier:     classifier.New(),
		PollTimeout:    DefaultPollTimeout,
		KeepAlive:      DefaultKeepAlive,
		ReopenInterval: DefaultReopenInterval,
		Now:            time.Now,
		window:         d200.SmallWindow{Mode: d200.ModeClock},
	}
}

// ListenAndServe binds path and serves until ctx is done. The poll loop runs
// alongside.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	ln, err := linesock.Listen(path)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	slog.Info("device server listening", slog.String("socket", path))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	err = linesock.Serve(ctx, ln, s.Handle)
	cancel()
	wg.Wait()
	return err
}

// Handle serves one command connection.
func (s *Server) Handle(ctx context.Context, line string, conn net.Conn) {
	req, err := ParseRequest(line)
	if err != nil {
		slog.Debug("rejected command", slog.String("line", line), slog.Any("error", err))
		_ = linesock.Err(conn, "invalid_command")
		return
	}

	if _, ok := req.(ReadButtons); ok {
		s.stream(ctx, conn)
		return
	}

	if err := s.Execute(req); err != nil {
		attrs := []any{slog.String("line", line), slog.Any("error", err)}
		if errors.Is(err, device.ErrDeviceNotFound) {
			attrs = append(attrs, slog.String("hint", NotFoundHint(s.Transport)))
		}
		slog.Warn("command failed", attrs...)
		_ = linesock.Err(conn, reason(err))
		return
	}
	_ = linesock.OK(conn, "")
}

// reason maps an execution error to the wire reason token.
func reason(err error) string {
	var ioErr *device.IOError
	var fileErr *fileError
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return "no_device"
	case errors.As(err, &ioErr):
		return ioErr.Op + "_failed"
	case errors.As(err, &fileErr):
		return fileErr.reason
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	}
	return "failed"
}

type fileError struct {
	reason string
	path   string
	err    error
}

func (e *fileError) Error() string { return fmt.Sprintf("%s %s: %v", e.reason, e.path, e.err) }
func (e *fileError) Unwrap() error { return e.err }

// Execute runs a non-streaming request against the device.
func (s *Server) Execute(req Request) error {
	switch r := req.(type) {
	case Ping:
		return s.Transport.Send(d200.CmdSetSmallWindow, d200.SmallWindow{}.Encode())
	case SetBrightness:
		return s.Transport.Send(d200.CmdSetBrightness, d200.BrightnessPayload(r.Value))
	case SetSmallWindow:
		w := r.Window
		s.mu.Lock()
		s.window = w
		s.mu.Unlock()
		if !r.TimeSet {
			w.Time = d200.ClockTime(s.Now())
		}
		return s.Transport.Send(d200.CmdSetSmallWindow, w.Encode())
	case SetLabelStyle:
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return &fileError{reason: "missing_file", path: r.Path, err: err}
		}
		if len(data) > d200.MaxLabelStyle {
			return &fileError{reason: "too_large", path: r.Path, err: fmt.Errorf("%d bytes", len(data))}
		}
		return s.Transport.SendSplit(d200.CmdSetLabelStyle, data)
	case SetZip:
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return &fileError{reason: "missing_file", path: r.Path, err: err}
		}
		b, err := d200.RepackBundle(data)
		if err != nil {
			return &fileError{reason: "invalid_archive", path: r.Path, err: err}
		}
		slog.Debug("sending archive", slog.String("path", r.Path), slog.Int("bytes", len(b.Data)), slog.Int("padding", b.Padding), slog.Int("patched", b.Patched))
		return s.Transport.SendChunked(d200.CmdSetButtons, b.Data)
	case SetButtons:
		icons, err := loadIcons(r)
		if err != nil {
			return err
		}
		b, err := d200.BuildBundle(icons)
		if err != nil {
			return err
		}
		if b.Patched > 0 {
			slog.Warn("bundle needed sentinel patching", slog.Int("patched", b.Patched))
		}
		cmd := d200.CmdSetButtons
		if r.Partial {
			cmd = d200.CmdPartialUpdate
		}
		slog.Debug("sending bundle", slog.String("command", cmd.String()), slog.Int("icons", len(icons)), slog.Int("bytes", len(b.Data)), slog.Int("padding", b.Padding))
		return s.Transport.SendChunked(cmd, b.Data)
	}
	return fmt.Errorf("%w: unsupported request %T", ErrInvalidCommand, req)
}

// loadIcons reads every referenced file. One missing file fails the whole
// request so the device never shows a half-updated page.
func loadIcons(r SetButtons) ([]d200.Icon, error) {
	buttons := make([]int, 0, len(r.Buttons))
	for n := range r.Buttons {
		buttons = append(buttons, n)
	}
	sort.Ints(buttons)

	icons := make([]d200.Icon, 0, len(buttons))
	for _, n := range buttons {
		path := r.Buttons[n]
		fi, err := os.Stat(path)
		if err == nil && !fi.Mode().IsRegular() {
			err = errors.New("not a regular file")
		}
		if err != nil {
			return nil, &fileError{reason: "missing_file", path: path, err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &fileError{reason: "missing_file", path: path, err: err}
		}
		icons = append(icons, d200.Icon{
			Index: n - 1,
			// prefixed so two buttons sharing a base name stay distinct
			Name:  fmt.Sprintf("%d_%s", n, filepath.Base(path)),
			Label: r.Labels[n],
			Data:  data,
		})
	}
	return icons, nil
}

// stream registers conn as the event subscriber and blocks until the peer
// goes away or a newer subscriber replaces it.
func (s *Server) stream(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	if s.sub != nil {
		slog.Info("replacing button subscriber")
		_ = s.sub.Close()
	}
	s.sub = conn
	err := linesock.OK(conn, "")
	s.mu.Unlock()
	if err != nil {
		s.unsubscribe(conn)
		return
	}
	slog.Info("button subscriber attached")

	// Subscribers never send after the request line; a read returning means
	// the peer closed or the connection was replaced.
	_, _ = io.Copy(io.Discard, conn)
	s.unsubscribe(conn)
	slog.Info("button subscriber detached")
}

func (s *Server) unsubscribe(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == conn {
		s.sub = nil
	}
}

// publish writes lines to the current subscriber, dropping it on failure.
func (s *Server) publish(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return
	}
	_ = s.sub.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	for _, l := range lines {
		if _, err := io.WriteString(s.sub, l+"\n"); err != nil {
			slog.Warn("dropping button subscriber", slog.Any("error", err))
			_ = s.sub.Close()
			s.sub = nil
			return
		}
	}
}

// Window returns the remembered small-window state.
func (s *Server) Window() d200.SmallWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func (s *Server) keepAlive() error {
	w := s.Window()
	w.Time = d200.ClockTime(s.Now())
	return s.Transport.Send(d200.CmdSetSmallWindow, w.Encode())
}

// Run polls the device until ctx is done: it re-opens a missing device,
// classifies button reports and sends the small-window keep-alive.
func (s *Server) Run(ctx context.Context) {
	buf := make([]byte, d200.PacketSize+1)
	var lastKeepAlive time.Time
	connected := false

	for ctx.Err() == nil {
		if !s.Transport.Connected() {
			if connected {
				connected = false
				s.Classifier.Reset()
				s.publish("evt disconnected")
			}
			if err := s.Transport.Open(); err != nil {
				slog.Debug("device not available", slog.Any("error", err))
				if !sleep(ctx, s.ReopenInterval) {
					return
				}
				continue
			}
		}
		if !connected {
			connected = true
			s.Classifier.Reset()
			if err := s.keepAlive(); err != nil {
				slog.Warn("initial keep-alive failed", slog.Any("error", err))
			}
			lastKeepAlive = s.Now()
			s.publish("evt connected")
		}

		n, err := s.Transport.Read(buf, s.PollTimeout)
		if err != nil {
			slog.Warn("device read failed", slog.Any("error", err))
			continue
		}

		now := s.Now()
		var events []classifier.Event
		if n > 0 {
			events = s.handleReport(buf[:n], now)
		}
		events = append(events, s.Classifier.Tick(now)...)
		if len(events) > 0 {
			lines := make([]string, len(events))
			for i, e := range events {
				lines[i] = e.String()
			}
			s.publish(lines...)
		}

		if now.Sub(lastKeepAlive) >= s.KeepAlive {
			if err := s.keepAlive(); err != nil {
				slog.Warn("keep-alive failed", slog.Any("error", err))
			}
			lastKeepAlive = now
		}
	}
}

// handleReport decodes one input report. Some backends deliver the report ID
// in front of the header, so a leading zero byte is skipped.
func (s *Server) handleReport(b []byte, now time.Time) []classifier.Event {
	if len(b) > 0 && b[0] == 0x00 && len(b) > 2 && b[1] == d200.Header0 && b[2] == d200.Header1 {
		b = b[1:]
	}
	p, err := d200.DecodePacket(b)
	if err != nil {
		slog.Debug("ignoring report", slog.String("report", d200.EncodeReportToString(b[:min(len(b), 16)])), slog.Any("error", err))
		return nil
	}

	switch {
	case p.Command.IsButton():
		r, err := p.ButtonReport()
		if err != nil {
			slog.Debug("short button report", slog.Any("error", err))
			return nil
		}
		slog.Debug("button report", slog.Int("index", r.Index), slog.Bool("pressed", r.Pressed), slog.Int("state", int(r.State)))
		if r.Index == d200.ButtonCount-1 && int(r.State) <= d200.ModeBackground {
			// the wide key cycles the small-window mode on the device side
			s.mu.Lock()
			s.window.Mode = int(r.State)
			s.mu.Unlock()
		}
		pressed := r.Pressed
		if r.Index == d200.ButtonCount-1 {
			// the wide key reports 0x01 for both edges: a second 0x01 closes
			// the open session and anything else is noise
			if !r.Pressed {
				return nil
			}
			pressed = !s.Classifier.Pressed(r.Index)
		}
		return s.Classifier.Feed(classifier.Signal{Index: r.Index, Pressed: pressed, State: r.State, At: now})
	case p.Command == d200.CmdDeviceInfo:
		slog.Info("device info", slog.String("payload", string(trimNUL(p.Payload))))
	default:
		slog.Debug("unhandled report", slog.String("command", p.Command.String()))
	}
	return nil
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NotFoundHint explains a missing device using a raw USB probe.
func NotFoundHint(t *device.Transport) string {
	return hid.Probe(t.VendorID, t.ProductID)
}
