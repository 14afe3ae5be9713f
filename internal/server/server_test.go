package server

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/seagrayinc/d200deck/internal/classifier"
	"github.com/seagrayinc/d200deck/internal/device"
	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/internal/linesock"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

func newServer(t *testing.T) (*Server, *hid.MockDevice) {
	t.Helper()
	dev := hid.NewMockDevice()
	mgr := &hid.MockManager{
		Devices: map[string]*hid.MockDevice{"/dev/hidraw0": dev},
		Infos:   []hid.Info{{Path: "/dev/hidraw0", VendorID: d200.VendorID, ProductID: d200.ProductID}},
	}
	s := New(device.New(mgr))
	s.PollTimeout = 20 * time.Millisecond
	s.ReopenInterval = 20 * time.Millisecond
	return s, dev
}

// call runs one request through Handle and returns the reply line.
func call(t *testing.T, s *Server, line string) string {
	t.Helper()
	client, srv := net.Pipe()
	defer client.Close()
	go func() {
		defer srv.Close()
		s.Handle(context.Background(), line, srv)
	}()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := bufio.NewReader(client).ReadString('\n')
	if err != nil {
		t.Fatalf("%s: read reply: %v", line, err)
	}
	return strings.TrimSpace(resp)
}

func decodeWrite(t *testing.T, w []byte) d200.Packet {
	t.Helper()
	p, err := d200.DecodePacket(w[1:])
	if err != nil {
		t.Fatalf("decode write: %v", err)
	}
	return p
}

func TestHandleBrightness(t *testing.T) {
	s, dev := newServer(t)
	if got := call(t, s, "set-brightness 150"); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
	writes := dev.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	p := decodeWrite(t, writes[0])
	if p.Command != d200.CmdSetBrightness || string(p.Payload[:p.Length]) != "100" {
		t.Fatalf("unexpected packet %s %q", p.Command, p.Payload[:p.Length])
	}
}

func TestHandleInvalid(t *testing.T) {
	s, dev := newServer(t)
	if got := call(t, s, "explode now"); got != "err invalid_command" {
		t.Fatalf("reply = %q", got)
	}
	if len(dev.Writes()) != 0 {
		t.Fatalf("invalid command must not write")
	}
}

func TestHandleNoDevice(t *testing.T) {
	s := New(device.New(&hid.MockManager{}))
	if got := call(t, s, "ping"); got != "err no_device" {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleSetButtons(t *testing.T) {
	s, dev := newServer(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	if err := os.WriteFile(a, bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 600), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := call(t, s, "set-buttons-explicit --button-1="+a+" --button-7="+b+" --label-7=Mail")
	if got != "ok" {
		t.Fatalf("reply = %q", got)
	}

	want, err := d200.BuildBundle([]d200.Icon{
		{Index: 0, Name: "1_a.png", Data: bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 600)},
		{Index: 6, Name: "7_b.png", Label: "Mail", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	wantReports, _ := d200.EncodeChunked(d200.CmdSetButtons, want.Data)

	writes := dev.Writes()
	if len(writes) != len(wantReports) {
		t.Fatalf("expected %d reports, got %d", len(wantReports), len(writes))
	}
	for i := range writes {
		if !bytes.Equal(writes[i][1:], wantReports[i]) {
			t.Fatalf("report %d differs", i)
		}
	}
	if p := decodeWrite(t, writes[0]); p.Length != uint32(len(want.Data)) {
		t.Fatalf("length field %d, want %d", p.Length, len(want.Data))
	}
}

func TestHandleSetZip(t *testing.T) {
	s, dev := newServer(t)
	dir := t.TempDir()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(`{}`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "page.zip")
	if err := os.WriteFile(path, archive.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := call(t, s, "set-buttons "+path); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
	want, err := d200.RepackBundle(archive.Bytes())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	p := decodeWrite(t, dev.Writes()[0])
	if p.Command != d200.CmdSetButtons || p.Length != uint32(len(want.Data)) {
		t.Fatalf("unexpected first report %s len=%d", p.Command, p.Length)
	}

	junk := filepath.Join(dir, "junk.zip")
	if err := os.WriteFile(junk, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := call(t, s, "set-buttons "+junk); got != "err invalid_archive" {
		t.Fatalf("reply = %q", got)
	}
	if got := call(t, s, "set-buttons "+filepath.Join(dir, "none.zip")); got != "err missing_file" {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandlePartialUpdate(t *testing.T) {
	s, dev := newServer(t)
	a := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(a, []byte("icon"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := call(t, s, "set-partial-explicit --button-3="+a); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
	if p := decodeWrite(t, dev.Writes()[0]); p.Command != d200.CmdPartialUpdate {
		t.Fatalf("command = %s", p.Command)
	}
}

func TestHandleMissingFile(t *testing.T) {
	s, dev := newServer(t)
	a := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(a, []byte("icon"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := call(t, s, "set-buttons-explicit --button-1="+a+" --button-2=/nonexistent/b.png")
	if got != "err missing_file" {
		t.Fatalf("reply = %q", got)
	}
	if len(dev.Writes()) != 0 {
		t.Fatalf("nothing may be sent when a file is missing")
	}
}

func TestHandleLabelStyleTooLarge(t *testing.T) {
	s, dev := newServer(t)
	p := filepath.Join(t.TempDir(), "style.json")
	if err := os.WriteFile(p, bytes.Repeat([]byte("x"), d200.MaxLabelStyle+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := call(t, s, "set-label-style "+p); got != "err too_large" {
		t.Fatalf("reply = %q", got)
	}
	if len(dev.Writes()) != 0 {
		t.Fatalf("oversized style must not be sent")
	}
}

func TestHandleLabelStyleUnpatched(t *testing.T) {
	s, dev := newServer(t)
	style := bytes.Repeat([]byte(" "), 2000)
	copy(style, `{"Align":"bottom"}`)
	style[d200.FirstChunkPayload] = '|'
	p := filepath.Join(t.TempDir(), "style.json")
	if err := os.WriteFile(p, style, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := call(t, s, "set-label-style "+p); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
	writes := dev.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(writes))
	}
	if pkt := decodeWrite(t, writes[0]); pkt.Command != d200.CmdSetLabelStyle || pkt.Length != uint32(len(style)) {
		t.Fatalf("unexpected first report %s len=%d", pkt.Command, pkt.Length)
	}
	// writes carry the report ID in front
	if writes[1][1] != '|' {
		t.Fatalf("label style byte rewritten to %02x", writes[1][1])
	}
}

func TestSmallWindowRemembered(t *testing.T) {
	s, dev := newServer(t)
	s.Now = func() time.Time { return time.Date(2024, 1, 2, 9, 8, 7, 0, time.UTC) }
	if got := call(t, s, "set-small-window --mode=0 --cpu=33"); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
	p := decodeWrite(t, dev.Writes()[0])
	if got := string(p.Payload[:p.Length]); got != "0|33|0|09:08:07|0" {
		t.Fatalf("payload = %q", got)
	}
	if err := s.keepAlive(); err != nil {
		t.Fatalf("keep-alive: %v", err)
	}
	p = decodeWrite(t, dev.Writes()[1])
	if got := string(p.Payload[:p.Length]); got != "0|33|0|09:08:07|0" {
		t.Fatalf("keep-alive payload = %q", got)
	}
}

func TestKeepAliveWhileIdle(t *testing.T) {
	s, dev := newServer(t)
	s.KeepAlive = 60 * time.Millisecond
	s.window = d200.SmallWindow{Mode: d200.ModeBackground}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// no input reports arrive, so every poll times out
	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done

	var sent []string
	for _, w := range dev.Writes() {
		p := decodeWrite(t, w)
		if p.Command != d200.CmdSetSmallWindow {
			t.Fatalf("unexpected command %s while idle", p.Command)
		}
		sent = append(sent, string(p.Payload[:p.Length]))
	}
	// one on connect plus at least three periodic ones
	if len(sent) < 4 {
		t.Fatalf("expected at least 4 keep-alives, got %d", len(sent))
	}
	for _, payload := range sent {
		if !strings.HasPrefix(payload, "2|") {
			t.Fatalf("keep-alive dropped the remembered mode: %q", payload)
		}
	}
}

func buttonReport(index int, pressed bool) []byte {
	var flag byte
	if pressed {
		flag = 0x01
	}
	return d200.NewPacket(d200.CmdButton, []byte{0x00, byte(index), 0x00, flag}).Encode()
}

func eventStrings(events []classifier.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

func TestWideKeyToggleReports(t *testing.T) {
	s, _ := newServer(t)
	t0 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	wide := d200.ButtonCount - 1

	steps := []struct {
		name   string
		report []byte
		at     time.Duration
		tick   bool
		want   []string
	}{
		{"first edge opens", buttonReport(wide, true), 0, false, nil},
		{"second edge closes", buttonReport(wide, true), 100 * time.Millisecond, false, []string{"button 14 TAP", "button 14 RELEASE"}},
		{"zero flag ignored", buttonReport(wide, false), 200 * time.Millisecond, false, nil},
		{"reopen", buttonReport(wide, true), 2 * time.Second, false, nil},
		{"hold while open", nil, 3 * time.Second, true, []string{"button 14 HOLD"}},
		{"release after hold", buttonReport(wide, true), 4 * time.Second, false, []string{"button 14 RELEASE"}},
		{"next press opens again", buttonReport(wide, true), 5 * time.Second, false, nil},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			now := t0.Add(st.at)
			var events []classifier.Event
			if st.tick {
				events = s.Classifier.Tick(now)
			} else {
				events = s.handleReport(st.report, now)
			}
			if got := eventStrings(events); !reflect.DeepEqual(got, st.want) && !(len(got) == 0 && len(st.want) == 0) {
				t.Fatalf("events = %v, want %v", got, st.want)
			}
		})
	}
	if !s.Classifier.Pressed(wide) {
		t.Fatalf("expected the last press to leave a session open")
	}
}

func TestStreamButtonEvents(t *testing.T) {
	s, dev := newServer(t)
	sock := filepath.Join(t.TempDir(), "d.sock")
	ln, err := linesock.Listen(sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = linesock.Serve(ctx, ln, s.Handle) }()

	conn, r, err := linesock.Subscribe(ctx, sock, "read-buttons")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readLine := func() string {
		t.Helper()
		l, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		return strings.TrimSpace(l)
	}
	if got := readLine(); got != "ok" {
		t.Fatalf("first line = %q", got)
	}

	go s.Run(ctx)
	if got := readLine(); got != "evt connected" {
		t.Fatalf("expected connect event, got %q", got)
	}
	if p := decodeWrite(t, dev.Writes()[0]); p.Command != d200.CmdSetSmallWindow {
		t.Fatalf("expected keep-alive on connect, got %s", p.Command)
	}

	dev.Emit(buttonReport(4, true))
	dev.Emit(buttonReport(4, false))
	for _, want := range []string{"button 5 TAP", "button 5 RELEASE"} {
		if got := readLine(); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestStreamReplacesSubscriber(t *testing.T) {
	s, _ := newServer(t)

	first, srv1 := net.Pipe()
	defer first.Close()
	go func() {
		defer srv1.Close()
		s.Handle(context.Background(), "read-buttons", srv1)
	}()
	r1 := bufio.NewReader(first)
	if l, _ := r1.ReadString('\n'); strings.TrimSpace(l) != "ok" {
		t.Fatalf("first subscriber reply %q", l)
	}

	second, srv2 := net.Pipe()
	defer second.Close()
	go func() {
		defer srv2.Close()
		s.Handle(context.Background(), "read-buttons", srv2)
	}()
	r2 := bufio.NewReader(second)
	if l, _ := r2.ReadString('\n'); strings.TrimSpace(l) != "ok" {
		t.Fatalf("second subscriber reply %q", l)
	}

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := r1.ReadString('\n'); err == nil {
		t.Fatalf("expected the replaced stream to be closed")
	}

	go s.publish("button 1 TAP")
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if l, err := r2.ReadString('\n'); err != nil || strings.TrimSpace(l) != "button 1 TAP" {
		t.Fatalf("second subscriber got %q (%v)", l, err)
	}
}
