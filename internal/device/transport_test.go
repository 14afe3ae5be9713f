package device

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

func newMock() (*hid.MockManager, *hid.MockDevice) {
	dev := hid.NewMockDevice()
	mgr := &hid.MockManager{
		Devices: map[string]*hid.MockDevice{"/dev/hidraw3": dev},
		Infos: []hid.Info{
			{Path: "/dev/hidraw1", VendorID: 0x046D, ProductID: 0xC52B},
			{Path: "/dev/hidraw3", VendorID: d200.VendorID, ProductID: d200.ProductID},
		},
	}
	return mgr, dev
}

func TestOpenEnumeratesFirstMatch(t *testing.T) {
	mgr, _ := newMock()
	tr := New(mgr)
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !tr.Connected() {
		t.Fatalf("expected connected transport")
	}
	// a second Open reuses the handle
	if err := tr.Open(); err != nil || mgr.Opens() != 1 {
		t.Fatalf("expected one open, got %d (%v)", mgr.Opens(), err)
	}
}

func TestOpenExplicitPath(t *testing.T) {
	mgr, _ := newMock()
	tr := New(mgr)
	tr.Path = "/dev/hidraw9"
	if err := tr.Open(); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	tr.Path = "/dev/hidraw3"
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
}

func TestOpenNotFound(t *testing.T) {
	tr := New(&hid.MockManager{})
	if err := tr.Open(); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if err := tr.Send(d200.CmdSetBrightness, []byte("1")); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound on send, got %v", err)
	}
}

func TestSendPrefixesReportID(t *testing.T) {
	mgr, dev := newMock()
	tr := New(mgr)
	if err := tr.Send(d200.CmdSetBrightness, d200.BrightnessPayload(150)); err != nil {
		t.Fatalf("send: %v", err)
	}
	writes := dev.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	w := writes[0]
	if len(w) != d200.PacketSize+1 || w[0] != 0x00 {
		t.Fatalf("expected report id prefix, got len=%d first=%02x", len(w), w[0])
	}
	p, err := d200.DecodePacket(w[1:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Command != d200.CmdSetBrightness || string(p.Payload[:p.Length]) != "100" {
		t.Fatalf("unexpected packet %s %q", p.Command, p.Payload[:p.Length])
	}
}

func TestSendFallsBackWithoutReportID(t *testing.T) {
	mgr, dev := newMock()
	dev.WriteErr = func(p []byte) error {
		if len(p) == d200.PacketSize+1 {
			return errors.New("wrong report size")
		}
		return nil
	}
	tr := New(mgr)
	if err := tr.Send(d200.CmdSetBrightness, []byte("10")); err != nil {
		t.Fatalf("send: %v", err)
	}
	writes := dev.Writes()
	if len(writes) != 1 || len(writes[0]) != d200.PacketSize || writes[0][0] != d200.Header0 {
		t.Fatalf("expected unprefixed write, got %d writes", len(writes))
	}
}

func TestSendFailureDropsHandle(t *testing.T) {
	mgr, dev := newMock()
	dev.WriteErr = func([]byte) error { return errors.New("pipe error") }
	tr := New(mgr)

	err := tr.Send(d200.CmdSetBrightness, []byte("10"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "write" {
		t.Fatalf("expected write IOError, got %v", err)
	}
	if tr.Connected() {
		t.Fatalf("handle should be dropped after a failed write")
	}
}

func TestSendChunked(t *testing.T) {
	mgr, dev := newMock()
	tr := New(mgr)
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = 0x33
	}
	if err := tr.SendChunked(d200.CmdSetButtons, payload); err != nil {
		t.Fatalf("send chunked: %v", err)
	}
	writes := dev.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(writes))
	}
	p, _ := d200.DecodePacket(writes[0][1:])
	if p.Length != 3000 {
		t.Fatalf("length field %d", p.Length)
	}
}

func TestReadTimeout(t *testing.T) {
	mgr, dev := newMock()
	tr := New(mgr)
	buf := make([]byte, d200.PacketSize)

	if _, err := tr.Read(buf, time.Millisecond); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound before open, got %v", err)
	}
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	n, err := tr.Read(buf, 5*time.Millisecond)
	if n != 0 || err != nil {
		t.Fatalf("expected timeout, got %d %v", n, err)
	}

	dev.Emit([]byte{0x7C, 0x7C, 0x01, 0x01})
	n, err = tr.Read(buf, time.Second)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 bytes, got %d %v", n, err)
	}
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	mgr, dev := newMock()
	tr := New(mgr)

	// five reports per transfer; follow-up reports never start with a header
	bundle := bytes.Repeat([]byte{0x42}, d200.FirstChunkPayload+4*d200.PacketSize)
	const rounds = 8

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := tr.SendChunked(d200.CmdSetButtons, bundle); err != nil {
				t.Errorf("send chunked: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := tr.Send(d200.CmdSetBrightness, d200.BrightnessPayload(50)); err != nil {
				t.Errorf("send: %v", err)
			}
		}()
	}
	wg.Wait()

	writes := dev.Writes()
	if len(writes) != rounds*6 {
		t.Fatalf("expected %d writes, got %d", rounds*6, len(writes))
	}
	for i := 0; i < len(writes); {
		p, err := d200.DecodePacket(writes[i][1:])
		if err != nil {
			t.Fatalf("write %d: expected a header report: %v", i, err)
		}
		switch p.Command {
		case d200.CmdSetBrightness:
			i++
		case d200.CmdSetButtons:
			for k := 1; k <= 4; k++ {
				if w := writes[i+k]; w[1] != 0x42 {
					t.Fatalf("write %d: transfer interrupted by % x", i+k, w[1:9])
				}
			}
			i += 5
		default:
			t.Fatalf("write %d: unexpected command %s", i, p.Command)
		}
	}
}
