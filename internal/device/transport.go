// Package device owns the open D200 HID handle: discovery, report writes with
// the report-ID fallback, bounded reads and lazy re-open after failures.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/pkg/d200"
)

// ErrDeviceNotFound is returned when no matching device is attached.
var ErrDeviceNotFound = errors.New("device not found")

// IOError wraps a failed report write or read.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Transport serializes all writes to the device through one lock. Reads do
// not take the write lock so a blocked poll never delays a command.
type Transport struct {
	Manager   hid.Manager
	VendorID  uint16
	ProductID uint16
	// Path, when set, is opened instead of enumerating.
	Path string

	mu  sync.Mutex
	dev hid.Device
}

// New returns a transport for the default D200 identifiers.
func New(m hid.Manager) *Transport {
	return &Transport{
		Manager:   m,
		VendorID:  d200.VendorID,
		ProductID: d200.ProductID,
	}
}

// Open attaches to the device if it is not open yet.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	if t.dev != nil {
		return nil
	}
	dev, err := t.find()
	if err != nil {
		return err
	}
	t.dev = dev
	slog.Info("device opened", slog.String("vid", fmt.Sprintf("0x%04X", t.VendorID)), slog.String("pid", fmt.Sprintf("0x%04X", t.ProductID)))
	return nil
}

func (t *Transport) find() (hid.Device, error) {
	if t.Path != "" {
		dev, err := t.Manager.Open(hid.Info{Path: t.Path, VendorID: t.VendorID, ProductID: t.ProductID})
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceNotFound, t.Path, err)
		}
		return dev, nil
	}

	infos, err := t.Manager.List()
	if err != nil {
		slog.Warn("hid enumerate failed", slog.Any("error", err))
	}
	for _, info := range infos {
		if info.VendorID != t.VendorID || info.ProductID != t.ProductID {
			continue
		}
		dev, err := t.Manager.Open(info)
		if err == nil {
			return dev, nil
		}
		slog.Warn("open enumerated device failed", slog.String("path", info.Path), slog.Any("error", err))
	}

	dev, err := t.Manager.OpenVIDPID(t.VendorID, t.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w (VID:0x%04X PID:0x%04X): %v", ErrDeviceNotFound, t.VendorID, t.ProductID, err)
	}
	return dev, nil
}

// Connected reports whether a handle is currently open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Close releases the handle. The next Open or write re-enumerates.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropLocked()
}

func (t *Transport) dropLocked() error {
	if t.dev == nil {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil
	return err
}

// writeLocked sends one PacketSize report prefixed with a zero report ID,
// retrying without the prefix on platforms that frame reports differently.
func (t *Transport) writeLocked(report []byte) error {
	buf := make([]byte, len(report)+1)
	copy(buf[1:], report)
	if _, err := t.dev.Write(buf); err != nil {
		if _, err2 := t.dev.Write(report); err2 != nil {
			return &IOError{Op: "write", Err: errors.Join(err, err2)}
		}
	}
	return nil
}

// Send writes a single-report command.
func (t *Transport) Send(cmd d200.Command, payload []byte) error {
	return t.SendReports([][]byte{d200.NewPacket(cmd, payload).Encode()})
}

// SendChunked writes a multi-report transfer while holding the write lock so
// no other command can interleave with its chunks.
func (t *Transport) SendChunked(cmd d200.Command, payload []byte) error {
	reports, patched := d200.EncodeChunked(cmd, payload)
	if patched > 0 {
		slog.Debug("patched sentinel bytes", slog.Int("count", patched))
	}
	return t.SendReports(reports)
}

// SendSplit writes payload as a multi-report transfer with its bytes left
// as they are. Documents that are not bundles must not be patched.
func (t *Transport) SendSplit(cmd d200.Command, payload []byte) error {
	return t.SendReports(d200.Split(cmd, payload))
}

// SendReports writes pre-encoded reports in order under the write lock. On a
// write failure the handle is dropped so the next request re-opens it.
func (t *Transport) SendReports(reports [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.openLocked(); err != nil {
		return err
	}
	for i, r := range reports {
		if err := t.writeLocked(r); err != nil {
			slog.Warn("report write failed", slog.Int("report", i), slog.Int("of", len(reports)), slog.Any("error", err))
			_ = t.dropLocked()
			return err
		}
	}
	return nil
}

// Read waits at most timeout for one input report. It returns 0, nil on
// timeout.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()
	if dev == nil {
		return 0, ErrDeviceNotFound
	}

	n, err := dev.ReadTimeout(p, timeout)
	if err != nil {
		t.mu.Lock()
		if t.dev == dev {
			_ = t.dropLocked()
		}
		t.mu.Unlock()
		return 0, &IOError{Op: "read", Err: err}
	}
	return n, nil
}
