//go:build !windows && !hidapi

package hid

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	usbhid "rafaelmartins.com/p/usbhid"
)

type usbManager struct{}

func newManager() (Manager, error) { return &usbManager{}, nil }

func (m *usbManager) List() ([]Info, error) {
	devs, err := usbhid.Enumerate(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(devs))
	for _, d := range devs {
		out = append(out, Info{
			Path:         d.Path(),
			VendorID:     d.VendorId(),
			ProductID:    d.ProductId(),
			Product:      d.Product(),
			Manufacturer: d.Manufacturer(),
		})
	}
	return out, nil
}

func (m *usbManager) Open(info Info) (Device, error) {
	d, err := usbhid.Get(func(dev *usbhid.Device) bool {
		return dev.Path() == info.Path
	}, true, false)
	if err != nil {
		return nil, err
	}
	return newUSBDevice(d), nil
}

func (m *usbManager) OpenVIDPID(vendorID, productID uint16) (Device, error) {
	devs, err := usbhid.Enumerate(func(dev *usbhid.Device) bool {
		return dev.VendorId() == vendorID && dev.ProductId() == productID
	})
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, ErrNotFound
	}

	// the D200 exposes a single HID interface; take the first match
	d := devs[0]
	if err := d.Open(false); err != nil {
		return nil, err
	}
	return newUSBDevice(d), nil
}

type inputReport struct {
	data []byte
	err  error
}

// usbDevice adapts the blocking usbhid input API to bounded reads: a single
// goroutine keeps reading reports into a channel and ReadTimeout selects on it.
type usbDevice struct {
	d       *usbhid.Device
	reports chan inputReport

	closeOnce sync.Once
	done      chan struct{}
}

func newUSBDevice(d *usbhid.Device) *usbDevice {
	u := &usbDevice{
		d:       d,
		reports: make(chan inputReport, 16),
		done:    make(chan struct{}),
	}
	go u.readLoop()
	return u
}

func (u *usbDevice) readLoop() {
	for {
		_, buf, err := u.d.GetInputReport()
		select {
		case <-u.done:
			return
		case u.reports <- inputReport{data: buf, err: err}:
		}
		if err != nil {
			slog.Debug("input report loop stopped", slog.Any("error", err))
			return
		}
	}
}

func (u *usbDevice) Write(p []byte) (int, error) {
	// p should include report ID at p[0]; extract rid and data
	if len(p) == 0 {
		return 0, nil
	}
	if err := u.d.SetOutputReport(p[0], p[1:]); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (u *usbDevice) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-u.reports:
		if r.err != nil {
			return 0, r.err
		}
		return copy(p, r.data), nil
	case <-timer.C:
		return 0, nil
	case <-u.done:
		return 0, errors.New("device closed")
	}
}

func (u *usbDevice) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.done)
		err = u.d.Close()
	})
	return err
}
