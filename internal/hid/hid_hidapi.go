//go:build windows || hidapi

package hid

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gohid "github.com/sstallion/go-hid"
)

var initOnce sync.Once

type hidapiManager struct{}

func newManager() (Manager, error) {
	var err error
	initOnce.Do(func() { err = gohid.Init() })
	if err != nil {
		return nil, fmt.Errorf("hidapi init: %w", err)
	}
	return &hidapiManager{}, nil
}

func (m *hidapiManager) List() ([]Info, error) {
	var out []Info
	err := gohid.Enumerate(gohid.VendorIDAny, gohid.ProductIDAny, func(info *gohid.DeviceInfo) error {
		out = append(out, Info{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Product:      info.ProductStr,
			Manufacturer: info.MfrStr,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *hidapiManager) Open(info Info) (Device, error) {
	d, err := gohid.OpenPath(info.Path)
	if err != nil {
		return nil, err
	}
	return &hidapiDevice{d: d}, nil
}

func (m *hidapiManager) OpenVIDPID(vendorID, productID uint16) (Device, error) {
	d, err := gohid.OpenFirst(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("%w (VID:0x%04X PID:0x%04X): %v", ErrNotFound, vendorID, productID, err)
	}
	return &hidapiDevice{d: d}, nil
}

type hidapiDevice struct{ d *gohid.Device }

func (h *hidapiDevice) Write(p []byte) (int, error) {
	return h.d.Write(p)
}

func (h *hidapiDevice) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := h.d.ReadWithTimeout(p, timeout)
	if errors.Is(err, gohid.ErrTimeout) {
		return 0, nil
	}
	return n, err
}

func (h *hidapiDevice) Close() error { return h.d.Close() }
