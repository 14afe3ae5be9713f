package hid

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a Manager when no device matches the requested
// vendor/product pair.
var ErrNotFound = errors.New("hid device not found")

// Device represents an opened HID device capable of report I/O.
type Device interface {
	// Write sends an output report. p[0] is the report ID (0x00 for devices
	// without numbered reports) when the caller includes one.
	Write(p []byte) (int, error)
	// ReadTimeout waits at most timeout for one input report. It returns
	// 0, nil when the wait expires without data.
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Info represents a HID device descriptor.
type Info struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Product      string
	Manufacturer string
}

// Manager enumerates and opens HID devices.
type Manager interface {
	List() ([]Info, error)
	Open(info Info) (Device, error)
	OpenVIDPID(vendorID, productID uint16) (Device, error)
}

// NewManager returns the OS-specific HID manager.
func NewManager() (Manager, error) {
	return newManager()
}
