package hid

import (
	"errors"
	"sync"
	"time"
)

// MockDevice is an in-memory Device. Input reports are queued with Emit and
// every successful write is recorded.
type MockDevice struct {
	reports chan []byte

	mu     sync.Mutex
	writes [][]byte
	closed bool

	// WriteErr, when set, is consulted before every write. Returning a
	// non-nil error fails that write.
	WriteErr func(p []byte) error
}

func NewMockDevice() *MockDevice {
	return &MockDevice{
		reports: make(chan []byte, 64),
	}
}

func (m *MockDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("mock device closed")
	}
	if m.WriteErr != nil {
		if err := m.WriteErr(p); err != nil {
			return 0, err
		}
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (m *MockDevice) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	select {
	case r, ok := <-m.reports:
		if !ok {
			return 0, errors.New("mock device closed")
		}
		return copy(p, r), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.reports)
	}
	return nil
}

// Emit queues one input report.
func (m *MockDevice) Emit(report []byte) {
	m.reports <- append([]byte(nil), report...)
}

// Writes returns a copy of every report written so far.
func (m *MockDevice) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// MockManager hands out a fixed set of devices.
type MockManager struct {
	Devices map[string]*MockDevice // keyed by path
	Infos   []Info

	mu    sync.Mutex
	opens int
}

func (m *MockManager) List() ([]Info, error) {
	return m.Infos, nil
}

func (m *MockManager) Open(info Info) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Devices[info.Path]
	if !ok {
		return nil, ErrNotFound
	}
	m.opens++
	return d, nil
}

func (m *MockManager) OpenVIDPID(vendorID, productID uint16) (Device, error) {
	for _, info := range m.Infos {
		if info.VendorID == vendorID && info.ProductID == productID {
			return m.Open(info)
		}
	}
	return nil, ErrNotFound
}

// Opens reports how many times a device was handed out.
func (m *MockManager) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}
