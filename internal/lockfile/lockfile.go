// Package lockfile keeps a second daemon from claiming a socket (and with it
// the device handle) that another process already serves.
package lockfile

import "errors"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock is an acquired lock. Release it on shutdown.
type Lock struct {
	path    string
	release func() error
}

func (l *Lock) Path() string { return l.path }

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.release == nil {
		return nil
	}
	err := l.release()
	l.release = nil
	return err
}
