//go:build !unix

package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// Acquire creates path exclusively. A stale file from a crashed process must
// be removed by hand on these platforms.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, err
	}
	return &Lock{path: path, release: func() error {
		f.Close()
		return os.Remove(path)
	}}, nil
}
