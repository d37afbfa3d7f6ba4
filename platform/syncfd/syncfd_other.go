//go:build !linux

package syncfd

import "time"

// New returns ErrUnsupported.
func New() (int, error) { return -1, ErrUnsupported }

// NewSignaled returns ErrUnsupported.
func NewSignaled() (int, error) { return -1, ErrUnsupported }

// Signal returns ErrUnsupported.
func Signal(int) error { return ErrUnsupported }

// Wait reports negative handles as complete and fails for any other.
func Wait(fd int, _ time.Duration) (bool, error) {
	if fd < 0 {
		return true, nil
	}
	return false, ErrUnsupported
}

// Close ignores negative handles and fails for any other.
func Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return ErrUnsupported
}
