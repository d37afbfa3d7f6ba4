//go:build linux

package syncfd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// New returns an unsignaled handle. Signal it with Signal.
func New() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("syncfd: eventfd: %w", err)
	}
	return fd, nil
}

// NewSignaled returns a handle that is already signaled.
func NewSignaled() (int, error) {
	fd, err := unix.Eventfd(1, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("syncfd: eventfd: %w", err)
	}
	return fd, nil
}

// Signal marks a handle created by New as complete.
func Signal(fd int) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(fd, buf[:]); err != nil {
		return fmt.Errorf("syncfd: signal %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until fd is signaled or the timeout expires. It reports
// false on timeout. Waiting does not consume the handle.
func Wait(fd int, timeout time.Duration) (bool, error) {
	if fd < 0 {
		return true, nil
	}
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMillis(timeout))
		if errors.Is(err, unix.EINTR) {
			if timeout >= 0 {
				timeout = time.Until(deadline)
				if timeout < 0 {
					timeout = 0
				}
			}
			continue
		}
		if err != nil {
			return false, fmt.Errorf("syncfd: poll %d: %w", fd, err)
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("syncfd: poll %d: revents %#x", fd, fds[0].Revents)
		}
		return true, nil
	}
}

// Close closes fd. Negative handles are ignored.
func Close(fd int) error {
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("syncfd: close %d: %w", fd, err)
	}
	return nil
}
