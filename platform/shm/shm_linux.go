//go:build linux

package shm

import (
	"golang.org/x/sys/unix"
)

func allocate(name string, size int) (int, []byte, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return -1, nil, err
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return -1, nil, err
	}
	return fd, data, nil
}

func release(fd int, data []byte) error {
	if err := unix.Munmap(data); err != nil {
		_ = unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}
