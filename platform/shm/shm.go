// Package shm allocates pixel buffers in memory that can be shared with a
// compositor process.
//
// On Linux buffers are anonymous memfd files mapped read-write and shared,
// so the file descriptor can be passed to another process. Elsewhere they
// fall back to process-local heap memory and FD returns -1.
package shm

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when using a buffer after Close.
var ErrClosed = errors.New("shm: buffer closed")

// Buffer is a width x height pixel buffer with a fixed row stride.
type Buffer struct {
	fd     int
	width  int
	height int
	stride int
	data   []byte
}

// New allocates a buffer of height rows of stride bytes.
func New(name string, width, height, stride int) (*Buffer, error) {
	if width <= 0 || height <= 0 || stride < width {
		return nil, fmt.Errorf("shm: invalid buffer %dx%d, stride %d", width, height, stride)
	}
	fd, data, err := allocate(name, stride*height)
	if err != nil {
		return nil, fmt.Errorf("shm: allocate %d bytes: %w", stride*height, err)
	}
	return &Buffer{
		fd:     fd,
		width:  width,
		height: height,
		stride: stride,
		data:   data,
	}, nil
}

// Pixels returns the mapped memory, Stride()*Height() bytes.
// It returns nil after Close.
func (b *Buffer) Pixels() []byte { return b.data }

// FD returns the file descriptor backing the buffer, or -1.
func (b *Buffer) FD() int { return b.fd }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int { return b.stride }

// Row returns the bytes of row y.
func (b *Buffer) Row(y int) []byte {
	off := y * b.stride
	return b.data[off : off+b.stride]
}

// Close unmaps the memory and closes the file descriptor.
func (b *Buffer) Close() error {
	if b.data == nil {
		return ErrClosed
	}
	err := release(b.fd, b.data)
	b.data = nil
	b.fd = -1
	return err
}
