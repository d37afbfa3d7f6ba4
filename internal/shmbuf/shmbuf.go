// Package shmbuf adapts shared-memory buffers to swapring.PlatformBuffer
// for the backends that scan out through CPU-visible memory.
package shmbuf

import (
	"fmt"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/platform/shm"
)

// Buffer is a shared-memory slot buffer. It implements
// swapring.PlatformBuffer and swapring.Mappable.
type Buffer struct {
	*shm.Buffer
	desc swapring.BufferDesc
}

var (
	_ swapring.PlatformBuffer = (*Buffer)(nil)
	_ swapring.Mappable       = (*Buffer)(nil)
)

// Allocate allocates a tightly packed buffer for desc.
func Allocate(desc swapring.BufferDesc) (*Buffer, error) {
	bpp := swapring.BytesPerPixel(desc.Format)
	if bpp == 0 {
		return nil, fmt.Errorf("shmbuf: unsupported format %s", desc.Format)
	}
	name := desc.Label
	if name == "" {
		name = "swapring"
	}
	b, err := shm.New(name, desc.Width, desc.Height, desc.Width*bpp)
	if err != nil {
		return nil, err
	}
	return &Buffer{Buffer: b, desc: desc}, nil
}

// Desc returns the descriptor the buffer was allocated with.
func (b *Buffer) Desc() swapring.BufferDesc { return b.desc }

// Release closes the shared memory.
func (b *Buffer) Release() {
	_ = b.Close()
}
