// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package swapring

import (
	"time"

	"github.com/gogpu/gputypes"
)

// BufferDesc describes the platform buffers backing every slot of a pool.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the buffer dimensions in pixels.
	Width  int
	Height int

	// Format is the pixel format. Only 4-byte formats are supported.
	Format gputypes.TextureFormat

	// Usage is always at least RenderAttachment | TextureBinding so the
	// buffer can be drawn into by the GPU and sampled by the compositor.
	Usage gputypes.TextureUsage
}

// slotUsage is the usage every slot buffer is allocated with.
const slotUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding

// PlatformBuffer is a pixel buffer allocated by the platform and shareable
// between the GPU and the compositor.
type PlatformBuffer interface {
	// Desc returns the descriptor the buffer was allocated with.
	Desc() BufferDesc

	// Stride returns the number of bytes per row.
	Stride() int
}

// Mappable is implemented by platform buffers with CPU-visible memory.
// Software compositors use it to scan out presented buffers.
type Mappable interface {
	// Pixels returns the mapped pixel memory, Stride()*Height bytes.
	Pixels() []byte
}

// Image is a GPU image or render target imported from a PlatformBuffer.
// Backends return their own concrete types; the pool only passes them
// back to the device that created them.
type Image any

// Memory is device memory backing an Image on backends that require
// explicit memory binding.
type Memory any

// Fence is a GPU completion fence owned by a FenceDevice.
type Fence any

// Device is the capability set every backend implements.
//
// A Device wraps a GPU device and queue owned by the host application.
// The pool never creates or destroys the underlying device.
type Device interface {
	// Name returns the backend identifier (e.g., "raster", "wgpu").
	Name() string

	// AllocateBuffer allocates a platform-shareable pixel buffer.
	AllocateBuffer(desc BufferDesc) (PlatformBuffer, error)

	// ReleaseBuffer releases a buffer returned by AllocateBuffer.
	ReleaseBuffer(buf PlatformBuffer)

	// ImportImage creates a GPU image declared as externally backed by buf.
	ImportImage(buf PlatformBuffer) (Image, error)

	// DestroyImage destroys an image returned by ImportImage.
	DestroyImage(img Image)

	// BindRenderTarget makes img the active draw destination of the
	// drawing-library context.
	BindRenderTarget(img Image) error

	// Flush submits the drawing work recorded into img to the GPU.
	Flush(img Image) error

	// WaitIdle blocks until all outstanding GPU work has completed.
	WaitIdle() error
}

// MemoryRequirements describes the device memory an imported image needs.
type MemoryRequirements struct {
	// Size is the allocation size in bytes.
	Size uint64

	// TypeBits has bit i set when memory type i can back the image.
	TypeBits uint32
}

// MemoryBinder is implemented by backends whose images need device memory
// allocated and bound explicitly after import.
type MemoryBinder interface {
	// MemoryRequirements queries the buffer's native memory requirements.
	MemoryRequirements(buf PlatformBuffer) (MemoryRequirements, error)

	// AllocateMemory allocates size bytes from the given memory type.
	AllocateMemory(size uint64, memoryType int) (Memory, error)

	// BindMemory binds mem as the backing store of img.
	BindMemory(img Image, mem Memory) error

	// FreeMemory frees memory returned by AllocateMemory.
	FreeMemory(mem Memory)
}

// FenceDevice is implemented by backends with submission-level fences.
type FenceDevice interface {
	// CreateFence creates a fence, optionally already signaled.
	CreateFence(signaled bool) (Fence, error)

	// SubmitFence issues an empty submission that signals f once all
	// previously submitted work has completed.
	SubmitFence(f Fence) error

	// WaitFence waits for f. It returns false when the timeout expired.
	WaitFence(f Fence, timeout time.Duration) (bool, error)

	// ResetFence returns f to the unsignaled state.
	ResetFence(f Fence) error

	// DestroyFence destroys f.
	DestroyFence(f Fence)
}

// SyncExporter is implemented by backends that can export GPU completion
// as a handle transferable to another process (a sync file).
type SyncExporter interface {
	// ExportSync creates a sync object after the most recent GPU commands,
	// flushes the command stream, extracts a transferable handle and
	// destroys the local sync object. The caller owns the handle.
	ExportSync() (FenceHandle, error)

	// WaitSync waits for an exported handle without consuming it.
	WaitSync(h FenceHandle, timeout time.Duration) (bool, error)

	// CloseSync releases an exported handle.
	CloseSync(h FenceHandle) error
}

// CapabilityProber is implemented by devices whose optional capabilities
// are only known at runtime (e.g., a missing driver extension).
// Devices that do not implement it are probed by interface assertion only.
type CapabilityProber interface {
	// SupportsFences reports whether fence create/wait/destroy work.
	SupportsFences() bool

	// SupportsSyncExport reports whether ExportSync can produce handles.
	SupportsSyncExport() bool
}

// capabilities is the result of probing a Device once at pool creation.
type capabilities struct {
	fences   FenceDevice
	exporter SyncExporter
	memory   MemoryBinder
}

func probe(dev Device) capabilities {
	var c capabilities
	c.memory, _ = dev.(MemoryBinder)
	c.fences, _ = dev.(FenceDevice)
	c.exporter, _ = dev.(SyncExporter)
	if p, ok := dev.(CapabilityProber); ok {
		if !p.SupportsFences() {
			c.fences = nil
		}
		if !p.SupportsSyncExport() {
			c.exporter = nil
		}
	}
	return c
}
