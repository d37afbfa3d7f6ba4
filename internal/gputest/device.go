// Package gputest provides a counting fake backend for swapring tests.
//
// Device records every call, keeps live-resource counters for buffers,
// images, memory, fences and sync handles, and can be told to fail any
// operation. All methods are safe for concurrent use.
package gputest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/swapring"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("gputest: injected failure")

// Buffer is a fake platform buffer with heap pixel memory.
type Buffer struct {
	ID     int
	desc   swapring.BufferDesc
	stride int
	pixels []byte
}

// Desc implements swapring.PlatformBuffer.
func (b *Buffer) Desc() swapring.BufferDesc { return b.desc }

// Stride implements swapring.PlatformBuffer.
func (b *Buffer) Stride() int { return b.stride }

// Pixels implements swapring.Mappable.
func (b *Buffer) Pixels() []byte { return b.pixels }

// Image is a fake GPU image imported from a Buffer.
type Image struct {
	ID     int
	Buffer *Buffer
}

// Fence is a fake submission fence.
type Fence struct {
	ID       int
	signaled bool
}

// Counters is a snapshot of Device call and resource counters.
type Counters struct {
	BuffersAllocated int
	BuffersReleased  int
	ImagesImported   int
	ImagesDestroyed  int
	MemoryAllocated  int
	MemoryFreed      int
	FencesCreated    int
	FencesDestroyed  int
	FenceSubmits     int
	FenceWaits       int
	FenceResets      int
	SyncExported     int
	SyncWaits        int
	SyncClosed       int
	DoubleCloses     int
	Binds            int
	Flushes          int
	WaitIdles        int
}

// LiveBuffers returns the number of buffers not yet released.
func (c Counters) LiveBuffers() int { return c.BuffersAllocated - c.BuffersReleased }

// LiveImages returns the number of images not yet destroyed.
func (c Counters) LiveImages() int { return c.ImagesImported - c.ImagesDestroyed }

// LiveMemory returns the number of memory allocations not yet freed.
func (c Counters) LiveMemory() int { return c.MemoryAllocated - c.MemoryFreed }

// LiveFences returns the number of fences not yet destroyed.
func (c Counters) LiveFences() int { return c.FencesCreated - c.FencesDestroyed }

// LiveSync returns the number of exported sync handles not yet closed.
func (c Counters) LiveSync() int { return c.SyncExported - c.SyncClosed }

// Device is a fake swapring.Device that also implements FenceDevice,
// SyncExporter and CapabilityProber. Which optional capabilities the pool
// sees is controlled by Fences and SyncExport.
type Device struct {
	// Fences enables the FenceDevice capability.
	Fences bool

	// SyncExport enables the SyncExporter capability.
	SyncExport bool

	// FailAllocateAt makes the n-th AllocateBuffer call fail (1-based).
	FailAllocateAt int

	// FailImportAt makes the n-th ImportImage call fail (1-based).
	FailImportAt int

	// FailCreateFenceAt makes the n-th CreateFence call fail (1-based).
	FailCreateFenceAt int

	// HangFences makes submitted fences and exported handles never signal,
	// so every wait times out.
	HangFences bool

	// Failure injection for single operations.
	FailBind        error
	FailFlush       error
	FailSubmitFence error
	FailExport      error
	FailWaitFence   error
	FailResetFence  error
	FailWaitIdle    error

	mu       sync.Mutex
	c        Counters
	nextID   int
	allocs   int
	imports  int
	creates  int
	live     map[swapring.FenceHandle]bool
	pending  map[swapring.FenceHandle]bool
	fences   []*Fence
	events   []string
	bound    *Image
	nextSync swapring.FenceHandle
}

// NewDevice returns a device with fences and sync export enabled.
func NewDevice() *Device {
	return &Device{Fences: true, SyncExport: true}
}

// NewBasicDevice returns a device without any fence capability.
func NewBasicDevice() *Device {
	return &Device{}
}

var (
	_ swapring.Device           = (*Device)(nil)
	_ swapring.FenceDevice      = (*Device)(nil)
	_ swapring.SyncExporter     = (*Device)(nil)
	_ swapring.CapabilityProber = (*Device)(nil)
)

func (d *Device) record(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *Device) id() int {
	d.nextID++
	return d.nextID
}

// Counters returns a snapshot of the counters.
func (d *Device) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.c
}

// Events returns the recorded call log, e.g. "bind 3", "wait fence 2".
func (d *Device) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// ResetEvents clears the call log.
func (d *Device) ResetEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

// Bound returns the image most recently bound as render target.
func (d *Device) Bound() *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

// Name implements swapring.Device.
func (d *Device) Name() string { return "gputest" }

// SupportsFences implements swapring.CapabilityProber.
func (d *Device) SupportsFences() bool { return d.Fences }

// SupportsSyncExport implements swapring.CapabilityProber.
func (d *Device) SupportsSyncExport() bool { return d.SyncExport }

// AllocateBuffer implements swapring.Device.
func (d *Device) AllocateBuffer(desc swapring.BufferDesc) (swapring.PlatformBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocs++
	if d.allocs == d.FailAllocateAt {
		return nil, ErrInjected
	}
	bpp := swapring.BytesPerPixel(desc.Format)
	b := &Buffer{
		ID:     d.id(),
		desc:   desc,
		stride: desc.Width * bpp,
		pixels: make([]byte, desc.Width*bpp*desc.Height),
	}
	d.c.BuffersAllocated++
	d.record("allocate %d", b.ID)
	return b, nil
}

// ReleaseBuffer implements swapring.Device.
func (d *Device) ReleaseBuffer(buf swapring.PlatformBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.c.BuffersReleased++
	d.record("release %d", buf.(*Buffer).ID)
}

// ImportImage implements swapring.Device.
func (d *Device) ImportImage(buf swapring.PlatformBuffer) (swapring.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imports++
	if d.imports == d.FailImportAt {
		return nil, ErrInjected
	}
	img := &Image{ID: d.id(), Buffer: buf.(*Buffer)}
	d.c.ImagesImported++
	d.record("import %d", img.ID)
	return img, nil
}

// DestroyImage implements swapring.Device.
func (d *Device) DestroyImage(img swapring.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.c.ImagesDestroyed++
	d.record("destroy image %d", img.(*Image).ID)
}

// BindRenderTarget implements swapring.Device.
func (d *Device) BindRenderTarget(img swapring.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailBind != nil {
		return d.FailBind
	}
	d.bound = img.(*Image)
	d.c.Binds++
	d.record("bind %d", d.bound.ID)
	return nil
}

// Flush implements swapring.Device.
func (d *Device) Flush(img swapring.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailFlush != nil {
		return d.FailFlush
	}
	d.c.Flushes++
	d.record("flush %d", img.(*Image).ID)
	return nil
}

// WaitIdle implements swapring.Device. It signals every fence and handle.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.c.WaitIdles++
	d.record("wait idle")
	if d.FailWaitIdle != nil {
		return d.FailWaitIdle
	}
	for _, f := range d.fences {
		f.signaled = true
	}
	clear(d.pending)
	return nil
}

// CreateFence implements swapring.FenceDevice.
func (d *Device) CreateFence(signaled bool) (swapring.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if d.creates == d.FailCreateFenceAt {
		return nil, ErrInjected
	}
	f := &Fence{ID: d.id(), signaled: signaled}
	d.fences = append(d.fences, f)
	d.c.FencesCreated++
	d.record("create fence %d", f.ID)
	return f, nil
}

// SubmitFence implements swapring.FenceDevice.
func (d *Device) SubmitFence(f swapring.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailSubmitFence != nil {
		return d.FailSubmitFence
	}
	fence := f.(*Fence)
	fence.signaled = !d.HangFences
	d.c.FenceSubmits++
	d.record("submit fence %d", fence.ID)
	return nil
}

// WaitFence implements swapring.FenceDevice.
func (d *Device) WaitFence(f swapring.Fence, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fence := f.(*Fence)
	d.c.FenceWaits++
	d.record("wait fence %d", fence.ID)
	if d.FailWaitFence != nil {
		return false, d.FailWaitFence
	}
	return fence.signaled, nil
}

// ResetFence implements swapring.FenceDevice.
func (d *Device) ResetFence(f swapring.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fence := f.(*Fence)
	d.record("reset fence %d", fence.ID)
	if d.FailResetFence != nil {
		return d.FailResetFence
	}
	fence.signaled = false
	d.c.FenceResets++
	return nil
}

// DestroyFence implements swapring.FenceDevice.
func (d *Device) DestroyFence(f swapring.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fence := f.(*Fence)
	for i, g := range d.fences {
		if g == fence {
			d.fences = append(d.fences[:i], d.fences[i+1:]...)
			break
		}
	}
	d.c.FencesDestroyed++
	d.record("destroy fence %d", fence.ID)
}

// ExportSync implements swapring.SyncExporter. Handles start at 100.
func (d *Device) ExportSync() (swapring.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailExport != nil {
		return swapring.NoFence, d.FailExport
	}
	if d.live == nil {
		d.live = make(map[swapring.FenceHandle]bool)
		d.pending = make(map[swapring.FenceHandle]bool)
		d.nextSync = 100
	}
	h := d.nextSync
	d.nextSync++
	d.live[h] = true
	if d.HangFences {
		d.pending[h] = true
	}
	d.c.SyncExported++
	d.record("export %d", int(h))
	return h, nil
}

// WaitSync implements swapring.SyncExporter.
func (d *Device) WaitSync(h swapring.FenceHandle, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.c.SyncWaits++
	d.record("wait sync %d", int(h))
	if !d.live[h] {
		return false, fmt.Errorf("gputest: wait on closed handle %d", int(h))
	}
	return !d.pending[h], nil
}

// CloseSync implements swapring.SyncExporter. Closing a handle twice is
// counted in DoubleCloses and returns an error.
func (d *Device) CloseSync(h swapring.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live[h] {
		d.c.DoubleCloses++
		return fmt.Errorf("gputest: close of unknown handle %d", int(h))
	}
	delete(d.live, h)
	delete(d.pending, h)
	d.c.SyncClosed++
	d.record("close sync %d", int(h))
	return nil
}

// MemoryDevice is a Device that also requires explicit memory binding.
type MemoryDevice struct {
	*Device

	// TypeBits is reported by MemoryRequirements.
	TypeBits uint32

	// FailMemoryAt makes the n-th AllocateMemory call fail (1-based).
	FailMemoryAt int

	// FailBindMemoryAt makes the n-th BindMemory call fail (1-based).
	FailBindMemoryAt int

	// MemoryTypes records the memory type of every allocation.
	MemoryTypes []int

	memAllocs int
	memBinds  int
}

// Memory is fake device memory.
type Memory struct {
	ID   int
	Size uint64
}

var _ swapring.MemoryBinder = (*MemoryDevice)(nil)

// NewMemoryDevice returns a fence-capable device requiring memory binding.
func NewMemoryDevice(typeBits uint32) *MemoryDevice {
	return &MemoryDevice{Device: NewDevice(), TypeBits: typeBits}
}

// MemoryRequirements implements swapring.MemoryBinder.
func (m *MemoryDevice) MemoryRequirements(buf swapring.PlatformBuffer) (swapring.MemoryRequirements, error) {
	d := buf.Desc()
	return swapring.MemoryRequirements{
		Size:     uint64(buf.Stride() * d.Height),
		TypeBits: m.TypeBits,
	}, nil
}

// AllocateMemory implements swapring.MemoryBinder.
func (m *MemoryDevice) AllocateMemory(size uint64, memoryType int) (swapring.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memAllocs++
	if m.memAllocs == m.FailMemoryAt {
		return nil, ErrInjected
	}
	mem := &Memory{ID: m.id(), Size: size}
	m.MemoryTypes = append(m.MemoryTypes, memoryType)
	m.c.MemoryAllocated++
	m.record("allocate memory %d", mem.ID)
	return mem, nil
}

// BindMemory implements swapring.MemoryBinder.
func (m *MemoryDevice) BindMemory(img swapring.Image, mem swapring.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memBinds++
	if m.memBinds == m.FailBindMemoryAt {
		return ErrInjected
	}
	m.record("bind memory %d to %d", mem.(*Memory).ID, img.(*Image).ID)
	return nil
}

// FreeMemory implements swapring.MemoryBinder.
func (m *MemoryDevice) FreeMemory(mem swapring.Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.MemoryFreed++
	m.record("free memory %d", mem.(*Memory).ID)
}
