// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/backend"
	"github.com/gogpu/swapring/internal/shmbuf"
)

func init() {
	backend.Register(backend.BackendWGPU, Open)
}

// slogger returns the shared swapring logger.
func slogger() *slog.Logger { return swapring.Logger() }

// copyPitchAlignment is the row alignment WebGPU requires for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// DefaultReadbackTimeout bounds the wait for a frame's readback copy.
const DefaultReadbackTimeout = 5 * time.Second

// pollInterval is how often WaitFence polls the queue.
const pollInterval = 200 * time.Microsecond

var errForeignBuffer = errors.New("wgpu: buffer was not allocated by this backend")

// Option configures a Device.
type Option func(*Device)

// WithReadbackTimeout sets how long Flush waits for the readback copy.
// Non-positive values select DefaultReadbackTimeout.
func WithReadbackTimeout(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.readbackTimeout = d
		}
	}
}

// Device is the wgpu backend. It implements swapring.Device and
// swapring.FenceDevice.
type Device struct {
	device          *wgpu.Device
	queue           *wgpu.Queue
	target          *Image
	readbackTimeout time.Duration
}

var (
	_ swapring.Device      = (*Device)(nil)
	_ swapring.FenceDevice = (*Device)(nil)
)

// Open opens the backend on the wgpu device of provider.
// It returns backend.ErrNoDevice when provider carries no *wgpu.Device.
func Open(provider gpucontext.DeviceProvider) (swapring.Device, error) {
	if provider == nil {
		return nil, backend.ErrNoDevice
	}
	dev, _ := provider.Device().(*wgpu.Device)
	d, err := New(dev)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// New wraps a wgpu device. The caller keeps ownership of dev.
func New(dev *wgpu.Device, opts ...Option) (*Device, error) {
	if dev == nil {
		return nil, backend.ErrNoDevice
	}
	d := &Device{
		device:          dev,
		queue:           dev.Queue(),
		readbackTimeout: DefaultReadbackTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name returns "wgpu".
func (d *Device) Name() string { return backend.BackendWGPU }

// AllocateBuffer allocates the shared-memory buffer frames are read back
// into.
func (d *Device) AllocateBuffer(desc swapring.BufferDesc) (swapring.PlatformBuffer, error) {
	buf, err := shmbuf.Allocate(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: %w", err)
	}
	return buf, nil
}

// ReleaseBuffer closes the buffer's shared memory.
func (d *Device) ReleaseBuffer(buf swapring.PlatformBuffer) {
	if b, ok := buf.(*shmbuf.Buffer); ok {
		b.Release()
	}
}

// ImportImage creates the render texture, its view and the readback
// staging buffer for buf.
func (d *Device) ImportImage(buf swapring.PlatformBuffer) (swapring.Image, error) {
	b, ok := buf.(*shmbuf.Buffer)
	if !ok {
		return nil, errForeignBuffer
	}
	desc := b.Desc()
	w, h := uint32(desc.Width), uint32(desc.Height)

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture: %w", err)
	}
	view, err := d.device.CreateTextureView(tex, nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("wgpu: create texture view: %w", err)
	}

	rowBytes := w * uint32(swapring.BytesPerPixel(desc.Format))
	pitch := alignedPitch(rowBytes)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label + "_readback",
		Size:  uint64(pitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		view.Release()
		tex.Release()
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}

	return &Image{
		buf:      b,
		texture:  tex,
		view:     view,
		staging:  staging,
		width:    w,
		height:   h,
		rowBytes: rowBytes,
		pitch:    pitch,
	}, nil
}

// DestroyImage releases the image's GPU resources.
func (d *Device) DestroyImage(img swapring.Image) {
	im, ok := img.(*Image)
	if !ok {
		return
	}
	im.staging.Release()
	im.view.Release()
	im.texture.Release()
	if d.target == im {
		d.target = nil
	}
}

// BindRenderTarget makes img the image returned by Target.
func (d *Device) BindRenderTarget(img swapring.Image) error {
	im, ok := img.(*Image)
	if !ok {
		return fmt.Errorf("wgpu: bind: unexpected image type %T", img)
	}
	d.target = im
	return nil
}

// Target returns the bound image, or nil.
func (d *Device) Target() *Image { return d.target }

// Clear clears the bound image to c.
func (d *Device) Clear(c gputypes.Color) error {
	if d.target == nil {
		return errors.New("wgpu: clear: no render target bound")
	}
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "swapring_clear"})
	if err != nil {
		return fmt.Errorf("wgpu: create encoder: %w", err)
	}
	pass, err := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "swapring_clear",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       d.target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c,
		}},
	})
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("wgpu: begin render pass: %w", err)
	}
	if err := pass.End(); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("wgpu: end render pass: %w", err)
	}
	return d.submit(encoder)
}

// Flush copies the image into its staging buffer, waits for the copy and
// writes the rows into the slot buffer.
func (d *Device) Flush(img swapring.Image) error {
	im, ok := img.(*Image)
	if !ok {
		return fmt.Errorf("wgpu: flush: unexpected image type %T", img)
	}
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "swapring_readback"})
	if err != nil {
		return fmt.Errorf("wgpu: create encoder: %w", err)
	}

	// The texture leaves the render pass as a color attachment and must be
	// a copy source for the readback.
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: im.texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(im.texture, im.staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{BytesPerRow: im.pitch, RowsPerImage: im.height},
		TextureBase:  wgpu.ImageCopyTexture{Texture: im.texture},
		Size:         wgpu.Extent3D{Width: im.width, Height: im.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: im.texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	if err := d.submit(encoder); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.readbackTimeout)
	defer cancel()
	size := uint64(im.pitch) * uint64(im.height)
	if err := im.staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("wgpu: map staging buffer: %w", err)
	}
	defer func() { _ = im.staging.Unmap() }()

	rng, err := im.staging.MappedRange(0, size)
	if err != nil {
		return fmt.Errorf("wgpu: mapped range: %w", err)
	}
	defer rng.Release()

	unpadRows(im.buf.Pixels(), im.buf.Stride(), rng.Bytes(), int(im.pitch), int(im.rowBytes), int(im.height))
	slogger().Debug("wgpu: flushed", "width", im.width, "height", im.height)
	return nil
}

// submit finishes encoder and submits it to the queue.
func (d *Device) submit(encoder *wgpu.CommandEncoder) error {
	cmd, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("wgpu: finish encoder: %w", err)
	}
	if _, err := d.queue.Submit(cmd); err != nil {
		cmd.Release()
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	cmd.Release()
	return nil
}

// WaitIdle waits for all GPU work on the device.
func (d *Device) WaitIdle() error {
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	return nil
}

// CreateFence creates a submission-index fence.
func (d *Device) CreateFence(signaled bool) (swapring.Fence, error) {
	return &fence{signaled: signaled}, nil
}

// SubmitFence records the most recent submission index in f.
func (d *Device) SubmitFence(f swapring.Fence) error {
	ff, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("wgpu: unexpected fence type %T", f)
	}
	ff.submit(d.queue.LastSubmissionIndex())
	return nil
}

// WaitFence polls the queue until f's submission has completed or the
// timeout expires.
func (d *Device) WaitFence(f swapring.Fence, timeout time.Duration) (bool, error) {
	ff, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("wgpu: unexpected fence type %T", f)
	}
	deadline := time.Now().Add(timeout)
	for {
		if ff.completed(d.queue.Poll()) {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		d.device.Poll(wgpu.PollPoll)
		time.Sleep(pollInterval)
	}
}

// ResetFence unsignals f.
func (d *Device) ResetFence(f swapring.Fence) error {
	ff, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("wgpu: unexpected fence type %T", f)
	}
	ff.reset()
	return nil
}

// DestroyFence is a no-op: submission-index fences hold no GPU object.
func (d *Device) DestroyFence(swapring.Fence) {}

// fence tracks one queue submission index.
type fence struct {
	index    uint64
	signaled bool
}

func (f *fence) submit(index uint64) {
	f.index = index
	f.signaled = index == 0
}

func (f *fence) completed(lastDone uint64) bool {
	if !f.signaled && f.index <= lastDone {
		f.signaled = true
	}
	return f.signaled
}

func (f *fence) reset() {
	f.index = 0
	f.signaled = false
}

// Image is a wgpu slot image.
type Image struct {
	buf      *shmbuf.Buffer
	texture  *wgpu.Texture
	view     *wgpu.TextureView
	staging  *wgpu.Buffer
	width    uint32
	height   uint32
	rowBytes uint32
	pitch    uint32
}

// Texture returns the render texture.
func (im *Image) Texture() *wgpu.Texture { return im.texture }

// View returns a view of the render texture for use as a color attachment.
func (im *Image) View() *wgpu.TextureView { return im.view }

// alignedPitch rounds rowBytes up to copyPitchAlignment.
func alignedPitch(rowBytes uint32) uint32 {
	return (rowBytes + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// unpadRows copies rows rows of rowBytes from src, laid out with srcPitch,
// into dst laid out with dstStride.
func unpadRows(dst []byte, dstStride int, src []byte, srcPitch, rowBytes, rows int) {
	if dstStride == srcPitch && rowBytes == srcPitch {
		copy(dst, src[:rows*rowBytes])
		return
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*dstStride:y*dstStride+rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
}
