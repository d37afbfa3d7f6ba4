package raster

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/backend"
	"github.com/gogpu/swapring/internal/shmbuf"
	"github.com/gogpu/swapring/platform/syncfd"
)

func init() {
	backend.Register(backend.BackendRaster, func(gpucontext.DeviceProvider) (swapring.Device, error) {
		return New(), nil
	})
}

// slogger returns the shared swapring logger.
func slogger() *slog.Logger { return swapring.Logger() }

var errForeignBuffer = errors.New("raster: buffer was not allocated by this backend")

// Option configures a Device.
type Option func(*Device)

// WithSyncExport enables or disables sync handle export. Export is enabled
// by default where the platform supports it.
func WithSyncExport(enabled bool) Option {
	return func(d *Device) {
		d.exportSync = d.exportSync && enabled
	}
}

// WithContextOptions passes options to every gg.Context the backend creates.
func WithContextOptions(opts ...gg.ContextOption) Option {
	return func(d *Device) {
		d.ctxOpts = append(d.ctxOpts, opts...)
	}
}

// Device is the raster backend. It implements swapring.Device,
// swapring.FenceDevice, swapring.SyncExporter and swapring.CapabilityProber.
//
// Device is not safe for concurrent use, matching swapring.Pool.
type Device struct {
	target     *Image
	exportSync bool
	ctxOpts    []gg.ContextOption
}

var (
	_ swapring.Device           = (*Device)(nil)
	_ swapring.FenceDevice      = (*Device)(nil)
	_ swapring.SyncExporter     = (*Device)(nil)
	_ swapring.CapabilityProber = (*Device)(nil)
)

// New creates a raster device.
func New(opts ...Option) *Device {
	d := &Device{exportSync: probeSyncExport()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// probeSyncExport reports whether sync handles can be created here.
func probeSyncExport() bool {
	fd, err := syncfd.NewSignaled()
	if err != nil {
		return false
	}
	_ = syncfd.Close(fd)
	return true
}

// Name returns "raster".
func (d *Device) Name() string { return backend.BackendRaster }

// AllocateBuffer allocates a shared-memory buffer.
func (d *Device) AllocateBuffer(desc swapring.BufferDesc) (swapring.PlatformBuffer, error) {
	buf, err := shmbuf.Allocate(desc)
	if err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}
	return buf, nil
}

// ReleaseBuffer closes the buffer's shared memory.
func (d *Device) ReleaseBuffer(buf swapring.PlatformBuffer) {
	if b, ok := buf.(*shmbuf.Buffer); ok {
		b.Release()
	}
}

// ImportImage creates a gg context over a pixmap the size of buf.
func (d *Device) ImportImage(buf swapring.PlatformBuffer) (swapring.Image, error) {
	b, ok := buf.(*shmbuf.Buffer)
	if !ok {
		return nil, errForeignBuffer
	}
	desc := b.Desc()
	pm := gg.NewPixmap(desc.Width, desc.Height)
	opts := append([]gg.ContextOption{gg.WithPixmap(pm)}, d.ctxOpts...)
	return &Image{
		buf:    b,
		pixmap: pm,
		ctx:    gg.NewContext(desc.Width, desc.Height, opts...),
		format: desc.Format,
	}, nil
}

// DestroyImage closes the image's gg context.
func (d *Device) DestroyImage(img swapring.Image) {
	im, ok := img.(*Image)
	if !ok {
		return
	}
	_ = im.ctx.Close()
	if d.target == im {
		d.target = nil
	}
}

// BindRenderTarget makes img the image returned by Target.
func (d *Device) BindRenderTarget(img swapring.Image) error {
	im, ok := img.(*Image)
	if !ok {
		return fmt.Errorf("raster: bind: unexpected image type %T", img)
	}
	d.target = im
	return nil
}

// Target returns the bound image, or nil.
func (d *Device) Target() *Image { return d.target }

// Context returns the gg context of the bound image, or nil.
func (d *Device) Context() *gg.Context {
	if d.target == nil {
		return nil
	}
	return d.target.ctx
}

// Flush resolves the image's pixmap into its shared buffer.
func (d *Device) Flush(img swapring.Image) error {
	im, ok := img.(*Image)
	if !ok {
		return fmt.Errorf("raster: flush: unexpected image type %T", img)
	}
	if err := im.ctx.FlushGPU(); err != nil {
		return fmt.Errorf("raster: flush gg: %w", err)
	}
	im.resolve()
	slogger().Debug("raster: flushed", "width", im.pixmap.Width(), "height", im.pixmap.Height())
	return nil
}

// WaitIdle returns immediately: raster work completes inside Flush.
func (d *Device) WaitIdle() error { return nil }

// fence is a CPU-side fence. Work is complete when Flush returns, so a
// submitted fence is signaled at once.
type fence struct {
	signaled bool
}

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (swapring.Fence, error) {
	return &fence{signaled: signaled}, nil
}

// SubmitFence signals f.
func (d *Device) SubmitFence(f swapring.Fence) error {
	f.(*fence).signaled = true
	return nil
}

// WaitFence reports the fence state without blocking.
func (d *Device) WaitFence(f swapring.Fence, _ time.Duration) (bool, error) {
	return f.(*fence).signaled, nil
}

// ResetFence unsignals f.
func (d *Device) ResetFence(f swapring.Fence) error {
	f.(*fence).signaled = false
	return nil
}

// DestroyFence is a no-op.
func (d *Device) DestroyFence(swapring.Fence) {}

// ExportSync returns an already signaled sync handle.
func (d *Device) ExportSync() (swapring.FenceHandle, error) {
	if !d.exportSync {
		return swapring.NoFence, syncfd.ErrUnsupported
	}
	fd, err := syncfd.NewSignaled()
	if err != nil {
		return swapring.NoFence, err
	}
	return swapring.FenceHandle(fd), nil
}

// WaitSync waits on h.
func (d *Device) WaitSync(h swapring.FenceHandle, timeout time.Duration) (bool, error) {
	return syncfd.Wait(int(h), timeout)
}

// CloseSync closes h.
func (d *Device) CloseSync(h swapring.FenceHandle) error {
	return syncfd.Close(int(h))
}

// SupportsFences returns true.
func (d *Device) SupportsFences() bool { return true }

// SupportsSyncExport reports whether ExportSync can create handles.
func (d *Device) SupportsSyncExport() bool { return d.exportSync }

// Image is a raster slot image: a gg context drawing into a pixmap that
// Flush copies into the slot buffer.
type Image struct {
	buf    *shmbuf.Buffer
	pixmap *gg.Pixmap
	ctx    *gg.Context
	format gputypes.TextureFormat
}

// Context returns the gg context drawing into the image.
func (im *Image) Context() *gg.Context { return im.ctx }

// Pixmap returns the image's pixmap.
func (im *Image) Pixmap() *gg.Pixmap { return im.pixmap }

// resolve copies the pixmap (RGBA) into the shared buffer in the buffer's
// format.
func (im *Image) resolve() {
	src := im.pixmap.Data()
	dst := im.buf.Pixels()
	w, h := im.pixmap.Width(), im.pixmap.Height()
	rowBytes := w * 4
	stride := im.buf.Stride()

	if im.format != gputypes.TextureFormatBGRA8Unorm {
		for y := 0; y < h; y++ {
			copy(dst[y*stride:y*stride+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
		}
		return
	}
	for y := 0; y < h; y++ {
		s := src[y*rowBytes : (y+1)*rowBytes]
		d := dst[y*stride : y*stride+rowBytes]
		for i := 0; i < rowBytes; i += 4 {
			d[i+0] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i+0]
			d[i+3] = s[i+3]
		}
	}
}
