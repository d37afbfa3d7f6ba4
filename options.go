package swapring

import (
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
)

// DefaultFenceTimeout bounds the wait on a slot's fence before reuse.
// A wait that exceeds it escalates to a full GPU-idle wait.
const DefaultFenceTimeout = time.Second

// PoolOption configures a Pool during creation.
//
// Example:
//
//	pool, err := swapring.NewPool(dev, 800, 600, 3,
//	    swapring.WithFormat(gputypes.TextureFormatBGRA8Unorm),
//	    swapring.WithFenceTimeout(500*time.Millisecond))
type PoolOption func(*poolOptions)

// poolOptions holds optional configuration for Pool creation.
type poolOptions struct {
	format       gputypes.TextureFormat
	fenceTimeout time.Duration
	logger       *slog.Logger
	label        string
}

// defaultPoolOptions returns the default pool options.
func defaultPoolOptions() poolOptions {
	return poolOptions{
		format:       gputypes.TextureFormatRGBA8Unorm,
		fenceTimeout: DefaultFenceTimeout,
		label:        "swapring",
	}
}

// WithFormat sets the pixel format of every slot buffer.
// Only RGBA8Unorm and BGRA8Unorm are accepted by NewPool.
func WithFormat(format gputypes.TextureFormat) PoolOption {
	return func(o *poolOptions) {
		o.format = format
	}
}

// WithFenceTimeout sets the bound on the fence wait before a slot is reused.
// The same bound applies to the wait for the compositor to release the
// slot buffer. Non-positive values restore DefaultFenceTimeout.
func WithFenceTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d <= 0 {
			d = DefaultFenceTimeout
		}
		o.fenceTimeout = d
	}
}

// WithLogger sets a logger for this pool only, overriding the package
// default configured with SetLogger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		o.logger = l
	}
}

// WithLabel sets the debug label used for buffers and log records.
func WithLabel(label string) PoolOption {
	return func(o *poolOptions) {
		o.label = label
	}
}

// BytesPerPixel returns the pixel size of a supported slot format, or 0
// when the format cannot back a slot.
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 0
	}
}
