// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package swapring

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
)

// Slot count bounds. Two slots is the minimum useful value for overlapping
// rendering and display; more slots trade latency for throughput headroom.
const (
	MinSlots     = 1
	MaxSlots     = 4
	DefaultSlots = 3
)

// Stats counts pool activity since creation.
type Stats struct {
	// Acquired, Submitted and Presented count successful frame steps.
	Acquired  uint64
	Submitted uint64
	Presented uint64

	// FenceWaits counts waits on a pending slot fence before reuse.
	FenceWaits uint64

	// FenceTimeouts counts fence waits that hit the timeout or failed.
	FenceTimeouts uint64

	// IdleWaits counts full GPU-idle waits used as a fallback.
	IdleWaits uint64

	// SubmitFailures counts failed flushes and fence submissions.
	SubmitFailures uint64

	// FencesExported counts handles returned by CreateFence.
	FencesExported uint64

	// ReleaseWaits counts waits for the compositor to release a presented
	// buffer; ReleaseTimeouts counts those that gave up and revoked it.
	ReleaseWaits    uint64
	ReleaseTimeouts uint64
}

// Pool is a ring of buffer slots presented to a compositor.
//
// A Pool is created once per output surface and destroyed on surface
// loss, suspension or shutdown. It owns its slots; the GPU device is owned
// by the host and only borrowed.
//
// Pool is NOT safe for concurrent use. All operations are expected on the
// goroutine that drives the GPU; callers that need more serialize access
// externally.
type Pool struct {
	dev    Device
	caps   capabilities
	opts   poolOptions
	count  int
	slots  []*Slot
	width  int
	height int

	// current is the index of the most recently acquired slot, -1 before
	// the first Acquire.
	current int
	closed  bool
	stats   Stats
}

// NewPool creates a pool of count slots of width x height pixels.
//
// A count outside [MinSlots, MaxSlots] falls back to DefaultSlots.
// Creation is all-or-nothing: when any slot fails, the slots created so far
// are destroyed and the error is returned. The error wraps ErrAllocation
// or ErrImport; callers may fall back to a non-shared rendering path.
func NewPool(dev Device, width, height, count int, opts ...PoolOption) (*Pool, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidArgument, width, height)
	}

	o := defaultPoolOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if BytesPerPixel(o.format) == 0 {
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidArgument, o.format)
	}
	if count < MinSlots || count > MaxSlots {
		count = DefaultSlots
	}

	p := &Pool{
		dev:     dev,
		caps:    probe(dev),
		opts:    o,
		count:   count,
		current: -1,
	}

	slots, err := p.createSlots(width, height)
	if err != nil {
		p.log().Warn("swapring: pool creation failed",
			"backend", dev.Name(), "width", width, "height", height, "count", count, "err", err)
		return nil, err
	}
	p.slots = slots
	p.width = width
	p.height = height

	p.log().Info("swapring: pool created",
		"label", o.label, "backend", dev.Name(),
		"width", width, "height", height, "count", count,
		"format", o.format.String(), "fences", p.FenceCapable())
	return p, nil
}

// log returns the pool logger, falling back to the package default.
func (p *Pool) log() *slog.Logger {
	if p.opts.logger != nil {
		return p.opts.logger
	}
	return Logger()
}

func (p *Pool) desc(width, height int) BufferDesc {
	return BufferDesc{
		Label:  p.opts.label,
		Width:  width,
		Height: height,
		Format: p.opts.format,
		Usage:  slotUsage,
	}
}

// createSlots creates count slots, destroying all of them on failure.
func (p *Pool) createSlots(width, height int) ([]*Slot, error) {
	desc := p.desc(width, height)
	slots := make([]*Slot, 0, p.count)
	for i := 0; i < p.count; i++ {
		s, err := newSlot(p.dev, &p.caps, desc, i)
		if err != nil {
			for _, made := range slots {
				made.destroy()
			}
			return nil, fmt.Errorf("swapring: create slot %d: %w", i, err)
		}
		p.log().Debug("swapring: slot created", "slot", i, "width", width, "height", height)
		slots = append(slots, s)
	}
	return slots, nil
}

func (p *Pool) destroySlots() {
	for _, s := range p.slots {
		s.destroy()
	}
	p.slots = nil
}

// Acquire advances the ring and binds the next slot as the render target.
//
// Slots are acquired strictly in the order 0, 1, ..., count-1, 0, ...
// When the next slot still has a pending fence, Acquire waits for it (see
// WithFenceTimeout) before rebinding its image. On error the ring does
// not advance.
func (p *Pool) Acquire() (int, error) {
	if p.closed {
		return -1, ErrPoolClosed
	}
	if len(p.slots) == 0 {
		return -1, ErrNoSlots
	}

	next := (p.current + 1) % len(p.slots)
	s := p.slots[next]
	if s.state == SlotBound {
		return -1, fmt.Errorf("%w: slot %d", ErrSlotBusy, next)
	}

	p.beforeReuse(s)

	if err := p.dev.BindRenderTarget(s.image); err != nil {
		return -1, fmt.Errorf("swapring: bind slot %d: %w", next, err)
	}
	s.state = SlotBound
	p.current = next
	p.stats.Acquired++
	return next, nil
}

// Resize recreates every slot at the new dimensions.
//
// Resize is a no-op when the dimensions are unchanged. Otherwise it waits
// for the GPU to finish all outstanding work, destroys every slot and
// recreates all of them. If recreation fails the pool is left with zero
// usable slots (Acquire returns ErrNoSlots) and a size of 0x0, so a later
// Resize to any size retries. The ring restarts at slot 0.
func (p *Pool) Resize(width, height int) error {
	if p.closed {
		return ErrPoolClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidArgument, width, height)
	}
	if width == p.width && height == p.height {
		return nil
	}

	// Resize invalidates every slot at once, so drain the whole device
	// instead of waiting on per-slot fences.
	if err := p.dev.WaitIdle(); err != nil {
		return fmt.Errorf("swapring: drain before resize: %w", err)
	}
	p.destroySlots()
	p.current = -1

	slots, err := p.createSlots(width, height)
	if err != nil {
		p.width, p.height = 0, 0
		p.log().Warn("swapring: resize failed, pool has no slots",
			"width", width, "height", height, "err", err)
		return err
	}
	p.slots = slots
	p.width = width
	p.height = height

	p.log().Info("swapring: pool resized", "label", p.opts.label, "width", width, "height", height)
	return nil
}

// Close waits for the GPU to go idle and destroys every slot.
// After Close, the Pool must not be used. Close is idempotent.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.dev.WaitIdle()
	if err != nil {
		p.log().Warn("swapring: idle wait before destroy failed", "err", err)
	}
	p.destroySlots()

	p.log().Info("swapring: pool destroyed", "label", p.opts.label)
	if err != nil {
		return fmt.Errorf("swapring: drain before destroy: %w", err)
	}
	return nil
}

// Len returns the number of usable slots. It is zero after a failed Resize.
func (p *Pool) Len() int { return len(p.slots) }

// Size returns the slot dimensions.
func (p *Pool) Size() (width, height int) { return p.width, p.height }

// Format returns the pixel format of every slot buffer.
func (p *Pool) Format() gputypes.TextureFormat { return p.opts.format }

// Current returns the index of the most recently acquired slot, or -1.
func (p *Pool) Current() int { return p.current }

// FenceCapable reports whether the device offers fence primitives, either
// submission-level fences or exportable sync handles. Detected once at
// creation.
func (p *Pool) FenceCapable() bool {
	return p.caps.fences != nil || p.caps.exporter != nil
}

// Device returns the device the pool was created with.
func (p *Pool) Device() Device { return p.dev }

// Slot returns slot i, or nil when i is out of range.
func (p *Pool) Slot(i int) *Slot {
	if i < 0 || i >= len(p.slots) {
		return nil
	}
	return p.slots[i]
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() Stats { return p.stats }

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool { return p.closed }
