// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/platform/syncfd"
)

// Defaults.
const (
	DefaultFenceTimeout = time.Second
	DefaultRefresh      = time.Second / 60
)

// waitSlice bounds a single WaitSync call so cancellation is noticed.
const waitSlice = 10 * time.Millisecond

var (
	// ErrClosed is returned by operations on a closed compositor.
	ErrClosed = errors.New("compositor: closed")

	errApplied = errors.New("compositor: transaction already applied")
)

// SyncWaiter waits on and closes acquire fence handles.
// swapring.SyncExporter implementations satisfy it.
type SyncWaiter interface {
	WaitSync(h swapring.FenceHandle, timeout time.Duration) (bool, error)
	CloseSync(h swapring.FenceHandle) error
}

// fdSync handles fences as sync file descriptors.
type fdSync struct{}

func (fdSync) WaitSync(h swapring.FenceHandle, timeout time.Duration) (bool, error) {
	return syncfd.Wait(int(h), timeout)
}

func (fdSync) CloseSync(h swapring.FenceHandle) error {
	return syncfd.Close(int(h))
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithSync sets how fence handles are waited on and closed.
// The default treats them as sync file descriptors.
func WithSync(w SyncWaiter) Option {
	return func(c *Compositor) {
		if w != nil {
			c.sync = w
		}
	}
}

// WithFenceTimeout bounds the wait for a frame's acquire fence. A frame
// whose fence does not signal in time is dropped.
func WithFenceTimeout(d time.Duration) Option {
	return func(c *Compositor) {
		if d > 0 {
			c.fenceTimeout = d
		}
	}
}

// WithRefresh sets the Run refresh interval.
func WithRefresh(d time.Duration) Option {
	return func(c *Compositor) {
		if d > 0 {
			c.refresh = d
		}
	}
}

// WithScaler sets the interpolator used when a buffer and its surface
// differ in size. The default is draw.ApproxBiLinear.
func WithScaler(s draw.Interpolator) Option {
	return func(c *Compositor) {
		if s != nil {
			c.scaler = s
		}
	}
}

// WithBackground sets the color behind all surfaces.
func WithBackground(bg color.RGBA) Option {
	return func(c *Compositor) {
		c.bg = bg
	}
}

// WithLogger sets the compositor's logger. By default it uses
// swapring.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = l
	}
}

// Compositor is a software compositor. All methods are safe for
// concurrent use.
type Compositor struct {
	sync         SyncWaiter
	fenceTimeout time.Duration
	refresh      time.Duration
	scaler       draw.Interpolator
	bg           color.RGBA
	logger       *slog.Logger
	bounds       image.Rectangle

	// composeMu serializes Compose and guards back and every
	// Surface.current.
	composeMu sync.Mutex
	back      *image.RGBA

	mu       sync.Mutex
	front    *image.RGBA
	surfaces []*Surface
	closed   bool
	frames   uint64
	dropped  uint64
	wake     chan struct{}
}

// New creates a compositor with a width×height framebuffer.
func New(width, height int, opts ...Option) (*Compositor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: framebuffer %dx%d", swapring.ErrInvalidArgument, width, height)
	}
	c := &Compositor{
		sync:         fdSync{},
		fenceTimeout: DefaultFenceTimeout,
		refresh:      DefaultRefresh,
		scaler:       draw.ApproxBiLinear,
		bg:           color.RGBA{A: 0xff},
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	r := image.Rect(0, 0, width, height)
	c.bounds = r
	c.front = image.NewRGBA(r)
	c.back = image.NewRGBA(r)
	draw.Draw(c.front, r, image.NewUniform(c.bg), image.Point{}, draw.Src)
	return c, nil
}

func (c *Compositor) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return swapring.Logger()
}

// Bounds returns the framebuffer bounds.
func (c *Compositor) Bounds() image.Rectangle { return c.bounds }

// NewSurface creates a surface scanned out to bounds. Surfaces created
// later are drawn on top.
func (c *Compositor) NewSurface(bounds image.Rectangle) *Surface {
	s := &Surface{c: c, bounds: bounds, current: state{fence: swapring.NoFence}}
	c.mu.Lock()
	c.surfaces = append(c.surfaces, s)
	c.mu.Unlock()
	return s
}

// Frames returns the number of frames composed.
func (c *Compositor) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Dropped returns the number of presented frames that were never scanned
// out: replaced before being latched, with a fence that timed out, or
// reclaimed by their pool before the compositor could copy them.
func (c *Compositor) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Snapshot returns a copy of the last composed framebuffer.
func (c *Compositor) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	img := image.NewRGBA(c.front.Rect)
	copy(img.Pix, c.front.Pix)
	return img
}

// ReadPixels copies the last composed framebuffer (RGBA, tightly packed)
// into dst and returns the number of bytes copied.
func (c *Compositor) ReadPixels(dst []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copy(dst, c.front.Pix)
}

// Close closes the compositor and every fence handle it still owns.
// It is safe to call more than once.
func (c *Compositor) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var handles []swapring.FenceHandle
	for _, s := range c.surfaces {
		if s.pending == nil {
			continue
		}
		if s.pending.fence.Valid() {
			handles = append(handles, s.pending.fence)
		}
		s.pending.lease.Release()
		s.pending = nil
	}
	c.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := c.sync.CloseSync(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closeFence releases a handle the compositor owns.
func (c *Compositor) closeFence(h swapring.FenceHandle) {
	if !h.Valid() {
		return
	}
	if err := c.sync.CloseSync(h); err != nil {
		c.log().Warn("compositor: close fence failed", "fence", int(h), "err", err)
	}
}

func (c *Compositor) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run composes a frame on every refresh tick and whenever a transaction
// is applied, until ctx is done or the compositor is closed.
func (c *Compositor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-c.wake:
		}
		err := c.Compose(ctx)
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
	}
}

// latched is a surface update taken from the pending queue.
type latched struct {
	surface *Surface
	update  state
	ready   bool
}

// Compose latches the newest transaction of every surface, waits for the
// acquire fences concurrently, closes them and scans the surfaces out.
//
// Latched buffers are copied into surface-owned images and released to
// their pool right away, so scanout never reads client memory. A frame
// whose fence times out, or whose buffer was reclaimed or is unreadable,
// is dropped and the surface keeps showing its previous content.
func (c *Compositor) Compose(ctx context.Context) error {
	c.composeMu.Lock()
	defer c.composeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	surfaces := append([]*Surface(nil), c.surfaces...)
	var updates []*latched
	for _, s := range surfaces {
		if s.pending != nil {
			updates = append(updates, &latched{surface: s, update: *s.pending})
			s.pending = nil
		}
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range updates {
		h := u.update.fence
		if !h.Valid() {
			u.ready = true
			continue
		}
		g.Go(func() error {
			defer c.closeFence(h)
			ok, err := c.waitFence(gctx, h)
			if err != nil {
				return fmt.Errorf("compositor: wait fence %d: %w", int(h), err)
			}
			if !ok {
				c.log().Warn("compositor: acquire fence timed out", "fence", int(h), "timeout", c.fenceTimeout)
			}
			u.ready = ok
			return nil
		})
	}
	waitErr := g.Wait()

	var dropped uint64
	for _, u := range updates {
		if !u.ready {
			u.update.lease.Release()
			dropped++
			continue
		}
		if u.update.hasBuffer && !u.surface.latch(u.update) {
			dropped++
			u.update.hasBuffer = false
		}
		u.surface.current.merge(u.update)
	}

	c.scanout(surfaces)

	c.mu.Lock()
	c.front, c.back = c.back, c.front
	c.frames++
	c.dropped += dropped
	c.mu.Unlock()
	return waitErr
}

// waitFence waits for h in slices so that ctx cancellation is noticed.
func (c *Compositor) waitFence(ctx context.Context, h swapring.FenceHandle) (bool, error) {
	deadline := time.Now().Add(c.fenceTimeout)
	for {
		step := min(time.Until(deadline), waitSlice)
		if step < 0 {
			step = 0
		}
		ok, err := c.sync.WaitSync(h, step)
		if ok || err != nil {
			return ok, err
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// scanout draws every visible surface into the back buffer.
func (c *Compositor) scanout(surfaces []*Surface) {
	fb := c.back
	draw.Draw(fb, fb.Rect, image.NewUniform(c.bg), image.Point{}, draw.Src)
	for _, s := range surfaces {
		src := s.content
		if !s.current.visible || src == nil {
			continue
		}
		if s.bounds.Size() == src.Rect.Size() {
			draw.Draw(fb, s.bounds, src, src.Rect.Min, draw.Over)
			continue
		}
		c.scaler.Scale(fb, s.bounds, src, src.Rect, draw.Over, nil)
	}
}

// state is the attached state of a surface, or the changes a transaction
// makes to it.
type state struct {
	buffer     swapring.PlatformBuffer
	lease      *swapring.Lease
	fence      swapring.FenceHandle
	visible    bool
	hasBuffer  bool
	hasVisible bool
}

// merge applies the fields u sets.
func (s *state) merge(u state) {
	if u.hasBuffer {
		s.buffer = u.buffer
		s.hasBuffer = true
	}
	if u.hasVisible {
		s.visible = u.visible
		s.hasVisible = true
	}
}

// Surface is a compositor surface. It implements swapring.Surface.
type Surface struct {
	c      *Compositor
	bounds image.Rectangle

	// guarded by c.mu
	pending *state

	// guarded by c.composeMu
	current state
	content *image.RGBA
}

var (
	_ swapring.Surface          = (*Surface)(nil)
	_ swapring.LeaseTransaction = (*transaction)(nil)
)

// Bounds returns the framebuffer rectangle the surface is drawn to.
func (s *Surface) Bounds() image.Rectangle { return s.bounds }

// Buffer returns the buffer the surface content was last latched from, or
// nil. The compositor scans out its own copy; the buffer may since have
// been reused or released by its pool.
func (s *Surface) Buffer() swapring.PlatformBuffer {
	s.c.composeMu.Lock()
	defer s.c.composeMu.Unlock()
	return s.current.buffer
}

// Visible reports whether the surface is shown.
func (s *Surface) Visible() bool {
	s.c.composeMu.Lock()
	defer s.c.composeMu.Unlock()
	return s.current.visible
}

// NewTransaction starts a transaction on the surface's compositor.
func (s *Surface) NewTransaction() swapring.Transaction {
	return &transaction{c: s.c}
}

// latch copies the buffer of u into the surface content and releases it.
// It reports false when the buffer was reclaimed or cannot be read; the
// content is left unchanged then.
func (s *Surface) latch(u state) bool {
	if u.buffer == nil {
		u.lease.Release()
		s.content = nil
		return true
	}
	var err error
	if !u.lease.Read(func() { err = s.load(u.buffer) }) {
		s.c.log().Debug("compositor: buffer reclaimed before latch")
		return false
	}
	if err != nil {
		s.c.log().Warn("compositor: unreadable buffer", "err", err)
		return false
	}
	return true
}

// load copies buf into the surface content, swizzling BGRA buffers.
func (s *Surface) load(buf swapring.PlatformBuffer) error {
	m, ok := buf.(swapring.Mappable)
	if !ok {
		return fmt.Errorf("compositor: buffer %T is not CPU mappable", buf)
	}
	desc := buf.Desc()
	w, h, stride := desc.Width, desc.Height, buf.Stride()
	pix := m.Pixels()
	if w <= 0 || h <= 0 || stride < 4*w || len(pix) < stride*h {
		return fmt.Errorf("compositor: buffer %dx%d, stride %d, holds %d bytes", w, h, stride, len(pix))
	}

	r := image.Rect(0, 0, w, h)
	if s.content == nil || s.content.Rect != r {
		s.content = image.NewRGBA(r)
	}
	src := &image.RGBA{Pix: pix, Stride: stride, Rect: r}
	if desc.Format == gputypes.TextureFormatBGRA8Unorm {
		swizzle(s.content, src)
		return nil
	}
	for y := 0; y < h; y++ {
		copy(s.content.Pix[y*s.content.Stride:y*s.content.Stride+4*w], pix[y*stride:y*stride+4*w])
	}
	return nil
}

// swizzle copies src into dst swapping the red and blue channels.
func swizzle(dst, src *image.RGBA) {
	w := src.Rect.Dx() * 4
	for y := 0; y < src.Rect.Dy(); y++ {
		sr := src.Pix[y*src.Stride : y*src.Stride+w]
		dr := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for i := 0; i < w; i += 4 {
			dr[i+0] = sr[i+2]
			dr[i+1] = sr[i+1]
			dr[i+2] = sr[i+0]
			dr[i+3] = sr[i+3]
		}
	}
}

// transaction batches surface changes. Apply commits them atomically.
type transaction struct {
	c       *Compositor
	order   []*Surface
	changes map[*Surface]*state
	applied bool
}

// change returns the pending changes for s, or nil when s does not
// belong to this compositor.
func (tx *transaction) change(s swapring.Surface) *state {
	surf, ok := s.(*Surface)
	if !ok || surf.c != tx.c {
		tx.c.log().Warn("compositor: transaction on foreign surface", "type", fmt.Sprintf("%T", s))
		return nil
	}
	if st, ok := tx.changes[surf]; ok {
		return st
	}
	if tx.changes == nil {
		tx.changes = make(map[*Surface]*state)
	}
	st := &state{fence: swapring.NoFence}
	tx.changes[surf] = st
	tx.order = append(tx.order, surf)
	return st
}

func (tx *transaction) SetBuffer(s swapring.Surface, buf swapring.PlatformBuffer) {
	st := tx.change(s)
	if st == nil {
		return
	}
	if st.lease != nil && st.buffer != buf {
		st.lease.Release()
		st.lease = nil
	}
	st.buffer = buf
	st.hasBuffer = true
}

// SetLease takes the lease of the buffer set on s. The lease is released
// once the buffer has been copied or dropped; without a buffer it is
// released at once.
func (tx *transaction) SetLease(s swapring.Surface, l *swapring.Lease) {
	st := tx.change(s)
	if st == nil || tx.applied || !st.hasBuffer {
		l.Release()
		return
	}
	if st.lease != nil && st.lease != l {
		st.lease.Release()
	}
	st.lease = l
}

// SetFence transfers ownership of h to the transaction.
func (tx *transaction) SetFence(s swapring.Surface, h swapring.FenceHandle) {
	st := tx.change(s)
	if st == nil || tx.applied {
		tx.c.closeFence(h)
		return
	}
	if st.fence.Valid() && st.fence != h {
		tx.c.closeFence(st.fence)
	}
	st.fence = h
}

func (tx *transaction) SetVisibility(s swapring.Surface, visible bool) {
	if st := tx.change(s); st != nil {
		st.visible = visible
		st.hasVisible = true
	}
}

// Apply commits the transaction. Changes to a surface replace any of its
// earlier changes that have not been composed yet; a replaced frame is
// dropped, its fence closed and its buffer released.
func (tx *transaction) Apply() error {
	if tx.applied {
		return errApplied
	}
	tx.applied = true
	c := tx.c

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		for _, st := range tx.changes {
			c.closeFence(st.fence)
			st.lease.Release()
		}
		return ErrClosed
	}
	var (
		stale  []swapring.FenceHandle
		leases []*swapring.Lease
	)
	for _, s := range tx.order {
		st := tx.changes[s]
		if s.pending == nil {
			s.pending = st
			continue
		}
		p := s.pending
		if st.hasBuffer || st.fence.Valid() {
			if p.hasBuffer {
				c.dropped++
			}
			if p.fence.Valid() {
				stale = append(stale, p.fence)
			}
			p.fence = st.fence
		}
		if st.hasBuffer {
			if p.lease != nil {
				leases = append(leases, p.lease)
			}
			p.buffer = st.buffer
			p.lease = st.lease
			p.hasBuffer = true
		}
		if st.hasVisible {
			p.visible = st.visible
			p.hasVisible = true
		}
	}
	c.mu.Unlock()

	for _, h := range stale {
		c.closeFence(h)
	}
	for _, l := range leases {
		l.Release()
	}
	c.signal()
	return nil
}
