// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ggcanvas

import (
	"errors"
	"fmt"

	"github.com/gogpu/gg"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/backend/raster"
)

// Common errors returned by Canvas operations.
var (
	// ErrCanvasClosed is returned when operations are attempted on a closed canvas.
	ErrCanvasClosed = errors.New("ggcanvas: canvas is closed")

	// ErrInvalidDimensions is returned when width or height is invalid.
	ErrInvalidDimensions = errors.New("ggcanvas: invalid dimensions")

	// ErrNilSurface is returned when a nil surface is passed.
	ErrNilSurface = errors.New("ggcanvas: nil surface")
)

// Option configures a Canvas.
type Option func(*config)

type config struct {
	slots      int
	poolOpts   []swapring.PoolOption
	rasterOpts []raster.Option
}

// WithSlots sets the number of slots in the canvas ring.
func WithSlots(n int) Option {
	return func(c *config) {
		c.slots = n
	}
}

// WithPoolOptions passes options to the canvas pool.
func WithPoolOptions(opts ...swapring.PoolOption) Option {
	return func(c *config) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

// WithRasterOptions passes options to the raster device.
func WithRasterOptions(opts ...raster.Option) Option {
	return func(c *config) {
		c.rasterOpts = append(c.rasterOpts, opts...)
	}
}

// Canvas presents gg drawings through a ring of raster slots.
//
// Canvas is NOT safe for concurrent use. Create one Canvas per goroutine,
// or use external synchronization.
type Canvas struct {
	dev     *raster.Device
	pool    *swapring.Pool
	surface swapring.Surface
	closed  bool
}

// New creates a canvas presenting to surface.
//
// Returns error if dimensions are invalid, surface is nil or the pool
// cannot be created.
func New(surface swapring.Surface, width, height int, opts ...Option) (*Canvas, error) {
	if surface == nil {
		return nil, ErrNilSurface
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	cfg := config{slots: swapring.DefaultSlots}
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := raster.New(cfg.rasterOpts...)
	pool, err := swapring.NewPool(dev, width, height, cfg.slots, cfg.poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("ggcanvas: %w", err)
	}
	return &Canvas{dev: dev, pool: pool, surface: surface}, nil
}

// MustNew is like New but panics on error.
// Use only when errors are programming mistakes (e.g., hardcoded dimensions).
func MustNew(surface swapring.Surface, width, height int, opts ...Option) *Canvas {
	c, err := New(surface, width, height, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int {
	w, _ := c.pool.Size()
	return w
}

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int {
	_, h := c.pool.Size()
	return h
}

// Size returns width and height as a convenience.
func (c *Canvas) Size() (width, height int) {
	return c.pool.Size()
}

// Pool returns the canvas pool.
func (c *Canvas) Pool() *swapring.Pool { return c.pool }

// Device returns the raster device the canvas draws with.
func (c *Canvas) Device() *raster.Device { return c.dev }

// Draw runs one frame: fn draws into the next slot's gg context, and the
// result is presented to the canvas surface.
//
// If fn fails, the frame is not presented and the error is returned.
func (c *Canvas) Draw(fn func(dc *gg.Context) error) error {
	if c.closed {
		return ErrCanvasClosed
	}
	return c.pool.RenderFrame(c.surface, func(_ int, img swapring.Image) error {
		return fn(img.(*raster.Image).Context())
	})
}

// Resize changes canvas dimensions. Every slot is recreated, so the next
// frames start blank.
//
// Returns error if dimensions are invalid or canvas is closed.
func (c *Canvas) Resize(width, height int) error {
	if c.closed {
		return ErrCanvasClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	if err := c.pool.Resize(width, height); err != nil {
		return fmt.Errorf("ggcanvas: resize: %w", err)
	}
	return nil
}

// Close releases the canvas pool. Close is idempotent - multiple calls
// are safe.
func (c *Canvas) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.surface = nil
	return c.pool.Close()
}
