// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ggcanvas

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/gg"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/backend/raster"
	"github.com/gogpu/swapring/compositor"
	"github.com/gogpu/swapring/internal/gputest"
)

func newCanvas(t *testing.T, surf swapring.Surface, w, h int) *Canvas {
	t.Helper()
	c, err := New(surf, w, h, WithSlots(3), WithRasterOptions(raster.WithSyncExport(false)))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func solid(r, g, b float64) func(dc *gg.Context) error {
	return func(dc *gg.Context) error {
		dc.SetRGB(r, g, b)
		dc.DrawRectangle(0, 0, float64(dc.Width()), float64(dc.Height()))
		return dc.Fill()
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		surf swapring.Surface
		w, h int
		want error
	}{
		{"nil surface", nil, 10, 10, ErrNilSurface},
		{"zero width", &gputest.Surface{}, 0, 10, ErrInvalidDimensions},
		{"negative height", &gputest.Surface{}, 10, -1, ErrInvalidDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.surf, tt.w, tt.h); !errors.Is(err, tt.want) {
				t.Errorf("New() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew(nil surface) did not panic")
		}
	}()
	MustNew(nil, 10, 10)
}

func TestDrawPresentsFrames(t *testing.T) {
	surf := &gputest.Surface{}
	c := newCanvas(t, surf, 8, 8)

	frames := []struct {
		r, g, b float64
		want    [4]byte
	}{
		{1, 0, 0, [4]byte{255, 0, 0, 255}},
		{0, 1, 0, [4]byte{0, 255, 0, 255}},
		{0, 0, 1, [4]byte{0, 0, 255, 255}},
		{1, 1, 1, [4]byte{255, 255, 255, 255}},
	}
	for _, f := range frames {
		if err := c.Draw(solid(f.r, f.g, f.b)); err != nil {
			t.Fatalf("Draw() = %v", err)
		}
	}

	commits := surf.Commits()
	if len(commits) != len(frames) {
		t.Fatalf("commits = %d, want %d", len(commits), len(frames))
	}
	for i, cm := range commits {
		if cm.Buffer != c.Pool().Slot(i%3).Buffer() {
			t.Errorf("commit %d buffer is not slot %d", i, i%3)
		}
		if cm.Fence != swapring.NoFence {
			t.Errorf("commit %d fence = %d, want NoFence", i, cm.Fence)
		}
	}
	// Slot 0 was redrawn by the last frame.
	px := commits[3].Buffer.(swapring.Mappable).Pixels()
	off := 4*commits[3].Buffer.Stride() + 4*4
	if got := [4]byte(px[off : off+4]); got != frames[3].want {
		t.Errorf("last frame pixel = %v, want %v", got, frames[3].want)
	}
	px = commits[1].Buffer.(swapring.Mappable).Pixels()
	if got := [4]byte(px[off : off+4]); got != frames[1].want {
		t.Errorf("second frame pixel = %v, want %v", got, frames[1].want)
	}
}

func TestDrawError(t *testing.T) {
	surf := &gputest.Surface{}
	c := newCanvas(t, surf, 8, 8)
	errDraw := errors.New("boom")

	err := c.Draw(func(*gg.Context) error { return errDraw })
	if !errors.Is(err, errDraw) {
		t.Fatalf("Draw() = %v, want draw error", err)
	}
	if len(surf.Commits()) != 0 {
		t.Error("failed frame was presented")
	}
	if err := c.Draw(solid(1, 0, 0)); err != nil {
		t.Fatalf("Draw() after error = %v", err)
	}
	if c.Pool().Current() != 1 {
		t.Errorf("Current() = %d, want 1", c.Pool().Current())
	}
}

func TestResize(t *testing.T) {
	c := newCanvas(t, &gputest.Surface{}, 8, 8)

	if err := c.Resize(8, 8); err != nil {
		t.Fatalf("Resize(same) = %v", err)
	}
	if err := c.Resize(32, 16); err != nil {
		t.Fatalf("Resize() = %v", err)
	}
	if w, h := c.Size(); w != 32 || h != 16 {
		t.Errorf("Size() = %dx%d, want 32x16", w, h)
	}
	if c.Width() != 32 || c.Height() != 16 {
		t.Errorf("Width/Height = %d/%d, want 32/16", c.Width(), c.Height())
	}
	if err := c.Draw(func(dc *gg.Context) error {
		if dc.Width() != 32 || dc.Height() != 16 {
			t.Errorf("context size = %dx%d, want 32x16", dc.Width(), dc.Height())
		}
		return nil
	}); err != nil {
		t.Fatalf("Draw() = %v", err)
	}

	if err := c.Resize(0, 16); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Resize(0, 16) = %v, want ErrInvalidDimensions", err)
	}
}

func TestClose(t *testing.T) {
	c := newCanvas(t, &gputest.Surface{}, 8, 8)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !c.Pool().Closed() {
		t.Error("pool still open after Close")
	}
	if err := c.Draw(solid(1, 0, 0)); !errors.Is(err, ErrCanvasClosed) {
		t.Errorf("Draw() after Close = %v, want ErrCanvasClosed", err)
	}
	if err := c.Resize(4, 4); !errors.Is(err, ErrCanvasClosed) {
		t.Errorf("Resize() after Close = %v, want ErrCanvasClosed", err)
	}
}

func TestDrawWithSyncExport(t *testing.T) {
	surf := &gputest.Surface{}
	c, err := New(surf, 4, 4)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer c.Close()

	if err := c.Draw(solid(0, 0, 0)); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	cm := surf.Commits()[0]
	if c.Device().SupportsSyncExport() != cm.Fence.Valid() {
		t.Errorf("fence %d does not match sync export support %v", cm.Fence, c.Device().SupportsSyncExport())
	}
	c.Pool().ReleaseFence(cm.Fence)
}

// tearCheck scales like draw.NearestNeighbor and counts sources whose
// pixels change while they are being read.
type tearCheck struct {
	scans atomic.Int64
	torn  atomic.Int64
}

func (tc *tearCheck) Scale(dst draw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle, op draw.Op, opts *draw.Options) {
	first := src.At(sr.Min.X, sr.Min.Y)
	time.Sleep(2 * time.Millisecond)
	if src.At(sr.Min.X, sr.Min.Y) != first || src.At(sr.Max.X-1, sr.Max.Y-1) != first {
		tc.torn.Add(1)
	}
	tc.scans.Add(1)
	draw.NearestNeighbor.Scale(dst, dr, src, sr, op, opts)
}

func (tc *tearCheck) Transform(dst draw.Image, m f64.Aff3, src image.Image, sr image.Rectangle, op draw.Op, opts *draw.Options) {
	draw.NearestNeighbor.Transform(dst, m, src, sr, op, opts)
}

func TestDrawWhileCompositorRuns(t *testing.T) {
	tc := &tearCheck{}
	comp, err := compositor.New(16, 16, compositor.WithScaler(tc), compositor.WithRefresh(time.Millisecond))
	if err != nil {
		t.Fatalf("compositor.New() = %v", err)
	}
	defer comp.Close()

	c, err := New(comp.NewSurface(comp.Bounds()), 8, 8, WithSlots(2))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- comp.Run(ctx) }()

	colors := [][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i := range 40 {
		col := colors[i%len(colors)]
		if err := c.Draw(solid(col[0], col[1], col[2])); err != nil {
			t.Fatalf("Draw() frame %d = %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if tc.scans.Load() == 0 {
		t.Fatal("no frame was scanned out")
	}
	if n := tc.torn.Load(); n != 0 {
		t.Errorf("%d of %d scanouts changed while being read", n, tc.scans.Load())
	}
	if st := c.Pool().Stats(); st.ReleaseTimeouts != 0 {
		t.Errorf("ReleaseTimeouts = %d, want 0", st.ReleaseTimeouts)
	}
}

func TestCompositorAfterResizeAndClose(t *testing.T) {
	comp, err := compositor.New(8, 8, compositor.WithScaler(draw.NearestNeighbor))
	if err != nil {
		t.Fatalf("compositor.New() = %v", err)
	}
	defer comp.Close()

	c, err := New(comp.NewSurface(comp.Bounds()), 8, 8, WithSlots(2))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer c.Close()

	red := color.RGBA{R: 0xff, A: 0xff}
	green := color.RGBA{G: 0xff, A: 0xff}
	check := func(step string, want color.RGBA) {
		t.Helper()
		if err := comp.Compose(context.Background()); err != nil {
			t.Fatalf("%s: Compose() = %v", step, err)
		}
		if got := comp.Snapshot().RGBAAt(4, 4); got != want {
			t.Errorf("%s: pixel = %v, want %v", step, got, want)
		}
	}

	if err := c.Draw(solid(1, 0, 0)); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	check("first frame", red)

	if err := c.Resize(32, 32); err != nil {
		t.Fatalf("Resize() = %v", err)
	}
	check("after resize", red)

	if err := c.Draw(solid(0, 1, 0)); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	check("resized frame", green)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	check("after close", green)
}
