package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/gogpu/gg"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/swapring/compositor"
	"github.com/gogpu/swapring/integration/ggcanvas"
)

type demo struct {
	comp   *compositor.Compositor
	canvas *ggcanvas.Canvas
	frame  int
}

func newDemo(width, height, slots int) (*demo, error) {
	comp, err := compositor.New(width, height)
	if err != nil {
		return nil, err
	}
	canvas, err := ggcanvas.New(comp.NewSurface(comp.Bounds()), width, height, ggcanvas.WithSlots(slots))
	if err != nil {
		_ = comp.Close()
		return nil, err
	}
	return &demo{comp: comp, canvas: canvas}, nil
}

// step draws and presents the next frame.
func (d *demo) step() error {
	n := d.frame
	d.frame++
	return d.canvas.Draw(func(dc *gg.Context) error {
		return drawScene(dc, n)
	})
}

func (d *demo) close() error {
	return errors.Join(d.canvas.Close(), d.comp.Close())
}

// runHeadless renders frames at hz while the compositor runs, then writes
// the final composed frame to output.
func (d *demo) runHeadless(ctx context.Context, frames, hz int, output string) error {
	if frames <= 0 || hz <= 0 {
		return fmt.Errorf("swapdemo: frames and hz must be positive (got %d, %d)", frames, hz)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.comp.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(time.Second / time.Duration(hz))
		defer ticker.Stop()
		for range frames {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
			if err := d.step(); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := d.comp.Compose(context.Background()); err != nil {
		return err
	}
	if err := gg.FromImage(d.comp.Snapshot()).SavePNG(output); err != nil {
		return fmt.Errorf("swapdemo: save %s: %w", output, err)
	}
	st := d.canvas.Pool().Stats()
	log.Printf("swapdemo: %d frames presented, %d composed, %d dropped, %d fence timeouts; saved %s",
		st.Presented, d.comp.Frames(), d.comp.Dropped(), st.FenceTimeouts, output)
	return nil
}

// drawScene draws frame n of the animation.
func drawScene(dc *gg.Context, n int) error {
	w, h := float64(dc.Width()), float64(dc.Height())
	t := float64(n) / 60

	dc.ClearWithColor(gg.RGB(0.08, 0.1, 0.16))

	const dots = 12
	r := math.Min(w, h) * 0.3
	for i := 0; i < dots; i++ {
		a := t + float64(i)*2*math.Pi/dots
		dc.SetColor(gg.HSL(math.Mod(float64(i)*30+t*40, 360), 0.8, 0.6))
		dc.DrawCircle(w/2+r*math.Cos(a), h/2+r*math.Sin(a), r*0.12)
		if err := dc.Fill(); err != nil {
			return err
		}
	}

	// The sweeping bar makes dropped frames visible as jumps.
	x := math.Mod(t*w/4, w)
	dc.SetRGBA(1, 1, 1, 0.8)
	dc.DrawRectangle(x, h-12, 40, 8)
	return dc.Fill()
}
