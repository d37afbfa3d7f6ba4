//go:build !linux || cgo

package main

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
)

// runWindow shows the compositor framebuffer in a window. Frames are
// drawn from the window's update loop while the compositor runs on its
// own goroutine. It blocks until the window closes or ctx is done.
func (d *demo) runWindow(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.comp.Run(gctx) })

	b := d.comp.Bounds()
	game := &hostGame{
		d:   d,
		ctx: gctx,
		pix: make([]byte, 4*b.Dx()*b.Dy()),
		img: ebiten.NewImage(b.Dx(), b.Dy()),
	}
	ebiten.SetWindowTitle("swapdemo")
	ebiten.SetWindowSize(b.Dx(), b.Dy())
	ebiten.SetTPS(60)
	err := ebiten.RunGame(game)
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

type hostGame struct {
	d   *demo
	ctx context.Context
	pix []byte
	img *ebiten.Image
}

func (g *hostGame) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	return g.d.step()
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	g.d.comp.ReadPixels(g.pix)
	g.img.WritePixels(g.pix)
	screen.DrawImage(g.img, nil)
}

func (g *hostGame) Layout(_, _ int) (int, int) {
	b := g.d.comp.Bounds()
	return b.Dx(), b.Dy()
}
