// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package ggcanvas draws gg frames into a swapring pool and presents them
// to a compositor surface.
//
// Canvas owns a raster backend device and a pool of slots. Each call to
// Draw runs one frame through the ring:
//
//	acquire slot -> gg.Context (draw) -> resolve into shared memory
//	    -> acquire fence -> compositor transaction
//
// # Usage
//
//	canvas, err := ggcanvas.New(surface, 800, 600)
//	if err != nil {
//		return err
//	}
//	defer canvas.Close()
//
//	err = canvas.Draw(func(dc *gg.Context) error {
//		dc.ClearWithColor(gg.White)
//		dc.SetRGB(1, 0, 0)
//		dc.DrawCircle(400, 300, 100)
//		return dc.Fill()
//	})
//
// Every slot has its own gg.Context, so a frame starts with whatever the
// slot held the last time it was drawn. Clear at the start of each frame.
//
// # Thread Safety
//
// Canvas is NOT safe for concurrent use. The surface it presents to may
// be consumed from another goroutine.
package ggcanvas
