// Command swapdemo renders animated gg frames through a swapring pool and
// shows the software compositor's output in a window, or writes the last
// composed frame to a PNG file in headless mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/swapring"
)

func main() {
	var (
		width    = flag.Int("width", 640, "surface width")
		height   = flag.Int("height", 480, "surface height")
		slots    = flag.Int("slots", swapring.DefaultSlots, "number of slots in the ring")
		headless = flag.Bool("headless", false, "run without a window")
		frames   = flag.Int("frames", 120, "frames to render in headless mode")
		hz       = flag.Int("hz", 60, "frame rate in headless mode")
		output   = flag.String("output", "swapdemo.png", "PNG of the last composed frame (headless mode)")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		swapring.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d, err := newDemo(*width, *height, *slots)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *headless {
		err = d.runHeadless(ctx, *frames, *hz, *output)
	} else {
		err = d.runWindow(ctx)
	}
	if cerr := d.close(); err == nil {
		err = cerr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
