// Package backend selects the Device a swapring.Pool renders with.
//
// # Backend Registration
//
// Backends register a Factory from init() functions and are selected at
// runtime. Import the backends you want:
//
//	import (
//		_ "github.com/gogpu/swapring/backend/raster"
//		_ "github.com/gogpu/swapring/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use Default to open the best available backend, or Open to request one
// by name. GPU backends take the device and queue from a
// gpucontext.DeviceProvider owned by the host application:
//
//	dev, err := backend.Default(host) // host implements gpucontext.DeviceProvider
//	if err != nil {
//		log.Fatal(err)
//	}
//	pool, err := swapring.NewPool(dev, 800, 600, swapring.DefaultSlots)
//
// # Available Backends
//
//   - "wgpu": render-attachment textures on a github.com/gogpu/wgpu device
//   - "raster": CPU drawing with github.com/gogpu/gg into shared memory (always available)
package backend
