// Package swapring presents frames rendered on the GPU to a platform
// compositor through a small ring of shared buffers.
//
// # Overview
//
// A Pool owns a ring of slots. Each slot holds a platform-shareable pixel
// buffer, the GPU image imported from it and a fence tracking the last
// submission that wrote into it. The render loop acquires the next slot,
// draws into its image, submits, exports an acquire fence and presents the
// buffer in one atomic compositor transaction:
//
//	pool, err := swapring.NewPool(dev, 800, 600, swapring.DefaultSlots)
//	if err != nil {
//		return err // fall back to a non-shared rendering path
//	}
//	defer pool.Close()
//
//	i, err := pool.Acquire()   // waits for slot i's previous frame
//	// ... draw into pool.Slot(i).Image() ...
//	err = pool.Submit(i)       // flush and attach the slot fence
//	h, err := pool.CreateFence()
//	swapring.Present(pool, surface, i, h)
//
// RenderFrame runs the whole sequence for one frame.
//
// # Synchronization
//
// The GPU, the compositor and the CPU-side loop run independently. The pool
// never rebinds an image whose previous submission has not completed: it
// waits on the slot fence (one second by default, see WithFenceTimeout) and
// escalates to a full GPU-idle wait on timeout. The compositor never reads
// a buffer before the fence passed to Present has signaled.
//
// # Backends
//
// A Device is the capability set a backend implements. Optional
// capabilities are expressed as separate interfaces (MemoryBinder,
// FenceDevice, SyncExporter) and detected once when the pool is created.
// Backends live under backend/ and register themselves by name:
//
//	import _ "github.com/gogpu/swapring/backend/raster"
//
// # Ownership
//
// The host owns the GPU device and queue. The pool owns its slots and
// releases them on Close. Fence handles are owned by whoever holds them and
// are closed exactly once.
//
// # Concurrency
//
// A Pool is not safe for concurrent use. Drive it from the goroutine that
// issues GPU work.
package swapring
