// Package raster is the CPU backend: slots are shared-memory buffers and
// every slot image is a github.com/gogpu/gg context drawing into its own
// pixmap.
//
// Flush resolves the pixmap into the slot's shared buffer, so a
// compositor reading the buffer sees the frame once the acquire fence has
// signaled. Drawing is synchronous, so fences are signaled as soon as they
// are submitted. On Linux the backend exports eventfd sync handles
// (see platform/syncfd); elsewhere pools fall back to NoFence.
//
// The backend registers itself as "raster":
//
//	import _ "github.com/gogpu/swapring/backend/raster"
package raster
