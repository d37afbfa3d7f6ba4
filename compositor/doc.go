// Package compositor is a software compositor for swapring pools.
//
// A Compositor owns an RGBA framebuffer and any number of surfaces, each
// mapped to a rectangle of the framebuffer in creation (z) order.
// Clients attach buffers to surfaces with atomic transactions
// (swapring.Present). Compose latches the newest transaction of every
// surface, waits for each acquire fence, copies the presented buffers
// into surface-owned images, hands them back to their pool (see
// swapring.Lease), scans the copies out and closes the fence handles. Run drives Compose on a refresh ticker
// and whenever a transaction arrives.
//
// Presented buffers must implement swapring.Mappable; the raster and
// wgpu backends both allocate shared-memory buffers that do.
package compositor
