// Package wgpu is the GPU backend built on github.com/gogpu/wgpu.
//
// The host application owns the wgpu device and queue and hands them to
// the backend through a gpucontext.DeviceProvider. Each slot image is a
// render-attachment texture created from the slot's descriptor, paired
// with a MapRead staging buffer. Flush copies the texture into the
// staging buffer, waits for the copy and writes the rows into the slot's
// shared-memory buffer, where a compositor can scan them out.
//
// Fences are queue submission indices: a fence is signaled once
// Queue.Poll reports its index as completed. The backend cannot export
// sync handles, so pools on this backend present with NoFence after a
// full device wait.
//
// The backend registers itself as "wgpu":
//
//	import _ "github.com/gogpu/swapring/backend/wgpu"
//
//	dev, err := backend.Open(backend.BackendWGPU, provider)
package wgpu
