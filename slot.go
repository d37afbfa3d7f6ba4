// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package swapring

import (
	"fmt"
	"math/bits"
)

// SlotState is the presentation state of a slot.
type SlotState uint8

const (
	// SlotIdle is the initial state: no drawing, no pending GPU work.
	SlotIdle SlotState = iota

	// SlotBound means the slot's image is the active render target.
	SlotBound

	// SlotSubmitted means the drawing was flushed and a fence attached.
	SlotSubmitted

	// SlotPresenting means the buffer was handed to the compositor.
	SlotPresenting
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotBound:
		return "bound"
	case SlotSubmitted:
		return "submitted"
	case SlotPresenting:
		return "presenting"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// Slot is one entry of the ring: a platform buffer, the GPU image imported
// from it, the device memory behind the image (explicit-memory backends
// only) and the fence tracking the slot's latest submission.
type Slot struct {
	index  int
	dev    Device
	caps   *capabilities
	buffer PlatformBuffer
	image  Image
	memory Memory
	fence  Fence

	// fenceSubmitted is set once a fence submission succeeded and cleared
	// by beforeReuse after the wait and reset.
	fenceSubmitted bool

	// sync is the display-linked sync handle held by the slot on backends
	// without submission-level fences.
	sync FenceHandle

	// lease is set while a compositor may read the slot buffer.
	lease *Lease

	state SlotState
}

// newSlot allocates a buffer, imports it, binds memory where needed and
// creates the slot's fence. It is all-or-nothing: on failure everything
// acquired so far is released.
func newSlot(dev Device, caps *capabilities, desc BufferDesc, index int) (*Slot, error) {
	s := &Slot{index: index, dev: dev, caps: caps, sync: NoFence}
	if err := s.init(desc); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

func (s *Slot) init(desc BufferDesc) error {
	buf, err := s.dev.AllocateBuffer(desc)
	if err != nil {
		return fmt.Errorf("%w: buffer %dx%d: %w", ErrAllocation, desc.Width, desc.Height, err)
	}
	s.buffer = buf

	img, err := s.dev.ImportImage(buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrImport, err)
	}
	s.image = img

	if mb := s.caps.memory; mb != nil {
		req, err := mb.MemoryRequirements(buf)
		if err != nil {
			return fmt.Errorf("%w: memory requirements: %w", ErrImport, err)
		}
		memType, ok := firstMemoryType(req.TypeBits)
		if !ok {
			return fmt.Errorf("%w: no compatible memory type in %#x", ErrImport, req.TypeBits)
		}
		mem, err := mb.AllocateMemory(req.Size, memType)
		if err != nil {
			return fmt.Errorf("%w: device memory (%d bytes, type %d): %w", ErrAllocation, req.Size, memType, err)
		}
		s.memory = mem
		if err := mb.BindMemory(img, mem); err != nil {
			return fmt.Errorf("%w: bind memory: %w", ErrImport, err)
		}
	}

	if fences := s.caps.fences; fences != nil {
		f, err := fences.CreateFence(true)
		if err != nil {
			return fmt.Errorf("%w: fence: %w", ErrAllocation, err)
		}
		s.fence = f
	}
	return nil
}

// firstMemoryType returns the lowest memory type index set in typeBits.
func firstMemoryType(typeBits uint32) (int, bool) {
	if typeBits == 0 {
		return 0, false
	}
	return bits.TrailingZeros32(typeBits), true
}

// destroy releases fence, image, memory and buffer in that order.
// Fields already released are skipped, so destroy is idempotent and safe
// on a partially initialized slot.
func (s *Slot) destroy() {
	s.reclaim()

	if s.fence != nil && s.caps.fences != nil {
		s.caps.fences.DestroyFence(s.fence)
	}
	s.fence = nil
	s.fenceSubmitted = false

	if s.sync != NoFence && s.caps.exporter != nil {
		_ = s.caps.exporter.CloseSync(s.sync)
	}
	s.sync = NoFence

	if s.image != nil {
		s.dev.DestroyImage(s.image)
		s.image = nil
	}
	if s.memory != nil && s.caps.memory != nil {
		s.caps.memory.FreeMemory(s.memory)
	}
	s.memory = nil
	if s.buffer != nil {
		s.dev.ReleaseBuffer(s.buffer)
		s.buffer = nil
	}
	s.state = SlotIdle
}

// reclaim revokes the slot's lease, waiting for a compositor read in
// progress to finish.
func (s *Slot) reclaim() {
	if s.lease != nil {
		s.lease.revoke()
		s.lease = nil
	}
}

// Index returns the slot's position in the ring.
func (s *Slot) Index() int { return s.index }

// Buffer returns the platform buffer handed to the compositor.
func (s *Slot) Buffer() PlatformBuffer { return s.buffer }

// Image returns the GPU image drawn into while the slot is bound.
func (s *Slot) Image() Image { return s.image }

// State returns the slot's presentation state.
func (s *Slot) State() SlotState { return s.state }

// FenceSubmitted reports whether the slot has a pending fence that must be
// waited on before the slot is bound again.
func (s *Slot) FenceSubmitted() bool { return s.fenceSubmitted }

// Size returns the slot's buffer dimensions.
func (s *Slot) Size() (width, height int) {
	if s.buffer == nil {
		return 0, 0
	}
	d := s.buffer.Desc()
	return d.Width, d.Height
}
