// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package swapring

import (
	"errors"
	"fmt"

	"github.com/gogpu/swapring/platform/syncfd"
)

// FenceHandle is a transferable GPU completion handle, typically a sync
// file descriptor. Whoever holds a handle must close it exactly once,
// either directly with (*Pool).ReleaseFence or by handing it to a
// compositor transaction.
type FenceHandle int

// NoFence means "already complete": the compositor may read the buffer
// immediately.
const NoFence FenceHandle = -1

// Valid reports whether h refers to an open handle.
func (h FenceHandle) Valid() bool { return h >= 0 }

var errNoSlotFence = errors.New("swapring: slot has no fence")

// beforeReuse resolves the slot's pending fence (or display-linked sync
// handle) so its image can be rebound. A wait that times out or fails
// escalates to a full GPU-idle wait, after which the slot is known idle.
// It then waits for the compositor to release the slot buffer; a buffer
// still held after the timeout is revoked and that frame is never read.
func (p *Pool) beforeReuse(s *Slot) {
	if s.fenceSubmitted && p.caps.fences != nil {
		p.stats.FenceWaits++
		ok, err := p.caps.fences.WaitFence(s.fence, p.opts.fenceTimeout)
		if err != nil || !ok {
			p.fenceTimedOut(s, err)
		}
		p.resetFence(s)
		s.fenceSubmitted = false
	}

	if s.sync != NoFence && p.caps.exporter != nil {
		p.stats.FenceWaits++
		ok, err := p.caps.exporter.WaitSync(s.sync, p.opts.fenceTimeout)
		if err != nil || !ok {
			p.fenceTimedOut(s, err)
		}
		if err := p.caps.exporter.CloseSync(s.sync); err != nil {
			p.log().Warn("swapring: close sync handle", "slot", s.index, "err", err)
		}
		s.sync = NoFence
	}

	p.awaitRelease(s)
}

func (p *Pool) awaitRelease(s *Slot) {
	if s.lease == nil {
		return
	}
	p.stats.ReleaseWaits++
	if !s.lease.wait(p.opts.fenceTimeout) {
		p.stats.ReleaseTimeouts++
		p.log().Warn("swapring: compositor did not release buffer, reclaiming",
			"slot", s.index, "timeout", p.opts.fenceTimeout)
	}
	s.reclaim()
}

func (p *Pool) fenceTimedOut(s *Slot, err error) {
	if err == nil {
		err = ErrSyncTimeout
	}
	p.stats.FenceTimeouts++
	p.log().Warn("swapring: fence wait failed, waiting for idle",
		"slot", s.index, "timeout", p.opts.fenceTimeout, "err", err)
	p.idleFallback()
}

// resetFence returns the slot fence to the unsignaled state. A fence that
// cannot be reset is replaced.
func (p *Pool) resetFence(s *Slot) {
	fences := p.caps.fences
	if s.fence == nil {
		return
	}
	err := fences.ResetFence(s.fence)
	if err == nil {
		return
	}
	p.log().Warn("swapring: reset fence failed, recreating", "slot", s.index, "err", err)
	fences.DestroyFence(s.fence)
	s.fence = nil
	f, err := fences.CreateFence(true)
	if err != nil {
		p.log().Warn("swapring: recreate fence failed", "slot", s.index, "err", err)
		return
	}
	s.fence = f
}

// idleFallback blocks until the GPU is idle. Errors are logged only.
func (p *Pool) idleFallback() {
	p.stats.IdleWaits++
	if err := p.dev.WaitIdle(); err != nil {
		p.log().Warn("swapring: wait idle failed", "err", err)
	}
}

// submitFailed records a failed submission and forces the slot idle with a
// synchronous GPU-idle wait, so the slot never needs a fence wait.
func (p *Pool) submitFailed(s *Slot, op string, err error) {
	p.stats.SubmitFailures++
	p.log().Warn("swapring: submission failed, waiting for idle", "slot", s.index, "op", op, "err", err)
	p.idleFallback()
}

// afterSubmit attaches completion tracking to the slot's latest work.
func (p *Pool) afterSubmit(s *Slot) {
	switch {
	case p.caps.fences != nil:
		if s.fence == nil {
			p.submitFailed(s, "fence submit", errNoSlotFence)
			return
		}
		if err := p.caps.fences.SubmitFence(s.fence); err != nil {
			p.submitFailed(s, "fence submit", err)
			return
		}
		s.fenceSubmitted = true

	case p.caps.exporter != nil:
		h, err := p.caps.exporter.ExportSync()
		if err != nil {
			p.submitFailed(s, "sync export", err)
			return
		}
		if s.sync != NoFence {
			_ = p.caps.exporter.CloseSync(s.sync)
		}
		s.sync = h
	}
}

// Submit flushes the drawing recorded into slot index and attaches a
// fence to it. The slot must be bound (returned by the latest Acquire).
//
// When the flush or the fence submission fails, Submit waits for the GPU
// to go idle so the slot can be reused safely, marks the slot submitted
// and, for flush failures, returns the error.
func (p *Pool) Submit(index int) error {
	if p.closed {
		return ErrPoolClosed
	}
	s := p.Slot(index)
	if s == nil {
		return fmt.Errorf("%w: slot %d out of range [0, %d)", ErrInvalidArgument, index, len(p.slots))
	}
	if s.state != SlotBound {
		return fmt.Errorf("%w: slot %d is %s, not bound", ErrInvalidArgument, index, s.state)
	}

	if err := p.dev.Flush(s.image); err != nil {
		p.submitFailed(s, "flush", err)
		s.state = SlotSubmitted
		return fmt.Errorf("swapring: flush slot %d: %w", index, err)
	}
	p.afterSubmit(s)
	s.state = SlotSubmitted
	p.stats.Submitted++
	return nil
}

// CreateFence returns a handle that signals when all GPU work submitted so
// far has completed, for handing to the compositor with Present.
//
// On devices that cannot export sync handles, or when the export fails,
// CreateFence waits for the GPU to go idle and returns NoFence. The caller
// owns a returned handle.
func (p *Pool) CreateFence() (FenceHandle, error) {
	if p.closed {
		return NoFence, ErrPoolClosed
	}
	if p.FenceCapable() && p.caps.exporter != nil {
		h, err := p.caps.exporter.ExportSync()
		if err == nil {
			p.stats.FencesExported++
			return h, nil
		}
		p.log().Warn("swapring: fence export failed, waiting for idle", "err", err)
	}

	p.stats.IdleWaits++
	if err := p.dev.WaitIdle(); err != nil {
		return NoFence, fmt.Errorf("swapring: finish: %w", err)
	}
	return NoFence, nil
}

// ReleaseFence closes h. NoFence is ignored.
func (p *Pool) ReleaseFence(h FenceHandle) {
	releaseHandle(p, h)
}

// releaseHandle closes h through the pool's exporter, or directly as a
// sync file when there is no pool or exporter.
func releaseHandle(p *Pool, h FenceHandle) {
	if !h.Valid() {
		return
	}
	var err error
	if p != nil && p.caps.exporter != nil {
		err = p.caps.exporter.CloseSync(h)
	} else {
		err = syncfd.Close(int(h))
	}
	if err != nil {
		l := Logger()
		if p != nil {
			l = p.log()
		}
		l.Warn("swapring: close fence handle", "handle", int(h), "err", err)
	}
}
