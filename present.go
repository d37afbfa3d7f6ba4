package swapring

// Surface is a compositor surface a pool presents into.
type Surface interface {
	// NewTransaction starts an atomic compositor transaction.
	NewTransaction() Transaction
}

// Transaction batches surface changes that the compositor applies
// atomically. Implementations are provided by the platform layer.
type Transaction interface {
	// SetBuffer attaches buf as the surface content.
	SetBuffer(s Surface, buf PlatformBuffer)

	// SetFence attaches the acquire fence the compositor must wait on
	// before reading the buffer. Ownership of h transfers to the
	// transaction; NoFence means the buffer is ready.
	SetFence(s Surface, h FenceHandle)

	// SetVisibility shows or hides the surface.
	SetVisibility(s Surface, visible bool)

	// Apply commits the transaction.
	Apply() error
}

// Present hands the buffer of slot index to the compositor together with
// its acquire fence h, in a single transaction that also makes the surface
// visible.
//
// When the transaction implements LeaseTransaction, the buffer is lent to
// the compositor and the slot is not reused until the compositor releases
// it (see Lease).
//
// Present consumes h in every case. Invalid input (nil pool or surface, a
// closed pool, an index out of range, a slot that was not submitted) closes
// h and returns without touching the compositor. Apply failures are logged
// only.
func Present(p *Pool, s Surface, index int, h FenceHandle) {
	if p == nil || s == nil || p.closed {
		releaseHandle(p, h)
		return
	}
	slot := p.Slot(index)
	if slot == nil {
		releaseHandle(p, h)
		return
	}
	if slot.state == SlotBound {
		p.log().Warn("swapring: present of unsubmitted slot", "slot", index)
		releaseHandle(p, h)
		return
	}

	slot.reclaim()
	tx := s.NewTransaction()
	tx.SetBuffer(s, slot.buffer)
	if lt, ok := tx.(LeaseTransaction); ok {
		slot.lease = newLease()
		lt.SetLease(s, slot.lease)
	}
	tx.SetFence(s, h)
	tx.SetVisibility(s, true)
	if err := tx.Apply(); err != nil {
		p.log().Warn("swapring: apply transaction", "slot", index, "err", err)
		slot.reclaim()
	}

	slot.state = SlotPresenting
	p.stats.Presented++
}
