package swapring

import (
	"sync"
	"time"
)

// Lease tracks a presented buffer while a compositor may still read it.
//
// Present attaches a Lease to transactions that implement
// LeaseTransaction. The compositor reads the buffer only through Read,
// which releases the lease once the read returns, or calls Release when it
// drops the buffer unread. The pool does not rebind or destroy the slot
// until the lease is released; when it stops waiting it revokes the lease,
// and later reads are refused.
//
// A nil *Lease is valid: Read always runs the callback and Release does
// nothing.
type Lease struct {
	mu       sync.Mutex
	released bool
	revoked  bool
	done     chan struct{}
}

func newLease() *Lease {
	return &Lease{done: make(chan struct{})}
}

// LeaseTransaction is a Transaction whose compositor reports when it has
// stopped reading a presented buffer.
type LeaseTransaction interface {
	Transaction

	// SetLease attaches the lease of the buffer set with SetBuffer.
	SetLease(s Surface, l *Lease)
}

// Read calls fn while the buffer is still lent to the compositor, then
// releases the lease. It reports false without calling fn when the lease
// was already released or revoked.
func (l *Lease) Read(fn func()) bool {
	if l == nil {
		fn()
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return false
	}
	fn()
	l.releaseLocked()
	return true
}

// Release hands the buffer back without reading it.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

// Done is closed once the lease is released or revoked.
func (l *Lease) Done() <-chan struct{} {
	return l.done
}

// Revoked reports whether the pool reclaimed the buffer before the
// compositor released it.
func (l *Lease) Revoked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revoked
}

func (l *Lease) releaseLocked() {
	if !l.released {
		l.released = true
		close(l.done)
	}
}

// wait blocks until the lease is released or timeout expires.
func (l *Lease) wait(timeout time.Duration) bool {
	select {
	case <-l.done:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return true
	case <-t.C:
		return false
	}
}

// revoke takes the buffer back. It blocks while a Read is in progress.
func (l *Lease) revoke() {
	l.mu.Lock()
	if !l.released {
		l.revoked = true
	}
	l.releaseLocked()
	l.mu.Unlock()
}
