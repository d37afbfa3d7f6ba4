package gputest

import (
	"sync"

	"github.com/gogpu/swapring"
)

// Commit is one applied transaction as seen by a Surface.
type Commit struct {
	Buffer  swapring.PlatformBuffer
	Lease   *swapring.Lease
	Fence   swapring.FenceHandle
	Visible bool
}

// Surface is a fake compositor surface that records applied transactions.
// Handles received through SetFence are kept in Commits and not closed;
// tests close them with Release.
type Surface struct {
	// FailApply makes every Apply return this error.
	FailApply error

	// Leases makes transactions accept buffer leases. The leases are kept
	// in Commits; tests release them.
	Leases bool

	mu      sync.Mutex
	commits []Commit
}

var _ swapring.Surface = (*Surface)(nil)

// NewTransaction implements swapring.Surface.
func (s *Surface) NewTransaction() swapring.Transaction {
	tx := &transaction{surface: s, commit: Commit{Fence: swapring.NoFence}}
	if s.Leases {
		return &leaseTransaction{tx}
	}
	return tx
}

// Commits returns the applied transactions in order.
func (s *Surface) Commits() []Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Commit(nil), s.commits...)
}

// Release closes every fence handle received so far through closer and
// returns how many were closed.
func (s *Surface) Release(closer swapring.SyncExporter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, c := range s.commits {
		if c.Fence.Valid() {
			_ = closer.CloseSync(c.Fence)
			s.commits[i].Fence = swapring.NoFence
			n++
		}
	}
	return n
}

type transaction struct {
	surface *Surface
	commit  Commit
}

func (tx *transaction) SetBuffer(_ swapring.Surface, buf swapring.PlatformBuffer) {
	tx.commit.Buffer = buf
}

func (tx *transaction) SetFence(_ swapring.Surface, h swapring.FenceHandle) {
	tx.commit.Fence = h
}

func (tx *transaction) SetVisibility(_ swapring.Surface, visible bool) {
	tx.commit.Visible = visible
}

func (tx *transaction) Apply() error {
	s := tx.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	// An applied or failed transaction still owns its fence.
	s.commits = append(s.commits, tx.commit)
	return s.FailApply
}

type leaseTransaction struct {
	*transaction
}

func (tx *leaseTransaction) SetLease(_ swapring.Surface, l *swapring.Lease) {
	tx.commit.Lease = l
}
