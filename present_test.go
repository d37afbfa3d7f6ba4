package swapring_test

import (
	"errors"
	"testing"

	"github.com/gogpu/swapring"
	"github.com/gogpu/swapring/internal/gputest"
)

func TestPresent(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPool(t, dev, 64, 64, 2)
	surf := &gputest.Surface{}

	i := cycle(t, p)
	h, err := p.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() = %v", err)
	}
	if !h.Valid() {
		t.Fatalf("CreateFence() = %d, want a valid handle", h)
	}
	swapring.Present(p, surf, i, h)

	commits := surf.Commits()
	if len(commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(commits))
	}
	c := commits[0]
	if c.Buffer != p.Slot(i).Buffer() {
		t.Error("committed buffer is not the slot buffer")
	}
	if c.Fence != h {
		t.Errorf("committed fence = %d, want %d", c.Fence, h)
	}
	if !c.Visible {
		t.Error("surface not made visible")
	}
	if p.Slot(i).State() != swapring.SlotPresenting {
		t.Errorf("state = %v, want presenting", p.Slot(i).State())
	}
	if st := p.Stats(); st.Presented != 1 || st.FencesExported != 1 {
		t.Errorf("stats = %+v", st)
	}

	// The handle now belongs to the compositor.
	if n := surf.Release(dev); n != 1 {
		t.Errorf("Release() = %d, want 1", n)
	}
	if dev.Counters().DoubleCloses != 0 {
		t.Error("handle closed twice")
	}
}

func TestPresentInvalidReleasesHandleOnce(t *testing.T) {
	tests := []struct {
		name  string
		index func(p *swapring.Pool) int
		surf  bool
		bound bool
	}{
		{"index == count", func(p *swapring.Pool) int { return p.Len() }, true, false},
		{"negative index", func(*swapring.Pool) int { return -1 }, true, false},
		{"nil surface", func(*swapring.Pool) int { return 0 }, false, false},
		{"unsubmitted slot", func(*swapring.Pool) int { return 1 }, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			p := newPool(t, dev, 32, 32, 2)
			cycle(t, p)
			if tt.bound {
				if _, err := p.Acquire(); err != nil {
					t.Fatalf("Acquire() = %v", err)
				}
			}
			h, err := p.CreateFence()
			if err != nil {
				t.Fatalf("CreateFence() = %v", err)
			}
			closed := dev.Counters().SyncClosed

			surf := &gputest.Surface{}
			var s swapring.Surface
			if tt.surf {
				s = surf
			}
			swapring.Present(p, s, tt.index(p), h)

			c := dev.Counters()
			if c.SyncClosed != closed+1 || c.DoubleCloses != 0 {
				t.Errorf("closed %d handles (double %d), want exactly one", c.SyncClosed-closed, c.DoubleCloses)
			}
			if len(surf.Commits()) != 0 {
				t.Error("transaction applied for invalid input")
			}
			if p.Stats().Presented != 0 {
				t.Error("Presented counted for invalid input")
			}
		})
	}
}

func TestPresentClosedPool(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPool(t, dev, 32, 32, 2)
	cycle(t, p)
	h, err := p.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	surf := &gputest.Surface{}
	swapring.Present(p, surf, 0, h)
	if len(surf.Commits()) != 0 {
		t.Error("transaction applied on a closed pool")
	}
	if c := dev.Counters(); c.LiveSync() != 0 || c.DoubleCloses != 0 {
		t.Errorf("live=%d double=%d, want handle closed once", c.LiveSync(), c.DoubleCloses)
	}
}

func TestPresentApplyFailureIsLoggedOnly(t *testing.T) {
	p := newPool(t, gputest.NewBasicDevice(), 32, 32, 2)
	surf := &gputest.Surface{FailApply: errors.New("compositor gone")}

	i := cycle(t, p)
	swapring.Present(p, surf, i, swapring.NoFence)

	if len(surf.Commits()) != 1 {
		t.Errorf("commits = %d, want 1", len(surf.Commits()))
	}
	if p.Slot(i).State() != swapring.SlotPresenting {
		t.Errorf("state = %v, want presenting", p.Slot(i).State())
	}
}

func TestCreateFenceWithoutFences(t *testing.T) {
	dev := gputest.NewBasicDevice()
	p := newPool(t, dev, 32, 32, 2)
	if p.FenceCapable() {
		t.Fatal("FenceCapable() = true for a device without fences")
	}

	for k := 1; k <= 3; k++ {
		cycle(t, p)
		h, err := p.CreateFence()
		if err != nil {
			t.Fatalf("CreateFence() = %v", err)
		}
		if h != swapring.NoFence {
			t.Errorf("CreateFence() = %d, want NoFence", h)
		}
		if got := dev.Counters().WaitIdles; got != k {
			t.Errorf("WaitIdles after %d fences = %d, want %d", k, got, k)
		}
	}
}

func TestCreateFenceExportFailureFallsBack(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPool(t, dev, 32, 32, 2)
	cycle(t, p)
	dev.FailExport = gputest.ErrInjected

	h, err := p.CreateFence()
	if err != nil || h != swapring.NoFence {
		t.Errorf("CreateFence() = (%d, %v), want (NoFence, nil)", h, err)
	}
	if dev.Counters().WaitIdles != 1 {
		t.Errorf("WaitIdles = %d, want 1", dev.Counters().WaitIdles)
	}
}

func TestCreateFenceFinishFailure(t *testing.T) {
	dev := gputest.NewBasicDevice()
	p := newPool(t, dev, 32, 32, 2)
	dev.FailWaitIdle = gputest.ErrInjected
	t.Cleanup(func() { dev.FailWaitIdle = nil })

	if _, err := p.CreateFence(); !errors.Is(err, gputest.ErrInjected) {
		t.Errorf("CreateFence() = %v, want injected error", err)
	}
}

func TestReleaseFence(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPool(t, dev, 32, 32, 2)
	cycle(t, p)

	h, err := p.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() = %v", err)
	}
	p.ReleaseFence(h)
	p.ReleaseFence(swapring.NoFence)

	if c := dev.Counters(); c.SyncClosed != 1 || c.DoubleCloses != 0 {
		t.Errorf("SyncClosed=%d DoubleCloses=%d, want 1 and 0", c.SyncClosed, c.DoubleCloses)
	}
}
