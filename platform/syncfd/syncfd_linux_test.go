//go:build linux

package syncfd

import (
	"testing"
	"time"
)

func TestSignaled(t *testing.T) {
	fd, err := NewSignaled()
	if err != nil {
		t.Fatalf("NewSignaled() = %v", err)
	}
	defer Close(fd)

	for range 2 {
		ok, err := Wait(fd, 10*time.Millisecond)
		if !ok || err != nil {
			t.Errorf("Wait() = (%v, %v), want (true, nil)", ok, err)
		}
	}
}

func TestSignal(t *testing.T) {
	fd, err := New()
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer Close(fd)

	ok, err := Wait(fd, 5*time.Millisecond)
	if ok || err != nil {
		t.Fatalf("Wait() before Signal = (%v, %v), want (false, nil)", ok, err)
	}

	done := make(chan error, 1)
	go func() {
		time.Sleep(5 * time.Millisecond)
		done <- Signal(fd)
	}()
	ok, err = Wait(fd, time.Second)
	if !ok || err != nil {
		t.Errorf("Wait() after Signal = (%v, %v), want (true, nil)", ok, err)
	}
	if err := <-done; err != nil {
		t.Errorf("Signal() = %v", err)
	}
}

func TestClose(t *testing.T) {
	fd, err := NewSignaled()
	if err != nil {
		t.Fatalf("NewSignaled() = %v", err)
	}
	if err := Close(fd); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
