package swapring

import (
	"testing"
	"time"
)

func TestLeaseRead(t *testing.T) {
	l := newLease()
	called := false
	if !l.Read(func() { called = true }) || !called {
		t.Fatal("Read() on a held lease did not run the callback")
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done() not closed after Read")
	}
	if l.Read(func() { t.Error("second Read ran the callback") }) {
		t.Error("second Read() = true, want false")
	}
	if l.Revoked() {
		t.Error("released lease reports revoked")
	}
}

func TestLeaseRevoke(t *testing.T) {
	l := newLease()
	l.revoke()
	if l.Read(func() { t.Error("Read ran after revoke") }) {
		t.Error("Read() after revoke = true, want false")
	}
	if !l.Revoked() {
		t.Error("Revoked() = false after revoke")
	}

	// Revoking a released lease changes nothing.
	r := newLease()
	r.Release()
	r.revoke()
	if r.Revoked() {
		t.Error("revoke after Release marked the lease revoked")
	}
}

func TestLeaseRevokeWaitsForRead(t *testing.T) {
	l := newLease()
	reading := make(chan struct{})
	finish := make(chan struct{})
	go l.Read(func() {
		close(reading)
		<-finish
	})
	<-reading

	revoked := make(chan struct{})
	go func() {
		l.revoke()
		close(revoked)
	}()
	select {
	case <-revoked:
		t.Fatal("revoke returned while a read was in progress")
	case <-time.After(20 * time.Millisecond):
	}

	close(finish)
	select {
	case <-revoked:
	case <-time.After(5 * time.Second):
		t.Fatal("revoke did not return after the read finished")
	}
	if l.Revoked() {
		t.Error("lease released by a read reports revoked")
	}
}

func TestLeaseWait(t *testing.T) {
	l := newLease()
	if l.wait(time.Millisecond) {
		t.Error("wait() on a held lease = true")
	}
	go l.Release()
	if !l.wait(5 * time.Second) {
		t.Error("wait() after Release = false")
	}
}

func TestNilLease(t *testing.T) {
	var l *Lease
	called := false
	if !l.Read(func() { called = true }) || !called {
		t.Error("nil lease Read did not run the callback")
	}
	l.Release()
}
