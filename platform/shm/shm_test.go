package shm

import (
	"errors"
	"runtime"
	"testing"
)

func TestNew(t *testing.T) {
	b, err := New("test", 4, 3, 16)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if got := len(b.Pixels()); got != 48 {
		t.Errorf("len(Pixels()) = %d, want 48", got)
	}
	if b.Width() != 4 || b.Height() != 3 || b.Stride() != 16 {
		t.Errorf("dimensions = %dx%d stride %d", b.Width(), b.Height(), b.Stride())
	}
	if runtime.GOOS == "linux" && b.FD() < 0 {
		t.Errorf("FD() = %d, want a memfd on linux", b.FD())
	}

	row := b.Row(2)
	row[0] = 0xAB
	if b.Pixels()[32] != 0xAB {
		t.Error("Row(2) does not alias the buffer memory")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if b.Pixels() != nil || b.FD() != -1 {
		t.Error("buffer still usable after Close")
	}
	if err := b.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v, want ErrClosed", err)
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name         string
		w, h, stride int
	}{
		{"zero width", 0, 4, 16},
		{"zero height", 4, 0, 16},
		{"short stride", 4, 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("test", tt.w, tt.h, tt.stride); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}
