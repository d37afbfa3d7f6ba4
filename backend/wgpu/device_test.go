package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapring/backend"
)

type fakeProvider struct {
	device gpucontext.Device
}

func (p fakeProvider) Device() gpucontext.Device             { return p.device }
func (p fakeProvider) Queue() gpucontext.Queue               { return nil }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p fakeProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendWGPU) {
		t.Fatal("wgpu backend not registered")
	}
}

func TestOpenWithoutDevice(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"nil provider", nil},
		{"nil device", fakeProvider{}},
		{"foreign device", fakeProvider{device: struct{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := backend.Open(backend.BackendWGPU, tt.provider)
			if !errors.Is(err, backend.ErrNoDevice) {
				t.Errorf("Open() error = %v, want ErrNoDevice", err)
			}
			if dev != nil {
				t.Errorf("Open() device = %v, want nil", dev)
			}
		})
	}
}

func TestNewNil(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, backend.ErrNoDevice) {
		t.Errorf("New(nil) = %v, want ErrNoDevice", err)
	}
}

func TestAlignedPitch(t *testing.T) {
	tests := []struct {
		rowBytes uint32
		want     uint32
	}{
		{0, 0},
		{4, 256},
		{256, 256},
		{257, 512},
		{800 * 4, 3328},
		{1920 * 4, 7680},
	}
	for _, tt := range tests {
		if got := alignedPitch(tt.rowBytes); got != tt.want {
			t.Errorf("alignedPitch(%d) = %d, want %d", tt.rowBytes, got, tt.want)
		}
	}
}

func TestUnpadRows(t *testing.T) {
	const (
		rows     = 3
		rowBytes = 8
		pitch    = 16
	)
	src := make([]byte, rows*pitch)
	for y := range rows {
		for x := range pitch {
			if x < rowBytes {
				src[y*pitch+x] = byte(y*rowBytes + x + 1)
			} else {
				src[y*pitch+x] = 0xee
			}
		}
	}

	dst := make([]byte, rows*rowBytes)
	unpadRows(dst, rowBytes, src, pitch, rowBytes, rows)
	for i, b := range dst {
		if b != byte(i+1) {
			t.Fatalf("dst[%d] = %#x, want %#x", i, b, i+1)
		}
	}

	// Tightly packed rows copy in one pass.
	tight := make([]byte, rows*rowBytes)
	unpadRows(tight, rowBytes, dst, rowBytes, rowBytes, rows)
	for i := range tight {
		if tight[i] != dst[i] {
			t.Fatalf("tight[%d] = %#x, want %#x", i, tight[i], dst[i])
		}
	}
}

func TestFenceLifecycle(t *testing.T) {
	f := &fence{signaled: true}
	if !f.completed(0) {
		t.Error("fence created signaled is not complete")
	}

	f.reset()
	f.submit(7)
	if f.completed(6) {
		t.Error("fence complete before its submission")
	}
	if !f.completed(7) {
		t.Error("fence not complete after its submission")
	}
	// Completion is sticky until reset.
	if !f.completed(0) {
		t.Error("signaled fence reverted")
	}

	f.reset()
	f.submit(0)
	if !f.completed(0) {
		t.Error("fence with no prior submission should be signaled")
	}
}

func TestFenceTypeChecks(t *testing.T) {
	d := &Device{}
	if err := d.SubmitFence("not a fence"); err == nil {
		t.Error("SubmitFence accepted a foreign fence")
	}
	if err := d.ResetFence(42); err == nil {
		t.Error("ResetFence accepted a foreign fence")
	}
	if _, err := d.WaitFence(nil, 0); err == nil {
		t.Error("WaitFence accepted a nil fence")
	}
	if _, err := d.ImportImage(nil); !errors.Is(err, errForeignBuffer) {
		t.Errorf("ImportImage(nil) = %v, want errForeignBuffer", err)
	}
	if err := d.BindRenderTarget(nil); err == nil {
		t.Error("BindRenderTarget accepted a foreign image")
	}
}
