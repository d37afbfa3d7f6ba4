package backend

import (
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/swapring"
)

// Backend names.
const (
	// BackendWGPU renders with a github.com/gogpu/wgpu device owned by the host.
	BackendWGPU = "wgpu"

	// BackendRaster renders on the CPU with github.com/gogpu/gg.
	BackendRaster = "raster"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoDevice is returned when a GPU backend is opened without a device.
	ErrNoDevice = errors.New("backend: no GPU device provided")
)

// Factory opens a backend device.
//
// GPU backends take the device and queue from provider; the host keeps
// ownership of both. CPU backends accept a nil provider.
type Factory func(provider gpucontext.DeviceProvider) (swapring.Device, error)
