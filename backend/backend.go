package backend

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
)

// Backend names.
const (
	// Soft is the host-memory device of package backend/soft.
	Soft = "soft"

	// WGPU is a standalone gogpu/wgpu device of package backend/wgpu.
	WGPU = "wgpu"
)

// ErrBackendNotAvailable is returned when a requested backend is not
// registered or cannot open a device on this machine.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Device is a device opened through the registry. Close releases whatever
// the backend created to open it.
type Device interface {
	gpu.Device
	Close()
}
