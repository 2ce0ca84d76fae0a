package accel

import (
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/resource"
)

// ensure makes t hold a buffer of at least size bytes, reallocating only
// when the current one is too small. It reports whether it allocated.
func ensure(dev gpu.Device, t *resource.Tracked, size uint64, flags gpu.ResourceFlags, initial gpu.ResourceState) (bool, error) {
	if t.Initialized() && t.Resource().Desc().Size >= size {
		return false, nil
	}
	if t.Initialized() {
		t.Release(dev)
	}
	desc := gpu.BufferDesc(size, flags)
	if err := t.Initialize(dev, gpu.MemoryDeviceLocal, &desc, initial, nil, ""); err != nil {
		return false, err
	}
	return true, nil
}

// ensureResult allocates acceleration structure storage.
func ensureResult(dev gpu.Device, t *resource.Tracked, size uint64) (bool, error) {
	return ensure(dev, t, size, gpu.FlagAccelerationStructure|gpu.FlagUnorderedAccess, gpu.StateAccelerationStructure)
}

// ensureScratch allocates build scratch memory.
func ensureScratch(dev gpu.Device, t *resource.Tracked, size uint64) (bool, error) {
	return ensure(dev, t, size, gpu.FlagUnorderedAccess, gpu.StateUnorderedAccess)
}
