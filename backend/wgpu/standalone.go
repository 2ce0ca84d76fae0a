//go:build !nogpu

package wgpu

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/rtcore/backend"
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

func init() {
	backend.Register(backend.WGPU, func() (backend.Device, error) {
		return Open()
	})
}

var _ backend.Device = (*Device)(nil)

// Open creates a standalone Vulkan device. Discrete and integrated GPUs are
// preferred over software adapters. The returned device owns its instance;
// release it with Close.
func Open() (*Device, error) {
	vk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, errors.Wrap(backend.ErrBackendNotAvailable, "wgpu: vulkan backend not available")
	}
	instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "wgpu: create instance"), backend.ErrBackendNotAvailable)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.Wrap(backend.ErrBackendNotAvailable, "wgpu: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	opened, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, gpu.AllocationFailure(errors.Wrap(err, "wgpu: open device"))
	}

	d := New(opened.Device, opened.Queue)
	d.instance = instance
	trace.Logger().Info("wgpu: device opened (standalone)", slog.String("adapter", selected.Info.Name))
	return d, nil
}

// Close destroys the device and instance created by Open. Devices wrapped
// with New or NewFromProvider belong to the caller and are left alone.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.instance == nil {
		return
	}
	for r := range d.upload {
		delete(d.upload, r)
	}
	if d.dev != nil {
		d.dev.Destroy()
		d.dev = nil
	}
	d.instance.Destroy()
	d.instance = nil
}
