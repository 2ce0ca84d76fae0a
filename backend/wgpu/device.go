//go:build !nogpu

package wgpu

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// fenceTimeout bounds how long Submit waits for the GPU.
const fenceTimeout = 5 * time.Second

// Device implements gpu.Device on top of a HAL device.
type Device struct {
	mu     sync.Mutex
	dev    hal.Device
	queue  hal.Queue
	limits gpu.Limits

	// upload holds host-visible buffers whose shadows are written on submit.
	upload map[*Resource]struct{}

	// instance is set by Open; Close destroys it with dev.
	instance hal.Instance
}

var _ gpu.Device = (*Device)(nil)

// New wraps a HAL device and its queue. The caller keeps ownership of both.
func New(dev hal.Device, queue hal.Queue) *Device {
	return &Device{
		dev:    dev,
		queue:  queue,
		limits: gpu.DefaultLimits(),
		upload: make(map[*Resource]struct{}),
	}
}

// NewFromProvider wraps the HAL device of a shared gpucontext provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.Wrap(gpu.ErrUnsupported, "wgpu: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, errors.Wrap(gpu.ErrUnsupported, "wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.Wrap(gpu.ErrUnsupported, "wgpu: provider HalQueue is not hal.Queue")
	}
	return New(dev, queue), nil
}

// HAL returns the wrapped device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// Limits implements gpu.Device.
func (d *Device) Limits() gpu.Limits { return d.limits }

// CreateResource implements gpu.Device.
func (d *Device) CreateResource(kind gpu.MemoryKind, desc *gpu.ResourceDesc, initial gpu.ResourceState, clear *gpu.ClearValue, label string) (gpu.Resource, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Flags&gpu.FlagAccelerationStructure != 0 {
		return nil, errors.Wrapf(gpu.ErrUnsupported, "wgpu: acceleration structure storage %q", label)
	}

	r := &Resource{desc: *desc, label: label, memory: kind}
	switch desc.Dimension {
	case gpu.DimensionBuffer:
		if desc.Size > gpu.MaxHostAllocation {
			return nil, errors.Wrapf(gpu.ErrOutOfMemory, "wgpu: buffer %q needs %d bytes, limit is %d",
				label, desc.Size, uint64(gpu.MaxHostAllocation))
		}
		buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: label,
			Size:  gpu.AlignUp(desc.Size, 4),
			Usage: bufferUsage(kind, desc.Flags),
		})
		if err != nil {
			return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: create buffer %q", label))
		}
		r.buffer = buf
		if kind.HostVisible() {
			r.shadow = make([]byte, desc.Size)
		}
		if kind == gpu.MemoryUpload {
			d.mu.Lock()
			d.upload[r] = struct{}{}
			d.mu.Unlock()
		}
	case gpu.DimensionTexture2D:
		if desc.Flags&gpu.FlagUnorderedAccess != 0 {
			return nil, errors.Wrapf(gpu.ErrUnsupported, "wgpu: unordered access texture %q", label)
		}
		if kind != gpu.MemoryDeviceLocal {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "texture %q in %s memory", label, kind)
		}
		tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
			Label: label,
			Size: hal.Extent3D{
				Width:              desc.Width,
				Height:             desc.Height,
				DepthOrArrayLayers: max(desc.ArrayLayers, 1),
			},
			MipLevelCount: max(desc.MipLevels, 1),
			SampleCount:   max(desc.SampleCount, 1),
			Dimension:     gputypes.TextureDimension2D,
			Format:        desc.Format,
			Usage:         textureUsage(desc.Flags),
		})
		if err != nil {
			return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: create texture %q", label))
		}
		r.texture = tex
	}

	trace.Logger().Debug("wgpu: resource created",
		slog.String("label", label),
		slog.String("memory", kind.String()),
		slog.String("dimension", desc.Dimension.String()),
		slog.String("state", initial.String()))
	return r, nil
}

// DestroyResource implements gpu.Device.
func (d *Device) DestroyResource(res gpu.Resource) {
	r, ok := res.(*Resource)
	if !ok || r == nil {
		return
	}
	if r.destroyed {
		trace.Logger().Warn("wgpu: resource destroyed twice", slog.String("label", r.label))
		return
	}
	r.destroyed = true

	d.mu.Lock()
	delete(d.upload, r)
	d.mu.Unlock()

	for _, v := range r.views {
		d.dev.DestroyTextureView(v)
	}
	r.views = nil
	if r.buffer != nil {
		d.dev.DestroyBuffer(r.buffer)
	}
	if r.texture != nil {
		d.dev.DestroyTexture(r.texture)
	}
}

// Map implements gpu.Device. The returned slice is a CPU shadow of the
// buffer; upload contents are written to the GPU on submit.
func (d *Device) Map(res gpu.Resource) ([]byte, error) {
	r, err := d.resolve(res)
	if err != nil {
		return nil, err
	}
	if r.shadow == nil {
		return nil, errors.Wrapf(gpu.ErrNotMappable, "%q in %s memory", r.label, r.memory)
	}
	return r.shadow, nil
}

// flushUploads writes every upload shadow to its buffer.
func (d *Device) flushUploads() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for r := range d.upload {
		d.queue.WriteBuffer(r.buffer, 0, r.shadow)
	}
}

// AccelerationStructurePrebuildInfo implements gpu.Device. WebGPU has no
// acceleration structures.
func (d *Device) AccelerationStructurePrebuildInfo(*gpu.AccelerationStructureInputs) (gpu.PrebuildInfo, error) {
	return gpu.PrebuildInfo{}, errors.Wrap(gpu.ErrUnsupported, "wgpu: acceleration structures")
}

func (d *Device) resolve(res gpu.Resource) (*Resource, error) {
	if res == nil {
		return nil, gpu.ErrNilResource
	}
	r, ok := res.(*Resource)
	if !ok {
		return nil, errors.Newf("wgpu: foreign resource %T", res)
	}
	if r.destroyed {
		return nil, errors.Newf("wgpu: resource %q used after destroy", r.label)
	}
	return r, nil
}

func bufferUsage(kind gpu.MemoryKind, flags gpu.ResourceFlags) gputypes.BufferUsage {
	switch kind {
	case gpu.MemoryUpload:
		return gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc |
			gputypes.BufferUsageUniform | gputypes.BufferUsageStorage
	case gpu.MemoryReadback:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	usage := gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc | gputypes.BufferUsageStorage
	if flags&gpu.FlagUnorderedAccess == 0 {
		usage |= gputypes.BufferUsageUniform | gputypes.BufferUsageVertex
	}
	return usage
}

func textureUsage(flags gpu.ResourceFlags) gputypes.TextureUsage {
	usage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if flags&(gpu.FlagRenderTarget|gpu.FlagDepthStencil) != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

// stateUsage maps a resource state to the texture usage a barrier
// transitions from or to.
func stateUsage(s gpu.ResourceState) gputypes.TextureUsage {
	switch s {
	case gpu.StateRenderTarget, gpu.StateDepthWrite, gpu.StateDepthRead, gpu.StatePresent:
		return gputypes.TextureUsageRenderAttachment
	case gpu.StateCopySource:
		return gputypes.TextureUsageCopySrc
	case gpu.StateCopyDest:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageTextureBinding
	}
}
