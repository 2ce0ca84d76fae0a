package builder

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/resource"
)

// ViewRequest writes a view of a tracked resource into a descriptor slot.
// The target only needs backing memory by the time the request is built.
type ViewRequest struct {
	Kind   gpu.ViewKind
	Target *resource.Tracked
	Desc   gpu.ViewDesc
	Slot   gpu.DescriptorSlot
}

// Name implements Request.
func (r ViewRequest) Name() string {
	if r.Target == nil {
		return r.Kind.String() + " view"
	}
	return r.Kind.String() + " view of " + r.Target.Name()
}

func (r ViewRequest) create(dev gpu.Device) error {
	if r.Target == nil || !r.Target.Initialized() {
		return errors.Wrapf(gpu.ErrNotInitialized, "%s: target has no backing memory", r.Name())
	}
	desc := r.Desc
	return gpu.AllocationFailure(dev.CreateView(r.Kind, r.Target.Resource(), &desc, r.Slot))
}

// ResourceRequest initializes a tracked resource.
type ResourceRequest struct {
	Dst     *resource.Tracked
	Memory  gpu.MemoryKind
	Desc    gpu.ResourceDesc
	Initial gpu.ResourceState
	Clear   *gpu.ClearValue
	Label   string
}

// Name implements Request.
func (r ResourceRequest) Name() string {
	if r.Label == "" && r.Dst != nil {
		return r.Dst.Name()
	}
	return r.Label
}

func (r ResourceRequest) create(dev gpu.Device) error {
	if r.Dst == nil {
		return errors.Newf("resource %q has no destination", r.Label)
	}
	desc := r.Desc
	return r.Dst.Initialize(dev, r.Memory, &desc, r.Initial, r.Clear, r.Label)
}

// LayoutRequest creates a binding layout and stores it in *Dst.
type LayoutRequest struct {
	Desc gpu.BindingLayoutDesc
	Dst  *gpu.BindingLayout
}

// Name implements Request.
func (r LayoutRequest) Name() string { return r.Desc.Label }

func (r LayoutRequest) create(dev gpu.Device) error {
	if r.Dst == nil {
		return errors.Newf("layout %q has no destination", r.Desc.Label)
	}
	desc := r.Desc
	l, err := dev.CreateBindingLayout(&desc)
	if err != nil {
		return gpu.AllocationFailure(err)
	}
	*r.Dst = l
	return nil
}

// PipelineRequest creates a pipeline state and stores it in *Dst. Kind
// selects the device entry point.
//
// Desc.Layout is read when the request is built, so a layout created by a
// LayoutRequest in the same Batch can be referenced through LayoutRef.
type PipelineRequest struct {
	Kind gpu.PipelineKind
	Desc gpu.PipelineStateDesc
	Dst  *gpu.PipelineState

	// LayoutRef, when set, overrides Desc.Layout with *LayoutRef at build time.
	LayoutRef *gpu.BindingLayout
}

// Name implements Request.
func (r PipelineRequest) Name() string { return r.Kind.String() + " pipeline " + r.Desc.Label }

func (r PipelineRequest) create(dev gpu.Device) error {
	if r.Dst == nil {
		return errors.Newf("pipeline %q has no destination", r.Desc.Label)
	}
	desc := r.Desc
	if r.LayoutRef != nil {
		desc.Layout = *r.LayoutRef
	}
	ps, err := dev.CreatePipelineState(r.Kind, &desc)
	if err != nil {
		return gpu.AllocationFailure(err)
	}
	*r.Dst = ps
	return nil
}
