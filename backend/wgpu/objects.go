//go:build !nogpu

package wgpu

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// Binding is the content of one descriptor slot: a texture view or a
// buffer range ready for a bind group entry.
type Binding struct {
	Kind   gpu.ViewKind
	View   hal.TextureView
	Buffer hal.Buffer
	Offset uint64
	Size   uint64
}

// DescriptorTable holds bindings until they are gathered into bind groups.
type DescriptorTable struct {
	kind  gpu.DescriptorKind
	label string
	slots []*Binding
}

// Kind implements gpu.DescriptorTable.
func (t *DescriptorTable) Kind() gpu.DescriptorKind { return t.kind }

// Len implements gpu.DescriptorTable.
func (t *DescriptorTable) Len() int { return len(t.slots) }

// Slot returns the binding at index i, or nil.
func (t *DescriptorTable) Slot(i int) *Binding {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}

// BindingLayout is a bind group layout plus the pipeline layout built on it.
type BindingLayout struct {
	label    string
	group    hal.BindGroupLayout
	pipeline hal.PipelineLayout
}

// Label implements gpu.BindingLayout.
func (l *BindingLayout) Label() string { return l.label }

// PipelineLayout returns the HAL pipeline layout.
func (l *BindingLayout) PipelineLayout() hal.PipelineLayout { return l.pipeline }

// PipelineState is a HAL compute pipeline.
type PipelineState struct {
	label    string
	kind     gpu.PipelineKind
	module   hal.ShaderModule
	pipeline hal.ComputePipeline
}

// Label implements gpu.PipelineState.
func (p *PipelineState) Label() string { return p.label }

// Kind implements gpu.PipelineState.
func (p *PipelineState) Kind() gpu.PipelineKind { return p.kind }

// Compute returns the HAL compute pipeline.
func (p *PipelineState) Compute() hal.ComputePipeline { return p.pipeline }

// CreateDescriptorTable implements gpu.Device.
func (d *Device) CreateDescriptorTable(kind gpu.DescriptorKind, capacity int, label string) (gpu.DescriptorTable, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: descriptor table %q capacity %d", label, capacity)
	}
	return &DescriptorTable{kind: kind, label: label, slots: make([]*Binding, capacity)}, nil
}

// CreateView implements gpu.Device.
func (d *Device) CreateView(kind gpu.ViewKind, target gpu.Resource, desc *gpu.ViewDesc, slot gpu.DescriptorSlot) error {
	r, err := d.resolve(target)
	if err != nil {
		return err
	}
	table, ok := slot.Table.(*DescriptorTable)
	if !ok || table == nil {
		return errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: view of %q has no descriptor table", r.label)
	}
	if table.kind != kind.DescriptorKind() {
		return errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: %s view in %s table", kind, table.kind)
	}
	if slot.Index < 0 || slot.Index >= len(table.slots) {
		return errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: slot %d of %d", slot.Index, len(table.slots))
	}
	var vd gpu.ViewDesc
	if desc != nil {
		vd = *desc
	}
	if vd.Dimension == gpu.ViewDimensionAccelerationStructure {
		return errors.Wrap(gpu.ErrUnsupported, "wgpu: acceleration structure views")
	}

	b := &Binding{Kind: kind}
	switch {
	case r.buffer != nil:
		b.Buffer = r.buffer
		b.Offset = vd.FirstElement * uint64(vd.ElementStride)
		b.Size = uint64(vd.ElementCount) * uint64(vd.ElementStride)
		if b.Size == 0 {
			b.Size = r.desc.Size - b.Offset
		}
		if b.Offset+b.Size > r.desc.Size {
			return errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: view of %q past end of buffer", r.label)
		}
	default:
		view, err := d.dev.CreateTextureView(r.texture, &hal.TextureViewDescriptor{
			Label: r.label + "_" + kind.String(),
		})
		if err != nil {
			return gpu.AllocationFailure(errors.Wrapf(err, "wgpu: view of %q", r.label))
		}
		r.views = append(r.views, view)
		b.View = view
	}
	table.slots[slot.Index] = b
	return nil
}

// CreateBindingLayout implements gpu.Device.
func (d *Device) CreateBindingLayout(desc *gpu.BindingLayoutDesc) (gpu.BindingLayout, error) {
	if desc.Local {
		return nil, errors.Wrapf(gpu.ErrUnsupported, "wgpu: local layout %q", desc.Label)
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry, err := layoutEntry(e)
		if err != nil {
			return nil, errors.Wrapf(err, "wgpu: layout %q binding %d", desc.Label, e.Binding)
		}
		entries = append(entries, entry)
	}

	group, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: bind group layout %q", desc.Label))
	}
	pipeline, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{group},
	})
	if err != nil {
		d.dev.DestroyBindGroupLayout(group)
		return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: pipeline layout %q", desc.Label))
	}
	return &BindingLayout{label: desc.Label, group: group, pipeline: pipeline}, nil
}

func layoutEntry(e gpu.BindingEntry) (gputypes.BindGroupLayoutEntry, error) {
	if e.Stages&gpu.StageAllRayTracing != 0 {
		return gputypes.BindGroupLayoutEntry{}, errors.Wrap(gpu.ErrUnsupported, "ray tracing stages")
	}
	entry := gputypes.BindGroupLayoutEntry{Binding: e.Binding}
	if e.Stages&gpu.StageVertex != 0 {
		entry.Visibility |= gputypes.ShaderStageVertex
	}
	if e.Stages&gpu.StageFragment != 0 {
		entry.Visibility |= gputypes.ShaderStageFragment
	}
	if e.Stages&gpu.StageCompute != 0 {
		entry.Visibility |= gputypes.ShaderStageCompute
	}

	switch e.Kind {
	case gpu.BindingUniformBuffer:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case gpu.BindingStorageBuffer:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case gpu.BindingReadOnlyStorageBuffer:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case gpu.BindingSampledTexture:
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpu.BindingSampler:
		entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	default:
		return entry, errors.Wrapf(gpu.ErrUnsupported, "binding kind %d", e.Kind)
	}
	return entry, nil
}

// CreatePipelineState implements gpu.Device. Only compute pipelines are
// supported.
func (d *Device) CreatePipelineState(kind gpu.PipelineKind, desc *gpu.PipelineStateDesc) (gpu.PipelineState, error) {
	if kind != gpu.PipelineCompute {
		return nil, errors.Wrapf(gpu.ErrUnsupported, "wgpu: %s pipeline %q", kind, desc.Label)
	}
	layout, ok := desc.Layout.(*BindingLayout)
	if !ok || layout == nil {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: pipeline %q has no layout", desc.Label)
	}
	if desc.Shader.Empty() || desc.EntryPoint == "" {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "wgpu: pipeline %q has no shader", desc.Label)
	}

	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.Shader.WGSL, SPIRV: desc.Shader.SPIRV},
	})
	if err != nil {
		return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: shader module %q", desc.Label))
	}
	pipeline, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.pipeline,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		d.dev.DestroyShaderModule(module)
		return nil, gpu.AllocationFailure(errors.Wrapf(err, "wgpu: compute pipeline %q", desc.Label))
	}

	trace.Logger().Debug("wgpu: pipeline created",
		slog.String("label", desc.Label),
		slog.String("entry", desc.EntryPoint))
	return &PipelineState{label: desc.Label, kind: kind, module: module, pipeline: pipeline}, nil
}

// DestroyPipelineState releases a pipeline created by this device.
func (d *Device) DestroyPipelineState(p gpu.PipelineState) {
	ps, ok := p.(*PipelineState)
	if !ok || ps == nil {
		return
	}
	if ps.pipeline != nil {
		d.dev.DestroyComputePipeline(ps.pipeline)
		ps.pipeline = nil
	}
	if ps.module != nil {
		d.dev.DestroyShaderModule(ps.module)
		ps.module = nil
	}
}

// DestroyBindingLayout releases a layout created by this device.
func (d *Device) DestroyBindingLayout(l gpu.BindingLayout) {
	bl, ok := l.(*BindingLayout)
	if !ok || bl == nil {
		return
	}
	if bl.pipeline != nil {
		d.dev.DestroyPipelineLayout(bl.pipeline)
		bl.pipeline = nil
	}
	if bl.group != nil {
		d.dev.DestroyBindGroupLayout(bl.group)
		bl.group = nil
	}
}
