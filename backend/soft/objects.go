package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
)

// View is the content of one descriptor slot.
type View struct {
	Kind   gpu.ViewKind
	Target gpu.Resource
	Desc   gpu.ViewDesc
}

// DescriptorTable is a software descriptor table.
type DescriptorTable struct {
	kind  gpu.DescriptorKind
	label string
	slots []*View
}

var _ gpu.DescriptorTable = (*DescriptorTable)(nil)

// Kind implements gpu.DescriptorTable.
func (t *DescriptorTable) Kind() gpu.DescriptorKind { return t.kind }

// Len implements gpu.DescriptorTable.
func (t *DescriptorTable) Len() int { return len(t.slots) }

// Slot returns the view written at index i, or nil.
func (t *DescriptorTable) Slot(i int) *View {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}

// BindingLayout is a software binding layout.
type BindingLayout struct {
	desc gpu.BindingLayoutDesc
}

// Label implements gpu.BindingLayout.
func (l *BindingLayout) Label() string { return l.desc.Label }

// Desc returns the layout description.
func (l *BindingLayout) Desc() gpu.BindingLayoutDesc { return l.desc }

// PipelineState is a software pipeline state object.
type PipelineState struct {
	kind gpu.PipelineKind
	desc gpu.PipelineStateDesc
}

// Label implements gpu.PipelineState.
func (p *PipelineState) Label() string { return p.desc.Label }

// Kind implements gpu.PipelineState.
func (p *PipelineState) Kind() gpu.PipelineKind { return p.kind }

// Desc returns the pipeline description.
func (p *PipelineState) Desc() gpu.PipelineStateDesc { return p.desc }

// CreateDescriptorTable implements gpu.Device.
func (d *Device) CreateDescriptorTable(kind gpu.DescriptorKind, capacity int, label string) (gpu.DescriptorTable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(OpCreateDescriptorTable, label); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: descriptor table %q capacity %d", label, capacity)
	}
	return &DescriptorTable{kind: kind, label: label, slots: make([]*View, capacity)}, nil
}

// CreateView implements gpu.Device.
func (d *Device) CreateView(kind gpu.ViewKind, target gpu.Resource, desc *gpu.ViewDesc, slot gpu.DescriptorSlot) error {
	label := ""
	if target != nil {
		label = target.Label()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(OpCreateView, label); err != nil {
		return err
	}

	r, err := d.resolve(target)
	if err != nil {
		return errors.Wrapf(err, "soft: %s view", kind)
	}
	table, ok := slot.Table.(*DescriptorTable)
	if !ok {
		return errors.Wrapf(gpu.ErrInvalidDescription, "soft: %s view of %q: foreign descriptor table", kind, label)
	}
	if table.kind != kind.DescriptorKind() {
		return errors.Wrapf(gpu.ErrInvalidDescription, "soft: %s view of %q in %s table", kind, label, table.kind)
	}
	if slot.Index < 0 || slot.Index >= len(table.slots) {
		return errors.Wrapf(gpu.ErrInvalidDescription, "soft: %s view of %q: slot %d of %d",
			kind, label, slot.Index, len(table.slots))
	}

	var required gpu.ResourceFlags
	switch kind {
	case gpu.ViewRenderTarget:
		required = gpu.FlagRenderTarget
	case gpu.ViewDepthStencil:
		required = gpu.FlagDepthStencil
	case gpu.ViewUnorderedAccess:
		required = gpu.FlagUnorderedAccess
	}
	if r.desc.Flags&required != required {
		return errors.Wrapf(gpu.ErrInvalidDescription, "soft: %s view of %q without the matching resource flag", kind, label)
	}

	v := &View{Kind: kind, Target: target}
	if desc != nil {
		v.Desc = *desc
	}
	if v.Desc.Dimension == gpu.ViewDimensionAccelerationStructure && r.desc.Flags&gpu.FlagAccelerationStructure == 0 {
		return errors.Wrapf(gpu.ErrInvalidDescription, "soft: acceleration structure view of plain buffer %q", label)
	}
	table.slots[slot.Index] = v
	return nil
}

// CreateBindingLayout implements gpu.Device.
func (d *Device) CreateBindingLayout(desc *gpu.BindingLayoutDesc) (gpu.BindingLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(OpCreateBindingLayout, desc.Label); err != nil {
		return nil, err
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: layout %q: binding %d declared twice", desc.Label, e.Binding)
		}
		if e.Stages == 0 {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: layout %q: binding %d visible to no stage", desc.Label, e.Binding)
		}
		seen[e.Binding] = true
	}
	out := *desc
	out.Entries = append([]gpu.BindingEntry(nil), desc.Entries...)
	return &BindingLayout{desc: out}, nil
}

// CreatePipelineState implements gpu.Device.
func (d *Device) CreatePipelineState(kind gpu.PipelineKind, desc *gpu.PipelineStateDesc) (gpu.PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(OpCreatePipelineState, desc.Label); err != nil {
		return nil, err
	}
	if desc.Layout == nil {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: pipeline %q has no layout", desc.Label)
	}
	if desc.Shader.Empty() {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: pipeline %q has no shader", desc.Label)
	}
	switch kind {
	case gpu.PipelineCompute:
		if desc.EntryPoint == "" {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: compute pipeline %q has no entry point", desc.Label)
		}
	case gpu.PipelineGraphics:
		if desc.VertexEntry == "" {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: graphics pipeline %q has no vertex entry", desc.Label)
		}
	case gpu.PipelineRayTracing:
		if len(desc.Exports) == 0 {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: ray tracing pipeline %q exports nothing", desc.Label)
		}
		if desc.MaxRecursionDepth == 0 {
			return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: ray tracing pipeline %q has zero recursion depth", desc.Label)
		}
	default:
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: pipeline %q kind %s", desc.Label, kind)
	}
	return &PipelineState{kind: kind, desc: *desc}, nil
}
