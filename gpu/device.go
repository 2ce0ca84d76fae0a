package gpu

// Resource is an opaque handle to one device allocation.
type Resource interface {
	// Desc returns the description the resource was created with.
	Desc() ResourceDesc

	// GPUAddress returns the GPU virtual address of a buffer, or 0 for
	// textures and backends without buffer addresses.
	GPUAddress() uint64

	// Label returns the debug name.
	Label() string
}

// BindingLayout is a created binding layout (root signature / pipeline layout).
type BindingLayout interface {
	Label() string
}

// PipelineState is a created pipeline state object.
type PipelineState interface {
	Label() string
	Kind() PipelineKind
}

// DescriptorTable is a fixed-size array of view descriptors.
type DescriptorTable interface {
	Kind() DescriptorKind
	Len() int
}

// SwapChain exposes the presentable images of a surface.
type SwapChain interface {
	// Len returns the number of images.
	Len() int

	// Image returns the image at index i. The image is owned by the swap chain.
	Image(i int) (Resource, error)
}

// Device creates GPU objects. Creation calls are not safe to interleave;
// callers serialize on a devlock.Handle.
type Device interface {
	// Limits returns platform alignments and sizes. Callers query it before
	// sizing acceleration structures and shader tables.
	Limits() Limits

	// CreateResource allocates memory of the given kind. clear may be nil.
	CreateResource(kind MemoryKind, desc *ResourceDesc, initial ResourceState, clear *ClearValue, label string) (Resource, error)

	// DestroyResource releases a resource. Destroying nil is a no-op.
	DestroyResource(res Resource)

	// Map returns the persistent CPU mapping of host-visible memory.
	Map(res Resource) ([]byte, error)

	// CreateDescriptorTable allocates a descriptor table with capacity slots.
	CreateDescriptorTable(kind DescriptorKind, capacity int, label string) (DescriptorTable, error)

	// CreateView writes a view of target into slot.
	CreateView(kind ViewKind, target Resource, desc *ViewDesc, slot DescriptorSlot) error

	// CreateBindingLayout creates a binding layout.
	CreateBindingLayout(desc *BindingLayoutDesc) (BindingLayout, error)

	// CreatePipelineState creates a pipeline state object of the given kind.
	CreatePipelineState(kind PipelineKind, desc *PipelineStateDesc) (PipelineState, error)

	// AccelerationStructurePrebuildInfo returns the memory a build of inputs needs.
	AccelerationStructurePrebuildInfo(inputs *AccelerationStructureInputs) (PrebuildInfo, error)
}

// CommandList records GPU work. Commands execute in recording order.
type CommandList interface {
	// ResourceBarrier records a state transition of res.
	ResourceBarrier(res Resource, before, after ResourceState)

	// UnorderedAccessBarrier records an execution barrier that orders
	// unordered accesses to res before and after it.
	UnorderedAccessBarrier(res Resource)

	// BuildAccelerationStructure records a build or refit.
	BuildAccelerationStructure(desc *AccelerationStructureBuildDesc)

	// DispatchRays records a ray dispatch.
	DispatchRays(desc *DispatchRaysDesc)
}

// Limits are platform alignments and sizes.
type Limits struct {
	// AccelerationStructureAlignment aligns acceleration structure result
	// and scratch sizes and addresses.
	AccelerationStructureAlignment uint64

	// ShaderRecordAlignment aligns the stride of shader records.
	ShaderRecordAlignment uint64

	// ShaderTableAlignment aligns the start of each shader table.
	ShaderTableAlignment uint64

	// ShaderIdentifierSize is the size of an opaque shader identifier.
	ShaderIdentifierSize int

	// MaxShaderRecordStride bounds the record stride.
	MaxShaderRecordStride uint64
}

// Default platform values, matching common ray-tracing hardware.
const (
	DefaultAccelerationStructureAlignment = 256
	DefaultShaderRecordAlignment          = 32
	DefaultShaderTableAlignment           = 64
	DefaultShaderIdentifierSize           = 32
	DefaultMaxShaderRecordStride          = 4096
	InstanceDescSize                      = 64

	// MaxHostAllocation bounds the host-side copy a backend keeps for a
	// single resource.
	MaxHostAllocation = 1 << 32
)

// DefaultLimits returns the default platform limits.
func DefaultLimits() Limits {
	return Limits{
		AccelerationStructureAlignment: DefaultAccelerationStructureAlignment,
		ShaderRecordAlignment:          DefaultShaderRecordAlignment,
		ShaderTableAlignment:           DefaultShaderTableAlignment,
		ShaderIdentifierSize:           DefaultShaderIdentifierSize,
		MaxShaderRecordStride:          DefaultMaxShaderRecordStride,
	}
}

// AlignUp rounds v up to a multiple of align. align must be a power of two;
// zero leaves v unchanged.
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
