package gpu

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// MemoryKind selects the heap a resource is allocated from.
type MemoryKind uint8

// Memory kinds.
const (
	// MemoryDeviceLocal is GPU-only memory. Not mappable.
	MemoryDeviceLocal MemoryKind = iota

	// MemoryUpload is CPU-writable, GPU-readable memory.
	MemoryUpload

	// MemoryReadback is GPU-writable, CPU-readable memory.
	MemoryReadback
)

// String returns the memory kind name.
func (k MemoryKind) String() string {
	switch k {
	case MemoryDeviceLocal:
		return "DeviceLocal"
	case MemoryUpload:
		return "Upload"
	case MemoryReadback:
		return "Readback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// HostVisible reports whether memory of this kind can be mapped.
func (k MemoryKind) HostVisible() bool {
	return k == MemoryUpload || k == MemoryReadback
}

// Dimension is the shape of a resource.
type Dimension uint8

// Resource dimensions.
const (
	// DimensionBuffer is a linear byte buffer.
	DimensionBuffer Dimension = iota + 1

	// DimensionTexture2D is a 2D image, optionally an array.
	DimensionTexture2D
)

// String returns the dimension name.
func (d Dimension) String() string {
	switch d {
	case DimensionBuffer:
		return "Buffer"
	case DimensionTexture2D:
		return "Texture2D"
	default:
		return fmt.Sprintf("Unknown(%d)", int(d))
	}
}

// ResourceFlags declare the usages a resource must support beyond reads.
type ResourceFlags uint32

// Resource flags.
const (
	// FlagRenderTarget allows render-target views.
	FlagRenderTarget ResourceFlags = 1 << iota

	// FlagDepthStencil allows depth-stencil views.
	FlagDepthStencil

	// FlagUnorderedAccess allows unordered-access views.
	FlagUnorderedAccess

	// FlagAccelerationStructure marks buffer storage for acceleration structures.
	FlagAccelerationStructure
)

// ResourceDesc describes a resource allocation.
type ResourceDesc struct {
	// Dimension selects buffer or texture.
	Dimension Dimension

	// Size is the buffer size in bytes. Ignored for textures.
	Size uint64

	// Width and Height are the texture extent in texels.
	Width  uint32
	Height uint32

	// ArrayLayers is the texture array size. Zero means one.
	ArrayLayers uint32

	// MipLevels is the number of mip levels. Zero means one.
	MipLevels uint32

	// SampleCount is the MSAA sample count. Zero means one.
	SampleCount uint32

	// Format is the texel format. Ignored for buffers.
	Format gputypes.TextureFormat

	// Flags declares write usages.
	Flags ResourceFlags
}

// BufferDesc returns a description of a buffer of size bytes.
func BufferDesc(size uint64, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{Dimension: DimensionBuffer, Size: size, Flags: flags}
}

// Texture2DDesc returns a description of a single-mip 2D texture.
func Texture2DDesc(width, height uint32, format gputypes.TextureFormat, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{
		Dimension:   DimensionTexture2D,
		Width:       width,
		Height:      height,
		ArrayLayers: 1,
		MipLevels:   1,
		SampleCount: 1,
		Format:      format,
		Flags:       flags,
	}
}

// Validate checks the description for obvious mistakes.
func (d *ResourceDesc) Validate() error {
	switch d.Dimension {
	case DimensionBuffer:
		if d.Size == 0 {
			return errors.Wrap(ErrInvalidDescription, "zero-sized buffer")
		}
	case DimensionTexture2D:
		if d.Width == 0 || d.Height == 0 {
			return errors.Wrapf(ErrInvalidDescription, "texture extent %dx%d", d.Width, d.Height)
		}
		if d.Format == gputypes.TextureFormatUndefined {
			return errors.Wrap(ErrInvalidDescription, "texture format undefined")
		}
	default:
		return errors.Wrapf(ErrInvalidDescription, "dimension %s", d.Dimension)
	}
	return nil
}

// ByteSize returns the approximate memory footprint of the resource.
func (d *ResourceDesc) ByteSize() uint64 {
	if d.Dimension == DimensionBuffer {
		return d.Size
	}
	layers := uint64(max(d.ArrayLayers, 1))
	samples := uint64(max(d.SampleCount, 1))
	base := uint64(d.Width) * uint64(d.Height) * uint64(BytesPerTexel(d.Format))
	total := base
	// Each mip level is a quarter of the previous one.
	for level, sz := uint32(1), base; level < max(d.MipLevels, 1); level++ {
		sz /= 4
		total += sz
	}
	return total * layers * samples
}

// BytesPerTexel returns the size of one texel of format f.
func BytesPerTexel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// ClearValue is the optimized clear value of a render target or depth buffer.
type ClearValue struct {
	Format  gputypes.TextureFormat
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

// ViewKind selects how a shader stage interprets a resource.
type ViewKind uint8

// View kinds.
const (
	// ViewShaderRead is a read-only shader view (textures, buffers, acceleration structures).
	ViewShaderRead ViewKind = iota

	// ViewUnorderedAccess is a read-write shader view.
	ViewUnorderedAccess

	// ViewRenderTarget is a color attachment view.
	ViewRenderTarget

	// ViewDepthStencil is a depth-stencil attachment view.
	ViewDepthStencil
)

// String returns the view kind name.
func (k ViewKind) String() string {
	switch k {
	case ViewShaderRead:
		return "ShaderRead"
	case ViewUnorderedAccess:
		return "UnorderedAccess"
	case ViewRenderTarget:
		return "RenderTarget"
	case ViewDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// DescriptorKind returns the descriptor table kind that holds views of kind k.
func (k ViewKind) DescriptorKind() DescriptorKind {
	switch k {
	case ViewRenderTarget:
		return DescriptorRenderTarget
	case ViewDepthStencil:
		return DescriptorDepthStencil
	default:
		return DescriptorShaderResource
	}
}

// ViewDimension is the shape a view exposes.
type ViewDimension uint8

// View dimensions.
const (
	// ViewDimensionAuto derives the view dimension from the resource.
	ViewDimensionAuto ViewDimension = iota

	// ViewDimensionBuffer views a range of buffer elements.
	ViewDimensionBuffer

	// ViewDimensionTexture2D views one mip of a 2D texture.
	ViewDimensionTexture2D

	// ViewDimensionAccelerationStructure views acceleration structure storage.
	ViewDimensionAccelerationStructure
)

// ViewDesc describes a view.
type ViewDesc struct {
	// Dimension of the view. ViewDimensionAuto follows the resource.
	Dimension ViewDimension

	// Format overrides the resource format. Undefined keeps it.
	Format gputypes.TextureFormat

	// FirstElement, ElementCount and ElementStride select a buffer range.
	FirstElement  uint64
	ElementCount  uint32
	ElementStride uint32

	// MipSlice selects the texture mip level.
	MipSlice uint32
}

// DescriptorKind classifies descriptor tables.
type DescriptorKind uint8

// Descriptor table kinds.
const (
	// DescriptorShaderResource holds shader-read and unordered-access views.
	DescriptorShaderResource DescriptorKind = iota

	// DescriptorRenderTarget holds render-target views.
	DescriptorRenderTarget

	// DescriptorDepthStencil holds depth-stencil views.
	DescriptorDepthStencil
)

// String returns the descriptor kind name.
func (k DescriptorKind) String() string {
	switch k {
	case DescriptorShaderResource:
		return "ShaderResource"
	case DescriptorRenderTarget:
		return "RenderTarget"
	case DescriptorDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// DescriptorSlot addresses one entry of a descriptor table.
type DescriptorSlot struct {
	Table DescriptorTable
	Index int
}

// BindingKind is the type of resource bound at a layout entry.
type BindingKind uint8

// Binding kinds.
const (
	BindingUniformBuffer BindingKind = iota + 1
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampledTexture
	BindingStorageTexture
	BindingSampler
	BindingAccelerationStructure
)

// ShaderStages is a bitmask of stages that see a binding.
type ShaderStages uint32

// Shader stages.
const (
	StageVertex ShaderStages = 1 << iota
	StageFragment
	StageCompute
	StageRayGeneration
	StageMiss
	StageClosestHit
	StageAnyHit
	StageIntersection

	// StageAllRayTracing covers every ray-tracing stage.
	StageAllRayTracing = StageRayGeneration | StageMiss | StageClosestHit | StageAnyHit | StageIntersection
)

// BindingEntry describes one binding of a layout.
type BindingEntry struct {
	Binding uint32
	Kind    BindingKind
	Stages  ShaderStages

	// Count is the array size. Zero means one.
	Count uint32
}

// BindingLayoutDesc describes a pipeline binding layout.
type BindingLayoutDesc struct {
	Label   string
	Entries []BindingEntry

	// Local marks a per-record layout whose arguments live in shader records.
	Local bool
}

// PipelineKind selects the pipeline entry point of the device.
type PipelineKind uint8

// Pipeline kinds.
const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
	PipelineRayTracing
)

// String returns the pipeline kind name.
func (k PipelineKind) String() string {
	switch k {
	case PipelineGraphics:
		return "Graphics"
	case PipelineCompute:
		return "Compute"
	case PipelineRayTracing:
		return "RayTracing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ShaderCode is a shader module in one of the accepted encodings.
type ShaderCode struct {
	WGSL  string
	SPIRV []uint32
}

// Empty reports whether no code is present.
func (c ShaderCode) Empty() bool {
	return c.WGSL == "" && len(c.SPIRV) == 0
}

// HitGroupDesc names the shaders of one hit group.
type HitGroupDesc struct {
	Name         string
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// PipelineStateDesc describes a pipeline state object.
type PipelineStateDesc struct {
	Label  string
	Layout BindingLayout
	Shader ShaderCode

	// EntryPoint is the compute entry point.
	EntryPoint string

	// VertexEntry and FragmentEntry are the graphics entry points.
	VertexEntry   string
	FragmentEntry string
	ColorFormats  []gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat

	// Exports, HitGroups and the limits below configure ray-tracing pipelines.
	Exports           []string
	HitGroups         []HitGroupDesc
	MaxRecursionDepth uint32
	MaxPayloadSize    uint32
}

// AddressRange is a GPU virtual address range.
type AddressRange struct {
	Start uint64
	Size  uint64
}

// StridedRange is a GPU virtual address range of equally sized records.
type StridedRange struct {
	Start  uint64
	Size   uint64
	Stride uint64
}

// DispatchRaysDesc describes a ray dispatch.
type DispatchRaysDesc struct {
	Pipeline      PipelineState
	RayGeneration AddressRange
	Miss          StridedRange
	HitGroup      StridedRange
	Callable      StridedRange
	Width         uint32
	Height        uint32
	Depth         uint32
}
