package gpu

import "fmt"

// AccelerationStructureType selects the level of an acceleration structure.
type AccelerationStructureType uint8

// Acceleration structure levels.
const (
	// TopLevel indexes instances of bottom-level structures.
	TopLevel AccelerationStructureType = iota

	// BottomLevel indexes geometry.
	BottomLevel
)

// String returns the level name.
func (t AccelerationStructureType) String() string {
	switch t {
	case TopLevel:
		return "TopLevel"
	case BottomLevel:
		return "BottomLevel"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// BuildFlags tune acceleration structure builds.
type BuildFlags uint32

// Build flags.
const (
	// BuildAllowUpdate keeps the data needed for later in-place refits.
	BuildAllowUpdate BuildFlags = 1 << iota

	// BuildPreferFastTrace trades build time for traversal speed.
	BuildPreferFastTrace

	// BuildPreferFastBuild trades traversal speed for build time.
	BuildPreferFastBuild

	// BuildPerformUpdate refits an existing structure built with BuildAllowUpdate.
	BuildPerformUpdate
)

// Has reports whether all bits of m are set.
func (f BuildFlags) Has(m BuildFlags) bool {
	return f&m == m
}

// IndexFormat is the element type of an index buffer.
type IndexFormat uint8

// Index formats.
const (
	IndexNone IndexFormat = iota
	IndexUint16
	IndexUint32
)

// Size returns the byte size of one index.
func (f IndexFormat) Size() uint64 {
	switch f {
	case IndexUint16:
		return 2
	case IndexUint32:
		return 4
	default:
		return 0
	}
}

// GeometryDesc describes a triangle geometry of a bottom-level structure.
// Vertices are three float32 positions at VertexStride intervals.
type GeometryDesc struct {
	VertexBuffer Resource
	VertexOffset uint64
	VertexCount  uint32
	VertexStride uint64

	IndexBuffer Resource
	IndexOffset uint64
	IndexCount  uint32
	IndexFormat IndexFormat

	Opaque bool
}

// PrimitiveCount returns the number of triangles.
func (g *GeometryDesc) PrimitiveCount() uint32 {
	if g.IndexFormat != IndexNone {
		return g.IndexCount / 3
	}
	return g.VertexCount / 3
}

// AccelerationStructureInputs describes what a build consumes.
type AccelerationStructureInputs struct {
	Type  AccelerationStructureType
	Flags BuildFlags

	// InstanceCount and Instances describe top-level input. Instances holds
	// InstanceDescSize-byte records starting at InstancesOffset.
	InstanceCount   uint32
	Instances       Resource
	InstancesOffset uint64

	// Geometries describe bottom-level input.
	Geometries []GeometryDesc
}

// PrebuildInfo holds the memory requirements of a build.
type PrebuildInfo struct {
	ResultDataMaxSize     uint64
	ScratchDataSize       uint64
	UpdateScratchDataSize uint64
}

// AccelerationStructureBuildDesc is one recorded build or update.
type AccelerationStructureBuildDesc struct {
	Inputs AccelerationStructureInputs

	// Dest receives the structure. Source is the structure being refitted
	// when Inputs.Flags has BuildPerformUpdate; it may equal Dest.
	Dest    Resource
	Source  Resource
	Scratch Resource
}
