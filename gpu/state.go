package gpu

import "fmt"

// ResourceState is the usage state a resource is in, as last declared by a
// barrier. Transitions between states are recorded with
// CommandList.ResourceBarrier.
type ResourceState uint8

// Resource states.
const (
	// StateCommon is the default state for freshly created or shared memory.
	StateCommon ResourceState = iota

	// StateRenderTarget is used while the resource is a color attachment.
	StateRenderTarget

	// StateShaderRead is used while shaders sample or load from the resource.
	StateShaderRead

	// StateCopySource is used while the resource is read by a copy.
	StateCopySource

	// StateCopyDest is used while the resource is written by a copy.
	StateCopyDest

	// StateUnorderedAccess allows concurrent shader reads and writes.
	// It is the hazard class: back-to-back accesses in this state still
	// need an execution barrier.
	StateUnorderedAccess

	// StatePresent is the state of a presentable swap-chain image.
	StatePresent

	// StateAccelerationStructure is the permanent state of acceleration
	// structure storage.
	StateAccelerationStructure

	// StateDepthWrite is used while the resource is a writable depth attachment.
	StateDepthWrite

	// StateDepthRead is used while the resource is a read-only depth attachment.
	StateDepthRead

	// StateVertexIndexRead is used while the resource feeds the input assembler.
	StateVertexIndexRead

	// StateIndirectArgument is used while the resource holds indirect arguments.
	StateIndirectArgument

	// StateGenericRead is the required state for upload memory.
	StateGenericRead

	stateCount
)

var stateNames = [...]string{
	StateCommon:                "Common",
	StateRenderTarget:          "RenderTarget",
	StateShaderRead:            "ShaderRead",
	StateCopySource:            "CopySource",
	StateCopyDest:              "CopyDest",
	StateUnorderedAccess:       "UnorderedAccess",
	StatePresent:               "Present",
	StateAccelerationStructure: "AccelerationStructure",
	StateDepthWrite:            "DepthWrite",
	StateDepthRead:             "DepthRead",
	StateVertexIndexRead:       "VertexIndexRead",
	StateIndirectArgument:      "IndirectArgument",
	StateGenericRead:           "GenericRead",
}

// String returns the state name.
func (s ResourceState) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// Valid reports whether s is one of the defined states.
func (s ResourceState) Valid() bool {
	return s < stateCount
}

// IsReadOnly reports whether s only permits reads by the GPU.
func (s ResourceState) IsReadOnly() bool {
	switch s {
	case StateShaderRead, StateCopySource, StateDepthRead,
		StateVertexIndexRead, StateIndirectArgument, StateGenericRead:
		return true
	default:
		return false
	}
}

// ResourceStates returns every defined state in declaration order.
func ResourceStates() []ResourceState {
	out := make([]ResourceState, 0, int(stateCount))
	for s := StateCommon; s < stateCount; s++ {
		out = append(out, s)
	}
	return out
}
