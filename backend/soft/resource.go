package soft

import "github.com/gogpu/rtcore/gpu"

// Resource is a software allocation. Buffers own host memory; textures only
// carry their description.
type Resource struct {
	desc      gpu.ResourceDesc
	memory    gpu.MemoryKind
	label     string
	addr      uint64
	size      uint64
	data      []byte
	state     gpu.ResourceState
	destroyed bool
	swapChain bool

	// accel is set once an acceleration structure build targets the buffer.
	accel *accelData
}

var _ gpu.Resource = (*Resource)(nil)

// Desc implements gpu.Resource.
func (r *Resource) Desc() gpu.ResourceDesc { return r.desc }

// GPUAddress implements gpu.Resource.
func (r *Resource) GPUAddress() uint64 { return r.addr }

// Label implements gpu.Resource.
func (r *Resource) Label() string { return r.label }

// Memory returns the memory kind the resource lives in.
func (r *Resource) Memory() gpu.MemoryKind { return r.memory }

// State returns the state the command stream left the resource in.
func (r *Resource) State() gpu.ResourceState { return r.state }

// Destroyed reports whether DestroyResource released the resource.
func (r *Resource) Destroyed() bool { return r.destroyed }

// Bytes returns the backing memory of a buffer regardless of memory kind,
// for inspection in tests.
func (r *Resource) Bytes() []byte { return r.data }
