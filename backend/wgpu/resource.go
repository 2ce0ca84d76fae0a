//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtcore/gpu"
)

// Resource is a HAL buffer or texture.
type Resource struct {
	desc      gpu.ResourceDesc
	label     string
	memory    gpu.MemoryKind
	buffer    hal.Buffer
	texture   hal.Texture
	shadow    []byte
	views     []hal.TextureView
	destroyed bool
}

// Desc implements gpu.Resource.
func (r *Resource) Desc() gpu.ResourceDesc { return r.desc }

// GPUAddress implements gpu.Resource. WebGPU does not expose buffer addresses.
func (r *Resource) GPUAddress() uint64 { return 0 }

// Label implements gpu.Resource.
func (r *Resource) Label() string { return r.label }

// Buffer returns the HAL buffer, or nil for textures.
func (r *Resource) Buffer() hal.Buffer { return r.buffer }

// Texture returns the HAL texture, or nil for buffers.
func (r *Resource) Texture() hal.Texture { return r.texture }

// Memory returns the memory kind the resource was allocated from.
func (r *Resource) Memory() gpu.MemoryKind { return r.memory }
