// Package wgpu adapts a gogpu/wgpu HAL device to the gpu.Device and
// gpu.CommandList interfaces.
//
// The adapter covers the subset of the contract that WebGPU can express:
// buffers, 2D textures, texture and buffer views, binding layouts and
// compute pipelines. Acceleration structures, ray tracing pipelines and
// ray dispatches report gpu.ErrUnsupported; use the soft backend for those.
//
// Host-visible memory is shadowed on the CPU. Writes through Map reach the
// GPU when the command list is submitted, via Queue.WriteBuffer.
//
// A device can be created from an explicit HAL device and queue, or from a
// gpucontext.DeviceProvider that also exposes HAL handles:
//
//	dev, err := wgpu.NewFromProvider(provider)
//	if err != nil {
//	    return err
//	}
//	cmd, err := dev.NewCommandList("frame")
//	...
//	err = cmd.Submit()
//
// Open creates a standalone Vulkan device owned by the adapter; Close
// destroys it. Importing the package registers Open as the "wgpu" backend.
package wgpu
