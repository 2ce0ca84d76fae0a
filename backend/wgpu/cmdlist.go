//go:build !nogpu

package wgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtcore/gpu"
)

// CommandList records onto a HAL command encoder.
type CommandList struct {
	dev      *Device
	label    string
	enc      hal.CommandEncoder
	err      error
	barriers int
}

var _ gpu.CommandList = (*CommandList)(nil)

// NewCommandList begins a new encoder.
func (d *Device) NewCommandList(label string) (*CommandList, error) {
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrap(err, "wgpu: create command encoder")
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, errors.Wrap(err, "wgpu: begin encoding")
	}
	return &CommandList{dev: d, label: label, enc: enc}, nil
}

// ResourceBarrier implements gpu.CommandList. Texture transitions are
// forwarded to the encoder; WebGPU tracks buffer usage itself.
func (c *CommandList) ResourceBarrier(res gpu.Resource, before, after gpu.ResourceState) {
	r, err := c.dev.resolve(res)
	if err != nil {
		c.fail(err)
		return
	}
	c.barriers++
	if r.texture == nil {
		return
	}
	c.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: stateUsage(before),
			NewUsage: stateUsage(after),
		},
	}})
}

// UnorderedAccessBarrier implements gpu.CommandList. WebGPU orders storage
// accesses between passes, so nothing is recorded.
func (c *CommandList) UnorderedAccessBarrier(res gpu.Resource) {
	if _, err := c.dev.resolve(res); err != nil {
		c.fail(err)
		return
	}
	c.barriers++
}

// BuildAccelerationStructure implements gpu.CommandList.
func (c *CommandList) BuildAccelerationStructure(*gpu.AccelerationStructureBuildDesc) {
	c.fail(errors.Wrap(gpu.ErrUnsupported, "wgpu: acceleration structure build"))
}

// DispatchRays implements gpu.CommandList.
func (c *CommandList) DispatchRays(*gpu.DispatchRaysDesc) {
	c.fail(errors.Wrap(gpu.ErrUnsupported, "wgpu: ray dispatch"))
}

// Barriers returns the number of barriers recorded.
func (c *CommandList) Barriers() int { return c.barriers }

// Err returns the first recording error.
func (c *CommandList) Err() error { return c.err }

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Submit writes pending uploads, submits the recorded commands and waits
// for them to complete. A recording error discards the commands.
func (c *CommandList) Submit() error {
	if c.enc == nil {
		return errors.New("wgpu: command list already submitted")
	}
	enc := c.enc
	c.enc = nil
	if c.err != nil {
		enc.DiscardEncoding()
		return c.err
	}

	c.dev.flushUploads()

	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "wgpu: end encoding")
	}
	defer c.dev.dev.FreeCommandBuffer(cmdBuf)

	fence, err := c.dev.dev.CreateFence()
	if err != nil {
		return errors.Wrap(err, "wgpu: create fence")
	}
	defer c.dev.dev.DestroyFence(fence)

	if err := c.dev.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return errors.Wrap(err, "wgpu: submit")
	}
	ok, err := c.dev.dev.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return errors.Wrap(err, "wgpu: wait")
	}
	if !ok {
		return errors.Newf("wgpu: %q timed out after %s", c.label, fenceTimeout)
	}
	return nil
}
