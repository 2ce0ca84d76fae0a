// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
	"github.com/gogpu/rtcore/resource"
)

// TopLevel is an instance acceleration structure that supports in-place
// refits. It is owned by one pass and not safe for concurrent use.
type TopLevel struct {
	name  string
	state State
	flags gpu.BuildFlags

	result     *resource.Tracked
	scratch    *resource.Tracked
	resultSize uint64

	// Instance upload buffer, persistently mapped.
	instRes gpu.Resource
	instMem []byte
	instCap int

	// Bottom level of every instance of the last Build.
	topology []*BottomLevel
}

// NewTopLevel returns an uninitialized top level.
func NewTopLevel(name string) *TopLevel {
	return &TopLevel{
		name:    name,
		flags:   gpu.BuildAllowUpdate | gpu.BuildPreferFastTrace,
		result:  resource.New(name),
		scratch: resource.New(name + ".scratch"),
	}
}

// SetPreferFastBuild trades traversal speed for build time on later builds.
func (t *TopLevel) SetPreferFastBuild(on bool) {
	t.flags = gpu.BuildAllowUpdate
	if on {
		t.flags |= gpu.BuildPreferFastBuild
	} else {
		t.flags |= gpu.BuildPreferFastTrace
	}
}

// Build records a full build over instances. It grows the instance buffer
// when needed, queries the memory requirements with update support and
// reallocates result and scratch only when they are too small.
func (t *TopLevel) Build(dev gpu.Device, cmd gpu.CommandList, instances []Instance) error {
	if err := t.ensureInstances(dev, len(instances)); err != nil {
		return trace.Fail(err)
	}
	if err := t.writeInstances(instances); err != nil {
		return trace.Fail(err)
	}

	inputs := t.inputs(len(instances), t.flags)
	info, err := dev.AccelerationStructurePrebuildInfo(&inputs)
	if err != nil {
		return trace.Fail(gpu.AllocationFailure(errors.Wrapf(err, "accel %q: prebuild info", t.name)))
	}

	// Scratch must serve both the build and every later refit.
	align := dev.Limits().AccelerationStructureAlignment
	resultSize := max(gpu.AlignUp(info.ResultDataMaxSize, align), align)
	scratchSize := max(gpu.AlignUp(max(info.ScratchDataSize, info.UpdateScratchDataSize), align), align)

	grewResult, err := ensureResult(dev, t.result, resultSize)
	if err != nil {
		t.reset(dev)
		return trace.Fail(err)
	}
	grewScratch, err := ensureScratch(dev, t.scratch, scratchSize)
	if err != nil {
		t.reset(dev)
		return trace.Fail(err)
	}
	t.resultSize = resultSize

	t.result.Transition(cmd, gpu.StateAccelerationStructure)
	t.scratch.Transition(cmd, gpu.StateUnorderedAccess)
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{
		Inputs:  inputs,
		Dest:    t.result.Resource(),
		Scratch: t.scratch.Resource(),
	})
	t.result.UAVBarrier(cmd)

	t.topology = t.topology[:0]
	for i := range instances {
		t.topology = append(t.topology, instances[i].Geometry)
	}
	t.state = StateBuilt

	trace.Logger().Debug("accel: top level built",
		slog.String("name", t.name),
		slog.Int("instances", len(instances)),
		slog.Uint64("result_bytes", resultSize),
		slog.Bool("realloc_result", grewResult),
		slog.Bool("realloc_scratch", grewScratch))
	return nil
}

// Update records an in-place refit with new transforms and visibility. It
// never reallocates. It fails with ErrNotBuilt before the first Build and
// with ErrTopologyChanged when the instance count or any bottom level
// differs from the last Build.
func (t *TopLevel) Update(cmd gpu.CommandList, instances []Instance) error {
	if t.state == StateUninitialized {
		return trace.Fail(errors.Wrapf(ErrNotBuilt, "accel %q", t.name))
	}
	if err := t.sameTopology(instances); err != nil {
		return trace.Fail(err)
	}

	t.state = StateRefitting
	if err := t.writeInstances(instances); err != nil {
		t.state = StateBuilt
		return trace.Fail(err)
	}

	res := t.result.Resource()
	t.scratch.Transition(cmd, gpu.StateUnorderedAccess)
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{
		Inputs:  t.inputs(len(instances), t.flags|gpu.BuildPerformUpdate),
		Dest:    res,
		Source:  res,
		Scratch: t.scratch.Resource(),
	})
	t.result.UAVBarrier(cmd)
	t.state = StateBuilt
	return nil
}

// Sync builds when the structure was never built or the topology changed
// and refits otherwise. It reports whether a full build was recorded.
func (t *TopLevel) Sync(dev gpu.Device, cmd gpu.CommandList, instances []Instance) (bool, error) {
	if t.state == StateUninitialized || t.sameTopology(instances) != nil {
		return true, t.Build(dev, cmd, instances)
	}
	return false, t.Update(cmd, instances)
}

func (t *TopLevel) sameTopology(instances []Instance) error {
	if len(instances) != len(t.topology) {
		return errors.Wrapf(ErrTopologyChanged, "accel %q: %d instances, built with %d",
			t.name, len(instances), len(t.topology))
	}
	for i := range instances {
		if instances[i].Geometry != t.topology[i] {
			return errors.Wrapf(ErrTopologyChanged, "accel %q: instance %d geometry", t.name, i)
		}
	}
	return nil
}

func (t *TopLevel) inputs(n int, flags gpu.BuildFlags) gpu.AccelerationStructureInputs {
	return gpu.AccelerationStructureInputs{
		Type:          gpu.TopLevel,
		Flags:         flags,
		InstanceCount: uint32(n),
		Instances:     t.instRes,
	}
}

// ensureInstances grows the mapped instance buffer to hold n instances.
func (t *TopLevel) ensureInstances(dev gpu.Device, n int) error {
	if t.instRes != nil && n <= t.instCap {
		return nil
	}
	capacity := max(n, 1)
	desc := gpu.BufferDesc(uint64(capacity)*gpu.InstanceDescSize, 0)
	res, err := dev.CreateResource(gpu.MemoryUpload, &desc, gpu.StateGenericRead, nil, t.name+".instances")
	if err != nil {
		return gpu.AllocationFailure(errors.Wrapf(err, "accel %q: instance buffer", t.name))
	}
	mem, err := dev.Map(res)
	if err != nil {
		dev.DestroyResource(res)
		return errors.Wrapf(err, "accel %q: map instance buffer", t.name)
	}
	if t.instRes != nil {
		dev.DestroyResource(t.instRes)
	}
	t.instRes, t.instMem, t.instCap = res, mem, capacity
	return nil
}

func (t *TopLevel) writeInstances(instances []Instance) error {
	if len(instances) > t.instCap {
		return errors.Newf("accel %q: %d instances exceed buffer of %d", t.name, len(instances), t.instCap)
	}
	for i := range instances {
		off := i * gpu.InstanceDescSize
		if err := instances[i].encode(t.instMem[off : off+gpu.InstanceDescSize]); err != nil {
			return errors.Wrapf(err, "accel %q: instance %d", t.name, i)
		}
	}
	return nil
}

// reset drops the build state after a failed allocation.
func (t *TopLevel) reset(dev gpu.Device) {
	if t.result.Initialized() {
		t.result.Release(dev)
	}
	if t.scratch.Initialized() {
		t.scratch.Release(dev)
	}
	t.topology = t.topology[:0]
	t.resultSize = 0
	t.state = StateUninitialized
}

// State returns the lifecycle state.
func (t *TopLevel) State() State { return t.state }

// Name returns the debug name.
func (t *TopLevel) Name() string { return t.name }

// Address returns the GPU address of the result, or 0 before Build.
func (t *TopLevel) Address() uint64 {
	if !t.result.Initialized() {
		return 0
	}
	return t.result.Resource().GPUAddress()
}

// ResultSize returns the aligned result size of the last Build.
func (t *TopLevel) ResultSize() uint64 { return t.resultSize }

// Result returns the tracked result buffer.
func (t *TopLevel) Result() *resource.Tracked { return t.result }

// Scratch returns the tracked scratch buffer.
func (t *TopLevel) Scratch() *resource.Tracked { return t.scratch }

// InstanceBuffer returns the mapped instance upload buffer.
func (t *TopLevel) InstanceBuffer() gpu.Resource { return t.instRes }

// InstanceCount returns the instance count of the last Build.
func (t *TopLevel) InstanceCount() int { return len(t.topology) }

// Release frees all storage and returns to StateUninitialized.
func (t *TopLevel) Release(dev gpu.Device) {
	t.reset(dev)
	if t.instRes != nil {
		dev.DestroyResource(t.instRes)
		t.instRes, t.instMem, t.instCap = nil, nil, 0
	}
}
