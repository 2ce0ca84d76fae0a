package accel

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
	"github.com/gogpu/rtcore/resource"
)

// Geometry is one triangle geometry of a bottom level.
type Geometry = gpu.GeometryDesc

// BottomLevel is a built geometry acceleration structure.
type BottomLevel struct {
	name       string
	result     *resource.Tracked
	scratch    *resource.Tracked
	resultSize uint64
	primitives uint32
}

// BuildBottomLevel records a one-shot build of geometries into new
// storage. The scratch buffer must live until the build has executed; call
// ReleaseScratch once the command list has completed.
func BuildBottomLevel(dev gpu.Device, cmd gpu.CommandList, name string, geometries []Geometry, flags gpu.BuildFlags) (*BottomLevel, error) {
	if len(geometries) == 0 {
		return nil, trace.Fail(errors.Wrapf(gpu.ErrInvalidDescription, "accel %q: no geometry", name))
	}
	inputs := gpu.AccelerationStructureInputs{
		Type:       gpu.BottomLevel,
		Flags:      flags &^ gpu.BuildPerformUpdate,
		Geometries: append([]Geometry(nil), geometries...),
	}
	info, err := dev.AccelerationStructurePrebuildInfo(&inputs)
	if err != nil {
		return nil, trace.Fail(gpu.AllocationFailure(errors.Wrapf(err, "accel %q: prebuild info", name)))
	}

	align := dev.Limits().AccelerationStructureAlignment
	b := &BottomLevel{
		name:       name,
		result:     resource.New(name),
		scratch:    resource.New(name + ".scratch"),
		resultSize: max(gpu.AlignUp(info.ResultDataMaxSize, align), align),
	}
	for i := range geometries {
		b.primitives += geometries[i].PrimitiveCount()
	}
	if _, err := ensureResult(dev, b.result, b.resultSize); err != nil {
		return nil, trace.Fail(err)
	}
	if _, err := ensureScratch(dev, b.scratch, max(gpu.AlignUp(info.ScratchDataSize, align), align)); err != nil {
		b.result.Release(dev)
		return nil, trace.Fail(err)
	}

	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{
		Inputs:  inputs,
		Dest:    b.result.Resource(),
		Scratch: b.scratch.Resource(),
	})
	b.result.UAVBarrier(cmd)

	trace.Logger().Debug("accel: bottom level built",
		slog.String("name", name),
		slog.Int("geometries", len(geometries)),
		slog.Uint64("primitives", uint64(b.primitives)),
		slog.Uint64("result_bytes", b.resultSize))
	return b, nil
}

// Name returns the debug name.
func (b *BottomLevel) Name() string { return b.name }

// Address returns the GPU address of the result, or 0 after Release.
func (b *BottomLevel) Address() uint64 {
	if b == nil || !b.result.Initialized() {
		return 0
	}
	return b.result.Resource().GPUAddress()
}

// Result returns the tracked result buffer.
func (b *BottomLevel) Result() *resource.Tracked { return b.result }

// ResultSize returns the aligned result size.
func (b *BottomLevel) ResultSize() uint64 { return b.resultSize }

// Primitives returns the number of triangles.
func (b *BottomLevel) Primitives() uint32 { return b.primitives }

// ReleaseScratch frees the build scratch memory. Call it only after the
// build command has executed.
func (b *BottomLevel) ReleaseScratch(dev gpu.Device) {
	if b.scratch.Initialized() {
		b.scratch.Release(dev)
	}
}

// Release frees all storage.
func (b *BottomLevel) Release(dev gpu.Device) {
	b.ReleaseScratch(dev)
	if b.result.Initialized() {
		b.result.Release(dev)
	}
}
