package soft

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rtcore/gpu"
)

func TestCreateResourceAddresses(t *testing.T) {
	dev := New()
	align := dev.Limits().AccelerationStructureAlignment

	a, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(100, 0)), gpu.StateCommon, nil, "a")
	require.NoError(t, err)
	b, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(10, 0)), gpu.StateCommon, nil, "b")
	require.NoError(t, err)

	assert.NotZero(t, a.GPUAddress())
	assert.Greater(t, b.GPUAddress(), a.GPUAddress())
	assert.Zero(t, a.GPUAddress()%align)
	assert.Zero(t, b.GPUAddress()%align)
	assert.Equal(t, 2, dev.LiveResources())
	assert.Equal(t, uint64(110), dev.MemoryUsed())

	tex, err := dev.CreateResource(gpu.MemoryDeviceLocal,
		ptr(gpu.Texture2DDesc(4, 4, gputypes.TextureFormatRGBA8Unorm, gpu.FlagRenderTarget)),
		gpu.StateRenderTarget, &gpu.ClearValue{Format: gputypes.TextureFormatRGBA8Unorm}, "tex")
	require.NoError(t, err)
	assert.Zero(t, tex.GPUAddress())

	dev.DestroyResource(a)
	dev.DestroyResource(a) // logged, ignored
	dev.DestroyResource(nil)
	assert.Equal(t, 2, dev.LiveResources())
	assert.Equal(t, uint64(10+64), dev.MemoryUsed())
}

func TestCreateResourceFailures(t *testing.T) {
	tests := []struct {
		name    string
		budget  uint64
		kind    gpu.MemoryKind
		desc    gpu.ResourceDesc
		initial gpu.ResourceState
		clear   *gpu.ClearValue
		oom     bool
	}{
		{name: "zero size", desc: gpu.BufferDesc(0, 0)},
		{name: "no dimension", desc: gpu.ResourceDesc{Size: 16}},
		{name: "undefined format", desc: gpu.Texture2DDesc(4, 4, gputypes.TextureFormatUndefined, 0)},
		{name: "upload not generic read", kind: gpu.MemoryUpload, desc: gpu.BufferDesc(16, 0), initial: gpu.StateCopyDest},
		{name: "clear without target", desc: gpu.BufferDesc(16, 0), clear: &gpu.ClearValue{}},
		{name: "over budget", budget: 1024, desc: gpu.BufferDesc(2048, 0), oom: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := New(WithMemoryBudget(tt.budget))
			_, err := dev.CreateResource(tt.kind, &tt.desc, tt.initial, tt.clear, tt.name)
			require.Error(t, err)
			assert.True(t, gpu.IsAllocationFailure(err), "%v", err)
			assert.Equal(t, tt.oom, errors.Is(err, gpu.ErrOutOfMemory))
			assert.Zero(t, dev.LiveResources())
		})
	}
}

func TestMap(t *testing.T) {
	dev := New()
	up, err := dev.CreateResource(gpu.MemoryUpload, ptr(gpu.BufferDesc(32, 0)), gpu.StateGenericRead, nil, "up")
	require.NoError(t, err)
	mem, err := dev.Map(up)
	require.NoError(t, err)
	assert.Len(t, mem, 32)

	local, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(32, 0)), gpu.StateCommon, nil, "local")
	require.NoError(t, err)
	_, err = dev.Map(local)
	assert.True(t, errors.Is(err, gpu.ErrNotMappable))

	dev.DestroyResource(up)
	_, err = dev.Map(up)
	assert.Error(t, err)
}

func TestFailOn(t *testing.T) {
	dev := New()
	injected := errors.New("injected")
	dev.FailOn(func(op Op, label string) error {
		if op == OpCreateBindingLayout && label == "bad" {
			return injected
		}
		return nil
	})

	_, err := dev.CreateBindingLayout(&gpu.BindingLayoutDesc{Label: "good"})
	require.NoError(t, err)
	_, err = dev.CreateBindingLayout(&gpu.BindingLayoutDesc{Label: "bad"})
	assert.True(t, errors.Is(err, injected))

	assert.Equal(t, []Call{
		{Op: OpCreateBindingLayout, Label: "good"},
		{Op: OpCreateBindingLayout, Label: "bad"},
	}, dev.Calls())
}

func TestCreateView(t *testing.T) {
	dev := New()
	srv, err := dev.CreateDescriptorTable(gpu.DescriptorShaderResource, 2, "srv")
	require.NoError(t, err)
	rtv, err := dev.CreateDescriptorTable(gpu.DescriptorRenderTarget, 1, "rtv")
	require.NoError(t, err)

	tex, err := dev.CreateResource(gpu.MemoryDeviceLocal,
		ptr(gpu.Texture2DDesc(8, 8, gputypes.TextureFormatRGBA8Unorm, gpu.FlagRenderTarget)),
		gpu.StateRenderTarget, nil, "color")
	require.NoError(t, err)

	require.NoError(t, dev.CreateView(gpu.ViewShaderRead, tex, nil, gpu.DescriptorSlot{Table: srv, Index: 1}))
	require.NoError(t, dev.CreateView(gpu.ViewRenderTarget, tex, nil, gpu.DescriptorSlot{Table: rtv}))
	assert.Equal(t, tex, srv.(*DescriptorTable).Slot(1).Target)

	tests := []struct {
		name string
		kind gpu.ViewKind
		slot gpu.DescriptorSlot
	}{
		{"wrong table", gpu.ViewRenderTarget, gpu.DescriptorSlot{Table: srv}},
		{"out of range", gpu.ViewShaderRead, gpu.DescriptorSlot{Table: srv, Index: 2}},
		{"missing flag", gpu.ViewUnorderedAccess, gpu.DescriptorSlot{Table: srv}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dev.CreateView(tt.kind, tex, nil, tt.slot)
			assert.True(t, errors.Is(err, gpu.ErrInvalidDescription), "%v", err)
		})
	}
}

func TestCreatePipelineState(t *testing.T) {
	dev := New()
	layout, err := dev.CreateBindingLayout(&gpu.BindingLayoutDesc{
		Label:   "rt",
		Entries: []gpu.BindingEntry{{Binding: 0, Kind: gpu.BindingAccelerationStructure, Stages: gpu.StageAllRayTracing}},
	})
	require.NoError(t, err)

	code := gpu.ShaderCode{WGSL: "@compute @workgroup_size(1) fn main() {}"}
	ps, err := dev.CreatePipelineState(gpu.PipelineRayTracing, &gpu.PipelineStateDesc{
		Label: "rt", Layout: layout, Shader: code, Exports: []string{"raygen"}, MaxRecursionDepth: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, gpu.PipelineRayTracing, ps.Kind())

	_, err = dev.CreatePipelineState(gpu.PipelineCompute, &gpu.PipelineStateDesc{Label: "cs", Layout: layout, Shader: code})
	assert.True(t, errors.Is(err, gpu.ErrInvalidDescription))

	_, err = dev.CreateBindingLayout(&gpu.BindingLayoutDesc{
		Label: "dup",
		Entries: []gpu.BindingEntry{
			{Binding: 1, Kind: gpu.BindingUniformBuffer, Stages: gpu.StageCompute},
			{Binding: 1, Kind: gpu.BindingStorageBuffer, Stages: gpu.StageCompute},
		},
	})
	assert.True(t, errors.Is(err, gpu.ErrInvalidDescription))
}

func TestBarrierValidation(t *testing.T) {
	dev := New()
	res, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(16, gpu.FlagUnorderedAccess)),
		gpu.StateCopyDest, nil, "buf")
	require.NoError(t, err)

	cmd := dev.NewCommandList()
	cmd.ResourceBarrier(res, gpu.StateCopyDest, gpu.StateUnorderedAccess)
	cmd.UnorderedAccessBarrier(res)
	require.NoError(t, cmd.Err())
	assert.Equal(t, gpu.StateUnorderedAccess, res.(*Resource).State())
	assert.Equal(t, 2, cmd.Barriers())

	cmd.ResourceBarrier(res, gpu.StateShaderRead, gpu.StateCopySource)
	assert.Error(t, cmd.Err())

	cmd.Reset()
	assert.NoError(t, cmd.Err())
	assert.Empty(t, cmd.Commands())
}

func TestSwapChain(t *testing.T) {
	dev := New()
	sc, err := dev.NewSwapChain(3, 16, 16, gputypes.TextureFormatBGRA8Unorm)
	require.NoError(t, err)
	assert.Equal(t, 3, sc.Len())

	img, err := sc.Image(2)
	require.NoError(t, err)
	assert.Equal(t, gpu.StatePresent, img.(*Resource).State())

	_, err = sc.Image(3)
	assert.Error(t, err)

	dev.DestroyResource(img)
	assert.False(t, img.(*Resource).Destroyed())
}

// quad uploads two triangles covering [-1,1]^2 at z=0.
func quad(t *testing.T, dev *Device) gpu.Resource {
	t.Helper()
	verts := []float32{
		-1, -1, 0, 1, -1, 0, 1, 1, 0,
		-1, -1, 0, 1, 1, 0, -1, 1, 0,
	}
	vb, err := dev.CreateResource(gpu.MemoryUpload, ptr(gpu.BufferDesc(uint64(len(verts)*4), 0)),
		gpu.StateGenericRead, nil, "quad")
	require.NoError(t, err)
	mem, err := dev.Map(vb)
	require.NoError(t, err)
	for i, f := range verts {
		binary.LittleEndian.PutUint32(mem[i*4:], math.Float32bits(f))
	}
	return vb
}

func accelBuffers(t *testing.T, dev *Device, in *gpu.AccelerationStructureInputs, name string) (result, scratch gpu.Resource) {
	t.Helper()
	info, err := dev.AccelerationStructurePrebuildInfo(in)
	require.NoError(t, err)
	result, err = dev.CreateResource(gpu.MemoryDeviceLocal,
		ptr(gpu.BufferDesc(info.ResultDataMaxSize, gpu.FlagAccelerationStructure|gpu.FlagUnorderedAccess)),
		gpu.StateAccelerationStructure, nil, name)
	require.NoError(t, err)
	scratch, err = dev.CreateResource(gpu.MemoryDeviceLocal,
		ptr(gpu.BufferDesc(max(info.ScratchDataSize, info.UpdateScratchDataSize), gpu.FlagUnorderedAccess)),
		gpu.StateUnorderedAccess, nil, name+"-scratch")
	require.NoError(t, err)
	return result, scratch
}

func TestBuildAndTrace(t *testing.T) {
	dev := New()
	cmd := dev.NewCommandList()

	vb := quad(t, dev)
	blasIn := gpu.AccelerationStructureInputs{
		Type: gpu.BottomLevel,
		Geometries: []gpu.GeometryDesc{{
			VertexBuffer: vb, VertexCount: 6, VertexStride: 12, Opaque: true,
		}},
	}
	blas, blasScratch := accelBuffers(t, dev, &blasIn, "blas")
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{Inputs: blasIn, Dest: blas, Scratch: blasScratch})
	require.NoError(t, cmd.Err())

	instances, err := dev.CreateResource(gpu.MemoryUpload, ptr(gpu.BufferDesc(2*gpu.InstanceDescSize, 0)),
		gpu.StateGenericRead, nil, "instances")
	require.NoError(t, err)
	mem, err := dev.Map(instances)
	require.NoError(t, err)
	write := func(i int, x float32, mask uint8) {
		d := gpu.InstanceDesc{
			Transform:             mgl32.Translate3D(x, 0, 5),
			ID:                    uint32(100 + i),
			Mask:                  mask,
			AccelerationStructure: blas.GPUAddress(),
		}
		d.Encode(mem[i*gpu.InstanceDescSize:])
	}
	write(0, 0, 0xFF)
	write(1, 10, 0xFF)

	tlasIn := gpu.AccelerationStructureInputs{
		Type: gpu.TopLevel, Flags: gpu.BuildAllowUpdate, InstanceCount: 2, Instances: instances,
	}
	tlas, scratch := accelBuffers(t, dev, &tlasIn, "tlas")
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{Inputs: tlasIn, Dest: tlas, Scratch: scratch})
	require.NoError(t, cmd.Err())

	hit, ok, err := dev.Trace(tlas, mgl32.Vec3{10.25, -0.5, 0}, mgl32.Vec3{0, 0, 1}, 0xFF)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(101), hit.InstanceID)
	assert.InDelta(t, 5, hit.T, 1e-5)

	// Refit: move instance 1 away and hide instance 0.
	write(0, 0, 0)
	write(1, 20, 0xFF)
	upd := tlasIn
	upd.Flags |= gpu.BuildPerformUpdate
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{Inputs: upd, Dest: tlas, Source: tlas, Scratch: scratch})
	require.NoError(t, cmd.Err())

	_, ok, err = dev.Trace(tlas, mgl32.Vec3{10.25, -0.5, 0}, mgl32.Vec3{0, 0, 1}, 0xFF)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = dev.Trace(tlas, mgl32.Vec3{0.25, -0.5, 0}, mgl32.Vec3{0, 0, 1}, 0xFF)
	require.NoError(t, err)
	assert.False(t, ok, "hidden instance must not be hit")
	hit, ok, err = dev.Trace(tlas, mgl32.Vec3{20.5, -0.5, -3}, mgl32.Vec3{0, 0, 1}, 0xFF)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, hit.InstanceIndex)
	assert.InDelta(t, 8, hit.T, 1e-5)

	// Refit with a different instance count is rejected.
	bad := upd
	bad.InstanceCount = 1
	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{Inputs: bad, Dest: tlas, Source: tlas, Scratch: scratch})
	assert.Error(t, cmd.Err())
}

func TestBuildRejectsSmallResult(t *testing.T) {
	dev := New()
	cmd := dev.NewCommandList()
	vb := quad(t, dev)
	in := gpu.AccelerationStructureInputs{
		Type:       gpu.BottomLevel,
		Geometries: []gpu.GeometryDesc{{VertexBuffer: vb, VertexCount: 6, VertexStride: 12}},
	}
	result, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(16, gpu.FlagAccelerationStructure)),
		gpu.StateAccelerationStructure, nil, "tiny")
	require.NoError(t, err)
	scratch, err := dev.CreateResource(gpu.MemoryDeviceLocal, ptr(gpu.BufferDesc(4096, gpu.FlagUnorderedAccess)),
		gpu.StateUnorderedAccess, nil, "scratch")
	require.NoError(t, err)

	cmd.BuildAccelerationStructure(&gpu.AccelerationStructureBuildDesc{Inputs: in, Dest: result, Scratch: scratch})
	assert.Error(t, cmd.Err())
}

func TestDispatchRaysValidation(t *testing.T) {
	dev := New()
	cmd := dev.NewCommandList()
	cmd.DispatchRays(&gpu.DispatchRaysDesc{Width: 1, Height: 1, Depth: 1})
	assert.Error(t, cmd.Err())
	assert.Equal(t, 1, cmd.Count(CmdDispatchRays))
}

func ptr[T any](v T) *T { return &v }
