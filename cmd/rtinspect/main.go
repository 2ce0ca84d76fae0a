// Command rtinspect builds a small ray tracing scene on the software device,
// animates it for a few frames and reports what the infrastructure did.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rtcore"
	"github.com/gogpu/rtcore/accel"
	"github.com/gogpu/rtcore/backend"
	"github.com/gogpu/rtcore/backend/soft"
	"github.com/gogpu/rtcore/builder"
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/resource"
	"github.com/gogpu/rtcore/sbt"
)

const (
	width  = 320
	height = 240
)

const rayShaders = `
@compute @workgroup_size(8, 8)
fn raygen(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(1)
fn miss(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(1)
fn closest_hit(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

type options struct {
	config    string
	instances int
	frames    int
	dump      bool
	debug     bool
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "TOML config file")
	flag.IntVar(&o.instances, "instances", 16, "number of instances in the top level")
	flag.IntVar(&o.frames, "frames", 4, "number of animated frames")
	flag.BoolVar(&o.dump, "dump", false, "dump the shader table")
	flag.BoolVar(&o.debug, "debug", false, "debug logging and failure traces")
	flag.Parse()

	if err := run(o, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("rtinspect: %v", err)
	}
}

func run(o options, stdout, stderr io.Writer) error {
	if o.instances < 1 || o.frames < 1 {
		return errors.Newf("need at least one instance and one frame, got %d and %d", o.instances, o.frames)
	}

	cfg := rtcore.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = rtcore.LoadConfig(o.config); err != nil {
			return err
		}
	}
	if o.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opened, err := cfg.OpenDevice()
	if err != nil {
		return err
	}
	defer opened.Close()
	// Probe rays and swap chains are host-side features of the soft device.
	dev, ok := opened.(*soft.Device)
	if !ok {
		return errors.Newf("backend %q cannot trace probe rays, use %q", cfg.Backend, backend.Soft)
	}
	ctx, err := rtcore.NewContext(dev, rtcore.WithConfig(cfg), rtcore.WithLogger(logger))
	if err != nil {
		return err
	}

	swap, err := dev.NewSwapChain(cfg.SwapChainImages, width, height, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		return err
	}
	table, err := dev.CreateDescriptorTable(gpu.DescriptorShaderResource, 4, "srv")
	if err != nil {
		return err
	}

	output := &outputPass{table: table}
	tracing := &rayPass{}
	if err := ctx.InitPasses(context.Background(), output, tracing); err != nil {
		return err
	}

	cmd := dev.NewCommandList()
	blas, err := buildTriangle(dev, cmd)
	if err != nil {
		return err
	}
	top := accel.NewTopLevel("scene")
	back := resource.New("backbuffer")

	for f := range o.frames {
		rebuilt, err := top.Sync(dev, cmd, placeInstances(blas, o.instances, f))
		if err != nil {
			return errors.Wrapf(err, "frame %d", f)
		}
		hit, ok, err := dev.Trace(top.Result().Resource(), mgl32.Vec3{0, -0.25, -10}, mgl32.Vec3{0, 0, 1}, 0xFF)
		if err != nil {
			return errors.Wrapf(err, "frame %d", f)
		}
		mode := "refit"
		if rebuilt {
			mode = "build"
		}
		if ok {
			fmt.Fprintf(stdout, "frame %d: %s, probe hit instance %d at t=%.2f\n", f, mode, hit.InstanceID, hit.T)
		} else {
			fmt.Fprintf(stdout, "frame %d: %s, probe missed\n", f, mode)
		}

		output.target.Transition(cmd, gpu.StateUnorderedAccess)
		output.target.UAVBarrier(cmd)
		output.target.Transition(cmd, gpu.StateCopySource)

		if err := back.AcquireFromSwapTarget(swap, f%swap.Len()); err != nil {
			return err
		}
		back.Transition(cmd, gpu.StateCopyDest)
		back.Transition(cmd, gpu.StatePresent)
	}

	records, err := shaderTable(ctx, dev, top.Address())
	if err != nil {
		return err
	}
	desc, err := records.DispatchDesc(tracing.pipeline, sbt.DefaultLayout(1, 1), width, height, 1)
	if err != nil {
		return err
	}
	output.target.Transition(cmd, gpu.StateUnorderedAccess)
	cmd.DispatchRays(&desc)
	if err := cmd.Err(); err != nil {
		return err
	}

	if o.dump {
		if err := records.Dump(stdout, ctx.Shaders()); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "instances %d, frames %d, barriers %d, builds %d\n",
		top.InstanceCount(), o.frames, cmd.Barriers(), cmd.Count(soft.CmdBuildAccelerationStructure))
	fmt.Fprintf(stdout, "device memory: %d bytes live, %d bytes peak\n", dev.MemoryUsed(), dev.PeakMemory())

	records.Release(dev)
	top.Release(dev)
	blas.Release(dev)
	output.target.Release(dev)
	back.Release(dev)
	return nil
}

// outputPass owns the ray tracing output image.
type outputPass struct {
	table  gpu.DescriptorTable
	target *resource.Tracked
}

func (p *outputPass) Name() string { return "output" }

func (p *outputPass) Init(_ *rtcore.Context, b *builder.Batch) error {
	p.target = resource.New("output")
	b.Resources.Enqueue(builder.ResourceRequest{
		Dst:     p.target,
		Memory:  gpu.MemoryDeviceLocal,
		Desc:    gpu.Texture2DDesc(width, height, gputypes.TextureFormatRGBA8Unorm, gpu.FlagUnorderedAccess),
		Initial: gpu.StateCopySource,
		Label:   "output",
	})
	b.Views.Enqueue(builder.ViewRequest{
		Kind:   gpu.ViewUnorderedAccess,
		Target: p.target,
		Slot:   gpu.DescriptorSlot{Table: p.table, Index: 0},
	})
	return nil
}

// rayPass compiles the ray tracing shaders and creates the pipeline.
type rayPass struct {
	layout   gpu.BindingLayout
	pipeline gpu.PipelineState
}

func (p *rayPass) Name() string { return "raytrace" }

func (p *rayPass) Init(ctx *rtcore.Context, b *builder.Batch) error {
	lib := ctx.Shaders()
	m, err := lib.Compile("rt", rayShaders)
	if err != nil {
		return err
	}
	for name, entry := range map[string]string{
		"RayGen":     "raygen",
		"Miss":       "miss",
		"ClosestHit": "closest_hit",
	} {
		if err := lib.Export(name, m, entry); err != nil {
			return err
		}
	}
	if err := lib.HitGroup(gpu.HitGroupDesc{Name: "HitGroup", ClosestHit: "ClosestHit"}); err != nil {
		return err
	}

	b.Layouts.Enqueue(builder.LayoutRequest{
		Desc: gpu.BindingLayoutDesc{
			Label: "rt_global",
			Entries: []gpu.BindingEntry{
				{Binding: 0, Kind: gpu.BindingAccelerationStructure, Stages: gpu.StageAllRayTracing},
				{Binding: 1, Kind: gpu.BindingStorageTexture, Stages: gpu.StageRayGeneration},
			},
		},
		Dst: &p.layout,
	})
	b.Pipelines.Enqueue(builder.PipelineRequest{
		Kind:      gpu.PipelineRayTracing,
		Desc:      lib.PipelineDesc("rt", m, nil, 1, 16),
		Dst:       &p.pipeline,
		LayoutRef: &p.layout,
	})
	return nil
}

// buildTriangle builds a bottom level of one triangle in the z=0 plane.
func buildTriangle(dev *soft.Device, cmd gpu.CommandList) (*accel.BottomLevel, error) {
	verts := []float32{-1, -1, 0, 1, -1, 0, 0, 1, 0}
	desc := gpu.BufferDesc(uint64(len(verts)*4), 0)
	vb, err := dev.CreateResource(gpu.MemoryUpload, &desc, gpu.StateGenericRead, nil, "triangle")
	if err != nil {
		return nil, err
	}
	mem, err := dev.Map(vb)
	if err != nil {
		return nil, err
	}
	for i, f := range verts {
		binary.LittleEndian.PutUint32(mem[i*4:], math.Float32bits(f))
	}
	return accel.BuildBottomLevel(dev, cmd, "triangle", []accel.Geometry{{
		VertexBuffer: vb,
		VertexCount:  3,
		VertexStride: 12,
		Opaque:       true,
	}}, gpu.BuildPreferFastTrace)
}

// placeInstances lays n instances out in a row that drifts away from the
// camera frame by frame.
func placeInstances(blas *accel.BottomLevel, n, frame int) []accel.Instance {
	out := make([]accel.Instance, n)
	for i := range out {
		out[i] = accel.Instance{
			Transform: mgl32.Translate3D(float32(i)*4, 0, float32(frame)),
			ID:        uint32(i),
			Geometry:  blas,
		}
	}
	return out
}

// shaderTable writes the ray generation, miss and hit group records. Each
// record carries the top level address as its local argument.
func shaderTable(ctx *rtcore.Context, dev gpu.Device, tlas uint64) (*sbt.Table, error) {
	var args [8]byte
	binary.LittleEndian.PutUint64(args[:], tlas)

	lib := ctx.Shaders()
	names := []string{"RayGen", "Miss", "HitGroup"}
	// Every record starts a section, so the stride must keep the table alignment.
	stride := gpu.AlignUp(uint64(lib.IdentifierSize()+len(args)), dev.Limits().ShaderTableAlignment)
	table, err := sbt.NewTable(dev, len(names), stride, "sbt")
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		id, err := lib.Identifier(name)
		if err != nil {
			return nil, err
		}
		if err := table.Push(sbt.NewRecord(id, args[:])); err != nil {
			return nil, err
		}
	}
	return table, nil
}
