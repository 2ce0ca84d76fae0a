package soft

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// CommandKind classifies recorded commands.
type CommandKind uint8

// Command kinds.
const (
	CmdResourceBarrier CommandKind = iota
	CmdUnorderedAccessBarrier
	CmdBuildAccelerationStructure
	CmdDispatchRays
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CmdResourceBarrier:
		return "ResourceBarrier"
	case CmdUnorderedAccessBarrier:
		return "UnorderedAccessBarrier"
	case CmdBuildAccelerationStructure:
		return "BuildAccelerationStructure"
	case CmdDispatchRays:
		return "DispatchRays"
	default:
		return fmt.Sprintf("Command(%d)", int(k))
	}
}

// Command is one recorded command.
type Command struct {
	Kind     CommandKind
	Resource gpu.Resource
	Before   gpu.ResourceState
	After    gpu.ResourceState
	Build    *gpu.AccelerationStructureBuildDesc
	Dispatch *gpu.DispatchRaysDesc
}

// CommandList records commands and executes acceleration structure builds
// as they are recorded. Errors a real device would only report at the next
// fence are kept and returned by Err.
//
// A CommandList is not safe for concurrent use.
type CommandList struct {
	dev  *Device
	cmds []Command
	err  error
}

var _ gpu.CommandList = (*CommandList)(nil)

// NewCommandList returns an empty command list on d.
func (d *Device) NewCommandList() *CommandList {
	return &CommandList{dev: d}
}

// Commands returns the recorded commands in order.
func (l *CommandList) Commands() []Command {
	out := make([]Command, len(l.cmds))
	copy(out, l.cmds)
	return out
}

// Count returns the number of recorded commands of kind k.
func (l *CommandList) Count(k CommandKind) int {
	n := 0
	for i := range l.cmds {
		if l.cmds[i].Kind == k {
			n++
		}
	}
	return n
}

// Barriers returns the number of barriers of either kind.
func (l *CommandList) Barriers() int {
	return l.Count(CmdResourceBarrier) + l.Count(CmdUnorderedAccessBarrier)
}

// Err returns the first execution error.
func (l *CommandList) Err() error { return l.err }

// Reset clears recorded commands and the error.
func (l *CommandList) Reset() {
	l.cmds = l.cmds[:0]
	l.err = nil
}

func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = trace.Fail(err)
	}
}

// ResourceBarrier implements gpu.CommandList.
func (l *CommandList) ResourceBarrier(res gpu.Resource, before, after gpu.ResourceState) {
	l.cmds = append(l.cmds, Command{Kind: CmdResourceBarrier, Resource: res, Before: before, After: after})

	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	r, err := l.dev.resolve(res)
	if err != nil {
		l.fail(errors.Wrap(err, "soft: barrier"))
		return
	}
	if before == after {
		l.fail(errors.Newf("soft: barrier on %q from %s to itself", r.label, before))
	}
	if r.state != before {
		l.fail(errors.Newf("soft: barrier on %q declares %s, resource is in %s", r.label, before, r.state))
	}
	r.state = after
}

// UnorderedAccessBarrier implements gpu.CommandList.
func (l *CommandList) UnorderedAccessBarrier(res gpu.Resource) {
	l.cmds = append(l.cmds, Command{Kind: CmdUnorderedAccessBarrier, Resource: res})

	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	if _, err := l.dev.resolve(res); err != nil {
		l.fail(errors.Wrap(err, "soft: unordered access barrier"))
	}
}

// BuildAccelerationStructure implements gpu.CommandList.
func (l *CommandList) BuildAccelerationStructure(desc *gpu.AccelerationStructureBuildDesc) {
	cp := *desc
	cp.Inputs.Geometries = append([]gpu.GeometryDesc(nil), desc.Inputs.Geometries...)
	l.cmds = append(l.cmds, Command{Kind: CmdBuildAccelerationStructure, Resource: desc.Dest, Build: &cp})

	if err := l.dev.buildAccel(&cp); err != nil {
		l.fail(err)
		return
	}
	trace.Logger().Debug("soft: acceleration structure built",
		slog.String("type", cp.Inputs.Type.String()),
		slog.Bool("update", cp.Inputs.Flags.Has(gpu.BuildPerformUpdate)),
		slog.String("dest", cp.Dest.Label()))
}

// DispatchRays implements gpu.CommandList.
func (l *CommandList) DispatchRays(desc *gpu.DispatchRaysDesc) {
	cp := *desc
	l.cmds = append(l.cmds, Command{Kind: CmdDispatchRays, Dispatch: &cp})

	lim := l.dev.opts.Limits
	switch {
	case desc.Pipeline == nil || desc.Pipeline.Kind() != gpu.PipelineRayTracing:
		l.fail(errors.New("soft: dispatch without a ray tracing pipeline"))
	case desc.RayGeneration.Size == 0:
		l.fail(errors.New("soft: dispatch without a ray generation record"))
	case desc.RayGeneration.Start%lim.ShaderTableAlignment != 0:
		l.fail(errors.Newf("soft: ray generation table at %#x is not %d-aligned",
			desc.RayGeneration.Start, lim.ShaderTableAlignment))
	case desc.Width == 0 || desc.Height == 0 || desc.Depth == 0:
		l.fail(errors.Newf("soft: dispatch of %dx%dx%d rays", desc.Width, desc.Height, desc.Depth))
	}
	for _, r := range []gpu.StridedRange{desc.Miss, desc.HitGroup, desc.Callable} {
		if r.Size == 0 {
			continue
		}
		if r.Start%lim.ShaderTableAlignment != 0 || r.Stride%lim.ShaderRecordAlignment != 0 {
			l.fail(errors.Newf("soft: shader table range %#x stride %d is misaligned", r.Start, r.Stride))
		}
	}
}
