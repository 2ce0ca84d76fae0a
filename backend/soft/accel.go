package soft

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/bvh"
)

// Per-element costs of the software acceleration structure encoding. The
// values are loosely modeled on hardware drivers and are only meaningful
// relative to each other.
const (
	accelHeaderSize      = 256
	topResultPerInst     = 128
	topScratchPerInst    = 64
	topUpdatePerInst     = 32
	bottomResultPerPrim  = 96
	bottomScratchPerPrim = 48
	bottomUpdatePerPrim  = 16
)

// accelData is the CPU representation of a built acceleration structure.
type accelData struct {
	typ         gpu.AccelerationStructureType
	allowUpdate bool
	tree        *bvh.Tree

	// Top level.
	instances []gpu.InstanceDesc
	bottoms   []*accelData

	// Bottom level.
	triangles [][3]mgl32.Vec3
}

func (a *accelData) bounds() bvh.AABB { return a.tree.Bounds() }

// AccelerationStructurePrebuildInfo implements gpu.Device.
func (d *Device) AccelerationStructurePrebuildInfo(in *gpu.AccelerationStructureInputs) (gpu.PrebuildInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(OpPrebuildInfo, in.Type.String()); err != nil {
		return gpu.PrebuildInfo{}, err
	}
	return prebuild(in)
}

func prebuild(in *gpu.AccelerationStructureInputs) (gpu.PrebuildInfo, error) {
	switch in.Type {
	case gpu.TopLevel:
		n := uint64(in.InstanceCount)
		info := gpu.PrebuildInfo{
			ResultDataMaxSize: accelHeaderSize + n*topResultPerInst,
			ScratchDataSize:   accelHeaderSize/2 + n*topScratchPerInst,
		}
		if in.Flags.Has(gpu.BuildAllowUpdate) {
			info.UpdateScratchDataSize = accelHeaderSize/4 + n*topUpdatePerInst
		}
		return info, nil
	case gpu.BottomLevel:
		if len(in.Geometries) == 0 {
			return gpu.PrebuildInfo{}, errors.Wrap(gpu.ErrInvalidDescription, "soft: bottom level without geometry")
		}
		var prims uint64
		for i := range in.Geometries {
			g := &in.Geometries[i]
			if g.VertexBuffer == nil {
				return gpu.PrebuildInfo{}, errors.Wrapf(gpu.ErrInvalidDescription, "soft: geometry %d has no vertex buffer", i)
			}
			if g.VertexStride < 12 {
				return gpu.PrebuildInfo{}, errors.Wrapf(gpu.ErrInvalidDescription, "soft: geometry %d vertex stride %d", i, g.VertexStride)
			}
			if g.IndexFormat != gpu.IndexNone && g.IndexBuffer == nil {
				return gpu.PrebuildInfo{}, errors.Wrapf(gpu.ErrInvalidDescription, "soft: geometry %d has no index buffer", i)
			}
			prims += uint64(g.PrimitiveCount())
		}
		info := gpu.PrebuildInfo{
			ResultDataMaxSize: accelHeaderSize + prims*bottomResultPerPrim,
			ScratchDataSize:   accelHeaderSize/2 + prims*bottomScratchPerPrim,
		}
		if in.Flags.Has(gpu.BuildAllowUpdate) {
			info.UpdateScratchDataSize = accelHeaderSize/4 + prims*bottomUpdatePerPrim
		}
		return info, nil
	default:
		return gpu.PrebuildInfo{}, errors.Wrapf(gpu.ErrInvalidDescription, "soft: acceleration structure type %s", in.Type)
	}
}

// buildAccel executes one recorded build on the CPU.
func (d *Device) buildAccel(desc *gpu.AccelerationStructureBuildDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dest, err := d.resolve(desc.Dest)
	if err != nil {
		return errors.Wrap(err, "soft: build destination")
	}
	scratch, err := d.resolve(desc.Scratch)
	if err != nil {
		return errors.Wrap(err, "soft: build scratch")
	}
	if dest.desc.Flags&gpu.FlagAccelerationStructure == 0 {
		return errors.Newf("soft: build destination %q is not acceleration structure storage", dest.label)
	}
	if dest.state != gpu.StateAccelerationStructure {
		return errors.Newf("soft: build destination %q in state %s", dest.label, dest.state)
	}
	if scratch.state != gpu.StateUnorderedAccess {
		return errors.Newf("soft: build scratch %q in state %s", scratch.label, scratch.state)
	}

	in := &desc.Inputs
	info, err := prebuild(in)
	if err != nil {
		return err
	}
	update := in.Flags.Has(gpu.BuildPerformUpdate)
	needScratch := info.ScratchDataSize
	if update {
		needScratch = info.UpdateScratchDataSize
	}
	if dest.size < info.ResultDataMaxSize {
		return errors.Newf("soft: result %q holds %d bytes, build needs %d", dest.label, dest.size, info.ResultDataMaxSize)
	}
	if scratch.size < needScratch {
		return errors.Newf("soft: scratch %q holds %d bytes, build needs %d", scratch.label, scratch.size, needScratch)
	}

	var src *accelData
	if update {
		s, err := d.resolve(desc.Source)
		if err != nil {
			return errors.Wrap(err, "soft: update source")
		}
		if s.accel == nil || !s.accel.allowUpdate || s.accel.typ != in.Type {
			return errors.Newf("soft: update source %q was not built with AllowUpdate", s.label)
		}
		src = s.accel
	}

	switch in.Type {
	case gpu.TopLevel:
		return d.buildTop(dest, src, in)
	default:
		if update {
			return errors.New("soft: bottom level refit is not supported")
		}
		return d.buildBottom(dest, in)
	}
}

func (d *Device) buildTop(dest *Resource, src *accelData, in *gpu.AccelerationStructureInputs) error {
	inst, err := d.resolve(in.Instances)
	if err != nil {
		return errors.Wrap(err, "soft: instance buffer")
	}
	n := int(in.InstanceCount)
	end := in.InstancesOffset + uint64(n)*gpu.InstanceDescSize
	if end > uint64(len(inst.data)) {
		return errors.Newf("soft: %d instances overrun buffer %q", n, inst.label)
	}

	descs := make([]gpu.InstanceDesc, n)
	bottoms := make([]*accelData, n)
	bounds := make([]bvh.AABB, n)
	for i := range descs {
		off := in.InstancesOffset + uint64(i)*gpu.InstanceDescSize
		descs[i] = gpu.DecodeInstance(inst.data[off:])
		blas, ok := d.lookup(descs[i].AccelerationStructure)
		if !ok || blas.accel == nil || blas.accel.typ != gpu.BottomLevel {
			return errors.Newf("soft: instance %d references no bottom level at %#x", i, descs[i].AccelerationStructure)
		}
		bottoms[i] = blas.accel
		bounds[i] = blas.accel.bounds().Transform(descs[i].Transform)
	}

	if src != nil {
		if len(src.instances) != n {
			return errors.Newf("soft: update with %d instances, built with %d", n, len(src.instances))
		}
		for i := range descs {
			if bottoms[i] != src.bottoms[i] {
				return errors.Newf("soft: update changes geometry of instance %d", i)
			}
		}
		tree := src.tree
		if dest.accel != src {
			cp := *src.tree
			cp.Nodes = append([]bvh.Node(nil), src.tree.Nodes...)
			cp.Items = append([]int32(nil), src.tree.Items...)
			tree = &cp
		}
		if err := tree.Refit(bounds); err != nil {
			return err
		}
		dest.accel = &accelData{
			typ:         gpu.TopLevel,
			allowUpdate: true,
			tree:        tree,
			instances:   descs,
			bottoms:     bottoms,
		}
		return nil
	}

	dest.accel = &accelData{
		typ:         gpu.TopLevel,
		allowUpdate: in.Flags.Has(gpu.BuildAllowUpdate),
		tree:        bvh.Build(bounds),
		instances:   descs,
		bottoms:     bottoms,
	}
	return nil
}

func (d *Device) buildBottom(dest *Resource, in *gpu.AccelerationStructureInputs) error {
	var tris [][3]mgl32.Vec3
	for gi := range in.Geometries {
		g := &in.Geometries[gi]
		vb, err := d.resolve(g.VertexBuffer)
		if err != nil {
			return errors.Wrapf(err, "soft: geometry %d vertices", gi)
		}
		vertex := func(i uint32) (mgl32.Vec3, error) {
			off := g.VertexOffset + uint64(i)*g.VertexStride
			if i >= g.VertexCount || off+12 > uint64(len(vb.data)) {
				return mgl32.Vec3{}, errors.Newf("soft: geometry %d vertex %d out of range", gi, i)
			}
			var v mgl32.Vec3
			for c := range 3 {
				v[c] = math.Float32frombits(binary.LittleEndian.Uint32(vb.data[off+uint64(c)*4:]))
			}
			return v, nil
		}

		index := func(i uint32) (uint32, error) { return i, nil }
		if g.IndexFormat != gpu.IndexNone {
			ib, err := d.resolve(g.IndexBuffer)
			if err != nil {
				return errors.Wrapf(err, "soft: geometry %d indices", gi)
			}
			size := g.IndexFormat.Size()
			index = func(i uint32) (uint32, error) {
				off := g.IndexOffset + uint64(i)*size
				if off+size > uint64(len(ib.data)) {
					return 0, errors.Newf("soft: geometry %d index %d out of range", gi, i)
				}
				if size == 2 {
					return uint32(binary.LittleEndian.Uint16(ib.data[off:])), nil
				}
				return binary.LittleEndian.Uint32(ib.data[off:]), nil
			}
		}

		for p := range g.PrimitiveCount() {
			var tri [3]mgl32.Vec3
			for k := range uint32(3) {
				idx, err := index(p*3 + k)
				if err != nil {
					return err
				}
				if tri[k], err = vertex(idx); err != nil {
					return err
				}
			}
			tris = append(tris, tri)
		}
	}

	bounds := make([]bvh.AABB, len(tris))
	for i, t := range tris {
		bounds[i] = bvh.FromPoints(t[0], t[1], t[2])
	}
	dest.accel = &accelData{
		typ:         gpu.BottomLevel,
		allowUpdate: in.Flags.Has(gpu.BuildAllowUpdate),
		tree:        bvh.Build(bounds),
		triangles:   tris,
	}
	return nil
}

// Hit is the closest intersection found by Trace.
type Hit struct {
	// InstanceIndex is the position of the instance in the top level.
	InstanceIndex int

	// InstanceID is the 24-bit user id of the instance.
	InstanceID uint32

	// Primitive is the triangle index within the bottom level.
	Primitive int

	// T is the distance along the ray direction.
	T float32
}

// Trace casts a ray against the built top level tlas and returns the
// closest hit among instances whose mask shares a bit with mask.
func (d *Device) Trace(tlas gpu.Resource, origin, dir mgl32.Vec3, mask uint8) (Hit, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.resolve(tlas)
	if err != nil {
		return Hit{}, false, err
	}
	top := r.accel
	if top == nil || top.typ != gpu.TopLevel {
		return Hit{}, false, errors.Newf("soft: %q holds no top level", r.label)
	}

	best := Hit{InstanceIndex: -1, Primitive: -1}
	tmax := float32(math.Inf(1))
	top.tree.Traverse(bvh.NewRay(origin, dir), tmax, func(idx int32, tmax float32) float32 {
		inst := &top.instances[idx]
		if inst.Mask&mask == 0 {
			return tmax
		}
		inv := inst.Transform.Inv()
		local := bvh.NewRay(mgl32.TransformCoordinate(origin, inv), mgl32.TransformNormal(dir, inv))
		bottom := top.bottoms[idx]
		return bottom.tree.Traverse(local, tmax, func(prim int32, tmax float32) float32 {
			tri := bottom.triangles[prim]
			t, ok := bvh.IntersectTriangle(local, tri[0], tri[1], tri[2])
			if !ok || t >= tmax {
				return tmax
			}
			best = Hit{InstanceIndex: int(idx), InstanceID: inst.ID, Primitive: int(prim), T: t}
			return t
		})
	})
	return best, best.InstanceIndex >= 0, nil
}
