package bvh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Empty returns a box that contains nothing; any Extend makes it valid.
func Empty() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// FromPoints returns the bounds of pts.
func FromPoints(pts ...mgl32.Vec3) AABB {
	b := Empty()
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}

// IsEmpty reports whether the box contains no point.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to include p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the box enclosing b and o.
func (b AABB) Union(o AABB) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

// Centroid returns the center of the box.
func (b AABB) Centroid() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// SurfaceArea returns the area of the box surface, or 0 for an empty box.
func (b AABB) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Max.Sub(b.Min)
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// LargestAxis returns the axis with the largest extent.
func (b AABB) LargestAxis() int {
	d := b.Max.Sub(b.Min)
	switch {
	case d[0] >= d[1] && d[0] >= d[2]:
		return 0
	case d[1] >= d[2]:
		return 1
	default:
		return 2
	}
}

// Transform returns the bounds of b after applying the affine transform m.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := Empty()
	for i := range 8 {
		corner := mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.Extend(mgl32.TransformCoordinate(corner, m))
	}
	return out
}

// Ray is a ray with a precomputed reciprocal direction.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
	InvDir mgl32.Vec3
}

// NewRay returns a ray from origin along dir.
func NewRay(origin, dir mgl32.Vec3) Ray {
	return Ray{
		Origin: origin,
		Dir:    dir,
		InvDir: mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]},
	}
}

// Hits reports whether r enters b before tmax.
func (b AABB) Hits(r Ray, tmax float32) bool {
	tmin := float32(0)
	for i := range 3 {
		t0 := (b.Min[i] - r.Origin[i]) * r.InvDir[i]
		t1 := (b.Max[i] - r.Origin[i]) * r.InvDir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf compares false and keeps the previous bound.
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}
