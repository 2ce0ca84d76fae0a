package bvh

import "github.com/go-gl/mathgl/mgl32"

const epsilon = 1e-7

// IntersectTriangle returns the distance along r to triangle (a, b, c), or
// false when r misses it. Both faces are hit.
func IntersectTriangle(r Ray, a, b, c mgl32.Vec3) (float32, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -epsilon && det < epsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= epsilon {
		return 0, false
	}
	return t, true
}
