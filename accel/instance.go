package accel

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtcore/gpu"
)

// DefaultMask is the mask of instances that leave Mask zero.
const DefaultMask = 0xFF

// Instance is one placement of a bottom level in the scene.
type Instance struct {
	// Transform is the object-to-world transform. Only the upper 3x4 part
	// is used.
	Transform mgl32.Mat4

	// ID is a 24-bit user value reported on hit.
	ID uint32

	// Mask is the 8-bit visibility mask. Zero means DefaultMask.
	Mask uint8

	// Hidden instances are encoded with mask 0, which no ray matches.
	Hidden bool

	// HitGroupOffset is the 24-bit hit group index contribution.
	HitGroupOffset uint32

	Flags gpu.InstanceFlags

	// Geometry is the instanced bottom level.
	Geometry *BottomLevel
}

func (in *Instance) encode(dst []byte) error {
	if in.Geometry == nil || in.Geometry.Address() == 0 {
		return errors.WithStack(ErrNoGeometry)
	}
	mask := in.Mask
	if mask == 0 {
		mask = DefaultMask
	}
	if in.Hidden {
		mask = 0
	}
	d := gpu.InstanceDesc{
		Transform:             in.Transform,
		ID:                    in.ID,
		Mask:                  mask,
		HitGroupOffset:        in.HitGroupOffset,
		Flags:                 in.Flags,
		AccelerationStructure: in.Geometry.Address(),
	}
	d.Encode(dst)
	return nil
}
