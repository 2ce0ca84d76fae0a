package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InstanceFlags control how rays interact with one top-level instance.
type InstanceFlags uint8

// Instance flags.
const (
	InstanceTriangleCullDisable InstanceFlags = 1 << iota
	InstanceTriangleFrontCounterClockwise
	InstanceForceOpaque
	InstanceForceNonOpaque
)

// InstanceDesc is one top-level instance as the device consumes it.
//
// The encoded form is InstanceDescSize bytes, little endian:
//
//	[0:48)  3x4 row-major float32 object-to-world transform
//	[48:52) id:24 | mask:8
//	[52:56) hitGroupOffset:24 | flags:8
//	[56:64) GPU address of the bottom-level structure
type InstanceDesc struct {
	Transform             mgl32.Mat4
	ID                    uint32
	Mask                  uint8
	HitGroupOffset        uint32
	Flags                 InstanceFlags
	AccelerationStructure uint64
}

const low24 = 1<<24 - 1

// Encode writes d into dst, which must hold InstanceDescSize bytes.
func (d *InstanceDesc) Encode(dst []byte) {
	_ = dst[InstanceDescSize-1]
	for row := range 3 {
		for col := range 4 {
			off := (row*4 + col) * 4
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(d.Transform.At(row, col)))
		}
	}
	binary.LittleEndian.PutUint32(dst[48:], d.ID&low24|uint32(d.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], d.HitGroupOffset&low24|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelerationStructure)
}

// DecodeInstance reads one encoded instance from src.
func DecodeInstance(src []byte) InstanceDesc {
	_ = src[InstanceDescSize-1]
	d := InstanceDesc{Transform: mgl32.Ident4()}
	for row := range 3 {
		for col := range 4 {
			off := (row*4 + col) * 4
			d.Transform.Set(row, col, math.Float32frombits(binary.LittleEndian.Uint32(src[off:])))
		}
	}
	w := binary.LittleEndian.Uint32(src[48:])
	d.ID, d.Mask = w&low24, uint8(w>>24)
	w = binary.LittleEndian.Uint32(src[52:])
	d.HitGroupOffset, d.Flags = w&low24, InstanceFlags(w>>24)
	d.AccelerationStructure = binary.LittleEndian.Uint64(src[56:])
	return d
}
