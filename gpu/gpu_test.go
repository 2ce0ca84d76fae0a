package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{40, 32, 64},
		{257, 256, 512},
		{7, 0, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.v, tt.align), "AlignUp(%d, %d)", tt.v, tt.align)
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, uint64(256), l.AccelerationStructureAlignment)
	assert.Equal(t, uint64(32), l.ShaderRecordAlignment)
	assert.Equal(t, uint64(64), l.ShaderTableAlignment)
	assert.Equal(t, 32, l.ShaderIdentifierSize)
	assert.Equal(t, uint64(4096), l.MaxShaderRecordStride)
	for _, a := range []uint64{l.AccelerationStructureAlignment, l.ShaderRecordAlignment, l.ShaderTableAlignment} {
		assert.True(t, IsPowerOfTwo(a))
	}
}

func TestResourceStateNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range ResourceStates() {
		name := s.String()
		assert.NotContains(t, name, "Unknown")
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, 13)
	assert.False(t, ResourceState(200).Valid())
	assert.Equal(t, "Unknown(200)", ResourceState(200).String())
}

func TestResourceDescValidate(t *testing.T) {
	tests := []struct {
		name string
		desc ResourceDesc
		ok   bool
	}{
		{"buffer", BufferDesc(64, 0), true},
		{"empty buffer", BufferDesc(0, 0), false},
		{"texture", Texture2DDesc(8, 8, gputypes.TextureFormatRGBA8Unorm, FlagRenderTarget), true},
		{"zero width", Texture2DDesc(0, 8, gputypes.TextureFormatRGBA8Unorm, 0), false},
		{"no format", Texture2DDesc(8, 8, gputypes.TextureFormatUndefined, 0), false},
		{"no dimension", ResourceDesc{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidDescription))
			assert.True(t, IsAllocationFailure(err))
		})
	}
}

func TestByteSize(t *testing.T) {
	d := Texture2DDesc(16, 16, gputypes.TextureFormatRGBA8Unorm, 0)
	assert.Equal(t, uint64(1024), d.ByteSize())
	d.MipLevels = 2
	assert.Equal(t, uint64(1024+256), d.ByteSize())
	d.ArrayLayers = 2
	assert.Equal(t, uint64(2*(1024+256)), d.ByteSize())
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrOutOfMemory, ErrAllocation))
	assert.True(t, errors.Is(ErrInvalidDescription, ErrAllocation))
	assert.True(t, errors.Is(ErrNotInitialized, ErrContract))
	assert.False(t, errors.Is(ErrNotInitialized, ErrAllocation))

	wrapped := AllocationFailure(errors.New("driver said no"))
	assert.True(t, IsAllocationFailure(errors.Wrap(wrapped, "context")))
	assert.NoError(t, AllocationFailure(nil))
}

func TestInstanceEncoding(t *testing.T) {
	in := InstanceDesc{
		Transform:             mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(2, 2, 2)),
		ID:                    0xABCDEF,
		Mask:                  0x81,
		HitGroupOffset:        7,
		Flags:                 InstanceForceOpaque,
		AccelerationStructure: 0x1234_5678_9ABC,
	}
	buf := make([]byte, InstanceDescSize)
	in.Encode(buf)

	// Row-major: the translation sits in the last column of each row.
	out := DecodeInstance(buf)
	assert.Equal(t, in, out)
	assert.Equal(t, []byte{0xEF, 0xCD, 0xAB, 0x81}, buf[48:52])
	assert.Equal(t, []byte{7, 0, 0, byte(InstanceForceOpaque)}, buf[52:56])

	// IDs wider than 24 bits are truncated, not spilled into the mask.
	in.ID = 0x1FFFFFF
	in.Encode(buf)
	out = DecodeInstance(buf)
	assert.Equal(t, uint32(0xFFFFFF), out.ID)
	assert.Equal(t, uint8(0x81), out.Mask)
}

func TestBuildFlags(t *testing.T) {
	f := BuildAllowUpdate | BuildPerformUpdate
	assert.True(t, f.Has(BuildAllowUpdate))
	assert.True(t, f.Has(BuildAllowUpdate|BuildPerformUpdate))
	assert.False(t, f.Has(BuildPreferFastTrace))
}

func TestGeometryPrimitiveCount(t *testing.T) {
	g := GeometryDesc{VertexCount: 9}
	assert.Equal(t, uint32(3), g.PrimitiveCount())
	g.IndexFormat, g.IndexCount = IndexUint16, 6
	assert.Equal(t, uint32(2), g.PrimitiveCount())
	assert.Equal(t, uint64(2), IndexUint16.Size())
	assert.Equal(t, uint64(4), IndexUint32.Size())
}
