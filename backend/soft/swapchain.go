package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rtcore/gpu"
)

// SwapChain is a ring of presentable images.
type SwapChain struct {
	images []*Resource
}

var _ gpu.SwapChain = (*SwapChain)(nil)

// NewSwapChain creates n presentable images. Images are not charged to the
// memory budget; they belong to the surface.
func (d *Device) NewSwapChain(n int, width, height uint32, format gputypes.TextureFormat) (*SwapChain, error) {
	if n <= 0 {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: swap chain of %d images", n)
	}
	desc := gpu.Texture2DDesc(width, height, format, gpu.FlagRenderTarget)
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrap(err, "soft: swap chain")
	}
	sc := &SwapChain{images: make([]*Resource, n)}
	for i := range sc.images {
		sc.images[i] = &Resource{
			desc:      desc,
			memory:    gpu.MemoryDeviceLocal,
			label:     "swapchain",
			state:     gpu.StatePresent,
			size:      desc.ByteSize(),
			swapChain: true,
		}
	}
	return sc, nil
}

// Len implements gpu.SwapChain.
func (s *SwapChain) Len() int { return len(s.images) }

// Image implements gpu.SwapChain.
func (s *SwapChain) Image(i int) (gpu.Resource, error) {
	if i < 0 || i >= len(s.images) {
		return nil, errors.Newf("soft: swap chain image %d of %d", i, len(s.images))
	}
	return s.images[i], nil
}
