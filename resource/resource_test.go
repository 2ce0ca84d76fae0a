package resource

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rtcore/backend/soft"
	"github.com/gogpu/rtcore/gpu"
)

func newTexture(t *testing.T, dev *soft.Device, initial gpu.ResourceState) *Tracked {
	t.Helper()
	desc := gpu.Texture2DDesc(64, 64, gputypes.TextureFormatRGBA8Unorm, gpu.FlagRenderTarget|gpu.FlagUnorderedAccess)
	r := New("color")
	require.NoError(t, r.Initialize(dev, gpu.MemoryDeviceLocal, &desc, initial, nil, ""))
	return r
}

func TestPlan(t *testing.T) {
	for _, from := range gpu.ResourceStates() {
		for _, to := range gpu.ResourceStates() {
			got := Plan(from, to)
			switch {
			case from != to:
				assert.Equal(t, BarrierTransition, got, "%s -> %s", from, to)
			case to == gpu.StateUnorderedAccess:
				assert.Equal(t, BarrierUnorderedAccess, got)
			default:
				assert.Equal(t, BarrierNone, got, "%s -> %s", from, to)
			}
		}
	}
}

func TestTransitionIdempotent(t *testing.T) {
	for _, s := range gpu.ResourceStates() {
		if s == gpu.StateUnorderedAccess || s == gpu.StateCommon {
			continue
		}
		t.Run(s.String(), func(t *testing.T) {
			dev := soft.New()
			r := newTexture(t, dev, gpu.StateCommon)
			cmd := dev.NewCommandList()

			r.Transition(cmd, s)
			r.Transition(cmd, s)
			assert.Equal(t, 1, cmd.Barriers())
			assert.Equal(t, s, r.State())
			require.NoError(t, cmd.Err())
		})
	}
}

func TestUnorderedAccessAlwaysFences(t *testing.T) {
	dev := soft.New()
	r := newTexture(t, dev, gpu.StateUnorderedAccess)
	cmd := dev.NewCommandList()

	for range 3 {
		r.Transition(cmd, gpu.StateUnorderedAccess)
	}
	assert.Equal(t, 3, cmd.Count(soft.CmdUnorderedAccessBarrier))
	assert.Zero(t, cmd.Count(soft.CmdResourceBarrier))
}

func TestTransitionScenario(t *testing.T) {
	dev := soft.New()
	r := newTexture(t, dev, gpu.StateCopyDest)
	cmd := dev.NewCommandList()

	r.Transition(cmd, gpu.StateCopyDest)
	assert.Zero(t, cmd.Barriers())

	r.Transition(cmd, gpu.StateRenderTarget)
	assert.Equal(t, 1, cmd.Barriers())

	r.Transition(cmd, gpu.StateUnorderedAccess)
	r.Transition(cmd, gpu.StateUnorderedAccess)
	assert.Equal(t, 3, cmd.Barriers())

	cmds := cmd.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, soft.Command{Kind: soft.CmdResourceBarrier, Resource: r.Resource(),
		Before: gpu.StateCopyDest, After: gpu.StateRenderTarget}, cmds[0])
	assert.Equal(t, soft.CmdResourceBarrier, cmds[1].Kind)
	assert.Equal(t, gpu.StateUnorderedAccess, cmds[1].After)
	assert.Equal(t, soft.CmdUnorderedAccessBarrier, cmds[2].Kind)
	require.NoError(t, cmd.Err())
}

func TestTransitionBeforeInitializePanics(t *testing.T) {
	dev := soft.New()
	cmd := dev.NewCommandList()
	r := New("unused")

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, gpu.ErrNotInitialized))
		assert.True(t, errors.Is(err, gpu.ErrContract))
		assert.Zero(t, cmd.Barriers())
	}()
	r.Transition(cmd, gpu.StateShaderRead)
}

func TestInitializeFailure(t *testing.T) {
	dev := soft.New(soft.WithMemoryBudget(1024))
	desc := gpu.BufferDesc(4096, 0)
	r := New("big")

	err := r.Initialize(dev, gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "")
	require.Error(t, err)
	assert.True(t, gpu.IsAllocationFailure(err))
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
	assert.False(t, r.Initialized())

	injected := errors.New("device removed")
	dev.FailOn(func(soft.Op, string) error { return injected })
	desc = gpu.BufferDesc(16, 0)
	err = r.Initialize(dev, gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "")
	assert.True(t, gpu.IsAllocationFailure(err), "device errors are surfaced as allocation failures")
	assert.True(t, errors.Is(err, injected))
}

func TestInitializeOversizedBuffer(t *testing.T) {
	r := New("huge")
	desc := gpu.BufferDesc(1<<62, 0)
	var err error
	require.NotPanics(t, func() {
		err = r.Initialize(soft.New(), gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "")
	})
	require.Error(t, err)
	assert.True(t, gpu.IsAllocationFailure(err))
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
	assert.False(t, r.Initialized())

	// A size near the top of the range must not wrap the budget check.
	dev := soft.New(soft.WithMemoryBudget(1 << 20))
	small := gpu.BufferDesc(4096, 0)
	require.NoError(t, New("small").Initialize(dev, gpu.MemoryDeviceLocal, &small, gpu.StateCommon, nil, ""))
	desc = gpu.BufferDesc(^uint64(0)-100, 0)
	require.NotPanics(t, func() {
		err = r.Initialize(dev, gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "")
	})
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
	assert.Equal(t, uint64(4096), dev.MemoryUsed())
}

func TestAcquireFromSwapTarget(t *testing.T) {
	dev := soft.New()
	sc, err := dev.NewSwapChain(2, 32, 32, gputypes.TextureFormatBGRA8Unorm)
	require.NoError(t, err)

	r := New("backbuffer")
	require.NoError(t, r.AcquireFromSwapTarget(sc, 1))
	assert.Equal(t, gpu.StatePresent, r.State())

	cmd := dev.NewCommandList()
	r.Transition(cmd, gpu.StateRenderTarget)
	r.Transition(cmd, gpu.StatePresent)
	require.NoError(t, cmd.Err())
	assert.Equal(t, 2, cmd.Barriers())

	img := r.Resource()
	r.Release(dev)
	assert.False(t, r.Initialized())
	assert.False(t, img.(*soft.Resource).Destroyed(), "swap chain images are not destroyed")

	assert.Error(t, r.AcquireFromSwapTarget(sc, 5))
}

func TestReplaceBackingAndSwap(t *testing.T) {
	dev := soft.New()
	a := newTexture(t, dev, gpu.StateShaderRead)
	b := newTexture(t, dev, gpu.StateRenderTarget)
	resA, resB := a.Resource(), b.Resource()

	a.Swap(b)
	assert.Equal(t, resB, a.Resource())
	assert.Equal(t, gpu.StateRenderTarget, a.State())
	assert.Equal(t, resA, b.Resource())
	assert.Equal(t, gpu.StateShaderRead, b.State())

	old := a.ReplaceBacking(resA, gpu.StateShaderRead)
	assert.Equal(t, resB, old)
	assert.Equal(t, resA, a.Resource())
}

func TestRelease(t *testing.T) {
	dev := soft.New()
	r := newTexture(t, dev, gpu.StateCommon)
	res := r.Resource()
	require.Equal(t, 1, dev.LiveResources())

	r.Release(dev)
	assert.Zero(t, dev.LiveResources())
	assert.True(t, res.(*soft.Resource).Destroyed())
	assert.False(t, r.Initialized())
	assert.Equal(t, "color", r.Name())

	r.Release(dev) // warns, no panic
}
