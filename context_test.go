package rtcore

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rtcore/backend/soft"
	"github.com/gogpu/rtcore/builder"
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/resource"
)

// targetPass allocates one render target and a view of it.
type targetPass struct {
	name   string
	target *resource.Tracked
	table  gpu.DescriptorTable
	fail   error
	inits  atomic.Int32
}

func (p *targetPass) Name() string { return p.name }

func (p *targetPass) Init(_ *Context, b *builder.Batch) error {
	p.inits.Add(1)
	if p.fail != nil {
		return p.fail
	}
	p.target = resource.New(p.name)
	desc := gpu.Texture2DDesc(64, 64, gputypes.TextureFormatRGBA8Unorm, gpu.FlagRenderTarget)
	b.Resources.Enqueue(builder.ResourceRequest{
		Dst:     p.target,
		Memory:  gpu.MemoryDeviceLocal,
		Desc:    desc,
		Initial: gpu.StateRenderTarget,
		Label:   p.name,
	})
	b.Views.Enqueue(builder.ViewRequest{
		Kind:   gpu.ViewRenderTarget,
		Target: p.target,
		Slot:   gpu.DescriptorSlot{Table: p.table},
	})
	return nil
}

func newTestContext(t *testing.T, opts ...Option) (*Context, *soft.Device) {
	t.Helper()
	dev := soft.New()
	ctx, err := NewContext(dev, opts...)
	require.NoError(t, err)
	return ctx, dev
}

func newRTVTable(t *testing.T, dev *soft.Device) gpu.DescriptorTable {
	t.Helper()
	table, err := dev.CreateDescriptorTable(gpu.DescriptorRenderTarget, 1, "rtv")
	require.NoError(t, err)
	return table
}

func TestNewContext(t *testing.T) {
	ctx, dev := newTestContext(t)
	assert.Equal(t, dev.Limits(), ctx.Limits())
	assert.Equal(t, DefaultConfig(), ctx.Config())
	assert.Equal(t, gpu.DefaultShaderIdentifierSize, ctx.Shaders().IdentifierSize())

	g := ctx.Device().Acquire()
	assert.Equal(t, gpu.Device(dev), g.Value())
	g.Release()

	_, err := NewContext(nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.SwapChainImages = 0
	_, err = NewContext(dev, WithConfig(bad))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewContextDebugConfig(t *testing.T) {
	orig := Debug()
	t.Cleanup(func() { SetDebug(orig) })
	SetDebug(false)

	cfg := DefaultConfig()
	cfg.Debug = true
	newTestContext(t, WithConfig(cfg))
	assert.True(t, Debug())
}

func TestFlush(t *testing.T) {
	ctx, dev := newTestContext(t)
	p := &targetPass{name: "gbuffer", table: newRTVTable(t, dev)}

	b := ctx.NewBatch()
	require.NoError(t, p.Init(ctx, b))
	require.NoError(t, ctx.Flush(b))
	assert.Zero(t, b.Len())
	assert.True(t, p.target.Initialized())
	assert.NotNil(t, p.table.(*soft.DescriptorTable).Slot(0))
}

func TestInitPasses(t *testing.T) {
	ctx, dev := newTestContext(t)
	passes := []*targetPass{
		{name: "shadow", table: newRTVTable(t, dev)},
		{name: "lighting", table: newRTVTable(t, dev)},
		{name: "post", table: newRTVTable(t, dev)},
	}
	var ps []Pass
	for _, p := range passes {
		ps = append(ps, p)
	}

	require.NoError(t, ctx.InitPasses(context.Background(), ps...))
	for _, p := range passes {
		assert.True(t, p.target.Initialized(), p.name)
		assert.Equal(t, gpu.StateRenderTarget, p.target.State(), p.name)
		assert.Equal(t, int32(1), p.inits.Load(), p.name)
	}
}

func TestInitPassesInitFailure(t *testing.T) {
	ctx, dev := newTestContext(t)
	boom := errors.New("missing shader")
	ok := &targetPass{name: "ok", table: newRTVTable(t, dev)}
	bad := &targetPass{name: "bad", fail: boom}

	err := ctx.InitPasses(context.Background(), ok, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), `pass "bad"`)
	assert.Equal(t, int32(1), bad.inits.Load(), "no retry")
}

func TestInitPassesBuildFailure(t *testing.T) {
	ctx, dev := newTestContext(t)
	dev.FailOn(func(op soft.Op, label string) error {
		if op == soft.OpCreateResource && label == "broken" {
			return gpu.ErrOutOfMemory
		}
		return nil
	})

	err := ctx.InitPasses(context.Background(), &targetPass{name: "broken", table: newRTVTable(t, dev)})
	require.Error(t, err)
	assert.True(t, gpu.IsAllocationFailure(err))
	assert.Contains(t, err.Error(), `pass "broken"`)

	// The device is free again.
	g := ctx.Device().TryAcquire()
	require.NotNil(t, g)
	g.Release()
}

func TestInitPassesCancelled(t *testing.T) {
	ctx, dev := newTestContext(t)
	g := ctx.Device().Acquire()

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ctx.InitPasses(cctx, &targetPass{name: "late", table: newRTVTable(t, dev)})
	g.Release()

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
