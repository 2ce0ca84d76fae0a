package rtcore

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rtcore/builder"
	"github.com/gogpu/rtcore/devlock"
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
	"github.com/gogpu/rtcore/shader"
)

// Pass is one unit of GPU work that creates its objects at startup or on
// resize. Init enqueues requests into b; the context flushes b afterwards.
// Init may run concurrently with other passes and must not touch the device
// directly.
type Pass interface {
	Name() string
	Init(ctx *Context, b *builder.Batch) error
}

// Context owns the shared device and the shader library of a renderer.
type Context struct {
	dev     *devlock.Handle[gpu.Device]
	cfg     Config
	limits  gpu.Limits
	shaders *shader.Library
}

// NewContext wraps dev. The configuration is validated and its debug flag
// applied.
func NewContext(dev gpu.Device, opts ...Option) (*Context, error) {
	if dev == nil {
		return nil, errors.New("rtcore: nil device")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if o.config.Debug {
		SetDebug(true)
	}

	limits := dev.Limits()
	c := &Context{
		dev:     devlock.New(dev),
		cfg:     o.config,
		limits:  limits,
		shaders: shader.NewLibrary(limits.ShaderIdentifierSize, shader.WithValidation(o.config.Debug)),
	}
	Logger().Info("rtcore: context created",
		slog.Int("shader_identifier_size", limits.ShaderIdentifierSize),
		slog.Uint64("shader_record_alignment", limits.ShaderRecordAlignment),
		slog.Bool("debug", Debug()))
	return c, nil
}

// Device returns the lock guarding the device.
func (c *Context) Device() *devlock.Handle[gpu.Device] { return c.dev }

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// Limits returns the device limits, queried once at creation.
func (c *Context) Limits() gpu.Limits { return c.limits }

// Shaders returns the shader library.
func (c *Context) Shaders() *shader.Library { return c.shaders }

// NewBatch returns an empty request batch.
func (c *Context) NewBatch() *builder.Batch { return &builder.Batch{} }

// Flush builds b under the device lock. b is empty afterwards.
func (c *Context) Flush(b *builder.Batch) error {
	return b.BuildLocked(c.dev)
}

// InitPasses runs Init of every pass concurrently and flushes each pass's
// batch under the device lock. The first failure cancels the passes still
// waiting for the device and is returned wrapped with the pass name.
func (c *Context) InitPasses(ctx context.Context, passes ...Pass) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range passes {
		g.Go(func() error {
			b := c.NewBatch()
			if err := p.Init(c, b); err != nil {
				return trace.Fail(errors.Wrapf(err, "pass %q", p.Name()))
			}
			guard, err := c.dev.AcquireContext(gctx)
			if err != nil {
				b.Reset()
				return errors.Wrapf(err, "pass %q", p.Name())
			}
			defer guard.Release()
			n := b.Len()
			if err := b.Build(guard.Value()); err != nil {
				return errors.Wrapf(err, "pass %q", p.Name())
			}
			Logger().Info("rtcore: pass initialized",
				slog.String("pass", p.Name()),
				slog.Int("requests", n))
			return nil
		})
	}
	return g.Wait()
}
