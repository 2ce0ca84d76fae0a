package soft

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// baseAddress is the first GPU virtual address handed out, so that zero
// never names a live buffer.
const baseAddress = 0x10000

// Op identifies a device entry point for call logs and failure injection.
type Op uint8

// Device operations.
const (
	OpCreateResource Op = iota
	OpCreateDescriptorTable
	OpCreateView
	OpCreateBindingLayout
	OpCreatePipelineState
	OpPrebuildInfo
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpCreateResource:
		return "CreateResource"
	case OpCreateDescriptorTable:
		return "CreateDescriptorTable"
	case OpCreateView:
		return "CreateView"
	case OpCreateBindingLayout:
		return "CreateBindingLayout"
	case OpCreatePipelineState:
		return "CreatePipelineState"
	case OpPrebuildInfo:
		return "PrebuildInfo"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Call is one logged creation call.
type Call struct {
	Op    Op
	Label string
}

// Options configure a software device.
type Options struct {
	// Limits are reported by Device.Limits.
	Limits gpu.Limits

	// MemoryBudget caps live allocations in bytes. Zero means unlimited.
	MemoryBudget uint64
}

// Option configures a software device.
type Option func(*Options)

// WithLimits sets the reported limits.
func WithLimits(l gpu.Limits) Option {
	return func(o *Options) { o.Limits = l }
}

// WithMemoryBudget caps live allocations at bytes.
func WithMemoryBudget(bytes uint64) Option {
	return func(o *Options) { o.MemoryBudget = bytes }
}

// Device is a host-memory gpu.Device. It is safe for concurrent use,
// although callers normally serialize on a devlock.Handle anyway.
type Device struct {
	mu       sync.Mutex
	opts     Options
	used     uint64
	peak     uint64
	nextAddr uint64
	live     int
	failOn   func(op Op, label string) error
	calls    []Call
	byAddr   map[uint64]*Resource
}

var _ gpu.Device = (*Device)(nil)

// New creates a software device.
func New(opts ...Option) *Device {
	o := Options{Limits: gpu.DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Device{
		opts:     o,
		nextAddr: baseAddress,
		byAddr:   make(map[uint64]*Resource),
	}
}

// FailOn installs a hook consulted before every creation call. A non-nil
// return fails the call with that error. Pass nil to remove the hook.
func (d *Device) FailOn(fn func(op Op, label string) error) {
	d.mu.Lock()
	d.failOn = fn
	d.mu.Unlock()
}

// Calls returns the creation calls made so far, in order. Calls rejected
// by the FailOn hook are included.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// MemoryUsed returns the bytes held by live resources.
func (d *Device) MemoryUsed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// PeakMemory returns the largest MemoryUsed value seen.
func (d *Device) PeakMemory() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

// LiveResources returns the number of resources not yet destroyed.
func (d *Device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Limits implements gpu.Device.
func (d *Device) Limits() gpu.Limits {
	return d.opts.Limits
}

// begin logs a call and consults the failure hook. Callers hold d.mu.
func (d *Device) begin(op Op, label string) error {
	d.calls = append(d.calls, Call{Op: op, Label: label})
	if d.failOn == nil {
		return nil
	}
	if err := d.failOn(op, label); err != nil {
		return errors.Wrapf(err, "soft: %s %q", op, label)
	}
	return nil
}

// CreateResource implements gpu.Device.
func (d *Device) CreateResource(kind gpu.MemoryKind, desc *gpu.ResourceDesc, initial gpu.ResourceState,
	clear *gpu.ClearValue, label string,
) (gpu.Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(OpCreateResource, label); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "soft: resource %q", label)
	}
	if !initial.Valid() {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription, "soft: resource %q: initial state %s", label, initial)
	}
	if kind == gpu.MemoryUpload && initial != gpu.StateGenericRead {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription,
			"soft: resource %q: upload memory must start in %s, got %s", label, gpu.StateGenericRead, initial)
	}
	if clear != nil && desc.Flags&(gpu.FlagRenderTarget|gpu.FlagDepthStencil) == 0 {
		return nil, errors.Wrapf(gpu.ErrInvalidDescription,
			"soft: resource %q: clear value without render-target or depth usage", label)
	}

	size := desc.ByteSize()
	if desc.Dimension == gpu.DimensionBuffer && size > gpu.MaxHostAllocation {
		return nil, errors.Wrapf(gpu.ErrOutOfMemory, "soft: resource %q needs %d bytes, host limit is %d",
			label, size, uint64(gpu.MaxHostAllocation))
	}
	// used never exceeds the budget, so the subtraction cannot wrap.
	if d.opts.MemoryBudget > 0 && size > d.opts.MemoryBudget-d.used {
		return nil, errors.Wrapf(gpu.ErrOutOfMemory, "soft: resource %q needs %d bytes, %d of %d in use",
			label, size, d.used, d.opts.MemoryBudget)
	}

	r := &Resource{
		desc:   *desc,
		memory: kind,
		label:  label,
		state:  initial,
		size:   size,
	}
	if desc.Dimension == gpu.DimensionBuffer {
		r.data = make([]byte, size)
		r.addr = d.nextAddr
		d.nextAddr += gpu.AlignUp(size, d.opts.Limits.AccelerationStructureAlignment)
		d.byAddr[r.addr] = r
	}
	d.used += size
	d.peak = max(d.peak, d.used)
	d.live++

	trace.Logger().Debug("soft: resource created",
		slog.String("label", label),
		slog.String("dimension", desc.Dimension.String()),
		slog.Uint64("bytes", size),
		slog.Uint64("address", r.addr))
	return r, nil
}

// DestroyResource implements gpu.Device.
func (d *Device) DestroyResource(res gpu.Resource) {
	if res == nil {
		return
	}
	r, ok := res.(*Resource)
	if !ok {
		trace.Logger().Warn("soft: destroy of foreign resource", slog.String("label", res.Label()))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if r.destroyed {
		trace.Logger().Warn("soft: resource destroyed twice", slog.String("label", r.label))
		return
	}
	if r.swapChain {
		trace.Logger().Warn("soft: swap chain image destroyed by caller", slog.String("label", r.label))
		return
	}
	r.destroyed = true
	r.data = nil
	r.accel = nil
	if r.addr != 0 {
		delete(d.byAddr, r.addr)
	}
	d.used -= r.size
	d.live--
}

// Map implements gpu.Device.
func (d *Device) Map(res gpu.Resource) ([]byte, error) {
	r, err := d.resolve(res)
	if err != nil {
		return nil, err
	}
	if !r.memory.HostVisible() {
		return nil, errors.Wrapf(gpu.ErrNotMappable, "soft: map %q (%s)", r.label, r.memory)
	}
	return r.data, nil
}

// resolve returns the live software resource behind res.
func (d *Device) resolve(res gpu.Resource) (*Resource, error) {
	if res == nil {
		return nil, errors.WithStack(gpu.ErrNilResource)
	}
	r, ok := res.(*Resource)
	if !ok {
		return nil, errors.Newf("soft: resource %q belongs to another device", res.Label())
	}
	if r.destroyed {
		return nil, errors.Newf("soft: resource %q used after destroy", r.label)
	}
	return r, nil
}

// lookup returns the live buffer at addr. Callers hold d.mu.
func (d *Device) lookup(addr uint64) (*Resource, bool) {
	r, ok := d.byAddr[addr]
	return r, ok
}
