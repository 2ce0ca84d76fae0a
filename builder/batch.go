package builder

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/devlock"
	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// Batch groups the four builders of one initialization or resize event.
type Batch struct {
	Resources ResourceBuilder
	Views     ViewBuilder
	Layouts   LayoutBuilder
	Pipelines PipelineBuilder
}

// Len returns the number of pending requests across all builders.
func (b *Batch) Len() int {
	return b.Resources.Len() + b.Views.Len() + b.Layouts.Len() + b.Pipelines.Len()
}

// Build flushes resources, then views, then layouts, then pipelines, so
// views see their targets and pipelines see their layouts. It stops at the
// first failure; every queue is empty afterwards.
func (b *Batch) Build(dev gpu.Device) error {
	n := b.Len()
	stages := []struct {
		name  string
		build func(gpu.Device) error
	}{
		{"resources", b.Resources.Build},
		{"views", b.Views.Build},
		{"layouts", b.Layouts.Build},
		{"pipelines", b.Pipelines.Build},
	}
	for _, s := range stages {
		if err := s.build(dev); err != nil {
			b.Reset()
			return errors.Wrap(err, s.name)
		}
	}
	trace.Logger().Debug("builder: batch flushed", slog.Int("requests", n))
	return nil
}

// BuildLocked runs Build while holding the device lock.
func (b *Batch) BuildLocked(h *devlock.Handle[gpu.Device]) error {
	return h.With(b.Build)
}

// Reset drops every pending request.
func (b *Batch) Reset() {
	b.Resources.Reset()
	b.Views.Reset()
	b.Layouts.Reset()
	b.Pipelines.Reset()
}
