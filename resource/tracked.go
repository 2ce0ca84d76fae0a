// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource wraps GPU allocations with their last-known usage state
// so that barriers are recorded only when the state genuinely changes.
//
// A Tracked is owned by exactly one pass and is not safe for concurrent use.
package resource

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// Tracked is a GPU resource plus the state of the last barrier recorded for
// it. The zero value is an uninitialized wrapper.
type Tracked struct {
	res   gpu.Resource
	state gpu.ResourceState
	name  string

	// borrowed is set when the backing memory belongs to someone else
	// (a swap chain) and must not be destroyed by Release.
	borrowed bool
}

// New returns an uninitialized wrapper with a debug name.
func New(name string) *Tracked {
	return &Tracked{name: name}
}

// Initialize allocates backing memory and records initial as the current
// state. Errors are marked gpu.ErrAllocation. A previously owned allocation
// is not released; callers Release before re-initializing on resize.
func (t *Tracked) Initialize(dev gpu.Device, memory gpu.MemoryKind, desc *gpu.ResourceDesc,
	initial gpu.ResourceState, clear *gpu.ClearValue, name string,
) error {
	if name != "" {
		t.name = name
	}
	if err := desc.Validate(); err != nil {
		return trace.Fail(errors.Wrapf(err, "resource %q", t.name))
	}
	res, err := dev.CreateResource(memory, desc, initial, clear, t.name)
	if err != nil {
		return trace.Fail(gpu.AllocationFailure(errors.Wrapf(err, "resource %q", t.name)))
	}
	t.res = res
	t.state = initial
	t.borrowed = false
	trace.Logger().Debug("resource: initialized",
		slog.String("name", t.name),
		slog.String("memory", memory.String()),
		slog.Uint64("bytes", desc.ByteSize()),
		slog.String("state", initial.String()))
	return nil
}

// Transition records the barrier needed to move the resource to state to
// and makes to the current state. See Plan.
//
// Transition panics with gpu.ErrNotInitialized when the wrapper has no
// backing memory.
func (t *Tracked) Transition(cmd gpu.CommandList, to gpu.ResourceState) {
	t.mustInitialized()
	switch Plan(t.state, to) {
	case BarrierTransition:
		cmd.ResourceBarrier(t.res, t.state, to)
	case BarrierUnorderedAccess:
		cmd.UnorderedAccessBarrier(t.res)
	}
	t.state = to
}

// UAVBarrier records an execution barrier without changing state.
func (t *Tracked) UAVBarrier(cmd gpu.CommandList) {
	t.mustInitialized()
	cmd.UnorderedAccessBarrier(t.res)
}

// AcquireFromSwapTarget binds the wrapper to swap-chain image index. The
// state becomes Present, the starting state of every acquired image.
func (t *Tracked) AcquireFromSwapTarget(sc gpu.SwapChain, index int) error {
	img, err := sc.Image(index)
	if err != nil {
		return trace.Fail(errors.Wrapf(err, "resource %q: swap chain image %d", t.name, index))
	}
	if img == nil {
		return trace.Fail(errors.Wrapf(gpu.ErrNilResource, "resource %q: swap chain image %d", t.name, index))
	}
	t.res = img
	t.state = gpu.StatePresent
	t.borrowed = true
	return nil
}

// ReplaceBacking swaps the backing memory without reallocating the wrapper.
// The caller keeps ownership of the previous allocation, which is returned.
func (t *Tracked) ReplaceBacking(res gpu.Resource, state gpu.ResourceState) gpu.Resource {
	old := t.res
	t.res = res
	t.state = state
	return old
}

// Swap exchanges the backing memory and state of t and other.
func (t *Tracked) Swap(other *Tracked) {
	res, state, borrowed := other.res, other.state, other.borrowed
	other.res, other.state, other.borrowed = t.res, t.state, t.borrowed
	t.ReplaceBacking(res, state)
	t.borrowed = borrowed
}

// Release destroys owned backing memory and returns the wrapper to the
// uninitialized state. Swap-chain images are only unbound.
func (t *Tracked) Release(dev gpu.Device) {
	if t.res == nil {
		trace.Logger().Warn("resource: release of uninitialized wrapper", slog.String("name", t.name))
		return
	}
	if !t.borrowed {
		dev.DestroyResource(t.res)
	}
	t.res = nil
	t.state = gpu.StateCommon
	t.borrowed = false
}

// Resource returns the backing resource, or nil before Initialize.
func (t *Tracked) Resource() gpu.Resource { return t.res }

// State returns the state of the last recorded barrier.
func (t *Tracked) State() gpu.ResourceState { return t.state }

// Name returns the debug name.
func (t *Tracked) Name() string { return t.name }

// Initialized reports whether the wrapper has backing memory.
func (t *Tracked) Initialized() bool { return t.res != nil }

func (t *Tracked) mustInitialized() {
	if t.res == nil {
		panic(errors.Wrapf(gpu.ErrNotInitialized, "resource %q", t.name))
	}
}
