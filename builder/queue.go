// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package builder queues GPU object creation requests and flushes them
// against a device in one pass.
//
// Enqueue never touches the device, so tests can inspect pending requests
// without one. Build drains the queue in FIFO order and stops at the first
// failure; the queue is empty afterwards either way, so a retry starts
// clean.
package builder

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

// Request is one deferred creation call. The set of request kinds is
// closed: ViewRequest, ResourceRequest, LayoutRequest and PipelineRequest.
type Request interface {
	// Name returns a debug name used in errors and logs.
	Name() string

	create(dev gpu.Device) error
}

// Queue is a FIFO of creation requests of one kind. The zero value is an
// empty queue. A Queue is owned by one goroutine.
type Queue[R Request] struct {
	pending []R
}

// Enqueue appends r. It does not touch the device.
func (q *Queue[R]) Enqueue(r R) {
	q.pending = append(q.pending, r)
}

// Len returns the number of pending requests.
func (q *Queue[R]) Len() int { return len(q.pending) }

// Pending returns a copy of the pending requests in enqueue order.
func (q *Queue[R]) Pending() []R {
	out := make([]R, len(q.pending))
	copy(out, q.pending)
	return out
}

// Reset drops every pending request.
func (q *Queue[R]) Reset() {
	clear(q.pending)
	q.pending = q.pending[:0]
}

// Build issues one device call per pending request in enqueue order. It
// stops at the first failure and returns it annotated with the request
// index and name; later requests are dropped without being attempted.
func (q *Queue[R]) Build(dev gpu.Device) error {
	reqs := q.pending
	q.pending = nil

	for i, r := range reqs {
		if err := r.create(dev); err != nil {
			trace.Logger().Debug("builder: request failed",
				slog.Int("index", i),
				slog.String("name", r.Name()),
				slog.Int("dropped", len(reqs)-i-1))
			return trace.Fail(errors.Wrapf(err, "request %d (%s)", i, r.Name()))
		}
	}
	return nil
}

// Builder instantiations, one per device entry point.
type (
	ViewBuilder     = Queue[ViewRequest]
	ResourceBuilder = Queue[ResourceRequest]
	LayoutBuilder   = Queue[LayoutRequest]
	PipelineBuilder = Queue[PipelineRequest]
)
