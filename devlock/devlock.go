// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package devlock provides a checkout-style lock around one shared value,
// typically the gpu.Device every pass creates its objects on.
//
// Device object creation calls are not safe to interleave, so every
// consumer borrows the value through Acquire and returns it with
// Guard.Release. There is no read path that bypasses the lock.
//
//	g := h.Acquire()
//	defer g.Release()
//	res, err := g.Value().CreateResource(...)
package devlock

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Handle guards one value of type T. The zero value is not usable; create
// handles with New.
type Handle[T any] struct {
	sem *semaphore.Weighted
	val T
}

// New returns a handle guarding v.
func New[T any](v T) *Handle[T] {
	return &Handle[T]{sem: semaphore.NewWeighted(1), val: v}
}

// Acquire blocks until no other holder is active and returns a guard for
// the value. Acquire never fails.
func (h *Handle[T]) Acquire() *Guard[T] {
	// Acquire with a background context only returns an error when the
	// request exceeds the semaphore size, which is impossible here.
	_ = h.sem.Acquire(context.Background(), 1)
	return &Guard[T]{h: h}
}

// AcquireContext is like Acquire but gives up when ctx is done.
func (h *Handle[T]) AcquireContext(ctx context.Context) (*Guard[T], error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Guard[T]{h: h}, nil
}

// TryAcquire returns a guard if the value is free, or nil otherwise.
func (h *Handle[T]) TryAcquire() *Guard[T] {
	if !h.sem.TryAcquire(1) {
		return nil
	}
	return &Guard[T]{h: h}
}

// Replace swaps the stored value under the lock and returns the old one.
func (h *Handle[T]) Replace(v T) T {
	g := h.Acquire()
	defer g.Release()
	old := h.val
	h.val = v
	return old
}

// With runs fn with the value while holding the lock.
func (h *Handle[T]) With(fn func(T) error) error {
	g := h.Acquire()
	defer g.Release()
	return fn(g.Value())
}

// Guard is one active borrow of a Handle.
type Guard[T any] struct {
	h        *Handle[T]
	released atomic.Bool
}

// Value returns the guarded value. It panics after Release.
func (g *Guard[T]) Value() T {
	if g.released.Load() {
		panic("devlock: value used after release")
	}
	return g.h.val
}

// Release ends the borrow. Calling it more than once is a no-op.
func (g *Guard[T]) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.h.sem.Release(1)
	}
}
