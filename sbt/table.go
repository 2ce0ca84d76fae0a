// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sbt builds shader binding tables: flat, fixed-stride arrays of
// shader records in upload memory that a ray dispatch indexes into.
//
// Index 0 is the ray generation record by convention; the table itself
// does not enforce a layout.
package sbt

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

var (
	// ErrCapacity is returned by Push when the table is full.
	ErrCapacity = errors.Mark(errors.New("sbt: table is full"), gpu.ErrCapacity)

	// ErrRecordTooLarge is returned by Push when a record exceeds the stride.
	ErrRecordTooLarge = errors.New("sbt: record larger than stride")

	// ErrIndex is returned for record indices outside the pushed range.
	ErrIndex = errors.New("sbt: record index out of range")

	// ErrMisaligned is returned by DispatchDesc when a section does not
	// start at a shader table aligned address.
	ErrMisaligned = errors.Mark(errors.New("sbt: section start misaligned"), gpu.ErrContract)
)

// Table is a fixed-capacity shader record table. It is not safe for
// concurrent use.
type Table struct {
	name     string
	stride   uint64
	capacity int
	count    int
	idSize   int
	align    uint64
	res      gpu.Resource
	mem      []byte
}

// NewTable allocates a table of capacity records. The requested stride is
// rounded up to the device shader record alignment once, here.
func NewTable(dev gpu.Device, capacity int, stride uint64, name string) (*Table, error) {
	lim := dev.Limits()
	if capacity <= 0 {
		return nil, trace.Fail(errors.Wrapf(gpu.ErrInvalidDescription, "sbt %q: capacity %d", name, capacity))
	}
	aligned := gpu.AlignUp(max(stride, uint64(lim.ShaderIdentifierSize)), lim.ShaderRecordAlignment)
	if lim.MaxShaderRecordStride > 0 && aligned > lim.MaxShaderRecordStride {
		return nil, trace.Fail(errors.Wrapf(gpu.ErrInvalidDescription,
			"sbt %q: stride %d exceeds device limit %d", name, aligned, lim.MaxShaderRecordStride))
	}

	desc := gpu.BufferDesc(uint64(capacity)*aligned, 0)
	res, err := dev.CreateResource(gpu.MemoryUpload, &desc, gpu.StateGenericRead, nil, name)
	if err != nil {
		return nil, trace.Fail(gpu.AllocationFailure(errors.Wrapf(err, "sbt %q", name)))
	}
	mem, err := dev.Map(res)
	if err != nil {
		dev.DestroyResource(res)
		return nil, trace.Fail(errors.Wrapf(err, "sbt %q: map", name))
	}

	trace.Logger().Debug("sbt: table created",
		slog.String("name", name),
		slog.Int("capacity", capacity),
		slog.Uint64("requested_stride", stride),
		slog.Uint64("stride", aligned))
	return &Table{
		name:     name,
		stride:   aligned,
		capacity: capacity,
		idSize:   lim.ShaderIdentifierSize,
		align:    lim.ShaderTableAlignment,
		res:      res,
		mem:      mem,
	}, nil
}

// Push copies r to the next free slot. It fails with ErrCapacity when the
// table is full and ErrRecordTooLarge when r does not fit in the stride.
func (t *Table) Push(r Record) error {
	if t.count >= t.capacity {
		return trace.Fail(errors.Wrapf(ErrCapacity, "sbt %q: %d records", t.name, t.capacity))
	}
	if uint64(r.Size()) > t.stride {
		return trace.Fail(errors.Wrapf(ErrRecordTooLarge, "sbt %q: %d bytes, stride %d", t.name, r.Size(), t.stride))
	}
	off := uint64(t.count) * t.stride
	slot := t.mem[off : off+t.stride]
	n := r.CopyTo(slot)
	clear(slot[n:])
	t.count++
	return nil
}

// Stride returns the aligned record stride.
func (t *Table) Stride() uint64 { return t.stride }

// Len returns the number of pushed records.
func (t *Table) Len() int { return t.count }

// Cap returns the fixed capacity.
func (t *Table) Cap() int { return t.capacity }

// Name returns the debug name.
func (t *Table) Name() string { return t.name }

// Resource returns the backing upload buffer.
func (t *Table) Resource() gpu.Resource { return t.res }

// Bytes returns the mapped memory of record i.
func (t *Table) Bytes(i int) ([]byte, error) {
	if i < 0 || i >= t.count {
		return nil, errors.Wrapf(ErrIndex, "sbt %q: record %d of %d", t.name, i, t.count)
	}
	off := uint64(i) * t.stride
	return t.mem[off : off+t.stride], nil
}

// Address returns the GPU address of record i.
func (t *Table) Address(i int) uint64 {
	return t.res.GPUAddress() + uint64(i)*t.stride
}

// Range returns the strided range covering count records from first.
func (t *Table) Range(first, count int) gpu.StridedRange {
	return gpu.StridedRange{
		Start:  t.Address(first),
		Size:   uint64(count) * t.stride,
		Stride: t.stride,
	}
}

// Release destroys the backing buffer. The table must not be used afterwards.
func (t *Table) Release(dev gpu.Device) {
	if t.res == nil {
		return
	}
	dev.DestroyResource(t.res)
	t.res, t.mem, t.count = nil, nil, 0
}
