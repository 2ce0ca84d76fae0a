package accel

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
)

var (
	// ErrNotBuilt is returned by Update before the first successful Build.
	ErrNotBuilt = errors.Mark(errors.New("accel: update before build"), gpu.ErrContract)

	// ErrTopologyChanged is returned by Update when the instance count or a
	// geometry reference differs from the last Build.
	ErrTopologyChanged = errors.Mark(errors.New("accel: instance topology changed since build"), gpu.ErrContract)

	// ErrNoGeometry is returned for instances without a built bottom level.
	ErrNoGeometry = errors.New("accel: instance has no bottom level")
)
