package gpu

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy. Concrete errors are marked with one of these so that
// errors.Is classifies them regardless of their message.
var (
	// ErrAllocation is returned when the device refuses a memory or object
	// request (out of memory or an invalid description).
	ErrAllocation = errors.New("gpu: allocation failed")

	// ErrCapacity is returned when a fixed-capacity container is full.
	ErrCapacity = errors.New("gpu: capacity exhausted")

	// ErrContract is returned when an operation is called out of order.
	ErrContract = errors.New("gpu: contract violation")

	// ErrUnsupported is returned by backends that do not implement an operation.
	ErrUnsupported = errors.New("gpu: operation not supported by backend")
)

// Common concrete failures.
var (
	// ErrOutOfMemory is returned when an allocation exceeds the device budget.
	ErrOutOfMemory = errors.Mark(errors.New("gpu: out of device memory"), ErrAllocation)

	// ErrInvalidDescription is returned for malformed resource or object descriptions.
	ErrInvalidDescription = errors.Mark(errors.New("gpu: invalid description"), ErrAllocation)

	// ErrNotInitialized is raised when a wrapper is used before its first
	// successful initialization.
	ErrNotInitialized = errors.Mark(errors.New("gpu: used before initialize"), ErrContract)

	// ErrNotMappable is returned when mapping device-local memory.
	ErrNotMappable = errors.New("gpu: resource is not host visible")

	// ErrNilResource is returned when an operation references a nil resource.
	ErrNilResource = errors.New("gpu: resource is nil")
)

// AllocationFailure marks err as an allocation failure.
func AllocationFailure(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrAllocation)
}

// IsAllocationFailure reports whether err is an allocation failure.
func IsAllocationFailure(err error) bool {
	return errors.Is(err, ErrAllocation)
}
