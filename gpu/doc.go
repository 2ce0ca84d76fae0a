// Package gpu defines the device abstraction the rtcore infrastructure is
// written against.
//
// The package is deliberately small: a [Device] allocates memory, creates
// views, binding layouts and pipeline states, and answers acceleration
// structure size queries; a [CommandList] records barriers, acceleration
// structure builds and ray dispatches. Everything above this package
// (resource state tracking, batched builders, acceleration structures,
// shader record tables) talks only to these two interfaces.
//
// Two implementations ship with rtcore:
//
//   - backend/soft: a host-memory reference device that records every
//     command and executes acceleration structure builds on the CPU
//   - backend/wgpu: an adapter over gogpu/wgpu's HAL
//
// # Resource states
//
// [ResourceState] enumerates the usage states a resource can be in. The
// state machine itself lives in package resource; this package only names
// the states and the barrier commands that move between them.
//
// # Errors
//
// Device implementations mark their failures with one of the taxonomy
// sentinels so callers can classify them with errors.Is:
//
//   - [ErrAllocation]: the device refused a memory or object request
//   - [ErrCapacity]: a fixed-capacity container is full
//   - [ErrContract]: the caller violated an ordering contract
//   - [ErrUnsupported]: the backend does not implement the operation
package gpu
