package resource

import (
	"fmt"

	"github.com/gogpu/rtcore/gpu"
)

// BarrierKind is the barrier a transition needs.
type BarrierKind uint8

// Barrier kinds.
const (
	// BarrierNone means the transition is a no-op.
	BarrierNone BarrierKind = iota

	// BarrierTransition is a state-transition barrier.
	BarrierTransition

	// BarrierUnorderedAccess is an execution barrier between two unordered
	// accesses to the same memory.
	BarrierUnorderedAccess
)

// String returns the barrier kind name.
func (k BarrierKind) String() string {
	switch k {
	case BarrierNone:
		return "None"
	case BarrierTransition:
		return "Transition"
	case BarrierUnorderedAccess:
		return "UnorderedAccess"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Plan returns the barrier needed to move a resource from one state to
// another. A change of state always needs a transition barrier, which also
// orders any unordered access before it. Staying in UnorderedAccess still
// needs an execution barrier because concurrent shader writes are not
// expressed by the state alone.
func Plan(from, to gpu.ResourceState) BarrierKind {
	switch {
	case from != to:
		return BarrierTransition
	case to == gpu.StateUnorderedAccess:
		return BarrierUnorderedAccess
	default:
		return BarrierNone
	}
}
