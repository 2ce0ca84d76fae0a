// Package soft implements gpu.Device and gpu.CommandList in host memory.
//
// The software device is the reference backend: it validates every
// description, enforces a memory budget, hands out aligned GPU virtual
// addresses, records every command and executes acceleration structure
// builds immediately on the CPU. Tests use it as the device double and
// FailOn injects failures into creation calls.
//
//	dev := soft.New(soft.WithMemoryBudget(64 << 20))
//	cmd := dev.NewCommandList()
//	...
//	if err := cmd.Err(); err != nil { ... }
package soft
