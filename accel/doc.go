// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package accel builds and refits two-level ray tracing acceleration
// structures.
//
// A BottomLevel indexes triangle geometry and is built once. A TopLevel
// indexes instances of bottom levels; it is built when the instance set is
// first known and refitted in place every frame the transforms or
// visibility change:
//
//	Uninitialized --Build--> Built --Update--> Refitting --> Built
//
// Update requires the same instance count and the same bottom level for
// every instance as the last Build. Any other change needs a new Build;
// Sync picks the right one.
//
// Every build is followed by an unordered access barrier on the result, so
// commands recorded afterwards in the same list observe the finished
// structure.
package accel
