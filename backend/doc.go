// Package backend is the registry of device backends.
//
// Backends register a Factory from init() functions and are selected at
// runtime by name:
//
//	import _ "github.com/gogpu/rtcore/backend/soft"
//	import _ "github.com/gogpu/rtcore/backend/wgpu"
//
//	dev, name, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
//   - "soft": host-memory device with CPU acceleration structures (always available)
//   - "wgpu": standalone Vulkan device through gogpu/wgpu (no ray tracing)
package backend
