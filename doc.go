// Package rtcore is the GPU resource and ray tracing infrastructure layer
// of a renderer: state-tracked resources, batched object creation,
// acceleration structures and shader record tables over a backend-neutral
// device interface.
//
// # Overview
//
// A [Context] owns the shared [gpu.Device] behind a [devlock.Handle] and a
// [shader.Library]. Render passes implement [Pass]: they enqueue the
// resources, views, binding layouts and pipelines they need into a
// [builder.Batch], and [Context.InitPasses] flushes every batch under the
// device lock.
//
//	dev, err := cfg.OpenDevice()
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	ctx, err := rtcore.NewContext(dev, rtcore.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	if err := ctx.InitPasses(context.Background(), shadows, lighting); err != nil {
//	    return err
//	}
//
// # Packages
//
//   - gpu: device, command list and description types
//   - devlock: exclusive checkout of the device
//   - resource: state-tracked resources and barrier planning
//   - builder: FIFO request queues flushed in one go
//   - accel: bottom-level and top-level acceleration structures with refit
//   - sbt: shader record tables
//   - shader: WGSL compilation and shader identifiers
//   - backend: registry of device backends selected by name
//   - backend/soft: host-memory device used by tests and tools
//   - backend/wgpu: adapter over a gogpu/wgpu HAL device
//
// # Configuration
//
// [Config] is loaded from TOML with [LoadConfig]. It carries the backend
// name, the debug switch, log level, limit overrides and the software
// device memory budget.
//
// # Logging
//
// rtcore is silent by default. Install a logger with [SetLogger]; enable
// failure traces with [SetDebug] or the rtdebug build tag.
package rtcore
