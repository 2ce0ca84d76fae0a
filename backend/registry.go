package backend

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/internal/trace"
)

// Factory opens a device.
type Factory func() (Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for OpenDefault (first that opens wins).
	backendPriority = []string{WGPU, Soft}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device of the named backend.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBackendNotAvailable, "%q is not registered", name)
	}
	dev, err := factory()
	if err != nil {
		return nil, errors.Wrapf(err, "backend %q", name)
	}
	return dev, nil
}

// OpenDefault opens the best available backend. Priority order: wgpu, soft,
// then any other registered backend. It returns the name of the backend
// that opened.
func OpenDefault() (Device, string, error) {
	order := append([]string(nil), backendPriority...)
	for _, name := range Available() {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var errs error
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Open(name)
		if err == nil {
			return dev, name, nil
		}
		trace.Logger().Warn("backend: unavailable, trying next",
			slog.String("backend", name),
			slog.String("error", err.Error()))
		errs = errors.CombineErrors(errs, err)
	}
	if errs == nil {
		return nil, "", errors.Wrap(ErrBackendNotAvailable, "no backend registered")
	}
	return nil, "", errors.Mark(errs, ErrBackendNotAvailable)
}
