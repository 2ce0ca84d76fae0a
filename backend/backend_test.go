package backend_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rtcore/backend"
	"github.com/gogpu/rtcore/backend/soft"
)

func TestSoftRegistered(t *testing.T) {
	assert.True(t, backend.IsRegistered(backend.Soft))
	assert.Contains(t, backend.Available(), backend.Soft)

	dev, err := backend.Open(backend.Soft)
	require.NoError(t, err)
	defer dev.Close()
	_, ok := dev.(*soft.Device)
	assert.True(t, ok)
}

func TestOpenUnknown(t *testing.T) {
	_, err := backend.Open("metal")
	assert.True(t, errors.Is(err, backend.ErrBackendNotAvailable))
}

func TestRegisterAndUnregister(t *testing.T) {
	t.Cleanup(func() { backend.Unregister("test") })

	calls := 0
	backend.Register("test", func() (backend.Device, error) {
		calls++
		return soft.New(), nil
	})
	assert.True(t, backend.IsRegistered("test"))

	dev, err := backend.Open("test")
	require.NoError(t, err)
	dev.Close()
	assert.Equal(t, 1, calls)

	backend.Unregister("test")
	assert.False(t, backend.IsRegistered("test"))
}

func TestOpenDefaultFallsBack(t *testing.T) {
	t.Cleanup(func() { backend.Unregister(backend.WGPU) })

	boom := errors.New("no vulkan")
	backend.Register(backend.WGPU, func() (backend.Device, error) { return nil, boom })

	dev, name, err := backend.OpenDefault()
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, backend.Soft, name)
}

func TestOpenDefaultAllFail(t *testing.T) {
	t.Cleanup(func() {
		backend.Unregister(backend.WGPU)
		backend.Register(backend.Soft, func() (backend.Device, error) { return soft.New(), nil })
	})

	boom := errors.New("no device")
	fail := func() (backend.Device, error) { return nil, boom }
	backend.Register(backend.WGPU, fail)
	backend.Register(backend.Soft, fail)

	_, _, err := backend.OpenDefault()
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrBackendNotAvailable))
	assert.True(t, errors.Is(err, boom))
}
