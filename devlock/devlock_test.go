package devlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	h := New(42)

	g := h.Acquire()
	assert.Equal(t, 42, g.Value())
	assert.Nil(t, h.TryAcquire(), "second holder must not get in")

	g.Release()
	g.Release() // idempotent

	g2 := h.TryAcquire()
	require.NotNil(t, g2)
	g2.Release()
}

func TestValueAfterReleasePanics(t *testing.T) {
	h := New("dev")
	g := h.Acquire()
	g.Release()
	assert.Panics(t, func() { _ = g.Value() })
}

func TestReplace(t *testing.T) {
	h := New("a")
	assert.Equal(t, "a", h.Replace("b"))

	g := h.Acquire()
	defer g.Release()
	assert.Equal(t, "b", g.Value())
}

func TestAcquireContextCanceled(t *testing.T) {
	h := New(1)
	g := h.Acquire()
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	got, err := h.AcquireContext(ctx)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWithPropagatesError(t *testing.T) {
	h := New(1)
	want := errors.New("create failed")

	err := h.With(func(int) error { return want })
	assert.Equal(t, want, err)

	// Lock is free again.
	g := h.TryAcquire()
	require.NotNil(t, g)
	g.Release()
}

func TestMutualExclusion(t *testing.T) {
	h := New(new(int))

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = h.With(func(counter *int) error {
					n := active.Add(1)
					if n > peak.Load() {
						peak.Store(n)
					}
					*counter++
					active.Add(-1)
					return nil
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	g := h.Acquire()
	defer g.Release()
	assert.Equal(t, 1600, *g.Value())
}
