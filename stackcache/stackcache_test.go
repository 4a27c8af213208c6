package stackcache_test

import (
	"strings"
	"testing"

	"github.com/shadowheap/shadowheap/stackcache"
	"github.com/stretchr/testify/require"
)

func captureHere(cache *stackcache.Cache) stackcache.TraceID {
	return cache.Capture(0)
}

func TestCaptureDeduplicates(t *testing.T) {
	cache := stackcache.New(false)

	var ids []stackcache.TraceID
	for i := 0; i < 3; i++ {
		ids = append(ids, captureHere(cache))
	}

	require.NotEqual(t, stackcache.NoTrace, ids[0])
	require.Equal(t, ids[0], ids[1])
	require.Equal(t, ids[0], ids[2])
	require.Equal(t, 1, cache.Len())
}

func TestCaptureDistinguishesCallSites(t *testing.T) {
	cache := stackcache.New(false)

	first := cache.Capture(0)
	second := func() stackcache.TraceID {
		return cache.Capture(0)
	}()

	require.NotEqual(t, first, second)
	require.Equal(t, 2, cache.Len())
}

func TestGetResolvesFrames(t *testing.T) {
	cache := stackcache.New(false)

	id := cache.Capture(0)
	trace, ok := cache.Get(id)
	require.True(t, ok)
	require.Greater(t, trace.Depth, 0)

	frame, _ := trace.Frames().Next()
	require.True(t, strings.Contains(frame.Function, "TestGetResolvesFrames"), "unexpected top frame %q", frame.Function)
}

func TestGetUnknownID(t *testing.T) {
	cache := stackcache.New(false)

	_, ok := cache.Get(stackcache.NoTrace)
	require.False(t, ok)

	_, ok = cache.Get(stackcache.TraceID(0xDEADBEEF))
	require.False(t, ok)
}

func TestCaptureSkip(t *testing.T) {
	cache := stackcache.New(false)

	// Skipping one frame hides the closure and attributes the trace to this
	// test function instead.
	id := func() stackcache.TraceID {
		return cache.Capture(1)
	}()
	trace, ok := cache.Get(id)
	require.True(t, ok)

	frame, _ := trace.Frames().Next()
	require.True(t, strings.Contains(frame.Function, "TestCaptureSkip"), "unexpected top frame %q", frame.Function)
}

func TestConcurrentCapture(t *testing.T) {
	cache := stackcache.New(true)

	done := make(chan stackcache.TraceID)
	for i := 0; i < 8; i++ {
		go func() {
			done <- cache.Capture(0)
		}()
	}

	for i := 0; i < 8; i++ {
		id := <-done
		_, ok := cache.Get(id)
		require.True(t, ok)
	}
}
