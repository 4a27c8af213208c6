// Package stackcache deduplicates allocation and free stack traces and hands
// out compact ids for block headers to hold as weak references. The corruption
// scan itself never consumes traces; crash reporting resolves ids on demand.
package stackcache

import (
	"runtime"

	"github.com/dolthub/swiss"
	"github.com/shadowheap/shadowheap/internal/utils"
)

const (
	// MaxFrames is the number of program counters retained per trace.
	MaxFrames = 16
)

// TraceID is the weak reference stored in block headers. The zero id means no
// trace was recorded.
type TraceID uint32

const NoTrace TraceID = 0

// Trace is one deduplicated stack trace.
type Trace struct {
	PCs   [MaxFrames]uintptr
	Depth int
}

// Frames resolves the trace's program counters to runtime frames.
func (t *Trace) Frames() *runtime.Frames {
	return runtime.CallersFrames(t.PCs[:t.Depth])
}

// Cache stores deduplicated traces keyed by id. Lookups from ids found in
// block headers are weak: an id the cache has never seen resolves to nothing
// rather than failing.
type Cache struct {
	mutex  utils.OptionalRWMutex
	traces *swiss.Map[TraceID, *Trace]
}

// New creates a trace cache. useMutex guards the cache for concurrent capture;
// pass false when the consumer serializes access itself.
func New(useMutex bool) *Cache {
	return &Cache{
		mutex: utils.OptionalRWMutex{
			UseMutex: useMutex,
		},
		traces: swiss.NewMap[TraceID, *Trace](64),
	}
}

// Capture records the current goroutine's stack, skipping skip frames above
// the caller, and returns its id. Identical stacks share one stored trace.
func (c *Cache) Capture(skip int) TraceID {
	var trace Trace
	trace.Depth = runtime.Callers(skip+2, trace.PCs[:])
	if trace.Depth == 0 {
		return NoTrace
	}

	id := hashTrace(&trace)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.traces.Get(id); !ok {
		stored := trace
		c.traces.Put(id, &stored)
	}
	return id
}

// Get resolves a trace id. Ids unknown to the cache, including NoTrace,
// resolve to (nil, false).
func (c *Cache) Get(id TraceID) (*Trace, bool) {
	if id == NoTrace {
		return nil, false
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.traces.Get(id)
}

// Len returns the number of unique traces stored.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.traces.Count()
}

// hashTrace folds an FNV-1a hash of the trace's program counters into a
// nonzero 32-bit id.
func hashTrace(trace *Trace) TraceID {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64)
	for _, pc := range trace.PCs[:trace.Depth] {
		for shift := 0; shift < 64; shift += 8 {
			hash ^= uint64(pc>>shift) & 0xFF
			hash *= prime64
		}
	}

	id := TraceID(hash ^ (hash >> 32))
	if id == NoTrace {
		id = 1
	}
	return id
}
