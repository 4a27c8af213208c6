// Package checker walks a tracked heap's shadow metadata, classifies every
// block as valid or corrupt, and reports contiguous corrupted regions. It
// only ever reads the heap and decides nothing about crash policy.
package checker

import (
	"io"
	"log/slog"

	"github.com/shadowheap/shadowheap/block"
	"github.com/shadowheap/shadowheap/memutil"
	"github.com/shadowheap/shadowheap/shadow"
	"github.com/shadowheap/shadowheap/walker"
	"golang.org/x/exp/slices"
)

// Checker scans a whole tracked heap for corrupted blocks. It owns the range
// slice it produces; the results of one scan are overwritten by the next.
//
// The scan assumes heap mutators are externally quiesced, as on a fault path.
// It takes no locks and never blocks.
type Checker struct {
	sh     shadow.Accessor
	span   block.Span
	logger *slog.Logger

	ranges []CorruptRange
	stats  memutil.DetailedScanStatistics
}

// New creates a checker over the tracked heap described by the shadow accessor
// and its raw span. A nil logger discards debug output.
func New(sh shadow.Accessor, span block.Span, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Checker{
		sh:     sh,
		span:   span,
		logger: logger,
	}
}

// IsHeapCorrupt scans every block in the tracked heap, front to back, and
// returns true if any block fails its magic or checksum validation. The two
// failure causes are folded together: a failing block is corrupted, full stop.
// Address-adjacent corrupted blocks merge into a single CorruptRange.
//
// Each call replaces the result of the previous one; identical heap state
// produces identical output.
func (c *Checker) IsHeapCorrupt() bool {
	c.logger.Debug("Checker::IsHeapCorrupt")

	c.ranges = c.ranges[:0]
	c.stats.Clear()

	end := memutil.AlignDown(min(c.sh.Extent(), c.span.Size()), shadow.GranuleSize)
	w, err := walker.New(c.sh, c.span, 0, end, walker.Forward)
	if err != nil {
		// The bounds above are clamped to both the shadow extent and the span,
		// so the walker cannot reject them.
		panic(err)
	}

	var tracker rangeTracker
	var info block.Info
	for w.Next(&info) {
		c.stats.AddBlock(info.Size, info.Quarantined)

		if blockIsCorrupt(c.span, info) {
			tracker.observeCorrupt(info.Address, info.End(), &c.ranges)
		} else {
			tracker.observeValid(&c.ranges)
		}
	}
	tracker.flush(&c.ranges)

	for _, r := range c.ranges {
		c.stats.AddCorruptRange(r.Length, r.BlockCount)
	}

	if len(c.ranges) > 0 {
		c.logger.Debug("Checker::IsHeapCorrupt found corruption",
			slog.Int("Ranges", len(c.ranges)),
			slog.Int("CorruptBlocks", c.stats.CorruptBlockCount))
		return true
	}

	return false
}

// blockIsCorrupt validates the magic sentinel and then the integrity digest.
// The output does not distinguish the two causes.
func blockIsCorrupt(span block.Span, info block.Info) bool {
	if !block.VerifyMagic(span, info) {
		return true
	}
	return !block.VerifyChecksum(span, info)
}

// CorruptRanges returns the ranges produced by the most recent scan, in
// ascending address order. The slice is owned by the checker and invalidated
// by the next IsHeapCorrupt call; use SnapshotRanges to retain a copy.
func (c *Checker) CorruptRanges() []CorruptRange {
	return c.ranges
}

// SnapshotRanges returns an independent copy of the most recent scan's ranges.
func (c *Checker) SnapshotRanges() []CorruptRange {
	return slices.Clone(c.ranges)
}

// ScanStats returns the statistics accumulated by the most recent scan.
func (c *Checker) ScanStats() memutil.DetailedScanStatistics {
	return c.stats
}
