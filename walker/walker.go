// Package walker provides a lazy cursor over the block headers found in a
// range of tracked heap memory, reconstructed from shadow metadata alone.
package walker

import (
	"github.com/cockroachdb/errors"
	"github.com/shadowheap/shadowheap/block"
	"github.com/shadowheap/shadowheap/shadow"
)

// Direction selects the scan order of a Walker.
type Direction int

const (
	// Forward yields blocks in ascending address order.
	Forward Direction = iota
	// Reverse yields blocks in descending address order.
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	}
	return "invalid"
}

// Walker is a stateful cursor over the blocks whose headers start inside
// [begin, end). A block yielded near the range boundary may extend past end;
// its extents are bounded by the span, not by the walk range. Candidate
// addresses that do not parse as headers are skipped, never surfaced.
type Walker struct {
	sh   shadow.Accessor
	span block.Span

	begin     int
	end       int
	direction Direction
	cursor    int
}

// New creates a walker over [begin, end) in the given direction. Both bounds
// must be granule-aligned, ordered, and within the span.
func New(sh shadow.Accessor, span block.Span, begin, end int, direction Direction) (*Walker, error) {
	if begin%shadow.GranuleSize != 0 || end%shadow.GranuleSize != 0 {
		return nil, errors.Newf("walk range [%d, %d) is not granule-aligned", begin, end)
	}
	if begin < 0 || begin > end || end > span.Size() {
		return nil, errors.Newf("walk range [%d, %d) is not inside the %d-byte span", begin, end, span.Size())
	}
	if direction != Forward && direction != Reverse {
		return nil, errors.Newf("invalid walk direction %d", direction)
	}

	w := &Walker{
		sh:        sh,
		span:      span,
		begin:     begin,
		end:       end,
		direction: direction,
	}
	w.Reset()
	return w, nil
}

// Reset rewinds the cursor to the start of the walk.
func (w *Walker) Reset() {
	if w.direction == Forward {
		w.cursor = w.begin
	} else {
		w.cursor = w.end
	}
}

// Next advances to the next block header in the walk and fills info with its
// reconstructed extents. It returns false once no further header exists before
// the range boundary. An empty range yields nothing; malformed candidates are
// skipped silently.
func (w *Walker) Next(info *block.Info) bool {
	if w.direction == Forward {
		return w.nextForward(info)
	}
	return w.nextReverse(info)
}

func (w *Walker) nextForward(info *block.Info) bool {
	for cursor := w.cursor; cursor < w.end; cursor += shadow.GranuleSize {
		if !w.sh.IsBlockStart(cursor) {
			continue
		}

		parsed, err := block.ParseHeader(w.span, w.sh, cursor)
		if err != nil {
			// Not a header after all. Keep scanning granule by granule.
			continue
		}

		*info = parsed
		w.cursor = parsed.End()
		return true
	}

	w.cursor = w.end
	return false
}

func (w *Walker) nextReverse(info *block.Info) bool {
	for cursor := w.cursor - shadow.GranuleSize; cursor >= w.begin; cursor -= shadow.GranuleSize {
		if !w.sh.IsBlockStart(cursor) {
			continue
		}

		parsed, err := block.ParseHeader(w.span, w.sh, cursor)
		if err != nil {
			continue
		}

		*info = parsed
		w.cursor = parsed.Address
		return true
	}

	w.cursor = w.begin
	return false
}
