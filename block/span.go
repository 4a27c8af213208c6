package block

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned when an offset access falls outside a span.
var ErrOutOfBounds error = errors.New("access outside the tracked span")

// Span is a bounds-checked view over the raw bytes of one tracked heap region.
// Every field access on headers and trailers goes through a span so that a
// corrupted size or offset can never turn into a read outside the region.
type Span struct {
	data []byte
}

func NewSpan(data []byte) Span {
	return Span{data: data}
}

func (s Span) Size() int { return len(s.data) }

// Bytes returns the subslice [off, off+size). The scan side treats the result
// as read-only; the owning arena writes through it.
func (s Span) Bytes(off, size int) ([]byte, error) {
	if off < 0 || size < 0 || off+size > len(s.data) {
		return nil, errors.Wrapf(ErrOutOfBounds, "range %d+%d exceeds span of %d bytes", off, size, len(s.data))
	}
	return s.data[off : off+size], nil
}

func (s Span) ReadUint32(off int) (uint32, error) {
	raw, err := s.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (s Span) WriteUint32(off int, value uint32) error {
	raw, err := s.Bytes(off, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(raw, value)
	return nil
}
