package block

import (
	"github.com/pkg/errors"
	"github.com/shadowheap/shadowheap/shadow"
)

// ErrNotABlock is returned by ParseHeader when the shadow metadata at the
// candidate address does not describe the start of a well-formed block.
// Walkers treat it as "no header here" and keep scanning.
var ErrNotABlock error = errors.New("no block header at address")

// Info is a transient, non-owning view of one block's extents. It is
// recomputed on every scan and never stored across scans.
type Info struct {
	// Address is the offset of the header's first byte within the span.
	Address int
	// Size spans the whole block, header through trailer, granule-aligned.
	Size int
	// BodyOffset and BodySize delimit the body region. BodySize is derived
	// from shadow granules and so includes any sub-granule slack; the byte
	// size requested at allocation time lives in Header.BodySize.
	BodyOffset int
	BodySize   int
	// TrailerOffset is the offset of the trailer's first byte.
	TrailerOffset int
	// Header is the decoded header. Its fields are whatever the heap currently
	// holds; nothing here certifies them.
	Header Header
	// Quarantined reflects the shadow marker family, not the header state
	// field, so it survives header corruption.
	Quarantined bool
}

// End returns the offset one past the block's last byte.
func (i Info) End() int {
	return i.Address + i.Size
}

// granule progression ranks, used to require strictly forward structure while
// reconstructing a block from its shadow markers.
func kindRank(k shadow.GranuleKind) int {
	switch k {
	case shadow.GranuleHeader:
		return 1
	case shadow.GranuleHeaderPadding:
		return 2
	case shadow.GranuleBody:
		return 3
	case shadow.GranuleTrailerPadding:
		return 4
	case shadow.GranuleTrailer:
		return 5
	}
	return 0
}

// ParseHeader reconstructs the block whose header starts at addr. The extents
// come entirely from the shadow marker progression; header fields are decoded
// afterward but never trusted for sizes or offsets, so a block whose header
// bytes have been tampered with still reconstructs to its true extents.
//
// It returns an error wrapping ErrNotABlock when addr is not granule-aligned,
// when the shadow does not mark a block start there, or when the marker
// progression is malformed or runs off the span.
func ParseHeader(span Span, sh shadow.Accessor, addr int) (Info, error) {
	if addr%shadow.GranuleSize != 0 {
		return Info{}, errors.Wrapf(ErrNotABlock, "address %d is not granule-aligned", addr)
	}

	start := sh.StateAt(addr)
	if start.Kind != shadow.GranuleBlockStart {
		return Info{}, errors.Wrapf(ErrNotABlock, "granule at %d is %s", addr, start.Kind)
	}

	var headerGranules, headerPadGranules, bodyGranules, trailerGranules int
	bodyOffset := -1
	trailerOffset := -1

	rank := 1
	end := addr + shadow.GranuleSize
	for end < sh.Extent() {
		state := sh.StateAt(end)
		next := kindRank(state.Kind)
		if next == 0 || next < rank || state.Quarantined != start.Quarantined {
			break
		}
		rank = next

		switch state.Kind {
		case shadow.GranuleHeader:
			headerGranules++
		case shadow.GranuleHeaderPadding:
			headerPadGranules++
		case shadow.GranuleBody:
			if bodyOffset < 0 {
				bodyOffset = end
			}
			bodyGranules++
		case shadow.GranuleTrailer:
			if trailerOffset < 0 {
				trailerOffset = end
			}
			trailerGranules++
		}

		end += shadow.GranuleSize
	}

	// The header region is the start granule plus the trailing header granules;
	// it must cover exactly the fixed header bytes.
	if (headerGranules+1)*shadow.GranuleSize != HeaderSize {
		return Info{}, errors.Wrapf(ErrNotABlock, "block at %d has a %d-granule header region", addr, headerGranules+1)
	}
	if trailerGranules*shadow.GranuleSize != TrailerSize {
		return Info{}, errors.Wrapf(ErrNotABlock, "block at %d has a %d-granule trailer region", addr, trailerGranules)
	}

	if bodyOffset < 0 {
		// Zero-size body: the empty body region begins right after the header
		// region and any header padding.
		bodyOffset = addr + HeaderSize + headerPadGranules*shadow.GranuleSize
	}

	info := Info{
		Address:       addr,
		Size:          end - addr,
		BodyOffset:    bodyOffset,
		BodySize:      bodyGranules * shadow.GranuleSize,
		TrailerOffset: trailerOffset,
		Quarantined:   start.Quarantined,
	}

	header, err := ReadHeader(span, addr)
	if err != nil {
		return Info{}, errors.Wrapf(ErrNotABlock, "block at %d extends past the span", addr)
	}
	info.Header = header

	return info, nil
}
