package shadow

import (
	"github.com/pkg/errors"
	"github.com/shadowheap/shadowheap/memutil"
)

const (
	// GranuleSize is the number of real heap bytes covered by one shadow byte.
	GranuleSize = 8
)

// Marker is the byte value stored in the shadow array for one granule of real
// memory. The external poisoner writes markers; this package only interprets
// them.
type Marker byte

const (
	MarkerUnallocated Marker = 0x00

	// Live-block family.
	MarkerBlockStart     Marker = 0xE0
	MarkerHeader         Marker = 0xE1
	MarkerHeaderPadding  Marker = 0xE2
	MarkerBody           Marker = 0xE3
	MarkerTrailerPadding Marker = 0xE4
	MarkerTrailer        Marker = 0xE5

	// Quarantined-block family. Same block structure, different start marker so
	// that freed-but-retained blocks remain distinguishable in a raw shadow dump.
	MarkerQuarantineStart          Marker = 0xE8
	MarkerQuarantineHeader         Marker = 0xE9
	MarkerQuarantineHeaderPadding  Marker = 0xEA
	MarkerQuarantineBody           Marker = 0xEB
	MarkerQuarantineTrailerPadding Marker = 0xEC
	MarkerQuarantineTrailer        Marker = 0xED

	// MarkerFreed covers granules of a block that has left quarantine. Freed
	// granules carry no reconstructible structure.
	MarkerFreed Marker = 0xF0
)

// GranuleKind classifies the role one granule plays within a tracked block.
type GranuleKind uint8

const (
	GranuleUnallocated GranuleKind = iota
	GranuleBlockStart
	GranuleHeader
	GranuleHeaderPadding
	GranuleBody
	GranuleTrailerPadding
	GranuleTrailer
)

func (k GranuleKind) String() string {
	switch k {
	case GranuleUnallocated:
		return "unallocated"
	case GranuleBlockStart:
		return "block-start"
	case GranuleHeader:
		return "header"
	case GranuleHeaderPadding:
		return "header-padding"
	case GranuleBody:
		return "body"
	case GranuleTrailerPadding:
		return "trailer-padding"
	case GranuleTrailer:
		return "trailer"
	}
	return "invalid"
}

// GranuleState is the classification of one granule: its structural role and
// whether it belongs to a quarantined block.
type GranuleState struct {
	Kind        GranuleKind
	Quarantined bool
}

// classify maps a raw marker byte to a granule state. Unrecognized bytes map to
// GranuleUnallocated so that a trashed shadow region degrades to "nothing here"
// instead of faulting the scan.
func classify(m Marker) GranuleState {
	switch m {
	case MarkerBlockStart:
		return GranuleState{Kind: GranuleBlockStart}
	case MarkerHeader:
		return GranuleState{Kind: GranuleHeader}
	case MarkerHeaderPadding:
		return GranuleState{Kind: GranuleHeaderPadding}
	case MarkerBody:
		return GranuleState{Kind: GranuleBody}
	case MarkerTrailerPadding:
		return GranuleState{Kind: GranuleTrailerPadding}
	case MarkerTrailer:
		return GranuleState{Kind: GranuleTrailer}
	case MarkerQuarantineStart:
		return GranuleState{Kind: GranuleBlockStart, Quarantined: true}
	case MarkerQuarantineHeader:
		return GranuleState{Kind: GranuleHeader, Quarantined: true}
	case MarkerQuarantineHeaderPadding:
		return GranuleState{Kind: GranuleHeaderPadding, Quarantined: true}
	case MarkerQuarantineBody:
		return GranuleState{Kind: GranuleBody, Quarantined: true}
	case MarkerQuarantineTrailerPadding:
		return GranuleState{Kind: GranuleTrailerPadding, Quarantined: true}
	case MarkerQuarantineTrailer:
		return GranuleState{Kind: GranuleTrailer, Quarantined: true}
	}
	return GranuleState{Kind: GranuleUnallocated}
}

// Accessor is the read-only view of shadow memory handed to walkers and
// checkers. The scan side only ever reads through this interface; the writer
// half of Shadow stays with the poisoner.
type Accessor interface {
	// StateAt classifies the granule containing addr. Addresses outside the
	// covered extent classify as unallocated.
	StateAt(addr int) GranuleState
	// IsBlockStart reports whether the granule containing addr is the first
	// granule of a live or quarantined block header.
	IsBlockStart(addr int) bool
	// Extent returns the number of real heap bytes covered by the shadow.
	Extent() int
}

// Shadow holds the marker array covering one tracked heap span. One byte of
// shadow describes GranuleSize bytes of real memory.
type Shadow struct {
	markers []byte
	extent  int
}

var _ Accessor = (*Shadow)(nil)

// NewShadow creates shadow coverage for extent bytes of real memory. The extent
// must be a non-negative multiple of GranuleSize.
func NewShadow(extent int) (*Shadow, error) {
	if err := memutil.CheckPow2(uint(GranuleSize), "GranuleSize"); err != nil {
		return nil, err
	}
	if extent < 0 || extent%GranuleSize != 0 {
		return nil, errors.Errorf("shadow extent %d must be a non-negative multiple of %d", extent, GranuleSize)
	}

	return &Shadow{
		markers: make([]byte, extent/GranuleSize),
		extent:  extent,
	}, nil
}

func (s *Shadow) Extent() int { return s.extent }

func (s *Shadow) StateAt(addr int) GranuleState {
	if addr < 0 || addr >= s.extent {
		return GranuleState{Kind: GranuleUnallocated}
	}
	return classify(Marker(s.markers[addr/GranuleSize]))
}

func (s *Shadow) IsBlockStart(addr int) bool {
	return s.StateAt(addr).Kind == GranuleBlockStart
}

// MarkerAt returns the raw marker byte for the granule containing addr, for
// diagnostic dumps. Out-of-range addresses read as MarkerUnallocated.
func (s *Shadow) MarkerAt(addr int) Marker {
	if addr < 0 || addr >= s.extent {
		return MarkerUnallocated
	}
	return Marker(s.markers[addr/GranuleSize])
}

// Poison writes the marker across every granule in [addr, addr+size). Both addr
// and size must be granule-aligned and inside the covered extent.
func (s *Shadow) Poison(addr, size int, m Marker) error {
	if addr%GranuleSize != 0 || size%GranuleSize != 0 {
		return errors.Errorf("poison range %d+%d is not granule-aligned", addr, size)
	}
	if addr < 0 || size < 0 || addr+size > s.extent {
		return errors.Errorf("poison range %d+%d is outside the covered extent %d", addr, size, s.extent)
	}

	for g := addr / GranuleSize; g < (addr+size)/GranuleSize; g++ {
		s.markers[g] = byte(m)
	}
	return nil
}

// Clear resets every granule in [addr, addr+size) to unallocated.
func (s *Shadow) Clear(addr, size int) error {
	return s.Poison(addr, size, MarkerUnallocated)
}

// ClearAll resets the whole shadow to unallocated.
func (s *Shadow) ClearAll() {
	for i := range s.markers {
		s.markers[i] = byte(MarkerUnallocated)
	}
}
