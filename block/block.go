// Package block decodes the header, body and trailer extents of tracked heap
// blocks from shadow metadata and verifies their integrity digests. It never
// follows block-internal offsets without bounds-checking them against the
// containing span, and it never mutates the heap on the scan side.
package block

import (
	"encoding/binary"
)

const (
	// HeaderSize is the fixed size in bytes of a block header.
	HeaderSize = 32
	// TrailerSize is the fixed size in bytes of a block trailer.
	TrailerSize = 16

	// HeaderMagic is the sentinel value stored in the first field of every
	// tracked block header.
	HeaderMagic uint32 = 0x5AFEB10C
)

// Header field byte offsets, little-endian.
const (
	offMagic      = 0
	offChecksum   = 4
	offState      = 8
	offBodySize   = 12
	offAllocStack = 16
	offFreeStack  = 20
	offReserved0  = 24
	offReserved1  = 28
)

// Trailer field byte offsets, little-endian.
const (
	offAllocTicks      = 0
	offFreeTicks       = 4
	offHeapID          = 8
	offTrailerReserved = 12
)

// State is the allocation state recorded in a block header.
type State uint32

const (
	StateAllocated State = iota
	StateQuarantined
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateAllocated:
		return "allocated"
	case StateQuarantined:
		return "quarantined"
	case StateFreed:
		return "freed"
	}
	return "invalid"
}

// Header is the decoded form of a block header. AllocStack and FreeStack are
// weak stack-trace cache ids owned by the external cache; a zero id means no
// trace was recorded.
type Header struct {
	Magic      uint32
	Checksum   uint32
	State      State
	BodySize   uint32
	AllocStack uint32
	FreeStack  uint32
}

// Trailer is the decoded form of a block trailer.
type Trailer struct {
	AllocTicks uint32
	FreeTicks  uint32
	HeapID     uint32
}

// ReadHeader decodes the header stored at addr. The read is bounds-checked;
// the decoded fields are not validated here.
func ReadHeader(span Span, addr int) (Header, error) {
	raw, err := span.Bytes(addr, HeaderSize)
	if err != nil {
		return Header{}, err
	}

	return Header{
		Magic:      binary.LittleEndian.Uint32(raw[offMagic:]),
		Checksum:   binary.LittleEndian.Uint32(raw[offChecksum:]),
		State:      State(binary.LittleEndian.Uint32(raw[offState:])),
		BodySize:   binary.LittleEndian.Uint32(raw[offBodySize:]),
		AllocStack: binary.LittleEndian.Uint32(raw[offAllocStack:]),
		FreeStack:  binary.LittleEndian.Uint32(raw[offFreeStack:]),
	}, nil
}

// WriteHeader encodes the header at addr. Reserved fields are zeroed.
func WriteHeader(span Span, addr int, h Header) error {
	raw, err := span.Bytes(addr, HeaderSize)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(raw[offMagic:], h.Magic)
	binary.LittleEndian.PutUint32(raw[offChecksum:], h.Checksum)
	binary.LittleEndian.PutUint32(raw[offState:], uint32(h.State))
	binary.LittleEndian.PutUint32(raw[offBodySize:], h.BodySize)
	binary.LittleEndian.PutUint32(raw[offAllocStack:], h.AllocStack)
	binary.LittleEndian.PutUint32(raw[offFreeStack:], h.FreeStack)
	binary.LittleEndian.PutUint32(raw[offReserved0:], 0)
	binary.LittleEndian.PutUint32(raw[offReserved1:], 0)
	return nil
}

// ReadTrailer decodes the trailer stored at addr.
func ReadTrailer(span Span, addr int) (Trailer, error) {
	raw, err := span.Bytes(addr, TrailerSize)
	if err != nil {
		return Trailer{}, err
	}

	return Trailer{
		AllocTicks: binary.LittleEndian.Uint32(raw[offAllocTicks:]),
		FreeTicks:  binary.LittleEndian.Uint32(raw[offFreeTicks:]),
		HeapID:     binary.LittleEndian.Uint32(raw[offHeapID:]),
	}, nil
}

// WriteTrailer encodes the trailer at addr.
func WriteTrailer(span Span, addr int, t Trailer) error {
	raw, err := span.Bytes(addr, TrailerSize)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(raw[offAllocTicks:], t.AllocTicks)
	binary.LittleEndian.PutUint32(raw[offFreeTicks:], t.FreeTicks)
	binary.LittleEndian.PutUint32(raw[offHeapID:], t.HeapID)
	binary.LittleEndian.PutUint32(raw[offTrailerReserved:], 0)
	return nil
}
