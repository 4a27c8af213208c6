// Package heap provides the tracked arena that owns block memory and its
// shadow metadata. The arena is the writer side of the system: it lays out
// headers and trailers, poisons shadow granules, and maintains checksums. The
// scan side only ever sees the arena through its read-only span and shadow
// accessor.
package heap

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/shadowheap/shadowheap/block"
	"github.com/shadowheap/shadowheap/internal/utils"
	"github.com/shadowheap/shadowheap/memutil"
	"github.com/shadowheap/shadowheap/shadow"
	"github.com/shadowheap/shadowheap/stackcache"
)

// CreateInfo configures a new Arena.
type CreateInfo struct {
	// Size is the arena extent in bytes, rounded up to a granule multiple.
	Size int
	// HeapID is recorded in every block trailer.
	HeapID uint32
	// UseMutex guards mutations for concurrent allocators. Scans take no locks
	// regardless; they expect mutators to be quiesced.
	UseMutex bool
	// Logger receives debug output; nil discards it.
	Logger *slog.Logger
	// StackCache records allocation and free stacks when present.
	StackCache *stackcache.Cache
}

// Arena is one contiguous tracked heap region with parallel shadow metadata.
// Blocks are laid out back to back: fixed header, granule-aligned body region,
// fixed trailer.
type Arena struct {
	data   []byte
	span   block.Span
	sh     *shadow.Shadow
	logger *slog.Logger
	stacks *stackcache.Cache

	mutex  utils.OptionalMutex
	heapID uint32
	next   int
	ticks  uint32
}

func New(info CreateInfo) (*Arena, error) {
	if info.Size <= 0 {
		return nil, errors.Newf("arena size %d must be positive", info.Size)
	}

	size := memutil.AlignUp(info.Size, shadow.GranuleSize)
	sh, err := shadow.NewShadow(size)
	if err != nil {
		return nil, err
	}

	logger := info.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	data := make([]byte, size)
	return &Arena{
		data:   data,
		span:   block.NewSpan(data),
		sh:     sh,
		logger: logger,
		stacks: info.StackCache,
		mutex: utils.OptionalMutex{
			UseMutex: info.UseMutex,
		},
		heapID: info.HeapID,
	}, nil
}

// Span returns the raw byte view of the arena.
func (a *Arena) Span() block.Span { return a.span }

// Shadow returns the read-only shadow accessor covering the arena.
func (a *Arena) Shadow() shadow.Accessor { return a.sh }

// Size returns the arena extent in bytes.
func (a *Arena) Size() int { return len(a.data) }

// HeapID returns the id recorded in block trailers.
func (a *Arena) HeapID() uint32 { return a.heapID }

func (a *Arena) tick() uint32 {
	a.ticks++
	return a.ticks
}

func (a *Arena) capture() uint32 {
	if a.stacks == nil {
		return uint32(stackcache.NoTrace)
	}
	return uint32(a.stacks.Capture(2))
}

// Allocate lays out a new block with a body of bodySize bytes and returns the
// header address. The body region is granule-aligned; sub-granule slack sits
// between the body bytes and the trailer.
func (a *Arena) Allocate(bodySize int) (int, error) {
	a.logger.Debug("Arena::Allocate", slog.Int("BodySize", bodySize))

	if bodySize < 0 {
		return 0, errors.Newf("body size %d must be non-negative", bodySize)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	bodyRegion := memutil.AlignUp(bodySize, shadow.GranuleSize)
	headerAddr := a.next
	totalSize := block.HeaderSize + bodyRegion + block.TrailerSize
	if headerAddr+totalSize > len(a.data) {
		return 0, errors.Newf("arena exhausted: %d bytes requested at offset %d of %d", totalSize, headerAddr, len(a.data))
	}

	bodyOffset := headerAddr + block.HeaderSize
	trailerOffset := bodyOffset + bodyRegion

	err := block.WriteHeader(a.span, headerAddr, block.Header{
		Magic:      block.HeaderMagic,
		State:      block.StateAllocated,
		BodySize:   uint32(bodySize),
		AllocStack: a.capture(),
	})
	if err != nil {
		return 0, err
	}

	err = block.WriteTrailer(a.span, trailerOffset, block.Trailer{
		AllocTicks: a.tick(),
		HeapID:     a.heapID,
	})
	if err != nil {
		return 0, err
	}

	if err = a.sh.Poison(headerAddr, shadow.GranuleSize, shadow.MarkerBlockStart); err != nil {
		return 0, err
	}
	if err = a.sh.Poison(headerAddr+shadow.GranuleSize, block.HeaderSize-shadow.GranuleSize, shadow.MarkerHeader); err != nil {
		return 0, err
	}
	if bodyRegion > 0 {
		if err = a.sh.Poison(bodyOffset, bodyRegion, shadow.MarkerBody); err != nil {
			return 0, err
		}
	}
	if err = a.sh.Poison(trailerOffset, block.TrailerSize, shadow.MarkerTrailer); err != nil {
		return 0, err
	}

	info, err := block.ParseHeader(a.span, a.sh, headerAddr)
	if err != nil {
		return 0, errors.Wrapf(err, "freshly laid out block at %d does not reconstruct", headerAddr)
	}
	if err = block.SetChecksum(a.span, info); err != nil {
		return 0, err
	}

	a.next = headerAddr + totalSize
	memutil.DebugValidate(a)
	return headerAddr, nil
}

// Quarantine retires the live block at addr without releasing it, so that
// use-after-free writes into its body remain attributable. The block stays in
// every corruption scan.
func (a *Arena) Quarantine(addr int) error {
	a.logger.Debug("Arena::Quarantine", slog.Int("Address", addr))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	info, err := block.ParseHeader(a.span, a.sh, addr)
	if err != nil {
		return err
	}
	if info.Quarantined || info.Header.State != block.StateAllocated {
		return errors.Newf("block at %d is %s, not allocated", addr, info.Header.State)
	}

	header := info.Header
	header.State = block.StateQuarantined
	header.FreeStack = a.capture()
	if err = block.WriteHeader(a.span, addr, header); err != nil {
		return err
	}

	trailer, err := block.ReadTrailer(a.span, info.TrailerOffset)
	if err != nil {
		return err
	}
	trailer.FreeTicks = a.tick()
	if err = block.WriteTrailer(a.span, info.TrailerOffset, trailer); err != nil {
		return err
	}

	if err = a.sh.Poison(addr, shadow.GranuleSize, shadow.MarkerQuarantineStart); err != nil {
		return err
	}
	if err = a.sh.Poison(addr+shadow.GranuleSize, block.HeaderSize-shadow.GranuleSize, shadow.MarkerQuarantineHeader); err != nil {
		return err
	}
	if info.BodySize > 0 {
		if err = a.sh.Poison(info.BodyOffset, info.BodySize, shadow.MarkerQuarantineBody); err != nil {
			return err
		}
	}
	if err = a.sh.Poison(info.TrailerOffset, block.TrailerSize, shadow.MarkerQuarantineTrailer); err != nil {
		return err
	}

	// The state and free-stack fields changed, so the digest must follow.
	if err = block.SetChecksum(a.span, info); err != nil {
		return err
	}

	memutil.DebugValidate(a)
	return nil
}

// Release evicts the block at addr from tracking entirely. Its granules become
// freed and the walker no longer yields it.
func (a *Arena) Release(addr int) error {
	a.logger.Debug("Arena::Release", slog.Int("Address", addr))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	info, err := block.ParseHeader(a.span, a.sh, addr)
	if err != nil {
		return err
	}

	header := info.Header
	header.State = block.StateFreed
	if err = block.WriteHeader(a.span, addr, header); err != nil {
		return err
	}

	if info.BodySize > 0 {
		body, bodyErr := a.span.Bytes(info.BodyOffset, info.BodySize)
		if bodyErr != nil {
			return bodyErr
		}
		memutil.DebugFill(body)
	}

	if err = a.sh.Poison(info.Address, info.Size, shadow.MarkerFreed); err != nil {
		return err
	}

	memutil.DebugValidate(a)
	return nil
}

// BodyBytes returns the writable body bytes of the block at addr, as counted
// at allocation time.
func (a *Arena) BodyBytes(addr int) ([]byte, error) {
	info, err := block.ParseHeader(a.span, a.sh, addr)
	if err != nil {
		return nil, err
	}
	return a.span.Bytes(info.BodyOffset, int(info.Header.BodySize))
}

// Reset clears all blocks, shadow state and the allocation cursor.
func (a *Arena) Reset() {
	a.logger.Debug("Arena::Reset")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i := range a.data {
		a.data[i] = 0
	}
	a.sh.ClearAll()
	a.next = 0
	a.ticks = 0
}

// Validate checks the structural invariants of the arena: blocks reconstruct
// back to back below the allocation cursor and their header states agree with
// their shadow marker family. Corruption of magic or checksum fields is the
// checker's concern, not Validate's.
func (a *Arena) Validate() error {
	cursor := 0
	for cursor < a.next {
		state := a.sh.StateAt(cursor)
		if state.Kind == shadow.GranuleUnallocated {
			cursor += shadow.GranuleSize
			continue
		}

		info, err := block.ParseHeader(a.span, a.sh, cursor)
		if err != nil {
			return errors.Wrapf(err, "granule at %d is marked %s but no block reconstructs there", cursor, state.Kind)
		}

		if info.End() > a.next {
			return errors.Newf("block at %d ends at %d, past the allocation cursor %d", info.Address, info.End(), a.next)
		}

		if info.Quarantined && info.Header.State != block.StateQuarantined {
			return errors.Newf("block at %d has quarantine shadow markers but header state %s", info.Address, info.Header.State)
		}
		if !info.Quarantined && info.Header.State != block.StateAllocated {
			return errors.Newf("block at %d has live shadow markers but header state %s", info.Address, info.Header.State)
		}

		cursor = info.End()
	}

	return nil
}
