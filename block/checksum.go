package block

import (
	"github.com/cespare/xxhash/v2"
)

// ComputeChecksum digests a block's header fields and trailer bytes, with the
// checksum field itself zeroed out of the input. The digest is a fold of
// xxhash64, which is stable across runs and cheap enough for full-heap scans.
func ComputeChecksum(span Span, info Info) (uint32, error) {
	headerRaw, err := span.Bytes(info.Address, HeaderSize)
	if err != nil {
		return 0, err
	}
	trailerRaw, err := span.Bytes(info.TrailerOffset, TrailerSize)
	if err != nil {
		return 0, err
	}

	var header [HeaderSize]byte
	copy(header[:], headerRaw)
	for i := offChecksum; i < offChecksum+4; i++ {
		header[i] = 0
	}

	digest := xxhash.New()
	_, _ = digest.Write(header[:])
	_, _ = digest.Write(trailerRaw)

	sum := digest.Sum64()
	return uint32(sum ^ (sum >> 32)), nil
}

// VerifyChecksum recomputes the block's digest and compares it against the
// checksum field currently stored in the header. Any failure to read the
// metadata counts as a mismatch.
func VerifyChecksum(span Span, info Info) bool {
	stored, err := span.ReadUint32(info.Address + offChecksum)
	if err != nil {
		return false
	}

	computed, err := ComputeChecksum(span, info)
	if err != nil {
		return false
	}

	return stored == computed
}

// VerifyMagic reports whether the block's magic field holds the expected
// sentinel.
func VerifyMagic(span Span, info Info) bool {
	magic, err := span.ReadUint32(info.Address + offMagic)
	if err != nil {
		return false
	}
	return magic == HeaderMagic
}

// SetChecksum recomputes the block's digest and stores it in the header. This
// is the writer half, called by the owning arena after any metadata update.
func SetChecksum(span Span, info Info) error {
	computed, err := ComputeChecksum(span, info)
	if err != nil {
		return err
	}
	return span.WriteUint32(info.Address+offChecksum, computed)
}
