package memutil

import "math"

// ScanStatistics accumulates counters describing a single pass over a tracked
// heap. It is rebuilt from scratch on every scan.
type ScanStatistics struct {
	BlockCount            int
	QuarantinedBlockCount int
	CorruptBlockCount     int
	CorruptRangeCount     int
	BytesScanned          int
}

func (s *ScanStatistics) Clear() {
	s.BlockCount = 0
	s.QuarantinedBlockCount = 0
	s.CorruptBlockCount = 0
	s.CorruptRangeCount = 0
	s.BytesScanned = 0
}

func (s *ScanStatistics) AddBlock(size int, quarantined bool) {
	s.BlockCount++
	s.BytesScanned += size

	if quarantined {
		s.QuarantinedBlockCount++
	}
}

func (s *ScanStatistics) Merge(other *ScanStatistics) {
	s.BlockCount += other.BlockCount
	s.QuarantinedBlockCount += other.QuarantinedBlockCount
	s.CorruptBlockCount += other.CorruptBlockCount
	s.CorruptRangeCount += other.CorruptRangeCount
	s.BytesScanned += other.BytesScanned
}

// DetailedScanStatistics extends ScanStatistics with corrupt-range size extremes.
type DetailedScanStatistics struct {
	ScanStatistics
	CorruptRangeSizeMin int
	CorruptRangeSizeMax int
}

func (s *DetailedScanStatistics) Clear() {
	s.ScanStatistics.Clear()
	s.CorruptRangeSizeMin = math.MaxInt
	s.CorruptRangeSizeMax = 0
}

func (s *DetailedScanStatistics) AddCorruptRange(length, blockCount int) {
	s.CorruptRangeCount++
	s.CorruptBlockCount += blockCount

	if length < s.CorruptRangeSizeMin {
		s.CorruptRangeSizeMin = length
	}

	if length > s.CorruptRangeSizeMax {
		s.CorruptRangeSizeMax = length
	}
}
