package checker

// CorruptRange describes one maximal run of address-adjacent corrupted blocks.
type CorruptRange struct {
	// Address is the header offset of the first corrupted block in the run.
	Address int
	// Length spans from Address to the end of the run's last block.
	Length int
	// BlockCount is the number of corrupted blocks merged into the run.
	BlockCount int
}

// rangeTracker is the two-state machine that merges corrupted blocks into
// ranges: either no range is open, or one open range is being extended. It
// deals only in begin/end offsets, not in block views.
type rangeTracker struct {
	open   bool
	start  int
	end    int
	blocks int
}

// observeCorrupt records a corrupted block spanning [begin, end). The block
// extends the open range when it starts exactly where the previous corrupted
// block ended; otherwise the open range is closed onto dst and a new one opens.
func (t *rangeTracker) observeCorrupt(begin, end int, dst *[]CorruptRange) {
	if t.open && begin == t.end {
		t.end = end
		t.blocks++
		return
	}

	t.flush(dst)
	t.open = true
	t.start = begin
	t.end = end
	t.blocks = 1
}

// observeValid records a valid block, which closes any open range.
func (t *rangeTracker) observeValid(dst *[]CorruptRange) {
	t.flush(dst)
}

// flush closes the open range, if any, onto dst.
func (t *rangeTracker) flush(dst *[]CorruptRange) {
	if !t.open {
		return
	}

	*dst = append(*dst, CorruptRange{
		Address:    t.start,
		Length:     t.end - t.start,
		BlockCount: t.blocks,
	})
	t.open = false
	t.blocks = 0
}
