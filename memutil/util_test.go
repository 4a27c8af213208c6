package memutil_test

import (
	"math"
	"testing"

	"github.com/shadowheap/shadowheap/memutil"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, memutil.AlignUp(0, 8))
	require.Equal(t, 8, memutil.AlignUp(1, 8))
	require.Equal(t, 8, memutil.AlignUp(8, 8))
	require.Equal(t, 104, memutil.AlignUp(100, 8))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, memutil.AlignDown(7, 8))
	require.Equal(t, 8, memutil.AlignDown(8, 8))
	require.Equal(t, 96, memutil.AlignDown(100, 8))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutil.CheckPow2(uint(8), "value"))
	require.NoError(t, memutil.CheckPow2(uint(1), "value"))

	err := memutil.CheckPow2(uint(6), "value")
	require.ErrorIs(t, err, memutil.PowerOfTwoError)
}

func TestScanStatistics(t *testing.T) {
	var stats memutil.ScanStatistics
	stats.Clear()

	stats.AddBlock(148, false)
	stats.AddBlock(148, true)

	require.Equal(t, 2, stats.BlockCount)
	require.Equal(t, 1, stats.QuarantinedBlockCount)
	require.Equal(t, 296, stats.BytesScanned)

	var other memutil.ScanStatistics
	other.AddBlock(48, false)
	stats.Merge(&other)
	require.Equal(t, 3, stats.BlockCount)
	require.Equal(t, 344, stats.BytesScanned)
}

func TestDetailedScanStatistics(t *testing.T) {
	var stats memutil.DetailedScanStatistics
	stats.Clear()
	require.Equal(t, math.MaxInt, stats.CorruptRangeSizeMin)

	stats.AddCorruptRange(296, 2)
	stats.AddCorruptRange(148, 1)

	require.Equal(t, 2, stats.CorruptRangeCount)
	require.Equal(t, 3, stats.CorruptBlockCount)
	require.Equal(t, 148, stats.CorruptRangeSizeMin)
	require.Equal(t, 296, stats.CorruptRangeSizeMax)
}
