package shadow_test

import (
	"testing"

	"github.com/shadowheap/shadowheap/shadow"
	"github.com/stretchr/testify/require"
)

func TestNewShadow(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)
	require.Equal(t, 64, sh.Extent())

	_, err = shadow.NewShadow(-8)
	require.Error(t, err)

	_, err = shadow.NewShadow(13)
	require.Error(t, err)

	empty, err := shadow.NewShadow(0)
	require.NoError(t, err)
	require.Equal(t, 0, empty.Extent())
}

func TestStateClassification(t *testing.T) {
	sh, err := shadow.NewShadow(128)
	require.NoError(t, err)

	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(0).Kind)

	markers := map[shadow.Marker]shadow.GranuleState{
		shadow.MarkerBlockStart:               {Kind: shadow.GranuleBlockStart},
		shadow.MarkerHeader:                   {Kind: shadow.GranuleHeader},
		shadow.MarkerHeaderPadding:            {Kind: shadow.GranuleHeaderPadding},
		shadow.MarkerBody:                     {Kind: shadow.GranuleBody},
		shadow.MarkerTrailerPadding:           {Kind: shadow.GranuleTrailerPadding},
		shadow.MarkerTrailer:                  {Kind: shadow.GranuleTrailer},
		shadow.MarkerQuarantineStart:          {Kind: shadow.GranuleBlockStart, Quarantined: true},
		shadow.MarkerQuarantineHeader:         {Kind: shadow.GranuleHeader, Quarantined: true},
		shadow.MarkerQuarantineHeaderPadding:  {Kind: shadow.GranuleHeaderPadding, Quarantined: true},
		shadow.MarkerQuarantineBody:           {Kind: shadow.GranuleBody, Quarantined: true},
		shadow.MarkerQuarantineTrailerPadding: {Kind: shadow.GranuleTrailerPadding, Quarantined: true},
		shadow.MarkerQuarantineTrailer:        {Kind: shadow.GranuleTrailer, Quarantined: true},
	}

	for marker, want := range markers {
		require.NoError(t, sh.Poison(0, shadow.GranuleSize, marker))
		require.Equal(t, want, sh.StateAt(0), "marker 0x%02X", byte(marker))

		// Every address within the granule classifies the same way.
		require.Equal(t, want, sh.StateAt(shadow.GranuleSize-1))
	}
}

func TestUnrecognizedMarkersClassifyAsUnallocated(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)

	for _, m := range []shadow.Marker{0x01, 0x55, 0xFF, shadow.MarkerFreed} {
		require.NoError(t, sh.Poison(0, shadow.GranuleSize, m))
		require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(0).Kind)
		require.False(t, sh.IsBlockStart(0))
	}
}

func TestStateAtOutOfRange(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)
	require.NoError(t, sh.Poison(0, 64, shadow.MarkerBody))

	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(-1).Kind)
	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(64).Kind)
	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(1<<30).Kind)
	require.Equal(t, shadow.MarkerUnallocated, sh.MarkerAt(-1))
}

func TestIsBlockStart(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)

	require.NoError(t, sh.Poison(8, shadow.GranuleSize, shadow.MarkerBlockStart))
	require.NoError(t, sh.Poison(16, shadow.GranuleSize, shadow.MarkerQuarantineStart))

	require.False(t, sh.IsBlockStart(0))
	require.True(t, sh.IsBlockStart(8))
	require.True(t, sh.IsBlockStart(16))
	require.False(t, sh.IsBlockStart(24))
}

func TestPoisonValidation(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)

	require.Error(t, sh.Poison(4, 8, shadow.MarkerBody))
	require.Error(t, sh.Poison(0, 12, shadow.MarkerBody))
	require.Error(t, sh.Poison(0, 128, shadow.MarkerBody))
	require.Error(t, sh.Poison(-8, 8, shadow.MarkerBody))
}

func TestClear(t *testing.T) {
	sh, err := shadow.NewShadow(64)
	require.NoError(t, err)

	require.NoError(t, sh.Poison(0, 64, shadow.MarkerBody))
	require.NoError(t, sh.Clear(8, 16))

	require.Equal(t, shadow.GranuleBody, sh.StateAt(0).Kind)
	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(8).Kind)
	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(16).Kind)
	require.Equal(t, shadow.GranuleBody, sh.StateAt(24).Kind)

	sh.ClearAll()
	require.Equal(t, shadow.GranuleUnallocated, sh.StateAt(0).Kind)
}
