package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot(id uint64) *Snapshot {
	return &Snapshot{
		ID:                   id,
		CompressionID:        2,
		BlockCount:           64,
		BlockSize:            4096,
		PageSize:             4096,
		CumulativePageWrites: 900,
		LogOffset:            12345,
		LogToggle:            true,
		LogCksum:             [2]uint32{0xAAAA, 0xBBBB},
		AppendPoints:         [4]uint64{1, 2, 3, 4},
		Levels: []LevelSnapshot{
			{
				AgeFlags: 7,
				Left:     SegmentRef{First: 10, Last: 20, Size: 5},
				RHS: []SegmentRef{
					{First: 21, Last: 30, Size: 3},
				},
			},
			{
				AgeFlags: 1,
				Left:     SegmentRef{First: 100, Last: 200, Size: 50},
				Merge: &MergeState{
					Inputs:        []InputCursor{{Page: 5, Cell: 1}, {Page: 6, Cell: 2}},
					SkipCount:     4,
					SplitKeyPage:  9,
					SplitKeyCell:  2,
					OutputPointer: 777,
				},
			},
		},
		BlockRedirects: []BlockRedirect{{From: 3, To: 9}},
		FreeList:       []FreeListEntry{{Block: 11, ID: 42}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSnapshot(5)
	buf, err := Encode(in)
	require.NoError(t, err)
	require.LessOrEqual(t, len(buf), MaxWords*4)

	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.CompressionID, out.CompressionID)
	require.Equal(t, in.AppendPoints, out.AppendPoints)
	require.Len(t, out.Levels, 2)
	require.Equal(t, in.Levels[0].Left, out.Levels[0].Left)
	require.Equal(t, in.Levels[0].RHS, out.Levels[0].RHS)
	require.Nil(t, out.Levels[0].Merge)
	require.NotNil(t, out.Levels[1].Merge)
	require.Equal(t, in.Levels[1].Merge.Inputs, out.Levels[1].Merge.Inputs)
	require.Equal(t, in.Levels[1].Merge.OutputPointer, out.Levels[1].Merge.OutputPointer)
	require.Equal(t, in.BlockRedirects, out.BlockRedirects)
	require.Equal(t, in.FreeList, out.FreeList)

	gotOff, gotToggle := out.LogOffset, out.LogToggle
	require.Equal(t, in.LogOffset, gotOff)
	require.Equal(t, in.LogToggle, gotToggle)
}

func TestDecodeRejectsFlippedByte(t *testing.T) {
	buf, err := Encode(sampleSnapshot(1))
	require.NoError(t, err)
	buf[10] ^= 0xFF
	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecodeAcceptsZeroPaddedPage(t *testing.T) {
	buf, err := Encode(sampleSnapshot(9))
	require.NoError(t, err)
	page := make([]byte, 4096)
	copy(page, buf)

	out, err := Decode(page)
	require.NoError(t, err)
	require.EqualValues(t, 9, out.ID)
}

func TestLogPointerRoundTrip(t *testing.T) {
	v := EncodeLogPointer(999999, true)
	off, toggle := DecodeLogPointer(v)
	require.EqualValues(t, 999999, off)
	require.True(t, toggle)

	v2 := EncodeLogPointer(0, false)
	off2, toggle2 := DecodeLogPointer(v2)
	require.EqualValues(t, 0, off2)
	require.False(t, toggle2)
}

func TestEncodeRejectsOverflowingLevelList(t *testing.T) {
	snap := sampleSnapshot(1)
	for i := 0; i < MaxWords; i++ {
		snap.Levels = append(snap.Levels, LevelSnapshot{Left: SegmentRef{First: uint64(i)}})
	}
	_, err := Encode(snap)
	require.Error(t, err)
}
