package sindex

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type seekBuf struct {
	*bytes.Reader
}

func newSeekBuf(b []byte) *seekBuf { return &seekBuf{bytes.NewReader(b)} }

func buildIndex(hasChecksum bool) *Index {
	idx := New(hasChecksum)
	idx.Add(12, 0, 0)    // header frame (skippable)
	idx.Add(12, 0, 0)    // preface 1
	idx.Add(100, 1000, 1) // data frame 1
	idx.Add(12, 0, 0)     // preface 2
	idx.Add(80, 500, 2)   // data frame 2
	return idx
}

func TestWriteLoadRoundTrip(t *testing.T) {
	t.Parallel()

	for _, hc := range []bool{false, true} {
		idx := buildIndex(hc)
		var buf bytes.Buffer
		require.NoError(t, idx.Write(&buf))

		loaded, err := Load(newSeekBuf(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, hc, loaded.HasChecksum)
		require.Len(t, loaded.Entries, 5)
		require.Equal(t, uint64(1500), loaded.TotalUncompressed())
		require.Equal(t, uint64(12+12+100+12+80), loaded.TotalCompressed())

		// prefix sums
		require.Equal(t, uint64(0), loaded.Entries[0].UncompPos)
		require.Equal(t, uint64(0), loaded.Entries[2].UncompPos) // data frame 1 starts after two zero-sz entries
		require.Equal(t, uint64(1000), loaded.Entries[4].UncompPos)
	}
}

func TestCheckEOF(t *testing.T) {
	t.Parallel()

	idx := buildIndex(false)
	var buf bytes.Buffer
	require.NoError(t, idx.Write(&buf))

	ok, err := CheckEOF(newSeekBuf(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckEOFCorruptMagic(t *testing.T) {
	t.Parallel()

	idx := buildIndex(false)
	var buf bytes.Buffer
	require.NoError(t, idx.Write(&buf))

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xFF

	ok, err := CheckEOF(newSeekBuf(corrupt))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = Load(newSeekBuf(corrupt))
	require.ErrorIs(t, err, ErrNoIndex)
}

func TestQueryFindsDataFrameAndWalksBackToPreface(t *testing.T) {
	t.Parallel()

	idx := buildIndex(false)
	var buf bytes.Buffer
	require.NoError(t, idx.Write(&buf))
	loaded, err := Load(newSeekBuf(buf.Bytes()))
	require.NoError(t, err)

	e, err := loaded.Query(500) // middle of data frame 1
	require.NoError(t, err)
	require.Equal(t, uint32(0), e.UncompSz) // landed on preface 1, not the data entry
	require.Equal(t, uint64(12), e.CompPos) // preface 1 starts right after the header frame

	e, err = loaded.Query(1000) // exact start of data frame 2
	require.NoError(t, err)
	require.Equal(t, uint32(0), e.UncompSz)
	require.Equal(t, uint64(12+12+100), e.CompPos) // preface 2's offset
}

func TestQueryAtTotalEndSucceeds(t *testing.T) {
	t.Parallel()

	idx := buildIndex(false)
	e, err := idx.Query(idx.TotalUncompressed())
	require.NoError(t, err)
	require.Equal(t, uint32(0), e.UncompSz)
}

func TestQueryPastEndFails(t *testing.T) {
	t.Parallel()

	idx := buildIndex(false)
	_, err := idx.Query(idx.TotalUncompressed() + 1)
	require.ErrorIs(t, err, ErrRange)
}

func TestQueryEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := New(false)
	_, err := idx.Query(0)
	require.ErrorIs(t, err, ErrNoIndex)
}

func TestEmptyIndexRoundTrip(t *testing.T) {
	t.Parallel()

	idx := New(false)
	var buf bytes.Buffer
	require.NoError(t, idx.Write(&buf))

	loaded, err := Load(newSeekBuf(buf.Bytes()))
	require.NoError(t, err)
	require.Empty(t, loaded.Entries)
}
