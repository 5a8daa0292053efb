package gindex

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddExpandsSameFrameEntry(t *testing.T) {
	t.Parallel()

	idx := New()
	require.NoError(t, idx.Add(0, 10, 20, 100))
	require.NoError(t, idx.Add(0, 5, 15, 100)) // same frame offset: expand, don't append
	require.Len(t, idx.refs[0].entries, 1)
	require.Equal(t, int64(5), idx.refs[0].entries[0].Begin)
	require.Equal(t, int64(20), idx.refs[0].entries[0].End)

	require.NoError(t, idx.Add(0, 200, 250, 300)) // different frame: new entry
	require.Len(t, idx.refs[0].entries, 2)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	t.Parallel()

	idx := New()
	require.NoError(t, idx.Add(0, 10, 20, 0))
	require.NoError(t, idx.Add(0, 200, 250, 1000))
	require.NoError(t, idx.Add(1, 5, 9, 2000))

	var buf bytes.Buffer
	require.NoError(t, idx.Write(&buf))

	loaded, err := LoadAt(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, loaded.refs[0].entries, 2)
	require.Len(t, loaded.refs[1].entries, 1)
	require.Equal(t, int64(10), loaded.refs[0].entries[0].Begin)
	require.Equal(t, uint64(2000), loaded.refs[1].entries[0].FrameOffset)
}

func TestQueryScenario(t *testing.T) {
	t.Parallel()

	idx := New()
	require.NoError(t, idx.Add(0, 10, 20, 0))
	require.NoError(t, idx.Add(0, 200, 250, 1000))
	require.NoError(t, idx.Add(1, 5, 9, 2000))

	off, err := idx.Query(0, 15, 25)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off) // first frame on tid 0

	off, err = idx.Query(1, 0, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), off)

	off, err = idx.Query(2, 0, 100)
	require.NoError(t, err)
	require.Equal(t, PastEnd, off)
}

func TestCoordinateOutOfRangeRejected(t *testing.T) {
	t.Parallel()

	idx := New()
	err := idx.Add(0, 1<<40, 1<<40+10, 0)
	require.ErrorIs(t, err, ErrCoordinateRange)
}

func TestEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := New()
	require.True(t, idx.Empty())
	require.NoError(t, idx.Add(0, 1, 2, 0))
	require.False(t, idx.Empty())
}
