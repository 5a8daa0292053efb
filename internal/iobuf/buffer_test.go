package iobuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndCursor(t *testing.T) {
	t.Parallel()

	b := New(4)
	n := b.Append([]byte("hello"))
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.Sz())
	require.Equal(t, 0, b.Pos())

	b.Advance(2)
	require.Equal(t, 2, b.Pos())
	require.Equal(t, []byte("llo"), b.Remaining())
}

func TestBufferResetKeepsCapacity(t *testing.T) {
	t.Parallel()

	b := New(16)
	b.Append([]byte("0123456789"))
	cap0 := b.Cap()
	b.Reset()
	require.Equal(t, 0, b.Sz())
	require.Equal(t, 0, b.Pos())
	require.Equal(t, cap0, b.Cap())
}

func TestBufferGrowPreservesContent(t *testing.T) {
	t.Parallel()

	b := New(4)
	b.Append([]byte("ab"))
	b.Grow(1000)
	require.GreaterOrEqual(t, b.Cap(), 1002)
	require.Equal(t, []byte("ab"), b.Bytes())
}

func TestBufferSetSzTruncatesPos(t *testing.T) {
	t.Parallel()

	b := New(16)
	b.Append([]byte("0123456789"))
	b.SetPos(8)
	b.SetSz(4)
	require.Equal(t, 4, b.Pos())
	require.Equal(t, []byte("0123"), b.Bytes())
}

func TestBufferSetPosOutOfRangePanics(t *testing.T) {
	t.Parallel()

	b := New(4)
	b.Append([]byte("ab"))
	require.Panics(t, func() { b.SetPos(3) })
}
