package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	t.Parallel()

	for _, level := range []int{1, 5, 11, 19} {
		src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
		comp, err := Compress(nil, src, level)
		require.NoError(t, err)

		out, err := Decompress(nil, comp)
		require.NoError(t, err)
		require.Equal(t, src, out)
	}
}

func TestContentSizeKnown(t *testing.T) {
	t.Parallel()

	src := []byte("hello, world!")
	comp, err := Compress(nil, src, 5)
	require.NoError(t, err)

	sz, ok := ContentSize(comp)
	require.True(t, ok)
	require.Equal(t, uint64(len(src)), sz)
}

func TestStreamDecompressKnownSize(t *testing.T) {
	t.Parallel()

	src := make([]byte, 50000)
	rand.New(rand.NewSource(1)).Read(src) //nolint:gosec // test fixture only
	comp, err := Compress(nil, src, 3)
	require.NoError(t, err)

	out, err := StreamDecompressKnownSize(comp, uint64(len(src)))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestStreamDecompressKnownSizeMismatch(t *testing.T) {
	t.Parallel()

	src := []byte("some data")
	comp, err := Compress(nil, src, 5)
	require.NoError(t, err)

	_, err = StreamDecompressKnownSize(comp, uint64(len(src)+1))
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestStreamDecompressUnknownSize(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("abcdefgh"), 10000)
	comp, err := Compress(nil, src, 5)
	require.NoError(t, err)

	out, err := StreamDecompressUnknownSize(comp)
	require.NoError(t, err)
	require.Equal(t, src, out)
}
