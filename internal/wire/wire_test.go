package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFrameHeader(&buf, MagicSeekableIndex, 42))

	h, err := ReadFrameHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, MagicSeekableIndex, h.Magic)
	require.Equal(t, uint32(42), h.Length)
}

func TestPrefaceFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WritePrefaceFrame(&buf, 12345))
	require.Equal(t, PrefaceFrameSize, buf.Len())

	h, err := ReadFrameHeader(&buf)
	require.NoError(t, err)
	require.True(t, IsPreface(h))

	sz, err := ReadPrefacePayload(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(12345), sz)
}

func TestIsPrefaceRequiresExactLength(t *testing.T) {
	t.Parallel()

	require.False(t, IsPreface(FrameHeader{Magic: MagicPreface, Length: 5}))
	require.False(t, IsPreface(FrameHeader{Magic: MagicHeader, Length: 4}))
	require.True(t, IsPreface(FrameHeader{Magic: MagicPreface, Length: 4}))
}

func TestIsSkippableRange(t *testing.T) {
	t.Parallel()

	require.True(t, IsSkippable(MagicPreface))
	require.True(t, IsSkippable(MagicHeader))
	require.True(t, IsSkippable(MagicSeekableIndex))
	require.True(t, IsSkippable(0x184D2A55)) // unknown, but within range
	require.False(t, IsSkippable(MagicZstdData))
	require.False(t, IsSkippable(0x184D2A4F))
	require.False(t, IsSkippable(0x184D2A60))
}

func TestHeaderFramePreviewTruncatedTo16(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	longPreview := bytes.Repeat([]byte{'x'}, 64)
	require.NoError(t, WriteHeaderFrame(&buf, longPreview))

	h, err := ReadFrameHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, MagicHeader, h.Magic)
	require.Equal(t, uint32(4+16), h.Length)
}
