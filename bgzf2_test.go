package bgzf2_test

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertti/bgzf2"
)

func writeAll(t *testing.T, path string, data []byte, blockSize uint32, workers int) {
	t.Helper()
	h, err := bgzf2.Open(path, "w", bgzf2.WithBlockSize(blockSize))
	require.NoError(t, err)
	if workers > 0 {
		require.NoError(t, h.AttachThreadPool(workers))
	}

	for off := 0; off < len(data); {
		n, err := h.Write(data[off:], true)
		require.NoError(t, err)
		off += n
	}
	require.NoError(t, h.Close())
}

func readAll(t *testing.T, path string, workers int) []byte {
	t.Helper()
	h, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	if workers > 0 {
		require.NoError(t, h.AttachThreadPool(workers))
	}
	defer h.Close() //nolint:errcheck // test cleanup

	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := h.Read(buf)
		out.Write(buf[:n])
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	return out.Bytes()
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test fixture, not security-sensitive
	buf := make([]byte, n)
	_, err := r.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestRoundTripSequential(t *testing.T) {
	t.Parallel()

	data := randomData(t, 500_000)
	path := filepath.Join(t.TempDir(), "seq.bgz2")

	writeAll(t, path, data, 64_000, 0)
	got := readAll(t, path, 0)
	require.Equal(t, data, got)
}

func TestRoundTripParallel(t *testing.T) {
	t.Parallel()

	data := randomData(t, 800_000)
	path := filepath.Join(t.TempDir(), "par.bgz2")

	writeAll(t, path, data, 32_000, 4)
	got := readAll(t, path, 4)
	require.Equal(t, data, got)
}

func TestParallelMatchesSequentialOutput(t *testing.T) {
	t.Parallel()

	data := randomData(t, 300_000)
	seqPath := filepath.Join(t.TempDir(), "seq.bgz2")
	parPath := filepath.Join(t.TempDir(), "par.bgz2")

	writeAll(t, seqPath, data, 50_000, 0)
	writeAll(t, parPath, data, 50_000, 3)

	require.Equal(t, readAll(t, seqPath, 0), readAll(t, parPath, 3))
}

func TestSeekExactness(t *testing.T) {
	t.Parallel()

	data := randomData(t, 400_000)
	path := filepath.Join(t.TempDir(), "seek.bgz2")
	writeAll(t, path, data, 40_000, 0)

	h, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck // test cleanup

	for _, off := range []uint64{0, 1, 39_999, 40_000, 40_001, 123_456, uint64(len(data) - 1)} {
		require.NoError(t, h.Seek(off))
		b, err := h.Peek()
		require.NoError(t, err)
		require.Equal(t, data[off], b)
	}
}

func TestSeekExactnessParallel(t *testing.T) {
	t.Parallel()

	data := randomData(t, 400_000)
	path := filepath.Join(t.TempDir(), "seekpar.bgz2")
	writeAll(t, path, data, 40_000, 0)

	h, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	require.NoError(t, h.AttachThreadPool(3))
	defer h.Close() //nolint:errcheck // test cleanup

	for _, off := range []uint64{0, 1, 39_999, 40_000, 123_456, uint64(len(data) - 1)} {
		require.NoError(t, h.Seek(off))
		b, err := h.Peek()
		require.NoError(t, err)
		require.Equal(t, data[off], b)
	}
}

func TestEntryChecksumVerifiedOnSeek(t *testing.T) {
	t.Parallel()

	data := randomData(t, 200_000)
	path := filepath.Join(t.TempDir(), "checksum.bgz2")

	h, err := bgzf2.Open(path, "w", bgzf2.WithBlockSize(20_000), bgzf2.WithEntryChecksums(true))
	require.NoError(t, err)
	for off := 0; off < len(data); {
		n, err := h.Write(data[off:], true)
		require.NoError(t, err)
		off += n
	}
	require.NoError(t, h.Close())

	r, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // test cleanup

	require.NoError(t, r.Seek(50_000))
	b, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, data[50_000], b)
}

func TestCheckEOF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eof.bgz2")
	writeAll(t, path, []byte("hello world"), 1024, 0)

	h, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck // test cleanup

	ok, err := h.CheckEOF()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGenomicIndexRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gidx.bgz2")
	h, err := bgzf2.Open(path, "w", bgzf2.WithBlockSize(1000))
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte{'A'}, 1000)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.IdxAdd(int32(i%2), int64(i*100), int64(i*100+50)))
		_, err := h.Write(chunk, true)
		require.NoError(t, err)
	}
	require.NoError(t, h.Close())

	r, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // test cleanup

	off, err := r.Query(0, 0, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
}

func TestOffsetAdvancesWhileReading(t *testing.T) {
	t.Parallel()

	data := randomData(t, 150_000)
	path := filepath.Join(t.TempDir(), "offset.bgz2")
	writeAll(t, path, data, 30_000, 0)

	h, err := bgzf2.Open(path, "r")
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck // test cleanup

	buf := make([]byte, 60_000)
	n, err := h.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 60_000, n)

	off := h.Offset()
	require.Equal(t, uint64(60_000), off.UncompressedPos)
}
