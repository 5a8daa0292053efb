package iohandle

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOSHandleReadWriteSeek(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f.bin")

	w, err := OpenFile(path, "w")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := OpenFile(path, "r")
	require.NoError(t, err)
	defer r.Close()

	pos, err := r.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	buf := make([]byte, 5)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf))
}

func TestStreamHandleNotSeekable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	h := WrapStream(nil, &out, nil)
	_, err := h.Seek(0, io.SeekStart)
	require.True(t, errors.Is(err, ErrNotSeekable))
}

func TestStreamHandleReadWrite(t *testing.T) {
	t.Parallel()

	in := bytes.NewReader([]byte("data"))
	var out bytes.Buffer
	h := WrapStream(in, &out, nil)

	buf := make([]byte, 4)
	_, err := h.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "data", string(buf))

	_, err = h.Write([]byte("more"))
	require.NoError(t, err)
	require.Equal(t, "more", out.String())
}
