// Package iohandle is the abstract file handle collaborator named by
// spec.md §1: positioned read, positioned seek (which may fail on a
// non-seekable stream), append-style write, flush, and close. It
// generalizes the reader/writer construction in
// cmd/fqpack/main.go's openInput/openOutput into an interface so the
// non-seekable-pipe path (spec.md §4.3's -2 return code) can be
// exercised in tests without a real OS pipe.
package iohandle

import (
	"errors"
	"io"
	"os"
)

// ErrNotSeekable is returned by Seek on a handle backed by a stream
// that does not support positioned access (a pipe, a socket, stdin).
var ErrNotSeekable = errors.New("iohandle: stream is not seekable")

// Handle is the file-like collaborator the container reads from and
// writes to. Write always appends at the current position, matching
// the append-style write spec.md requires. Seek may return
// ErrNotSeekable.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	Flush() error
	Close() error
}

// osHandle backs Handle with a real *os.File.
type osHandle struct {
	f *os.File
}

// OpenFile opens path for read or write per mode ("r" opens existing
// read-only; "w" creates/truncates for writing) and wraps it as a
// Handle.
func OpenFile(path string, mode string) (Handle, error) {
	switch mode {
	case "r":
		f, err := os.Open(path) //nolint:gosec // caller-specified path is the whole point of the API
		if err != nil {
			return nil, err
		}
		return &osHandle{f: f}, nil
	case "w":
		f, err := os.Create(path) //nolint:gosec // caller-specified path is the whole point of the API
		if err != nil {
			return nil, err
		}
		return &osHandle{f: f}, nil
	default:
		return nil, errors.New("iohandle: mode must be \"r\" or \"w\"")
	}
}

// Wrap adapts an already-open *os.File.
func Wrap(f *os.File) Handle { return &osHandle{f: f} }

func (h *osHandle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *osHandle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *osHandle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}
func (h *osHandle) Flush() error { return h.f.Sync() }
func (h *osHandle) Close() error { return h.f.Close() }

// streamHandle backs Handle with a plain io.Reader/io.Writer that
// cannot seek, such as a pipe, socket, or os.Stdin/os.Stdout.
type streamHandle struct {
	r io.Reader
	w io.Writer
	c io.Closer
}

// WrapStream adapts a non-seekable stream. Either r or w may be nil
// depending on direction; c, if non-nil, is closed by Close.
func WrapStream(r io.Reader, w io.Writer, c io.Closer) Handle {
	return &streamHandle{r: r, w: w, c: c}
}

func (h *streamHandle) Read(p []byte) (int, error) {
	if h.r == nil {
		return 0, errors.New("iohandle: stream not opened for reading")
	}
	return h.r.Read(p)
}

func (h *streamHandle) Write(p []byte) (int, error) {
	if h.w == nil {
		return 0, errors.New("iohandle: stream not opened for writing")
	}
	return h.w.Write(p)
}

func (h *streamHandle) Seek(int64, int) (int64, error) {
	return 0, ErrNotSeekable
}

func (h *streamHandle) Flush() error {
	if f, ok := h.w.(interface{ Sync() error }); ok {
		return f.Sync()
	}
	return nil
}

func (h *streamHandle) Close() error {
	if h.c != nil {
		return h.c.Close()
	}
	return nil
}
