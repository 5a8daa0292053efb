package bgzf2

import (
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/vertti/bgzf2/internal/codec"
	"github.com/vertti/bgzf2/internal/sindex"
	"github.com/vertti/bgzf2/internal/wire"
)

var errChecksumMismatch = errors.New("decompressed frame does not match its indexed checksum")

// Read copies up to len(buf) decompressed bytes into buf, loading
// further blocks as needed. It returns 0, nil at a clean end of stream,
// matching spec.md §6's `read(h, buf, n) -> bytes_read (0 at EOF)`
// rather than Go's usual io.EOF sentinel, so repeated calls past EOF are
// trivially idempotent.
func (h *Handle) Read(buf []byte) (int, error) {
	if h.mode != ModeRead {
		return 0, ioErr("read", errNotReader)
	}

	total := 0
	for total < len(buf) {
		if h.uncomp.Pos() >= h.uncomp.Sz() {
			if err := h.nextBlockForRead(); err != nil {
				if errors.Is(err, io.EOF) {
					return total, nil
				}
				return total, err
			}
		}
		n := copy(buf[total:], h.uncomp.Bytes()[h.uncomp.Pos():h.uncomp.Sz()])
		h.uncomp.Advance(n)
		total += n
	}
	return total, nil
}

// ReadZeroCopy returns up to n decompressed bytes as a slice into the
// handle's current block buffer, valid only until the next Read,
// ReadZeroCopy, Peek, GetLine, or Seek call (spec.md §6).
func (h *Handle) ReadZeroCopy(n int) ([]byte, error) {
	if h.mode != ModeRead {
		return nil, ioErr("read", errNotReader)
	}
	if h.uncomp.Pos() >= h.uncomp.Sz() {
		if err := h.nextBlockForRead(); err != nil {
			return nil, err
		}
	}
	avail := h.uncomp.Sz() - h.uncomp.Pos()
	if n > avail {
		n = avail
	}
	start := h.uncomp.Pos()
	h.uncomp.Advance(n)
	return h.uncomp.Slice(start, start+n), nil
}

// Peek returns the next byte without consuming it, or io.EOF if the
// stream has ended (spec.md §6 `peek`, collapsed to idiomatic
// (byte, error) in place of the -1/-2 sentinel return codes).
func (h *Handle) Peek() (byte, error) {
	if h.uncomp.Pos() >= h.uncomp.Sz() {
		if err := h.nextBlockForRead(); err != nil {
			return 0, err
		}
	}
	return h.uncomp.Bytes()[h.uncomp.Pos()], nil
}

func (h *Handle) readByte() (byte, error) {
	if h.uncomp.Pos() >= h.uncomp.Sz() {
		if err := h.nextBlockForRead(); err != nil {
			return 0, err
		}
	}
	b := h.uncomp.Bytes()[h.uncomp.Pos()]
	h.uncomp.Advance(1)
	return b, nil
}

// GetLine appends bytes (including the delimiter, if found) to out until
// delim is read or the stream ends, returning io.EOF if no bytes at all
// were available (spec.md §6 `getline`). When delim is '\n', a preceding
// '\r' is stripped.
func (h *Handle) GetLine(delim byte, out []byte) ([]byte, error) {
	start := len(out)
	for {
		b, err := h.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(out) > start {
				return out, nil
			}
			return out, err
		}
		out = append(out, b)
		if b == delim {
			break
		}
	}
	if delim == '\n' && len(out) >= 2 && out[len(out)-2] == '\r' {
		out[len(out)-2] = out[len(out)-1]
		out = out[:len(out)-1]
	}
	return out, nil
}

// CheckEOF reports whether the stream ends with a valid seekable-index
// trailing magic, without fully loading the index. A failed seek on the
// underlying file, as on a non-seekable stream, is returned as an
// IO-kind *Error; that case is not distinguished from other I/O
// failures.
func (h *Handle) CheckEOF() (bool, error) {
	if h.pool != nil {
		ok, err := h.cmd.requestHasEOF()
		if err != nil {
			return false, ioErr("check_eof", err)
		}
		return ok, nil
	}
	ok, err := sindex.CheckEOF(h.file)
	if err != nil {
		return false, ioErr("check_eof", err)
	}
	return ok, nil
}

// LoadSeekableIndex loads the trailing seekable index if it has not
// already been loaded, required before the first Seek or Query.
func (h *Handle) LoadSeekableIndex() error {
	if h.sindex != nil {
		return nil
	}
	idx, err := sindex.Load(h.file)
	if err != nil {
		return wrapSindexErr("load_seekable_index", err)
	}
	h.sindex = idx
	return nil
}

func wrapSindexErr(op string, err error) *Error {
	switch {
	case errors.Is(err, sindex.ErrNotSeekable):
		return ioErr(op, err)
	case errors.Is(err, sindex.ErrNoIndex):
		return noIndexErr(op, err)
	case errors.Is(err, sindex.ErrFormat):
		return formatErr(op, err)
	case errors.Is(err, sindex.ErrRange):
		return rangeErr(op, err)
	default:
		return ioErr(op, err)
	}
}

// Seek repositions the reader to uncompressed offset u (spec.md §4.7).
// When a thread pool is attached the request is routed through the
// command channel; otherwise it is handled inline.
func (h *Handle) Seek(u uint64) error {
	if h.mode != ModeRead {
		return ioErr("seek", errNotReader)
	}
	if h.pool != nil {
		return h.seekParallel(u)
	}
	return h.seekSync(u)
}

func (h *Handle) seekSync(u uint64) error {
	if err := h.LoadSeekableIndex(); err != nil {
		return err
	}
	target, err := h.sindex.QueryTarget(u)
	if err != nil {
		return wrapSindexErr("seek", err)
	}
	if _, err := h.file.Seek(int64(target.CompPos), io.SeekStart); err != nil { //nolint:gosec // file offsets fit int64 in practice
		return ioErr("seek", err)
	}
	h.readUncompTotal = target.DataUncompPos
	if err := h.loadNextBlockSync(); err != nil {
		return err
	}
	if h.sindex.HasChecksum {
		if err := verifyChecksum(target.DataChecksum, h.uncomp.Bytes()[:h.uncomp.Sz()]); err != nil {
			return err
		}
	}
	h.uncomp.SetPos(int(u - target.DataUncompPos)) //nolint:gosec // within block bounds by construction
	h.logger.Debug("seek", zap.Uint64("offset", u))
	return nil
}

// nextBlockForRead advances to the next decompressed block, dispatching
// to the parallel consumer when a pool is attached.
func (h *Handle) nextBlockForRead() error {
	if h.pool != nil {
		return h.nextBlockParallel()
	}
	return h.loadNextBlockSync()
}

// loadNextBlockSync is the synchronous (no-pool) decode path shared by
// ordinary sequential reads and the seek fallback.
func (h *Handle) loadNextBlockSync() error {
	pos, _ := h.file.Seek(0, io.SeekCurrent)

	compBytes, err := h.nextDataFrame()
	if err != nil {
		return err
	}

	if sz, ok := codec.ContentSize(compBytes); ok && sz > wire.MaxBlockSize {
		return limitsErr("read", nil)
	}

	out, err := codec.Decompress(nil, compBytes)
	if err != nil {
		return codecErr("read", err)
	}
	if uint64(len(out)) > wire.MaxBlockSize {
		return limitsErr("read", nil)
	}

	h.curBlockCompPos = uint64(pos) //nolint:gosec // file offsets fit int64/uint64 in practice
	h.curBlockUncompPos = h.readUncompTotal
	h.readUncompTotal += uint64(len(out))

	h.uncomp.Reset()
	h.uncomp.Append(out)
	h.uncomp.SetPos(0)
	return nil
}

// verifyChecksum checks data against the seekable index entry's stored
// checksum the first time a frame is visited after a seek
// (SPEC_FULL.md §4.1a); sequential streaming never pays this cost.
func verifyChecksum(expected uint32, data []byte) error {
	if uint32(xxhash.Sum64(data)) != expected { //nolint:gosec // truncated per SPEC_FULL.md §4.1a
		return codecErr("read", errChecksumMismatch)
	}
	return nil
}
