package bgzf2

import (
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/vertti/bgzf2/internal/codec"
	"github.com/vertti/bgzf2/internal/iobuf"
	"github.com/vertti/bgzf2/internal/wire"
)

// SetBlockSize flushes any buffered data, then resizes the uncompressed
// buffer to sz (spec.md §4.2). sz must not exceed MaxBlockSize.
func (h *Handle) SetBlockSize(sz uint32) error {
	if sz == 0 || sz > wire.MaxBlockSize {
		return limitsErr("set_block_size", nil)
	}
	if err := h.Flush(); err != nil {
		return err
	}
	h.blockSize = sz
	h.uncomp = iobuf.New(int(sz))
	return nil
}

// Write appends bytes to the current uncompressed buffer. When canSplit
// is false the write either fits within block boundaries (flushing a
// full buffer first if needed) or, when len(bytes) >= blockSize, is
// emitted as its own standalone frame. When canSplit is true the bytes
// may straddle any number of block boundaries. It returns the number of
// bytes consumed; a short write only happens alongside a non-nil error.
func (h *Handle) Write(data []byte, canSplit bool) (int, error) {
	if h.mode != ModeWrite {
		return 0, ioErr("write", errNotWriter)
	}
	if err := h.checkLatched(); err != nil {
		return 0, err
	}
	if canSplit {
		return h.writeSplit(data)
	}
	return h.writeNoSplit(data)
}

func (h *Handle) writeSplit(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		room := int(h.blockSize) - h.uncomp.Pos()
		if room <= 0 {
			if err := h.Flush(); err != nil {
				return written, err
			}
			room = int(h.blockSize)
		}
		n := len(data)
		if n > room {
			n = room
		}
		h.uncomp.Append(data[:n])
		h.uncomp.Advance(n)
		data = data[n:]
		written += n
		if h.uncomp.Pos() >= int(h.blockSize) {
			if err := h.Flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (h *Handle) writeNoSplit(data []byte) (int, error) {
	if uint32(len(data)) >= h.blockSize { //nolint:gosec // blockSize bounded by MaxBlockSize
		if h.uncomp.Pos() > 0 {
			if err := h.Flush(); err != nil {
				return 0, err
			}
		}
		if err := h.emitBlock(data); err != nil {
			return 0, err
		}
		return len(data), nil
	}

	if h.uncomp.Pos()+len(data) > int(h.blockSize) {
		if err := h.Flush(); err != nil {
			return 0, err
		}
	}
	h.uncomp.Append(data)
	h.uncomp.Advance(len(data))
	return len(data), nil
}

// FlushTry flushes now if appending size more bytes would overflow the
// current block; otherwise it records the current position as
// last_flush_try (spec.md §4.2). IdxAdd does not read this value:
// genomic index entries carry the start offset of the frame being
// written, not a position inside it.
func (h *Handle) FlushTry(size int) error {
	if h.uncomp.Pos()+size > int(h.blockSize) {
		return h.Flush()
	}
	h.lastFlushTry = h.uncomp.Pos()
	return nil
}

// Flush emits whatever is currently buffered as a preface + data frame
// pair, regardless of whether the target block size was reached
// (spec.md §4.2). A Flush on an empty buffer is a no-op.
func (h *Handle) Flush() error {
	if err := h.checkLatched(); err != nil {
		return err
	}
	if h.uncomp.Pos() == 0 {
		return nil
	}
	data := append([]byte(nil), h.uncomp.Bytes()[:h.uncomp.Pos()]...)
	err := h.emitBlock(data)
	h.uncomp.Reset()
	h.lastFlushTry = 0
	return err
}

// emitBlock dispatches data to the parallel pipeline when one is
// attached, or compresses and writes it synchronously otherwise
// (spec.md §9 "single-threaded fallback").
func (h *Handle) emitBlock(data []byte) error {
	if h.pool != nil {
		return h.dispatchEncode(data)
	}
	return h.emitBlockSync(data)
}

func (h *Handle) ensureHeaderWritten(firstBlockData []byte) error {
	if h.headerWritten {
		return nil
	}
	if err := wire.WriteHeaderFrame(h.file, firstBlockData); err != nil {
		return ioErr("flush", err)
	}
	preview := firstBlockData
	if len(preview) > 16 {
		preview = preview[:16]
	}
	headerFrameSize := uint32(8 + 4 + len(preview)) //nolint:gosec // bounded preview length
	h.sindex.Add(headerFrameSize, 0, 0)
	h.headerWritten = true
	return nil
}

// emitBlockSync is the synchronous (no-pool) compress-and-write path
// shared by Flush and the standalone-frame branch of Write.
func (h *Handle) emitBlockSync(data []byte) error {
	if err := h.ensureHeaderWritten(data); err != nil {
		return err
	}

	comp, err := codec.Compress(nil, data, h.level)
	if err != nil {
		return codecErr("flush", err)
	}

	if err := wire.WritePrefaceFrame(h.file, uint32(len(comp))); err != nil { //nolint:gosec // compress-bound checked
		return ioErr("flush", err)
	}
	if _, err := h.file.Write(comp); err != nil {
		return ioErr("flush", err)
	}

	var checksum uint32
	if h.checksums {
		checksum = uint32(xxhash.Sum64(data)) //nolint:gosec // truncated per SPEC_FULL.md §4.1a
	}
	h.sindex.Add(wire.PrefaceFrameSize, 0, 0)
	h.sindex.Add(uint32(len(comp)), uint32(len(data)), checksum) //nolint:gosec // bounded by MaxBlockSize
	h.framePos += uint64(len(data))
	h.logger.Debug("flush", zap.Int("uncompressed", len(data)), zap.Int("compressed", len(comp)))
	return nil
}

// closeWriter implements spec.md §4.2's close invariant: flush, drain
// any parallel pipeline, emit the genomic index if non-empty, then the
// seekable index, in that order.
func (h *Handle) closeWriter() error {
	if h.pool != nil {
		if err := h.closeParallelEncoder(); err != nil {
			return err
		}
	} else if err := h.Flush(); err != nil {
		return err
	}

	if err := h.checkLatched(); err != nil {
		return err
	}

	if !h.gindex.Empty() {
		if err := h.gindex.Write(h.file); err != nil {
			return ioErr("close", err)
		}
	}
	if err := h.sindex.Write(h.file); err != nil {
		return ioErr("close", err)
	}
	return h.file.Flush()
}
