package bgzf2

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/vertti/bgzf2/internal/gindex"
	"github.com/vertti/bgzf2/internal/wire"
)

// IdxAdd records that a genomic range on reference tid begins in the
// frame currently being written (spec.md §4.4 idx_add). tid follows the
// caller's -1-for-unmapped convention, shifted internally to a
// non-negative key before reaching internal/gindex.
func (h *Handle) IdxAdd(tid int32, begin, end int64) error {
	if h.mode != ModeWrite {
		return ioErr("idx_add", errNotWriter)
	}
	if err := h.gindex.Add(shiftTid(tid), begin, end, h.framePos); err != nil {
		return wrapGindexErr("idx_add", err)
	}
	return nil
}

// Query returns the uncompressed offset of the frame the genomic index
// says contains (tid, begin, end), or gindex.PastEnd if no entry at or
// after it exists (spec.md §4.4 idx_query). The index is loaded from
// the trailing frames on first use.
func (h *Handle) Query(tid int32, begin, end int64) (uint64, error) {
	if h.mode != ModeRead {
		return 0, ioErr("idx_query", errNotReader)
	}
	if err := h.ensureGenomicIndexLoaded(); err != nil {
		return 0, err
	}
	off, err := h.gindex.Query(shiftTid(tid), begin, end)
	if err != nil {
		return 0, wrapGindexErr("idx_query", err)
	}
	return off, nil
}

func shiftTid(tid int32) uint32 {
	return uint32(tid + 1) //nolint:gosec // tid is a small reference id; -1 (unmapped) shifts to 0
}

func wrapGindexErr(op string, err error) *Error {
	switch {
	case errors.Is(err, gindex.ErrCoordinateRange):
		return rangeErr(op, err)
	case errors.Is(err, gindex.ErrFormat):
		return formatErr(op, err)
	default:
		return ioErr(op, err)
	}
}

// ensureGenomicIndexLoaded loads the genomic index frame the first time
// Query needs it, deriving its location from the seekable
// index's FrameStart: when a genomic index is present it sits
// immediately before the seekable index, with its own 8-byte
// back-pointer footer filling the gap between the two.
func (h *Handle) ensureGenomicIndexLoaded() error {
	if h.gindexLoaded {
		return nil
	}
	if err := h.LoadSeekableIndex(); err != nil {
		return err
	}
	idx, err := h.loadGenomicIndex()
	if err != nil {
		return err
	}
	h.gindex = idx
	h.gindexLoaded = true
	return nil
}

func (h *Handle) loadGenomicIndex() (idx *gindex.Index, err error) {
	if h.sindex.FrameStart < 8 {
		return gindex.New(), nil
	}

	// Restore the position LoadSeekableIndex (or earlier reading) left us
	// at, rather than mid-index, on every return path, so whichever
	// operation runs next continues from there.
	resume, err := h.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ioErr("idx_query", err)
	}
	defer func() {
		if _, serr := h.file.Seek(resume, io.SeekStart); serr != nil && err == nil {
			idx, err = nil, ioErr("idx_query", serr)
		}
	}()

	if _, err := h.file.Seek(int64(h.sindex.FrameStart)-8, io.SeekStart); err != nil { //nolint:gosec // file offsets fit int64 in practice
		return nil, ioErr("idx_query", err)
	}
	var footer [8]byte
	if _, err := io.ReadFull(h.file, footer[:]); err != nil {
		return gindex.New(), nil //nolint:nilerr // too little space before the seekable index for a genomic one
	}
	sizeBack := binary.LittleEndian.Uint32(footer[0:4])
	magic := binary.LittleEndian.Uint32(footer[4:8])
	if magic != wire.MagicGenomicTrailer {
		return gindex.New(), nil
	}

	gStart := int64(h.sindex.FrameStart) - 8 - int64(sizeBack) //nolint:gosec // file offsets fit int64 in practice
	if _, err := h.file.Seek(gStart, io.SeekStart); err != nil {
		return nil, ioErr("idx_query", err)
	}
	idx, err = gindex.LoadAt(h.file)
	if err != nil {
		return nil, wrapGindexErr("idx_query", err)
	}
	return idx, nil
}
