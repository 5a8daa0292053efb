package bgzf2

// Offset is a (compressed, uncompressed) position pair identifying a
// point in the stream, mirroring the handle returned by callers like
// multigz.Writer.Offset() and the biogo-hts bgzf.Offset pair
// (SPEC_FULL.md §10).
type Offset struct {
	CompressedPos   uint64
	UncompressedPos uint64
}

// Offset reports the handle's current position in both the compressed
// file and the logical uncompressed stream. For a writer this is the
// position after the most recently written block plus whatever is
// still buffered; for a reader it is the position of the next byte
// Read would return, valid only once at least one block has been
// loaded (a freshly opened reader reports the zero Offset).
func (h *Handle) Offset() Offset {
	if h.mode == ModeWrite {
		h.mu.Lock()
		defer h.mu.Unlock()
		return Offset{
			CompressedPos:   h.sindex.TotalCompressed(),
			UncompressedPos: h.framePos + uint64(h.uncomp.Pos()), //nolint:gosec // buffer position fits uint64
		}
	}
	return Offset{
		CompressedPos:   h.curBlockCompPos,
		UncompressedPos: h.curBlockUncompPos + uint64(h.uncomp.Pos()), //nolint:gosec // buffer position fits uint64
	}
}
