package bgzf2

import (
	"io"

	"github.com/vertti/bgzf2/internal/wire"
)

// nextDataFrame reads from h.file until it has the next data frame's raw
// compressed bytes, transparently skipping any skippable frame that is
// not the preface immediately announcing that data frame's size
// (spec.md §4.1/§4.6's "single-threaded frame-parse helper" shared by
// the synchronous reader and the parallel reader goroutine). It returns
// io.EOF cleanly when the stream ends between frames.
func (h *Handle) nextDataFrame() ([]byte, error) {
	for {
		fh, err := wire.ReadFrameHeader(h.file)
		if err != nil {
			if err == io.EOF { //nolint:errorlint // wire.ReadFrameHeader documents a bare io.EOF at a clean boundary
				return nil, io.EOF
			}
			return nil, ioErr("read", err)
		}

		if !wire.IsSkippable(fh.Magic) {
			return nil, formatErr("read", errUnexpectedFrame)
		}

		if wire.IsPreface(fh) {
			compSz, err := wire.ReadPrefacePayload(h.file)
			if err != nil {
				return nil, ioErr("read", err)
			}
			buf := make([]byte, compSz)
			if _, err := io.ReadFull(h.file, buf); err != nil {
				return nil, ioErr("read", err)
			}
			return buf, nil
		}

		if err := wire.SkipPayload(h.file, fh.Length); err != nil {
			return nil, ioErr("read", err)
		}
	}
}
