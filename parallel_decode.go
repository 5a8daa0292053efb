package bgzf2

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/vertti/bgzf2/internal/codec"
	"github.com/vertti/bgzf2/internal/job"
	"github.com/vertti/bgzf2/internal/sindex"
	"github.com/vertti/bgzf2/internal/wire"
	"github.com/vertti/bgzf2/internal/workerpool"
)

// attachDecoderPool wires a read-mode Handle into the parallel pipeline
// of spec.md §4.6/§4.8: a dedicated reader goroutine parses frame
// headers and dispatches decompress jobs to a pool of workers, while
// Read/Seek consume results through the handle's usual entry points.
// The reader goroutine becomes the sole goroutine touching h.file;
// Seek and CheckEOF are routed to it through the command channel. The
// seekable index, and the genomic index if one is present, are loaded
// here, before the goroutine starts, so that the one-time seeks and
// reads they take (and Query's later use of the genomic index) never
// race against the reader goroutine's own use of h.file.
func (h *Handle) attachDecoderPool(workers int) error {
	if err := h.ensureGenomicIndexLoaded(); err != nil {
		return err
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.cmd = newCommandState()
	h.pool = workerpool.New(h.ctx, workers, h.decodeProcess)

	h.wg.Add(1)
	go h.readerLoop()
	return nil
}

// decodeProcess is the workerpool.Process run on each decompress
// worker. A sentinel (HitEOF) job and any parse error are passed
// through untouched; errors are stashed on the job so Next always
// yields a value in submission order.
func (h *Handle) decodeProcess(_ context.Context, j *job.Job) (*job.Job, error) {
	if j.HitEOF {
		return j, nil
	}

	if sz, ok := codec.ContentSize(j.Comp.Bytes()); ok {
		if sz > wire.MaxBlockSize {
			j.Err = limitsErr("read", nil)
			return j, nil
		}
		out, err := codec.StreamDecompressKnownSize(j.Comp.Bytes(), sz)
		if err != nil {
			j.Err = codecErr("read", err)
			return j, nil
		}
		j.Uncomp.AdoptBytes(out)
		return j, nil
	}

	out, err := codec.StreamDecompressUnknownSize(j.Comp.Bytes())
	if err != nil {
		j.Err = codecErr("read", err)
		return j, nil
	}
	if uint64(len(out)) > wire.MaxBlockSize {
		j.Err = limitsErr("read", nil)
		return j, nil
	}
	j.Uncomp.AdoptBytes(out)
	return j, nil
}

// readerLoop is the dedicated reader goroutine. While still streaming
// it polls the command channel between frames via a non-blocking
// select (so a quiet stream keeps dispatching); once it has announced
// end of stream to the pool there is nothing left to read, so it
// blocks on the command channel instead of spinning. Either way a
// command is consumed exactly once, directly off its own channel, so
// there is no leftover "done" state for either side to poll past.
func (h *Handle) readerLoop() {
	defer h.wg.Done()

	afterEOF := false
	for {
		if afterEOF {
			if !h.waitForCommand() {
				return
			}
			afterEOF = false
			continue
		}

		select {
		case req := <-h.cmd.seek:
			req.reply <- h.performSeek(req.target)
			continue
		case req := <-h.cmd.eof:
			ok, err := sindex.CheckEOF(h.file)
			req.reply <- hasEOFResult{ok: ok, err: err}
			continue
		case <-h.cmd.close:
			return
		default:
		}

		if h.stepRead() {
			afterEOF = true
		}
	}
}

// waitForCommand blocks until a command arrives, used once end of
// stream has been announced to the pool. It returns false when the
// reader goroutine should stop. A serviced seek always restarts
// streaming (the pool has a fresh landing job), so the caller resets
// afterEOF unconditionally on a true return.
func (h *Handle) waitForCommand() bool {
	select {
	case req := <-h.cmd.seek:
		req.reply <- h.performSeek(req.target)
		return true
	case req := <-h.cmd.eof:
		ok, err := sindex.CheckEOF(h.file)
		req.reply <- hasEOFResult{ok: ok, err: err}
		return true
	case <-h.cmd.close:
		return false
	}
}

// stepRead parses and dispatches exactly one frame's worth of work, or
// a terminal sentinel job at end of stream. It reports whether the
// stream has reached its end.
func (h *Handle) stepRead() bool {
	pos, _ := h.file.Seek(0, io.SeekCurrent)
	compBytes, cleanEOF, err := h.readNextFrame()
	switch {
	case err != nil:
		h.submitTerminal(err)
		return true
	case cleanEOF:
		h.submitTerminal(nil)
		return true
	default:
		j := h.jobPool.Get()
		j.Comp.Reset()
		j.Comp.Append(compBytes)
		j.FrameCompPos = uint64(pos) //nolint:gosec // file offsets fit int64/uint64 in practice
		if err := h.pool.Submit(j); err != nil {
			h.jobPool.Put(j)
		}
		return false
	}
}

// readNextFrame wraps nextDataFrame, translating a clean io.EOF into the
// cleanEOF flag rather than an error. It does not record the frame's
// compressed file position; its callers set FrameCompPos for Offset
// (SPEC_FULL.md §10) themselves.
func (h *Handle) readNextFrame() (compBytes []byte, cleanEOF bool, err error) {
	b, ferr := h.nextDataFrame()
	if ferr != nil {
		if errors.Is(ferr, io.EOF) {
			return nil, true, nil
		}
		return nil, false, ferr
	}
	return b, false, nil
}

func (h *Handle) submitTerminal(err error) {
	j := h.jobPool.Get()
	j.HitEOF = true
	j.Err = err
	if err := h.pool.Submit(j); err != nil {
		h.jobPool.Put(j)
	}
}

// performSeek repositions h.file, resets the pool (discarding any
// in-flight decode results from before the seek), and dispatches the
// landing frame, stamping it for checksum verification when the
// seekable index carries one. It runs on the reader goroutine, the
// only one touching h.file in parallel mode.
func (h *Handle) performSeek(u uint64) error {
	target, err := h.sindex.QueryTarget(u)
	if err != nil {
		return wrapSindexErr("seek", err)
	}
	if _, err := h.file.Seek(int64(target.CompPos), io.SeekStart); err != nil { //nolint:gosec // file offsets fit int64 in practice
		return ioErr("seek", err)
	}
	h.pool.Reset()
	h.readUncompTotal = target.DataUncompPos

	compBytes, cleanEOF, rerr := h.readNextFrame()
	switch {
	case rerr != nil:
		h.submitTerminal(rerr)
	case cleanEOF:
		h.submitTerminal(nil)
	default:
		j := h.jobPool.Get()
		j.Comp.Reset()
		j.Comp.Append(compBytes)
		j.FrameCompPos = target.CompPos
		if h.sindex.HasChecksum {
			j.VerifyChecksum = true
			j.ExpectedChecksum = target.DataChecksum
		}
		if err := h.pool.Submit(j); err != nil {
			h.jobPool.Put(j)
		}
	}
	return nil
}

// seekParallel is Seek's parallel-mode path: the request is handed to
// the reader goroutine, then the landing block is pulled through the
// normal consumer path so the in-block cursor can be positioned. The
// seekable index is already loaded (attachDecoderPool loads it before
// the reader goroutine starts), so unlike the sequential path this
// never touches h.file itself.
func (h *Handle) seekParallel(u uint64) error {
	if err := h.cmd.requestSeek(u); err != nil {
		return err
	}
	if err := h.nextBlockParallel(); err != nil {
		return err
	}

	target, err := h.sindex.QueryTarget(u)
	if err != nil {
		return wrapSindexErr("seek", err)
	}
	h.uncomp.SetPos(int(u - target.DataUncompPos)) //nolint:gosec // within block bounds by construction
	h.logger.Debug("seek", zap.Uint64("offset", u))
	return nil
}

// nextBlockParallel is the main goroutine's consumer side: it pulls
// the next ordered result from the pool and swaps it into h.uncomp,
// returning the job's old buffer to the free list (spec.md §9 buffer
// move semantics).
func (h *Handle) nextBlockParallel() error {
	j, err := h.pool.Next(h.ctx)
	if err != nil {
		return io.EOF
	}
	if j.Err != nil {
		e := j.Err
		h.jobPool.Put(j)
		return e
	}
	if j.HitEOF {
		h.jobPool.Put(j)
		return io.EOF
	}
	if j.VerifyChecksum {
		if verr := verifyChecksum(j.ExpectedChecksum, j.Uncomp.Bytes()); verr != nil {
			h.jobPool.Put(j)
			return verr
		}
	}

	h.curBlockUncompPos = h.readUncompTotal
	h.readUncompTotal += uint64(j.Uncomp.Sz())
	h.curBlockCompPos = j.FrameCompPos

	old := h.uncomp
	h.uncomp = j.Uncomp
	h.uncomp.SetPos(0)
	j.Uncomp = old
	h.jobPool.Put(j)
	return nil
}

// closeReader stops the reader goroutine and drains the pool, if one
// is attached; a no-op in single-threaded mode. The context is
// cancelled before waiting for the goroutine to exit: that is what
// unblocks a reader stuck inside a pool.Submit call against a full
// queue (the pool's own backpressure, spec.md §5), so Close cannot
// hang waiting on a caller that has simply stopped reading.
func (h *Handle) closeReader() {
	if h.pool == nil {
		return
	}
	h.cmd.requestClose()
	h.cancel()
	h.wg.Wait()
	_ = h.pool.Close()
}
