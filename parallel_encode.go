package bgzf2

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/vertti/bgzf2/internal/codec"
	"github.com/vertti/bgzf2/internal/job"
	"github.com/vertti/bgzf2/internal/wire"
	"github.com/vertti/bgzf2/internal/workerpool"
)

// attachEncoderPool switches a write-mode Handle into the parallel
// pipeline of spec.md §4.5: Flush hands each block to a pool of
// compress workers instead of compressing inline, while a dedicated
// writer goroutine drains results in submission order and appends
// frames to the file.
func (h *Handle) attachEncoderPool(workers int) error {
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.pool = workerpool.New(h.ctx, workers, h.encodeProcess)

	h.wg.Add(1)
	go h.writerLoop()
	return nil
}

// encodeProcess is the workerpool.Process run on each compress worker.
// Errors are stashed on the job rather than returned, so Next always
// hands the writer goroutine a value to inspect in submission order.
func (h *Handle) encodeProcess(_ context.Context, j *job.Job) (*job.Job, error) {
	comp, err := codec.Compress(j.Comp.Bytes()[:0], j.Uncomp.Bytes(), h.level)
	if err != nil {
		j.Err = codecErr("flush", err)
		return j, nil
	}
	j.Comp.AdoptBytes(comp)
	return j, nil
}

// dispatchEncode copies data into a job's buffer (the caller's own
// buffer is about to be reset and reused) and submits it for parallel
// compression. jobWG tracks it until the writer goroutine has written
// and indexed its frame, so Close can drain precisely. framePos advances
// here, on the caller's goroutine, so IdxAdd sees the start of the next
// frame even while earlier frames are still being compressed.
func (h *Handle) dispatchEncode(data []byte) error {
	if err := h.checkLatched(); err != nil {
		return err
	}

	j := h.jobPool.Get()
	j.Uncomp.Reset()
	j.Uncomp.Append(data)

	h.jobWG.Add(1)
	if err := h.pool.Submit(j); err != nil {
		h.jobWG.Done()
		h.jobPool.Put(j)
		return h.latch(resourceErr("flush", err))
	}
	h.mu.Lock()
	h.framePos += uint64(len(data))
	h.mu.Unlock()
	return nil
}

// writerLoop is the dedicated writer goroutine of spec.md §4.5: the
// only goroutine that appends frames to h.file once a pool is
// attached. It pulls compressed results in order and writes them,
// fsyncing every syncEveryNBlocks frames.
func (h *Handle) writerLoop() {
	defer h.wg.Done()
	for {
		j, err := h.pool.Next(h.ctx)
		if err != nil {
			return
		}
		h.handleEncodeResult(j)
	}
}

func (h *Handle) handleEncodeResult(j *job.Job) {
	defer func() {
		h.jobPool.Put(j)
		h.jobWG.Done()
	}()

	if j.Err != nil {
		h.latch(j.Err)
		return
	}

	data := j.Uncomp.Bytes()
	comp := j.Comp.Bytes()

	if err := h.ensureHeaderWritten(data); err != nil {
		h.latch(err)
		return
	}
	if err := wire.WritePrefaceFrame(h.file, uint32(len(comp))); err != nil { //nolint:gosec // compress-bound checked
		h.latch(ioErr("flush", err))
		return
	}
	if _, err := h.file.Write(comp); err != nil {
		h.latch(ioErr("flush", err))
		return
	}

	var checksum uint32
	if h.checksums {
		checksum = uint32(xxhash.Sum64(data)) //nolint:gosec // truncated per SPEC_FULL.md §4.1a
	}

	h.mu.Lock()
	h.sindex.Add(wire.PrefaceFrameSize, 0, 0)
	h.sindex.Add(uint32(len(comp)), uint32(len(data)), checksum) //nolint:gosec // bounded by MaxBlockSize
	h.mu.Unlock()

	h.blocksSinceSync++
	if h.blocksSinceSync >= syncEveryNBlocks {
		if err := h.file.Flush(); err != nil {
			h.logger.Warn("periodic sync failed", zap.Error(err))
			h.latch(ioErr("flush", err))
		}
		h.blocksSinceSync = 0
	}

	h.logger.Debug("flush", zap.Int("uncompressed", len(data)), zap.Int("compressed", len(comp)))
}

// closeParallelEncoder flushes any buffered data through the pipeline,
// waits for every dispatched job to be written, then drains the pool
// and joins the writer goroutine before the caller appends the
// trailing indices.
func (h *Handle) closeParallelEncoder() error {
	if err := h.Flush(); err != nil {
		return err
	}
	h.jobWG.Wait()

	if err := h.pool.Close(); err != nil {
		h.latch(resourceErr("close", err))
	}
	h.wg.Wait()
	h.cancel()

	return h.checkLatched()
}
