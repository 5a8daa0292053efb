package bgzf2

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vertti/bgzf2/internal/gindex"
	"github.com/vertti/bgzf2/internal/iobuf"
	"github.com/vertti/bgzf2/internal/iohandle"
	"github.com/vertti/bgzf2/internal/job"
	"github.com/vertti/bgzf2/internal/sindex"
	"github.com/vertti/bgzf2/internal/wire"
	"github.com/vertti/bgzf2/internal/workerpool"
)

// Mode is the direction a Handle was opened in.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

const (
	// DefaultBlockSize is the target uncompressed length per data frame
	// when the caller does not set one explicitly (spec.md §4.2).
	DefaultBlockSize = 256_000
	// DefaultLevel is the Zstd compression level used by "w" with no
	// digit suffix.
	DefaultLevel = 5
	// syncEveryNBlocks is the parallel writer's periodic fsync interval
	// (spec.md §4.5), a tuning constant rather than a format contract.
	syncEveryNBlocks = 32
)

// Handle is the top-level object bundling the underlying file handle,
// mode, compression level, block size, both indices, the current
// uncompressed/compressed buffers, the running frame position, and
// (when parallel mode is attached) the worker pool, job free list, and
// command-channel state. It corresponds to spec.md §3's Handle entity.
type Handle struct {
	file  iohandle.Handle
	mode  Mode
	level int

	blockSize uint32
	uncomp    *iobuf.Buffer

	sindex *sindex.Index
	gindex *gindex.Index

	headerWritten bool
	framePos      uint64 // next frame's uncompressed start
	lastFlushTry  int
	checksums     bool

	gindexLoaded bool

	// Reader-side position bookkeeping for Offset (SPEC_FULL.md §10),
	// updated wherever a new block is loaded (sync or parallel).
	readUncompTotal   uint64
	curBlockCompPos   uint64
	curBlockUncompPos uint64

	logger *zap.Logger

	mu         sync.Mutex
	latchedErr error

	// Parallel mode. Nil until AttachThreadPool is called.
	pool            *workerpool.Pool[*job.Job]
	jobPool         *job.Pool
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	jobWG           sync.WaitGroup // outstanding dispatched-but-unwritten encode jobs
	blocksSinceSync int

	cmd *commandState

	// closed guards idempotent Close.
	closed bool
}

// Option configures a Handle at Open time, beyond what the mode string
// itself encodes.
type Option func(*Handle)

// WithLogger attaches a structured logger (SPEC_FULL.md §4.2a). The
// default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithEntryChecksums enables per-entry xxhash checksums in the seekable
// index (SPEC_FULL.md §4.1a). Only meaningful for a writer Handle.
func WithEntryChecksums(enabled bool) Option {
	return func(h *Handle) { h.checksums = enabled }
}

// WithBlockSize sets the initial block size, equivalent to calling
// SetBlockSize immediately after Open but avoiding the pointless first
// flush that would trigger on an empty buffer. Unlike SetBlockSize, a
// size of zero or above wire.MaxBlockSize is silently ignored rather
// than reported as an error.
func WithBlockSize(sz uint32) Option {
	return func(h *Handle) {
		if sz > 0 && sz <= wire.MaxBlockSize {
			h.blockSize = sz
		}
	}
}

// Open opens path in the given mode: "r" for read, "w" for write at
// DefaultLevel, or "w<digits>" to set the Zstd compression level
// (spec.md §6's mode string).
func Open(path, mode string, opts ...Option) (*Handle, error) {
	m, level, err := parseMode(mode)
	if err != nil {
		return nil, formatErr("open", err)
	}

	ioMode := "r"
	if m == ModeWrite {
		ioMode = "w"
	}
	f, err := iohandle.OpenFile(path, ioMode)
	if err != nil {
		return nil, ioErr("open", err)
	}

	h := &Handle{
		file:      f,
		mode:      m,
		level:     level,
		blockSize: DefaultBlockSize,
		uncomp:    iobuf.New(DefaultBlockSize),
		logger:    zap.NewNop(),
		jobPool:   job.NewPool(4),
	}
	if m == ModeWrite {
		h.sindex = sindex.New(false)
		h.gindex = gindex.New()
	}

	for _, opt := range opts {
		opt(h)
	}
	if m == ModeWrite && h.checksums {
		h.sindex = sindex.New(true)
	}

	return h, nil
}

// parseMode splits a spec.md §6 mode string into direction and level.
func parseMode(mode string) (Mode, int, error) {
	switch {
	case mode == "r":
		return ModeRead, 0, nil
	case mode == "w":
		return ModeWrite, DefaultLevel, nil
	case strings.HasPrefix(mode, "w"):
		digits := mode[1:]
		lvl, err := strconv.Atoi(digits)
		if err != nil {
			return 0, 0, &strconvErr{mode: mode, err: err}
		}
		return ModeWrite, lvl, nil
	default:
		return 0, 0, &strconvErr{mode: mode}
	}
}

type strconvErr struct {
	mode string
	err  error
}

func (e *strconvErr) Error() string {
	if e.err != nil {
		return "invalid mode " + strconv.Quote(e.mode) + ": " + e.err.Error()
	}
	return "invalid mode " + strconv.Quote(e.mode)
}

// AttachThreadPool switches the handle into the parallel pipeline of
// spec.md §4.5/§4.6: workers compress (write mode) or decompress (read
// mode) blocks concurrently, while a single dedicated goroutine is left
// owning the sequential, ordered parts of the protocol — writing frames
// in submission order, or parsing frame headers and dispatching decode
// jobs. Calling it more than once on the same Handle is a no-op.
func (h *Handle) AttachThreadPool(workers int) error {
	if h.pool != nil {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if h.mode == ModeWrite {
		return h.attachEncoderPool(workers)
	}
	return h.attachDecoderPool(workers)
}

// latch records err as the handle's latched error if one is not already
// set, and returns the latched error (spec.md §7's "errors on the writer
// I/O thread are latched onto the handle and surfaced at the next
// caller entry point").
func (h *Handle) latch(err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latchedErr == nil {
		h.latchedErr = err
	}
	return h.latchedErr
}

func (h *Handle) checkLatched() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latchedErr
}

// Close flushes and drains as needed, emits the trailing indices for a
// writer, and closes the underlying file. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	if h.mode == ModeWrite {
		if err := h.closeWriter(); err != nil {
			_ = h.file.Close()
			return err
		}
		return h.file.Close()
	}

	h.closeReader()
	return h.file.Close()
}
