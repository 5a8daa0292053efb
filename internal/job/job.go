// Package job defines the Job entity of spec.md §3/§9: a unit of work
// moving between the main goroutine, workers, and the dedicated I/O
// goroutine, with the buffers it carries returned to a free list when
// the job is released. The free list is a bounded buffered channel,
// following arloliu-mebo/internal/pool's reusable-buffer idea
// generalized from a single buffer to a composite struct.
package job

import (
	"sync/atomic"

	"github.com/vertti/bgzf2/internal/iobuf"
)

// Job is a unit of work carrying the buffers a compress or decompress
// operation reads from and writes to. Num is a monotonic sequence
// number, useful for debugging and for the ordering assertions in
// tests; it is not used for pipeline ordering (internal/workerpool
// handles that independently).
type Job struct {
	Num       int64
	Uncomp    *iobuf.Buffer
	Comp      *iobuf.Buffer
	Err       error
	HitEOF    bool
	KnownSize bool
	SeekTo    uint64

	// VerifyChecksum and ExpectedChecksum mark the single job immediately
	// following a seek, whose decompressed output is checked against the
	// seekable index's stored per-entry checksum (SPEC_FULL.md §4.1a).
	VerifyChecksum   bool
	ExpectedChecksum uint32

	// FrameCompPos is the compressed file offset the reader thread was
	// at when it began parsing this job's frame, used to populate
	// Handle.Offset() for the parallel decode path.
	FrameCompPos uint64
}

// Pool is a free list of Jobs, backed by a buffered channel, standing in
// for spec.md's "singly-linked intrusive list guarded by job_pool_m" — in
// Go, the channel already provides that synchronized reuse.
type Pool struct {
	counter atomic.Int64
	free    chan *Job
}

// NewPool creates a job free list. depth bounds how many idle jobs are
// kept ready (beyond that, Get allocates fresh ones, matching "new jobs
// are allocated from a slab pool on exhaustion").
func NewPool(depth int) *Pool {
	if depth <= 0 {
		depth = 1
	}
	return &Pool{free: make(chan *Job, depth)}
}

// Get returns a reset Job, reusing a freed one if available.
func (p *Pool) Get() *Job {
	var j *Job
	select {
	case j = <-p.free:
	default:
		j = &Job{
			Uncomp: iobuf.New(iobuf.DefaultCapacity),
			Comp:   iobuf.New(iobuf.DefaultCapacity),
		}
	}
	j.Num = p.counter.Add(1)
	j.Err = nil
	j.HitEOF = false
	j.KnownSize = false
	j.SeekTo = 0
	j.VerifyChecksum = false
	j.ExpectedChecksum = 0
	j.FrameCompPos = 0
	j.Uncomp.Reset()
	j.Comp.Reset()
	return j
}

// Put returns a Job to the free list. If the list is at capacity, the
// Job (and its buffers) are simply dropped for GC, matching a bounded
// working set per spec.md §5.
func (p *Pool) Put(j *Job) {
	select {
	case p.free <- j:
	default:
	}
}
