// Package workerpool implements spec.md §1's external collaborator: "a
// generic worker thread pool with ordered result retrieval." It is
// shared by the parallel encoder and decoder, generalizing the
// per-direction jobs-chan/results-chan/pending-map pattern that
// internal/compress/compress.go used to inline separately for
// compression and decompression.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit/Next after Close.
var ErrClosed = errors.New("workerpool: pool is closed")

// Process transforms a submitted job into its result. It must not
// retain the input beyond the call; it runs concurrently on up to
// Workers goroutines.
type Process[T any] func(ctx context.Context, in T) (T, error)

type numbered[T any] struct {
	seq        uint64
	generation uint64
	value      T
	err        error
}

// Pool runs Process across a fixed number of worker goroutines and
// hands results back through Next in the same order jobs were
// submitted via Submit — "order-preserving output queue" is the hard
// requirement spec.md §5 places on this collaborator, so file order is
// preserved on both encode and decode without any additional
// sequencing by the caller.
type Pool[T any] struct {
	process Process[T]

	jobs chan numbered[T]

	mu         sync.Mutex
	cond       *sync.Cond
	pending    map[uint64]numbered[T]
	nextSubmit uint64
	nextRecv   uint64
	generation uint64
	closed     bool

	g       *errgroup.Group
	ctx     context.Context
	resultC chan numbered[T]
	done    chan struct{}
}

// New starts workers goroutines, each running process on jobs pulled
// from a shared internal channel.
func New[T any](ctx context.Context, workers int, process Process[T]) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool[T]{
		process: process,
		jobs:    make(chan numbered[T], workers*2),
		pending: make(map[uint64]numbered[T]),
		g:       g,
		ctx:     gctx,
		resultC: make(chan numbered[T], workers*2),
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		g.Go(p.worker)
	}
	go p.collect()

	return p
}

func (p *Pool[T]) worker() error {
	for nj := range p.jobs {
		out, err := p.process(p.ctx, nj.value)
		select {
		case p.resultC <- numbered[T]{seq: nj.seq, generation: nj.generation, value: out, err: err}:
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	return nil
}

// collect merges worker output into the ordering buffer, discarding
// results from a generation earlier than the current one (left behind
// by a Reset while they were in flight).
func (p *Pool[T]) collect() {
	defer close(p.done)
	for nr := range p.resultC {
		p.mu.Lock()
		if nr.generation == p.generation {
			p.pending[nr.seq] = nr
			p.cond.Broadcast()
		}
		p.mu.Unlock()
	}
}

// Submit enqueues job in dispatch order. It blocks if the internal
// queue is full (spec.md §5: write/flush may block "waiting for space
// in the pool's queue").
func (p *Pool[T]) Submit(job T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	seq := p.nextSubmit
	p.nextSubmit++
	gen := p.generation
	p.mu.Unlock()

	select {
	case p.jobs <- numbered[T]{seq: seq, generation: gen, value: job}:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Next blocks until the result for the next expected sequence number is
// available, then returns it in submission order.
func (p *Pool[T]) Next(ctx context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if nr, ok := p.pending[p.nextRecv]; ok {
			delete(p.pending, p.nextRecv)
			p.nextRecv++
			return nr.value, nr.err
		}
		if p.closed {
			var zero T
			return zero, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		p.waitLocked(ctx)
	}
}

// waitLocked blocks on the condition variable until a broadcast, with a
// helper goroutine that also broadcasts once ctx is done, since
// sync.Cond has no native context support.
func (p *Pool[T]) waitLocked(ctx context.Context) {
	woke := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
		close(woke)
	}()
	p.cond.Wait()
	close(stop)
	<-woke
}

// Reset discards all queued jobs and any pending (including in-flight)
// results, and resets the sequence counters to zero, matching spec.md
// §4.7's "reset the pool's output queue (discarding in-flight results)"
// on a mid-stream seek. Workers keep running; a new generation of
// Submit/Next calls begins immediately.
func (p *Pool[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.pending = make(map[uint64]numbered[T])
	p.nextSubmit = 0
	p.nextRecv = 0

drain:
	for {
		select {
		case <-p.jobs:
		default:
			break drain
		}
	}
	p.cond.Broadcast()
}

// Close stops accepting new jobs, waits for in-flight work to drain,
// and joins the collector goroutine (spec.md §4.5's "Drain on close").
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.jobs)
	err := p.g.Wait()
	close(p.resultC)
	<-p.done
	return err
}
