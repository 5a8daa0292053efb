package bgzf2

// Once a thread pool is attached in read mode, the dedicated reader
// goroutine becomes the sole goroutine allowed to touch the underlying
// file handle (spec.md §4.7/§5). Seek and CheckEOF, which both need
// the file, are routed to that goroutine through commandState instead
// of running inline on the caller's goroutine.
//
// Each request carries its own one-shot reply channel rather than
// sharing a single "kind" field polled by both sides: that avoids a
// leftover completed-but-unconsumed state the reader would otherwise
// have to poll away before it could notice the next command.

type seekRequest struct {
	target uint64
	reply  chan error
}

type hasEOFRequest struct {
	reply chan hasEOFResult
}

type hasEOFResult struct {
	ok  bool
	err error
}

type commandState struct {
	seek  chan seekRequest
	eof   chan hasEOFRequest
	close chan struct{}
}

func newCommandState() *commandState {
	return &commandState{
		seek:  make(chan seekRequest),
		eof:   make(chan hasEOFRequest),
		close: make(chan struct{}),
	}
}

// requestSeek blocks until the reader goroutine has processed a seek to
// target, returning the error it reported.
func (cs *commandState) requestSeek(target uint64) error {
	reply := make(chan error, 1)
	cs.seek <- seekRequest{target: target, reply: reply}
	return <-reply
}

// requestHasEOF blocks until the reader goroutine has checked the
// stream for a trailing seekable-index marker.
func (cs *commandState) requestHasEOF() (bool, error) {
	reply := make(chan hasEOFResult, 1)
	cs.eof <- hasEOFRequest{reply: reply}
	r := <-reply
	return r.ok, r.err
}

// requestClose asks the reader goroutine to shut down. It does not wait
// for acknowledgement; the caller joins the goroutine separately.
// Close() is idempotent at the Handle level, so this only ever runs
// once per Handle.
func (cs *commandState) requestClose() {
	close(cs.close)
}
