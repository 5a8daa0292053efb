// Package codec wraps github.com/klauspost/compress/zstd as the
// compress-buffer-to-buffer / decompress-buffer-to-buffer / frame
// content-size-probe / streaming-decompress-for-unknown-sizes
// collaborator named in spec.md §1. Encoders and decoders are pooled
// with sync.Pool, standing in for spec.md §9's "thread-local Zstd
// contexts, reset between uses" — the same pattern
// arloliu-mebo/compress/zstd_pure.go uses to avoid per-call allocation.
package codec

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrCodec wraps any Zstd-library failure or output-size mismatch.
var ErrCodec = errors.New("codec: zstd error")

// ErrSizeMismatch indicates a known-size decompress produced a length
// different from the frame's declared content size.
var ErrSizeMismatch = errors.New("codec: decompressed size mismatch")

// encoderPool pools *zstd.Encoder per compression level. EncodeAll is
// stateless on a given encoder so pooled reuse across goroutines is
// safe as long as each borrow is exclusive, exactly as mebo documents.
type encoderPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

var encoders = &encoderPool{pools: make(map[int]*sync.Pool)}

func (ep *encoderPool) get(level int) (*zstd.Encoder, error) {
	ep.mu.Lock()
	p, ok := ep.pools[level]
	if !ok {
		lvl := zstd.EncoderLevelFromZstd(level)
		p = &sync.Pool{
			New: func() any {
				enc, err := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(lvl),
					zstd.WithEncoderCRC(true),
				)
				if err != nil {
					panic(fmt.Sprintf("codec: failed to create zstd encoder: %v", err))
				}
				return enc
			},
		}
		ep.pools[level] = p
	}
	ep.mu.Unlock()

	enc, _ := p.Get().(*zstd.Encoder)
	return enc, nil
}

func (ep *encoderPool) put(level int, enc *zstd.Encoder) {
	ep.mu.Lock()
	p := ep.pools[level]
	ep.mu.Unlock()
	if p != nil {
		p.Put(enc)
	}
}

var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("codec: failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

// CompressBound returns a safe upper bound on the compressed size of
// srcLen bytes of input, for sizing a destination buffer before a
// single compress call.
func CompressBound(srcLen int) int {
	return srcLen + srcLen>>8 + 64
}

// Compress compresses src at the given level into dst's backing array
// (dst may be nil or reused from a prior call; its existing contents
// are discarded) and returns the result.
func Compress(dst, src []byte, level int) ([]byte, error) {
	enc, err := encoders.get(level)
	if err != nil {
		return nil, err
	}
	defer encoders.put(level, enc)

	out := enc.EncodeAll(src, dst[:0])
	return out, nil
}

// Decompress decompresses a complete Zstd frame in src into dst's
// backing array (its existing contents are discarded) and returns the
// result.
func Decompress(dst, src []byte) ([]byte, error) {
	dec, _ := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)

	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return out, nil
}

// ContentSize probes a Zstd frame's header for a declared content size,
// returning ok=false when the frame does not carry one (as pzstd
// sometimes produces).
func ContentSize(frame []byte) (size uint64, ok bool) {
	var h zstd.Header
	if err := h.Decode(frame); err != nil {
		return 0, false
	}
	if !h.HasFCS {
		return 0, false
	}
	return h.FrameContentSize, true
}

// StreamDecompressKnownSize decompresses a single Zstd frame whose
// declared content size is known, verifying the output length matches.
func StreamDecompressKnownSize(src []byte, expected uint64) ([]byte, error) {
	out, err := Decompress(make([]byte, 0, expected), src)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != expected {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrSizeMismatch, expected, len(out))
	}
	return out, nil
}

// StreamDecompressUnknownSize decompresses a Zstd frame lacking a
// content-size field by streaming through zstd.Decoder's io.Reader
// interface, growing the destination whenever it fills: to 1.05x+1000
// bytes while the output is still shorter than the compressed input,
// and to 1.5x+100000 bytes after that. The growth step does not look at
// how much input the decoder has consumed.
func StreamDecompressUnknownSize(src []byte) ([]byte, error) {
	dec, _ := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)

	if err := dec.Reset(newByteReader(src)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	out := make([]byte, 0, estimateInitial(len(src)))
	for {
		if len(out) == cap(out) {
			out = growBuffer(out, len(src))
		}
		n, err := dec.Read(out[len(out):cap(out)])
		out = out[:len(out)+n]
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrCodec, err)
		}
	}
}

func estimateInitial(srcLen int) int {
	// A conservative guess before any bytes have been observed: most
	// Zstd streams achieve at least 2x compression on typical data.
	est := srcLen*2 + 1000
	if est < 4096 {
		est = 4096
	}
	return est
}

func growBuffer(out []byte, srcLen int) []byte {
	consumed := len(out)
	var next int
	if consumed < srcLen {
		// Output still shorter than the input; grow modestly with headroom.
		next = int(float64(consumed)*1.05) + 1000
	} else {
		// Output already at least as long as the input; grow aggressively.
		next = int(float64(consumed)*1.5) + 100000
	}
	if next <= cap(out) {
		next = cap(out) + 4096
	}
	grown := make([]byte, len(out), next)
	copy(grown, out)
	return grown
}

// byteReader adapts a []byte to io.Reader without an extra allocation
// per Read, so StreamDecompressUnknownSize can hand it to
// zstd.Decoder.Reset.
type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
