// Package wire defines the on-disk frame layout shared by the BGZF2
// container: magic numbers, the 8-byte frame header, and the small
// helpers used to write and recognize each frame kind.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic numbers, all little-endian u32 on disk.
const (
	MagicHeader          uint32 = 0x184D2A5B // BGZF2 header frame, and genomic index frame (same magic, distinguished by context)
	MagicPreface         uint32 = 0x184D2A50 // pzstd-compatible preface frame
	MagicZstdData        uint32 = 0x28B52FFD // Zstd data frame (opaque payload, recognized not written by wire)
	MagicSeekableIndex   uint32 = 0x184D2A5E
	MagicSeekableTrailer uint32 = 0x8F92EAB1 // also doubles as the "is this a closed BGZF2 stream" EOF marker
	MagicGenomicTrailer  uint32 = 0x8F92EABB
)

// SkippableMagicLo and SkippableMagicHi bound the Zstd skippable-frame
// magic range a conforming decoder must silently pass over.
const (
	SkippableMagicLo uint32 = 0x184D2A50
	SkippableMagicHi uint32 = 0x184D2A5F
)

// MaxBlockSize is the largest uncompressed block size the format permits.
// A frame declaring more is rejected outright as an anti-amplification
// defense (spec §4.9(iii)).
const MaxBlockSize = 1 << 30

// PrefaceFrameSize is the total on-disk size of a preface skippable
// frame: 8-byte header + 4-byte payload.
const PrefaceFrameSize = 12

// HeaderMagicPreview is the literal 4-byte tag at the start of the
// BGZF2 header frame's payload.
var HeaderMagicPreview = [4]byte{'B', 'G', 'Z', '2'}

// IsSkippable reports whether magic falls in the Zstd skippable range.
func IsSkippable(magic uint32) bool {
	return magic >= SkippableMagicLo && magic <= SkippableMagicHi
}

// FrameHeader is the 8-byte prefix common to every frame: a magic number
// and the length, in bytes, of the payload that follows.
type FrameHeader struct {
	Magic  uint32
	Length uint32
}

// WriteFrameHeader writes the 8-byte magic+length prefix.
func WriteFrameHeader(w io.Writer, magic, length uint32) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	_, err := w.Write(buf[:])
	return err
}

// ReadFrameHeader reads the 8-byte magic+length prefix. io.EOF is
// returned unwrapped when the stream ends cleanly at a frame boundary.
func ReadFrameHeader(r io.Reader) (FrameHeader, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return FrameHeader{}, fmt.Errorf("wire: truncated frame header: %w", err)
		}
		return FrameHeader{}, err
	}
	return FrameHeader{
		Magic:  binary.LittleEndian.Uint32(buf[0:4]),
		Length: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// IsPreface reports whether a parsed header identifies a preface frame.
// A preface is identified by magic *and* length==4 together; a length
// mismatch on the preface magic means it is an unrelated skippable
// frame that happens to share the magic range and must simply be
// skipped (spec §4.1).
func IsPreface(h FrameHeader) bool {
	return h.Magic == MagicPreface && h.Length == 4
}

// WritePrefaceFrame writes a 12-byte preface frame publishing the
// compressed size of the data frame that immediately follows it.
func WritePrefaceFrame(w io.Writer, nextFrameCompSz uint32) error {
	if err := WriteFrameHeader(w, MagicPreface, 4); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], nextFrameCompSz)
	_, err := w.Write(buf[:])
	return err
}

// ReadPrefacePayload reads the 4-byte next-frame-compressed-size payload
// of a preface frame whose header has already been consumed.
func ReadPrefacePayload(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteHeaderFrame writes the BGZF2 header skippable frame: the literal
// tag "BGZ2" followed by up to 16 bytes of uncompressed preview copied
// from the first block.
func WriteHeaderFrame(w io.Writer, preview []byte) error {
	if len(preview) > 16 {
		preview = preview[:16]
	}
	payload := make([]byte, 0, 4+len(preview))
	payload = append(payload, HeaderMagicPreview[:]...)
	payload = append(payload, preview...)
	if err := WriteFrameHeader(w, MagicHeader, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// SkipPayload discards length bytes of an already-headed frame that the
// caller has decided to ignore (an unrecognized skippable frame).
func SkipPayload(r io.Reader, length uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(length))
	return err
}
