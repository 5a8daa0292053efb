// Package sindex implements the trailing seekable index of spec.md
// §4.3: an ordered table mapping each frame's position in file order to
// its compressed and uncompressed sizes, letting a reader binary-search
// from an uncompressed byte offset to the compressed file offset of the
// data frame (and its preceding preface frame) that contains it.
//
// The wire layout follows internal/format/container.go's fixed-width
// little-endian encode/decode style, generalized from a single
// fixed-size header to a variable-length trailing table.
package sindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/vertti/bgzf2/internal/wire"
)

// Sentinel errors, replacing spec.md §4.3's numeric return codes with
// idiomatic Go errors checkable via errors.Is.
var (
	ErrIO          = errors.New("sindex: I/O error")
	ErrNotSeekable = errors.New("sindex: stream is not seekable")
	ErrNoIndex     = errors.New("sindex: no seekable index present")
	ErrFormat      = errors.New("sindex: malformed seekable index")
	ErrRange       = errors.New("sindex: offset past end of data")
)

// flagHasChecksum is bit 7 of the footer's flags byte (SPEC_FULL.md
// §4.1a); bits 2-6 are reserved and must be zero.
const (
	flagHasChecksum byte = 1 << 7
	flagReservedMask byte = 0b0111_1100
)

const footerSize = 9 // N:u32le + flags:u8 + trailing magic:u32le

// Entry is one seekable-index row. CompSz/UncompSz/Checksum are the
// on-disk fields; UncompPos/CompPos are the running prefix-sum totals
// computed at load time, giving this frame's start offset in each
// stream. A skippable-frame entry (the BGZF2 header, or a preface) has
// UncompSz == 0; a data-frame entry has UncompSz > 0.
type Entry struct {
	CompSz    uint32
	UncompSz  uint32
	Checksum  uint32 // only meaningful when the index carries checksums
	UncompPos uint64
	CompPos   uint64
}

// Index is the in-memory, file-order list of index entries.
type Index struct {
	Entries     []Entry
	HasChecksum bool

	// FrameStart is the absolute file offset of this index's own
	// skippable frame, populated by Load. A genomic index, if present,
	// sits immediately before this frame; its 8-byte back-pointer
	// footer occupies [FrameStart-8, FrameStart). Zero for an index
	// built by Add rather than loaded from disk.
	FrameStart uint64
}

// New returns an empty index, optionally tracking per-entry checksums.
func New(hasChecksum bool) *Index {
	return &Index{HasChecksum: hasChecksum}
}

// Add appends an entry in file order, computing its running UncompPos/
// CompPos from the previous entry so the index is queryable immediately
// without a Load round-trip. Callers (the writer) are responsible for
// computing Checksum when HasChecksum is set.
func (idx *Index) Add(compSz, uncompSz uint32, checksum uint32) {
	var uncompPos, compPos uint64
	if n := len(idx.Entries); n > 0 {
		last := idx.Entries[n-1]
		uncompPos = last.UncompPos + uint64(last.UncompSz)
		compPos = last.CompPos + uint64(last.CompSz)
	}
	idx.Entries = append(idx.Entries, Entry{
		CompSz: compSz, UncompSz: uncompSz, Checksum: checksum,
		UncompPos: uncompPos, CompPos: compPos,
	})
}

func (idx *Index) entrySize() int {
	if idx.HasChecksum {
		return 12
	}
	return 8
}

// Write serializes the index as a single seekable-index skippable
// frame: N * entrySize bytes of entries, then [N][flags][trailing
// magic].
func (idx *Index) Write(w io.Writer) error {
	entrySz := idx.entrySize()
	n := len(idx.Entries)
	payloadLen := uint32(n*entrySz + footerSize)

	if err := wire.WriteFrameHeader(w, wire.MagicSeekableIndex, payloadLen); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	buf := make([]byte, entrySz)
	for _, e := range idx.Entries {
		binary.LittleEndian.PutUint32(buf[0:4], e.CompSz)
		binary.LittleEndian.PutUint32(buf[4:8], e.UncompSz)
		if idx.HasChecksum {
			binary.LittleEndian.PutUint32(buf[8:12], e.Checksum)
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	var flags byte
	if idx.HasChecksum {
		flags |= flagHasChecksum
	}
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[0:4], uint32(n)) //nolint:gosec // entry count bounded by file size
	footer[4] = flags
	binary.LittleEndian.PutUint32(footer[5:9], wire.MagicSeekableTrailer)
	if _, err := w.Write(footer[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// rw is the subset of iohandle.Handle Load needs: positioned reads via
// Seek+Read, expressed this way to avoid an import cycle with the root
// package's Handle.
type rw interface {
	io.Reader
	io.Seeker
}

// CheckEOF reports whether rs ends with a valid seekable-index trailing
// magic, without fully loading the index (spec.md §8 "EOF marker").
func CheckEOF(rs rw) (bool, error) {
	footer, err := readFooterAtEnd(rs)
	if err != nil {
		if errors.Is(err, ErrNotSeekable) {
			return false, err
		}
		return false, nil
	}
	return footer.magicOK, nil
}

type parsedFooter struct {
	n           uint32
	hasChecksum bool
	magicOK     bool
}

func readFooterAtEnd(rs rw) (parsedFooter, error) {
	if _, err := rs.Seek(-footerSize, io.SeekEnd); err != nil {
		return parsedFooter{}, fmt.Errorf("%w: %v", ErrNotSeekable, err)
	}
	var buf [footerSize]byte
	if _, err := io.ReadFull(rs, buf[:]); err != nil {
		return parsedFooter{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	flags := buf[4]
	magic := binary.LittleEndian.Uint32(buf[5:9])
	if flags&flagReservedMask != 0 {
		return parsedFooter{}, fmt.Errorf("%w: reserved flag bits set", ErrFormat)
	}
	return parsedFooter{
		n:           n,
		hasChecksum: flags&flagHasChecksum != 0,
		magicOK:     magic == wire.MagicSeekableTrailer,
	}, nil
}

// Load seeks to the end of rs, parses the trailing seekable-index
// frame, and returns the index with each entry's running UncompPos/
// CompPos populated by prefix sum. On success the stream position is
// reset to the start, matching spec.md §4.3; on failure it is left
// where the failing step stopped.
func Load(rs rw) (*Index, error) {
	footer, err := readFooterAtEnd(rs)
	if err != nil {
		return nil, err
	}
	if !footer.magicOK {
		return nil, ErrNoIndex
	}

	entrySz := 8
	if footer.hasChecksum {
		entrySz = 12
	}
	totalFrameSize := int64(footerSize) + int64(footer.n)*int64(entrySz) + 8

	frameStart, err := rs.Seek(-totalFrameSize, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	h, err := wire.ReadFrameHeader(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if h.Magic != wire.MagicSeekableIndex {
		return nil, fmt.Errorf("%w: bad seekable index magic", ErrFormat)
	}
	wantLen := uint32(footer.n)*uint32(entrySz) + footerSize //nolint:gosec // bounded by file size
	if h.Length != wantLen {
		return nil, fmt.Errorf("%w: length mismatch", ErrFormat)
	}

	idx := New(footer.hasChecksum)
	idx.FrameStart = uint64(frameStart) //nolint:gosec // file offsets fit int64/uint64 in practice
	idx.Entries = make([]Entry, footer.n)
	buf := make([]byte, entrySz)
	var uncompPos, compPos uint64
	for i := range idx.Entries {
		if _, err := io.ReadFull(rs, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		e := Entry{
			CompSz:    binary.LittleEndian.Uint32(buf[0:4]),
			UncompSz:  binary.LittleEndian.Uint32(buf[4:8]),
			UncompPos: uncompPos,
			CompPos:   compPos,
		}
		if footer.hasChecksum {
			e.Checksum = binary.LittleEndian.Uint32(buf[8:12])
		}
		idx.Entries[i] = e
		uncompPos += uint64(e.UncompSz)
		compPos += uint64(e.CompSz)
	}

	// Consume and re-verify the trailing footer we already parsed above.
	var tail [footerSize]byte
	if _, err := io.ReadFull(rs, tail[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return idx, nil
}

// Query performs the binary search of spec.md §4.3: find the data-frame
// entry containing uncompressed offset u, skipping transparently over
// zero-UncompSz (skippable-frame) entries, then walk backward so the
// returned entry is the preface immediately preceding that data frame
// (its CompPos is the correct seek target; the preface must still be
// consumed before the data that follows it).
func (idx *Index) Query(u uint64) (Entry, error) {
	_, preface, err := idx.queryIndices(u)
	if err != nil {
		return Entry{}, err
	}
	return idx.Entries[preface], nil
}

// SeekTarget is everything a caller needs to act on a Query result: where
// to seek the compressed stream, and where the resulting decompressed
// block starts/ends in the uncompressed stream, so the caller can compute
// an in-block byte offset from u.
type SeekTarget struct {
	CompPos       uint64 // file offset of the preface frame to seek to
	DataUncompPos uint64 // uncompressed offset of the start of the data frame
	DataUncompSz  uint32 // uncompressed length of that data frame
	DataChecksum  uint32 // the data entry's stored checksum, if HasChecksum
}

// QueryTarget is Query plus the data entry's own position/size/checksum,
// so the caller does not need to separately re-derive which data frame a
// preface entry precedes.
func (idx *Index) QueryTarget(u uint64) (SeekTarget, error) {
	data, preface, err := idx.queryIndices(u)
	if err != nil {
		return SeekTarget{}, err
	}
	return SeekTarget{
		CompPos:       idx.Entries[preface].CompPos,
		DataUncompPos: idx.Entries[data].UncompPos,
		DataUncompSz:  idx.Entries[data].UncompSz,
		DataChecksum:  idx.Entries[data].Checksum,
	}, nil
}

// queryIndices returns the index of the data-frame entry containing u and
// the index of the preface entry immediately preceding it.
//
// Because Add's prefix sums make UncompPos[i+1] == UncompPos[i] +
// UncompSz[i] for every non-last entry, the rightmost entry whose
// UncompPos <= u already satisfies UncompPos[i] <= u < UncompPos[i+1]
// (equivalently u < end of entry i) for every i short of the last one; at
// the last entry the same holds with the range closed at the top, which
// is exactly the already-checked u <= total. So no extra forward-skip
// over the landing entry is needed; skipForwardOverZero below only
// guards the degenerate case where the landing entry is itself
// zero-length (an index with no data entries at or after u).
func (idx *Index) queryIndices(u uint64) (data, preface int, err error) {
	n := len(idx.Entries)
	if n == 0 {
		return 0, 0, ErrNoIndex
	}

	last := idx.Entries[n-1]
	total := last.UncompPos + uint64(last.UncompSz)
	if u > total {
		return 0, 0, ErrRange
	}

	// Rightmost entry whose UncompPos <= u.
	i := sort.Search(n, func(i int) bool {
		return idx.Entries[i].UncompPos > u
	}) - 1
	if i < 0 {
		i = 0
	}

	i = skipForwardOverZero(idx.Entries, i)
	if i >= n {
		return 0, 0, ErrRange
	}

	data = i
	preface = i
	if preface > 0 && idx.Entries[preface-1].UncompSz == 0 {
		preface--
	}
	return data, preface, nil
}

func skipForwardOverZero(entries []Entry, i int) int {
	for i < len(entries) && entries[i].UncompSz == 0 {
		i++
	}
	return i
}

// TotalUncompressed returns the sum of all UncompSz (the logical stream
// length), or 0 for an empty index.
func (idx *Index) TotalUncompressed() uint64 {
	if len(idx.Entries) == 0 {
		return 0
	}
	last := idx.Entries[len(idx.Entries)-1]
	return last.UncompPos + uint64(last.UncompSz)
}

// TotalCompressed returns the sum of all CompSz (bytes of all frames
// the index covers, excluding the trailing indices themselves).
func (idx *Index) TotalCompressed() uint64 {
	var total uint64
	for _, e := range idx.Entries {
		total += uint64(e.CompSz)
	}
	return total
}
