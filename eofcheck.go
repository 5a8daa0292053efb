package bgzf2

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/vertti/bgzf2/internal/wire"
)

// ErrWrongFileType is returned by CheckEOF when f cannot be stat'ed or
// is a directory.
var ErrWrongFileType = errors.New("bgzf2: not a regular file")

// checkEOFMagicLen is the length of the file tail CheckEOF reads: the
// 4-byte seekable-index trailing magic only, the last field of the
// footer sindex.CheckEOF parses off a positioned Seek+Read.
const checkEOFMagicLen = 4 // trailing magic only; flags/count vary per file

// CheckEOF reports whether an already-open file ends with a valid
// seekable-index trailing magic, using a single positioned ReadAt
// rather than moving the file's read/write offset — useful for a
// caller, such as the `bgzf2 index` CLI subcommand, that wants to probe
// a file before committing to opening it as a Handle and loading the
// full index.
func CheckEOF(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		return false, ErrWrongFileType
	}

	var tail [checkEOFMagicLen]byte
	if _, err := f.ReadAt(tail[:], fi.Size()-int64(checkEOFMagicLen)); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(tail[:]) == wire.MagicSeekableTrailer, nil
}
