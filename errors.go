package bgzf2

import (
	"errors"
	"fmt"
)

var (
	errNotWriter       = errors.New("handle was not opened in write mode")
	errNotReader       = errors.New("handle was not opened in read mode")
	errUnexpectedFrame = errors.New("data frame not preceded by a preface")
)

// Kind classifies a bgzf2 error, replacing spec.md §7's numeric return
// codes with a value callers can switch on or match via errors.As.
type Kind int

const (
	// IO covers an underlying read/write/seek failure, including a
	// seek attempted on a non-seekable stream.
	IO Kind = iota
	// Format covers a magic mismatch, length mismatch, reserved flag
	// bits set, or a truncated frame.
	Format
	// Limits covers a declared uncompressed size exceeding MaxBlockSize.
	Limits
	// Codec covers a Zstd-reported error or an output-size mismatch.
	Codec
	// Resource covers allocation failure or pool dispatch failure.
	Resource
	// NoIndex covers a seek or query that required an absent index.
	NoIndex
	// Range covers a query or seek past the end of the data.
	Range
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Format:
		return "format"
	case Limits:
		return "limits"
	case Codec:
		return "codec"
	case Resource:
		return "resource"
	case NoIndex:
		return "no_index"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

// Error is the error type every public bgzf2 operation returns on
// failure. Op names the failing operation for log correlation; Err, when
// set, is the wrapped cause (unwrapped by errors.Unwrap/errors.Is).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bgzf2: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("bgzf2: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeKind) work by comparing against a bare Kind
// wrapped in an *Error with no Op, the form sentinel comparisons use.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

func ioErr(op string, cause error) *Error      { return newErr(op, IO, cause) }
func formatErr(op string, cause error) *Error  { return newErr(op, Format, cause) }
func limitsErr(op string, cause error) *Error  { return newErr(op, Limits, cause) }
func codecErr(op string, cause error) *Error   { return newErr(op, Codec, cause) }
func resourceErr(op string, cause error) *Error { return newErr(op, Resource, cause) }
func noIndexErr(op string, cause error) *Error { return newErr(op, NoIndex, cause) }
func rangeErr(op string, cause error) *Error   { return newErr(op, Range, cause) }
