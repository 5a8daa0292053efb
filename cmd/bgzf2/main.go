// bgzf2 packs and unpacks BGZF2 container files, and inspects their
// trailing indices.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vertti/bgzf2"
)

const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitError
	}

	var err error
	switch args[0] {
	case "pack":
		err = runPack(args[1:])
	case "unpack":
		err = runUnpack(args[1:])
	case "index":
		err = runIndex(args[1:])
	case "query":
		err = runQuery(args[1:])
	case "-h", "--help", "help":
		usage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "bgzf2: unknown subcommand %q\n", args[0])
		usage()
		return exitError
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	return exitSuccess
}

func usage() {
	fmt.Fprintf(os.Stderr, `bgzf2 - BGZF2 container pack/unpack/inspect tool

Usage:
  bgzf2 pack   [-b blocksize] [-l level] [-w workers] [-checksums] -i in -o out
  bgzf2 unpack [-w workers] -i in -o out
  bgzf2 index  -i file.bgz2
  bgzf2 query  -i file.bgz2 -tid N -begin B -end E
`)
}

func runPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	blockSize := fs.Uint("b", bgzf2.DefaultBlockSize, "target uncompressed block size")
	level := fs.Int("l", bgzf2.DefaultLevel, "zstd compression level")
	workers := fs.Int("w", 0, "compression workers (0: single-threaded)")
	checksums := fs.Bool("checksums", false, "store per-entry checksums in the seekable index")
	in := fs.String("i", "", "input file")
	out := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("pack requires -i and -o")
	}

	mode := fmt.Sprintf("w%d", *level)
	h, err := bgzf2.Open(*out, mode, bgzf2.WithBlockSize(uint32(*blockSize)), bgzf2.WithEntryChecksums(*checksums)) //nolint:gosec // flag-bounded
	if err != nil {
		return err
	}
	if *workers > 0 {
		if err := h.AttachThreadPool(*workers); err != nil {
			_ = h.Close()
			return err
		}
	}

	f, err := os.Open(*in) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		_ = h.Close()
		return fmt.Errorf("cannot open input: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only; nothing actionable on close failure

	if err := copyInto(h, f); err != nil {
		_ = h.Close()
		return err
	}
	return h.Close()
}

func copyInto(h *bgzf2.Handle, r io.Reader) error {
	buf := make([]byte, 1<<20)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n], true); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF { //nolint:errorlint // io.Reader documents a bare io.EOF
				return nil
			}
			return err
		}
	}
}

func runUnpack(args []string) error {
	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	workers := fs.Int("w", 0, "decompression workers (0: single-threaded)")
	in := fs.String("i", "", "input file")
	out := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("unpack requires -i and -o")
	}

	h, err := bgzf2.Open(*in, "r")
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort on the read side

	if *workers > 0 {
		if err := h.AttachThreadPool(*workers); err != nil {
			return err
		}
	}

	f, err := os.Create(*out) //nolint:gosec // CLI tool needs to create user-specified files
	if err != nil {
		return fmt.Errorf("cannot create output: %w", err)
	}
	defer f.Close() //nolint:errcheck // flushed explicitly below

	buf := make([]byte, 1<<20)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	in := fs.String("i", "", "file to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("index requires -i")
	}

	f, err := os.Open(*in) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return err
	}
	ok, err := bgzf2.CheckEOF(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no seekable index (or stream not closed properly)")
		return nil
	}

	h, err := bgzf2.Open(*in, "r")
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort on the read side

	if err := h.LoadSeekableIndex(); err != nil {
		return err
	}
	fmt.Printf("seekable index present\n")
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	in := fs.String("i", "", "file to query")
	tid := fs.Int("tid", -1, "reference id (-1 for unmapped)")
	begin := fs.Int64("begin", 0, "range start")
	end := fs.Int64("end", 0, "range end")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("query requires -i")
	}

	h, err := bgzf2.Open(*in, "r")
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort on the read side

	off, err := h.Query(int32(*tid), *begin, *end) //nolint:gosec // flag-bounded
	if err != nil {
		return err
	}
	fmt.Println(off)
	return nil
}
