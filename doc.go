// Package bgzf2 implements a block-structured container format built on
// top of Zstandard: an uncompressed byte stream stored as an ordered
// sequence of independently-decodable Zstd frames, interleaved with Zstd
// skippable frames carrying container metadata and two trailing indices.
//
// A file produced by this package remains a fully conforming Zstd
// stream — any standard Zstd decoder can decompress it by ignoring the
// skippable frames it does not understand. On top of that, bgzf2 adds
// random access by uncompressed byte offset (Handle.Seek, backed by the
// seekable index), optional genomic-range random access
// (Handle.IdxAdd/Handle.Query, backed by the genomic index), and
// parallel encode/decode pipelines (Handle.AttachThreadPool).
//
// Basic use mirrors package bufio: Open a path in "r" or "w" mode, then
// Write or Read against the returned Handle, and Close when done.
package bgzf2
