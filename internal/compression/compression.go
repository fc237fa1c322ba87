// Package compression maps jgit's compression levels onto the klauspost
// gzip and zstd codecs. Snapshot archives are gzip; the OCI backend wraps
// them in a zstd layer for transport.
package compression

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Level selects a speed/ratio tradeoff shared by both codecs.
type Level int

const (
	Fastest Level = 1
	Default Level = 2
	Best    Level = 3
)

func (l Level) gzip() int {
	switch l {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func (l Level) zstd() zstd.EncoderLevel {
	switch l {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// NewGzipWriter returns a gzip writer at the given level.
func NewGzipWriter(w io.Writer, level Level) (*gzip.Writer, error) {
	return gzip.NewWriterLevel(w, level.gzip())
}

// NewGzipReader returns a gzip reader over r.
func NewGzipReader(r io.Reader) (*gzip.Reader, error) {
	return gzip.NewReader(r)
}
