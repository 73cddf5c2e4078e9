package backup

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a backup is encoded before upload.
type Compression string

const (
	None Compression = "none"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", None:
		return None, nil
	case Zstd, LZ4:
		return Compression(s), nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// Extension is appended to object names.
func (c Compression) Extension() string {
	switch c {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that writes are compressed with c. Close flushes
// the compressor but does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case None, "":
		return nopWriteCloser{w}, nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// NewReader wraps r so that reads are decompressed with c.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case None, "":
		return io.NopCloser(r), nil
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}
