package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names a compression format for snapshot blobs.
type Codec string

const (
	Identity Codec = "identity"
	Gzip     Codec = "gzip"
	Zstd     Codec = "zstd"
	Snappy   Codec = "snappy"
)

// Default is used when no codec is configured.
const Default = Gzip

// Codecs lists every supported codec.
var Codecs = []Codec{Gzip, Zstd, Snappy, Identity}

// Parse returns the codec with the given (case insensitive) name.
func Parse(name string) (Codec, error) {
	c := Codec(strings.ToLower(strings.TrimSpace(name)))
	switch c {
	case "":
		return Default, nil
	case "none":
		return Identity, nil
	case Identity, Gzip, Zstd, Snappy:
		return c, nil
	}
	return "", fmt.Errorf("unsupported codec %q (use one of %v)", name, Codecs)
}

// ContentEncoding returns the HTTP Content-Encoding token of the codec.
func (c Codec) ContentEncoding() string {
	if c == Snappy {
		return "x-snappy-framed"
	}
	return string(c)
}

var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// HasMagic reports whether data starts the way an encoding with c does.
// Identity accepts JSON objects and arrays only.
func (c Codec) HasMagic(data []byte) bool {
	switch c {
	case Gzip:
		return bytes.HasPrefix(data, gzipMagic)
	case Zstd:
		return bytes.HasPrefix(data, zstdMagic)
	case Snappy:
		return bytes.HasPrefix(data, snappyMagic)
	case Identity:
		return len(data) > 0 && (data[0] == '{' || data[0] == '[')
	}
	return false
}

// --------------------------------------------------------------------------
// Streaming
// --------------------------------------------------------------------------

// Compressor is a WriteCloser whose Close flushes the final content but does
// not close the underlying Writer.
type Compressor io.WriteCloser

// Decompressor is a ReadCloser whose Close releases decoder state but does
// not close the underlying Reader.
type Decompressor io.ReadCloser

// NewWriter returns a Compressor encoding into w.
func NewWriter(w io.Writer, c Codec) (Compressor, error) {
	switch c {
	case Identity:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported codec %q", c)
}

// NewReader returns a Decompressor of r encoded with c.
func NewReader(r io.Reader, c Codec) (Decompressor, error) {
	switch c {
	case Identity:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported codec %q", c)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// --------------------------------------------------------------------------
// Whole buffers
// --------------------------------------------------------------------------

// Encode compresses src into a new buffer.
func Encode(c Codec, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(src) / 4)
	w, err := NewWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s encode: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s encode: %w", c, err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses src, which must have been produced by Encode with the
// same codec.
func Decode(c Codec, src []byte) ([]byte, error) {
	if !c.HasMagic(src) {
		return nil, fmt.Errorf("%s decode: missing magic header", c)
	}
	r, err := NewReader(bytes.NewReader(src), c)
	if err != nil {
		return nil, fmt.Errorf("%s decode: %w", c, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s decode: %w", c, err)
	}
	return out, nil
}
