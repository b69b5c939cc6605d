// Package ocf implements Avro's Object Container File framing: the header,
// sync-marker protocol, and per-block compression atop the root package's
// binary codec (spec.md §3.3, §3.4, §4.5, §4.6, §4.8).
package ocf

import (
	"bytes"
	"compress/bzip2"
	"compress/flate"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/avro-go/avro"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// compressor is a per-block byte-in/byte-out transform, treated as an
// out-of-scope collaborator per spec.md §1 ("the compression back-ends ...
// treated as streaming byte-in/byte-out transforms with a CRC check where
// applicable").
type compressor interface {
	name() string
	compress(p []byte) ([]byte, error)
	decompress(p []byte) ([]byte, error)
}

var registry = map[string]compressor{}

func register(c compressor) { registry[c.name()] = c }

func init() {
	register(nullCompressor{})
	register(deflateCompressor{})
	register(snappyCompressor{})
	register(bzip2Compressor{})
	register(xzCompressor{})
	register(zstdCompressor{})
}

func lookup(name string) (compressor, error) {
	c, ok := registry[name]
	if !ok {
		return nil, &avro.CodecError{Kind: avro.ErrUnsupportedCodec, Err: fmt.Errorf("unsupported codec %q", name)}
	}
	return c, nil
}

type nullCompressor struct{}

func (nullCompressor) name() string { return "null" }
func (nullCompressor) compress(p []byte) ([]byte, error) {
	return p, nil
}
func (nullCompressor) decompress(p []byte) ([]byte, error) {
	return p, nil
}

type deflateCompressor struct{}

func (deflateCompressor) name() string { return "deflate" }

func (deflateCompressor) compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflateCompressor) decompress(p []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(p))
	defer r.Close()
	return io.ReadAll(r)
}

// snappyCompressor frames the snappy block-compressed payload with a 4-byte
// big-endian CRC-32 (standard IEEE polynomial, not Castagnoli) of the
// *uncompressed* bytes, per spec.md §4.6 and §9's open question resolution.
type snappyCompressor struct{}

func (snappyCompressor) name() string { return "snappy" }

func (snappyCompressor) compress(p []byte) ([]byte, error) {
	compressed := snappy.Encode(nil, p)
	checksum := crc32.ChecksumIEEE(p)
	out := make([]byte, len(compressed)+4)
	copy(out, compressed)
	out[len(compressed)+0] = byte(checksum >> 24)
	out[len(compressed)+1] = byte(checksum >> 16)
	out[len(compressed)+2] = byte(checksum >> 8)
	out[len(compressed)+3] = byte(checksum)
	return out, nil
}

func (snappyCompressor) decompress(p []byte) ([]byte, error) {
	if len(p) < 4 {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("snappy block shorter than its CRC-32 trailer")}
	}
	body, trailer := p[:len(p)-4], p[len(p)-4:]
	want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: err}
	}
	if got := crc32.ChecksumIEEE(out); got != want {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("snappy CRC-32 mismatch: got %#08x, want %#08x", got, want)}
	}
	return out, nil
}

// bzip2Compressor is decode-only: no pure-Go bzip2 encoder is available in
// this codebase's dependency corpus, so Compress reports UnsupportedCodec
// rather than shipping a hand-rolled encoder (spec.md §1 treats compression
// back-ends as out-of-scope collaborators, not something to reimplement).
type bzip2Compressor struct{}

func (bzip2Compressor) name() string { return "bzip2" }

func (bzip2Compressor) compress([]byte) ([]byte, error) {
	return nil, &avro.CodecError{Kind: avro.ErrUnsupportedCodec, Err: fmt.Errorf("bzip2 encoding is not supported; decode only")}
}

func (bzip2Compressor) decompress(p []byte) ([]byte, error) {
	return io.ReadAll(bzip2.NewReader(bytes.NewReader(p)))
}

type xzCompressor struct{}

func (xzCompressor) name() string { return "xz" }

func (xzCompressor) compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (xzCompressor) decompress(p []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: err}
	}
	return io.ReadAll(r)
}

type zstdCompressor struct{}

func (zstdCompressor) name() string { return "zstandard" }

func (zstdCompressor) compress(p []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(p, nil), nil
}

func (zstdCompressor) decompress(p []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(p, nil)
	if err != nil {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: err}
	}
	return out, nil
}
