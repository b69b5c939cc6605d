package ocf

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/avro-go/avro"
)

// DefaultBlockSize is the default in-memory block-buffer threshold before a
// Writer compresses and flushes a block (spec.md §4.8).
const DefaultBlockSize = 64 * 1024

var magicBytes = [4]byte{'O', 'b', 'j', 0x01}

// headerSchema and blockSchema model the two framing records of spec.md
// §3.3/§3.4 as ordinary Avro records, so the OCF layer rides on the same
// Marshal/Unmarshal machinery as any other datum instead of hand-rolling a
// second binary codec. A record{count:long, data:bytes} encodes to exactly
// {object_count, serialized_size, payload} since an Avro bytes field is
// itself a length-prefixed byte run.
var headerSchema = avro.MustParse(`{
  "type": "record",
  "name": "org.apache.avro.file.Header",
  "fields": [
    {"name": "magic", "type": {"type": "fixed", "name": "Magic", "size": 4}},
    {"name": "meta", "type": {"type": "map", "values": "bytes"}},
    {"name": "sync", "type": {"type": "fixed", "name": "Sync", "size": 16}}
  ]
}`)

var blockSchema = avro.MustParse(`{
  "type": "record",
  "name": "org.apache.avro.file.Block",
  "fields": [
    {"name": "count", "type": "long"},
    {"name": "data", "type": "bytes"},
    {"name": "sync", "type": {"type": "fixed", "name": "BlockSync", "size": 16}}
  ]
}`)

type ocfHeader struct {
	Magic [4]byte           `avro:"magic"`
	Meta  map[string][]byte `avro:"meta"`
	Sync  [16]byte          `avro:"sync"`
}

type ocfBlock struct {
	Count int64    `avro:"count"`
	Data  []byte   `avro:"data"`
	Sync  [16]byte `avro:"sync"`
}

// Header is the caller-visible view of an OCF file's metadata.
type Header struct {
	Schema *avro.Graph
	Codec  string
	Sync   [16]byte
}

// Writer implements the OCF Writer state of spec.md §4.8: it writes the
// header eagerly, then accumulates encoded datums into a block buffer,
// compressing and flushing when the buffer passes BlockSize or on an
// explicit Flush/Close.
type Writer struct {
	w          io.Writer
	schema     *avro.Graph
	compressor compressor
	codecName  string
	sync       [16]byte
	BlockSize  int

	buf   bytes.Buffer
	count int64
}

// NewWriter writes the OCF header (with a fresh random sync marker) for
// schema, compressed with codecName ("null", "deflate", "snappy", "bzip2"
// (decode-only; encoding with it fails), "xz", "zstandard"), and returns a
// Writer ready to accept datums.
func NewWriter(w io.Writer, schema *avro.Graph, codecName string) (*Writer, error) {
	c, err := lookup(codecName)
	if err != nil {
		return nil, err
	}

	var sync [16]byte
	if _, err := rand.Read(sync[:]); err != nil {
		return nil, fmt.Errorf("generating sync marker: %w", err)
	}

	h := ocfHeader{
		Magic: magicBytes,
		Meta: map[string][]byte{
			"avro.schema": []byte(schema.String()),
			"avro.codec":  []byte(codecName),
		},
		Sync: sync,
	}
	hb, err := avro.Marshal(headerSchema, h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(hb); err != nil {
		return nil, err
	}

	return &Writer{
		w:          w,
		schema:     schema,
		compressor: c,
		codecName:  codecName,
		sync:       sync,
		BlockSize:  DefaultBlockSize,
	}, nil
}

// Append encodes v against the writer's schema and adds it to the current
// block, flushing automatically once the buffered block passes BlockSize.
func (w *Writer) Append(v interface{}) error {
	b, err := avro.Marshal(w.schema, v)
	if err != nil {
		return err
	}
	w.buf.Write(b)
	w.count++
	if w.buf.Len() >= w.BlockSize {
		return w.Flush()
	}
	return nil
}

// Flush compresses and writes out the current block, if non-empty.
func (w *Writer) Flush() error {
	if w.count == 0 {
		return nil
	}
	compressed, err := w.compressor.compress(w.buf.Bytes())
	if err != nil {
		return err
	}
	blk := ocfBlock{Count: w.count, Data: compressed, Sync: w.sync}
	bb, err := avro.Marshal(blockSchema, blk)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(bb); err != nil {
		return err
	}
	w.buf.Reset()
	w.count = 0
	return nil
}

// Close finalizes the file with a best-effort flush (spec.md §4.8: dropping
// an unfinalized writer may lose trailing data; Close is how a caller avoids
// that).
func (w *Writer) Close() error {
	return w.Flush()
}

// Reader implements the OCF Start → HeaderRead → BlockLoop → End state
// machine of spec.md §4.5.
type Reader struct {
	br         *bufio.Reader
	header     ocfHeader
	schema     *avro.Graph
	compressor compressor

	payload   *bytes.Reader
	decoder   *avro.Decoder
	remaining int64
}

// NewReader reads and validates the OCF header. If schemaOverride is nil,
// the schema embedded in the file's "avro.schema" metadata is parsed and
// used for every datum.
func NewReader(r io.Reader, schemaOverride *avro.Graph) (*Reader, error) {
	br := bufio.NewReader(r)

	var h ocfHeader
	if err := avro.NewDecoder(br, headerSchema).Decode(&h); err != nil {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("reading OCF header: %w", err)}
	}
	if h.Magic != magicBytes {
		return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("bad OCF magic: %v", h.Magic)}
	}

	schema := schemaOverride
	if schema == nil {
		text, ok := h.Meta["avro.schema"]
		if !ok {
			return nil, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("OCF header missing avro.schema metadata")}
		}
		g, err := avro.Parse(string(text))
		if err != nil {
			return nil, err
		}
		schema = g
	}

	codecName := "null"
	if b, ok := h.Meta["avro.codec"]; ok {
		codecName = string(b)
	}
	c, err := lookup(codecName)
	if err != nil {
		return nil, err
	}

	return &Reader{br: br, header: h, schema: schema, compressor: c}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	codecName := "null"
	if b, ok := r.header.Meta["avro.codec"]; ok {
		codecName = string(b)
	}
	return Header{Schema: r.schema, Codec: codecName, Sync: r.header.Sync}
}

// Read decodes the next datum into v. It returns (false, nil) when the file
// is exhausted cleanly; a truncated block surfaces as a non-nil error
// (spec.md §4.5).
func (r *Reader) Read(v interface{}) (bool, error) {
	for r.remaining == 0 {
		if _, err := r.br.Peek(1); err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}

		var blk ocfBlock
		if err := avro.NewDecoder(r.br, blockSchema).Decode(&blk); err != nil {
			return false, &avro.CodecError{Kind: avro.ErrUnexpectedEOF, Err: fmt.Errorf("reading OCF block: %w", err)}
		}
		if blk.Sync != r.header.Sync {
			return false, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("sync marker mismatch")}
		}

		payload, err := r.compressor.decompress(blk.Data)
		if err != nil {
			return false, err
		}
		r.payload = bytes.NewReader(payload)
		r.decoder = avro.NewDecoder(r.payload, r.schema)
		r.remaining = blk.Count
		if r.remaining < 0 {
			return false, &avro.CodecError{Kind: avro.ErrCorruptBlock, Err: fmt.Errorf("negative block object_count: %d", blk.Count)}
		}
	}

	if err := r.decoder.Decode(v); err != nil {
		return false, &avro.CodecError{Kind: avro.ErrBlockSizeMismatch, Err: fmt.Errorf("decoding block item: %w", err)}
	}
	r.remaining--
	if r.remaining == 0 && r.payload.Len() != 0 {
		return false, &avro.CodecError{Kind: avro.ErrBlockSizeMismatch, Err: fmt.Errorf("%d surplus bytes after object_count items", r.payload.Len())}
	}
	return true, nil
}
