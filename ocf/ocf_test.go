package ocf

import (
	"bytes"
	"testing"

	"github.com/avro-go/avro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordSchema = `{"type":"record","name":"T","fields":[{"name":"f","type":"string"}]}`

type rec struct {
	F string `avro:"f"`
}

func TestWriteReadRoundTripNullCodec(t *testing.T) {
	g := avro.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, g, "null")
	require.NoError(t, err)

	require.NoError(t, w.Append(rec{F: "foo"}))
	require.NoError(t, w.Append(rec{F: "bar"}))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", r.Header().Codec)

	var got []rec
	for {
		var v rec
		ok, err := r.Read(&v)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []rec{{F: "foo"}, {F: "bar"}}, got)
}

func TestWriteReadRoundTripDeflate(t *testing.T) {
	g := avro.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, g, "deflate")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, w.Append(rec{F: "value"}))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, nil)
	require.NoError(t, err)

	count := 0
	for {
		var v rec
		ok, err := r.Read(&v)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, "value", v.F)
		count++
	}
	assert.Equal(t, 50, count)
}

func TestWriteReadRoundTripSnappy(t *testing.T) {
	g := avro.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, g, "snappy")
	require.NoError(t, err)
	require.NoError(t, w.Append(rec{F: "snap"}))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, nil)
	require.NoError(t, err)
	var v rec
	ok, err := r.Read(&v)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "snap", v.F)
}

func TestSyncMarkerMismatchIsCorruptBlock(t *testing.T) {
	g := avro.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, g, "null")
	require.NoError(t, err)
	require.NoError(t, w.Append(rec{F: "foo"}))
	require.NoError(t, w.Close())

	corrupted := buf.Bytes()
	// Flip a byte inside the trailing 16-byte sync marker of the block.
	corrupted[len(corrupted)-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(corrupted), nil)
	require.NoError(t, err)
	var v rec
	_, err = r.Read(&v)
	require.Error(t, err)
	var ce *avro.CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, avro.ErrCorruptBlock, ce.Kind)
}

func TestUnknownCodecRejected(t *testing.T) {
	g := avro.MustParse(recordSchema)
	var buf bytes.Buffer
	_, err := NewWriter(&buf, g, "made-up-codec")
	require.Error(t, err)
	var ce *avro.CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, avro.ErrUnsupportedCodec, ce.Kind)
}

func TestEmptyFileReadsCleanlyToEnd(t *testing.T) {
	g := avro.MustParse(recordSchema)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, g, "null")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, nil)
	require.NoError(t, err)
	var v rec
	ok, err := r.Read(&v)
	require.NoError(t, err)
	assert.False(t, ok)
}
