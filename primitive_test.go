package avro

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintBoundaries(t *testing.T) {
	// Nine 0x80-continuation bytes followed by a terminator: exactly the
	// legal 10-byte limit (spec.md §8 boundary case).
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	v, err := readLong(newSliceCursor(buf))
	require.NoError(t, err)
	_ = v

	// Eleven bytes (ten continuation bytes and a terminator) overflow.
	overflow := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err = readLong(newSliceCursor(overflow))
	require.Error(t, err)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrIntegerOverflow, ce.Kind)
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, -1, 1, -64, 64, 1000000, -1000000, 9223372036854775807, -9223372036854775808}
	for _, v := range values {
		s := &sink{}
		writeLong(s, v)
		got, err := readLong(newSliceCursor(s.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(s.Bytes()), varintLen(v))
	}
}

func TestReadIntOutOfRange(t *testing.T) {
	s := &sink{}
	writeLong(s, int64(1)<<40)
	_, err := readInt(newSliceCursor(s.Bytes()))
	require.Error(t, err)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrIntegerOutOfRange, ce.Kind)
}

func TestFloatDoubleRoundTrip(t *testing.T) {
	s := &sink{}
	writeFloat(s, 3.14159)
	got, err := readFloat(newSliceCursor(s.Bytes()))
	require.NoError(t, err)
	assert.InDelta(t, float32(3.14159), got, 0.00001)

	s2 := &sink{}
	writeDouble(s2, 2.718281828)
	gotD, err := readDouble(newSliceCursor(s2.Bytes()))
	require.NoError(t, err)
	assert.InDelta(t, 2.718281828, gotD, 1e-9)
}

func TestBytesBorrowsFromSliceCursor(t *testing.T) {
	s := &sink{}
	writeBytes(s, []byte("hello"))
	buf := s.Bytes()
	c := newSliceCursor(buf)
	got, err := readBytes(c)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// Borrow soundness (spec.md §8 property #2): the returned slice must
	// alias the original input buffer, not a copy of it.
	got[0] = 'H'
	assert.Equal(t, byte('H'), buf[len(buf)-len(got)])
}

func TestReadBytesRejectsOversizedLength(t *testing.T) {
	s := &sink{}
	writeLong(s, 1000) // declared length far exceeds the actual buffer
	_, err := readBytes(newSliceCursor(s.Bytes()))
	require.Error(t, err)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrInvalidLength, ce.Kind)
}

func TestReaderCursorAlwaysCopies(t *testing.T) {
	s := &sink{}
	writeString(s, "borrowed?")
	buf := s.Bytes()

	c := newReaderCursor(&constantReader{buf})
	got, err := readString(c)
	require.NoError(t, err)
	assert.Equal(t, "borrowed?", got)
}

type constantReader struct{ buf []byte }

func (r *constantReader) Read(p []byte) (int, error) {
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
