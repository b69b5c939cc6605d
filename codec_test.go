package avro

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStructRoundTrip(t *testing.T) {
	schema := `{
	  "type": "record",
	  "name": "Person",
	  "fields": [
	    {"name": "name", "type": "string"},
	    {"name": "age", "type": "int"},
	    {"name": "tags", "type": {"type": "array", "items": "string"}}
	  ]
	}`
	type person struct {
		Name string   `avro:"name"`
		Age  int32    `avro:"age"`
		Tags []string `avro:"tags"`
	}

	g := MustParse(schema)
	in := person{Name: "Ada", Age: 36, Tags: []string{"math", "computing"}}

	buf, err := Marshal(g, in)
	require.NoError(t, err)

	var out person
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, in, out)
}

func TestEnumStructField(t *testing.T) {
	schema := `{
	  "type": "record",
	  "name": "Traffic",
	  "fields": [
	    {"name": "light", "type": {"type": "enum", "name": "Color", "symbols": ["red", "yellow", "green"]}}
	  ]
	}`
	type traffic struct {
		Light string `avro:"light"`
	}

	g := MustParse(schema)
	buf, err := Marshal(g, traffic{Light: "yellow"})
	require.NoError(t, err)

	var out traffic
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, "yellow", out.Light)
}

type color int

func (c color) String() string { return [...]string{"red", "yellow", "green"}[c] }

func TestEnumStringerField(t *testing.T) {
	schema := `{"type":"enum","name":"Color","symbols":["red","yellow","green"]}`
	g := MustParse(schema)

	// color has an integer kind, so encodeEnumFrom writes its index (1)
	// rather than calling String(); both name the symbol "yellow".
	buf, err := Marshal(g, color(1))
	require.NoError(t, err)

	var out string
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, "yellow", out)
}

func TestEnumRejectsUnknownSymbol(t *testing.T) {
	schema := `{"type":"enum","name":"Color","symbols":["red","green"]}`
	_, err := Marshal(MustParse(schema), "blue")
	require.Error(t, err)
}

func TestFixedArrayField(t *testing.T) {
	schema := `{"type":"fixed","name":"MD5","size":16}`
	g := MustParse(schema)

	var in [16]byte
	for i := range in {
		in[i] = byte(i)
	}
	buf, err := Marshal(g, in)
	require.NoError(t, err)
	require.Len(t, buf, 16)

	var out [16]byte
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, in, out)
}

func TestMapOfRecords(t *testing.T) {
	schema := `{
	  "type": "map",
	  "values": {
	    "type": "record",
	    "name": "Point",
	    "fields": [{"name": "x", "type": "int"}, {"name": "y", "type": "int"}]
	  }
	}`
	type point struct {
		X int32 `avro:"x"`
		Y int32 `avro:"y"`
	}

	g := MustParse(schema)
	in := map[string]point{"origin": {X: 0, Y: 0}, "a": {X: 1, Y: 2}}
	buf, err := Marshal(g, in)
	require.NoError(t, err)

	out := make(map[string]point)
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, in, out)
}

func TestMissingFieldWithoutDefaultFails(t *testing.T) {
	schema := `{
	  "type": "record",
	  "name": "R",
	  "fields": [{"name": "a", "type": "int"}, {"name": "b", "type": "string"}]
	}`
	type partial struct {
		A int32 `avro:"a"`
	}
	_, err := Marshal(MustParse(schema), partial{A: 1})
	require.Error(t, err)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrMissingField, ce.Kind)
}

func TestMissingFieldWithDefaultFillsIn(t *testing.T) {
	schema := `{
	  "type": "record",
	  "name": "R",
	  "fields": [
	    {"name": "a", "type": "int"},
	    {"name": "b", "type": "string", "default": "unset"}
	  ]
	}`
	type partial struct {
		A int32 `avro:"a"`
	}
	g := MustParse(schema)
	buf, err := Marshal(g, partial{A: 1})
	require.NoError(t, err)

	type full struct {
		A int32  `avro:"a"`
		B string `avro:"b"`
	}
	var out full
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, "unset", out.B)
}

func TestRecordFieldOrderIsSchemaOrderNotStructOrder(t *testing.T) {
	schema := `{
	  "type": "record",
	  "name": "R",
	  "fields": [{"name": "a", "type": "int"}, {"name": "b", "type": "int"}]
	}`
	type reversed struct {
		B int32 `avro:"b"`
		A int32 `avro:"a"`
	}
	g := MustParse(schema)
	buf, err := Marshal(g, reversed{A: 1, B: 2})
	require.NoError(t, err)
	// a=1 encodes to zigzag(1)=0x02, b=2 encodes to zigzag(2)=0x04
	assert.Equal(t, []byte{0x02, 0x04}, buf)
}

func TestDecoderFromReader(t *testing.T) {
	schema := `"long"`
	g := MustParse(schema)
	buf, err := Marshal(g, int64(42))
	require.NoError(t, err)

	dec := NewDecoder(bytes.NewReader(buf), g)
	var out int64
	require.NoError(t, dec.Decode(&out))
	assert.EqualValues(t, 42, out)
}
