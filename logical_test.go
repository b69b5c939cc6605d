package avro

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalBytesRoundTrip(t *testing.T) {
	schema := `{"type":"bytes","logicalType":"decimal","precision":10,"scale":2}`
	g := MustParse(schema)

	d := Decimal{Coefficient: big.NewInt(12345), Scale: 2}
	buf, err := Marshal(g, d)
	require.NoError(t, err)

	var out Decimal
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, 0, d.Coefficient.Cmp(out.Coefficient))
	assert.Equal(t, 2, out.Scale)
}

func TestDecimalNegativeFixedRoundTrip(t *testing.T) {
	schema := `{"type":"fixed","name":"Dec","size":5,"logicalType":"decimal","precision":9,"scale":0}`
	g := MustParse(schema)

	d := Decimal{Coefficient: big.NewInt(-123456789), Scale: 0}
	buf, err := Marshal(g, d)
	require.NoError(t, err)
	require.Len(t, buf, 5)

	var out Decimal
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, 0, d.Coefficient.Cmp(out.Coefficient))
}

func TestUUIDRoundTrip(t *testing.T) {
	g := MustParse(`{"type":"string","logicalType":"uuid"}`)
	u := uuid.New()

	buf, err := Marshal(g, u)
	require.NoError(t, err)

	var out uuid.UUID
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, u, out)
}

func TestDateRoundTrip(t *testing.T) {
	g := MustParse(`{"type":"int","logicalType":"date"}`)
	d := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

	buf, err := Marshal(g, d)
	require.NoError(t, err)

	var out time.Time
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.True(t, d.Equal(out))
}

func TestTimestampMicrosRoundTrip(t *testing.T) {
	g := MustParse(`{"type":"long","logicalType":"timestamp-micros"}`)
	ts := time.Date(2024, 6, 1, 12, 30, 45, 123000, time.UTC)

	buf, err := Marshal(g, ts)
	require.NoError(t, err)

	var out time.Time
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.True(t, ts.Equal(out))
}

func TestDurationRoundTrip(t *testing.T) {
	g := MustParse(`{"type":"fixed","name":"D","size":12,"logicalType":"duration"}`)
	d := Duration{Months: 1, Days: 2, Millis: 3000}

	buf, err := Marshal(g, d)
	require.NoError(t, err)
	require.Len(t, buf, 12)

	var out Duration
	require.NoError(t, Unmarshal(buf, g, &out))
	assert.Equal(t, d, out)
}

func TestUnrecognizedLogicalTypeDegradesSilently(t *testing.T) {
	g, err := Parse(`{"type":"int","logicalType":"made-up"}`)
	require.NoError(t, err)
	assert.Equal(t, LogicalNone, g.Node(g.Root()).Logical)
}

func TestIncompatibleLogicalBaseDegradesSilently(t *testing.T) {
	g, err := Parse(`{"type":"string","logicalType":"date"}`)
	require.NoError(t, err)
	assert.Equal(t, LogicalNone, g.Node(g.Root()).Logical)
}
