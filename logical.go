package avro

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// applyLogical inspects a type object for a "logicalType" attribute and, if
// present and the base node is a compatible carrier, marks the node
// accordingly (spec.md §4.7). An unrecognized logicalType, or one whose
// declared base is incompatible, degrades silently to the plain base type
// per the Avro spec and spec.md §3.1's invariant — this is not an error.
func (b *builder) applyLogical(ref NodeRef, m map[string]interface{}, path string) (NodeRef, error) {
	lt, ok := m["logicalType"].(string)
	if !ok {
		return ref, nil
	}
	n := &b.nodes[ref]

	switch lt {
	case "decimal":
		if n.Kind != KindBytes && n.Kind != KindFixed {
			return ref, nil
		}
		precision, ok := m["precision"]
		if !ok {
			return ref, nil
		}
		p, err := jsonInt(precision)
		if err != nil || p <= 0 {
			return ref, nil
		}
		scale := 0
		if s, ok := m["scale"]; ok {
			sv, err := jsonInt(s)
			if err != nil {
				return ref, nil
			}
			scale = sv
		}
		if scale > p {
			return nilRef, schemaErrorf("default", path, "decimal scale %d exceeds precision %d", scale, p)
		}
		n.Logical, n.Precision, n.Scale = LogicalDecimal, p, scale

	case "uuid":
		if n.Kind == KindString {
			n.Logical = LogicalUUID
		}

	case "date":
		if n.Kind == KindInt {
			n.Logical = LogicalDate
		}

	case "time-millis":
		if n.Kind == KindInt {
			n.Logical = LogicalTimeMillis
		}

	case "time-micros":
		if n.Kind == KindLong {
			n.Logical = LogicalTimeMicros
		}

	case "timestamp-millis":
		if n.Kind == KindLong {
			n.Logical = LogicalTimestampMillis
		}

	case "timestamp-micros":
		if n.Kind == KindLong {
			n.Logical = LogicalTimestampMicros
		}

	case "duration":
		if n.Kind == KindFixed && n.Size == 12 {
			n.Logical = LogicalDuration
		}

	default:
		// UnsupportedLogicalType: non-fatal, degrades to base (spec.md §4.1).
	}

	return ref, nil
}

// Decimal is the native representation of an Avro "decimal" logical type: a
// two's-complement big integer coefficient interpreted at the declared
// scale (spec.md §4.7).
type Decimal struct {
	Coefficient *big.Int
	Scale       int
}

// Rat returns the decimal as an exact rational number.
func (d Decimal) Rat() *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(d.Coefficient, denom)
}

// Duration is the native representation of Avro's "duration" logical type:
// three little-endian unsigned 32-bit components (spec.md §4.7).
type Duration struct {
	Months uint32
	Days   uint32
	Millis uint32
}

func decimalFromBytes(b []byte, scale int) Decimal {
	coeff := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		// Negative two's-complement: subtract 2^(8*len(b)).
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
		coeff.Sub(coeff, full)
	}
	return Decimal{Coefficient: coeff, Scale: scale}
}

// decimalToBytes renders the decimal's coefficient as two's-complement
// big-endian bytes. When size >= 0 the result is padded/sign-extended to
// exactly that many bytes (Fixed base); size < 0 yields the minimal-length
// encoding (Bytes base).
func decimalToBytes(d Decimal, size int) ([]byte, error) {
	v := d.Coefficient
	if v == nil {
		v = new(big.Int)
	}
	var raw []byte
	if v.Sign() >= 0 {
		raw = v.Bytes()
		if len(raw) == 0 || raw[0]&0x80 != 0 {
			raw = append([]byte{0x00}, raw...)
		}
	} else {
		nbits := new(big.Int).Not(v).BitLen() + 1
		nbytes := (nbits + 7) / 8
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*nbytes))
		twos := new(big.Int).Add(full, v)
		raw = twos.Bytes()
		for len(raw) < nbytes {
			raw = append([]byte{0x00}, raw...)
		}
	}

	if size < 0 {
		return raw, nil
	}
	if len(raw) > size {
		return nil, codecErrorf(ErrInvalidLogical, "", "decimal coefficient does not fit in %d bytes", size)
	}
	pad := byte(0x00)
	if v.Sign() < 0 {
		pad = 0xFF
	}
	out := make([]byte, size-len(raw))
	for i := range out {
		out[i] = pad
	}
	return append(out, raw...), nil
}

// dateFromDays / daysFromDate convert between Avro's "days since epoch" and
// time.Time at UTC midnight.
func dateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}

func daysFromDate(t time.Time) int32 {
	return int32(t.UTC().Unix() / 86400)
}

func timeMillisFromInt(ms int32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func intFromTimeMillis(d time.Duration) int32 {
	return int32(d / time.Millisecond)
}

func timeMicrosFromLong(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func longFromTimeMicros(d time.Duration) int64 {
	return int64(d / time.Microsecond)
}

func timestampMillisFromLong(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func longFromTimestampMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func timestampMicrosFromLong(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func longFromTimestampMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func durationFromFixed12(b []byte) Duration {
	return Duration{
		Months: leUint32(b[0:4]),
		Days:   leUint32(b[4:8]),
		Millis: leUint32(b[8:12]),
	}
}

func fixed12FromDuration(d Duration) []byte {
	out := make([]byte, 12)
	putLEUint32(out[0:4], d.Months)
	putLEUint32(out[4:8], d.Days)
	putLEUint32(out[8:12], d.Millis)
	return out
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLEUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func parseUUID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, codecErrorf(ErrInvalidLogical, "", "invalid uuid %q: %w", s, err)
	}
	return u, nil
}
