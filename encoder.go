package avro

import (
	"io"
	"reflect"
	"time"
)

// Marshal encodes v against schema into a freshly allocated byte slice (the
// to_datum_vec operation of spec.md §4.3).
func Marshal(schema *Graph, v interface{}) ([]byte, error) {
	s := &sink{}
	if err := encodeValue(s, schema, schema.Root(), reflect.ValueOf(v), ""); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// Encoder streams successive datums to an io.Writer (to_datum_writer).
type Encoder struct {
	w      io.Writer
	schema *Graph
}

// NewEncoder returns an Encoder writing datums to w against schema.
func NewEncoder(w io.Writer, schema *Graph) *Encoder {
	return &Encoder{w: w, schema: schema}
}

// Encode writes one datum.
func (e *Encoder) Encode(v interface{}) error {
	s := &sink{}
	if err := encodeValue(s, e.schema, e.schema.Root(), reflect.ValueOf(v), ""); err != nil {
		return err
	}
	_, err := e.w.Write(s.Bytes())
	return err
}

// encodeValue is the Serializer's core dispatch: the mirror image of
// decodeValue, walking rv alongside ref's node and appending to s.
func encodeValue(s *sink, g *Graph, ref NodeRef, rv reflect.Value, path string) error {
	n := g.Node(ref)

	if n.Kind == KindUnion {
		return encodeUnion(s, g, n, rv, path)
	}

	for rv.IsValid() && rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return codecErrorf(ErrCustom, path, "nil pointer for non-union field requires a [null, ...] union schema")
		}
		rv = rv.Elem()
	}

	switch n.Kind {
	case KindNull:
		return nil

	case KindBoolean:
		if !rv.IsValid() || rv.Kind() != reflect.Bool {
			return codecErrorf(ErrCustom, path, "cannot encode %s as boolean", typeOf(rv))
		}
		writeBoolean(s, rv.Bool())
		return nil

	case KindInt:
		v, err := encodeLogicalOrNumericInt(n, rv, path)
		if err != nil {
			return err
		}
		if v < -(1<<31) || v > (1<<31)-1 {
			return codecErrorf(ErrNumericOverflow, path, "value %d overflows int", v)
		}
		writeInt(s, int32(v))
		return nil

	case KindLong:
		v, err := encodeLogicalOrNumericInt(n, rv, path)
		if err != nil {
			return err
		}
		writeLong(s, v)
		return nil

	case KindFloat:
		v, err := numericFloat(rv, path)
		if err != nil {
			return err
		}
		writeFloat(s, float32(v))
		return nil

	case KindDouble:
		v, err := numericFloat(rv, path)
		if err != nil {
			return err
		}
		writeDouble(s, v)
		return nil

	case KindBytes:
		return encodeBytesFrom(s, n, rv, path)

	case KindString:
		return encodeStringFrom(s, n, rv, path)

	case KindEnum:
		return encodeEnumFrom(s, n, rv, path)

	case KindFixed:
		return encodeFixedFrom(s, n, rv, path)

	case KindArray:
		return encodeArrayFrom(s, g, n, rv, path)

	case KindMap:
		return encodeMapFrom(s, g, n, rv, path)

	case KindRecord:
		return encodeRecordFrom(s, g, n, rv, path)

	default:
		return codecErrorf(ErrCustom, path, "unsupported node kind %s", n.Kind)
	}
}

func encodeLogicalOrNumericInt(n *Node, rv reflect.Value, path string) (int64, error) {
	if rv.IsValid() {
		switch n.Logical {
		case LogicalDate:
			if rv.Type() == timeTimeType {
				return int64(daysFromDate(rv.Interface().(time.Time))), nil
			}
		case LogicalTimeMillis:
			if rv.Type() == timeDurationType {
				return int64(intFromTimeMillis(rv.Interface().(time.Duration))), nil
			}
		case LogicalTimeMicros:
			if rv.Type() == timeDurationType {
				return longFromTimeMicros(rv.Interface().(time.Duration)), nil
			}
		case LogicalTimestampMillis:
			if rv.Type() == timeTimeType {
				return longFromTimestampMillis(rv.Interface().(time.Time)), nil
			}
		case LogicalTimestampMicros:
			if rv.Type() == timeTimeType {
				return longFromTimestampMicros(rv.Interface().(time.Time)), nil
			}
		}
	}
	return numericInt(rv, path)
}

func numericInt(rv reflect.Value, path string) (int64, error) {
	if !rv.IsValid() {
		return 0, codecErrorf(ErrCustom, path, "no value to encode as integer")
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, codecErrorf(ErrNumericOverflow, path, "value %d overflows int64", u)
		}
		return int64(u), nil
	default:
		return 0, codecErrorf(ErrCustom, path, "cannot encode %s as integer", rv.Type())
	}
}

func numericFloat(rv reflect.Value, path string) (float64, error) {
	if !rv.IsValid() {
		return 0, codecErrorf(ErrCustom, path, "no value to encode as float")
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	default:
		return 0, codecErrorf(ErrCustom, path, "cannot encode %s as float", rv.Type())
	}
}

func encodeBytesFrom(s *sink, n *Node, rv reflect.Value, path string) error {
	if n.Logical == LogicalDecimal && rv.IsValid() && rv.Type() == decimalType {
		raw, err := decimalToBytes(rv.Interface().(Decimal), -1)
		if err != nil {
			return err
		}
		writeBytes(s, raw)
		return nil
	}
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Uint8 {
		return codecErrorf(ErrCustom, path, "cannot encode %s as bytes", typeOf(rv))
	}
	writeBytes(s, rv.Bytes())
	return nil
}

func encodeStringFrom(s *sink, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no value to encode as string")
	}
	if n.Logical == LogicalUUID && rv.Type() == uuidType {
		writeString(s, rv.Interface().(interface{ String() string }).String())
		return nil
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		writeBytes(s, rv.Bytes())
		return nil
	}
	if rv.Kind() != reflect.String {
		return codecErrorf(ErrCustom, path, "cannot encode %s as string", rv.Type())
	}
	writeString(s, rv.String())
	return nil
}

func encodeEnumFrom(s *sink, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no value to encode as enum %q", n.Name)
	}
	var sym string
	switch rv.Kind() {
	case reflect.String:
		sym = rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		idx, err := numericInt(rv, path)
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= len(n.Symbols) {
			return codecErrorf(ErrInvalidUnionIndex, path, "enum %q index %d out of range", n.Name, idx)
		}
		writeLong(s, idx)
		return nil
	default:
		if str, ok := rv.Interface().(interface{ String() string }); ok {
			sym = str.String()
			break
		}
		return codecErrorf(ErrCustom, path, "cannot encode %s as enum %q", rv.Type(), n.Name)
	}
	for i, symbol := range n.Symbols {
		if symbol == sym {
			writeLong(s, int64(i))
			return nil
		}
	}
	return codecErrorf(ErrCustom, path, "%q is not a symbol of enum %q", sym, n.Name)
}

func encodeFixedFrom(s *sink, n *Node, rv reflect.Value, path string) error {
	if rv.IsValid() {
		if n.Logical == LogicalDuration && rv.Type() == durationType {
			s.write(fixed12FromDuration(rv.Interface().(Duration)))
			return nil
		}
		if n.Logical == LogicalDecimal && rv.Type() == decimalType {
			raw, err := decimalToBytes(rv.Interface().(Decimal), n.Size)
			if err != nil {
				return err
			}
			s.write(raw)
			return nil
		}
	}

	var buf []byte
	switch {
	case rv.IsValid() && rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8:
		buf = make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
	case rv.IsValid() && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		buf = rv.Bytes()
	default:
		return codecErrorf(ErrCustom, path, "cannot encode %s as fixed %q", typeOf(rv), n.Name)
	}
	if len(buf) != n.Size {
		return codecErrorf(ErrCustom, path, "fixed %q requires exactly %d bytes, got %d", n.Name, n.Size, len(buf))
	}
	s.write(buf)
	return nil
}

// encodeArrayFrom writes a single block followed by the zero-count
// terminator (spec.md §4.3); it never emits the negative-count/byte-size
// variant since nothing downstream needs to skip an array without decoding
// it.
func encodeArrayFrom(s *sink, g *Graph, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return codecErrorf(ErrCustom, path, "cannot encode %s as array", typeOf(rv))
	}
	if rv.Len() > 0 {
		writeLong(s, int64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if err := encodeValue(s, g, n.Item, rv.Index(i), path); err != nil {
				return err
			}
		}
	}
	writeLong(s, 0)
	return nil
}

func encodeMapFrom(s *sink, g *Graph, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return codecErrorf(ErrCustom, path, "cannot encode %s as map", typeOf(rv))
	}
	keys := rv.MapKeys()
	if len(keys) > 0 {
		writeLong(s, int64(len(keys)))
		for _, k := range keys {
			writeString(s, k.String())
			if err := encodeValue(s, g, n.Values, rv.MapIndex(k), path+"."+k.String()); err != nil {
				return err
			}
		}
	}
	writeLong(s, 0)
	return nil
}

func encodeRecordFrom(s *sink, g *Graph, n *Node, rv reflect.Value, path string) error {
	if rv.IsValid() && rv.Kind() == reflect.Map {
		return encodeRecordFromMap(s, g, n, rv, path)
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return codecErrorf(ErrCustom, path, "cannot encode %s as record %q", typeOf(rv), n.Name)
	}
	for _, f := range n.Fields {
		fieldPath := path + "." + f.Name
		target := structFieldByAvroName(rv, f.Name)
		if !target.IsValid() {
			if f.HasDefault {
				s.write(f.DefaultWire)
				continue
			}
			return codecErrorf(ErrMissingField, fieldPath, "record %q missing field %q with no default", n.Name, f.Name)
		}
		if err := encodeValue(s, g, f.Type, target, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func encodeRecordFromMap(s *sink, g *Graph, n *Node, rv reflect.Value, path string) error {
	for _, f := range n.Fields {
		fieldPath := path + "." + f.Name
		val := rv.MapIndex(reflect.ValueOf(f.Name))
		if !val.IsValid() {
			if f.HasDefault {
				s.write(f.DefaultWire)
				continue
			}
			return codecErrorf(ErrMissingField, fieldPath, "record %q missing field %q with no default", n.Name, f.Name)
		}
		if err := encodeValue(s, g, f.Type, val, fieldPath); err != nil {
			return err
		}
	}
	return nil
}
