package avro

import (
	"io"
	"reflect"
)

// Unmarshal decodes a single Avro datum from data, guided by schema, into
// the value pointed to by v (spec.md §4.3's from_datum_slice). []byte
// targets of bytes, string and fixed nodes borrow directly from data
// (spec.md §3.2, testable property #2); Go string targets hold a copy.
func Unmarshal(data []byte, schema *Graph, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return codecErrorf(ErrCustom, "", "Unmarshal target must be a non-nil pointer")
	}
	c := newSliceCursor(data)
	return decodeValue(c, schema, schema.Root(), rv.Elem(), "")
}

// Decoder drives the value-traversal protocol from an io.Reader, one datum
// per Decode call (spec.md §4.3's from_datum_reader). Unlike Unmarshal, a
// Decoder always copies string/byte data since there is no backing array to
// borrow from (spec.md §9).
type Decoder struct {
	c      cursor
	schema *Graph
}

// NewDecoder returns a Decoder that reads successive datums from r.
func NewDecoder(r io.Reader, schema *Graph) *Decoder {
	return &Decoder{c: newReaderCursor(r), schema: schema}
}

// Decode reads one datum into the value pointed to by v.
func (d *Decoder) Decode(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return codecErrorf(ErrCustom, "", "Decode target must be a non-nil pointer")
	}
	return decodeValue(d.c, d.schema, d.schema.Root(), rv.Elem(), "")
}

// decodeValue is the Deserializer's core dispatch: it advances c alongside
// ref's node, writing into rv. This is the realization of spec.md §4.3's
// contract table ("Node → framework signal produced").
func decodeValue(c cursor, g *Graph, ref NodeRef, rv reflect.Value, path string) error {
	n := g.Node(ref)

	if n.Kind == KindUnion {
		return decodeUnion(c, g, n, rv, path)
	}

	if rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeValue(c, g, ref, rv.Elem(), path)
	}

	if rv.IsValid() && rv.Kind() == reflect.Interface && rv.NumMethod() == 0 {
		val, err := decodeGeneric(c, g, ref, path)
		if err != nil {
			return err
		}
		if val == nil {
			rv.Set(reflect.Zero(rv.Type()))
		} else {
			rv.Set(reflect.ValueOf(val))
		}
		return nil
	}

	switch n.Kind {
	case KindNull:
		return nil

	case KindBoolean:
		v, err := readBoolean(c)
		if err != nil {
			return err
		}
		if !rv.IsValid() || rv.Kind() != reflect.Bool {
			return codecErrorf(ErrCustom, path, "cannot decode boolean into %s", typeOf(rv))
		}
		rv.SetBool(v)
		return nil

	case KindInt:
		v, err := readInt(c)
		if err != nil {
			return err
		}
		return decodeLogicalOrNumeric(rv, n, int64(v), path)

	case KindLong:
		v, err := readLong(c)
		if err != nil {
			return err
		}
		return decodeLogicalOrNumeric(rv, n, v, path)

	case KindFloat:
		v, err := readFloat(c)
		if err != nil {
			return err
		}
		return setIntoFloat(rv, float64(v), path)

	case KindDouble:
		v, err := readDouble(c)
		if err != nil {
			return err
		}
		return setIntoFloat(rv, v, path)

	case KindBytes:
		return decodeBytesInto(c, n, rv, path)

	case KindString:
		return decodeStringInto(c, n, rv, path)

	case KindEnum:
		return decodeEnumInto(c, n, rv, path)

	case KindFixed:
		return decodeFixedInto(c, n, rv, path)

	case KindArray:
		return decodeArrayInto(c, g, n, rv, path)

	case KindMap:
		return decodeMapInto(c, g, n, rv, path)

	case KindRecord:
		return decodeRecordInto(c, g, n, rv, path)

	default:
		return codecErrorf(ErrCustom, path, "unsupported node kind %s", n.Kind)
	}
}

func typeOf(rv reflect.Value) string {
	if !rv.IsValid() {
		return "<invalid>"
	}
	return rv.Type().String()
}

func decodeLogicalOrNumeric(rv reflect.Value, n *Node, v int64, path string) error {
	switch n.Logical {
	case LogicalDate:
		if rv.IsValid() && rv.Type() == timeTimeType {
			rv.Set(reflect.ValueOf(dateFromDays(int32(v))))
			return nil
		}
	case LogicalTimeMillis:
		if rv.IsValid() && rv.Type() == timeDurationType {
			rv.Set(reflect.ValueOf(timeMillisFromInt(int32(v))))
			return nil
		}
	case LogicalTimeMicros:
		if rv.IsValid() && rv.Type() == timeDurationType {
			rv.Set(reflect.ValueOf(timeMicrosFromLong(v)))
			return nil
		}
	case LogicalTimestampMillis:
		if rv.IsValid() && rv.Type() == timeTimeType {
			rv.Set(reflect.ValueOf(timestampMillisFromLong(v)))
			return nil
		}
	case LogicalTimestampMicros:
		if rv.IsValid() && rv.Type() == timeTimeType {
			rv.Set(reflect.ValueOf(timestampMicrosFromLong(v)))
			return nil
		}
	}
	return setIntoNumeric(rv, v, path)
}

func setIntoNumeric(rv reflect.Value, v int64, path string) error {
	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no target to decode integer into")
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.OverflowInt(v) {
			return codecErrorf(ErrIntegerOutOfRange, path, "value %d overflows %s", v, rv.Type())
		}
		rv.SetInt(v)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v < 0 {
			return codecErrorf(ErrIntegerOutOfRange, path, "negative value %d for unsigned target %s", v, rv.Type())
		}
		u := uint64(v)
		if rv.OverflowUint(u) {
			return codecErrorf(ErrIntegerOutOfRange, path, "value %d overflows %s", v, rv.Type())
		}
		rv.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		rv.SetFloat(float64(v))
		return nil
	default:
		return codecErrorf(ErrCustom, path, "cannot decode integer into %s", rv.Type())
	}
}

func setIntoFloat(rv reflect.Value, v float64, path string) error {
	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no target to decode float into")
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		rv.SetFloat(v)
		return nil
	default:
		return codecErrorf(ErrCustom, path, "cannot decode float into %s", rv.Type())
	}
}

func decodeBytesInto(c cursor, n *Node, rv reflect.Value, path string) error {
	buf, err := readBytes(c)
	if err != nil {
		return err
	}
	if n.Logical == LogicalDecimal && rv.IsValid() && rv.Type() == decimalType {
		rv.Set(reflect.ValueOf(decimalFromBytes(buf, n.Scale)))
		return nil
	}
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Uint8 {
		return codecErrorf(ErrCustom, path, "cannot decode bytes into %s", typeOf(rv))
	}
	rv.SetBytes(buf)
	return nil
}

func decodeStringInto(c cursor, n *Node, rv reflect.Value, path string) error {
	if rv.IsValid() && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		buf, err := readBytes(c)
		if err != nil {
			return err
		}
		rv.SetBytes(buf)
		return nil
	}

	str, err := readString(c)
	if err != nil {
		return err
	}
	if n.Logical == LogicalUUID && rv.IsValid() && rv.Type() == uuidType {
		u, err := parseUUID(str)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(u))
		return nil
	}
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return codecErrorf(ErrCustom, path, "cannot decode string into %s", typeOf(rv))
	}
	rv.SetString(str)
	return nil
}

func decodeEnumInto(c cursor, n *Node, rv reflect.Value, path string) error {
	idx, err := readLong(c)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(n.Symbols) {
		return codecErrorf(ErrInvalidUnionIndex, path, "enum %q index %d out of range", n.Name, idx)
	}
	sym := n.Symbols[idx]
	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no target to decode enum into")
	}
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(sym)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return setIntoNumeric(rv, idx, path)
	default:
		return codecErrorf(ErrCustom, path, "cannot decode enum into %s", rv.Type())
	}
}

func decodeFixedInto(c cursor, n *Node, rv reflect.Value, path string) error {
	buf, err := c.readN(n.Size)
	if err != nil {
		return codecErrorf(ErrUnexpectedEOF, path, "reading fixed %q: %w", n.Name, err)
	}

	if n.Logical == LogicalDuration && rv.IsValid() && rv.Type() == durationType {
		rv.Set(reflect.ValueOf(durationFromFixed12(buf)))
		return nil
	}
	if n.Logical == LogicalDecimal && rv.IsValid() && rv.Type() == decimalType {
		rv.Set(reflect.ValueOf(decimalFromBytes(buf, n.Scale)))
		return nil
	}

	if !rv.IsValid() {
		return codecErrorf(ErrCustom, path, "no target to decode fixed into")
	}
	switch {
	case rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8:
		if rv.Len() != n.Size {
			return codecErrorf(ErrCustom, path, "fixed target [%d]byte does not match declared size %d", rv.Len(), n.Size)
		}
		reflect.Copy(rv, reflect.ValueOf(buf))
		return nil
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		rv.SetBytes(buf)
		return nil
	default:
		return codecErrorf(ErrCustom, path, "cannot decode fixed into %s", typeOf(rv))
	}
}

// decodeArrayInto consumes the block-wise sequence protocol of spec.md
// §4.3: repeated {count, items...} blocks terminated by a zero count. A
// negative count means the absolute value is the item count and a byte
// size follows (for skip-ahead); this implementation never relies on that
// size for correctness, per spec.md §4.3.
func decodeArrayInto(c cursor, g *Graph, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return codecErrorf(ErrCustom, path, "cannot decode array into %s", typeOf(rv))
	}
	elemType := rv.Type().Elem()
	rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))

	for {
		count, err := readLong(c)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if count < 0 {
			count = -count
			if _, err := readLong(c); err != nil { // byte size, skippable
				return err
			}
		}
		for i := int64(0); i < count; i++ {
			elem := reflect.New(elemType).Elem()
			if err := decodeValue(c, g, n.Item, elem, path); err != nil {
				return err
			}
			rv.Set(reflect.Append(rv, elem))
		}
	}
}

func decodeMapInto(c cursor, g *Graph, n *Node, rv reflect.Value, path string) error {
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return codecErrorf(ErrCustom, path, "cannot decode map into %s", typeOf(rv))
	}
	if rv.Type().Key().Kind() != reflect.String {
		return codecErrorf(ErrCustom, path, "map target must have string keys, got %s", rv.Type())
	}
	valType := rv.Type().Elem()
	if rv.IsNil() {
		rv.Set(reflect.MakeMap(rv.Type()))
	}

	for {
		count, err := readLong(c)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if count < 0 {
			count = -count
			if _, err := readLong(c); err != nil {
				return err
			}
		}
		for i := int64(0); i < count; i++ {
			key, err := readString(c)
			if err != nil {
				return err
			}
			val := reflect.New(valType).Elem()
			if err := decodeValue(c, g, n.Values, val, path+"."+key); err != nil {
				return err
			}
			rv.SetMapIndex(reflect.ValueOf(key), val)
		}
	}
}

func decodeRecordInto(c cursor, g *Graph, n *Node, rv reflect.Value, path string) error {
	if rv.IsValid() && rv.Kind() == reflect.Map {
		return decodeRecordIntoMap(c, g, n, rv, path)
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return codecErrorf(ErrCustom, path, "cannot decode record %q into %s", n.Name, typeOf(rv))
	}

	for _, f := range n.Fields {
		fieldPath := path + "." + f.Name
		target := structFieldByAvroName(rv, f.Name)
		if !target.IsValid() {
			// Field present on the wire but absent from the target type:
			// still must be consumed to keep the cursor in sync.
			if _, err := decodeGeneric(c, g, f.Type, fieldPath); err != nil {
				return err
			}
			continue
		}
		if err := decodeValue(c, g, f.Type, target, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func decodeRecordIntoMap(c cursor, g *Graph, n *Node, rv reflect.Value, path string) error {
	if rv.IsNil() {
		rv.Set(reflect.MakeMap(rv.Type()))
	}
	valType := rv.Type().Elem()
	for _, f := range n.Fields {
		val := reflect.New(valType).Elem()
		if err := decodeValue(c, g, f.Type, val, path+"."+f.Name); err != nil {
			return err
		}
		rv.SetMapIndex(reflect.ValueOf(f.Name), val)
	}
	return nil
}

// structFieldByAvroName finds the struct field matching an Avro field name,
// preferring an explicit `avro:"name"` tag and falling back to an
// exact-then-case-insensitive Go field name match, the same precedence
// encoding/json uses for its own `json` tag.
func structFieldByAvroName(rv reflect.Value, name string) reflect.Value {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if tag, ok := sf.Tag.Lookup("avro"); ok {
			tagName := tag
			if idx := indexOfComma(tag); idx >= 0 {
				tagName = tag[:idx]
			}
			if tagName == name {
				return rv.Field(i)
			}
		}
	}
	if fv := rv.FieldByName(name); fv.IsValid() {
		return fv
	}
	for i := 0; i < t.NumField(); i++ {
		if equalFold(t.Field(i).Name, name) {
			return rv.Field(i)
		}
	}
	return reflect.Value{}
}

func indexOfComma(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// decodeGeneric produces a plain Go native value for ref without any
// target-type guidance, used for interface{} targets and for Union.Value
// payloads.
func decodeGeneric(c cursor, g *Graph, ref NodeRef, path string) (interface{}, error) {
	n := g.Node(ref)
	switch n.Kind {
	case KindNull:
		return nil, nil
	case KindBoolean:
		return readBoolean(c)
	case KindInt:
		v, err := readInt(c)
		if err != nil {
			return nil, err
		}
		return genericLogicalInt(n, int64(v)), nil
	case KindLong:
		v, err := readLong(c)
		if err != nil {
			return nil, err
		}
		return genericLogicalInt(n, v), nil
	case KindFloat:
		return readFloat(c)
	case KindDouble:
		return readDouble(c)
	case KindBytes:
		buf, err := readBytes(c)
		if err != nil {
			return nil, err
		}
		if n.Logical == LogicalDecimal {
			return decimalFromBytes(buf, n.Scale), nil
		}
		return buf, nil
	case KindString:
		str, err := readString(c)
		if err != nil {
			return nil, err
		}
		if n.Logical == LogicalUUID {
			if u, err := parseUUID(str); err == nil {
				return u, nil
			}
		}
		return str, nil
	case KindEnum:
		idx, err := readLong(c)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(n.Symbols) {
			return nil, codecErrorf(ErrInvalidUnionIndex, path, "enum %q index %d out of range", n.Name, idx)
		}
		return n.Symbols[idx], nil
	case KindFixed:
		buf, err := c.readN(n.Size)
		if err != nil {
			return nil, codecErrorf(ErrUnexpectedEOF, path, "reading fixed %q: %w", n.Name, err)
		}
		switch n.Logical {
		case LogicalDuration:
			return durationFromFixed12(buf), nil
		case LogicalDecimal:
			return decimalFromBytes(buf, n.Scale), nil
		}
		return buf, nil
	case KindArray:
		var out []interface{}
		for {
			count, err := readLong(c)
			if err != nil {
				return nil, err
			}
			if count == 0 {
				return out, nil
			}
			if count < 0 {
				count = -count
				if _, err := readLong(c); err != nil {
					return nil, err
				}
			}
			for i := int64(0); i < count; i++ {
				v, err := decodeGeneric(c, g, n.Item, path)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		}
	case KindMap:
		out := make(map[string]interface{})
		for {
			count, err := readLong(c)
			if err != nil {
				return nil, err
			}
			if count == 0 {
				return out, nil
			}
			if count < 0 {
				count = -count
				if _, err := readLong(c); err != nil {
					return nil, err
				}
			}
			for i := int64(0); i < count; i++ {
				key, err := readString(c)
				if err != nil {
					return nil, err
				}
				v, err := decodeGeneric(c, g, n.Values, path+"."+key)
				if err != nil {
					return nil, err
				}
				out[key] = v
			}
		}
	case KindRecord:
		out := make(map[string]interface{}, len(n.Fields))
		for _, f := range n.Fields {
			v, err := decodeGeneric(c, g, f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	case KindUnion:
		idx, err := readLong(c)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(n.Branches) {
			return nil, codecErrorf(ErrInvalidUnionIndex, path, "union branch index %d out of range", idx)
		}
		br := n.Branches[idx]
		bn := g.Node(br)
		if bn.Kind == KindNull {
			return nil, nil
		}
		val, err := decodeGeneric(c, g, br, path)
		if err != nil {
			return nil, err
		}
		return Union{Discriminator: branchTag(bn), Value: val}, nil
	default:
		return nil, codecErrorf(ErrCustom, path, "unsupported node kind %s", n.Kind)
	}
}

func genericLogicalInt(n *Node, v int64) interface{} {
	switch n.Logical {
	case LogicalDate:
		return dateFromDays(int32(v))
	case LogicalTimeMillis:
		return timeMillisFromInt(int32(v))
	case LogicalTimeMicros:
		return timeMicrosFromLong(v)
	case LogicalTimestampMillis:
		return timestampMillisFromLong(v)
	case LogicalTimestampMicros:
		return timestampMicrosFromLong(v)
	default:
		if n.Kind == KindInt {
			return int32(v)
		}
		return v
	}
}
