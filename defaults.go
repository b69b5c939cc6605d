package avro

import (
	"encoding/json"
	"fmt"
)

// resolveDefaults is Pass 3 of the build: once every node reference is
// resolved (Pass 2) and unions are validated, pre-encode each record field's
// JSON default straight to Avro binary (spec.md §4.1, §4.10). When a value
// being encoded lacks a field, the encoder then writes these bytes as they
// are — no re-parsing of JSON. The decoder never injects defaults.
func (b *builder) resolveDefaults() error {
	for _, pd := range b.defaults {
		rec := &b.nodes[pd.record]
		f := &rec.Fields[pd.field]
		s := &sink{}
		if err := b.encodeDefaultInto(s, f.Type, pd.raw, rec.Name+"."+f.Name); err != nil {
			return &SchemaError{Op: "default", Path: rec.Name + "." + f.Name, Err: err}
		}
		f.DefaultWire = s.Bytes()
	}
	return nil
}

// encodeDefaultInto renders one JSON default value to Avro binary per the
// type at ref, recursing for containers. Union-typed fields encode against
// branch 0, matching the Avro JSON-default convention (and goavro's own
// "union schema set to the type name of first member" rule for defaults).
func (b *builder) encodeDefaultInto(s *sink, ref NodeRef, raw interface{}, path string) error {
	n := &b.nodes[ref]
	switch n.Kind {
	case KindNull:
		if raw != nil {
			return fmt.Errorf("%s: expected null default, got %T", path, raw)
		}
		return nil

	case KindBoolean:
		v, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("%s: expected boolean default, got %T", path, raw)
		}
		writeBoolean(s, v)
		return nil

	case KindInt:
		v, err := jsonInt(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid int default: %w", path, err)
		}
		writeInt(s, int32(v))
		return nil

	case KindLong:
		v, err := jsonLong(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid long default: %w", path, err)
		}
		writeLong(s, v)
		return nil

	case KindFloat:
		v, err := jsonFloat(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid float default: %w", path, err)
		}
		writeFloat(s, float32(v))
		return nil

	case KindDouble:
		v, err := jsonFloat(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid double default: %w", path, err)
		}
		writeDouble(s, v)
		return nil

	case KindBytes:
		b, err := latin1StringToBytes(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid bytes default: %w", path, err)
		}
		writeBytes(s, b)
		return nil

	case KindString:
		v, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s: expected string default, got %T", path, raw)
		}
		writeString(s, v)
		return nil

	case KindFixed:
		raw, err := latin1StringToBytes(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid fixed default: %w", path, err)
		}
		if len(raw) != n.Size {
			return fmt.Errorf("%s: fixed default has %d bytes, want %d", path, len(raw), n.Size)
		}
		s.write(raw)
		return nil

	case KindEnum:
		sym, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s: expected enum symbol default, got %T", path, raw)
		}
		idx := -1
		for i, s2 := range n.Symbols {
			if s2 == sym {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%s: default symbol %q not in enum", path, sym)
		}
		writeLong(s, int64(idx))
		return nil

	case KindArray:
		arr, ok := raw.([]interface{})
		if !ok {
			return fmt.Errorf("%s: expected array default, got %T", path, raw)
		}
		if len(arr) > 0 {
			writeLong(s, int64(len(arr)))
			for i, item := range arr {
				if err := b.encodeDefaultInto(s, n.Item, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
		writeLong(s, 0)
		return nil

	case KindMap:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: expected map default, got %T", path, raw)
		}
		if len(m) > 0 {
			writeLong(s, int64(len(m)))
			for k, v := range m {
				writeString(s, k)
				if err := b.encodeDefaultInto(s, n.Values, v, path+"."+k); err != nil {
					return err
				}
			}
		}
		writeLong(s, 0)
		return nil

	case KindRecord:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: expected record default, got %T", path, raw)
		}
		for _, f := range n.Fields {
			v, present := m[f.Name]
			if !present {
				if f.HasDefault {
					s.write(f.DefaultWire)
					continue
				}
				return fmt.Errorf("%s: nested record default missing field %q with no default", path, f.Name)
			}
			if err := b.encodeDefaultInto(s, f.Type, v, path+"."+f.Name); err != nil {
				return err
			}
		}
		return nil

	case KindUnion:
		if len(n.Branches) == 0 {
			return fmt.Errorf("%s: empty union has no default branch", path)
		}
		writeLong(s, 0)
		return b.encodeDefaultInto(s, n.Branches[0], raw, path)

	default:
		return fmt.Errorf("%s: cannot encode default for node kind %s", path, n.Kind)
	}
}

func jsonLong(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func jsonFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// latin1StringToBytes decodes an Avro JSON bytes/fixed default, whose
// characters each represent one raw byte (ISO-8859-1 / Latin-1 convention
// per the Avro JSON encoding spec).
func latin1StringToBytes(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("byte value out of range: %d", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
