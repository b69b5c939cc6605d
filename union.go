// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avro

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Union is the general host-side representation of a non-optional Avro
// union datum: Discriminator names the active branch (a primitive kind
// name, or a named type's fully-qualified name) and Value holds that
// branch's payload. It generalizes goavro's convention of a single-key
// map[string]interface{} ("non-nil Union values ought to be specified with
// Go map[string]interface{}, with single key equal to type name") to a
// statically-typed struct so callers don't need a map allocation per value.
type Union struct {
	Discriminator string
	Value         interface{}
}

// unionType is cached once so encode/decode hot paths avoid recomputing it.
var unionType = reflect.TypeOf(Union{})

// isNullableUnionG reports whether n is Avro's common "optional" shape:
// exactly two branches, one of which is null. This is the only union shape
// spec.md's host protocol lets a caller model as a bare Go pointer.
func isNullableUnionG(g *Graph, n *Node) bool {
	if len(n.Branches) != 2 {
		return false
	}
	nullCount := 0
	for _, br := range n.Branches {
		if g.Node(br).Kind == KindNull {
			nullCount++
		}
	}
	return nullCount == 1
}

// branchTag is a union branch's resolution tag: the fully-qualified name
// for named types, otherwise the primitive/container kind name (spec.md
// §3.1 "Union branches are distinct by their resolution tag").
func branchTag(n *Node) string {
	if n.Kind.isNamed() {
		return n.Name
	}
	return n.Kind.String()
}

func decodeUnion(c cursor, g *Graph, n *Node, rv reflect.Value, path string) error {
	idx, err := readLong(c)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(n.Branches) {
		return codecErrorf(ErrInvalidUnionIndex, path, "cannot decode union: index ought to be between 0 and %d; read index: %d", len(n.Branches)-1, idx)
	}
	branchRef := n.Branches[idx]
	branchNode := g.Node(branchRef)

	if isNullableUnionG(g, n) && rv.IsValid() && rv.Kind() == reflect.Ptr {
		if branchNode.Kind == KindNull {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeValue(c, g, branchRef, rv.Elem(), path)
	}

	if rv.IsValid() && rv.Type() == unionType {
		if branchNode.Kind == KindNull {
			rv.Set(reflect.Zero(unionType))
			return nil
		}
		val, err := decodeGeneric(c, g, branchRef, path)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(Union{Discriminator: branchTag(branchNode), Value: val}))
		return nil
	}

	if rv.IsValid() && rv.Kind() == reflect.Interface && rv.NumMethod() == 0 {
		if branchNode.Kind == KindNull {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		val, err := decodeGeneric(c, g, branchRef, path)
		if err != nil {
			return err
		}
		if !isNullableUnionG(g, n) {
			val = Union{Discriminator: branchTag(branchNode), Value: val}
		}
		rv.Set(reflect.ValueOf(val))
		return nil
	}

	if branchNode.Kind == KindNull {
		return nil
	}
	return decodeValue(c, g, branchRef, rv, path)
}

func encodeUnion(s *sink, g *Graph, n *Node, rv reflect.Value, path string) error {
	// Unwrap the common cases first: explicit Union wrapper, then nullable
	// pointer shorthand, then a bare interface{}.
	if rv.IsValid() && rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	if rv.IsValid() && rv.Type() == unionType {
		u := rv.Interface().(Union)
		for idx, br := range n.Branches {
			bn := g.Node(br)
			if branchTag(bn) != u.Discriminator {
				continue
			}
			writeLong(s, int64(idx))
			if bn.Kind == KindNull {
				return nil
			}
			return encodeValue(s, g, br, reflect.ValueOf(u.Value), path)
		}
		return codecErrorf(ErrAmbiguousUnion, path, "cannot encode union: no member schema types support datum: discriminator %q", u.Discriminator)
	}

	if isNullableUnionG(g, n) && rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			idx, _ := nullBranchIndex(g, n)
			writeLong(s, int64(idx))
			return nil
		}
		idx, ref := nonNullBranch(g, n)
		writeLong(s, int64(idx))
		return encodeValue(s, g, ref, rv.Elem(), path)
	}

	if !rv.IsValid() {
		idx, ok := nullBranchIndex(g, n)
		if !ok {
			return codecErrorf(ErrAmbiguousUnion, path, "cannot encode union: no member schema types support datum: allowed types: %v; received: nil", allowedBranchTags(g, n))
		}
		writeLong(s, int64(idx))
		return nil
	}

	idx, ref, err := matchBranch(g, n, rv)
	if err != nil {
		return err
	}
	writeLong(s, int64(idx))
	bn := g.Node(ref)
	if bn.Kind == KindNull {
		return nil
	}
	return encodeValue(s, g, ref, rv, path)
}

func nullBranchIndex(g *Graph, n *Node) (int, bool) {
	for i, br := range n.Branches {
		if g.Node(br).Kind == KindNull {
			return i, true
		}
	}
	return 0, false
}

func nonNullBranch(g *Graph, n *Node) (int, NodeRef) {
	for i, br := range n.Branches {
		if g.Node(br).Kind != KindNull {
			return i, br
		}
	}
	return 0, n.Branches[0]
}

func allowedBranchTags(g *Graph, n *Node) []string {
	tags := make([]string, len(n.Branches))
	for i, br := range n.Branches {
		tags[i] = branchTag(g.Node(br))
	}
	return tags
}

// matchBranch picks the single union branch whose native Go representation
// fits rv, mirroring goavro's type-name/kind based dispatch in
// binaryFromNative/textualFromNative. Ambiguous or unmatched values fail
// with AmbiguousUnion, naming the allowed types exactly as goavro does.
func matchBranch(g *Graph, n *Node, rv reflect.Value) (int, NodeRef, error) {
	matched := -1
	for i, br := range n.Branches {
		if valueMatchesNode(g.Node(br), rv) {
			if matched >= 0 {
				return 0, nilRef, codecErrorf(ErrAmbiguousUnion, "", "cannot encode union: datum of type %s matches more than one member schema: allowed types: %v", rv.Type(), allowedBranchTags(g, n))
			}
			matched = i
		}
	}
	if matched < 0 {
		return 0, nilRef, codecErrorf(ErrAmbiguousUnion, "", "cannot encode union: no member schema types support datum: allowed types: %v; received: %s", allowedBranchTags(g, n), rv.Type())
	}
	return matched, n.Branches[matched], nil
}

func valueMatchesNode(n *Node, rv reflect.Value) bool {
	switch n.Kind {
	case KindNull:
		return false // nil is handled before matchBranch is reached
	case KindBoolean:
		return rv.Kind() == reflect.Bool
	case KindInt, KindLong:
		if n.Logical == LogicalDate || n.Logical == LogicalTimestampMillis || n.Logical == LogicalTimestampMicros {
			return rv.Type() == timeTimeType
		}
		if n.Logical == LogicalTimeMillis || n.Logical == LogicalTimeMicros {
			return rv.Type() == timeDurationType
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		}
		return false
	case KindFloat, KindDouble:
		return rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64
	case KindBytes:
		if n.Logical == LogicalDecimal {
			return rv.Type() == decimalType
		}
		return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
	case KindString:
		if n.Logical == LogicalUUID {
			return rv.Type() == uuidType
		}
		return rv.Kind() == reflect.String
	case KindFixed:
		if n.Logical == LogicalDuration {
			return rv.Type() == durationType
		}
		if n.Logical == LogicalDecimal {
			return rv.Type() == decimalType
		}
		if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Len() == n.Size
		}
		return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
	case KindEnum:
		return rv.Kind() == reflect.String || rv.Type().Name() == lastNameComponent(n.Name)
	case KindArray:
		return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8
	case KindMap:
		return rv.Kind() == reflect.Map
	case KindRecord:
		if rv.Kind() == reflect.Map {
			return true
		}
		return rv.Kind() == reflect.Struct && rv.Type().Name() == lastNameComponent(n.Name)
	default:
		return false
	}
}

var (
	timeTimeType     = reflect.TypeOf(time.Time{})
	timeDurationType = reflect.TypeOf(time.Duration(0))
	uuidType         = reflect.TypeOf(uuid.UUID{})
	decimalType      = reflect.TypeOf(Decimal{})
	durationType     = reflect.TypeOf(Duration{})
)

func lastNameComponent(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[i+1:]
		}
	}
	return fqn
}
