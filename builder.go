package avro

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// kindForward is an internal-only arena slot kind used during Parse to
// stand in for a named-type reference that had not yet been registered when
// first encountered (a forward reference, per spec.md §4.1 Pass 1). It
// never survives into a frozen Graph: resolvePending rewrites every ref
// that points at one.
const kindForward Kind = 255

// Parse builds a Schema Graph from Avro schema JSON text (spec.md §4.1).
// The JSON parser itself is treated as an out-of-scope, black-box
// collaborator (spec.md §1): this simply feeds encoding/json's generic
// map[string]interface{}/[]interface{} tree to the two-pass builder below.
func Parse(text string) (*Graph, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, &SchemaError{Op: "parse", Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	b := &builder{
		byName:  make(map[string]NodeRef),
		forward: make(map[NodeRef][]string),
	}
	root, err := b.buildType("", tree, "")
	if err != nil {
		return nil, err
	}
	if err := b.resolvePending(); err != nil {
		return nil, err
	}
	if err := b.validateUnions(); err != nil {
		return nil, err
	}
	if err := b.resolveDefaults(); err != nil {
		return nil, err
	}

	return &Graph{
		nodes:  b.nodes,
		root:   root,
		byName: b.byName,
		text:   text,
	}, nil
}

// MustParse is a convenience wrapper that panics on error, mirroring the
// pattern used throughout the corpus (e.g. hamba/avro's ocf.go building its
// HeaderSchema at package init via MustParse) for schemas known at compile
// time to be valid.
func MustParse(text string) *Graph {
	g, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return g
}

type pendingDefault struct {
	record NodeRef
	field  int
	raw    interface{}
}

type builder struct {
	nodes   []Node
	byName  map[string]NodeRef
	forward map[NodeRef][]string

	defaults []pendingDefault
}

func (b *builder) alloc(n Node) NodeRef {
	ref := NodeRef(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return ref
}

var primitiveKinds = map[string]Kind{
	"null":    KindNull,
	"boolean": KindBoolean,
	"int":     KindInt,
	"long":    KindLong,
	"float":   KindFloat,
	"double":  KindDouble,
	"bytes":   KindBytes,
	"string":  KindString,
}

// buildType is Pass 1: it walks one JSON schema node, allocating arena
// slots as it goes, and returns the ref a caller should store. Named types
// register themselves in byName before descending into their members, so
// direct and mutual recursion through fields works without any pending
// edge; a bare-string reference to a name not yet seen becomes a forward
// stub resolved in Pass 2.
func (b *builder) buildType(enclosingNamespace string, schema interface{}, path string) (NodeRef, error) {
	switch v := schema.(type) {
	case string:
		return b.buildNamedOrPrimitiveRef(enclosingNamespace, v, path)
	case []interface{}:
		return b.buildUnion(enclosingNamespace, v, path)
	case map[string]interface{}:
		return b.buildTypeObject(enclosingNamespace, v, path)
	default:
		return nilRef, schemaErrorf("parse", path, "unsupported schema shape %T", schema)
	}
}

func (b *builder) buildNamedOrPrimitiveRef(enclosingNamespace, name string, path string) (NodeRef, error) {
	if k, ok := primitiveKinds[name]; ok {
		return b.alloc(Node{Kind: k}), nil
	}
	candidates := resolveReference(name, enclosingNamespace)
	for _, c := range candidates {
		if ref, ok := b.byName[c]; ok {
			return ref, nil
		}
	}
	ref := b.alloc(Node{Kind: kindForward, Name: name})
	b.forward[ref] = candidates
	return ref, nil
}

func (b *builder) buildUnion(enclosingNamespace string, schemas []interface{}, path string) (NodeRef, error) {
	branches := make([]NodeRef, len(schemas))
	for i, s := range schemas {
		if _, isUnion := s.([]interface{}); isUnion {
			return nilRef, schemaErrorf("union", path, "union may not directly contain another union")
		}
		ref, err := b.buildType(enclosingNamespace, s, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nilRef, err
		}
		branches[i] = ref
	}
	return b.alloc(Node{Kind: KindUnion, Branches: branches}), nil
}

func (b *builder) buildTypeObject(enclosingNamespace string, m map[string]interface{}, path string) (NodeRef, error) {
	typeField, ok := m["type"]
	if !ok {
		return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("type", path))
	}

	// A nested type object may itself be described by another type object
	// (e.g. {"type": {"type": "string"}}) or by a bare string.
	typeName, isString := typeField.(string)
	if !isString {
		return b.buildType(enclosingNamespace, typeField, path)
	}

	switch typeName {
	case "array":
		items, ok := m["items"]
		if !ok {
			return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("items", path))
		}
		item, err := b.buildType(enclosingNamespace, items, path+".items")
		if err != nil {
			return nilRef, err
		}
		return b.alloc(Node{Kind: KindArray, Item: item}), nil

	case "map":
		values, ok := m["values"]
		if !ok {
			return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("values", path))
		}
		valRef, err := b.buildType(enclosingNamespace, values, path+".values")
		if err != nil {
			return nilRef, err
		}
		return b.alloc(Node{Kind: KindMap, Values: valRef}), nil

	case "record", "error":
		return b.buildRecord(enclosingNamespace, m, path)

	case "enum":
		return b.buildEnum(enclosingNamespace, m, path)

	case "fixed":
		return b.buildFixed(enclosingNamespace, m, path)

	default:
		// A primitive/named reference carrying extra attributes, most
		// commonly a logicalType annotation (spec.md §4.7).
		ref, err := b.buildNamedOrPrimitiveRef(enclosingNamespace, typeName, path)
		if err != nil {
			return nilRef, err
		}
		return b.applyLogical(ref, m, path)
	}
}

func fqnAndNamespace(m map[string]interface{}, enclosingNamespace string) (fqn, ns string, err error) {
	rawName, ok := m["name"].(string)
	if !ok || rawName == "" {
		return "", "", missingRequiredField("name", "")
	}
	if explicitNS, ok := m["namespace"].(string); ok && explicitNS != "" {
		if !containsDot(rawName) {
			return explicitNS + "." + rawName, explicitNS, nil
		}
		fqn, ns = resolveName(rawName, explicitNS)
		return fqn, ns, nil
	}
	fqn, ns = resolveName(rawName, enclosingNamespace)
	return fqn, ns, nil
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

func missingRequiredField(field, path string) error {
	return fmt.Errorf("missing required field %q at %q", field, path)
}

func (b *builder) registerName(fqn, path string) error {
	if _, exists := b.byName[fqn]; exists {
		return schemaErrorf("parse", path, "duplicate type name %q", fqn)
	}
	return nil
}

func (b *builder) buildRecord(enclosingNamespace string, m map[string]interface{}, path string) (NodeRef, error) {
	fqn, ns, err := fqnAndNamespace(m, enclosingNamespace)
	if err != nil {
		return nilRef, schemaErrorf("parse", path, "%w", err)
	}
	if err := b.registerName(fqn, path); err != nil {
		return nilRef, err
	}

	ref := b.alloc(Node{Kind: KindRecord, Name: fqn})
	b.byName[fqn] = ref // register before walking fields: enables self-reference

	rawFields, _ := m["fields"].([]interface{})
	fields := make([]Field, 0, len(rawFields))
	for i, rf := range rawFields {
		fm, ok := rf.(map[string]interface{})
		if !ok {
			return nilRef, schemaErrorf("parse", path, "field %d is not an object", i)
		}
		fname, ok := fm["name"].(string)
		if !ok || fname == "" {
			return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("name", fmt.Sprintf("%s.fields[%d]", path, i)))
		}
		ftype, ok := fm["type"]
		if !ok {
			return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("type", fmt.Sprintf("%s.%s", path, fname)))
		}
		ftRef, err := b.buildType(ns, ftype, fmt.Sprintf("%s.%s", path, fname))
		if err != nil {
			return nilRef, err
		}
		field := Field{Name: fname, Type: ftRef}
		if raw, ok := fm["default"]; ok {
			field.HasDefault = true
			b.defaults = append(b.defaults, pendingDefault{record: ref, field: len(fields), raw: raw})
		}
		fields = append(fields, field)
	}

	b.nodes[ref].Fields = fields
	if doc, ok := m["doc"].(string); ok {
		b.nodes[ref].Doc = doc
	}
	return ref, nil
}

func (b *builder) buildEnum(enclosingNamespace string, m map[string]interface{}, path string) (NodeRef, error) {
	fqn, _, err := fqnAndNamespace(m, enclosingNamespace)
	if err != nil {
		return nilRef, schemaErrorf("parse", path, "%w", err)
	}
	if err := b.registerName(fqn, path); err != nil {
		return nilRef, err
	}

	rawSymbols, _ := m["symbols"].([]interface{})
	symbols := make([]string, len(rawSymbols))
	seen := make(map[string]bool, len(rawSymbols))
	for i, s := range rawSymbols {
		sym, ok := s.(string)
		if !ok {
			return nilRef, schemaErrorf("parse", path, "enum symbol %d is not a string", i)
		}
		if seen[sym] {
			return nilRef, schemaErrorf("parse", path, "duplicate enum symbol %q", sym)
		}
		seen[sym] = true
		symbols[i] = sym
	}

	n := Node{Kind: KindEnum, Name: fqn, Symbols: symbols}
	if def, ok := m["default"].(string); ok {
		n.EnumDefault = def
	}
	ref := b.alloc(n)
	b.byName[fqn] = ref
	return ref, nil
}

func (b *builder) buildFixed(enclosingNamespace string, m map[string]interface{}, path string) (NodeRef, error) {
	fqn, _, err := fqnAndNamespace(m, enclosingNamespace)
	if err != nil {
		return nilRef, schemaErrorf("parse", path, "%w", err)
	}
	if err := b.registerName(fqn, path); err != nil {
		return nilRef, err
	}

	sizeNum, ok := m["size"]
	if !ok {
		return nilRef, schemaErrorf("parse", path, "%w", missingRequiredField("size", path))
	}
	size, err := jsonInt(sizeNum)
	if err != nil {
		return nilRef, schemaErrorf("parse", path, "invalid fixed size: %w", err)
	}

	ref := b.alloc(Node{Kind: KindFixed, Name: fqn, Size: size})
	b.byName[fqn] = ref
	return b.applyLogical(ref, m, path)
}

// resolvePending implements Pass 2: resolve every forward-stub reference
// against the now-complete name table, failing with UnknownNamedType if
// still missing, then rewrite every Item/Values/Branches/Fields[].Type that
// points at a forward stub to point at the real target instead.
func (b *builder) resolvePending() error {
	target := make(map[NodeRef]NodeRef, len(b.forward))
	for ref, candidates := range b.forward {
		found := nilRef
		for _, c := range candidates {
			if r, ok := b.byName[c]; ok {
				found = r
				break
			}
		}
		if found == nilRef {
			return schemaErrorf("resolve", "", "unknown named type %q", candidates[len(candidates)-1])
		}
		target[ref] = found
	}

	resolve := func(ref NodeRef) NodeRef {
		for i := 0; i < len(b.nodes)+1; i++ {
			t, ok := target[ref]
			if !ok {
				return ref
			}
			ref = t
		}
		return ref
	}

	for i := range b.nodes {
		n := &b.nodes[i]
		switch n.Kind {
		case KindArray:
			n.Item = resolve(n.Item)
		case KindMap:
			n.Values = resolve(n.Values)
		case KindUnion:
			for j, br := range n.Branches {
				n.Branches[j] = resolve(br)
			}
		case KindRecord:
			for j := range n.Fields {
				n.Fields[j].Type = resolve(n.Fields[j].Type)
			}
		}
	}
	return nil
}

// validateUnions enforces spec.md §3.1's union-branch distinctness
// invariant once every branch ref is fully resolved.
func (b *builder) validateUnions() error {
	for i := range b.nodes {
		n := &b.nodes[i]
		if n.Kind != KindUnion {
			continue
		}
		seen := make(map[string]bool, len(n.Branches))
		for _, br := range n.Branches {
			target := b.nodes[br]
			if target.Kind == KindUnion {
				return schemaErrorf("union", "", "union may not directly contain another union")
			}
			tag := target.Kind.String()
			if target.Kind.isNamed() {
				tag += ":" + target.Name
			}
			if seen[tag] {
				return schemaErrorf("union", "", "union branches must be pairwise resolution-distinct; duplicate %s", tag)
			}
			seen[tag] = true
		}
	}
	return nil
}

func jsonInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
