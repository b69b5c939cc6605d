package avro

import "fmt"

// Kind is the tag of a Schema Graph node, per spec.md §3.1.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBytes
	KindString
	KindArray
	KindMap
	KindUnion
	KindRecord
	KindEnum
	KindFixed
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindUnion:
		return "union"
	case KindRecord:
		return "record"
	case KindEnum:
		return "enum"
	case KindFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// isNamed reports whether this kind carries a globally-unique fully
// qualified name (spec.md §3.1 invariant: "Named nodes have globally unique
// fully-qualified names within a graph").
func (k Kind) isNamed() bool {
	return k == KindRecord || k == KindEnum || k == KindFixed
}

// Logical identifies a logical-type wrapper atop a primitive or fixed base,
// per spec.md §3.1/§4.7.
type Logical uint8

const (
	LogicalNone Logical = iota
	LogicalDecimal
	LogicalUUID
	LogicalDate
	LogicalTimeMillis
	LogicalTimeMicros
	LogicalTimestampMillis
	LogicalTimestampMicros
	LogicalDuration
)

// NodeRef is an opaque, stable handle into a Graph's node arena. It is the
// mechanism that lets cyclic (self- or mutually-referential) record
// definitions exist without recursive ownership (spec.md §3.1, §9).
type NodeRef int32

const nilRef NodeRef = -1

// Field is one named, typed, optionally-defaulted member of a Record node.
type Field struct {
	Name string
	Type NodeRef

	HasDefault  bool
	DefaultWire []byte // the field's default, pre-encoded to Avro binary (§4.10)
}

// Node is one element of the Schema Graph: a tagged variant over the Avro
// type space (spec.md §3.1).
type Node struct {
	Kind Kind

	// Named types (Record, Enum, Fixed): fully-qualified name.
	Name string
	Doc  string

	// Array
	Item NodeRef
	// Map
	Values NodeRef
	// Union
	Branches []NodeRef
	// Record
	Fields []Field
	// Enum
	Symbols []string
	EnumDefault string
	// Fixed
	Size int

	// Logical wrapper
	Logical   Logical
	Precision int // Decimal
	Scale     int // Decimal

	// raw is not set by Parse and is not read by Graph.String, which
	// returns the original schema text instead.
	raw interface{}
}

// Graph is a pre-computed, self-referential representation of a parsed Avro
// schema: an arena of Nodes addressed by NodeRef (spec.md §3.1). A Graph is
// immutable after Parse returns and is safe to share across concurrent
// (de)serialization operations.
type Graph struct {
	nodes []Node
	root  NodeRef

	// byName indexes every named node by its fully-qualified name.
	byName map[string]NodeRef

	// text is the original JSON schema string this graph was built from;
	// returned by String/Fingerprint and written as the OCF "avro.schema"
	// metadata value.
	text string
}

// Root returns the entry-point node of the graph.
func (g *Graph) Root() NodeRef { return g.root }

// Node resolves a NodeRef to its Node. Every NodeRef produced by this
// package for a given Graph resolves within that graph (spec.md §3.1
// invariant).
func (g *Graph) Node(ref NodeRef) *Node {
	return &g.nodes[ref]
}

// Lookup resolves a fully-qualified named-type reference for callers
// inspecting the graph.
func (g *Graph) Lookup(fqn string) (NodeRef, bool) {
	ref, ok := g.byName[fqn]
	return ref, ok
}

// String returns the JSON schema text the graph was parsed from, unchanged,
// so re-parsing it yields a structurally identical graph (testable property
// #3). It does not rewrite the text into Avro's canonical form.
func (g *Graph) String() string {
	return g.text
}

// Fingerprint returns a stable process-local key for the graph (its
// original schema text); it does not implement Avro's CRC-64-AVRO
// fingerprint algorithm.
func (g *Graph) Fingerprint() string {
	return g.text
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.Name)
}
