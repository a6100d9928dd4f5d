// Package schema defines the account-plan structure every rendered document
// relies on, together with the placeholder text for each leaf.
package schema

import (
	"bytes"
	"encoding/json"
)

// Kind discriminates schema nodes.
type Kind int

const (
	KindLeaf Kind = iota
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "leaf"
	}
}

// Field is a named child of an object node.
type Field struct {
	Name string
	Node *Node
}

// Node is one position in the schema tree. Exactly one of the kind-specific
// parts is meaningful: fields for objects, elem for lists, placeholder for
// leaves. Nodes are never modified after construction.
type Node struct {
	kind        Kind
	fields      []Field
	index       map[string]int
	elem        *Node
	placeholder string
}

// Leaf builds a leaf node with the given placeholder text.
func Leaf(placeholder string) *Node {
	return &Node{kind: KindLeaf, placeholder: placeholder}
}

// List builds a list node whose elements must conform to elem.
func List(elem *Node) *Node {
	return &Node{kind: KindList, elem: elem}
}

// Object builds an object node. Later duplicates of a field name replace
// earlier ones but keep the first position.
func Object(fields ...Field) *Node {
	n := &Node{kind: KindObject, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := n.index[f.Name]; ok {
			n.fields[i] = f
			continue
		}
		n.index[f.Name] = len(n.fields)
		n.fields = append(n.fields, f)
	}
	return n
}

// Kind reports the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Placeholder returns the leaf placeholder text ("" for non-leaves).
func (n *Node) Placeholder() string { return n.placeholder }

// Elem returns the template element of a list node.
func (n *Node) Elem() *Node { return n.elem }

// Fields returns the object's fields in schema order.
func (n *Node) Fields() []Field {
	out := make([]Field, len(n.fields))
	copy(out, n.fields)
	return out
}

// Field looks up a child of an object node by name.
func (n *Node) Field(name string) (*Node, bool) {
	i, ok := n.index[name]
	if !ok {
		return nil, false
	}
	return n.fields[i].Node, true
}

// Len returns the number of fields of an object node.
func (n *Node) Len() int { return len(n.fields) }

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindObject:
		fields := make([]Field, len(n.fields))
		for i, f := range n.fields {
			fields[i] = Field{Name: f.Name, Node: f.Node.Clone()}
		}
		return Object(fields...)
	case KindList:
		return List(n.elem.Clone())
	default:
		return Leaf(n.placeholder)
	}
}

// Default builds a freshly allocated data tree holding the node's defaults:
// objects carry every field, lists hold a single defaulted element and
// leaves hold their placeholder.
func (n *Node) Default() any {
	switch n.kind {
	case KindObject:
		out := make(map[string]any, len(n.fields))
		for _, f := range n.fields {
			out[f.Name] = f.Node.Default()
		}
		return out
	case KindList:
		return []any{n.elem.Default()}
	default:
		return n.placeholder
	}
}

// Paths lists every key path below the node. Object fields are joined with
// "." and list elements are marked with "[]".
func (n *Node) Paths() []string {
	var out []string
	n.walkPaths("", &out)
	return out
}

func (n *Node) walkPaths(prefix string, out *[]string) {
	switch n.kind {
	case KindObject:
		for _, f := range n.fields {
			p := f.Name
			if prefix != "" {
				p = prefix + "." + f.Name
			}
			*out = append(*out, p)
			f.Node.walkPaths(p, out)
		}
	case KindList:
		n.elem.walkPaths(prefix+"[]", out)
	}
}

// Skeleton renders the default tree as indented JSON with keys in schema
// order. It is what the model is shown as the target structure.
func (n *Node) Skeleton() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeSkeleton(&buf, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeSkeleton(buf *bytes.Buffer, indent string) error {
	inner := indent + "  "
	switch n.kind {
	case KindObject:
		if len(n.fields) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		for i, f := range n.fields {
			key, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.WriteString(inner)
			buf.Write(key)
			buf.WriteString(": ")
			if err := f.Node.writeSkeleton(buf, inner); err != nil {
				return err
			}
			if i < len(n.fields)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(indent)
		buf.WriteByte('}')
	case KindList:
		buf.WriteString("[\n")
		buf.WriteString(inner)
		if err := n.elem.writeSkeleton(buf, inner); err != nil {
			return err
		}
		buf.WriteByte('\n')
		buf.WriteString(indent)
		buf.WriteByte(']')
	default:
		s, err := json.Marshal(n.placeholder)
		if err != nil {
			return err
		}
		buf.Write(s)
	}
	return nil
}
