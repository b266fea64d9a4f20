package tracking

import (
	"bytes"
	"encoding/json"
)

// NodeKind identifies the shape of a decoded payload node.
type NodeKind int

const (
	// KindString is a plain string leaf.
	KindString NodeKind = iota

	// KindList is an ordered sequence of nodes.
	KindList

	// KindMap is a keyed collection of nodes. Key order is preserved so
	// recursive searches are deterministic across runs.
	KindMap

	// KindEncoded is a value that carried a second layer of encoding. It
	// keeps the pre-decoded raw string alongside the parsed form; Parsed is
	// nil when no decode pass succeeded.
	KindEncoded
)

// Node is one node of a decoded payload tree.
//
// The decoder produces trees of these instead of untyped maps so that the
// layering and search logic can switch exhaustively on Kind.
type Node struct {
	Kind  NodeKind
	Str   string
	Items []*Node

	keys   []string
	fields map[string]*Node

	// Raw and Parsed are only meaningful for KindEncoded.
	Raw    string
	Parsed *Node
}

// StringNode creates a string leaf.
func StringNode(s string) *Node {
	return &Node{Kind: KindString, Str: s}
}

// ListNode creates a list node from the given items.
func ListNode(items ...*Node) *Node {
	return &Node{Kind: KindList, Items: items}
}

// MapNode creates an empty map node.
func MapNode() *Node {
	return &Node{Kind: KindMap, fields: make(map[string]*Node)}
}

// EncodedNode creates a raw/parsed pair for a multiply-encoded value.
// parsed may be nil when decoding the inner layer failed.
func EncodedNode(raw string, parsed *Node) *Node {
	return &Node{Kind: KindEncoded, Raw: raw, Parsed: parsed}
}

// Set stores a child under key, preserving first-insertion order.
func (n *Node) Set(key string, child *Node) {
	if n.Kind != KindMap {
		return
	}
	if _, exists := n.fields[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = child
}

// Get returns the child stored under key.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Kind != KindMap {
		return nil, false
	}
	child, ok := n.fields[key]
	return child, ok
}

// Keys returns the map keys in insertion order.
func (n *Node) Keys() []string {
	if n.Kind != KindMap {
		return nil
	}
	keys := make([]string, len(n.keys))
	copy(keys, n.keys)
	return keys
}

// Len returns the number of children for maps and lists.
func (n *Node) Len() int {
	switch n.Kind {
	case KindMap:
		return len(n.keys)
	case KindList:
		return len(n.Items)
	default:
		return 0
	}
}

// Find searches the tree depth-first for the first node stored under the
// given key. Keys at the current level are checked before descending, and
// encoded nodes are searched through their parsed side, so the shallowest
// match in insertion order wins. Matching the first occurrence (instead of
// collecting all of them) is a deliberate policy: payload nesting depth
// drifts between event kinds, and the shallow match is the stable one.
func (n *Node) Find(key string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Kind {
	case KindMap:
		if child, ok := n.fields[key]; ok {
			return child, true
		}
		for _, k := range n.keys {
			if found, ok := n.fields[k].Find(key); ok {
				return found, true
			}
		}
	case KindList:
		for _, item := range n.Items {
			if found, ok := item.Find(key); ok {
				return found, true
			}
		}
	case KindEncoded:
		if n.Parsed != nil {
			return n.Parsed.Find(key)
		}
	}
	return nil, false
}

// Value returns the node's comparable string form: the string itself for
// leaves, the parsed side (or the raw string when parsing failed) for
// encoded nodes, and compact JSON for maps and lists.
func (n *Node) Value() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindString:
		return n.Str
	case KindEncoded:
		if n.Parsed != nil {
			return n.Parsed.Value()
		}
		return n.Raw
	default:
		data, err := n.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// MarshalJSON renders the tree as JSON. Map keys keep their insertion
// order and encoded nodes serialize as {"raw": ..., "parsed": ...}.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind {
	case KindString:
		data, err := json.Marshal(n.Str)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyData, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyData)
			buf.WriteByte(':')
			if err := n.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindEncoded:
		buf.WriteString(`{"raw":`)
		rawData, err := json.Marshal(n.Raw)
		if err != nil {
			return err
		}
		buf.Write(rawData)
		buf.WriteString(`,"parsed":`)
		if n.Parsed == nil {
			buf.WriteString("null")
		} else if err := n.Parsed.writeJSON(buf); err != nil {
			return err
		}
		buf.WriteByte('}')
	}
	return nil
}
