package gir

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/gibind/errors"
)

// wireNode is the snapshot encoding of a Node.
type wireNode struct {
	Kind      string            `cbor:"k"`
	Attrs     map[string]string `cbor:"a,omitempty"`
	Children  []wireNode        `cbor:"c,omitempty"`
	Platforms uint8             `cbor:"p,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func toWire(n *Node) wireNode {
	w := wireNode{
		Kind:      n.kind.String(),
		Attrs:     n.attrs,
		Platforms: uint8(n.platforms),
	}
	if len(n.children) > 0 {
		w.Children = make([]wireNode, len(n.children))
		for i, c := range n.children {
			w.Children[i] = toWire(c)
		}
	}
	return w
}

func fromWire(w wireNode) (*Node, error) {
	kind := ParseKind(w.Kind)
	if kind == KindUnknown {
		return nil, errors.Load(fmt.Sprintf("unknown element %q", w.Kind), nil)
	}
	children := make([]*Node, len(w.Children))
	for i, wc := range w.Children {
		c, err := fromWire(wc)
		if err != nil {
			return nil, err
		}
		children[i] = c
	}
	n := New(kind, w.Attrs, children...)
	n.platforms = Platform(w.Platforms)
	return n, nil
}

// MarshalTree serializes a declaration tree to canonical CBOR.
func MarshalTree(n *Node) ([]byte, error) {
	return cborEncMode.Marshal(toWire(n))
}

// UnmarshalTree deserializes a declaration tree. Parent links are set on the
// returned tree.
func UnmarshalTree(data []byte) (*Node, error) {
	var w wireNode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, errors.Load("decode snapshot", err)
	}
	return fromWire(w)
}

// EncodeTree writes a declaration tree snapshot to w.
func EncodeTree(w io.Writer, n *Node) error {
	return cborEncMode.NewEncoder(w).Encode(toWire(n))
}

// DecodeTree reads a declaration tree snapshot from r.
func DecodeTree(r io.Reader) (*Node, error) {
	var w wireNode
	if err := cbor.NewDecoder(r).Decode(&w); err != nil {
		return nil, errors.Load("decode snapshot", err)
	}
	return fromWire(w)
}
