package gir

import (
	"maps"
	"slices"
	"strconv"
)

// Node is one element of a declaration tree.
//
// Nodes are immutable once attached. Structural changes go through the
// With* methods, which return a detached copy; attaching that copy to a new
// parent (New, WithChildren) rebuilds the path to the root. A node is never
// reachable from two parents: attaching an already attached node attaches a
// deep copy of it instead.
type Node struct {
	attrs     map[string]string
	parent    *Node
	children  []*Node
	kind      Kind
	platforms Platform
}

// New creates a detached node. Detached children are adopted, attached
// children are copied.
func New(kind Kind, attrs map[string]string, children ...*Node) *Node {
	n := &Node{
		kind:  kind,
		attrs: maps.Clone(attrs),
	}
	n.adopt(children)
	return n
}

func (n *Node) adopt(children []*Node) {
	n.children = make([]*Node, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.parent != nil {
			c = c.clone()
		}
		c.parent = n
		n.children = append(n.children, c)
	}
}

// clone returns a detached deep copy of n.
func (n *Node) clone() *Node {
	c := &Node{
		kind:      n.kind,
		attrs:     n.attrs,
		platforms: n.platforms,
	}
	c.children = make([]*Node, len(n.children))
	for i, child := range n.children {
		cc := child.clone()
		cc.parent = c
		c.children[i] = cc
	}
	return c
}

// Kind returns the element kind.
func (n *Node) Kind() Kind {
	return n.kind
}

// Parent returns the parent node, or nil for a root or detached node.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the ordered children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// ChildrenOf returns the children of the given kind in document order.
func (n *Node) ChildrenOf(kind Kind) []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first child of the given kind.
func (n *Node) Child(kind Kind) *Node {
	for _, c := range n.children {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

// Attr returns an attribute value, or "" when absent.
func (n *Node) Attr(key string) string {
	return n.attrs[key]
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.attrs[key]
	return ok
}

// AttrInt returns an integer attribute, or -1 when absent or malformed.
func (n *Node) AttrInt(key string) int {
	v, ok := n.attrs[key]
	if !ok {
		return -1
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return i
}

// AttrBool returns a boolean attribute ("1" or "true"), or def when absent.
func (n *Node) AttrBool(key string, def bool) bool {
	v, ok := n.attrs[key]
	if !ok {
		return def
	}
	return v == "1" || v == "true"
}

// Attrs returns a copy of the attribute map.
func (n *Node) Attrs() map[string]string {
	return maps.Clone(n.attrs)
}

// Name returns the name attribute.
func (n *Node) Name() string {
	return n.attrs["name"]
}

// Platforms returns the platforms the node is declared for. Nodes without an
// explicit tag inherit from their parent; an untagged root is available
// everywhere.
func (n *Node) Platforms() Platform {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.platforms != 0 {
			return cur.platforms
		}
	}
	return PlatformAll
}

// Namespace returns the enclosing namespace node, or nil.
func (n *Node) Namespace() *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.kind == KindNamespace {
			return cur
		}
	}
	return nil
}

// NamespaceName returns the name of the enclosing namespace, or "".
func (n *Node) NamespaceName() string {
	if ns := n.Namespace(); ns != nil {
		return ns.Name()
	}
	return ""
}

// Index returns the position of n among its parent's children, or -1.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	return slices.Index(n.parent.children, n)
}

// Path returns the element names from the root to n, for error reporting.
func (n *Node) Path() []string {
	var path []string
	for cur := n; cur != nil; cur = cur.parent {
		seg := cur.kind.String()
		if name := cur.Name(); name != "" {
			seg += ":" + name
		}
		path = append(path, seg)
	}
	slices.Reverse(path)
	return path
}

// WithAttr returns a detached copy of n with the attribute set.
func (n *Node) WithAttr(key, value string) *Node {
	c := n.clone()
	c.attrs = maps.Clone(n.attrs)
	if c.attrs == nil {
		c.attrs = make(map[string]string, 1)
	}
	c.attrs[key] = value
	return c
}

// WithoutAttr returns a detached copy of n without the attribute.
func (n *Node) WithoutAttr(key string) *Node {
	if !n.HasAttr(key) {
		return n
	}
	c := n.clone()
	c.attrs = maps.Clone(n.attrs)
	delete(c.attrs, key)
	return c
}

// WithKind returns a detached copy of n with a different element kind.
func (n *Node) WithKind(kind Kind) *Node {
	c := n.clone()
	c.kind = kind
	return c
}

// WithPlatforms returns a detached copy of n tagged with p.
func (n *Node) WithPlatforms(p Platform) *Node {
	c := n.clone()
	c.platforms = p
	return c
}

// WithChildren returns a detached copy of n with new children.
func (n *Node) WithChildren(children ...*Node) *Node {
	c := &Node{
		kind:      n.kind,
		attrs:     n.attrs,
		platforms: n.platforms,
	}
	c.adopt(children)
	return c
}

// ReplaceChild returns a detached copy of n with the child at index i replaced.
func (n *Node) ReplaceChild(i int, child *Node) *Node {
	children := slices.Clone(n.children)
	children[i] = child
	return n.WithChildren(children...)
}

// RemoveChild returns a detached copy of n without the child at index i.
func (n *Node) RemoveChild(i int) *Node {
	children := slices.Delete(slices.Clone(n.children), i, i+1)
	return n.WithChildren(children...)
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Equal reports structural equality: kind, attributes, platform tag and
// children in order. Parents are not compared.
func Equal(a, b *Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind || a.platforms != b.platforms {
		return false
	}
	if !maps.Equal(a.attrs, b.attrs) {
		return false
	}
	return slices.EqualFunc(a.children, b.children, Equal)
}
