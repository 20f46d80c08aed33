package gir

import (
	"go.uber.org/zap"

	"github.com/wippyai/gibind/errors"
)

// RegisteredType is a named type declared at namespace level: a class,
// interface, record, bitfield, enumeration, callback, alias, union or boxed
// type.
type RegisteredType struct {
	n *Node
}

// AsRegisteredType returns the RegisteredType view of n.
func AsRegisteredType(n *Node) (RegisteredType, bool) {
	if n == nil || !n.kind.IsRegistered() {
		return RegisteredType{}, false
	}
	return RegisteredType{n}, true
}

// Node returns the underlying node.
func (t RegisteredType) Node() *Node { return t.n }

// Kind returns the variant.
func (t RegisteredType) Kind() Kind { return t.n.kind }

// Name returns the unqualified type name.
func (t RegisteredType) Name() string { return t.n.Name() }

// CType returns the C type name.
func (t RegisteredType) CType() string { return t.n.Attr("c:type") }

// Platforms returns the platforms the type is declared on.
func (t RegisteredType) Platforms() Platform { return t.n.Platforms() }

// Namespace returns the name of the enclosing namespace.
func (t RegisteredType) Namespace() string { return t.n.NamespaceName() }

// Fields returns the declared fields.
func (t RegisteredType) Fields() []Field {
	var out []Field
	for _, c := range t.n.children {
		if c.kind == KindField {
			out = append(out, Field{c})
		}
	}
	return out
}

// Callables returns methods, constructors, functions and virtual methods.
func (t RegisteredType) Callables() []Callable {
	var out []Callable
	for _, c := range t.n.children {
		switch c.kind {
		case KindMethod, KindConstructor, KindFunction, KindVirtualMethod:
			out = append(out, Callable{c})
		}
	}
	return out
}

// Signals returns the declared signals.
func (t RegisteredType) Signals() []Callable {
	var out []Callable
	for _, c := range t.n.ChildrenOf(KindSignal) {
		out = append(out, Callable{c})
	}
	return out
}

// Members returns enumeration or bitfield members.
func (t RegisteredType) Members() []*Node {
	return t.n.ChildrenOf(KindMember)
}

// Callable returns the callback signature view. Only valid for callbacks.
func (t RegisteredType) Callable() (Callable, bool) {
	if t.n.kind != KindCallback {
		return Callable{}, false
	}
	return Callable{t.n}, true
}

// Target returns the aliased type. Only valid for aliases.
func (t RegisteredType) Target() (Type, bool) {
	if t.n.kind != KindAlias {
		return Type{}, false
	}
	typ, ok := AnyTypeOf(t.n).(Type)
	return typ, ok
}

// Opaque reports whether the type has no visible structure.
func (t RegisteredType) Opaque() bool {
	return t.n.AttrBool("opaque", false) || t.n.AttrBool("disguised", false)
}

// GetTypeFunc returns the glib:get-type symbol, if any.
func (t RegisteredType) GetTypeFunc() string {
	return t.n.Attr("glib:get-type")
}

// Generatable reports whether the type has anything a binding can expose.
// Enumerations, bitfields, aliases and callbacks always do; structured
// types need at least one field or callable.
func (t RegisteredType) Generatable() bool {
	switch t.n.kind {
	case KindEnumeration, KindBitfield, KindAlias, KindCallback:
		return true
	case KindClass, KindInterface:
		return t.GetTypeFunc() != "" || len(t.Callables()) > 0 || len(t.Fields()) > 0
	default:
		return len(t.Fields()) > 0 || len(t.Callables()) > 0
	}
}

// Field is a member of a record, class or union.
type Field struct {
	n *Node
}

// Node returns the underlying node.
func (f Field) Node() *Node { return f.n }

// Name returns the field name.
func (f Field) Name() string { return f.n.Name() }

// AnyType returns the field type.
func (f Field) AnyType() AnyType { return AnyTypeOf(f.n) }

// Readable reports whether the field may be read.
func (f Field) Readable() bool { return f.n.AttrBool("readable", true) }

// Bits returns the bitfield width, or -1.
func (f Field) Bits() int { return f.n.AttrInt("bits") }

// FieldAt returns the field at a zero-based index within a container.
func FieldAt(container *Node, index int) (Field, error) {
	fields := container.ChildrenOf(KindField)
	if index < 0 || index >= len(fields) {
		return Field{}, errors.OutOfBounds(errors.PhaseResolve, container.Path(), index, len(fields))
	}
	return Field{fields[index]}, nil
}

// mergeable lists the variants that define a merge rule.
var mergeable = map[Kind]bool{
	KindClass:       true,
	KindInterface:   true,
	KindRecord:      true,
	KindBitfield:    true,
	KindEnumeration: true,
	KindCallback:    true,
	KindAlias:       true,
	KindUnion:       true,
}

// Merge combines two declarations of the same logical type from different
// platforms. The result keeps a's attributes, has the structural union of
// both children lists and the union of both platform sets.
//
// When the variants differ, or the variant defines no merge rule, a is
// returned unchanged, b is discarded and merged is false.
func Merge(a, b RegisteredType) (result RegisteredType, merged bool) {
	if a.n.kind != b.n.kind || !mergeable[a.n.kind] {
		Logger().Warn("merge fallback keeps first declaration",
			zap.String("namespace", a.Namespace()),
			zap.String("name", a.Name()),
			zap.Stringer("kept", a.n.kind),
			zap.Stringer("discarded", b.n.kind),
			zap.Stringer("discarded_platforms", b.Platforms()),
		)
		mergeFallbacks.Add(1)
		return a, false
	}
	n := New(a.n.kind, a.n.attrs, Union(a.n.children, b.n.children)...)
	n.platforms = a.Platforms() | b.Platforms()
	return RegisteredType{n}, true
}

// Union returns a's nodes followed by the nodes of b that are not
// structurally equal to any node of a.
func Union(a, b []*Node) []*Node {
	out := make([]*Node, 0, len(a)+len(b))
	out = append(out, a...)
	for _, nb := range b {
		dup := false
		for _, na := range a {
			if Equal(na, nb) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, nb)
		}
	}
	return out
}
