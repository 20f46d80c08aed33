package gir

import (
	"slices"
	"strings"

	"github.com/wippyai/gibind/errors"
)

// AnyType is the type of a value: either a Type or an Array.
type AnyType interface {
	Node() *Node
	isAnyType()
}

// AnyTypeOf returns the first Type or Array child of n.
func AnyTypeOf(n *Node) AnyType {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		switch c.kind {
		case KindType:
			return Type{c}
		case KindArray:
			return Array{c}
		}
	}
	return nil
}

// Type names a scalar, string, object or alias, possibly behind pointers.
type Type struct {
	n *Node
}

// AsType returns the Type view of n.
func AsType(n *Node) (Type, bool) {
	if n == nil || n.kind != KindType {
		return Type{}, false
	}
	return Type{n}, true
}

func (Type) isAnyType() {}

// Node returns the underlying node.
func (t Type) Node() *Node { return t.n }

// Name returns the type name, possibly qualified ("Gdk.Rectangle").
// An unnamed type falls back to its C type.
func (t Type) Name() string {
	if name := t.n.Name(); name != "" {
		return name
	}
	return strings.TrimRight(strings.TrimPrefix(t.CType(), "const "), "* ")
}

// CType returns the c:type attribute.
func (t Type) CType() string {
	return t.n.Attr("c:type")
}

// Qualified splits the name into namespace and local name. Unqualified
// names resolve in the enclosing namespace.
func (t Type) Qualified() (namespace, name string) {
	full := t.Name()
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		return full[:i], full[i+1:]
	}
	return t.n.NamespaceName(), full
}

// PointerDepth returns the number of indirections in the C type.
func (t Type) PointerDepth() int {
	return strings.Count(t.CType(), "*")
}

// HasPointer reports whether a C type spelling contains an indirection.
func HasPointer(cType string) bool {
	return strings.Contains(cType, "*")
}

// IsPointer reports whether the C type has at least one indirection.
func (t Type) IsPointer() bool {
	return t.PointerDepth() > 0
}

// IsPrimitive reports whether the type is a fixed-width scalar.
func (t Type) IsPrimitive() bool {
	_, ok := primitives[t.Name()]
	return ok
}

// IsBoolean reports whether the type is gboolean (an int on the native side).
func (t Type) IsBoolean() bool {
	return t.Name() == "gboolean"
}

// IsString reports whether the type is a NUL-terminated string.
func (t Type) IsString() bool {
	name := t.Name()
	return name == "utf8" || name == "filename"
}

// IsVoid reports whether the type is "none".
func (t Type) IsVoid() bool {
	return t.Name() == "none"
}

// IsOpaquePointer reports whether the type is an untyped pointer.
func (t Type) IsOpaquePointer() bool {
	name := t.Name()
	return name == "gpointer" || name == "gconstpointer"
}

// IsErrorPointer reports whether the C type is GError**.
func (t Type) IsErrorPointer() bool {
	return strings.TrimSpace(t.CType()) == "GError**"
}

// IsVaList reports whether the type is a va_list.
func (t Type) IsVaList() bool {
	return t.Name() == "va_list" || strings.Contains(t.CType(), "va_list")
}

// primitives maps fixed-width scalar type names to their size in bytes.
// Zero means pointer-sized.
var primitives = map[string]int{
	"gboolean": 4,
	"gchar":    1, "guchar": 1, "gint8": 1, "guint8": 1,
	"gshort": 2, "gushort": 2, "gint16": 2, "guint16": 2,
	"gint": 4, "guint": 4, "gint32": 4, "guint32": 4, "gunichar": 4, "gunichar2": 2,
	"gint64": 8, "guint64": 8,
	"glong": 0, "gulong": 0, "gsize": 0, "gssize": 0, "goffset": 8,
	"gintptr": 0, "guintptr": 0, "GType": 0,
	"gfloat": 4, "gdouble": 8,
}

// PrimitiveSize returns the byte size of a primitive type name. Zero means
// pointer-sized; ok is false for non-primitives.
func PrimitiveSize(name string) (size int, ok bool) {
	size, ok = primitives[name]
	return size, ok
}

// Array is a sequence of elements with a size policy.
type Array struct {
	n *Node
}

// AsArray returns the Array view of n.
func AsArray(n *Node) (Array, bool) {
	if n == nil || n.kind != KindArray {
		return Array{}, false
	}
	return Array{n}, true
}

func (Array) isAnyType() {}

// Node returns the underlying node.
func (a Array) Node() *Node { return a.n }

// CType returns the c:type attribute of the array itself.
func (a Array) CType() string {
	return a.n.Attr("c:type")
}

// ElementType returns the element type.
func (a Array) ElementType() AnyType {
	return AnyTypeOf(a.n)
}

// ZeroTerminated reports whether the array ends with a sentinel element.
// An explicit zero-terminated attribute always wins. Without one the array
// is zero-terminated only when it has no length, no fixed size and no name.
func (a Array) ZeroTerminated() bool {
	if a.n.HasAttr("zero-terminated") {
		return a.n.AttrBool("zero-terminated", true)
	}
	return !slices.ContainsFunc([]string{"length", "fixed-size", "name"}, a.n.HasAttr)
}

// FixedSize returns the fixed element count, or -1.
func (a Array) FixedSize() int {
	return a.n.AttrInt("fixed-size")
}

// Introspectable reports whether the array may be generated.
func (a Array) Introspectable() bool {
	return a.n.AttrBool("introspectable", true)
}

// LengthIndex returns the length attribute, or -1.
func (a Array) LengthIndex() int {
	return a.n.AttrInt("length")
}

// TypedValue is a parameter or a field that can carry an array length.
type TypedValue interface {
	Node() *Node
	Name() string
	AnyType() AnyType
}

// Length resolves the value holding the element count. It returns nil
// without error when the array has no length attribute.
//
// Field arrays index the fields of the enclosing record; parameter and
// return value arrays index the explicit parameters of the owning callable.
// Any other owner is a defect in the declarations.
func (a Array) Length() (TypedValue, error) {
	index := a.LengthIndex()
	if index == -1 {
		return nil, nil
	}
	owner := a.n.parent
	if owner == nil {
		return nil, errors.InvalidReference(a.n.Path(), "array is detached")
	}
	switch owner.kind {
	case KindField:
		container := owner.parent
		if container == nil {
			return nil, errors.InvalidReference(owner.Path(), "field is detached")
		}
		return FieldAt(container, index)
	case KindParameter, KindInstanceParameter:
		params := owner.parent
		if params == nil || params.kind != KindParameters {
			return nil, errors.InvalidReference(owner.Path(), "parameter outside a parameter list")
		}
		return parameterAt(params, index)
	case KindReturnValue:
		callable := owner.parent
		if callable == nil || !callable.kind.IsCallable() {
			return nil, errors.InvalidReference(owner.Path(), "return value outside a callable")
		}
		return Callable{callable}.ParameterAt(index)
	default:
		return nil, errors.InvalidReference(a.n.Path(),
			"array owner is "+owner.kind.String()+", not a field, parameter or return value")
	}
}

// UnknownSize reports whether the element count cannot be derived: no
// fixed size, no sentinel and no length value.
func (a Array) UnknownSize() (bool, error) {
	if a.FixedSize() > 0 || a.ZeroTerminated() {
		return false, nil
	}
	length, err := a.Length()
	if err != nil {
		return false, err
	}
	return length == nil, nil
}
