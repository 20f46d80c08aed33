package gir

import (
	"strings"

	"github.com/wippyai/gibind/errors"
)

// Callable is a method, virtual method, function, constructor, signal or
// callback.
type Callable struct {
	n *Node
}

// AsCallable returns the Callable view of n.
func AsCallable(n *Node) (Callable, bool) {
	if n == nil || !n.kind.IsCallable() {
		return Callable{}, false
	}
	return Callable{n}, true
}

// Node returns the underlying node.
func (c Callable) Node() *Node { return c.n }

// Kind returns the callable's element kind.
func (c Callable) Kind() Kind { return c.n.kind }

// Name returns the callable name, falling back to the C identifier when the
// name is empty.
func (c Callable) Name() string {
	if name := c.n.Name(); name != "" {
		return name
	}
	return c.CIdentifier()
}

// CIdentifier returns the native symbol name.
func (c Callable) CIdentifier() string {
	return c.n.Attr("c:identifier")
}

// Throws reports whether the callable reports failures through a GError slot.
func (c Callable) Throws() bool {
	return c.n.AttrBool("throws", false)
}

// Deprecated reports whether the callable is deprecated.
func (c Callable) Deprecated() bool {
	return c.n.AttrBool("deprecated", false)
}

// Introspectable reports whether the callable may be generated.
func (c Callable) Introspectable() bool {
	return c.n.AttrBool("introspectable", true)
}

// ReturnValue returns the return value, if declared.
func (c Callable) ReturnValue() (ReturnValue, bool) {
	rv := c.n.Child(KindReturnValue)
	if rv == nil {
		return ReturnValue{}, false
	}
	return ReturnValue{rv}, true
}

func (c Callable) parameterList() *Node {
	return c.n.Child(KindParameters)
}

// Parameters returns all parameters, including the instance parameter.
func (c Callable) Parameters() []Parameter {
	list := c.parameterList()
	if list == nil {
		return nil
	}
	var out []Parameter
	for _, p := range list.children {
		if p.kind == KindParameter || p.kind == KindInstanceParameter {
			out = append(out, Parameter{p})
		}
	}
	return out
}

// InstanceParameter returns the implicit receiver, if any.
func (c Callable) InstanceParameter() (Parameter, bool) {
	list := c.parameterList()
	if list == nil {
		return Parameter{}, false
	}
	if p := list.Child(KindInstanceParameter); p != nil {
		return Parameter{p}, true
	}
	return Parameter{}, false
}

// IsVariadic reports whether the parameter list ends with varargs.
func (c Callable) IsVariadic() bool {
	for _, p := range c.Parameters() {
		if p.n.Child(KindVarargs) != nil {
			return true
		}
	}
	return false
}

// ParameterAt returns the explicit parameter at a zero-based index, skipping
// the instance parameter. An index outside the list is a defect.
func (c Callable) ParameterAt(index int) (Parameter, error) {
	list := c.parameterList()
	if list == nil {
		return Parameter{}, errors.New(errors.PhaseResolve, errors.KindOutOfBounds).
			Path(c.n.Path()...).
			Value(index).
			Detail("parameter index %d on a callable without parameters", index).
			Fatal().
			Build()
	}
	return parameterAt(list, index)
}

func parameterAt(list *Node, index int) (Parameter, error) {
	var params []*Node
	for _, p := range list.children {
		if p.kind == KindParameter || p.kind == KindInstanceParameter {
			params = append(params, p)
		}
	}
	i := index
	if len(params) > 0 && params[0].kind == KindInstanceParameter {
		i++
	}
	if index < 0 || i >= len(params) {
		return Parameter{}, errors.OutOfBounds(errors.PhaseResolve, list.Path(), index, len(params))
	}
	return Parameter{params[i]}, nil
}

// Direction of a parameter.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionInOut:
		return "inout"
	default:
		return "in"
	}
}

// Transfer is the ownership-transfer convention of a value.
type Transfer uint8

const (
	TransferNone Transfer = iota
	TransferContainer
	TransferFull
)

func (t Transfer) String() string {
	switch t {
	case TransferContainer:
		return "container"
	case TransferFull:
		return "full"
	default:
		return "none"
	}
}

func parseTransfer(s string) Transfer {
	switch s {
	case "full":
		return TransferFull
	case "container":
		return TransferContainer
	default:
		return TransferNone
	}
}

// Parameter is one call argument, including the instance parameter.
type Parameter struct {
	n *Node
}

// AsParameter returns the Parameter view of n.
func AsParameter(n *Node) (Parameter, bool) {
	if n == nil || (n.kind != KindParameter && n.kind != KindInstanceParameter) {
		return Parameter{}, false
	}
	return Parameter{n}, true
}

// Node returns the underlying node.
func (p Parameter) Node() *Node { return p.n }

// Name returns the parameter name.
func (p Parameter) Name() string { return p.n.Name() }

// AnyType returns the parameter type.
func (p Parameter) AnyType() AnyType { return AnyTypeOf(p.n) }

// Direction returns in, out or inout. Absent means in.
func (p Parameter) Direction() Direction {
	switch p.n.Attr("direction") {
	case "out":
		return DirectionOut
	case "inout":
		return DirectionInOut
	default:
		return DirectionIn
	}
}

// IsOut reports whether the callee writes the parameter.
func (p Parameter) IsOut() bool {
	return p.Direction() != DirectionIn
}

// IsInstance reports whether the parameter is the implicit receiver.
func (p Parameter) IsInstance() bool {
	return p.n.kind == KindInstanceParameter
}

// Transfer returns the ownership transfer. Absent means none.
func (p Parameter) Transfer() Transfer {
	return parseTransfer(p.n.Attr("transfer-ownership"))
}

// Nullable reports whether NULL is accepted.
func (p Parameter) Nullable() bool {
	return p.n.AttrBool("nullable", false) || p.n.AttrBool("allow-none", false)
}

// CallerAllocates reports whether an out parameter is allocated by the caller.
func (p Parameter) CallerAllocates() bool {
	return p.n.AttrBool("caller-allocates", false)
}

// Position returns the zero-based explicit index of the parameter, or -1 for
// the instance parameter.
func (p Parameter) Position() int {
	if p.IsInstance() || p.n.parent == nil {
		return -1
	}
	pos := 0
	for _, c := range p.n.parent.children {
		if c == p.n {
			return pos
		}
		if c.kind == KindParameter {
			pos++
		}
	}
	return -1
}

// Closure returns the index of the user-data parameter for a callback
// parameter, or -1.
func (p Parameter) Closure() int {
	return p.n.AttrInt("closure")
}

// Destroy returns the index of the destroy-notify parameter, or -1.
func (p Parameter) Destroy() int {
	return p.n.AttrInt("destroy")
}

// IsErrorParameter reports whether the parameter is an explicit GError**.
func (p Parameter) IsErrorParameter() bool {
	t, ok := p.AnyType().(Type)
	return ok && t.IsErrorPointer()
}

// IsUserData reports whether the parameter is an opaque user-data pointer.
func (p Parameter) IsUserData() bool {
	t, ok := p.AnyType().(Type)
	if !ok {
		return false
	}
	ct := t.CType()
	return strings.HasSuffix(strings.ToLower(p.Name()), "data") &&
		(ct == "gpointer" || ct == "gconstpointer")
}

// IsDestroyNotify reports whether the parameter is a GDestroyNotify callback.
func (p Parameter) IsDestroyNotify() bool {
	t, ok := p.AnyType().(Type)
	if !ok {
		return false
	}
	name := t.Name()
	return name == "GLib.DestroyNotify" || name == "DestroyNotify"
}

// ReturnValue is the result of a callable.
type ReturnValue struct {
	n *Node
}

// Node returns the underlying node.
func (r ReturnValue) Node() *Node { return r.n }

// AnyType returns the return type.
func (r ReturnValue) AnyType() AnyType { return AnyTypeOf(r.n) }

// Transfer returns the ownership transfer. Absent means none.
func (r ReturnValue) Transfer() Transfer {
	return parseTransfer(r.n.Attr("transfer-ownership"))
}

// Nullable reports whether NULL may be returned.
func (r ReturnValue) Nullable() bool {
	return r.n.AttrBool("nullable", false) || r.n.AttrBool("allow-none", false)
}

// IsVoid reports whether the callable returns nothing.
func (r ReturnValue) IsVoid() bool {
	if r.n == nil {
		return true
	}
	t, ok := r.AnyType().(Type)
	return ok && t.IsVoid() && !t.IsPointer()
}

// NewParameter builds a parameter node with a type child.
func NewParameter(name, typeName, cType string, attrs map[string]string) *Node {
	a := map[string]string{"name": name}
	for k, v := range attrs {
		a[k] = v
	}
	return New(KindParameter, a, NewType(typeName, cType))
}

// NewType builds a type node.
func NewType(name, cType string) *Node {
	attrs := map[string]string{}
	if name != "" {
		attrs["name"] = name
	}
	if cType != "" {
		attrs["c:type"] = cType
	}
	return New(KindType, attrs)
}

// NewArray builds an array node around an element type.
func NewArray(attrs map[string]string, elem *Node) *Node {
	return New(KindArray, attrs, elem)
}
