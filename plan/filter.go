package plan

import (
	"github.com/wippyai/gibind/gir"
)

// Exclusion records a declaration the filter dropped before planning.
type Exclusion struct {
	Namespace string `cbor:"namespace"`
	Unit      string `cbor:"unit"`
	Name      string `cbor:"name,omitempty"`
	Reason    string `cbor:"reason"`
}

// Exclusion reasons.
const (
	ReasonExcluded         = "excluded by configuration"
	ReasonNotIntrospect    = "not introspectable"
	ReasonVariadic         = "variadic"
	ReasonVaList           = "takes va_list"
	ReasonCallbackShape    = "callback parameter with out or array parameters"
	ReasonUntypedParameter = "parameter without type"
	ReasonNoMembers        = "no generatable members"
)

// Filter drops declarations whose shapes the planner does not model. It
// runs before Call Plan derivation.
type Filter struct {
	lib     *gir.Library
	exclude map[string]bool
}

// NewFilter creates a filter. Excluded names match type names, callable
// names and C identifiers.
func NewFilter(lib *gir.Library, exclude ...string) *Filter {
	f := &Filter{lib: lib, exclude: make(map[string]bool, len(exclude))}
	for _, name := range exclude {
		f.exclude[name] = true
	}
	return f
}

// Type reports whether a registered type is generated, and why not.
func (f *Filter) Type(rt gir.RegisteredType) (reason string, keep bool) {
	if f.exclude[rt.Name()] || f.exclude[rt.CType()] {
		return ReasonExcluded, false
	}
	if cb, ok := rt.Callable(); ok && unsupportedCallback(cb) {
		return ReasonCallbackShape, false
	}
	if !rt.Generatable() {
		return ReasonNoMembers, false
	}
	return "", true
}

// Callable reports whether a callable is planned, and why not.
func (f *Filter) Callable(c gir.Callable) (reason string, keep bool) {
	if f.exclude[c.Name()] || (c.CIdentifier() != "" && f.exclude[c.CIdentifier()]) {
		return ReasonExcluded, false
	}
	if !c.Introspectable() {
		return ReasonNotIntrospect, false
	}
	if c.IsVariadic() {
		return ReasonVariadic, false
	}
	for _, p := range c.Parameters() {
		switch t := p.AnyType().(type) {
		case nil:
			return ReasonUntypedParameter, false
		case gir.Array:
			if !t.Introspectable() {
				return ReasonNotIntrospect, false
			}
		case gir.Type:
			if t.IsVaList() {
				return ReasonVaList, false
			}
			if f.lib == nil {
				continue
			}
			if rt, ok := f.lib.Resolve(t); ok {
				if cb, ok := rt.Callable(); ok && unsupportedCallback(cb) {
					return ReasonCallbackShape, false
				}
			}
		}
	}
	return "", true
}

// unsupportedCallback reports whether a callback signature carries out
// parameters or arrays, which upcall stubs do not model.
func unsupportedCallback(cb gir.Callable) bool {
	for _, p := range cb.Parameters() {
		if p.IsOut() {
			return true
		}
		if _, ok := p.AnyType().(gir.Array); ok {
			return true
		}
	}
	if rv, ok := cb.ReturnValue(); ok {
		if _, ok := rv.AnyType().(gir.Array); ok {
			return true
		}
	}
	return false
}
