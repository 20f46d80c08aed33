package plan

import (
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/internal/naming"
)

// SizePolicy is how the element count of an array is known.
type SizePolicy uint8

const (
	SizeFixed SizePolicy = iota + 1
	SizeZeroTerminated
	SizeParameter
	SizeField
	SizeUnknown
)

func (p SizePolicy) String() string {
	switch p {
	case SizeFixed:
		return "fixed"
	case SizeZeroTerminated:
		return "zero-terminated"
	case SizeParameter:
		return "parameter"
	case SizeField:
		return "field"
	case SizeUnknown:
		return "unknown"
	}
	return "none"
}

// Sizing describes how many elements an array holds at the call boundary.
//
// Unknown-size arrays are exposed as an unbounded address. Such a handle
// must never be indexed without a bound the caller supplies separately.
type Sizing struct {
	LengthName  string     `cbor:"length_name,omitempty"`
	Expr        string     `cbor:"expr,omitempty"`
	Fixed       int        `cbor:"fixed,omitempty"`
	LengthIndex int        `cbor:"length_index"`
	Policy      SizePolicy `cbor:"policy"`
	LengthIsOut bool       `cbor:"length_is_out,omitempty"`
	Unbounded   bool       `cbor:"unbounded,omitempty"`
}

// Counted reports whether the plan copies a known number of elements.
func (s *Sizing) Counted() bool {
	return s.Policy == SizeFixed || s.Policy == SizeParameter || s.Policy == SizeField
}

// size derives the sizing of an array. An explicit length wins over a fixed
// size, which wins over a sentinel.
func size(a gir.Array, lib *gir.Library) (*Sizing, error) {
	s := &Sizing{LengthIndex: -1}

	length, err := a.Length()
	if err != nil {
		return nil, errors.Defect(err)
	}
	switch v := length.(type) {
	case gir.Parameter:
		s.Policy = SizeParameter
		s.LengthIndex = a.LengthIndex()
		s.LengthName = v.Name()
		s.LengthIsOut = v.IsOut()
		s.Expr = lengthExpr(v.Name(), v.AnyType(), v.IsOut(), lib)
		return s, nil
	case gir.Field:
		s.Policy = SizeField
		s.LengthIndex = a.LengthIndex()
		s.LengthName = v.Name()
		s.Expr = "Read" + naming.GoName(v.Name(), true) + "()"
		return s, nil
	}

	switch {
	case a.FixedSize() > 0:
		s.Policy = SizeFixed
		s.Fixed = a.FixedSize()
	case a.ZeroTerminated():
		s.Policy = SizeZeroTerminated
	default:
		s.Policy = SizeUnknown
		s.Unbounded = true
	}
	return s, nil
}

// lengthExpr renders the host expression that yields the element count held
// by a length parameter: pointed-to values are dereferenced and aliases of
// primitives unwrapped.
func lengthExpr(name string, t gir.AnyType, out bool, lib *gir.Library) string {
	expr := naming.GoName(name, false)
	typ, ok := t.(gir.Type)
	if !ok {
		return "int(" + expr + ")"
	}
	deref := out || typ.IsPointer()
	if deref {
		expr = "*" + expr
	}
	if lib != nil {
		if rt, ok := lib.Resolve(typ); ok && rt.Kind() == gir.KindAlias {
			if deref {
				expr = "(" + expr + ")"
			}
			expr += ".Value()"
		}
	}
	return "int(" + expr + ")"
}
