package plan

import (
	"github.com/wippyai/gibind/gir"
)

// Class is the marshaling category of a parameter or return value.
type Class uint8

// Classes in classification priority order.
const (
	ClassArray Class = iota
	ClassOutArray
	ClassInstance
	ClassOut
	ClassPointerPointer
	ClassPrimitivePointer
	ClassString
	ClassBoolean
	ClassRegistered
	ClassScalar
)

var classNames = [...]string{
	ClassArray:            "array",
	ClassOutArray:         "out-array",
	ClassInstance:         "instance",
	ClassOut:              "out",
	ClassPointerPointer:   "pointer-pointer",
	ClassPrimitivePointer: "primitive-pointer",
	ClassString:           "string",
	ClassBoolean:          "boolean",
	ClassRegistered:       "registered",
	ClassScalar:           "scalar",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// Classify assigns a parameter to its marshaling class. Rules are tried in
// a fixed order and the first match wins, so an out array is an out array
// container and never a plain array.
func Classify(p gir.Parameter, lib *gir.Library) Class {
	t := p.AnyType()
	if _, ok := t.(gir.Array); ok {
		if p.IsOut() {
			return ClassOutArray
		}
		return ClassArray
	}
	if p.IsInstance() {
		return ClassInstance
	}
	if p.IsOut() {
		return ClassOut
	}
	typ, ok := t.(gir.Type)
	if !ok {
		return ClassScalar
	}
	return classifyType(typ, lib)
}

func classifyType(t gir.Type, lib *gir.Library) Class {
	switch {
	case t.PointerDepth() >= 2:
		return ClassPointerPointer
	case t.IsPointer() && t.IsPrimitive():
		return ClassPrimitivePointer
	case t.IsString():
		return ClassString
	case t.IsBoolean():
		return ClassBoolean
	}
	if lib != nil {
		if rt, ok := lib.Resolve(t); ok {
			if rt.Kind() == gir.KindAlias {
				if target, ok := rt.Target(); ok && target.IsPrimitive() {
					return classifyType(target, lib)
				}
			}
			return ClassRegistered
		}
	}
	return ClassScalar
}

// ClassifyValue classifies a return value or an array element. Such values
// have no direction, so only the type rules apply.
func ClassifyValue(t gir.AnyType, lib *gir.Library) Class {
	switch typ := t.(type) {
	case gir.Array:
		return ClassArray
	case gir.Type:
		return classifyType(typ, lib)
	}
	return ClassScalar
}

// Lowering is how a registered type crosses the call boundary.
type Lowering uint8

const (
	LowerNone Lowering = iota
	LowerObject
	LowerBoxed
	LowerStruct
	LowerValue
	LowerCallback
)

var loweringNames = [...]string{
	LowerNone:     "none",
	LowerObject:   "object",
	LowerBoxed:    "boxed",
	LowerStruct:   "struct",
	LowerValue:    "value",
	LowerCallback: "callback",
}

func (l Lowering) String() string {
	if int(l) < len(loweringNames) {
		return loweringNames[l]
	}
	return "unknown"
}

// Address reports whether values with this lowering are passed by address.
func (l Lowering) Address() bool {
	return l == LowerObject || l == LowerBoxed || l == LowerStruct || l == LowerCallback
}

// LowerType returns the lowering rule of the registered type t refers to.
// Aliases delegate to their target; unresolved and built-in types lower to
// LowerNone.
func LowerType(t gir.Type, lib *gir.Library) Lowering {
	if lib == nil {
		return LowerNone
	}
	rt, ok := lib.Resolve(t)
	if !ok {
		return LowerNone
	}
	return lowerRegistered(rt, lib, 0)
}

func lowerRegistered(rt gir.RegisteredType, lib *gir.Library, depth int) Lowering {
	switch rt.Kind() {
	case gir.KindClass, gir.KindInterface:
		return LowerObject
	case gir.KindBoxed:
		return LowerBoxed
	case gir.KindRecord, gir.KindUnion:
		if rt.GetTypeFunc() != "" {
			return LowerBoxed
		}
		return LowerStruct
	case gir.KindEnumeration, gir.KindBitfield:
		return LowerValue
	case gir.KindCallback:
		return LowerCallback
	case gir.KindAlias:
		target, ok := rt.Target()
		if !ok || depth > 8 {
			return LowerNone
		}
		next, ok := lib.Resolve(target)
		if !ok {
			return LowerNone
		}
		return lowerRegistered(next, lib, depth+1)
	}
	return LowerNone
}
