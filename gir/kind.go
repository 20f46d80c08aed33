package gir

// Kind identifies the element type of a declaration node.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRepository
	KindNamespace
	KindClass
	KindInterface
	KindRecord
	KindBitfield
	KindEnumeration
	KindCallback
	KindAlias
	KindUnion
	KindBoxed
	KindMethod
	KindVirtualMethod
	KindFunction
	KindConstructor
	KindSignal
	KindParameters
	KindParameter
	KindInstanceParameter
	KindReturnValue
	KindVarargs
	KindArray
	KindType
	KindField
	KindMember
	KindConstant
	KindProperty
	KindDoc
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindRepository:        "repository",
	KindNamespace:         "namespace",
	KindClass:             "class",
	KindInterface:         "interface",
	KindRecord:            "record",
	KindBitfield:          "bitfield",
	KindEnumeration:       "enumeration",
	KindCallback:          "callback",
	KindAlias:             "alias",
	KindUnion:             "union",
	KindBoxed:             "glib:boxed",
	KindMethod:            "method",
	KindVirtualMethod:     "virtual-method",
	KindFunction:          "function",
	KindConstructor:       "constructor",
	KindSignal:            "glib:signal",
	KindParameters:        "parameters",
	KindParameter:         "parameter",
	KindInstanceParameter: "instance-parameter",
	KindReturnValue:       "return-value",
	KindVarargs:           "varargs",
	KindArray:             "array",
	KindType:              "type",
	KindField:             "field",
	KindMember:            "member",
	KindConstant:          "constant",
	KindProperty:          "property",
	KindDoc:               "doc",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind returns the kind for an element name, or KindUnknown.
func ParseKind(name string) Kind {
	return kindByName[name]
}

// IsRegistered reports whether k is a registered type variant.
func (k Kind) IsRegistered() bool {
	switch k {
	case KindClass, KindInterface, KindRecord, KindBitfield, KindEnumeration,
		KindCallback, KindAlias, KindUnion, KindBoxed:
		return true
	}
	return false
}

// IsCallable reports whether k carries a return value and parameters.
func (k Kind) IsCallable() bool {
	switch k {
	case KindMethod, KindVirtualMethod, KindFunction, KindConstructor, KindSignal, KindCallback:
		return true
	}
	return false
}

// IsObject reports whether values of a registered kind are reference-counted instances.
func (k Kind) IsObject() bool {
	return k == KindClass || k == KindInterface
}
