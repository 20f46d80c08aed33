package plan

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/plan/internal/layout"
)

// Layout is the native layout of one value.
type Layout = layout.Info

// Plan is the marshaling recipe for one callable.
type Plan struct {
	Return     ReturnPlan        `cbor:"return"`
	Name       string            `cbor:"name"`
	GoName     string            `cbor:"go_name"`
	Symbol     string            `cbor:"symbol"`
	Namespace  string            `cbor:"namespace"`
	Owner      string            `cbor:"owner,omitempty"`
	Kind       string            `cbor:"kind"`
	Params     []ParamPlan       `cbor:"params"`
	Steps      []Step            `cbor:"steps"`
	Descriptor gibind.Descriptor `cbor:"descriptor"`
	Platforms  gir.Platform      `cbor:"platforms"`
	Throws     bool              `cbor:"throws,omitempty"`
	Deprecated bool              `cbor:"deprecated,omitempty"`
}

// ParamPlan is the marshaling recipe for one parameter.
type ParamPlan struct {
	Element         *Layout       `cbor:"element,omitempty"`
	Sizing          *Sizing       `cbor:"sizing,omitempty"`
	Name            string        `cbor:"name"`
	GoName          string        `cbor:"go_name"`
	TypeName        string        `cbor:"type"`
	Layout          Layout        `cbor:"layout"`
	Ownership       Ownership     `cbor:"ownership"`
	Index           int           `cbor:"index"`
	LengthOf        int           `cbor:"length_of"`
	Class           Class         `cbor:"class"`
	ElementClass    Class         `cbor:"element_class,omitempty"`
	ElementLowering Lowering      `cbor:"element_lowering,omitempty"`
	Lowering        Lowering      `cbor:"lowering,omitempty"`
	Direction       gir.Direction `cbor:"direction,omitempty"`
	Nullable        bool          `cbor:"nullable,omitempty"`
	CallerAllocates bool          `cbor:"caller_allocates,omitempty"`
	UserData        bool          `cbor:"user_data,omitempty"`
	DestroyNotify   bool          `cbor:"destroy_notify,omitempty"`
	Derived         bool          `cbor:"derived,omitempty"`
}

// IsOut reports whether the callee writes the parameter.
func (p *ParamPlan) IsOut() bool {
	return p.Direction != gir.DirectionIn
}

// IsLength reports whether the parameter carries the element count of
// another parameter or of the return value.
func (p *ParamPlan) IsLength() bool {
	return p.LengthOf != NoLength
}

// Input reports whether the caller supplies the parameter. Derived
// parameters, the lengths of in arrays, are computed from the array.
func (p *ParamPlan) Input() bool {
	return p.Direction != gir.DirectionOut && !p.Derived
}

// NoLength marks a parameter that is not an array length.
const NoLength = -2

// LengthOfReturn marks a parameter holding the return array's length.
const LengthOfReturn = -1

// ReturnPlan is the marshaling recipe for the return value.
type ReturnPlan struct {
	Element         *Layout   `cbor:"element,omitempty"`
	Sizing          *Sizing   `cbor:"sizing,omitempty"`
	TypeName        string    `cbor:"type"`
	Layout          Layout    `cbor:"layout"`
	Ownership       Ownership `cbor:"ownership"`
	Class           Class     `cbor:"class"`
	ElementClass    Class     `cbor:"element_class,omitempty"`
	ElementLowering Lowering  `cbor:"element_lowering,omitempty"`
	Lowering        Lowering  `cbor:"lowering,omitempty"`
	Void            bool      `cbor:"void,omitempty"`
	Nullable        bool      `cbor:"nullable,omitempty"`
}

// StepKind is one phase of executing a plan.
type StepKind uint8

const (
	StepAllocOut StepKind = iota + 1
	StepMarshal
	StepAllocError
	StepInvoke
	StepCheckError
	StepReadOut
	StepMaterializeArray
	StepReturn
)

var stepNames = [...]string{
	StepAllocOut:         "alloc-out",
	StepMarshal:          "marshal",
	StepAllocError:       "alloc-error",
	StepInvoke:           "invoke",
	StepCheckError:       "check-error",
	StepReadOut:          "read-out",
	StepMaterializeArray: "materialize-array",
	StepReturn:           "return",
}

func (k StepKind) String() string {
	if int(k) < len(stepNames) && stepNames[k] != "" {
		return stepNames[k]
	}
	return "unknown"
}

// Step is one ordered action of a plan. Param indexes Plan.Params, or is
// ReturnSlot for the return value and NoParam for whole-call steps.
type Step struct {
	Kind  StepKind `cbor:"kind"`
	Param int      `cbor:"param"`
}

const (
	NoParam    = -1
	ReturnSlot = -2
)

func (s Step) String() string {
	switch s.Param {
	case NoParam:
		return s.Kind.String()
	case ReturnSlot:
		return s.Kind.String() + "(return)"
	}
	return fmt.Sprintf("%s(%d)", s.Kind, s.Param)
}

// String renders the plan in a compact signature form.
func (p *Plan) String() string {
	var b strings.Builder
	if p.Owner != "" {
		b.WriteString(p.Owner)
		b.WriteByte('.')
	}
	b.WriteString(p.Name)
	b.WriteByte('(')
	for i, param := range p.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s:%s", param.Direction, param.Name, param.Class)
	}
	b.WriteByte(')')
	if !p.Return.Void {
		fmt.Fprintf(&b, " %s:%s", p.Return.TypeName, p.Return.Class)
	}
	if p.Throws {
		b.WriteString(" throws")
	}
	return b.String()
}

// Signature renders the flat descriptor, e.g. "(i64, i32) -> i32".
func (p *Plan) Signature() string {
	parts := make([]string, len(p.Descriptor.Params))
	for i, t := range p.Descriptor.Params {
		parts[i] = api.ValueTypeName(t)
	}
	result := "void"
	if p.Descriptor.Result != nil {
		result = api.ValueTypeName(*p.Descriptor.Result)
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + result
}

// Unit is one logical generated source unit: a registered type with its
// callables, or the namespace-level functions and constants.
type Unit struct {
	Layout    *Layout      `cbor:"layout,omitempty"`
	Namespace string       `cbor:"namespace"`
	Name      string       `cbor:"name"`
	Kind      string       `cbor:"kind"`
	Plans     []*Plan      `cbor:"plans,omitempty"`
	Constants []Constant   `cbor:"constants,omitempty"`
	Members   []Member     `cbor:"members,omitempty"`
	Platforms gir.Platform `cbor:"platforms"`
}

// FunctionsUnit is the unit name for namespace-level declarations.
const FunctionsUnit = "functions"

// Constant is a namespace-level constant.
type Constant struct {
	Name  string `cbor:"name"`
	Type  string `cbor:"type"`
	Value string `cbor:"value"`
}

// Member is an enumeration or bitfield member.
type Member struct {
	Name  string `cbor:"name"`
	Value string `cbor:"value"`
}

// Failure records a declaration whose plan could not be derived.
type Failure struct {
	Err       error
	Namespace string
	Unit      string
	Callable  string
}

func (f Failure) Error() string {
	name := f.Unit
	if f.Callable != "" {
		name += "." + f.Callable
	}
	return f.Namespace + "." + name + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}
