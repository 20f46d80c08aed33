package plan

import (
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/internal/naming"
	"github.com/wippyai/gibind/plan/internal/layout"
)

// Planner derives Call Plans from a merged library.
type Planner struct {
	lib         *gir.Library
	layouts     *layout.Calculator
	filter      *Filter
	pointerSize uint32
}

// Option configures a Planner.
type Option func(*Planner)

// WithPointerSize sets the native address width in bytes (4 or 8).
func WithPointerSize(size uint32) Option {
	return func(p *Planner) {
		p.pointerSize = size
	}
}

// WithFilter replaces the default pre-generation filter.
func WithFilter(f *Filter) Option {
	return func(p *Planner) {
		p.filter = f
	}
}

// NewPlanner creates a planner over lib.
func NewPlanner(lib *gir.Library, opts ...Option) *Planner {
	p := &Planner{lib: lib, pointerSize: 8}
	for _, opt := range opts {
		opt(p)
	}
	p.layouts = layout.NewCalculator(lib, p.pointerSize)
	if p.filter == nil {
		p.filter = NewFilter(lib)
	}
	return p
}

// Plan derives the Call Plan of one callable. A returned error that
// satisfies errors.IsDefect is a malformed declaration; other errors mean a
// referenced type could not be laid out.
func (p *Planner) Plan(c gir.Callable) (*Plan, error) {
	if c.IsVariadic() {
		return nil, errors.Defect(errors.New(errors.PhasePlan, errors.KindUnsupported).
			Path(c.Node().Path()...).
			Detail("variadic callable %s escaped the filter", c.Name()).
			Build())
	}

	pl := &Plan{
		Name:       c.Name(),
		GoName:     naming.GoName(c.Name(), true),
		Symbol:     c.CIdentifier(),
		Namespace:  c.Node().NamespaceName(),
		Kind:       c.Kind().String(),
		Throws:     c.Throws(),
		Deprecated: c.Deprecated(),
		Platforms:  c.Node().Platforms(),
	}
	if owner := c.Node().Parent(); owner != nil && owner.Kind().IsRegistered() {
		pl.Owner = owner.Name()
	}

	params := c.Parameters()
	offset := 0
	if len(params) > 0 && params[0].IsInstance() {
		offset = 1
	}
	pl.Params = make([]ParamPlan, 0, len(params))
	for _, prm := range params {
		pp, err := p.param(prm)
		if err != nil {
			return nil, err
		}
		pl.Params = append(pl.Params, pp)
	}

	ret, err := p.returnValue(c)
	if err != nil {
		return nil, err
	}
	pl.Return = ret

	for i := range pl.Params {
		s := pl.Params[i].Sizing
		if s == nil || s.Policy != SizeParameter {
			continue
		}
		j := s.LengthIndex + offset
		pl.Params[j].LengthOf = i
		if !pl.Params[i].IsOut() && !pl.Params[j].IsOut() {
			pl.Params[j].Derived = true
		}
	}
	if s := pl.Return.Sizing; s != nil && s.Policy == SizeParameter {
		pl.Params[s.LengthIndex+offset].LengthOf = LengthOfReturn
	}

	pl.Descriptor = p.descriptor(pl)
	pl.Steps = steps(pl)
	return pl, nil
}

func (p *Planner) param(prm gir.Parameter) (ParamPlan, error) {
	pp := ParamPlan{
		Name:            prm.Name(),
		GoName:          naming.GoName(prm.Name(), false),
		Index:           prm.Position(),
		LengthOf:        NoLength,
		Class:           Classify(prm, p.lib),
		Direction:       prm.Direction(),
		Nullable:        prm.Nullable(),
		CallerAllocates: prm.CallerAllocates(),
		UserData:        prm.IsUserData(),
		DestroyNotify:   prm.IsDestroyNotify(),
	}

	switch t := prm.AnyType().(type) {
	case gir.Array:
		arr, err := p.array(t)
		if err != nil {
			return ParamPlan{}, err
		}
		pp.Sizing, pp.Element, pp.TypeName = arr.sizing, arr.element, arr.typeName
		pp.ElementClass, pp.ElementLowering = arr.class, arr.lowering
		pp.Layout = p.layouts.Address()
	case gir.Type:
		pp.TypeName = t.Name()
		pp.Lowering = LowerType(t, p.lib)
		info, err := p.valueLayout(t, prm.IsOut(), prm.CallerAllocates())
		if err != nil {
			return ParamPlan{}, err
		}
		pp.Layout = info
	default:
		return ParamPlan{}, errors.Defect(errors.InvalidData(errors.PhasePlan, prm.Node().Path(), "parameter without type"))
	}

	pp.Ownership = ownership(prm.Transfer(), pp.Direction, false, pp.Class, pp.Lowering)
	return pp, nil
}

func (p *Planner) returnValue(c gir.Callable) (ReturnPlan, error) {
	rv, ok := c.ReturnValue()
	if !ok || rv.IsVoid() {
		return ReturnPlan{Void: true, TypeName: "none", Layout: Layout{Name: "none", Align: 1}}, nil
	}
	r := ReturnPlan{
		Class:    ClassifyValue(rv.AnyType(), p.lib),
		Nullable: rv.Nullable(),
	}
	switch t := rv.AnyType().(type) {
	case gir.Array:
		arr, err := p.array(t)
		if err != nil {
			return ReturnPlan{}, err
		}
		r.Sizing, r.Element, r.TypeName = arr.sizing, arr.element, arr.typeName
		r.ElementClass, r.ElementLowering = arr.class, arr.lowering
		r.Layout = p.layouts.Address()
	case gir.Type:
		r.TypeName = t.Name()
		r.Lowering = LowerType(t, p.lib)
		info, err := p.layouts.Calculate(t)
		if err != nil {
			return ReturnPlan{}, err
		}
		r.Layout = info
	default:
		return ReturnPlan{}, errors.Defect(errors.InvalidData(errors.PhasePlan, rv.Node().Path(), "return value without type"))
	}
	r.Ownership = ownership(rv.Transfer(), gir.DirectionOut, true, r.Class, r.Lowering)
	return r, nil
}

type arrayPlan struct {
	sizing   *Sizing
	element  *Layout
	typeName string
	class    Class
	lowering Lowering
}

func (p *Planner) array(a gir.Array) (arrayPlan, error) {
	s, err := size(a, p.lib)
	if err != nil {
		return arrayPlan{}, err
	}
	info, err := p.layouts.Calculate(a.ElementType())
	if err != nil {
		return arrayPlan{}, err
	}
	arr := arrayPlan{
		sizing:   s,
		element:  &info,
		class:    ClassifyValue(a.ElementType(), p.lib),
		typeName: "[]" + info.Name,
	}
	if t, ok := a.ElementType().(gir.Type); ok {
		arr.typeName = "[]" + t.Name()
		arr.lowering = LowerType(t, p.lib)
	}
	return arr, nil
}

// valueLayout returns the layout of the value a parameter carries. For out
// parameters that is the pointee: the slot the callee writes.
func (p *Planner) valueLayout(t gir.Type, out, callerAllocates bool) (Layout, error) {
	if !out {
		return p.layouts.Calculate(t)
	}
	switch {
	case t.IsString(), t.IsOpaquePointer(), t.PointerDepth() >= 2:
		info := p.layouts.Address()
		info.Name = t.Name()
		return info, nil
	}
	if info, ok := p.layouts.Scalar(t.Name()); ok {
		return info, nil
	}
	rt, ok := p.lib.Resolve(t)
	if !ok {
		return Layout{}, errors.NotFound(errors.PhasePlan, "type", t.Name())
	}
	lowering := lowerRegistered(rt, p.lib, 0)
	if callerAllocates || lowering == LowerValue || rt.Kind() == gir.KindAlias {
		return p.layouts.Registered(rt)
	}
	info := p.layouts.Address()
	info.Name = rt.Name()
	return info, nil
}

func (p *Planner) descriptor(pl *Plan) gibind.Descriptor {
	addr := p.layouts.Address().Flat
	d := gibind.Descriptor{Params: make([]api.ValueType, 0, len(pl.Params)+1)}
	for i := range pl.Params {
		pp := &pl.Params[i]
		switch {
		case pp.IsOut(), pp.Layout.Address, pp.Layout.Aggregate:
			d.Params = append(d.Params, addr)
		case pp.Class == ClassArray, pp.Class == ClassInstance, pp.Class == ClassString:
			d.Params = append(d.Params, addr)
		default:
			d.Params = append(d.Params, pp.Layout.Flat)
		}
	}
	if pl.Throws {
		d.Params = append(d.Params, addr)
	}
	if !pl.Return.Void {
		flat := pl.Return.Layout.Flat
		if pl.Return.Layout.Address || pl.Return.Layout.Aggregate {
			flat = addr
		}
		d.Result = &flat
	}
	return d
}

// steps orders the execution of a plan. The error check precedes every
// demarshaling step, and out lengths are read before the arrays they size.
func steps(pl *Plan) []Step {
	var out []Step
	for i := range pl.Params {
		pp := &pl.Params[i]
		if pp.IsOut() {
			out = append(out, Step{Kind: StepAllocOut, Param: i})
		}
		if pp.Direction != gir.DirectionOut {
			out = append(out, Step{Kind: StepMarshal, Param: i})
		}
	}
	if pl.Throws {
		out = append(out, Step{Kind: StepAllocError, Param: NoParam})
	}
	out = append(out, Step{Kind: StepInvoke, Param: NoParam})
	if pl.Throws {
		out = append(out, Step{Kind: StepCheckError, Param: NoParam})
	}

	for i := range pl.Params {
		pp := &pl.Params[i]
		if pp.IsOut() && pp.IsLength() && pp.Class != ClassOutArray {
			out = append(out, Step{Kind: StepReadOut, Param: i})
		}
	}
	for i := range pl.Params {
		pp := &pl.Params[i]
		if pp.IsOut() && !pp.IsLength() && pp.Class != ClassOutArray {
			out = append(out, Step{Kind: StepReadOut, Param: i})
		}
	}
	for i := range pl.Params {
		if pl.Params[i].Class == ClassOutArray {
			out = append(out, Step{Kind: StepMaterializeArray, Param: i})
		}
	}
	if !pl.Return.Void && pl.Return.Class == ClassArray {
		out = append(out, Step{Kind: StepMaterializeArray, Param: ReturnSlot})
	}
	if pl.Return.Void {
		out = append(out, Step{Kind: StepReturn, Param: NoParam})
	} else {
		out = append(out, Step{Kind: StepReturn, Param: ReturnSlot})
	}
	return out
}

// PlanNamespace derives the units of a namespace: one per registered type
// that survives the filter and one for namespace-level functions and
// constants. A defect aborts only the unit it occurs in.
func (p *Planner) PlanNamespace(ns *gir.Namespace) (units []*Unit, failures []Failure, excluded []Exclusion) {
	for _, rt := range ns.Types() {
		if reason, ok := p.filter.Type(rt); !ok {
			excluded = append(excluded, p.exclude(ns.Name(), rt.Name(), "", reason))
			continue
		}
		unit := &Unit{
			Namespace: ns.Name(),
			Name:      rt.Name(),
			Kind:      rt.Kind().String(),
			Platforms: rt.Platforms(),
		}
		for _, m := range rt.Members() {
			unit.Members = append(unit.Members, Member{Name: m.Name(), Value: m.Attr("value")})
		}
		switch rt.Kind() {
		case gir.KindRecord, gir.KindUnion, gir.KindClass:
			if !rt.Opaque() && len(rt.Fields()) > 0 {
				info, err := p.layouts.Registered(rt)
				if err != nil {
					failures = append(failures, p.fail(ns.Name(), rt.Name(), "", err))
					if errors.IsDefect(err) {
						continue
					}
				} else {
					unit.Layout = &info
				}
			}
		}

		callables := rt.Callables()
		if cb, ok := rt.Callable(); ok {
			callables = append([]gir.Callable{cb}, callables...)
		}
		var ok bool
		unit.Plans, failures, excluded, ok = p.planAll(ns.Name(), rt.Name(), callables, failures, excluded)
		if ok {
			units = append(units, unit)
		}
	}

	unit := &Unit{
		Namespace: ns.Name(),
		Name:      FunctionsUnit,
		Kind:      FunctionsUnit,
		Platforms: ns.Platforms(),
	}
	for _, c := range ns.Constants() {
		typeName := ""
		if t, ok := gir.AnyTypeOf(c).(gir.Type); ok {
			typeName = t.Name()
		}
		unit.Constants = append(unit.Constants, Constant{Name: c.Name(), Type: typeName, Value: c.Attr("value")})
	}
	var ok bool
	unit.Plans, failures, excluded, ok = p.planAll(ns.Name(), FunctionsUnit, ns.Functions(), failures, excluded)
	if ok && (len(unit.Plans) > 0 || len(unit.Constants) > 0) {
		units = append(units, unit)
	}
	return units, failures, excluded
}

func (p *Planner) planAll(ns, unit string, callables []gir.Callable, failures []Failure, excluded []Exclusion) ([]*Plan, []Failure, []Exclusion, bool) {
	var plans []*Plan
	for _, c := range callables {
		if reason, ok := p.filter.Callable(c); !ok {
			excluded = append(excluded, p.exclude(ns, unit, c.Name(), reason))
			continue
		}
		pl, err := p.Plan(c)
		if err != nil {
			failures = append(failures, p.fail(ns, unit, c.Name(), err))
			if errors.IsDefect(err) {
				return nil, failures, excluded, false
			}
			continue
		}
		plans = append(plans, pl)
	}
	return plans, failures, excluded, true
}

func (p *Planner) exclude(ns, unit, name, reason string) Exclusion {
	Logger().Debug("excluded from generation",
		zap.String("namespace", ns),
		zap.String("unit", unit),
		zap.String("name", name),
		zap.String("reason", reason),
	)
	return Exclusion{Namespace: ns, Unit: unit, Name: name, Reason: reason}
}

func (p *Planner) fail(ns, unit, callable string, err error) Failure {
	Logger().Warn("plan failed",
		zap.String("namespace", ns),
		zap.String("unit", unit),
		zap.String("callable", callable),
		zap.Bool("defect", errors.IsDefect(err)),
		zap.Error(err),
	)
	return Failure{Namespace: ns, Unit: unit, Callable: callable, Err: err}
}
