package interop

import (
	"context"
	"math"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/plan"
	"github.com/wippyai/gibind/proxy"
)

// Binding executes one Call Plan against a foreign address space.
//
// Arguments are the host values of the plan's input parameters (ParamPlan.Input)
// in declaration order, the instance first. Results are the return value,
// when not void, followed by every out parameter that is not an array
// length.
//
// Host values: bool for booleans, string for strings, *proxy.Proxy or
// gibind.Address for objects and pointers, Go integers and floats for
// scalars, slices for arrays. Arrays of unknown size come back as an
// unbounded gibind.Address that must not be indexed without a bound
// obtained elsewhere.
type Binding struct {
	Plan        *plan.Plan
	Invoker     gibind.Invoker
	Memory      gibind.Memory
	Allocator   gibind.Allocator
	Registry    *proxy.Registry
	PointerSize uint32
}

func (b *Binding) pointerSize() uint32 {
	if b.PointerSize == 4 {
		return 4
	}
	return 8
}

func (b *Binding) registry() *proxy.Registry {
	if b.Registry != nil {
		return b.Registry
	}
	return proxy.Default()
}

// call is the state of one execution.
type call struct {
	b       *Binding
	arena   *Arena
	flat    []uint64
	slots   []uint32
	values  []any
	counts  []int
	result  any
	raw     uint64
	errSlot uint32
	ptr     uint32
}

// Call runs the plan's steps in order. A non-null error slot returns a
// *GError and skips all demarshaling. A fault of the invocation primitive
// panics with a defect.
func (b *Binding) Call(ctx context.Context, args ...any) ([]any, error) {
	pl := b.Plan
	c := &call{
		b:      b,
		arena:  NewArena(b.Allocator),
		flat:   make([]uint64, len(pl.Descriptor.Params)),
		slots:  make([]uint32, len(pl.Params)),
		values: make([]any, len(pl.Params)),
		counts: make([]int, len(pl.Params)),
		ptr:    b.pointerSize(),
	}
	defer c.arena.Release()

	if err := c.bind(args); err != nil {
		return nil, err
	}
	for _, s := range pl.Steps {
		if err := c.run(ctx, s); err != nil {
			return nil, err
		}
	}
	return c.results(), nil
}

func (c *call) bind(args []any) error {
	params := c.b.Plan.Params
	k := 0
	for i := range params {
		if !params[i].Input() {
			continue
		}
		if k >= len(args) {
			break
		}
		c.values[i] = args[k]
		k++
	}
	want := 0
	for i := range params {
		if params[i].Input() {
			want++
		}
	}
	if len(args) != want {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Path(c.b.Plan.Symbol).
			Detail("want %d arguments, got %d", want, len(args)).
			Build()
	}

	for i := range params {
		pp := &params[i]
		if !pp.IsLength() || pp.Direction == gir.DirectionOut {
			continue
		}
		if pp.Derived {
			n := 0
			if v := reflect.ValueOf(c.values[pp.LengthOf]); v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
				n = v.Len()
			}
			c.values[i] = n
			c.counts[i] = n
			continue
		}
		n, err := toCount(c.values[i])
		if err != nil {
			return err
		}
		c.counts[i] = n
	}
	return nil
}

func (c *call) run(ctx context.Context, s plan.Step) error {
	pl := c.b.Plan
	switch s.Kind {
	case plan.StepAllocOut:
		return c.allocOut(s.Param)
	case plan.StepMarshal:
		return c.marshalParam(s.Param)
	case plan.StepAllocError:
		slot, err := c.arena.Alloc(c.b.Memory, c.ptr, c.ptr)
		if err != nil {
			return err
		}
		c.errSlot = slot
		c.flat[len(c.flat)-1] = uint64(slot)
	case plan.StepInvoke:
		raw, err := c.b.Invoker.Invoke(ctx, pl.Symbol, pl.Descriptor, c.flat)
		if err != nil {
			panic(errors.Invocation(pl.Symbol, err))
		}
		c.raw = raw
	case plan.StepCheckError:
		return c.checkError()
	case plan.StepReadOut:
		return c.readOut(s.Param)
	case plan.StepMaterializeArray:
		return c.materialize(s.Param)
	case plan.StepReturn:
		if s.Param == plan.ReturnSlot && pl.Return.Class != plan.ClassArray {
			v, err := c.decodeReturn()
			if err != nil {
				return err
			}
			c.result = v
		}
	}
	return nil
}

func (c *call) results() []any {
	pl := c.b.Plan
	var out []any
	if !pl.Return.Void {
		out = append(out, c.result)
	}
	for i := range pl.Params {
		if pl.Params[i].IsOut() && !pl.Params[i].IsLength() {
			out = append(out, c.values[i])
		}
	}
	return out
}

func (c *call) allocOut(i int) error {
	pp := &c.b.Plan.Params[i]
	size, align := pp.Layout.Size, pp.Layout.Align
	if pp.Class == plan.ClassOutArray {
		size, align = c.ptr, c.ptr
		if pp.CallerAllocates {
			var err error
			if size, align, err = c.callerBuffer(i); err != nil {
				return err
			}
		}
	}
	if size == 0 {
		size, align = c.ptr, c.ptr
	}
	slot, err := c.arena.Alloc(c.b.Memory, size, align)
	if err != nil {
		return err
	}
	c.slots[i] = slot
	c.flat[i] = uint64(slot)
	return nil
}

// callerBuffer sizes the buffer of a caller-allocated out array. The bound
// must be known before the call: a fixed size or an input length argument.
func (c *call) callerBuffer(i int) (size, align uint32, err error) {
	pp := &c.b.Plan.Params[i]
	es := c.elementSize(pp.Element)
	align = max(pp.Element.Align, 1)

	n := -1
	if pp.Sizing != nil {
		switch pp.Sizing.Policy {
		case plan.SizeFixed:
			n = pp.Sizing.Fixed
		case plan.SizeParameter:
			if j := c.lengthParam(i); j >= 0 && !pp.Sizing.LengthIsOut {
				n = c.counts[j]
			}
		}
	}
	if n < 0 {
		return 0, 0, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Path(c.b.Plan.Symbol, pp.Name).
			Detail("caller-allocated array %s has no bound before the call", pp.Name).
			Build()
	}
	total := uint64(n) * uint64(es)
	if total > math.MaxUint32 {
		return 0, 0, errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Path(c.b.Plan.Symbol, pp.Name).
			Value(total).
			Detail("caller-allocated array %s needs %d bytes", pp.Name, total).
			Build()
	}
	return uint32(total), align, nil
}

// lengthParam returns the index of the parameter holding the length of
// parameter i, or -1.
func (c *call) lengthParam(i int) int {
	for j := range c.b.Plan.Params {
		if c.b.Plan.Params[j].LengthOf == i {
			return j
		}
	}
	return -1
}

// elementSize is the stride of an array element in native memory.
func (c *call) elementSize(l *plan.Layout) uint32 {
	if l.Address {
		return c.ptr
	}
	return l.Size
}

func (c *call) marshalParam(i int) error {
	pp := &c.b.Plan.Params[i]
	v := c.values[i]
	if pp.Direction == gir.DirectionInOut {
		if pp.Class == plan.ClassOutArray {
			addr, err := c.marshalArray(pp, v)
			if err != nil {
				return err
			}
			return gibind.WriteAddress(c.b.Memory, c.slots[i], c.ptr, gibind.Address(addr))
		}
		return c.store(c.slots[i], pointee(pp), v)
	}

	var err error
	switch pp.Class {
	case plan.ClassArray:
		c.flat[i], err = c.marshalArray(pp, v)
	case plan.ClassString:
		c.flat[i], err = c.marshalString(v, pp.Nullable, pp.Ownership.HandOver)
	case plan.ClassInstance:
		if isNil(v) {
			return errors.NilPointer(errors.PhaseEncode, []string{c.b.Plan.Symbol, pp.Name}, "instance")
		}
		c.flat[i], err = c.marshalRef(v, pp.Ownership.HandOver)
	default:
		if data, ok := v.([]byte); ok && pp.Layout.Aggregate {
			c.flat[i], err = c.copyIn(data, pp.Layout.Align, pp.Ownership.HandOver)
			break
		}
		if pp.Layout.Address {
			c.flat[i], err = c.marshalRef(v, pp.Ownership.HandOver)
			break
		}
		c.flat[i], err = encodeScalar(v, pp.Layout.Flat)
	}
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "parameter "+pp.Name)
	}
	return nil
}

// marshalRef passes an object or pointer by address. A handed over wrapper
// no longer owns its allocation.
func (c *call) marshalRef(v any, handOver bool) (uint64, error) {
	if p, ok := v.(*proxy.Proxy); ok && p != nil && handOver {
		p.Disown()
	}
	return encodeScalar(v, c.addrType())
}

func (c *call) marshalString(v any, nullable bool, handOver bool) (uint64, error) {
	switch s := v.(type) {
	case nil:
		if !nullable {
			return 0, errors.NilPointer(errors.PhaseEncode, nil, "string")
		}
		return 0, nil
	case string:
		return c.copyIn(append([]byte(s), 0), 1, handOver)
	case *string:
		if s == nil {
			return c.marshalString(nil, nullable, handOver)
		}
		return c.copyIn(append([]byte(*s), 0), 1, handOver)
	}
	return 0, errors.TypeMismatch(errors.PhaseEncode, nil, "string", v)
}

// alloc reserves a zeroed buffer. Handed over buffers belong to the callee
// and are not released with the call.
func (c *call) alloc(size, align uint32, handOver bool) (uint32, error) {
	if !handOver {
		return c.arena.Alloc(c.b.Memory, size, align)
	}
	if c.b.Allocator == nil {
		return 0, errors.NilPointer(errors.PhaseRuntime, nil, "allocator")
	}
	if size == 0 {
		size = 1
	}
	ptr, err := c.b.Allocator.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	if err := c.b.Memory.Write(ptr, make([]byte, size)); err != nil {
		return 0, err
	}
	return ptr, nil
}

func (c *call) copyIn(data []byte, align uint32, handOver bool) (uint64, error) {
	ptr, err := c.alloc(uint32(len(data)), align, handOver)
	if err != nil {
		return 0, err
	}
	if err := c.b.Memory.Write(ptr, data); err != nil {
		return 0, err
	}
	return uint64(ptr), nil
}

func (c *call) marshalArray(pp *plan.ParamPlan, v any) (uint64, error) {
	if isNil(v) {
		return 0, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, errors.TypeMismatch(errors.PhaseEncode, []string{pp.Name}, pp.TypeName, v)
	}
	es := c.elementSize(pp.Element)
	n := rv.Len()
	total := n
	if pp.Sizing.Policy == plan.SizeZeroTerminated {
		total++
	}
	if pp.Sizing.Policy == plan.SizeFixed && pp.Sizing.Fixed > total {
		total = pp.Sizing.Fixed
	}
	base, err := c.alloc(uint32(total)*es, max(pp.Element.Align, 1), pp.Ownership.HandOver)
	if err != nil {
		return 0, err
	}
	if data, ok := v.([]byte); ok && es == 1 {
		return uint64(base), c.b.Memory.Write(base, data)
	}

	elem := elementSpec(pp.Element, pp.ElementClass, pp.ElementLowering, pp.TypeName)
	elem.handOver = pp.Ownership.HandOver
	for k := 0; k < n; k++ {
		if err := c.store(base+uint32(k)*es, elem, rv.Index(k).Interface()); err != nil {
			return 0, err
		}
	}
	return uint64(base), nil
}

// valueSpec describes how one value is laid out and decoded.
type valueSpec struct {
	typeName string
	layout   plan.Layout
	class    plan.Class
	lowering plan.Lowering
	nullable bool
	owned    bool // decoded value belongs to the host
	handOver bool // stored value goes to the callee
}

// pointee describes the slot an out parameter points to.
func pointee(pp *plan.ParamPlan) valueSpec {
	spec := valueSpec{
		typeName: pp.TypeName,
		layout:   pp.Layout,
		lowering: pp.Lowering,
		nullable: pp.Nullable,
		owned:    pp.Ownership.Track,
		handOver: pp.Ownership.HandOver,
		class:    plan.ClassScalar,
	}
	switch {
	case pp.TypeName == "utf8" || pp.TypeName == "filename":
		spec.class = plan.ClassString
	case pp.TypeName == "gboolean":
		spec.class = plan.ClassBoolean
	case pp.Lowering != plan.LowerNone:
		spec.class = plan.ClassRegistered
	}
	return spec
}

func elementSpec(l *plan.Layout, class plan.Class, lowering plan.Lowering, typeName string) valueSpec {
	name := typeName
	if len(name) > 2 && name[:2] == "[]" {
		name = name[2:]
	}
	return valueSpec{typeName: name, layout: *l, class: class, lowering: lowering}
}

// store writes a host value into a slot.
func (c *call) store(off uint32, spec valueSpec, v any) error {
	switch {
	case spec.class == plan.ClassString:
		addr, err := c.marshalString(v, true, spec.handOver)
		if err != nil {
			return err
		}
		return gibind.WriteAddress(c.b.Memory, off, c.ptr, gibind.Address(addr))
	case spec.layout.Aggregate:
		data, ok := v.([]byte)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, nil, "[]byte", v)
		}
		return c.b.Memory.Write(off, data)
	case spec.layout.Address:
		raw, err := c.marshalRef(v, spec.handOver)
		if err != nil {
			return err
		}
		return gibind.WriteAddress(c.b.Memory, off, c.ptr, gibind.Address(raw))
	}
	raw, err := encodeScalar(v, spec.layout.Flat)
	if err != nil {
		return err
	}
	return writeRaw(c.b.Memory, off, spec.layout.Size, raw)
}

// load reads and decodes the value stored in a slot.
func (c *call) load(off uint32, spec valueSpec) (any, error) {
	if spec.layout.Aggregate {
		data, err := c.b.Memory.Read(off, spec.layout.Size)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}
	var raw uint64
	var err error
	if spec.layout.Address || spec.class == plan.ClassString {
		var addr gibind.Address
		addr, err = gibind.ReadAddress(c.b.Memory, off, c.ptr)
		raw = uint64(addr)
	} else {
		raw, err = readRaw(c.b.Memory, off, spec.layout.Size)
	}
	if err != nil {
		return nil, err
	}
	return c.decode(spec, raw)
}

// decode converts a flat value to its host representation.
func (c *call) decode(spec valueSpec, raw uint64) (any, error) {
	if spec.layout.Address || spec.class == plan.ClassString {
		if c.ptr == 4 {
			raw = uint64(uint32(raw))
		}
	}
	addr := gibind.Address(raw)
	switch spec.class {
	case plan.ClassString:
		if addr == gibind.Null && spec.nullable {
			return nil, nil
		}
		s, err := ReadCString(c.b.Memory, addr)
		if err != nil {
			return nil, err
		}
		if spec.owned {
			c.release(uint32(addr), uint32(len(s)+1), 1)
		}
		return s, nil
	case plan.ClassBoolean:
		return uint32(raw) != 0, nil
	case plan.ClassRegistered, plan.ClassInstance:
		switch spec.lowering {
		case plan.LowerObject, plan.LowerBoxed:
			if addr == gibind.Null {
				return nil, nil
			}
			return c.b.registry().Acquire(addr, spec.owned), nil
		case plan.LowerValue:
			return int32(raw), nil
		}
	}
	if spec.layout.Address {
		return addr, nil
	}
	return decodeScalar(spec.typeName, spec.layout.Flat, spec.layout.Size, raw), nil
}

// release gives a callee-allocated buffer back after its contents were
// copied.
func (c *call) release(ptr, size, align uint32) {
	if c.b.Allocator != nil && ptr != 0 {
		c.b.Allocator.Free(ptr, size, align)
	}
}

func (c *call) checkError() error {
	addr, err := gibind.ReadAddress(c.b.Memory, c.errSlot, c.ptr)
	if err != nil {
		return err
	}
	if addr == gibind.Null {
		return nil
	}
	gerr, err := ReadGError(c.b.Memory, addr, c.ptr)
	if err != nil {
		return err
	}
	Logger().Debug("native error",
		zap.String("symbol", c.b.Plan.Symbol),
		zap.Uint32("domain", gerr.Domain),
		zap.Int32("code", gerr.Code),
	)
	return gerr
}

func (c *call) readOut(i int) error {
	pp := &c.b.Plan.Params[i]
	v, err := c.load(c.slots[i], pointee(pp))
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "out parameter "+pp.Name)
	}
	c.values[i] = v
	if pp.IsLength() {
		n, err := toCount(v)
		if err != nil {
			return err
		}
		c.counts[i] = n
	}
	return nil
}

func (c *call) materialize(i int) error {
	pl := c.b.Plan
	var (
		base      gibind.Address
		sizing    *plan.Sizing
		spec      valueSpec
		own       plan.Ownership
		nullable  bool
		borrowed  bool
		lengthFor = i
	)
	if i == plan.ReturnSlot {
		r := &pl.Return
		base = gibind.Address(c.raw)
		if c.ptr == 4 {
			base = gibind.Address(uint32(c.raw))
		}
		sizing, own, nullable = r.Sizing, r.Ownership, r.Nullable
		spec = elementSpec(r.Element, r.ElementClass, r.ElementLowering, r.TypeName)
		lengthFor = plan.LengthOfReturn
	} else {
		pp := &pl.Params[i]
		sizing, own, nullable = pp.Sizing, pp.Ownership, pp.Nullable
		spec = elementSpec(pp.Element, pp.ElementClass, pp.ElementLowering, pp.TypeName)
		if pp.CallerAllocates {
			// The buffer lives in the arena.
			base, borrowed = gibind.Address(c.slots[i]), true
		} else {
			addr, err := gibind.ReadAddress(c.b.Memory, c.slots[i], c.ptr)
			if err != nil {
				return err
			}
			base = addr
		}
	}
	spec.owned = own.OwnsElements()

	v, err := c.readArray(base, sizing, spec, lengthFor, nullable, own.Track && !borrowed)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "array")
	}
	if i == plan.ReturnSlot {
		c.result = v
	} else {
		c.values[i] = v
	}
	return nil
}

// readArray copies a native array into a Go slice. freeContainer gives the
// native buffer back afterwards.
func (c *call) readArray(base gibind.Address, sizing *plan.Sizing, spec valueSpec, lengthFor int, nullable, freeContainer bool) (any, error) {
	if sizing == nil || !sizing.Counted() && sizing.Policy != plan.SizeZeroTerminated {
		return base, nil
	}
	if base == gibind.Null {
		if nullable {
			return nil, nil
		}
		return reflect.MakeSlice(reflect.SliceOf(hostType(spec)), 0, 0).Interface(), nil
	}
	start, err := offset(base)
	if err != nil {
		return nil, err
	}
	es := c.elementSize(&spec.layout)
	if spec.class == plan.ClassString {
		es = c.ptr
	}

	n := 0
	switch sizing.Policy {
	case plan.SizeFixed:
		n = sizing.Fixed
	case plan.SizeParameter:
		if j := c.lengthParam(lengthFor); j >= 0 {
			n = c.counts[j]
		}
	case plan.SizeZeroTerminated:
		if es > 8 {
			return nil, errors.Unsupported(errors.PhaseDecode, "zero-terminated array of aggregates")
		}
		for ; ; n++ {
			raw, err := readRaw(c.b.Memory, start+uint32(n)*es, es)
			if err != nil {
				return nil, err
			}
			if raw == 0 {
				break
			}
		}
	default:
		return base, nil
	}

	out := reflect.MakeSlice(reflect.SliceOf(hostType(spec)), n, n)
	for k := 0; k < n; k++ {
		v, err := c.load(start+uint32(k)*es, spec)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out.Index(k).Set(reflect.ValueOf(v))
		}
	}
	if freeContainer {
		size := uint32(n) * es
		if sizing.Policy == plan.SizeZeroTerminated {
			size += es
		}
		c.release(start, size, max(spec.layout.Align, 1))
	}
	return out.Interface(), nil
}

func (c *call) decodeReturn() (any, error) {
	r := &c.b.Plan.Return
	class := r.Class
	if class == plan.ClassInstance || class == plan.ClassPointerPointer || class == plan.ClassPrimitivePointer {
		class = plan.ClassScalar
	}
	return c.decode(valueSpec{
		typeName: r.TypeName,
		layout:   r.Layout,
		class:    class,
		lowering: r.Lowering,
		nullable: r.Nullable,
		owned:    r.Ownership.Track,
	}, c.raw)
}

func (c *call) addrType() api.ValueType {
	if c.ptr == 4 {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

// hostType returns the Go element type an array of spec materializes to.
func hostType(spec valueSpec) reflect.Type {
	switch spec.class {
	case plan.ClassString:
		return reflect.TypeFor[string]()
	case plan.ClassBoolean:
		return reflect.TypeFor[bool]()
	case plan.ClassRegistered:
		switch spec.lowering {
		case plan.LowerObject, plan.LowerBoxed:
			return reflect.TypeFor[*proxy.Proxy]()
		case plan.LowerValue:
			return reflect.TypeFor[int32]()
		}
	}
	if spec.layout.Aggregate {
		return reflect.TypeFor[[]byte]()
	}
	if spec.layout.Address {
		return reflect.TypeFor[gibind.Address]()
	}
	return reflect.TypeOf(decodeScalar(spec.typeName, spec.layout.Flat, spec.layout.Size, 0))
}

func toCount(v any) (int, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, errors.InvalidData(errors.PhaseDecode, nil, "negative array length")
		}
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int(rv.Uint()), nil
	case reflect.Invalid:
		return 0, nil
	}
	return 0, errors.TypeMismatch(errors.PhaseDecode, nil, "integer length", v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
