package layout

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
)

// Info describes how one value is laid out on the native side.
type Info struct {
	FieldOffs map[string]uint32
	Name      string
	Size      uint32
	Align     uint32
	Flat      api.ValueType
	Address   bool
	Aggregate bool
}

// Calculator computes native layouts for declaration types.
type Calculator struct {
	lib         *gir.Library
	cache       map[*gir.Node]Info
	pointerSize uint32
}

// NewCalculator creates a calculator resolving references in lib.
// pointerSize must be 4 or 8.
func NewCalculator(lib *gir.Library, pointerSize uint32) *Calculator {
	if pointerSize != 4 {
		pointerSize = 8
	}
	return &Calculator{
		lib:         lib,
		cache:       make(map[*gir.Node]Info),
		pointerSize: pointerSize,
	}
}

// PointerSize returns the configured address width.
func (c *Calculator) PointerSize() uint32 {
	return c.pointerSize
}

// Address returns the layout of a native pointer.
func (c *Calculator) Address() Info {
	flat := api.ValueTypeI64
	if c.pointerSize == 4 {
		flat = api.ValueTypeI32
	}
	return Info{Name: "pointer", Size: c.pointerSize, Align: c.pointerSize, Flat: flat, Address: true}
}

// Scalar returns the layout of a primitive type name.
func (c *Calculator) Scalar(name string) (Info, bool) {
	size, ok := gir.PrimitiveSize(name)
	if !ok {
		return Info{}, false
	}
	switch name {
	case "gfloat":
		return Info{Name: name, Size: 4, Align: 4, Flat: api.ValueTypeF32}, true
	case "gdouble":
		return Info{Name: name, Size: 8, Align: 8, Flat: api.ValueTypeF64}, true
	}
	if size == 0 {
		info := c.Address()
		info.Name = name
		info.Address = false
		return info, true
	}
	flat := api.ValueTypeI32
	if size == 8 {
		flat = api.ValueTypeI64
	}
	return Info{Name: name, Size: uint32(size), Align: uint32(size), Flat: flat}, true
}

// Calculate returns the layout of a value of type t.
func (c *Calculator) Calculate(t gir.AnyType) (Info, error) {
	switch typ := t.(type) {
	case gir.Type:
		return c.calculateType(typ)
	case gir.Array:
		return c.calculateArray(typ)
	case nil:
		return Info{Name: "none", Align: 1}, nil
	default:
		return Info{}, errors.Unsupported(errors.PhasePlan, "unknown type node")
	}
}

func (c *Calculator) calculateType(t gir.Type) (Info, error) {
	switch {
	case t.IsVoid() && !t.IsPointer():
		return Info{Name: "none", Align: 1}, nil
	case t.IsPointer(), t.IsString(), t.IsOpaquePointer():
		info := c.Address()
		info.Name = t.Name()
		return info, nil
	}
	if info, ok := c.Scalar(t.Name()); ok {
		return info, nil
	}
	rt, ok := c.lib.Resolve(t)
	if !ok {
		return Info{}, errors.NotFound(errors.PhasePlan, "type", t.Name())
	}
	return c.Registered(rt)
}

// Registered returns the by-value layout of a registered type.
func (c *Calculator) Registered(rt gir.RegisteredType) (Info, error) {
	if cached, ok := c.cache[rt.Node()]; ok {
		return cached, nil
	}

	var (
		info Info
		err  error
	)
	switch rt.Kind() {
	case gir.KindEnumeration, gir.KindBitfield:
		info = Info{Size: 4, Align: 4, Flat: api.ValueTypeI32}
	case gir.KindAlias:
		target, ok := rt.Target()
		if !ok {
			return Info{}, errors.InvalidData(errors.PhasePlan, rt.Node().Path(), "alias without target")
		}
		info, err = c.calculateType(target)
	case gir.KindCallback, gir.KindInterface, gir.KindBoxed:
		info = c.Address()
	case gir.KindClass:
		// Instance structs are embedded by value as the first field of
		// subclasses.
		if len(rt.Fields()) == 0 {
			info = c.Address()
			break
		}
		info, err = c.calculateRecord(rt)
	case gir.KindRecord:
		info, err = c.calculateRecord(rt)
	case gir.KindUnion:
		info, err = c.calculateUnion(rt)
	default:
		return Info{}, errors.Unsupported(errors.PhasePlan, "layout of "+rt.Kind().String())
	}
	if err != nil {
		return Info{}, err
	}
	info.Name = rt.Name()
	c.cache[rt.Node()] = info
	return info, nil
}

func (c *Calculator) calculateArray(a gir.Array) (Info, error) {
	owner := a.Node().Parent()
	inline := owner != nil && owner.Kind() == gir.KindField &&
		a.FixedSize() > 0 && !gir.HasPointer(a.CType())
	if !inline {
		info := c.Address()
		info.Name = "array"
		return info, nil
	}
	elem, err := c.Calculate(a.ElementType())
	if err != nil {
		return Info{}, err
	}
	stride := AlignTo(elem.Size, elem.Align)
	return Info{
		Name:      "array",
		Size:      stride * uint32(a.FixedSize()),
		Align:     elem.Align,
		Aggregate: true,
	}, nil
}

func (c *Calculator) calculateRecord(rt gir.RegisteredType) (Info, error) {
	fields := rt.Fields()
	if len(fields) == 0 {
		return Info{Size: 0, Align: 1, Aggregate: true}, nil
	}

	fieldOffs := make(map[string]uint32, len(fields))
	maxAlign := uint32(1)
	offset := uint32(0)

	for _, field := range fields {
		fieldLayout, err := c.fieldLayout(field)
		if err != nil {
			return Info{}, err
		}

		offset = AlignTo(offset, fieldLayout.Align)
		fieldOffs[field.Name()] = offset

		if fieldLayout.Align > maxAlign {
			maxAlign = fieldLayout.Align
		}

		offset += fieldLayout.Size
	}

	return Info{
		Size:      AlignTo(offset, maxAlign),
		Align:     maxAlign,
		FieldOffs: fieldOffs,
		Aggregate: true,
	}, nil
}

func (c *Calculator) calculateUnion(rt gir.RegisteredType) (Info, error) {
	fields := rt.Fields()
	fieldOffs := make(map[string]uint32, len(fields))
	maxAlign := uint32(1)
	maxSize := uint32(0)

	for _, field := range fields {
		fieldLayout, err := c.fieldLayout(field)
		if err != nil {
			return Info{}, err
		}
		fieldOffs[field.Name()] = 0
		if fieldLayout.Align > maxAlign {
			maxAlign = fieldLayout.Align
		}
		if fieldLayout.Size > maxSize {
			maxSize = fieldLayout.Size
		}
	}

	return Info{
		Size:      AlignTo(maxSize, maxAlign),
		Align:     maxAlign,
		FieldOffs: fieldOffs,
		Aggregate: true,
	}, nil
}

func (c *Calculator) fieldLayout(f gir.Field) (Info, error) {
	if f.AnyType() == nil {
		// Inline callback declarations are function pointers.
		if f.Node().Child(gir.KindCallback) != nil {
			return c.Address(), nil
		}
		return Info{}, errors.InvalidData(errors.PhasePlan, f.Node().Path(), "field without type")
	}
	return c.Calculate(f.AnyType())
}

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
