package plan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
)

func a(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func param(name, typeName, cType string, kv ...string) *gir.Node {
	return gir.NewParameter(name, typeName, cType, a(kv...))
}

func ret(typeName, cType string, kv ...string) *gir.Node {
	return gir.New(gir.KindReturnValue, a(kv...), gir.NewType(typeName, cType))
}

func params(ps ...*gir.Node) *gir.Node {
	return gir.New(gir.KindParameters, nil, ps...)
}

// fixture is a small namespace exercising every classification rule.
func fixture(t *testing.T) (*gir.Library, *gir.Namespace) {
	t.Helper()
	root := gir.New(gir.KindNamespace, a("name", "Demo"),
		gir.New(gir.KindClass, a("name", "Widget", "c:type", "DemoWidget", "glib:get-type", "demo_widget_get_type"),
			gir.New(gir.KindMethod, a("name", "get_children", "c:identifier", "demo_widget_get_children", "throws", "1"),
				gir.New(gir.KindReturnValue, a("transfer-ownership", "container"),
					gir.NewArray(a("length", "1"), gir.NewType("Widget", "DemoWidget*")),
				),
				params(
					gir.New(gir.KindInstanceParameter, a("name", "self"), gir.NewType("Widget", "DemoWidget*")),
					param("flags", "Flags", "DemoFlags"),
					param("n_children", "gsize", "gsize*", "direction", "out"),
				),
			),
			gir.New(gir.KindMethod, a("name", "read_items", "c:identifier", "demo_widget_read_items"),
				ret("gboolean", "gboolean"),
				params(
					gir.New(gir.KindInstanceParameter, a("name", "self"), gir.NewType("Widget", "DemoWidget*")),
					gir.New(gir.KindParameter, a("name", "items", "direction", "out", "transfer-ownership", "full"),
						gir.NewArray(a("length", "1"), gir.NewType("gint32", "gint32")),
					),
					param("n_items", "gint", "gint*", "direction", "out"),
				),
			),
			gir.New(gir.KindMethod, a("name", "set_data", "c:identifier", "demo_widget_set_data"),
				params(
					gir.New(gir.KindInstanceParameter, a("name", "self"), gir.NewType("Widget", "DemoWidget*")),
					param("len", "gsize", "gsize"),
					gir.New(gir.KindParameter, a("name", "data"),
						gir.NewArray(a("length", "0"), gir.NewType("guint8", "guint8")),
					),
					param("name", "utf8", "const gchar*"),
					param("visible", "gboolean", "gboolean"),
					param("value", "gint", "gint*"),
					param("names", "utf8", "gchar***"),
					param("count", "gint", "gint"),
					param("label", "Label", "DemoLabel"),
					param("callback", "Func", "DemoFunc"),
					param("user_data", "gpointer", "gpointer"),
					param("destroy", "DestroyNotify", "GDestroyNotify"),
				),
			),
		),
		gir.New(gir.KindBitfield, a("name", "Flags")),
		gir.New(gir.KindAlias, a("name", "Label"), gir.NewType("gint", "gint")),
		gir.New(gir.KindCallback, a("name", "Func"),
			ret("none", "void"),
			params(param("data", "gpointer", "gpointer")),
		),
		gir.New(gir.KindCallback, a("name", "DestroyNotify", "c:type", "GDestroyNotify"),
			ret("none", "void"),
			params(param("data", "gpointer", "gpointer")),
		),
		gir.New(gir.KindCallback, a("name", "BadFunc"),
			params(param("out", "gint", "gint*", "direction", "out")),
		),
		gir.New(gir.KindRecord, a("name", "Empty", "opaque", "1")),
		gir.New(gir.KindRecord, a("name", "Point"),
			gir.New(gir.KindField, a("name", "x"), gir.NewType("gint", "gint")),
			gir.New(gir.KindField, a("name", "y"), gir.NewType("gint", "gint")),
		),
		gir.New(gir.KindFunction, a("name", "printf", "c:identifier", "demo_printf"),
			params(param("format", "utf8", "const gchar*"), gir.New(gir.KindParameter, a("name", "..."), gir.New(gir.KindVarargs, nil))),
		),
		gir.New(gir.KindFunction, a("name", "use_bad", "c:identifier", "demo_use_bad"),
			params(param("cb", "BadFunc", "DemoBadFunc")),
		),
		gir.New(gir.KindFunction, a("name", "broken", "c:identifier", "demo_broken"),
			gir.New(gir.KindReturnValue, nil, gir.NewArray(a("length", "4"), gir.NewType("gint", "gint"))),
		),
		gir.New(gir.KindConstant, a("name", "MAX", "value", "16"), gir.NewType("gint", "gint")),
	)
	ns, err := gir.BuildNamespace(root)
	require.NoError(t, err)
	return gir.NewLibrary(ns), ns
}

func callable(t *testing.T, ns *gir.Namespace, owner, name string) gir.Callable {
	t.Helper()
	if owner == "" {
		for _, c := range ns.Functions() {
			if c.Name() == name {
				return c
			}
		}
		t.Fatalf("function %s not found", name)
	}
	rt, ok := ns.Lookup(owner)
	require.True(t, ok)
	for _, c := range rt.Callables() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("%s.%s not found", owner, name)
	return gir.Callable{}
}

func TestClassify(t *testing.T) {
	lib, ns := fixture(t)
	c := callable(t, ns, "Widget", "set_data")

	want := map[string]Class{
		"self":      ClassInstance,
		"len":       ClassScalar,
		"data":      ClassArray,
		"name":      ClassString,
		"visible":   ClassBoolean,
		"value":     ClassPrimitivePointer,
		"names":     ClassPointerPointer,
		"count":     ClassScalar,
		"label":     ClassScalar,
		"callback":  ClassRegistered,
		"user_data": ClassScalar,
	}
	for _, p := range c.Parameters() {
		w, ok := want[p.Name()]
		if !ok {
			continue
		}
		assert.Equal(t, w, Classify(p, lib), p.Name())
	}

	read := callable(t, ns, "Widget", "read_items")
	ps := read.Parameters()
	assert.Equal(t, ClassOutArray, Classify(ps[1], lib), "out array wins over plain array")
	assert.Equal(t, ClassOut, Classify(ps[2], lib), "out wins over primitive pointer")

	str, ok := gir.AsParameter(gir.NewParameter("text", "utf8", "gchar*", nil))
	require.True(t, ok)
	assert.Equal(t, ClassString, Classify(str, lib), "utf8 is never a primitive pointer")
}

func TestOwnership(t *testing.T) {
	tests := []struct {
		name     string
		transfer gir.Transfer
		dir      gir.Direction
		returned bool
		class    Class
		lowering Lowering
		want     Ownership
	}{
		{"full argument is handed over", gir.TransferFull, gir.DirectionIn, false, ClassRegistered, LowerObject, Ownership{Transfer: gir.TransferFull, HandOver: true}},
		{"full return is owned", gir.TransferFull, gir.DirectionOut, true, ClassRegistered, LowerObject, Ownership{Transfer: gir.TransferFull, Release: ReleaseUnref, Track: true}},
		{"full out array frees elements", gir.TransferFull, gir.DirectionOut, false, ClassOutArray, LowerNone, Ownership{Transfer: gir.TransferFull, Release: ReleaseFree, Track: true}},
		{"none argument object unrefs", gir.TransferNone, gir.DirectionIn, false, ClassRegistered, LowerObject, Ownership{Release: ReleaseUnref, Track: true}},
		{"none argument boxed frees", gir.TransferNone, gir.DirectionIn, false, ClassRegistered, LowerBoxed, Ownership{Release: ReleaseFree, Track: true}},
		{"none return is borrowed", gir.TransferNone, gir.DirectionOut, true, ClassRegistered, LowerObject, Ownership{}},
		{"none string return is borrowed", gir.TransferNone, gir.DirectionOut, true, ClassString, LowerNone, Ownership{}},
		{"container array", gir.TransferContainer, gir.DirectionOut, true, ClassArray, LowerNone, Ownership{Transfer: gir.TransferContainer, Release: ReleaseContainer, Track: true}},
		{"scalar untracked", gir.TransferNone, gir.DirectionIn, false, ClassScalar, LowerNone, Ownership{}},
		{"full scalar return untracked", gir.TransferFull, gir.DirectionOut, true, ClassScalar, LowerNone, Ownership{Transfer: gir.TransferFull}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownership(tt.transfer, tt.dir, tt.returned, tt.class, tt.lowering))
		})
	}
}

func TestPlan_SetData(t *testing.T) {
	lib, ns := fixture(t)
	p := NewPlanner(lib)

	pl, err := p.Plan(callable(t, ns, "Widget", "set_data"))
	require.NoError(t, err)

	assert.Equal(t, "Widget", pl.Owner)
	assert.Equal(t, "demo_widget_set_data", pl.Symbol)
	assert.Equal(t, "SetData", pl.GoName)
	assert.True(t, pl.Return.Void)
	assert.Nil(t, pl.Descriptor.Result)
	require.Len(t, pl.Params, 12)

	length := pl.Params[1]
	assert.Equal(t, 2, length.LengthOf)
	assert.True(t, length.Derived, "in length of in array is derived")
	assert.False(t, length.Input())

	data := pl.Params[2]
	require.NotNil(t, data.Sizing)
	assert.Equal(t, SizeParameter, data.Sizing.Policy)
	assert.Equal(t, "len", data.Sizing.LengthName)
	assert.Equal(t, "int(len_)", data.Sizing.Expr)
	assert.Equal(t, uint32(1), data.Element.Size)

	assert.Equal(t, LowerCallback, pl.Params[9].Lowering)
	assert.True(t, pl.Params[10].UserData)
	assert.True(t, pl.Params[11].DestroyNotify)

	assert.Equal(t, api.ValueTypeI64, pl.Descriptor.Params[0], "instance is an address")
	assert.Equal(t, api.ValueTypeI32, pl.Descriptor.Params[4], "boolean is an int")
	assert.Len(t, pl.Descriptor.Params, 12)
}

func TestPlan_OutArrayLengthReadFirst(t *testing.T) {
	lib, ns := fixture(t)
	pl, err := NewPlanner(lib).Plan(callable(t, ns, "Widget", "read_items"))
	require.NoError(t, err)

	items, n := pl.Params[1], pl.Params[2]
	assert.Equal(t, ClassOutArray, items.Class)
	assert.True(t, items.Sizing.LengthIsOut)
	assert.Equal(t, "int(*nItems)", items.Sizing.Expr)
	assert.Equal(t, 1, n.LengthOf)
	assert.False(t, n.Derived)
	assert.True(t, items.Ownership.Track, "transfer full out value is owned by the caller")
	assert.Equal(t, ReleaseFree, items.Ownership.Release)

	readLen := indexOf(pl.Steps, Step{Kind: StepReadOut, Param: 2})
	materialize := indexOf(pl.Steps, Step{Kind: StepMaterializeArray, Param: 1})
	invoke := indexOf(pl.Steps, Step{Kind: StepInvoke, Param: NoParam})
	require.NotEqual(t, -1, readLen)
	require.NotEqual(t, -1, materialize)
	assert.Less(t, invoke, readLen)
	assert.Less(t, readLen, materialize, "length must be read before the array is materialized")
}

func TestPlan_ThrowsChecksErrorBeforeDemarshaling(t *testing.T) {
	lib, ns := fixture(t)
	pl, err := NewPlanner(lib).Plan(callable(t, ns, "Widget", "get_children"))
	require.NoError(t, err)

	assert.True(t, pl.Throws)
	assert.Len(t, pl.Descriptor.Params, 4, "instance, flags, out length and the error slot")
	assert.Equal(t, ClassArray, pl.Return.Class)
	assert.Equal(t, LengthOfReturn, pl.Params[2].LengthOf)
	assert.Equal(t, ReleaseContainer, pl.Return.Ownership.Release)
	assert.Equal(t, ClassRegistered, pl.Return.ElementClass)
	assert.Equal(t, LowerObject, pl.Return.ElementLowering)

	check := indexOf(pl.Steps, Step{Kind: StepCheckError, Param: NoParam})
	require.NotEqual(t, -1, check)
	for i, s := range pl.Steps {
		switch s.Kind {
		case StepReadOut, StepMaterializeArray, StepReturn:
			assert.Greater(t, i, check, "%s runs before the error check", s)
		case StepAllocError:
			assert.Less(t, i, check)
		}
	}
	assert.Equal(t, Step{Kind: StepReturn, Param: ReturnSlot}, pl.Steps[len(pl.Steps)-1])
}

func TestPlan_Defects(t *testing.T) {
	lib, ns := fixture(t)
	p := NewPlanner(lib)

	_, err := p.Plan(callable(t, ns, "", "broken"))
	require.Error(t, err)
	assert.True(t, errors.IsDefect(err), "length index out of range is a defect")

	_, err = p.Plan(callable(t, ns, "", "printf"))
	require.Error(t, err)
	assert.True(t, errors.IsDefect(err), "variadic callables must not reach the planner")
}

func TestFilter(t *testing.T) {
	lib, ns := fixture(t)
	f := NewFilter(lib, "demo_widget_set_data")

	reason, keep := f.Callable(callable(t, ns, "", "printf"))
	assert.False(t, keep)
	assert.Equal(t, ReasonVariadic, reason)

	reason, keep = f.Callable(callable(t, ns, "", "use_bad"))
	assert.False(t, keep)
	assert.Equal(t, ReasonCallbackShape, reason)

	reason, keep = f.Callable(callable(t, ns, "Widget", "set_data"))
	assert.False(t, keep)
	assert.Equal(t, ReasonExcluded, reason)

	empty, _ := ns.Lookup("Empty")
	reason, keep = f.Type(empty)
	assert.False(t, keep)
	assert.Equal(t, ReasonNoMembers, reason)

	bad, _ := ns.Lookup("BadFunc")
	_, keep = f.Type(bad)
	assert.False(t, keep)

	point, _ := ns.Lookup("Point")
	_, keep = f.Type(point)
	assert.True(t, keep)
}

func TestPlanNamespace(t *testing.T) {
	lib, ns := fixture(t)
	units, failures, excluded := NewPlanner(lib).PlanNamespace(ns)

	byName := make(map[string]*Unit)
	for _, u := range units {
		byName[u.Name] = u
	}

	require.Contains(t, byName, "Widget")
	assert.Len(t, byName["Widget"].Plans, 3)
	require.Contains(t, byName, "Point")
	require.NotNil(t, byName["Point"].Layout)
	assert.Equal(t, uint32(8), byName["Point"].Layout.Size)
	assert.Contains(t, byName, "Flags")
	assert.Contains(t, byName, "Func")
	assert.NotContains(t, byName, "Empty")
	assert.NotContains(t, byName, "BadFunc")

	// The broken function is a defect and aborts the functions unit only.
	assert.NotContains(t, byName, FunctionsUnit)
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Callable)
	assert.True(t, errors.IsDefect(failures[0]))

	reasons := make(map[string]string)
	for _, e := range excluded {
		reasons[e.Unit+"/"+e.Name] = e.Reason
	}
	assert.Equal(t, ReasonNoMembers, reasons["Empty/"])
	assert.Equal(t, ReasonCallbackShape, reasons["BadFunc/"])
	assert.Equal(t, ReasonVariadic, reasons["functions/printf"])
}

func TestCodec(t *testing.T) {
	lib, ns := fixture(t)
	units, _, _ := NewPlanner(lib).PlanNamespace(ns)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, units))
	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(units))
	for i, u := range units {
		assert.Equal(t, u.Name, got[i].Name)
		require.Len(t, got[i].Plans, len(u.Plans))
		for j, pl := range u.Plans {
			assert.Equal(t, pl.Steps, got[i].Plans[j].Steps)
			assert.Equal(t, pl.Descriptor, got[i].Plans[j].Descriptor)
		}
	}

	_, err = Unmarshal([]byte{0xa0})
	assert.Error(t, err, "missing version")
}

func TestPlan_String(t *testing.T) {
	lib, ns := fixture(t)
	pl, err := NewPlanner(lib).Plan(callable(t, ns, "Widget", "read_items"))
	require.NoError(t, err)
	assert.Equal(t, "Widget.read_items(in self:instance, out items:out-array, out n_items:out) gboolean:boolean", pl.String())
	assert.Equal(t, "(i64, i64, i64) -> i32", pl.Signature())
}

func indexOf(steps []Step, s Step) int {
	for i, st := range steps {
		if st == s {
			return i
		}
	}
	return -1
}
