package interop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/plan"
	"github.com/wippyai/gibind/proxy"
)

// memoryWASM is a minimal module exporting one page of memory as "memory".
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory"
	0x02, 0x00, // kind: memory, index 0
}

func newMemory(t *testing.T) gibind.Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	mod, err := rt.Instantiate(ctx, memoryWASM)
	require.NoError(t, err)
	mem := WrapMemory(mod.ExportedMemory("memory"))
	require.NotNil(t, mem)
	return mem
}

func a(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func fn(name, symbol string, ret *gir.Node, throws bool, params ...*gir.Node) *gir.Node {
	attrs := a("name", name, "c:identifier", symbol)
	if throws {
		attrs["throws"] = "1"
	}
	children := []*gir.Node{}
	if ret != nil {
		children = append(children, ret)
	}
	children = append(children, gir.New(gir.KindParameters, nil, params...))
	return gir.New(gir.KindFunction, attrs, children...)
}

func plans(t *testing.T) map[string]*plan.Plan {
	t.Helper()
	root := gir.New(gir.KindNamespace, a("name", "Demo"),
		gir.New(gir.KindClass, a("name", "Widget", "c:type", "DemoWidget", "glib:get-type", "demo_widget_get_type"),
			gir.New(gir.KindMethod, a("name", "get_name", "c:identifier", "demo_widget_get_name"),
				gir.New(gir.KindReturnValue, nil, gir.NewType("utf8", "const gchar*")),
				gir.New(gir.KindParameters, nil,
					gir.New(gir.KindInstanceParameter, a("name", "self"), gir.NewType("Widget", "DemoWidget*")),
				),
			),
		),
		fn("widget_new", "demo_widget_new",
			gir.New(gir.KindReturnValue, a("transfer-ownership", "full"), gir.NewType("Widget", "DemoWidget*")),
			false,
		),
		fn("read_items", "demo_read_items",
			gir.New(gir.KindReturnValue, nil, gir.NewType("gboolean", "gboolean")),
			true,
			gir.New(gir.KindParameter, a("name", "items", "direction", "out", "transfer-ownership", "full"),
				gir.NewArray(a("length", "1"), gir.NewType("gint32", "gint32")),
			),
			gir.NewParameter("n_items", "gint", "gint*", a("direction", "out")),
		),
		fn("sum", "demo_sum",
			gir.New(gir.KindReturnValue, nil, gir.NewType("gdouble", "gdouble")),
			false,
			gir.New(gir.KindParameter, a("name", "data"),
				gir.NewArray(a("length", "1"), gir.NewType("gint32", "gint32")),
			),
			gir.NewParameter("n", "gsize", "gsize", nil),
			gir.NewParameter("scale", "gdouble", "gdouble", nil),
			gir.NewParameter("verbose", "gboolean", "gboolean", nil),
			gir.NewParameter("label", "utf8", "const gchar*", nil),
		),
		fn("widget_peek", "demo_widget_peek",
			gir.New(gir.KindReturnValue, nil, gir.NewType("Widget", "DemoWidget*")),
			false,
		),
		fn("widget_take", "demo_widget_take", nil, false,
			gir.NewParameter("widget", "Widget", "DemoWidget*", a("transfer-ownership", "full")),
		),
		fn("read", "demo_read",
			gir.New(gir.KindReturnValue, nil, gir.NewType("gssize", "gssize")),
			false,
			gir.New(gir.KindParameter, a("name", "buffer", "direction", "out", "caller-allocates", "1"),
				gir.NewArray(a("length", "1"), gir.NewType("guint8", "guint8")),
			),
			gir.NewParameter("count", "gsize", "gsize", nil),
		),
		fn("fill", "demo_fill", nil, false,
			gir.New(gir.KindParameter, a("name", "buffer", "direction", "out", "caller-allocates", "1"),
				gir.NewArray(a("length", "1"), gir.NewType("guint8", "guint8")),
			),
			gir.NewParameter("n", "gsize", "gsize*", a("direction", "out")),
		),
		fn("split", "demo_split",
			gir.New(gir.KindReturnValue, a("transfer-ownership", "full"),
				gir.NewArray(a("zero-terminated", "1", "c:type", "gchar**"), gir.NewType("utf8", "gchar*")),
			),
			false,
			gir.NewParameter("text", "utf8", "const gchar*", nil),
		),
	)
	ns, err := gir.BuildNamespace(root)
	require.NoError(t, err)
	planner := plan.NewPlanner(gir.NewLibrary(ns), plan.WithPointerSize(4))

	out := make(map[string]*plan.Plan)
	for _, c := range ns.Functions() {
		pl, err := planner.Plan(c)
		require.NoError(t, err, c.Name())
		out[pl.Symbol] = pl
	}
	widget, ok := ns.Lookup("Widget")
	require.True(t, ok)
	for _, c := range widget.Callables() {
		pl, err := planner.Plan(c)
		require.NoError(t, err)
		out[pl.Symbol] = pl
	}
	return out
}

type env struct {
	mem   gibind.Memory
	alloc *BumpAllocator
	reg   *proxy.Registry
	plans map[string]*plan.Plan
}

func newEnv(t *testing.T) *env {
	return &env{
		mem:   newMemory(t),
		alloc: NewBumpAllocator(1024, 65536),
		reg:   proxy.New(),
		plans: plans(t),
	}
}

func (e *env) binding(symbol string, inv gibind.InvokerFunc) *Binding {
	return &Binding{
		Plan:        e.plans[symbol],
		Invoker:     inv,
		Memory:      e.mem,
		Allocator:   e.alloc,
		Registry:    e.reg,
		PointerSize: 4,
	}
}

// cstring places a NUL-terminated string in memory as native code would.
func (e *env) cstring(t *testing.T, s string) uint32 {
	t.Helper()
	ptr, err := e.alloc.Alloc(uint32(len(s)+1), 1)
	require.NoError(t, err)
	require.NoError(t, e.mem.Write(ptr, append([]byte(s), 0)))
	return ptr
}

func (e *env) int32s(t *testing.T, vals ...int32) uint32 {
	t.Helper()
	ptr, err := e.alloc.Alloc(uint32(4*len(vals)), 4)
	require.NoError(t, err)
	for i, v := range vals {
		require.NoError(t, e.mem.WriteU32(ptr+uint32(4*i), uint32(v)))
	}
	return ptr
}

func TestBinding_ErrorSlotShortCircuits(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_read_items", func(_ context.Context, _ string, desc gibind.Descriptor, args []uint64) (uint64, error) {
		require.Len(t, args, 3)
		require.Len(t, desc.Params, 3)

		// Out values that must never be read.
		require.NoError(t, e.mem.WriteU32(uint32(args[0]), 0xdeadbeef))
		require.NoError(t, e.mem.WriteU32(uint32(args[1]), 1<<30))

		gerr, err := e.alloc.Alloc(12, 4)
		require.NoError(t, err)
		require.NoError(t, e.mem.WriteU32(gerr, 7))
		require.NoError(t, e.mem.WriteU32(gerr+4, 3))
		require.NoError(t, e.mem.WriteU32(gerr+8, e.cstring(t, "boom")))
		require.NoError(t, e.mem.WriteU32(uint32(args[2]), gerr))
		return 0, nil
	})

	results, err := b.Call(context.Background())
	require.Error(t, err)
	assert.Nil(t, results)

	var gerr *GError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, uint32(7), gerr.Domain)
	assert.Equal(t, int32(3), gerr.Code)
	assert.Equal(t, "boom", gerr.Message)
}

func TestBinding_OutArrayReadsLengthFirst(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_read_items", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
		require.NoError(t, e.mem.WriteU32(uint32(args[0]), e.int32s(t, 4, 5, 6)))
		require.NoError(t, e.mem.WriteU32(uint32(args[1]), 3))
		return 1, nil
	})

	results, err := b.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{true, []int32{4, 5, 6}}, results)
}

func TestBinding_InvocationFaultPanics(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_sum", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
		return 0, assert.AnError
	})

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = b.Call(context.Background(), []int32{1}, 1.0, false, "x")
	}()
	require.NotNil(t, recovered)
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.True(t, errors.IsDefect(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBinding_MarshalInputs(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_sum", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
		require.Len(t, args, 5)
		n := uint32(args[1])
		require.Equal(t, uint32(3), n, "derived length")

		var sum int32
		for i := uint32(0); i < n; i++ {
			v, err := e.mem.ReadU32(uint32(args[0]) + 4*i)
			require.NoError(t, err)
			sum += int32(v)
		}
		assert.Equal(t, uint64(1), args[3], "boolean is native 1")

		label, err := ReadCString(e.mem, gibind.Address(args[4]))
		require.NoError(t, err)
		assert.Equal(t, "hi", label)

		return api.EncodeF64(float64(sum) * api.DecodeF64(args[2])), nil
	})

	results, err := b.Call(context.Background(), []int32{1, 2, 3}, 2.0, true, "hi")
	require.NoError(t, err)
	assert.Equal(t, []any{12.0}, results)
}

func TestBinding_ArgumentCount(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_sum", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
		t.Fatal("must not be invoked")
		return 0, nil
	})
	_, err := b.Call(context.Background(), []int32{1})
	assert.Error(t, err)
}

func TestBinding_ObjectIdentity(t *testing.T) {
	e := newEnv(t)
	create := e.binding("demo_widget_new", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
		return 0x500, nil
	})

	r1, err := create.Call(context.Background())
	require.NoError(t, err)
	r2, err := create.Call(context.Background())
	require.NoError(t, err)

	w, ok := r1[0].(*proxy.Proxy)
	require.True(t, ok)
	assert.Same(t, w, r2[0])
	assert.True(t, w.Owned(), "transfer full return is owned")
	assert.Equal(t, gibind.Address(0x500), w.Address())

	name := e.binding("demo_widget_get_name", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
		assert.Equal(t, uint64(0x500), args[0])
		return uint64(e.cstring(t, "button")), nil
	})
	results, err := name.Call(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, []any{"button"}, results)

	_, err = name.Call(context.Background(), nil)
	assert.Error(t, err, "nil instance")
}

func TestBinding_ZeroTerminatedReturn(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_split", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
		text, err := ReadCString(e.mem, gibind.Address(args[0]))
		require.NoError(t, err)
		require.Equal(t, "a,b", text)

		arr, err := e.alloc.Alloc(12, 4)
		require.NoError(t, err)
		require.NoError(t, e.mem.WriteU32(arr, e.cstring(t, "a")))
		require.NoError(t, e.mem.WriteU32(arr+4, e.cstring(t, "b")))
		require.NoError(t, e.mem.WriteU32(arr+8, 0))
		return uint64(arr), nil
	})

	results, err := b.Call(context.Background(), "a,b")
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"a", "b"}}, results)
}

// recordingAllocator remembers every buffer given back.
type recordingAllocator struct {
	*BumpAllocator
	freed []uint32
}

func (r *recordingAllocator) Free(ptr, size, align uint32) {
	r.freed = append(r.freed, ptr)
	r.BumpAllocator.Free(ptr, size, align)
}

func TestBinding_CallerAllocatedArraySizedByLength(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_read", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
		buf, count := uint32(args[0]), uint32(args[1])
		require.Equal(t, uint32(32), count)

		next, err := e.alloc.Alloc(1, 1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, next, buf+count, "buffer must hold count bytes")

		data := make([]byte, count)
		for i := range data {
			data[i] = byte(i)
		}
		require.NoError(t, e.mem.Write(buf, data))
		return uint64(count), nil
	})

	results, err := b.Call(context.Background(), 32)
	require.NoError(t, err)
	require.Len(t, results, 2)
	got, ok := results[1].([]uint8)
	require.True(t, ok)
	require.Len(t, got, 32)
	assert.Equal(t, uint8(31), got[31])
}

func TestBinding_CallerAllocatedArrayWithoutBound(t *testing.T) {
	e := newEnv(t)
	b := e.binding("demo_fill", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
		t.Fatal("must not be invoked")
		return 0, nil
	})

	_, err := b.Call(context.Background())
	require.Error(t, err)
	assert.False(t, errors.IsDefect(err))
	var e2 *errors.Error
	require.ErrorAs(t, err, &e2)
	assert.Equal(t, errors.KindUnsupported, e2.Kind)
}

func TestBinding_OwnershipFollowsPlan(t *testing.T) {
	e := newEnv(t)
	rec := &recordingAllocator{BumpAllocator: e.alloc}

	t.Run("transfer full return is owned", func(t *testing.T) {
		pl := e.plans["demo_widget_new"]
		assert.True(t, pl.Return.Ownership.Track)
		assert.Equal(t, plan.ReleaseUnref, pl.Return.Ownership.Release)

		b := e.binding("demo_widget_new", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
			return 0x600, nil
		})
		r, err := b.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, pl.Return.Ownership.Track, r[0].(*proxy.Proxy).Owned())
	})

	t.Run("transfer none return is borrowed", func(t *testing.T) {
		pl := e.plans["demo_widget_peek"]
		assert.False(t, pl.Return.Ownership.Track)

		b := e.binding("demo_widget_peek", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
			return 0x700, nil
		})
		r, err := b.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, pl.Return.Ownership.Track, r[0].(*proxy.Proxy).Owned())
	})

	t.Run("transfer full argument is handed over", func(t *testing.T) {
		pl := e.plans["demo_widget_take"]
		assert.True(t, pl.Params[0].Ownership.HandOver)
		assert.False(t, pl.Params[0].Ownership.Track)

		w := e.reg.Acquire(0x800, true)
		b := e.binding("demo_widget_take", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
			return 0, nil
		})
		_, err := b.Call(context.Background(), w)
		require.NoError(t, err)
		assert.False(t, w.Owned())
	})

	t.Run("transfer full out array is released after copying", func(t *testing.T) {
		pl := e.plans["demo_read_items"]
		assert.True(t, pl.Params[0].Ownership.OwnsElements())

		var items uint32
		b := e.binding("demo_read_items", func(_ context.Context, _ string, _ gibind.Descriptor, args []uint64) (uint64, error) {
			items = e.int32s(t, 1, 2)
			require.NoError(t, e.mem.WriteU32(uint32(args[0]), items))
			require.NoError(t, e.mem.WriteU32(uint32(args[1]), 2))
			return 1, nil
		})
		b.Allocator = rec
		_, err := b.Call(context.Background())
		require.NoError(t, err)
		assert.Contains(t, rec.freed, items)
	})

	t.Run("transfer none string is not released", func(t *testing.T) {
		pl := e.plans["demo_widget_get_name"]
		assert.False(t, pl.Return.Ownership.Track)

		var str uint32
		b := e.binding("demo_widget_get_name", func(context.Context, string, gibind.Descriptor, []uint64) (uint64, error) {
			str = e.cstring(t, "label")
			return uint64(str), nil
		})
		b.Allocator = rec
		_, err := b.Call(context.Background(), e.reg.Acquire(0x900, false))
		require.NoError(t, err)
		assert.NotContains(t, rec.freed, str)
	})
}
