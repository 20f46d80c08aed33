package interop

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
)

// WrapMemory adapts a wazero memory to gibind.Memory.
func WrapMemory(mem api.Memory) gibind.Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the gibind.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

func outOfBounds(op string, offset, length uint32) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Value(offset).
		Detail("memory %s out of bounds: offset=%d, length=%d", op, offset, length).
		Build()
}

// Size returns the memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds("read", offset, length)
	}
	return data, nil
}

func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return outOfBounds("write", offset, uint32(len(data)))
	}
	return nil
}

func (m *Wrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 1)
	}
	return v, nil
}

func (m *Wrapper) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 2)
	}
	return v, nil
}

func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 4)
	}
	return v, nil
}

func (m *Wrapper) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 8)
	}
	return v, nil
}

func (m *Wrapper) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return outOfBounds("write", offset, 1)
	}
	return nil
}

func (m *Wrapper) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return outOfBounds("write", offset, 2)
	}
	return nil
}

func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return outOfBounds("write", offset, 4)
	}
	return nil
}

func (m *Wrapper) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return outOfBounds("write", offset, 8)
	}
	return nil
}

// WrapAllocator adapts exported malloc and free functions of a module to
// gibind.Allocator. free may be nil when the module never releases.
func WrapAllocator(ctx context.Context, malloc, free api.Function) gibind.Allocator {
	if malloc == nil {
		return nil
	}
	return &AllocatorWrapper{Ctx: ctx, Malloc: malloc, Release: free}
}

// AllocatorWrapper allocates through exported module functions.
type AllocatorWrapper struct {
	Ctx     context.Context
	Malloc  api.Function
	Release api.Function
}

// Alloc calls malloc(size). Native malloc alignment covers every scalar, so
// align is not forwarded.
func (a *AllocatorWrapper) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Malloc.Call(a.Ctx, uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "malloc failed")
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	return uint32(results[0]), nil
}

// Free calls free(ptr).
func (a *AllocatorWrapper) Free(ptr, size, align uint32) {
	if a.Release == nil || ptr == 0 {
		return
	}
	_, _ = a.Release.Call(a.Ctx, uint64(ptr))
}

// ModuleInvoker calls functions exported by an instantiated module. The
// descriptor must match the export's signature exactly.
type ModuleInvoker struct {
	Module api.Module
}

func (m ModuleInvoker) Invoke(ctx context.Context, symbol string, desc gibind.Descriptor, args []uint64) (uint64, error) {
	fn := m.Module.ExportedFunction(symbol)
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseInvoke, "function", symbol)
	}
	def := fn.Definition()
	if !slices.Equal(def.ParamTypes(), desc.Params) {
		return 0, errors.TypeMismatch(errors.PhaseInvoke, []string{symbol}, signature(desc.Params), signature(def.ParamTypes()))
	}
	results := def.ResultTypes()
	switch {
	case desc.Void() && len(results) != 0,
		!desc.Void() && (len(results) != 1 || results[0] != *desc.Result):
		return 0, errors.TypeMismatch(errors.PhaseInvoke, []string{symbol}, "result "+resultName(desc), signature(results))
	}

	out, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0], nil
}

func signature(types []api.ValueType) string {
	s := "("
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}

func resultName(desc gibind.Descriptor) string {
	if desc.Void() {
		return "void"
	}
	return api.ValueTypeName(*desc.Result)
}
