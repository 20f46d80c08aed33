package gibind

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Address is a foreign memory address. Zero is NULL.
type Address uint64

// Null is the foreign NULL address.
const Null Address = 0

// Memory represents the foreign address space visible to generated bindings.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// ReadAddress reads a pointer-sized value. A size of 4 reads 32 bits; any
// other size reads 64.
func ReadAddress(m Memory, offset, size uint32) (Address, error) {
	if size == 4 {
		v, err := m.ReadU32(offset)
		return Address(v), err
	}
	v, err := m.ReadU64(offset)
	return Address(v), err
}

// WriteAddress writes a pointer-sized value, truncating to 32 bits when size
// is 4.
func WriteAddress(m Memory, offset, size uint32, addr Address) error {
	if size == 4 {
		return m.WriteU32(offset, uint32(addr))
	}
	return m.WriteU64(offset, uint64(addr))
}

// MemorySizer provides the current size of the foreign address space in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates transient native buffers.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Descriptor is the calling-convention descriptor of one foreign function.
// A nil Result describes a void function.
type Descriptor struct {
	Result *api.ValueType
	Params []api.ValueType
}

// Void reports whether the described function returns nothing.
func (d Descriptor) Void() bool {
	return d.Result == nil
}

// Invoker is the foreign-call primitive consumed by generated bindings.
//
// Invoke performs the call described by desc with the flat argument list
// and returns the flat result (zero for void functions). A non-nil error
// means the invocation itself faulted: bad signature, missing symbol or an
// invalid handle. Callers treat it as a defect, never as a data condition.
type Invoker interface {
	Invoke(ctx context.Context, symbol string, desc Descriptor, args []uint64) (uint64, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, symbol string, desc Descriptor, args []uint64) (uint64, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, symbol string, desc Descriptor, args []uint64) (uint64, error) {
	return f(ctx, symbol, desc, args)
}
