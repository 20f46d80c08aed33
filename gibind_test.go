package gibind

import (
	"encoding/binary"
	"fmt"
	"testing"
)

type sliceMemory []byte

func (m sliceMemory) check(off, n uint32) error {
	if uint64(off)+uint64(n) > uint64(len(m)) {
		return fmt.Errorf("out of bounds: %d+%d", off, n)
	}
	return nil
}

func (m sliceMemory) Read(off, n uint32) ([]byte, error) {
	if err := m.check(off, n); err != nil {
		return nil, err
	}
	return m[off : off+n], nil
}

func (m sliceMemory) Write(off uint32, data []byte) error {
	if err := m.check(off, uint32(len(data))); err != nil {
		return err
	}
	copy(m[off:], data)
	return nil
}

func (m sliceMemory) ReadU8(off uint32) (uint8, error) {
	if err := m.check(off, 1); err != nil {
		return 0, err
	}
	return m[off], nil
}

func (m sliceMemory) ReadU16(off uint32) (uint16, error) {
	if err := m.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m[off:]), nil
}

func (m sliceMemory) ReadU32(off uint32) (uint32, error) {
	if err := m.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m[off:]), nil
}

func (m sliceMemory) ReadU64(off uint32) (uint64, error) {
	if err := m.check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m[off:]), nil
}

func (m sliceMemory) WriteU8(off uint32, v uint8) error {
	return m.Write(off, []byte{v})
}

func (m sliceMemory) WriteU16(off uint32, v uint16) error {
	return m.Write(off, binary.LittleEndian.AppendUint16(nil, v))
}

func (m sliceMemory) WriteU32(off uint32, v uint32) error {
	return m.Write(off, binary.LittleEndian.AppendUint32(nil, v))
}

func (m sliceMemory) WriteU64(off uint32, v uint64) error {
	return m.Write(off, binary.LittleEndian.AppendUint64(nil, v))
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		size uint32
		addr Address
		want Address
	}{
		{"wasm32", 4, 0x1234, 0x1234},
		{"wasm32 truncates", 4, 0x1_0000_0010, 0x10},
		{"wasm64", 8, 0x1_0000_0010, 0x1_0000_0010},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := make(sliceMemory, 16)
			if err := WriteAddress(mem, 8, tt.size, tt.addr); err != nil {
				t.Fatalf("WriteAddress: %v", err)
			}
			got, err := ReadAddress(mem, 8, tt.size)
			if err != nil {
				t.Fatalf("ReadAddress: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}

	if _, err := ReadAddress(make(sliceMemory, 4), 0, 8); err == nil {
		t.Error("expected out of bounds error")
	}
}

func TestDescriptor_Void(t *testing.T) {
	if !(Descriptor{}).Void() {
		t.Error("descriptor without result should be void")
	}
}
