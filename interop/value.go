package interop

import (
	"math"
	"reflect"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/proxy"
)

// maxCString bounds the scan for a string terminator.
const maxCString = 1 << 24

func offset(addr gibind.Address) (uint32, error) {
	if addr > math.MaxUint32 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
			Value(uint64(addr)).
			Detail("address %#x outside the 32-bit address space", uint64(addr)).
			Build()
	}
	return uint32(addr), nil
}

func readRaw(mem gibind.Memory, off, size uint32) (uint64, error) {
	switch size {
	case 1:
		v, err := mem.ReadU8(off)
		return uint64(v), err
	case 2:
		v, err := mem.ReadU16(off)
		return uint64(v), err
	case 4:
		v, err := mem.ReadU32(off)
		return uint64(v), err
	case 8:
		return mem.ReadU64(off)
	}
	return 0, errors.Unsupported(errors.PhaseDecode, "scalar width "+strconv.Itoa(int(size)))
}

func writeRaw(mem gibind.Memory, off, size uint32, v uint64) error {
	switch size {
	case 1:
		return mem.WriteU8(off, uint8(v))
	case 2:
		return mem.WriteU16(off, uint16(v))
	case 4:
		return mem.WriteU32(off, uint32(v))
	case 8:
		return mem.WriteU64(off, v)
	}
	return errors.Unsupported(errors.PhaseEncode, "scalar width "+strconv.Itoa(int(size)))
}

// ReadCString reads a NUL-terminated UTF-8 string. The null address reads
// as the empty string.
func ReadCString(mem gibind.Memory, addr gibind.Address) (string, error) {
	if addr == gibind.Null {
		return "", nil
	}
	start, err := offset(addr)
	if err != nil {
		return "", err
	}
	limit := uint32(maxCString)
	if s, ok := mem.(gibind.MemorySizer); ok && s.Size() > start && s.Size()-start < limit {
		limit = s.Size() - start
	}
	var buf []byte
	for i := uint32(0); i < limit; i++ {
		b, err := mem.ReadU8(start + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", errors.InvalidData(errors.PhaseDecode, nil, "unterminated string")
}

// encodeScalar converts a host value to its flat representation.
func encodeScalar(v any, flat api.ValueType) (uint64, error) {
	if p, ok := v.(*proxy.Proxy); ok {
		if p == nil {
			return 0, nil
		}
		return uint64(p.Address()), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch flat {
		case api.ValueTypeF32:
			return api.EncodeF32(float32(rv.Int())), nil
		case api.ValueTypeF64:
			return api.EncodeF64(float64(rv.Int())), nil
		case api.ValueTypeI32:
			return api.EncodeI32(int32(rv.Int())), nil
		}
		return api.EncodeI64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch flat {
		case api.ValueTypeF32:
			return api.EncodeF32(float32(rv.Uint())), nil
		case api.ValueTypeF64:
			return api.EncodeF64(float64(rv.Uint())), nil
		case api.ValueTypeI32:
			return api.EncodeU32(uint32(rv.Uint())), nil
		}
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		if flat == api.ValueTypeF32 {
			return api.EncodeF32(float32(rv.Float())), nil
		}
		if flat == api.ValueTypeF64 {
			return api.EncodeF64(rv.Float()), nil
		}
	case reflect.Invalid:
		return 0, nil
	}
	return 0, errors.TypeMismatch(errors.PhaseEncode, nil, api.ValueTypeName(flat), v)
}

// decodeScalar converts a flat value to the host type of a primitive type
// name. Unknown names decode by width as unsigned integers.
func decodeScalar(name string, flat api.ValueType, size uint32, raw uint64) any {
	switch name {
	case "gboolean":
		return uint32(raw) != 0
	case "gchar", "gint8":
		return int8(raw)
	case "guchar", "guint8":
		return uint8(raw)
	case "gshort", "gint16":
		return int16(raw)
	case "gushort", "guint16", "gunichar2":
		return uint16(raw)
	case "gint", "gint32":
		return int32(raw)
	case "guint", "guint32", "gunichar":
		return uint32(raw)
	case "gint64", "goffset":
		return int64(raw)
	case "guint64":
		return raw
	case "glong", "gssize", "gintptr":
		if size == 4 {
			return int64(int32(raw))
		}
		return int64(raw)
	case "gulong", "gsize", "guintptr", "GType":
		if size == 4 {
			return uint64(uint32(raw))
		}
		return raw
	case "gfloat":
		return api.DecodeF32(raw)
	case "gdouble":
		return api.DecodeF64(raw)
	}
	switch flat {
	case api.ValueTypeF32:
		return api.DecodeF32(raw)
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	}
	switch size {
	case 1:
		return uint8(raw)
	case 2:
		return uint16(raw)
	case 4:
		return uint32(raw)
	}
	return raw
}
