package interop

import (
	"fmt"

	"github.com/wippyai/gibind"
)

// GError is a native error reported through a callable's error slot.
type GError struct {
	Message string
	Domain  uint32
	Code    int32
}

func (e *GError) Error() string {
	return fmt.Sprintf("gerror domain=%d code=%d: %s", e.Domain, e.Code, e.Message)
}

// gerrorMessageOffset is the offset of the message pointer in
// {GQuark domain; gint code; gchar *message} for both pointer widths.
const gerrorMessageOffset = 8

// ReadGError decodes the GError stored at addr.
func ReadGError(mem gibind.Memory, addr gibind.Address, pointerSize uint32) (*GError, error) {
	base, err := offset(addr)
	if err != nil {
		return nil, err
	}
	domain, err := mem.ReadU32(base)
	if err != nil {
		return nil, err
	}
	code, err := mem.ReadU32(base + 4)
	if err != nil {
		return nil, err
	}
	msgPtr, err := gibind.ReadAddress(mem, base+gerrorMessageOffset, pointerSize)
	if err != nil {
		return nil, err
	}
	msg, err := ReadCString(mem, msgPtr)
	if err != nil {
		return nil, err
	}
	return &GError{Domain: domain, Code: int32(code), Message: msg}, nil
}
