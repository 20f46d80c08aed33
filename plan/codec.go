package plan

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/gibind/errors"
)

// formatVersion is bumped whenever the encoded plan layout changes.
const formatVersion = 1

type document struct {
	Units   []*Unit `cbor:"units"`
	Version int     `cbor:"version"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("plan: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes units for the external emitter.
func Marshal(units []*Unit) ([]byte, error) {
	data, err := cborEncMode.Marshal(document{Version: formatVersion, Units: units})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode plans")
	}
	return data, nil
}

// Unmarshal decodes units produced by Marshal.
func Unmarshal(data []byte) ([]*Unit, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode plans")
	}
	if doc.Version != formatVersion {
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Value(doc.Version).
			Detail("plan format version %d, want %d", doc.Version, formatVersion).
			Build()
	}
	return doc.Units, nil
}

// Encode writes units to w.
func Encode(w io.Writer, units []*Unit) error {
	data, err := Marshal(units)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads units from r.
func Decode(r io.Reader) ([]*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read plans")
	}
	return Unmarshal(data)
}
