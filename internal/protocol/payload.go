package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Record payloads travel as CBOR documents inside the frame data.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a payload to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a CBOR payload.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodedSize is the CBOR size of v.
func EncodedSize(v any) (int, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// WireDevice is a device reference after address resolution.
type WireDevice struct {
	Kind    string `cbor:"1,keyasint"`
	Address uint16 `cbor:"2,keyasint"`
}

// WireRecord is one category record as sent to a unit.
type WireRecord struct {
	Index   int            `cbor:"1,keyasint"`
	Name    string         `cbor:"2,keyasint,omitempty"`
	Devices []WireDevice   `cbor:"3,keyasint,omitempty"`
	Data    map[string]any `cbor:"4,keyasint,omitempty"`
}
