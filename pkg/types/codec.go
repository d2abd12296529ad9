package types

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding, so the same frame always
// produces the same bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so newer backends can add them.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a frame body left encoded until its type is known.
type RawMessage = cbor.RawMessage
