package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	stateEnc cbor.EncMode
	stateDec cbor.DecMode
)

func init() {
	var err error
	stateEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	stateDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeState serializes contract state deterministically, so equal states
// produce equal bytes and therefore equal derived addresses.
func EncodeState(v any) ([]byte, error) {
	b, err := stateEnc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

// MustEncodeState is like EncodeState but panics on error.
func MustEncodeState(v any) []byte {
	b, err := EncodeState(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeState deserializes contract state written by EncodeState.
func DecodeState(data []byte, v any) error {
	if err := stateDec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	return nil
}

// Load decodes the running contract's state.
func Load[T any](c *Context) (*T, error) {
	var v T
	if err := DecodeState(c.state, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Store encodes v as the running contract's new state.
func (c *Context) Store(v any) error {
	b, err := EncodeState(v)
	if err != nil {
		return err
	}
	c.state = b
	return nil
}
