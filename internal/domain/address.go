package domain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Workchain identifiers.
const (
	BasechainID   int8 = 0
	MasterchainID int8 = -1
)

// ErrInvalidAddress is returned when an address string cannot be parsed.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account: a workchain plus a 256-bit account hash.
// The zero value is the "none" address.
type Address struct {
	Workchain int8     `cbor:"1,keyasint"`
	Hash      [32]byte `cbor:"2,keyasint"`
}

// NoneAddress is the empty address used when an optional address is absent.
var NoneAddress = Address{}

// NewAddress builds an address from a workchain and a 32-byte hash.
func NewAddress(workchain int8, hash [32]byte) Address {
	return Address{Workchain: workchain, Hash: hash}
}

// IsNone reports whether a is the none address.
func (a Address) IsNone() bool {
	return a == NoneAddress
}

// Equal reports whether a and b denote the same account.
func (a Address) Equal(b Address) bool {
	return a == b
}

// Compare orders addresses by workchain and then by hash.
func (a Address) Compare(b Address) int {
	if a.Workchain != b.Workchain {
		if a.Workchain < b.Workchain {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Hash[:], b.Hash[:])
}

// String returns the raw form "wc:hex".
func (a Address) String() string {
	if a.IsNone() {
		return ""
	}
	return strconv.Itoa(int(a.Workchain)) + ":" + hex.EncodeToString(a.Hash[:])
}

// Friendly returns the base58 form of the workchain byte followed by the hash.
func (a Address) Friendly() string {
	if a.IsNone() {
		return ""
	}
	buf := make([]byte, 0, 33)
	buf = append(buf, byte(a.Workchain))
	buf = append(buf, a.Hash[:]...)
	return base58.Encode(buf)
}

// ParseAddress parses either the raw "wc:hex" form or the base58 friendly form.
// The empty string parses to NoneAddress.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoneAddress, nil
	}

	if wc, hash, ok := strings.Cut(s, ":"); ok {
		n, err := strconv.ParseInt(wc, 10, 8)
		if err != nil {
			return NoneAddress, fmt.Errorf("%w: workchain %q", ErrInvalidAddress, wc)
		}
		raw, err := hex.DecodeString(hash)
		if err != nil || len(raw) != 32 {
			return NoneAddress, fmt.Errorf("%w: hash %q", ErrInvalidAddress, hash)
		}
		var a Address
		a.Workchain = int8(n)
		copy(a.Hash[:], raw)
		return a, nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return NoneAddress, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 33 {
		return NoneAddress, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	var a Address
	a.Workchain = int8(raw[0])
	copy(a.Hash[:], raw[1:])
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for tests and constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalText implements encoding.TextMarshaler using the raw form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
