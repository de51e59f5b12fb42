package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// CoinsBits is the width of an amount on the wire (VarUInteger 16).
const CoinsBits = 120

// NanoDecimals is the number of decimals of the operating currency.
const NanoDecimals = 9

// Amount errors.
var (
	ErrCoinsOverflow  = errors.New("coins overflow")
	ErrCoinsUnderflow = errors.New("coins underflow")
	ErrInvalidCoins   = errors.New("invalid coins")
)

// Coins is a non-negative amount bounded by CoinsBits.
// Used both for jetton balances and for operating funds (nano units).
type Coins struct {
	v uint256.Int
}

// ZeroCoins is the zero amount.
var ZeroCoins = Coins{}

// NewCoins returns an amount from a uint64.
func NewCoins(n uint64) Coins {
	var c Coins
	c.v.SetUint64(n)
	return c
}

// ParseCoins parses a base-10 integer amount.
func ParseCoins(s string) (Coins, error) {
	var c Coins
	s = strings.TrimSpace(s)
	if s == "" {
		return c, fmt.Errorf("%w: empty", ErrInvalidCoins)
	}
	if err := c.v.SetFromDecimal(s); err != nil {
		return Coins{}, fmt.Errorf("%w: %q: %v", ErrInvalidCoins, s, err)
	}
	if c.v.BitLen() > CoinsBits {
		return Coins{}, fmt.Errorf("%w: %q", ErrCoinsOverflow, s)
	}
	return c, nil
}

// MustParseCoins is like ParseCoins but panics on error.
func MustParseCoins(s string) Coins {
	c, err := ParseCoins(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseUnits parses a decimal amount such as "0.05" scaled by decimals,
// e.g. ParseUnits("1.5", 9) == 1500000000.
func ParseUnits(s string, decimals uint8) (Coins, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Coins{}, fmt.Errorf("%w: %q: %v", ErrInvalidCoins, s, err)
	}
	if d.IsNegative() {
		return Coins{}, fmt.Errorf("%w: negative amount %q", ErrInvalidCoins, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Coins{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidCoins, s, decimals)
	}
	return CoinsFromBig(scaled.BigInt())
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals uint8) Coins {
	c, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return c
}

// Nano converts a decimal string of operating currency into nano units.
func Nano(s string) Coins {
	return MustParseUnits(s, NanoDecimals)
}

// CoinsFromBig converts a big.Int, rejecting negative or oversized values.
func CoinsFromBig(b *big.Int) (Coins, error) {
	if b.Sign() < 0 {
		return Coins{}, ErrCoinsUnderflow
	}
	var c Coins
	if overflow := c.v.SetFromBig(b); overflow || c.v.BitLen() > CoinsBits {
		return Coins{}, ErrCoinsOverflow
	}
	return c, nil
}

// CoinsFromBytes decodes a big-endian unsigned amount.
func CoinsFromBytes(b []byte) (Coins, error) {
	if len(b) > 32 {
		return Coins{}, ErrCoinsOverflow
	}
	var c Coins
	c.v.SetBytes(b)
	if c.v.BitLen() > CoinsBits {
		return Coins{}, ErrCoinsOverflow
	}
	return c, nil
}

// Add returns c+o or ErrCoinsOverflow.
func (c Coins) Add(o Coins) (Coins, error) {
	var r Coins
	if _, overflow := r.v.AddOverflow(&c.v, &o.v); overflow || r.v.BitLen() > CoinsBits {
		return Coins{}, ErrCoinsOverflow
	}
	return r, nil
}

// Sub returns c-o or ErrCoinsUnderflow when o > c.
func (c Coins) Sub(o Coins) (Coins, error) {
	var r Coins
	if _, underflow := r.v.SubOverflow(&c.v, &o.v); underflow {
		return Coins{}, ErrCoinsUnderflow
	}
	return r, nil
}

// SubFloor returns c-o, or zero when o > c.
func (c Coins) SubFloor(o Coins) Coins {
	r, err := c.Sub(o)
	if err != nil {
		return ZeroCoins
	}
	return r
}

// MulUint64 returns c*n or ErrCoinsOverflow.
func (c Coins) MulUint64(n uint64) (Coins, error) {
	var r Coins
	m := uint256.NewInt(n)
	if _, overflow := r.v.MulOverflow(&c.v, m); overflow || r.v.BitLen() > CoinsBits {
		return Coins{}, ErrCoinsOverflow
	}
	return r, nil
}

// Cmp compares c and o and returns -1, 0 or +1.
func (c Coins) Cmp(o Coins) int {
	return c.v.Cmp(&o.v)
}

// LessThan reports c < o.
func (c Coins) LessThan(o Coins) bool { return c.Cmp(o) < 0 }

// GreaterThan reports c > o.
func (c Coins) GreaterThan(o Coins) bool { return c.Cmp(o) > 0 }

// IsZero reports whether the amount is zero.
func (c Coins) IsZero() bool {
	return c.v.IsZero()
}

// Min returns the smaller of c and o.
func (c Coins) Min(o Coins) Coins {
	if c.Cmp(o) <= 0 {
		return c
	}
	return o
}

// Bytes returns the minimal big-endian encoding (empty for zero).
func (c Coins) Bytes() []byte {
	return c.v.Bytes()
}

// Big returns the amount as a new big.Int.
func (c Coins) Big() *big.Int {
	return c.v.ToBig()
}

// Uint64 returns the amount truncated to 64 bits and whether it fit.
func (c Coins) Uint64() (uint64, bool) {
	return c.v.Uint64(), c.v.IsUint64()
}

// String returns the base-10 integer form.
func (c Coins) String() string {
	return c.v.Dec()
}

// Format renders the amount with the given number of decimals, e.g. "1.5".
func (c Coins) Format(decimals uint8) string {
	return decimal.NewFromBigInt(c.Big(), -int32(decimals)).String()
}

// MarshalText implements encoding.TextMarshaler.
func (c Coins) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Coins) UnmarshalText(text []byte) error {
	parsed, err := ParseCoins(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalCBOR encodes the amount as a big-endian byte string.
func (c Coins) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.Bytes())
}

// UnmarshalCBOR decodes an amount written by MarshalCBOR.
func (c *Coins) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := CoinsFromBytes(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
