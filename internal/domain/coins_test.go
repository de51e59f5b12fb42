package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "whole", input: "1000", decimals: 9, want: "1000000000000"},
		{name: "fraction", input: "0.05", decimals: 9, want: "50000000"},
		{name: "zero decimals", input: "42", decimals: 0, want: "42"},
		{name: "too precise", input: "0.0000000001", decimals: 9, wantErr: true},
		{name: "negative", input: "-1", decimals: 9, wantErr: true},
		{name: "garbage", input: "abc", decimals: 9, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.input, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseUnits(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnits(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseUnits(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoins_Arithmetic(t *testing.T) {
	a := NewCoins(100)
	b := NewCoins(30)

	sum, err := a.Add(b)
	if err != nil || sum.String() != "130" {
		t.Errorf("Add = %s, %v; want 130", sum, err)
	}

	diff, err := a.Sub(b)
	if err != nil || diff.String() != "70" {
		t.Errorf("Sub = %s, %v; want 70", diff, err)
	}

	if _, err := b.Sub(a); !errors.Is(err, ErrCoinsUnderflow) {
		t.Errorf("Sub underflow error = %v, want ErrCoinsUnderflow", err)
	}

	if got := b.SubFloor(a); !got.IsZero() {
		t.Errorf("SubFloor = %s, want 0", got)
	}
}

func TestCoins_Bounds(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), CoinsBits), big.NewInt(1))

	top, err := CoinsFromBig(max)
	if err != nil {
		t.Fatalf("CoinsFromBig(max) unexpected error: %v", err)
	}
	if _, err := top.Add(NewCoins(1)); !errors.Is(err, ErrCoinsOverflow) {
		t.Errorf("Add past max error = %v, want ErrCoinsOverflow", err)
	}
	if _, err := CoinsFromBig(new(big.Int).Add(max, big.NewInt(1))); !errors.Is(err, ErrCoinsOverflow) {
		t.Errorf("CoinsFromBig(max+1) error = %v, want ErrCoinsOverflow", err)
	}
	if _, err := CoinsFromBig(big.NewInt(-1)); !errors.Is(err, ErrCoinsUnderflow) {
		t.Errorf("CoinsFromBig(-1) error = %v, want ErrCoinsUnderflow", err)
	}
}

func TestCoins_Format(t *testing.T) {
	c := MustParseUnits("1.5", 9)
	if got := c.Format(9); got != "1.5" {
		t.Errorf("Format(9) = %s, want 1.5", got)
	}
	if got := NewCoins(7).Format(0); got != "7" {
		t.Errorf("Format(0) = %s, want 7", got)
	}
}

func TestCoins_CBOR(t *testing.T) {
	type holder struct {
		Balance Coins `cbor:"1,keyasint"`
	}
	in := holder{Balance: MustParseUnits("1000", 9)}

	data, err := cbor.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out holder
	if err := cbor.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Balance.Cmp(in.Balance) != 0 {
		t.Errorf("CBOR round trip = %s, want %s", out.Balance, in.Balance)
	}
}
