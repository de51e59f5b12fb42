package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/vm"
)

// Amount is an operating-currency amount written in whole units with up to
// nine decimals, e.g. "0.005".
type Amount struct {
	domain.Coins
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	c, err := domain.ParseUnits(string(text), domain.NanoDecimals)
	if err != nil {
		return err
	}
	a.Coins = c
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.Format(domain.NanoDecimals)), nil
}

// Protocol holds the execution parameters shared by every contract.
//
//	[fees]
//	compute = "0.005"
//	forward = "0.001"
//
//	[wallet]
//	min_reserve = "0.01"
//
//	[registry]
//	create = 0x15cf00af
type Protocol struct {
	Fees struct {
		Compute Amount `toml:"compute"`
		Forward Amount `toml:"forward"`
	} `toml:"fees"`
	Wallet struct {
		MinReserve Amount `toml:"min_reserve"`
	} `toml:"wallet"`
	Registry registry.Opcodes `toml:"registry"`
}

// DefaultProtocol returns the built-in parameters.
func DefaultProtocol() Protocol {
	var p Protocol
	fees := vm.DefaultFees()
	p.Fees.Compute = Amount{fees.Compute}
	p.Fees.Forward = Amount{fees.Forward}
	p.Wallet.MinReserve = Amount{jetton.DefaultConfig().MinReserve}
	p.Registry = registry.DefaultOpcodes()
	return p
}

// LoadProtocol reads path over the defaults. An empty path returns the defaults.
func LoadProtocol(path string) (Protocol, error) {
	p := DefaultProtocol()
	if path == "" {
		return p, nil
	}

	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Protocol{}, fmt.Errorf("decode protocol file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Protocol{}, fmt.Errorf("protocol file: unknown keys %v", undecoded)
	}
	if err := p.Validate(); err != nil {
		return Protocol{}, fmt.Errorf("protocol file: %w", err)
	}
	return p, nil
}

// Validate checks every section.
func (p Protocol) Validate() error {
	if err := p.VMFees().Validate(); err != nil {
		return err
	}
	if err := p.Jetton().Validate(); err != nil {
		return err
	}
	return p.Registry.Validate()
}

// VMFees returns the fee schedule for the execution engine.
func (p Protocol) VMFees() vm.Fees {
	return vm.Fees{Compute: p.Fees.Compute.Coins, Forward: p.Fees.Forward.Coins}
}

// Jetton returns the jetton contract parameters.
func (p Protocol) Jetton() jetton.Config {
	return jetton.Config{MinReserve: p.Wallet.MinReserve.Coins}
}
