// Package jetton implements the fungible token contracts: one master per
// token that alone mints, and one wallet per (owner, token) holding the
// owner's balance.
//
// Wallets never share memory with the master or each other. Supply moves
// between them only in messages, and a failed leg bounces back to the actor
// that debited, which credits the amount again. At quiescence the master's
// total supply equals the sum of all wallet balances.
package jetton

import (
	"fmt"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Config holds the token protocol parameters.
type Config struct {
	// MinReserve is the operating balance a wallet keeps for itself.
	MinReserve domain.Coins `toml:"min_reserve"`
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{MinReserve: domain.Nano("0.01")}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinReserve.IsZero() {
		return fmt.Errorf("min reserve must be positive")
	}
	return nil
}

// Registrar is the part of the machine contracts are installed into.
type Registrar interface {
	Register(code domain.CodeID, c vm.Contract)
}

// Install registers the master and wallet code.
func Install(r Registrar, cfg Config) {
	r.Register(MasterCode, &Master{cfg: cfg})
	r.Register(WalletCode, &Wallet{cfg: cfg})
}
