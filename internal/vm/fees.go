package vm

import (
	"fmt"

	"jetton-ledger/internal/domain"
)

// Fees are the flat processing charges of the substrate.
type Fees struct {
	Compute domain.Coins `toml:"compute"` // charged per processed message
	Forward domain.Coins `toml:"forward"` // charged per outbound message
}

// DefaultFees returns the fee schedule used when none is configured.
func DefaultFees() Fees {
	return Fees{
		Compute: domain.Nano("0.005"),
		Forward: domain.Nano("0.001"),
	}
}

// Validate checks that every fee is set.
func (f Fees) Validate() error {
	if f.Compute.IsZero() {
		return fmt.Errorf("compute fee must be positive")
	}
	if f.Forward.IsZero() {
		return fmt.Errorf("forward fee must be positive")
	}
	return nil
}
