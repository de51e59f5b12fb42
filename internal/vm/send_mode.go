package vm

import "jetton-ledger/internal/domain"

// SendMode controls how the value and forward fee of an outbound message
// are taken from the account.
type SendMode uint8

// Send mode flags. They combine with bitwise or.
const (
	// PayFeesSeparately charges the forward fee to the balance instead of the value.
	PayFeesSeparately SendMode = 1
	// IgnoreErrors skips a message that cannot be funded instead of aborting.
	IgnoreErrors SendMode = 2
	// CarryInbound adds the inbound value left after the compute fee.
	CarryInbound SendMode = 64
	// CarryBalance sends the whole remaining balance.
	CarryBalance SendMode = 128
)

// Has reports whether all flags in f are set.
func (m SendMode) Has(f SendMode) bool {
	return m&f == f
}

// OutMsg is an outbound message queued by a contract.
type OutMsg struct {
	To     domain.Address
	Value  domain.Coins
	Mode   SendMode
	Bounce bool
	Init   *domain.StateInit
	Body   []byte
}
