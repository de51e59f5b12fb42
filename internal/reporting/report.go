package reporting

import (
	"time"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/jetton"
)

// Report represents the holder report of one token.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Master      domain.Address
	Name        string
	Symbol      string
	Decimals    uint8

	// Token record
	Token *jetton.TokenData

	// Holders sorted by balance descending, then owner
	Holders []HolderRow

	// Supply check
	Supply *jetton.SupplyReport
}

// HolderRow represents one wallet of the token.
type HolderRow struct {
	Owner   domain.Address
	Wallet  domain.Address
	Balance domain.Coins
	Share   string // percent of total supply, two decimals
}

// Holding returns the number of holders with a non-zero balance.
func (r *Report) Holding() int {
	n := 0
	for _, h := range r.Holders {
		if !h.Balance.IsZero() {
			n++
		}
	}
	return n
}
