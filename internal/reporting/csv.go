package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the holders of a report as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("owner,wallet,balance,balance_units,share_pct\n")

	// Rows
	for _, h := range r.Holders {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s\n",
			h.Owner,
			h.Wallet,
			h.Balance.Format(r.Decimals),
			h.Balance,
			h.Share,
		))
	}

	return sb.String()
}
