package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	title := r.Name
	if title == "" {
		title = r.Master.String()
	}
	sb.WriteString(fmt.Sprintf("# %s", title))
	if r.Symbol != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", r.Symbol))
	}
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Token Summary
	sb.WriteString("## Token\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Master | `%s` |\n", r.Master))
	sb.WriteString(fmt.Sprintf("| Friendly | `%s` |\n", r.Master.Friendly()))
	sb.WriteString(fmt.Sprintf("| Admin | `%s` |\n", r.Token.Admin))
	sb.WriteString(fmt.Sprintf("| Total Supply | %s |\n", r.Token.TotalSupply.Format(r.Decimals)))
	sb.WriteString(fmt.Sprintf("| Wallets | %d |\n", len(r.Holders)))
	sb.WriteString(fmt.Sprintf("| Holders | %d |\n", r.Holding()))
	sb.WriteString("\n")

	// Supply Check
	sb.WriteString("## Supply Check\n\n")
	if r.Supply.Consistent {
		sb.WriteString(fmt.Sprintf("**Consistent.** %d wallets hold %s.\n\n",
			r.Supply.Wallets, r.Supply.WalletSum.Format(r.Decimals)))
	} else {
		sb.WriteString("**Violations found.**\n\n")
		for _, v := range r.Supply.Violations {
			sb.WriteString(fmt.Sprintf("- %s\n", v))
		}
		sb.WriteString("\n")
	}

	// Holders
	sb.WriteString("## Holders\n\n")
	if len(r.Holders) == 0 {
		sb.WriteString("No wallets.\n")
		return sb.String()
	}
	sb.WriteString("| # | Owner | Wallet | Balance | Share % |\n")
	sb.WriteString("|---|-------|--------|---------|---------|\n")
	for i, h := range r.Holders {
		sb.WriteString(fmt.Sprintf("| %d | `%s` | `%s` | %s | %s |\n",
			i+1, h.Owner, h.Wallet, h.Balance.Format(r.Decimals), h.Share))
	}

	return sb.String()
}
