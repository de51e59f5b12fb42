package jetton

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/vm"
)

// AccountLister lists accounts by code.
type AccountLister interface {
	ListByCode(ctx context.Context, code domain.CodeID) ([]*domain.Account, error)
}

// SupplyReport is the outcome of a supply check.
type SupplyReport struct {
	Master      domain.Address `json:"master"`
	TotalSupply domain.Coins   `json:"total_supply"`
	WalletSum   domain.Coins   `json:"wallet_sum"`
	Wallets     int            `json:"wallets"`
	Consistent  bool           `json:"consistent"`
	Violations  []string       `json:"violations,omitempty"`
}

// CheckSupply compares master's total supply with the sum of its wallets'
// balances and checks every wallet sits at its derived address. The result
// is only meaningful when no message of the token is in flight.
func CheckSupply(ctx context.Context, accounts AccountLister, d *idhash.Deriver, master domain.Address) (*SupplyReport, error) {
	masters, err := accounts.ListByCode(ctx, MasterCode)
	if err != nil {
		return nil, fmt.Errorf("list masters: %w", err)
	}
	var token *MasterState
	for _, a := range masters {
		if a.Address == master {
			token = &MasterState{}
			if err := vm.DecodeState(a.State, token); err != nil {
				return nil, err
			}
			break
		}
	}
	if token == nil {
		return nil, fmt.Errorf("master %s: %w", master, ErrNotInstantiated)
	}

	wallets, err := accounts.ListByCode(ctx, WalletCode)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	report := &SupplyReport{Master: master, TotalSupply: token.TotalSupply, WalletSum: domain.ZeroCoins}
	var violations *multierror.Error
	for _, a := range wallets {
		var st WalletState
		if err := vm.DecodeState(a.State, &st); err != nil {
			violations = multierror.Append(violations, fmt.Errorf("wallet %s: %w", a.Address, err))
			continue
		}
		if st.Master != master {
			continue
		}
		report.Wallets++

		if want := WalletAddress(d, st.Owner, master); want != a.Address {
			violations = multierror.Append(violations, fmt.Errorf("wallet of %s at %s, derived %s", st.Owner, a.Address, want))
		}
		sum, err := report.WalletSum.Add(st.Balance)
		if err != nil {
			violations = multierror.Append(violations, fmt.Errorf("wallet sum: %w", err))
			continue
		}
		report.WalletSum = sum
	}

	if report.WalletSum.Cmp(token.TotalSupply) != 0 {
		violations = multierror.Append(violations, fmt.Errorf("total supply %s, wallets hold %s", token.TotalSupply, report.WalletSum))
	}

	if err := violations.ErrorOrNil(); err != nil {
		for _, e := range violations.Errors {
			report.Violations = append(report.Violations, e.Error())
		}
		return report, err
	}
	report.Consistent = true
	return report, nil
}
