package reporting

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/vm"
)

// Generator produces reports from committed state.
type Generator struct {
	tokens   *jetton.Client
	accounts jetton.AccountLister
	deriver  *idhash.Deriver
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tokens *jetton.Client, accounts jetton.AccountLister, deriver *idhash.Deriver) *Generator {
	return &Generator{
		tokens:   tokens,
		accounts: accounts,
		deriver:  deriver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of master. A failed supply check is part of
// the report, not an error.
func (g *Generator) Generate(ctx context.Context, master domain.Address) (*Report, error) {
	token, err := g.tokens.GetTokenData(ctx, master)
	if err != nil {
		return nil, err
	}

	supply, err := jetton.CheckSupply(ctx, g.accounts, g.deriver, master)
	if supply == nil {
		return nil, err
	}

	holders, err := g.holders(ctx, master, token.TotalSupply)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		Master:      master,
		Name:        token.Metadata[metadata.KeyName],
		Symbol:      token.Metadata[metadata.KeySymbol],
		Decimals:    domain.NanoDecimals,
		Token:       token,
		Holders:     holders,
		Supply:      supply,
	}
	if v, ok := token.Metadata[metadata.KeyDecimals]; ok {
		d, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("token decimals %q: %w", v, metadata.ErrInvalidValue)
		}
		r.Decimals = uint8(d)
	}
	return r, nil
}

func (g *Generator) holders(ctx context.Context, master domain.Address, total domain.Coins) ([]HolderRow, error) {
	wallets, err := g.accounts.ListByCode(ctx, jetton.WalletCode)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	var rows []HolderRow
	for _, a := range wallets {
		var st jetton.WalletState
		if err := vm.DecodeState(a.State, &st); err != nil {
			// counted as a violation by the supply check
			continue
		}
		if st.Master != master {
			continue
		}
		rows = append(rows, HolderRow{
			Owner:   st.Owner,
			Wallet:  a.Address,
			Balance: st.Balance,
			Share:   share(st.Balance, total),
		})
	}

	// Sort by balance descending, then owner
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Balance.Cmp(rows[j].Balance); c != 0 {
			return c > 0
		}
		return rows[i].Owner.Compare(rows[j].Owner) < 0
	})
	return rows, nil
}

func share(balance, total domain.Coins) string {
	if total.IsZero() {
		return "0.00"
	}
	b := decimal.NewFromBigInt(balance.Big(), 0)
	t := decimal.NewFromBigInt(total.Big(), 0)
	return b.Mul(decimal.NewFromInt(100)).DivRound(t, 2).StringFixed(2)
}
