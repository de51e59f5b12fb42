// Package verification audits committed ledger state: every token's supply
// against its wallets, and every account against its transaction history.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/observability"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/vm"
)

// DefaultCodes are the account codes audited against their history.
var DefaultCodes = []domain.CodeID{
	vm.HolderCode,
	jetton.MasterCode,
	jetton.WalletCode,
	registry.OrganizationsCode,
	registry.MembershipCode,
}

// ErrBusy is returned when messages are in flight; results would be meaningless.
var ErrBusy = errors.New("ledger not quiescent")

// Divergence is a mismatch between an account and its stored history.
type Divergence struct {
	Account  domain.Address `json:"account"`
	Field    string         `json:"field"`
	Expected any            `json:"expected"` // from the transaction store
	Actual   any            `json:"actual"`   // from the account store
}

// Report is the outcome of one audit.
type Report struct {
	CheckedAt   int64                 `json:"checked_at"` // unix ms
	Tokens      []jetton.SupplyReport `json:"tokens"`
	Accounts    int                   `json:"accounts"`
	Divergences []Divergence          `json:"divergences,omitempty"`
}

// Consistent reports whether every check passed.
func (r *Report) Consistent() bool {
	if len(r.Divergences) > 0 {
		return false
	}
	for _, t := range r.Tokens {
		if !t.Consistent {
			return false
		}
	}
	return true
}

// Verifier audits the stores behind one machine.
type Verifier struct {
	accounts storage.AccountStore
	txs      storage.TransactionStore
	deriver  *idhash.Deriver
	codes    []domain.CodeID
	pending  func() int
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Options contains configuration for creating a Verifier.
type Options struct {
	Accounts storage.AccountStore
	Txs      storage.TransactionStore
	Deriver  *idhash.Deriver // nil derives without caching
	Codes    []domain.CodeID // defaults to DefaultCodes
	Pending  func() int      // in-flight messages; nil assumes quiescence
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// New creates a Verifier.
func New(opts Options) *Verifier {
	v := &Verifier{
		accounts: opts.Accounts,
		txs:      opts.Txs,
		deriver:  opts.Deriver,
		codes:    opts.Codes,
		pending:  opts.Pending,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if len(v.codes) == 0 {
		v.codes = DefaultCodes
	}
	if v.pending == nil {
		v.pending = func() int { return 0 }
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	return v
}

// VerifySupply runs the supply check of every token master.
func (v *Verifier) VerifySupply(ctx context.Context) ([]jetton.SupplyReport, error) {
	masters, err := v.accounts.ListByCode(ctx, jetton.MasterCode)
	if err != nil {
		return nil, fmt.Errorf("list masters: %w", err)
	}

	reports := make([]jetton.SupplyReport, 0, len(masters))
	for _, m := range masters {
		report, err := jetton.CheckSupply(ctx, v.accounts, v.deriver, m.Address)
		if report == nil {
			return nil, err
		}
		if v.metrics != nil {
			v.metrics.RecordSupply(m.Address, report.TotalSupply, report.WalletSum, report.Consistent)
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// VerifyAccounts compares every account's logical time with the newest
// transaction stored for it. Returns the number of accounts checked.
func (v *Verifier) VerifyAccounts(ctx context.Context) (int, []Divergence, error) {
	var (
		checked     int
		divergences []Divergence
	)
	for _, code := range v.codes {
		accts, err := v.accounts.ListByCode(ctx, code)
		if err != nil {
			return 0, nil, fmt.Errorf("list %s accounts: %w", code, err)
		}
		for _, a := range accts {
			checked++
			latest, err := v.txs.GetByAccount(ctx, a.Address, 1)
			if err != nil {
				return 0, nil, fmt.Errorf("transactions of %s: %w", a.Address, err)
			}
			if len(latest) == 0 {
				divergences = append(divergences, Divergence{
					Account:  a.Address,
					Field:    "history",
					Expected: 0,
					Actual:   a.LastLT,
				})
				continue
			}
			if latest[0].LT != a.LastLT {
				divergences = append(divergences, Divergence{
					Account:  a.Address,
					Field:    "LastLT",
					Expected: latest[0].LT,
					Actual:   a.LastLT,
				})
			}
		}
	}
	return checked, divergences, nil
}

// VerifyAll runs every check. Returns ErrBusy while messages are in flight.
func (v *Verifier) VerifyAll(ctx context.Context) (*Report, error) {
	if n := v.pending(); n > 0 {
		return nil, fmt.Errorf("%w: %d messages pending", ErrBusy, n)
	}

	tokens, err := v.VerifySupply(ctx)
	if err != nil {
		return nil, err
	}
	checked, divergences, err := v.VerifyAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{
		CheckedAt:   v.now().UnixMilli(),
		Tokens:      tokens,
		Accounts:    checked,
		Divergences: divergences,
	}, nil
}

// Run audits every interval until ctx is cancelled. Busy ledgers are skipped.
func (v *Verifier) Run(ctx context.Context, interval time.Duration) error {
	v.logger.Info("starting verifier", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v.runOnce(ctx)
		}
	}
}

func (v *Verifier) runOnce(ctx context.Context) {
	report, err := v.VerifyAll(ctx)
	switch {
	case errors.Is(err, ErrBusy):
		v.logger.Debug("verification skipped", zap.Error(err))
		return
	case err != nil:
		v.logger.Error("verification failed", zap.Error(err))
		return
	}

	if report.Consistent() {
		v.logger.Debug("ledger consistent",
			zap.Int("tokens", len(report.Tokens)),
			zap.Int("accounts", report.Accounts))
		return
	}
	for _, t := range report.Tokens {
		if !t.Consistent {
			v.logger.Error("supply mismatch",
				zap.Stringer("master", t.Master),
				zap.Stringer("total_supply", t.TotalSupply),
				zap.Stringer("wallet_sum", t.WalletSum),
				zap.Strings("violations", t.Violations))
		}
	}
	for _, d := range report.Divergences {
		v.logger.Error("account diverges from history",
			zap.Stringer("account", d.Account),
			zap.String("field", d.Field),
			zap.Any("expected", d.Expected),
			zap.Any("actual", d.Actual))
	}
}
