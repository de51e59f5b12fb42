package observability

import (
	"context"
	"errors"
	"time"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// InstrumentAccounts wraps an account store so every call is timed under
// the given store label.
func InstrumentAccounts(s storage.AccountStore, m *Metrics, label string) storage.AccountStore {
	return &accountStore{next: s, m: m, label: label}
}

// InstrumentTransactions wraps a transaction store like InstrumentAccounts.
func InstrumentTransactions(s storage.TransactionStore, m *Metrics, label string) storage.TransactionStore {
	return &transactionStore{next: s, m: m, label: label}
}

type accountStore struct {
	next  storage.AccountStore
	m     *Metrics
	label string
}

func (s *accountStore) Get(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	start := time.Now()
	a, err := s.next.Get(ctx, addr)
	s.m.RecordDBQuery(s.label, "account_get", time.Since(start), notFoundIsOK(err))
	return a, err
}

func (s *accountStore) Put(ctx context.Context, a *domain.Account) error {
	start := time.Now()
	err := s.next.Put(ctx, a)
	s.m.RecordDBQuery(s.label, "account_put", time.Since(start), err)
	return err
}

func (s *accountStore) Commit(ctx context.Context, a *domain.Account, consumed string, outs []domain.Message) error {
	start := time.Now()
	err := s.next.Commit(ctx, a, consumed, outs)
	s.m.RecordDBQuery(s.label, "account_commit", time.Since(start), err)
	return err
}

func (s *accountStore) Outbox(ctx context.Context) ([]domain.Message, error) {
	start := time.Now()
	msgs, err := s.next.Outbox(ctx)
	s.m.RecordDBQuery(s.label, "outbox_list", time.Since(start), err)
	return msgs, err
}

func (s *accountStore) ListByCode(ctx context.Context, code domain.CodeID) ([]*domain.Account, error) {
	start := time.Now()
	list, err := s.next.ListByCode(ctx, code)
	s.m.RecordDBQuery(s.label, "account_list", time.Since(start), err)
	return list, err
}

func (s *accountStore) LastLT(ctx context.Context) (uint64, error) {
	start := time.Now()
	lt, err := s.next.LastLT(ctx)
	s.m.RecordDBQuery(s.label, "account_last_lt", time.Since(start), err)
	return lt, err
}

type transactionStore struct {
	next  storage.TransactionStore
	m     *Metrics
	label string
}

func (s *transactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	start := time.Now()
	err := s.next.Insert(ctx, tx)
	s.m.RecordDBQuery(s.label, "tx_insert", time.Since(start), err)
	return err
}

func (s *transactionStore) GetByTrace(ctx context.Context, traceID string) ([]*domain.Transaction, error) {
	start := time.Now()
	txs, err := s.next.GetByTrace(ctx, traceID)
	s.m.RecordDBQuery(s.label, "tx_by_trace", time.Since(start), err)
	return txs, err
}

func (s *transactionStore) GetByAccount(ctx context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error) {
	start := time.Now()
	txs, err := s.next.GetByAccount(ctx, addr, limit)
	s.m.RecordDBQuery(s.label, "tx_by_account", time.Since(start), err)
	return txs, err
}

// notFoundIsOK keeps lookups of not-yet-materialized accounts out of the error count.
func notFoundIsOK(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

var (
	_ storage.AccountStore     = (*accountStore)(nil)
	_ storage.TransactionStore = (*transactionStore)(nil)
)
