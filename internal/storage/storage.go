// Package storage defines the persistence contracts of the ledger: account
// state with its outbox of undelivered messages, and the transaction trace.
package storage

import (
	"context"
	"errors"

	"jetton-ledger/internal/domain"
)

var (
	// ErrNotFound is returned for an address or trace nothing was stored for.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a message id is recorded twice.
	ErrDuplicateKey = errors.New("message already recorded")

	// ErrInvalidInput is returned for a record without its key.
	ErrInvalidInput = errors.New("invalid input")
)

// AccountStore holds account state and the outbox.
//
// A message is in the outbox from the commit of the transaction that sent it
// until the commit of the transaction that consumed it. Replaying the outbox
// after a restart therefore delivers every message exactly once.
type AccountStore interface {
	// Get returns the account at addr, or ErrNotFound.
	Get(ctx context.Context, addr domain.Address) (*domain.Account, error)

	// Put inserts or replaces an account.
	Put(ctx context.Context, a *domain.Account) error

	// Commit atomically stores a (skipped when nil), removes the message
	// with id consumed from the outbox (skipped when empty) and queues outs.
	Commit(ctx context.Context, a *domain.Account, consumed string, outs []domain.Message) error

	// Outbox returns the queued messages ordered by created lt, then id.
	Outbox(ctx context.Context) ([]domain.Message, error)

	// ListByCode returns the active accounts running code, ordered by address.
	ListByCode(ctx context.Context, code domain.CodeID) ([]*domain.Account, error)

	// LastLT returns the highest logical time of any stored account or
	// queued message, or 0 when empty.
	LastLT(ctx context.Context) (uint64, error)
}

// TransactionStore is the append-only transaction trace.
type TransactionStore interface {
	// Insert adds a transaction. Returns ErrDuplicateKey if its message id exists.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// GetByTrace returns the transactions of a trace, ordered by lt ASC.
	GetByTrace(ctx context.Context, traceID string) ([]*domain.Transaction, error)

	// GetByAccount returns the latest transactions of an account, ordered by
	// lt DESC. limit <= 0 means no limit.
	GetByAccount(ctx context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error)
}
