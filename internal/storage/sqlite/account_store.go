package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// AccountStore implements storage.AccountStore using SQLite.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const accountColumns = `workchain, hash, code, balance, state, active, last_lt, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE workchain = ? AND hash = ?`,
		int64(addr.Workchain), addr.Hash[:],
	)
	a, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Put inserts or replaces an account.
func (s *AccountStore) Put(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsNone() {
		return storage.ErrInvalidInput
	}
	return putAccount(ctx, s.db, a)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putAccount(ctx context.Context, db execer, a *domain.Account) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workchain, hash) DO UPDATE SET
			code = excluded.code,
			balance = excluded.balance,
			state = excluded.state,
			active = excluded.active,
			last_lt = excluded.last_lt,
			updated_at = excluded.updated_at
	`,
		int64(a.Address.Workchain),
		a.Address.Hash[:],
		string(a.Code),
		a.Balance.String(),
		a.State,
		a.Active,
		int64(a.LastLT),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// Commit stores a, consumes one outbox message and queues outs in one transaction.
func (s *AccountStore) Commit(ctx context.Context, a *domain.Account, consumed string, outs []domain.Message) error {
	if a != nil && a.Address.IsNone() {
		return storage.ErrInvalidInput
	}
	payloads := make([][]byte, len(outs))
	for i, m := range outs {
		b, err := storage.EncodeMessage(m)
		if err != nil {
			return err
		}
		payloads[i] = b
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if a != nil {
		if err := putAccount(ctx, tx, a); err != nil {
			return err
		}
	}
	if consumed != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE message_id = ?`, consumed); err != nil {
			return fmt.Errorf("consume %s: %w", consumed, err)
		}
	}
	for i, m := range outs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outbox (message_id, created_lt, payload) VALUES (?, ?, ?)`,
			m.ID, int64(m.CreatedLT), payloads[i],
		); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("queue %s: %w", m.ID, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("queue %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Outbox returns the queued messages ordered by created lt, then id.
func (s *AccountStore) Outbox(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM outbox ORDER BY created_lt ASC, message_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		m, err := storage.DecodeMessage(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return result, nil
}

// ListByCode retrieves all active accounts running code, ordered by address ASC.
func (s *AccountStore) ListByCode(ctx context.Context, code domain.CodeID) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE code = ? AND active = 1
		ORDER BY workchain ASC, hash ASC
	`, string(code))
	if err != nil {
		return nil, fmt.Errorf("list accounts by code: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// LastLT returns the highest logical time of any stored account or queued
// message, or 0 when empty.
func (s *AccountStore) LastLT(ctx context.Context) (uint64, error) {
	var lt int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(last_lt), 0) FROM accounts),
			(SELECT COALESCE(MAX(created_lt), 0) FROM outbox)
		)
	`).Scan(&lt); err != nil {
		return 0, fmt.Errorf("last lt: %w", err)
	}
	return uint64(lt), nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a         domain.Account
		workchain int64
		hash      []byte
		code      string
		balance   string
		lastLT    int64
	)
	if err := row.Scan(&workchain, &hash, &code, &balance, &a.State, &a.Active, &lastLT, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(hash) != len(a.Address.Hash) {
		return nil, fmt.Errorf("account hash has %d bytes", len(hash))
	}

	b, err := domain.ParseCoins(balance)
	if err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}

	a.Address.Workchain = int8(workchain)
	copy(a.Address.Hash[:], hash)
	a.Code = domain.CodeID(code)
	a.Balance = b
	a.LastLT = uint64(lastLT)
	return &a, nil
}
