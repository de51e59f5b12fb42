package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Balances are NUMERIC in the table and travel as decimal text.
const accountColumns = `workchain, hash, code, balance::text, state, active, last_lt, updated_at`

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE workchain = $1 AND hash = $2`

	row := s.pool.QueryRow(ctx, query, int16(addr.Workchain), addr.Hash[:])
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
	return putAccount(ctx, s.pool, a)
}

// execer is satisfied by the pool and by pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putAccount(ctx context.Context, db execer, a *domain.Account) error {
	query := `
		INSERT INTO accounts (workchain, hash, code, balance, state, active, last_lt, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8)
		ON CONFLICT (workchain, hash) DO UPDATE SET
			code = EXCLUDED.code,
			balance = EXCLUDED.balance,
			state = EXCLUDED.state,
			active = EXCLUDED.active,
			last_lt = EXCLUDED.last_lt,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.Exec(ctx, query,
		int16(a.Address.Workchain),
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
	batch := &pgx.Batch{}
	for _, m := range outs {
		payload, err := storage.EncodeMessage(m)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO outbox (message_id, created_lt, payload) VALUES ($1, $2, $3)`,
			m.ID, int64(m.CreatedLT), payload)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if a != nil {
			if err := putAccount(ctx, tx, a); err != nil {
				return err
			}
		}
		if consumed != "" {
			if _, err := tx.Exec(ctx, `DELETE FROM outbox WHERE message_id = $1`, consumed); err != nil {
				return fmt.Errorf("consume %s: %w", consumed, err)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("queue messages: %w", storage.ErrDuplicateKey)
			}
			return fmt.Errorf("queue messages: %w", err)
		}
		return nil
	})
}

// Outbox returns the queued messages ordered by created lt, then id.
func (s *AccountStore) Outbox(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM outbox ORDER BY created_lt ASC, message_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan outbox: %w", err)
	}

	result := make([]domain.Message, 0, len(payloads))
	for _, p := range payloads {
		m, err := storage.DecodeMessage(p)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// ListByCode retrieves all active accounts running code, ordered by address ASC.
func (s *AccountStore) ListByCode(ctx context.Context, code domain.CodeID) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE code = $1 AND active
		ORDER BY workchain ASC, hash ASC
	`

	rows, err := s.pool.Query(ctx, query, string(code))
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
	if err := s.pool.QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT COALESCE(MAX(last_lt), 0) FROM accounts),
			(SELECT COALESCE(MAX(created_lt), 0) FROM outbox)
		)
	`).Scan(&lt); err != nil {
		return 0, fmt.Errorf("last lt: %w", err)
	}
	return uint64(lt), nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		workchain int16
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
