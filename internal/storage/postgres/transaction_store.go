package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	message_id, trace_id, lt, account, sender, opcode, query_id, value::text,
	bounce, bounced, external, deployed, aborted, exit_code, out_messages,
	compute_fee::text, forward_fees::text, created_at
`

// Insert adds a new transaction. Returns ErrDuplicateKey if message_id exists.
// Query ids use the full uint64 range and are stored bit-for-bit in BIGINT.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.MessageID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transactions (
			message_id, trace_id, lt, account, sender, opcode, query_id, value,
			bounce, bounced, external, deployed, aborted, exit_code, out_messages,
			compute_fee, forward_fees, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8::text::numeric,
			$9, $10, $11, $12, $13, $14, $15,
			$16::text::numeric, $17::text::numeric, $18
		)
	`

	_, err := s.pool.Exec(ctx, query,
		tx.MessageID,
		tx.TraceID,
		int64(tx.LT),
		tx.Account.String(),
		tx.Sender.String(),
		int64(tx.Opcode),
		int64(tx.QueryID),
		tx.Value.String(),
		tx.Bounce,
		tx.Bounced,
		tx.External,
		tx.Deployed,
		tx.Aborted,
		int32(tx.ExitCode),
		int32(tx.OutMessages),
		tx.ComputeFee.String(),
		tx.ForwardFees.String(),
		tx.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByTrace retrieves all transactions of a trace, ordered by lt ASC.
func (s *TransactionStore) GetByTrace(ctx context.Context, traceID string) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE trace_id = $1 ORDER BY lt ASC`

	rows, err := s.pool.Query(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("get transactions by trace: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetByAccount retrieves the latest transactions of an account, ordered by lt DESC.
func (s *TransactionStore) GetByAccount(ctx context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account = $1 ORDER BY lt DESC`
	args := []any{addr.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get transactions by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction

	for rows.Next() {
		var (
			tx                   domain.Transaction
			lt, opcode, queryID  int64
			account, sender      string
			value, compute, fwd  string
			exitCode, outMessage int32
		)
		err := rows.Scan(
			&tx.MessageID, &tx.TraceID, &lt, &account, &sender, &opcode, &queryID, &value,
			&tx.Bounce, &tx.Bounced, &tx.External, &tx.Deployed, &tx.Aborted, &exitCode, &outMessage,
			&compute, &fwd, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		if tx.Account, err = domain.ParseAddress(account); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		if tx.Sender, err = domain.ParseAddress(sender); err != nil {
			return nil, fmt.Errorf("decode sender: %w", err)
		}
		if tx.Value, err = domain.ParseCoins(value); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		if tx.ComputeFee, err = domain.ParseCoins(compute); err != nil {
			return nil, fmt.Errorf("decode compute fee: %w", err)
		}
		if tx.ForwardFees, err = domain.ParseCoins(fwd); err != nil {
			return nil, fmt.Errorf("decode forward fees: %w", err)
		}
		tx.LT = uint64(lt)
		tx.Opcode = uint32(opcode)
		tx.QueryID = uint64(queryID)
		tx.ExitCode = domain.ExitCode(exitCode)
		tx.OutMessages = int(outMessage)
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}
