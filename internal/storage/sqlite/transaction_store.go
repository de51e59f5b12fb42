package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using SQLite.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	message_id, trace_id, lt, account, sender, opcode, query_id, value,
	bounce, bounced, external, deployed, aborted, exit_code, out_messages,
	compute_fee, forward_fees, created_at
`

// Insert adds a new transaction. Returns ErrDuplicateKey if message_id exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.MessageID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		int64(tx.ExitCode),
		int64(tx.OutMessages),
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE trace_id = ? ORDER BY lt ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("get transactions by trace: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetByAccount retrieves the latest transactions of an account, ordered by lt DESC.
func (s *TransactionStore) GetByAccount(ctx context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account = ? ORDER BY lt DESC LIMIT ?`,
		addr.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get transactions by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction

	for rows.Next() {
		var (
			tx                         domain.Transaction
			lt, opcode, queryID        int64
			exitCode, outMessages      int64
			account, sender            string
			value, computeFee, fwdFees string
		)
		err := rows.Scan(
			&tx.MessageID, &tx.TraceID, &lt, &account, &sender, &opcode, &queryID, &value,
			&tx.Bounce, &tx.Bounced, &tx.External, &tx.Deployed, &tx.Aborted, &exitCode, &outMessages,
			&computeFee, &fwdFees, &tx.CreatedAt,
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
		if tx.ComputeFee, err = domain.ParseCoins(computeFee); err != nil {
			return nil, fmt.Errorf("decode compute fee: %w", err)
		}
		if tx.ForwardFees, err = domain.ParseCoins(fwdFees); err != nil {
			return nil, fmt.Errorf("decode forward fees: %w", err)
		}
		tx.LT = uint64(lt)
		tx.Opcode = uint32(opcode)
		tx.QueryID = uint64(queryID)
		tx.ExitCode = domain.ExitCode(exitCode)
		tx.OutMessages = int(outMessages)
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}
